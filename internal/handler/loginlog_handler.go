package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"mycore-gateway/internal/loginlog"
	"mycore-gateway/internal/model"
	"mycore-gateway/internal/util"
)

// LoginLogHandler records successful sign-ins reported by the auth flow.
type LoginLogHandler struct {
	recorder *loginlog.Recorder
	logger   *zap.Logger
}

func NewLoginLogHandler(recorder *loginlog.Recorder, logger *zap.Logger) *LoginLogHandler {
	return &LoginLogHandler{
		recorder: recorder,
		logger:   logger,
	}
}

type logLoginRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Record ingests one login event. Request metadata (IP, device) is derived
// server-side from the request itself, never from the body.
func (h *LoginLogHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req logLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return
	}
	if req.UserID == "" || util.ContainsSuspicious(req.UserID) {
		h.respondWithJSON(w, http.StatusBadRequest, errorResponse(model.ErrInvalidInput, "Missing or invalid userId"))
		return
	}

	entry, err := h.recorder.Record(r.Context(), req.UserID, util.SanitizeInput(req.Email), r)
	if err != nil {
		h.respondWithJSON(w, http.StatusInternalServerError, errorResponse(err, "Failed to record login"))
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"id": entry.ID,
	}, "Login recorded"))
}

func (h *LoginLogHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", util.ErrorField(err))
	}
}
