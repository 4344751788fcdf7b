package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mycore-gateway/internal/model"
	"mycore-gateway/internal/service"
	"mycore-gateway/internal/util"
)

// AdminHandler exposes the control plane: shared-secret login, status reads,
// and the kill-switch / block-list mutations.
type AdminHandler struct {
	admin  *service.AdminService
	logger *zap.Logger
}

func NewAdminHandler(admin *service.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// actionRequest is the single mutate/login body. Mutations carry the secret
// again in password; there is no admin session to fall back on.
type actionRequest struct {
	Action   string `json:"action"`
	Type     string `json:"type,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Password string `json:"password"`
}

// RegisterRoutes registers the control-plane routes.
func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Route("/admin", func(r chi.Router) {
		r.Get("/", h.Status)
		r.Post("/", h.Action)
		r.Get("/logins/search", h.SearchLogins)
	})
}

// checkAuth verifies the Authorization header's bearer secret.
func (h *AdminHandler) checkAuth(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return false
	}
	return h.admin.VerifySecret(strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
}

// Status returns current settings, recent login logs, the block list, and
// aggregate stats. It always answers 200 for an authorized caller; storage
// failures degrade to the documented safe defaults.
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.checkAuth(r) {
		h.respondWithError(w, http.StatusUnauthorized, model.ErrUnauthorized, "Unauthorized")
		return
	}

	report := h.admin.Status(r.Context())
	h.respondWithJSON(w, http.StatusOK, successResponse(report, ""))
}

// Action dispatches login and the mutating control-plane operations.
func (h *AdminHandler) Action(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if req.Action == "login" {
		h.login(w, &req)
		return
	}

	// Every mutation re-verifies the secret; a bad secret changes nothing.
	if !h.checkAuth(r) || !h.admin.VerifySecret(req.Password) {
		h.respondWithError(w, http.StatusUnauthorized, model.ErrUnauthorized, "Invalid password")
		return
	}

	ctx := r.Context()
	start := time.Now()

	switch req.Action {
	case "toggle":
		h.toggle(w, r, &req)

	case "block":
		if !validUserID(req.UserID) {
			h.respondWithError(w, http.StatusBadRequest, model.ErrInvalidInput, "Missing or invalid userId")
			return
		}
		if err := h.admin.Block(ctx, req.UserID); err != nil {
			h.respondWithError(w, http.StatusInternalServerError, err, "Failed to block user")
			return
		}
		h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
			"userId":  req.UserID,
			"blocked": true,
		}, "User blocked"))

	case "unblock":
		if !validUserID(req.UserID) {
			h.respondWithError(w, http.StatusBadRequest, model.ErrInvalidInput, "Missing or invalid userId")
			return
		}
		if err := h.admin.Unblock(ctx, req.UserID); err != nil {
			h.respondWithError(w, http.StatusInternalServerError, err, "Failed to unblock user")
			return
		}
		h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
			"userId":  req.UserID,
			"blocked": false,
		}, "User unblocked"))

	default:
		h.respondWithError(w, http.StatusBadRequest, model.ErrInvalidInput, "Invalid action")
		return
	}

	h.logger.Info("Admin action handled",
		util.String("action", req.Action),
		util.String("type", req.Type),
		util.Duration("duration", time.Since(start)),
	)
}

func (h *AdminHandler) login(w http.ResponseWriter, req *actionRequest) {
	if !h.admin.VerifySecret(req.Password) {
		h.respondWithError(w, http.StatusUnauthorized, model.ErrUnauthorized, "Invalid password")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Authenticated"))
}

func (h *AdminHandler) toggle(w http.ResponseWriter, r *http.Request, req *actionRequest) {
	ctx := r.Context()

	switch req.Type {
	case "app":
		settings, err := h.admin.ToggleApp(ctx)
		if err != nil {
			// Mutations fail closed: the operator must see that the toggle
			// did not take effect.
			h.respondWithError(w, http.StatusInternalServerError, err, "Failed to toggle app")
			return
		}
		h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
			"appEnabled":  settings.AppEnabled,
			"uptimeStart": settings.UptimeStart,
		}, "App toggled"))

	case "core":
		settings, err := h.admin.ToggleCore(ctx)
		if err != nil {
			h.respondWithError(w, http.StatusInternalServerError, err, "Failed to toggle core")
			return
		}
		h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
			"coreEnabled": settings.CoreEnabled,
		}, "Core toggled"))

	default:
		h.respondWithError(w, http.StatusBadRequest, model.ErrInvalidInput, "Unknown toggle type")
	}
}

// SearchLogins queries the login-log search index.
func (h *AdminHandler) SearchLogins(w http.ResponseWriter, r *http.Request) {
	if !h.checkAuth(r) {
		h.respondWithError(w, http.StatusUnauthorized, model.ErrUnauthorized, "Unauthorized")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.respondWithError(w, http.StatusBadRequest, model.ErrInvalidInput, "Missing query parameter q")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	logs, err := h.admin.SearchLogins(r.Context(), query, limit)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Search failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(logs, ""))
}

func validUserID(userID string) bool {
	return userID != "" && !util.ContainsSuspicious(userID)
}

func (h *AdminHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", util.ErrorField(err))
	}
}

func (h *AdminHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	if err == nil {
		err = errors.New(message)
	}
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}
