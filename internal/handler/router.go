package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"mycore-gateway/internal/gate"
	"mycore-gateway/internal/util"
)

// requireHTTPS rejects any request that wasn’t made over TLS
func requireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUpgradeRequired) // 426
			w.Write([]byte(`{"error":"https required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter wires the middleware stack and routes. The gate middleware runs
// after request plumbing but before any route, so decisions apply uniformly
// to pages the gateway fronts; admin and auth-flow paths pass through it
// untouched by construction.
func NewRouter(
	adminHandler *AdminHandler,
	loginLogHandler *LoginLogHandler,
	gateMiddleware *gate.Middleware,
	allowedOrigins []string,
	enforceHTTPS bool,
	healthy func(ctx context.Context) bool,
	logger *zap.Logger,
) *chi.Mux {
	router := chi.NewRouter()

	if enforceHTTPS {
		router.Use(requireHTTPS)
	}

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(loggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Use(gateMiddleware.Handler)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if healthy != nil && !healthy(r.Context()) {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status": status,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Landing pages for redirected traffic. The real UI lives upstream; these
	// keep the redirect targets resolvable when the gateway runs standalone.
	router.Get(gate.MaintenancePath, noticePage("Service is under maintenance"))
	router.Get(gate.BlockedPath, noticePage("Access has been revoked"))

	router.Route("/api", func(r chi.Router) {
		adminHandler.RegisterRoutes(r)
		r.Post("/log-login", loginLogHandler.Record)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(Response{
			Success: false,
			Error:   "not found",
			Message: "The requested resource does not exist",
		})
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(Response{
			Success: false,
			Error:   "method not allowed",
			Message: "The requested method is not allowed for this resource",
		})
	})

	return router
}

func noticePage(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(Response{
			Success: true,
			Message: message,
		})
	}
}

// loggerMiddleware logs each request with latency and status.
func loggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("Request handled",
				util.String("method", r.Method),
				util.String("path", r.URL.Path),
				util.String("remote", r.RemoteAddr),
				util.String("request_id", middleware.GetReqID(r.Context())),
				util.Int("status", ww.Status()),
				util.Duration("duration", time.Since(start)),
			)
		})
	}
}
