package gate

import (
	"net/http"
	"time"

	"mycore-gateway/internal/identity"
	"mycore-gateway/internal/model"
	"mycore-gateway/internal/util"

	"go.uber.org/zap"
)

// Middleware evaluates the gate for every inbound request before any other
// handler runs. Policy lookups that fail are treated as "no policy": the app
// stays reachable through a storage hiccup, which is a deliberate trade
// against failing closed.
type Middleware struct {
	verifier   *identity.Verifier
	policy     model.PolicySource
	sessions   model.SessionRevoker
	cookieName string
	logger     *zap.Logger
}

func NewMiddleware(verifier *identity.Verifier, policy model.PolicySource, sessions model.SessionRevoker, cookieName string, logger *zap.Logger) *Middleware {
	return &Middleware{
		verifier:   verifier,
		policy:     policy,
		sessions:   sessions,
		cookieName: cookieName,
		logger:     logger,
	}
}

// Handler wraps next with the gate evaluation.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if IsStaticAsset(path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		in := Input{Path: path}

		if ident := m.verifier.FromRequest(r); ident != nil {
			in.UserID = ident.UserID
		}

		// Anonymous requests and admin paths never need policy reads.
		if in.UserID != "" && !hasPrefix(path, adminPrefixes) {
			settings, err := m.policy.Settings(ctx)
			if err != nil {
				// Fail open: a policy-store failure must not become an outage.
				m.logger.Warn("settings lookup failed, allowing request",
					util.String("path", path),
					util.ErrorField(err))
				settings = model.DefaultSettings(time.Now())
			}
			in.Settings = settings

			blocked, err := m.policy.IsBlocked(ctx, in.UserID)
			if err != nil {
				m.logger.Warn("block lookup failed, allowing request",
					util.String("user_id", in.UserID),
					util.ErrorField(err))
				blocked = false
			}
			in.Blocked = blocked
		} else {
			in.Settings = model.DefaultSettings(time.Now())
		}

		decision := Evaluate(in)

		switch decision {
		case DecisionAllow:
			next.ServeHTTP(w, r)
		case DecisionBlocked:
			// A blocked identity must not keep a usable session.
			m.signOut(w, r, in.UserID)
			m.redirect(w, r, decision)
		default:
			m.redirect(w, r, decision)
		}
	})
}

func (m *Middleware) redirect(w http.ResponseWriter, r *http.Request, d Decision) {
	m.logger.Info("gate redirect",
		util.String("path", r.URL.Path),
		util.String("decision", d.String()))
	http.Redirect(w, r, d.RedirectTarget(), http.StatusTemporaryRedirect)
}

func (m *Middleware) signOut(w http.ResponseWriter, r *http.Request, userID string) {
	if m.sessions != nil {
		if err := m.sessions.Revoke(r.Context(), userID); err != nil {
			m.logger.Error("failed to revoke session for blocked user",
				util.String("user_id", userID),
				util.ErrorField(err))
		}
	}
	if m.cookieName != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     m.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
}
