// Package gate computes the per-request access decision for the application.
// The decision core is a pure function over policy snapshots; all I/O lives
// in the middleware that feeds it.
package gate

import (
	"strings"

	"mycore-gateway/internal/model"
)

// Decision is the outcome of evaluating one request against current policy.
type Decision int

const (
	// DecisionAllow lets the request through untouched.
	DecisionAllow Decision = iota
	// DecisionMaintenance sends an authenticated user to the maintenance notice.
	DecisionMaintenance
	// DecisionBlocked sends a blocked user to the blocked notice; the caller
	// must also terminate the session.
	DecisionBlocked
	// DecisionLogin sends an anonymous user on a protected route to login.
	DecisionLogin
	// DecisionApp sends an already-authenticated user away from auth pages.
	DecisionApp
)

// Redirect targets for the non-allow decisions.
const (
	MaintenancePath = "/maintenance"
	BlockedPath     = "/blocked"
	LoginPath       = "/login"
	AppHomePath     = "/assistant"
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionMaintenance:
		return "maintenance"
	case DecisionBlocked:
		return "blocked"
	case DecisionLogin:
		return "login"
	case DecisionApp:
		return "app"
	default:
		return "unknown"
	}
}

// RedirectTarget returns the path a non-allow decision redirects to, or ""
// for DecisionAllow.
func (d Decision) RedirectTarget() string {
	switch d {
	case DecisionMaintenance:
		return MaintenancePath
	case DecisionBlocked:
		return BlockedPath
	case DecisionLogin:
		return LoginPath
	case DecisionApp:
		return AppHomePath
	default:
		return ""
	}
}

var (
	// adminPrefixes always pass: the operator must be able to reach the kill
	// switches even while the app is disabled.
	adminPrefixes = []string{"/admin", "/api/admin"}

	// authFlowPrefixes are exempt from the maintenance check so users can
	// still complete sign-in/sign-out flows.
	authFlowPrefixes = []string{"/login", "/signup", "/api/auth"}

	// protectedPrefixes require an authenticated user.
	protectedPrefixes = []string{
		"/assistant", "/home", "/connect", "/settings",
		"/reminders", "/schedule", "/compose",
	}

	// authPages is where logged-in users get bounced back to the app from.
	authPages = map[string]bool{"/login": true, "/signup": true}
)

// Input is a snapshot of everything the decision depends on. UserID is empty
// for anonymous callers. Settings and Blocked are point-in-time reads; the
// caller decides what they mean when the policy store is unreachable.
type Input struct {
	UserID   string
	Path     string
	Settings model.GlobalSettings
	Blocked  bool
}

// Evaluate runs the decision table. Rule order encodes precedence and must
// not change: admin bypass, maintenance, block, login wall, auth-page bounce,
// allow.
func Evaluate(in Input) Decision {
	if hasPrefix(in.Path, adminPrefixes) {
		return DecisionAllow
	}

	authed := in.UserID != ""

	if authed && !hasPrefix(in.Path, authFlowPrefixes) && !in.Settings.AppEnabled {
		return DecisionMaintenance
	}

	if authed && in.Blocked {
		return DecisionBlocked
	}

	if !authed && hasPrefix(in.Path, protectedPrefixes) {
		return DecisionLogin
	}

	if authed && authPages[in.Path] {
		return DecisionApp
	}

	return DecisionAllow
}

// IsStaticAsset reports whether the path is served without gate evaluation,
// mirroring the asset exclusions of the app's request matcher.
func IsStaticAsset(path string) bool {
	switch path {
	case "/favicon.ico", "/manifest.json", "/sw.js":
		return true
	}
	if strings.HasPrefix(path, "/static/") || strings.HasPrefix(path, "/icon-") {
		return true
	}
	for _, ext := range []string{".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
