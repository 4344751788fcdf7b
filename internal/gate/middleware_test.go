package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mycore-gateway/internal/identity"
	"mycore-gateway/internal/model"
)

const testJWTSecret = "gate-test-secret"
const testCookie = "auth-token"

type fakePolicy struct {
	settings    model.GlobalSettings
	settingsErr error
	blocked     map[string]bool
	blockedErr  error
}

func (f *fakePolicy) Settings(context.Context) (model.GlobalSettings, error) {
	if f.settingsErr != nil {
		return model.GlobalSettings{}, f.settingsErr
	}
	return f.settings, nil
}

func (f *fakePolicy) IsBlocked(_ context.Context, userID string) (bool, error) {
	if f.blockedErr != nil {
		return false, f.blockedErr
	}
	return f.blocked[userID], nil
}

type fakeRevoker struct {
	revoked []string
}

func (f *fakeRevoker) Revoke(_ context.Context, userID string) error {
	f.revoked = append(f.revoked, userID)
	return nil
}

func tokenFor(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func newTestMiddleware(policy model.PolicySource, sessions model.SessionRevoker) *Middleware {
	verifier := identity.NewVerifier(testJWTSecret, testCookie)
	return NewMiddleware(verifier, policy, sessions, testCookie, zap.NewNop())
}

func serveGated(m *Middleware, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	m.Handler(next).ServeHTTP(rec, r)
	return rec
}

func TestMiddlewareAllowsAuthedUser(t *testing.T) {
	t.Parallel()

	policy := &fakePolicy{settings: model.DefaultSettings(time.Now())}
	m := newTestMiddleware(policy, &fakeRevoker{})

	req := httptest.NewRequest(http.MethodGet, "/assistant", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "u1"))

	rec := serveGated(m, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRedirectsAnonymousOnProtectedPath(t *testing.T) {
	t.Parallel()

	policy := &fakePolicy{settings: model.DefaultSettings(time.Now())}
	m := newTestMiddleware(policy, &fakeRevoker{})

	req := httptest.NewRequest(http.MethodGet, "/assistant", nil)

	rec := serveGated(m, req)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, LoginPath, rec.Header().Get("Location"))
}

func TestMiddlewareMaintenanceRedirect(t *testing.T) {
	t.Parallel()

	settings := model.DefaultSettings(time.Now())
	settings.AppEnabled = false
	policy := &fakePolicy{settings: settings}
	m := newTestMiddleware(policy, &fakeRevoker{})

	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "u1"))

	rec := serveGated(m, req)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, MaintenancePath, rec.Header().Get("Location"))
}

func TestMiddlewareBlockedUserSignedOut(t *testing.T) {
	t.Parallel()

	policy := &fakePolicy{
		settings: model.DefaultSettings(time.Now()),
		blocked:  map[string]bool{"u9": true},
	}
	revoker := &fakeRevoker{}
	m := newTestMiddleware(policy, revoker)

	req := httptest.NewRequest(http.MethodGet, "/home", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: tokenFor(t, "u9")})

	rec := serveGated(m, req)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, BlockedPath, rec.Header().Get("Location"))
	assert.Equal(t, []string{"u9"}, revoker.revoked)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, testCookie, cookies[0].Name)
	assert.Equal(t, "", cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

// A dead policy store must not take the app down with it.
func TestMiddlewareFailsOpenOnPolicyError(t *testing.T) {
	t.Parallel()

	policy := &fakePolicy{
		settingsErr: errors.New("scylla down"),
		blockedErr:  errors.New("scylla down"),
	}
	m := newTestMiddleware(policy, &fakeRevoker{})

	req := httptest.NewRequest(http.MethodGet, "/assistant", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "u1"))

	rec := serveGated(m, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareInvalidTokenTreatedAsAnonymous(t *testing.T) {
	t.Parallel()

	policy := &fakePolicy{settings: model.DefaultSettings(time.Now())}
	m := newTestMiddleware(policy, &fakeRevoker{})

	req := httptest.NewRequest(http.MethodGet, "/assistant", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")

	rec := serveGated(m, req)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, LoginPath, rec.Header().Get("Location"))
}

func TestMiddlewareSkipsStaticAssets(t *testing.T) {
	t.Parallel()

	// Policy reads would fail loudly; static assets must never trigger them.
	policy := &fakePolicy{settingsErr: errors.New("should not be called")}
	m := newTestMiddleware(policy, &fakeRevoker{})

	req := httptest.NewRequest(http.MethodGet, "/favicon.ico", nil)
	rec := serveGated(m, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
