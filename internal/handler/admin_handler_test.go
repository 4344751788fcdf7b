package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mycore-gateway/internal/bucketing"
	"mycore-gateway/internal/config"
	"mycore-gateway/internal/gate"
	"mycore-gateway/internal/hashing"
	"mycore-gateway/internal/identity"
	"mycore-gateway/internal/loginlog"
	"mycore-gateway/internal/model"
	"mycore-gateway/internal/service"
)

const (
	adminSecret = "test-admin-secret"
	jwtSecret   = "test-jwt-secret"
	authCookie  = "auth-token"
)

// memStore is an in-memory stand-in for the whole storage plane.
type memStore struct {
	settings model.GlobalSettings
	blocked  map[string]bool
	logs     []model.LoginLog
	revoked  []string
}

func newMemStore() *memStore {
	return &memStore{
		settings: model.DefaultSettings(time.Now().UTC()),
		blocked:  map[string]bool{},
	}
}

func (m *memStore) Get(context.Context) (model.GlobalSettings, error) { return m.settings, nil }

func (m *memStore) Settings(context.Context) (model.GlobalSettings, error) {
	return m.settings, nil
}

func (m *memStore) ToggleApp(context.Context) (model.GlobalSettings, error) {
	m.settings.AppEnabled = !m.settings.AppEnabled
	if m.settings.AppEnabled {
		m.settings.UptimeStart = time.Now().UTC()
	}
	return m.settings, nil
}

func (m *memStore) ToggleCore(context.Context) (model.GlobalSettings, error) {
	m.settings.CoreEnabled = !m.settings.CoreEnabled
	return m.settings, nil
}

func (m *memStore) Block(_ context.Context, userID string) error {
	if userID == "" {
		return model.ErrInvalidInput
	}
	m.blocked[userID] = true
	return nil
}

func (m *memStore) Unblock(_ context.Context, userID string) error {
	delete(m.blocked, userID)
	return nil
}

func (m *memStore) IsBlocked(_ context.Context, userID string) (bool, error) {
	return m.blocked[userID], nil
}

func (m *memStore) List(context.Context) ([]model.BlockEntry, error) {
	var out []model.BlockEntry
	for id := range m.blocked {
		out = append(out, model.BlockEntry{UserID: id, Blocked: true})
	}
	return out, nil
}

func (m *memStore) Insert(_ context.Context, entry *model.LoginLog) error {
	m.logs = append(m.logs, *entry)
	return nil
}

func (m *memStore) Recent(context.Context, int) ([]model.LoginLog, error) { return m.logs, nil }

func (m *memStore) Stats(context.Context, time.Time) (model.LoginStats, error) {
	return model.LoginStats{TotalUsers: uint64(len(m.logs))}, nil
}

func (m *memStore) Index(context.Context, *model.LoginLog) error { return nil }

func (m *memStore) Search(_ context.Context, query string, _ int) ([]model.LoginLog, error) {
	var out []model.LoginLog
	for _, l := range m.logs {
		if l.Email == query || l.UserID == query {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) PublishAdminEvent(context.Context, *model.AdminEvent) error { return nil }
func (m *memStore) PublishLogin(context.Context, *model.LoginLog) error        { return nil }

func (m *memStore) Invalidate(context.Context) error             { return nil }
func (m *memStore) InvalidateUser(context.Context, string) error { return nil }
func (m *memStore) Revoke(_ context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

func (m *memStore) Track(context.Context, string, string, time.Duration) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	return newTestServerWithHealth(t, nil)
}

func newTestServerWithHealth(t *testing.T, healthy func(context.Context) bool) (*httptest.Server, *memStore) {
	t.Helper()

	store := newMemStore()
	logger := zap.NewNop()

	admin := service.NewAdminService(
		store, store, store, store, store, store,
		nil, hashing.NewHasher(hashing.DefaultParams()), adminSecret, logger,
	)

	buckets := bucketing.NewBucketingManager(&config.Config{
		Bucketing: config.BucketingConfig{UserBuckets: 64, EventBuckets: 16},
	})
	recorder := loginlog.NewRecorder(store, store, store, store, buckets, nil, logger)

	verifier := identity.NewVerifier(jwtSecret, authCookie)
	gateMW := gate.NewMiddleware(verifier, store, store, authCookie, logger)

	router := NewRouter(
		NewAdminHandler(admin, logger),
		NewLoginLogHandler(recorder, logger),
		gateMW,
		[]string{"*"},
		false,
		healthy,
		logger,
	)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store
}

func userToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, client *http.Client, method, url, bearer string, body interface{}) (*http.Response, Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	require.NoError(t, err)

	var decoded Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	resp.Body.Close()
	return resp, decoded
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	server, _ := newTestServerWithHealth(t, func(context.Context) bool { return true })
	resp, err := server.Client().Get(server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	degraded, _ := newTestServerWithHealth(t, func(context.Context) bool { return false })
	resp, err = degraded.Client().Get(degraded.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAdminLogin(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	client := srv.Client()

	resp, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/admin/", "",
		map[string]string{"action": "login", "password": adminSecret})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)

	resp, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/admin/", "",
		map[string]string{"action": "login", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, body.Success)
}

func TestAdminStatusRequiresSecret(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	client := srv.Client()

	resp, _ := doJSON(t, client, http.MethodGet, srv.URL+"/api/admin/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := doJSON(t, client, http.MethodGet, srv.URL+"/api/admin/", adminSecret, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
}

func TestAdminToggleRequiresBodySecret(t *testing.T) {
	t.Parallel()

	server, mem := newTestServer(t)
	client := server.Client()

	// Bearer alone is not enough; the body password is re-verified.
	resp, _ := doJSON(t, client, http.MethodPost, server.URL+"/api/admin/", adminSecret,
		map[string]string{"action": "toggle", "type": "app"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, mem.settings.AppEnabled)

	resp, body := doJSON(t, client, http.MethodPost, server.URL+"/api/admin/", adminSecret,
		map[string]string{"action": "toggle", "type": "app", "password": adminSecret})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.False(t, mem.settings.AppEnabled)
}

func TestToggleAppRestartsUptime(t *testing.T) {
	t.Parallel()

	server, mem := newTestServer(t)
	client := server.Client()
	started := time.Now().UTC().Add(-time.Hour)
	mem.settings.UptimeStart = started

	toggle := func(kind string) {
		t.Helper()
		resp, body := doJSON(t, client, http.MethodPost, server.URL+"/api/admin/", adminSecret,
			map[string]string{"action": "toggle", "type": kind, "password": adminSecret})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.True(t, body.Success)
	}

	// Disabling keeps the previous uptime start around.
	toggle("app")
	assert.False(t, mem.settings.AppEnabled)
	assert.Equal(t, started, mem.settings.UptimeStart)

	// The assistant switch never touches it, in either direction.
	toggle("core")
	toggle("core")
	assert.Equal(t, started, mem.settings.UptimeStart)

	// Re-enabling restarts the clock.
	toggle("app")
	assert.True(t, mem.settings.AppEnabled)
	assert.True(t, mem.settings.UptimeStart.After(started))
}

func TestAdminBlockUnblockFlow(t *testing.T) {
	t.Parallel()

	server, mem := newTestServer(t)
	client := server.Client()

	resp, _ := doJSON(t, client, http.MethodPost, server.URL+"/api/admin/", adminSecret,
		map[string]string{"action": "block", "userId": "u9", "password": adminSecret})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, mem.blocked["u9"])

	resp, _ = doJSON(t, client, http.MethodPost, server.URL+"/api/admin/", adminSecret,
		map[string]string{"action": "unblock", "userId": "u9", "password": adminSecret})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, mem.blocked["u9"])

	// Missing userId is a client error.
	resp, _ = doJSON(t, client, http.MethodPost, server.URL+"/api/admin/", adminSecret,
		map[string]string{"action": "block", "password": adminSecret})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminUnknownAction(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	resp, _ := doJSON(t, server.Client(), http.MethodPost, server.URL+"/api/admin/", adminSecret,
		map[string]string{"action": "explode", "password": adminSecret})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogLoginEndpoint(t *testing.T) {
	t.Parallel()

	server, mem := newTestServer(t)
	resp, body := doJSON(t, server.Client(), http.MethodPost, server.URL+"/api/log-login", "",
		map[string]string{"userId": "u1", "email": "u1@example.com"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	require.Len(t, mem.logs, 1)
	assert.Equal(t, "u1", mem.logs[0].UserID)

	resp, _ = doJSON(t, server.Client(), http.MethodPost, server.URL+"/api/log-login", "",
		map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchLogins(t *testing.T) {
	t.Parallel()

	server, mem := newTestServer(t)
	mem.logs = []model.LoginLog{{ID: "l1", UserID: "u1", Email: "u1@example.com"}}

	resp, body := doJSON(t, server.Client(), http.MethodGet,
		server.URL+"/api/admin/logins/search?q=u1%40example.com", adminSecret, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)

	resp, _ = doJSON(t, server.Client(), http.MethodGet,
		server.URL+"/api/admin/logins/search", adminSecret, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// Full path through the stack: disable the app, watch a signed-in user get
// redirected to maintenance, block them, watch them get signed out.
func TestGatewayEndToEnd(t *testing.T) {
	t.Parallel()

	server, mem := newTestServer(t)
	client := noRedirectClient()
	token := userToken(t, "u7")

	get := func(path string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: authCookie, Value: token})
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	// Healthy app: the user browses freely.
	resp := get("/assistant")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode) // passed the gate, no page here

	// Operator flips the kill switch.
	adminResp, _ := doJSON(t, server.Client(), http.MethodPost, server.URL+"/api/admin/", adminSecret,
		map[string]string{"action": "toggle", "type": "app", "password": adminSecret})
	require.Equal(t, http.StatusOK, adminResp.StatusCode)

	resp = get("/assistant")
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, gate.MaintenancePath, resp.Header.Get("Location"))

	// Admin API stays reachable while the app is down.
	adminResp, _ = doJSON(t, server.Client(), http.MethodGet, server.URL+"/api/admin/", adminSecret, nil)
	assert.Equal(t, http.StatusOK, adminResp.StatusCode)

	// Back on, then block the user.
	adminResp, _ = doJSON(t, server.Client(), http.MethodPost, server.URL+"/api/admin/", adminSecret,
		map[string]string{"action": "toggle", "type": "app", "password": adminSecret})
	require.Equal(t, http.StatusOK, adminResp.StatusCode)

	adminResp, _ = doJSON(t, server.Client(), http.MethodPost, server.URL+"/api/admin/", adminSecret,
		map[string]string{"action": "block", "userId": "u7", "password": adminSecret})
	require.Equal(t, http.StatusOK, adminResp.StatusCode)

	resp = get("/assistant")
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, gate.BlockedPath, resp.Header.Get("Location"))
	assert.Contains(t, mem.revoked, "u7")
}
