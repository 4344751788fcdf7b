package loginlog

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mycore-gateway/internal/bucketing"
	"mycore-gateway/internal/config"
	"mycore-gateway/internal/model"
)

type fakeLogStore struct {
	inserted []model.LoginLog
	err      error
}

func (f *fakeLogStore) Insert(_ context.Context, entry *model.LoginLog) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, *entry)
	return nil
}

func (f *fakeLogStore) Recent(context.Context, int) ([]model.LoginLog, error) {
	return f.inserted, nil
}

func (f *fakeLogStore) Stats(context.Context, time.Time) (model.LoginStats, error) {
	return model.LoginStats{}, nil
}

type fakeLogIndexer struct {
	indexed []model.LoginLog
	err     error
}

func (f *fakeLogIndexer) Index(_ context.Context, entry *model.LoginLog) error {
	if f.err != nil {
		return f.err
	}
	f.indexed = append(f.indexed, *entry)
	return nil
}

func (f *fakeLogIndexer) Search(context.Context, string, int) ([]model.LoginLog, error) {
	return nil, nil
}

type fakeLoginPublisher struct {
	published []model.LoginLog
	err       error
}

func (f *fakeLoginPublisher) PublishAdminEvent(context.Context, *model.AdminEvent) error {
	return nil
}

func (f *fakeLoginPublisher) PublishLogin(_ context.Context, entry *model.LoginLog) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, *entry)
	return nil
}

type fakeTracker struct {
	tracked []string
}

func (f *fakeTracker) Track(_ context.Context, userID, _ string, _ time.Duration) error {
	f.tracked = append(f.tracked, userID)
	return nil
}

func newTestRecorder(store *fakeLogStore, indexer *fakeLogIndexer, pub *fakeLoginPublisher) *Recorder {
	buckets := bucketing.NewBucketingManager(&config.Config{
		Bucketing: config.BucketingConfig{UserBuckets: 64, EventBuckets: 16},
	})
	return NewRecorder(store, indexer, pub, &fakeTracker{}, buckets, nil, zap.NewNop())
}

func TestRecordPersistsAndFansOut(t *testing.T) {
	t.Parallel()

	store := &fakeLogStore{}
	indexer := &fakeLogIndexer{}
	pub := &fakeLoginPublisher{}
	rec := newTestRecorder(store, indexer, pub)

	r := httptest.NewRequest("POST", "/api/log-login", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	entry, err := rec.Record(context.Background(), "u1", "u1@example.com", r)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "u1", entry.UserID)
	assert.Equal(t, "203.0.113.9", entry.IPAddress)
	assert.Equal(t, "Desktop", entry.DeviceType)
	assert.False(t, entry.CreatedAt.IsZero())

	require.Len(t, store.inserted, 1)
	require.Len(t, indexer.indexed, 1)
	require.Len(t, pub.published, 1)
}

func TestRecordRequiresUserID(t *testing.T) {
	t.Parallel()

	rec := newTestRecorder(&fakeLogStore{}, &fakeLogIndexer{}, &fakeLoginPublisher{})
	r := httptest.NewRequest("POST", "/api/log-login", nil)

	_, err := rec.Record(context.Background(), "", "x@example.com", r)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

// ClickHouse decides success; search index and event bus are best-effort.
func TestRecordStorageErrorFails(t *testing.T) {
	t.Parallel()

	store := &fakeLogStore{err: errors.New("clickhouse down")}
	rec := newTestRecorder(store, &fakeLogIndexer{}, &fakeLoginPublisher{})
	r := httptest.NewRequest("POST", "/api/log-login", nil)

	_, err := rec.Record(context.Background(), "u1", "", r)
	assert.Error(t, err)
}

func TestRecordSideChannelErrorsTolerated(t *testing.T) {
	t.Parallel()

	store := &fakeLogStore{}
	indexer := &fakeLogIndexer{err: errors.New("es down")}
	pub := &fakeLoginPublisher{err: errors.New("kafka down")}
	rec := newTestRecorder(store, indexer, pub)
	r := httptest.NewRequest("POST", "/api/log-login", nil)

	_, err := rec.Record(context.Background(), "u1", "", r)
	require.NoError(t, err)
	require.Len(t, store.inserted, 1)
}

func TestClassifyDevice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0", "Desktop"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Safari/605.1.15", "Desktop"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148", "Mobile"},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Safari/537.36", "Mobile"},
		{"Mozilla/5.0 (Linux; Android 14; SM-X910) Tablet Safari/537.36", "Tablet"},
		// A user agent carrying both tokens counts as Mobile, not Tablet.
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) Mobile/15E148 Tablet Safari", "Mobile"},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) Safari/605.1.15", "Desktop"},
		{"curl/8.4.0", "Desktop"},
		{"unknown", "Desktop"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ClassifyDevice(tc.ua), tc.ua)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(r))

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", ClientIP(r))

	r = httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.4:51234"
	assert.Equal(t, "192.0.2.4", ClientIP(r))
}
