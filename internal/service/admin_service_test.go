package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mycore-gateway/internal/hashing"
	"mycore-gateway/internal/model"
)

type fakeSettings struct {
	current   model.GlobalSettings
	err       error
	toggleErr error
}

func (f *fakeSettings) Get(context.Context) (model.GlobalSettings, error) {
	if f.err != nil {
		return model.GlobalSettings{}, f.err
	}
	return f.current, nil
}

func (f *fakeSettings) ToggleApp(context.Context) (model.GlobalSettings, error) {
	if f.toggleErr != nil {
		return model.GlobalSettings{}, f.toggleErr
	}
	f.current.AppEnabled = !f.current.AppEnabled
	if f.current.AppEnabled {
		f.current.UptimeStart = time.Now().UTC()
	}
	return f.current, nil
}

func (f *fakeSettings) ToggleCore(context.Context) (model.GlobalSettings, error) {
	if f.toggleErr != nil {
		return model.GlobalSettings{}, f.toggleErr
	}
	f.current.CoreEnabled = !f.current.CoreEnabled
	return f.current, nil
}

type fakeBlocks struct {
	entries map[string]bool
	err     error
}

func (f *fakeBlocks) Block(_ context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	if userID == "" {
		return model.ErrInvalidInput
	}
	f.entries[userID] = true
	return nil
}

func (f *fakeBlocks) Unblock(_ context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.entries, userID)
	return nil
}

func (f *fakeBlocks) IsBlocked(_ context.Context, userID string) (bool, error) {
	return f.entries[userID], f.err
}

func (f *fakeBlocks) List(context.Context) ([]model.BlockEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.BlockEntry
	for id := range f.entries {
		out = append(out, model.BlockEntry{UserID: id, Blocked: true})
	}
	return out, nil
}

type fakeLogs struct {
	logs  []model.LoginLog
	stats model.LoginStats
	err   error
}

func (f *fakeLogs) Insert(_ context.Context, entry *model.LoginLog) error {
	if f.err != nil {
		return f.err
	}
	f.logs = append(f.logs, *entry)
	return nil
}

func (f *fakeLogs) Recent(_ context.Context, limit int) ([]model.LoginLog, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > len(f.logs) {
		limit = len(f.logs)
	}
	return f.logs[:limit], nil
}

func (f *fakeLogs) Stats(context.Context, time.Time) (model.LoginStats, error) {
	if f.err != nil {
		return model.LoginStats{}, f.err
	}
	return f.stats, nil
}

type fakeIndexer struct {
	indexed []model.LoginLog
	results []model.LoginLog
	err     error
}

func (f *fakeIndexer) Index(_ context.Context, entry *model.LoginLog) error {
	if f.err != nil {
		return f.err
	}
	f.indexed = append(f.indexed, *entry)
	return nil
}

func (f *fakeIndexer) Search(context.Context, string, int) ([]model.LoginLog, error) {
	return f.results, f.err
}

type fakePublisher struct {
	adminEvents []model.AdminEvent
	logins      []model.LoginLog
	err         error
}

func (f *fakePublisher) PublishAdminEvent(_ context.Context, event *model.AdminEvent) error {
	if f.err != nil {
		return f.err
	}
	f.adminEvents = append(f.adminEvents, *event)
	return nil
}

func (f *fakePublisher) PublishLogin(_ context.Context, entry *model.LoginLog) error {
	if f.err != nil {
		return f.err
	}
	f.logins = append(f.logins, *entry)
	return nil
}

type fakeInvalidator struct {
	global int
	users  []string
}

func (f *fakeInvalidator) Invalidate(context.Context) error {
	f.global++
	return nil
}

func (f *fakeInvalidator) InvalidateUser(_ context.Context, userID string) error {
	f.users = append(f.users, userID)
	return nil
}

type deps struct {
	settings    *fakeSettings
	blocks      *fakeBlocks
	logs        *fakeLogs
	indexer     *fakeIndexer
	publisher   *fakePublisher
	invalidator *fakeInvalidator
}

func newTestService(secret string) (*AdminService, *deps) {
	d := &deps{
		settings:    &fakeSettings{current: model.DefaultSettings(time.Now().UTC())},
		blocks:      &fakeBlocks{entries: map[string]bool{}},
		logs:        &fakeLogs{},
		indexer:     &fakeIndexer{},
		publisher:   &fakePublisher{},
		invalidator: &fakeInvalidator{},
	}
	svc := NewAdminService(
		d.settings, d.blocks, d.logs, d.indexer, d.publisher, d.invalidator,
		nil, hashing.NewHasher(hashing.DefaultParams()), secret, zap.NewNop(),
	)
	return svc, d
}

func TestVerifySecret(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService("hunter2")
	assert.True(t, svc.VerifySecret("hunter2"))
	assert.False(t, svc.VerifySecret("wrong"))
	assert.False(t, svc.VerifySecret(""))
}

func TestVerifySecretUnsetRejectsEverything(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService("")
	assert.False(t, svc.VerifySecret(""))
	assert.False(t, svc.VerifySecret("anything"))
}

func TestVerifySecretArgon2Hash(t *testing.T) {
	t.Parallel()

	hasher := hashing.NewHasher(hashing.DefaultParams())
	encoded, err := hasher.HashSecret("hunter2")
	require.NoError(t, err)

	svc, _ := newTestService(encoded)
	assert.True(t, svc.VerifySecret("hunter2"))
	assert.False(t, svc.VerifySecret("wrong"))
}

func TestToggleAppInvalidatesAndAudits(t *testing.T) {
	t.Parallel()

	svc, d := newTestService("s")
	ctx := context.Background()

	settings, err := svc.ToggleApp(ctx)
	require.NoError(t, err)
	assert.False(t, settings.AppEnabled)
	assert.Equal(t, 1, d.invalidator.global)
	require.Len(t, d.publisher.adminEvents, 1)
	assert.Equal(t, "toggle_app", d.publisher.adminEvents[0].Action)
	assert.False(t, d.publisher.adminEvents[0].NewValue)

	settings, err = svc.ToggleApp(ctx)
	require.NoError(t, err)
	assert.True(t, settings.AppEnabled)
	assert.Equal(t, 2, d.invalidator.global)
}

func TestToggleCoreLeavesAppAlone(t *testing.T) {
	t.Parallel()

	svc, d := newTestService("s")
	settings, err := svc.ToggleCore(context.Background())
	require.NoError(t, err)
	assert.False(t, settings.CoreEnabled)
	assert.True(t, settings.AppEnabled)
	require.Len(t, d.publisher.adminEvents, 1)
	assert.Equal(t, "toggle_core", d.publisher.adminEvents[0].Action)
}

func TestToggleUptimeSemantics(t *testing.T) {
	t.Parallel()

	svc, d := newTestService("s")
	ctx := context.Background()
	started := time.Now().UTC().Add(-time.Hour)
	d.settings.current.UptimeStart = started

	// Disabling leaves the last uptime start in place.
	settings, err := svc.ToggleApp(ctx)
	require.NoError(t, err)
	assert.False(t, settings.AppEnabled)
	assert.Equal(t, started, settings.UptimeStart)

	// The assistant switch never touches uptime.
	settings, err = svc.ToggleCore(ctx)
	require.NoError(t, err)
	assert.Equal(t, started, settings.UptimeStart)

	// Re-enabling restarts the clock.
	settings, err = svc.ToggleApp(ctx)
	require.NoError(t, err)
	assert.True(t, settings.AppEnabled)
	assert.True(t, settings.UptimeStart.After(started))
}

func TestToggleFailsClosed(t *testing.T) {
	t.Parallel()

	svc, d := newTestService("s")
	d.settings.toggleErr = errors.New("scylla down")

	_, err := svc.ToggleApp(context.Background())
	assert.Error(t, err)
	assert.Zero(t, d.invalidator.global)
	assert.Empty(t, d.publisher.adminEvents)
}

func TestBlockAndUnblock(t *testing.T) {
	t.Parallel()

	svc, d := newTestService("s")
	ctx := context.Background()

	require.NoError(t, svc.Block(ctx, "u1"))
	assert.True(t, d.blocks.entries["u1"])
	assert.Equal(t, []string{"u1"}, d.invalidator.users)

	// Blocking twice is idempotent.
	require.NoError(t, svc.Block(ctx, "u1"))

	require.NoError(t, svc.Unblock(ctx, "u1"))
	assert.False(t, d.blocks.entries["u1"])

	// Unblocking a never-blocked user succeeds.
	require.NoError(t, svc.Unblock(ctx, "ghost"))
}

func TestAuditFailureDoesNotFailMutation(t *testing.T) {
	t.Parallel()

	svc, d := newTestService("s")
	d.publisher.err = errors.New("kafka down")

	require.NoError(t, svc.Block(context.Background(), "u1"))
	assert.True(t, d.blocks.entries["u1"])
}

func TestStatusAggregates(t *testing.T) {
	t.Parallel()

	svc, d := newTestService("s")
	d.settings.current.AppEnabled = false
	d.blocks.entries["u9"] = true
	d.logs.logs = []model.LoginLog{{ID: "l1", UserID: "u1"}}
	d.logs.stats = model.LoginStats{TotalUsers: 3, Today: 1, Week: 2, Month: 3}

	report := svc.Status(context.Background())
	assert.False(t, report.Settings.AppEnabled)
	require.Len(t, report.LoginLogs, 1)
	require.Len(t, report.BlockedUsers, 1)
	assert.Equal(t, uint64(3), report.Stats.TotalUsers)
}

// Status never errors: when every collaborator is down the panel still gets
// enabled settings, empty lists, and zero stats.
func TestStatusDegradesToSafeDefaults(t *testing.T) {
	t.Parallel()

	svc, d := newTestService("s")
	d.settings.err = errors.New("down")
	d.blocks.err = errors.New("down")
	d.logs.err = errors.New("down")

	report := svc.Status(context.Background())
	assert.True(t, report.Settings.AppEnabled)
	assert.True(t, report.Settings.CoreEnabled)
	assert.NotNil(t, report.LoginLogs)
	assert.Empty(t, report.LoginLogs)
	assert.NotNil(t, report.BlockedUsers)
	assert.Empty(t, report.BlockedUsers)
	assert.Equal(t, model.LoginStats{}, report.Stats)
}

func TestSearchLogins(t *testing.T) {
	t.Parallel()

	svc, d := newTestService("s")
	d.indexer.results = []model.LoginLog{{ID: "l1", Email: "a@example.com"}}

	logs, err := svc.SearchLogins(context.Background(), "a@example.com", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "l1", logs[0].ID)

	d.indexer.err = errors.New("es down")
	_, err = svc.SearchLogins(context.Background(), "x", 10)
	assert.Error(t, err)
}
