package model

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by repositories and services.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
)

// SettingsID is the fixed key of the single app_settings row.
const SettingsID = 1

// -------------------- GLOBAL SETTINGS --------------------

// GlobalSettings is the singleton policy record read by the access gate.
// AppEnabled is the master kill switch; CoreEnabled disables only the
// assistant feature area. UptimeStart is reset whenever AppEnabled flips
// back to true and is used for display only.
type GlobalSettings struct {
	AppEnabled  bool      `json:"appEnabled" db:"app_enabled"`
	CoreEnabled bool      `json:"coreEnabled" db:"core_enabled"`
	UptimeStart time.Time `json:"uptimeStart" db:"uptime_start"`
}

// DefaultSettings is what a missing app_settings row means: everything on.
func DefaultSettings(now time.Time) GlobalSettings {
	return GlobalSettings{AppEnabled: true, CoreEnabled: true, UptimeStart: now}
}

// -------------------- BLOCK LIST --------------------

// BlockEntry marks one user as forbidden. A missing row and Blocked=false
// are equivalent; only Blocked=true means blocked.
type BlockEntry struct {
	UserID    string    `json:"userId" db:"user_id"`
	Blocked   bool      `json:"blocked" db:"blocked"`
	BlockedAt time.Time `json:"blockedAt" db:"blocked_at"`
}

// -------------------- LOGIN LOG --------------------

// LoginLog is one append-only record per successful authentication.
type LoginLog struct {
	ID         string    `json:"id" db:"id"`
	UserBucket int       `json:"userBucket" db:"user_bucket"`
	UserID     string    `json:"userId" db:"user_id"`
	Email      string    `json:"email" db:"email"`
	IPAddress  string    `json:"ipAddress" db:"ip_address"`
	DeviceType string    `json:"deviceType" db:"device_type"`
	ISP        string    `json:"isp" db:"isp"`
	UserAgent  string    `json:"userAgent" db:"user_agent"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// LoginStats aggregates login activity for the admin panel. Today is
// bounded by local midnight; Week and Month are rolling windows.
type LoginStats struct {
	TotalUsers uint64 `json:"totalUsers"`
	Today      uint64 `json:"today"`
	Week       uint64 `json:"week"`
	Month      uint64 `json:"month"`
}

// AdminEvent is published to the audit topic for every control-plane mutation.
type AdminEvent struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	UserID    string    `json:"user_id,omitempty"`
	NewValue  bool      `json:"new_value,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// -------------------- REPOSITORY INTERFACES --------------------

// SettingsRepository persists the GlobalSettings singleton. Get creates the
// default row on first read; toggles use an atomic conditional update so
// concurrent flips never lose writes.
type SettingsRepository interface {
	Get(ctx context.Context) (GlobalSettings, error)
	ToggleApp(ctx context.Context) (GlobalSettings, error)
	ToggleCore(ctx context.Context) (GlobalSettings, error)
}

// BlockRepository persists the per-user block list.
type BlockRepository interface {
	Block(ctx context.Context, userID string) error
	Unblock(ctx context.Context, userID string) error
	IsBlocked(ctx context.Context, userID string) (bool, error)
	List(ctx context.Context) ([]BlockEntry, error)
}

// LoginLogRepository stores and aggregates append-only login records.
type LoginLogRepository interface {
	Insert(ctx context.Context, entry *LoginLog) error
	Recent(ctx context.Context, limit int) ([]LoginLog, error)
	Stats(ctx context.Context, now time.Time) (LoginStats, error)
}

// -------------------- CACHE INTERFACES --------------------

// PolicySource is what the access gate reads on every request. Implementations
// may cache; callers treat any error as "no policy" (fail open).
type PolicySource interface {
	Settings(ctx context.Context) (GlobalSettings, error)
	IsBlocked(ctx context.Context, userID string) (bool, error)
}

// PolicyInvalidator drops cached policy state after a control-plane mutation.
type PolicyInvalidator interface {
	Invalidate(ctx context.Context) error
	InvalidateUser(ctx context.Context, userID string) error
}

// SessionRevoker terminates a user's session; invoked when the gate redirects
// a blocked identity.
type SessionRevoker interface {
	Revoke(ctx context.Context, userID string) error
}

// SessionTracker records a session sighting so a later Revoke can find it.
type SessionTracker interface {
	Track(ctx context.Context, userID, sessionID string, ttl time.Duration) error
}

// -------------------- EVENT INTERFACES --------------------

// EventPublisher fans control-plane and login events out to the message bus.
type EventPublisher interface {
	PublishAdminEvent(ctx context.Context, event *AdminEvent) error
	PublishLogin(ctx context.Context, entry *LoginLog) error
}

// LoginIndexer mirrors login records into the search index.
type LoginIndexer interface {
	Index(ctx context.Context, entry *LoginLog) error
	Search(ctx context.Context, query string, limit int) ([]LoginLog, error)
}
