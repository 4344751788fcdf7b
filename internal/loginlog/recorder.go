// Package loginlog records one entry per successful authentication and fans
// it out to the stores the admin panel reads from.
package loginlog

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mycore-gateway/internal/bucketing"
	"mycore-gateway/internal/encryption"
	"mycore-gateway/internal/model"
	"mycore-gateway/internal/util"
)

var (
	mobileRe = regexp.MustCompile(`(?i)mobile`)
	tabletRe = regexp.MustCompile(`(?i)tablet`)
)

// Recorder writes login records to ClickHouse and mirrors them, best effort,
// to the search index and the event bus. Only the ClickHouse write decides
// success: the log must exist even when the side channels are down.
type Recorder struct {
	logs       model.LoginLogRepository
	indexer    model.LoginIndexer
	publisher  model.EventPublisher
	sessions   model.SessionTracker
	buckets    *bucketing.BucketingManager
	encryption *encryption.EncryptionManager
	logger     *zap.Logger
}

// sessionTTL bounds how long a tracked session stays revocable.
const sessionTTL = 30 * 24 * time.Hour

func NewRecorder(
	logs model.LoginLogRepository,
	indexer model.LoginIndexer,
	publisher model.EventPublisher,
	sessions model.SessionTracker,
	buckets *bucketing.BucketingManager,
	enc *encryption.EncryptionManager,
	logger *zap.Logger,
) *Recorder {
	return &Recorder{
		logs:       logs,
		indexer:    indexer,
		publisher:  publisher,
		sessions:   sessions,
		buckets:    buckets,
		encryption: enc,
		logger:     logger,
	}
}

// Record builds and persists one login entry from the request context.
func (rec *Recorder) Record(ctx context.Context, userID, email string, r *http.Request) (*model.LoginLog, error) {
	if userID == "" {
		return nil, model.ErrInvalidInput
	}

	userAgent := r.Header.Get("User-Agent")
	if userAgent == "" {
		userAgent = "unknown"
	}

	entry := &model.LoginLog{
		ID:         uuid.New().String(),
		UserBucket: rec.buckets.GetUserBucket(userID),
		UserID:     userID,
		Email:      email,
		IPAddress:  ClientIP(r),
		DeviceType: ClassifyDevice(userAgent),
		ISP:        "Unknown", // needs an external lookup service
		UserAgent:  userAgent,
		CreatedAt:  time.Now().UTC(),
	}

	if rec.encryption != nil && rec.encryption.Enabled() {
		var err error
		if entry.Email, err = rec.encryption.EncryptField(ctx, entry.Email); err != nil {
			return nil, err
		}
		if entry.IPAddress, err = rec.encryption.EncryptField(ctx, entry.IPAddress); err != nil {
			return nil, err
		}
	}

	if err := rec.logs.Insert(ctx, entry); err != nil {
		return nil, err
	}

	if rec.indexer != nil {
		if err := rec.indexer.Index(ctx, entry); err != nil {
			rec.logger.Warn("Failed to index login log",
				util.String("id", entry.ID),
				util.ErrorField(err))
		}
	}
	if rec.publisher != nil {
		if err := rec.publisher.PublishLogin(ctx, entry); err != nil {
			rec.logger.Warn("Failed to publish login event",
				util.String("id", entry.ID),
				util.ErrorField(err))
		}
	}
	if rec.sessions != nil {
		if err := rec.sessions.Track(ctx, userID, entry.ID, sessionTTL); err != nil {
			rec.logger.Warn("Failed to track session",
				util.String("user_id", userID),
				util.ErrorField(err))
		}
	}

	return entry, nil
}

// ClassifyDevice buckets a user agent into Desktop, Mobile, or Tablet.
func ClassifyDevice(userAgent string) string {
	switch {
	case mobileRe.MatchString(userAgent):
		return "Mobile"
	case tabletRe.MatchString(userAgent):
		return "Tablet"
	default:
		return "Desktop"
	}
}

// ClientIP extracts the caller's address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if r.RemoteAddr != "" {
		host := r.RemoteAddr
		if idx := strings.LastIndex(host, ":"); idx > 0 {
			host = host[:idx]
		}
		return host
	}
	return "unknown"
}
