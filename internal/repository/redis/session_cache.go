package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mycore-gateway/internal/client"
	"mycore-gateway/internal/model"
	"mycore-gateway/internal/util"
)

const sessionKeyPrefix = "session:user:"

// SessionCache tracks live user sessions. The auth provider owns session
// issuance; this cache only mirrors enough state to terminate a session when
// the gate redirects a blocked identity.
type SessionCache struct {
	redis *client.RedisClient
}

var _ model.SessionRevoker = (*SessionCache)(nil)

func NewSessionCache(redisClient *client.RedisClient) *SessionCache {
	return &SessionCache{redis: redisClient}
}

// Track records a session sighting so Revoke can find it later. Repeated
// sightings of the same session keep the first-seen timestamp and slide the
// expiry forward.
func (c *SessionCache) Track(ctx context.Context, userID, sessionID string, ttl time.Duration) error {
	key := sessionKeyPrefix + userID + ":" + sessionID
	created, err := c.redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl)
	if err != nil {
		return fmt.Errorf("failed to track session: %w", err)
	}
	if !created {
		if err := c.redis.Expire(ctx, key, ttl); err != nil {
			return fmt.Errorf("failed to refresh session ttl: %w", err)
		}
	}
	return nil
}

// Revoke deletes every tracked session for the user. A user with no tracked
// sessions revokes successfully.
func (c *SessionCache) Revoke(ctx context.Context, userID string) error {
	keys, err := c.redis.Scan(ctx, sessionKeyPrefix+userID+":*", 100)
	if err != nil {
		return fmt.Errorf("failed to scan sessions: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := c.redis.Del(ctx, keys...); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	util.Info("Sessions revoked",
		zap.String("user_id", userID),
		zap.Int("count", len(keys)))
	return nil
}
