package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"mycore-gateway/internal/client"
	"mycore-gateway/internal/model"
	"mycore-gateway/internal/util"
)

const (
	settingsKey     = "policy:settings"
	blockKeyPrefix  = "policy:blocked:"
	blockKeyPattern = "policy:blocked:*"
)

// PolicyCache serves gate policy reads from Redis with a short TTL, falling
// back to the Scylla repositories on a miss. Control-plane mutations
// invalidate it so the next gate evaluation observes the change.
type PolicyCache struct {
	redis    *client.RedisClient
	settings model.SettingsRepository
	blocks   model.BlockRepository
	ttl      time.Duration
}

var (
	_ model.PolicySource      = (*PolicyCache)(nil)
	_ model.PolicyInvalidator = (*PolicyCache)(nil)
)

func NewPolicyCache(redisClient *client.RedisClient, settings model.SettingsRepository, blocks model.BlockRepository, ttl time.Duration) *PolicyCache {
	return &PolicyCache{
		redis:    redisClient,
		settings: settings,
		blocks:   blocks,
		ttl:      ttl,
	}
}

// Settings returns the cached GlobalSettings snapshot, reading through to
// storage on a miss. A cache failure degrades to a direct storage read, not
// an error.
func (c *PolicyCache) Settings(ctx context.Context) (model.GlobalSettings, error) {
	if cached, err := c.redis.Get(ctx, settingsKey); err == nil {
		var settings model.GlobalSettings
		if err := json.Unmarshal([]byte(cached), &settings); err == nil {
			return settings, nil
		}
	} else if !client.IsNil(err) {
		util.Debug("Policy cache read failed, falling back to storage", zap.Error(err))
	}

	settings, err := c.settings.Get(ctx)
	if err != nil {
		return model.GlobalSettings{}, err
	}

	// SetNX so a slow refill cannot clobber a value another reader already
	// repopulated after a control-plane invalidation.
	if raw, err := json.Marshal(settings); err == nil {
		if _, err := c.redis.SetNX(ctx, settingsKey, raw, c.ttl); err != nil {
			util.Debug("Policy cache write failed", zap.Error(err))
		}
	}
	return settings, nil
}

// IsBlocked returns the cached block flag for one user, reading through on a
// miss.
func (c *PolicyCache) IsBlocked(ctx context.Context, userID string) (bool, error) {
	key := blockKeyPrefix + userID

	if cached, err := c.redis.Get(ctx, key); err == nil {
		if blocked, err := strconv.ParseBool(cached); err == nil {
			return blocked, nil
		}
	} else if !client.IsNil(err) {
		util.Debug("Block cache read failed, falling back to storage", zap.Error(err))
	}

	blocked, err := c.blocks.IsBlocked(ctx, userID)
	if err != nil {
		return false, err
	}

	if _, err := c.redis.SetNX(ctx, key, strconv.FormatBool(blocked), c.ttl); err != nil {
		util.Debug("Block cache write failed", zap.Error(err))
	}
	return blocked, nil
}

// Invalidate drops all cached policy state.
func (c *PolicyCache) Invalidate(ctx context.Context) error {
	if err := c.redis.Del(ctx, settingsKey); err != nil {
		return fmt.Errorf("failed to invalidate settings cache: %w", err)
	}

	keys, err := c.redis.Scan(ctx, blockKeyPattern, 100)
	if err != nil {
		return fmt.Errorf("failed to scan block cache keys: %w", err)
	}
	if len(keys) > 0 {
		if err := c.redis.Del(ctx, keys...); err != nil {
			return fmt.Errorf("failed to invalidate block cache: %w", err)
		}
	}
	return nil
}

// InvalidateUser drops one user's cached block flag.
func (c *PolicyCache) InvalidateUser(ctx context.Context, userID string) error {
	if err := c.redis.Del(ctx, blockKeyPrefix+userID); err != nil {
		return fmt.Errorf("failed to invalidate block cache for user: %w", err)
	}
	return nil
}
