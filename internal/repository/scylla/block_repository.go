package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"mycore-gateway/internal/model"
	"mycore-gateway/internal/util"
)

// BlockRepository persists the per-user block list. Blocking is an idempotent
// upsert; unblocking deletes the row. Readers must treat a missing row and
// blocked=false the same.
type BlockRepository struct {
	client *ScyllaClient
}

var _ model.BlockRepository = (*BlockRepository)(nil)

func NewBlockRepository(client *ScyllaClient) *BlockRepository {
	return &BlockRepository{client: client}
}

func (r *BlockRepository) Block(ctx context.Context, userID string) error {
	if userID == "" {
		return model.ErrInvalidInput
	}

	query := r.client.Prepared.BlockUser.WithContext(ctx).Bind(userID, time.Now().UTC())
	if err := query.Exec(); err != nil {
		util.Error("Failed to block user",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to block user: %w", err)
	}

	util.Info("User blocked", zap.String("user_id", userID))
	return nil
}

// Unblock removes the block entry. Unblocking a user who was never blocked
// is a successful no-op.
func (r *BlockRepository) Unblock(ctx context.Context, userID string) error {
	if userID == "" {
		return model.ErrInvalidInput
	}

	query := r.client.Prepared.UnblockUser.WithContext(ctx).Bind(userID)
	if err := query.Exec(); err != nil {
		util.Error("Failed to unblock user",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to unblock user: %w", err)
	}

	util.Info("User unblocked", zap.String("user_id", userID))
	return nil
}

func (r *BlockRepository) IsBlocked(ctx context.Context, userID string) (bool, error) {
	var blocked bool

	query := r.client.Prepared.GetBlockEntry.WithContext(ctx).Bind(userID)
	err := query.Scan(&blocked)
	if err == gocql.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read block entry: %w", err)
	}
	return blocked, nil
}

func (r *BlockRepository) List(ctx context.Context) ([]model.BlockEntry, error) {
	iter := r.client.Prepared.ListBlockedUser.WithContext(ctx).Iter()

	var entries []model.BlockEntry
	var entry model.BlockEntry
	for iter.Scan(&entry.UserID, &entry.Blocked, &entry.BlockedAt) {
		if entry.Blocked {
			entries = append(entries, entry)
		}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list blocked users: %w", err)
	}
	return entries, nil
}
