package clickhouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mycore-gateway/internal/client"
	"mycore-gateway/internal/model"
	"mycore-gateway/internal/util"
)

// statusLogLimit caps the login-log list returned to the admin panel.
const statusLogLimit = 100

// LoginLogRepository stores append-only login records in ClickHouse and
// answers the admin panel's aggregate queries.
type LoginLogRepository struct {
	client *client.ClickHouseClient
}

var _ model.LoginLogRepository = (*LoginLogRepository)(nil)

func NewLoginLogRepository(ch *client.ClickHouseClient) *LoginLogRepository {
	return &LoginLogRepository{client: ch}
}

func (r *LoginLogRepository) Insert(ctx context.Context, entry *model.LoginLog) error {
	err := r.client.Exec(ctx, `
        INSERT INTO login_logs
            (id, user_bucket, user_id, email, ip_address, device_type, isp, user_agent, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserBucket, entry.UserID, entry.Email, entry.IPAddress,
		entry.DeviceType, entry.ISP, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		util.Error("Failed to insert login log",
			zap.String("user_id", entry.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to insert login log: %w", err)
	}
	return nil
}

// Recent returns the newest login records, newest first.
func (r *LoginLogRepository) Recent(ctx context.Context, limit int) ([]model.LoginLog, error) {
	if limit <= 0 || limit > statusLogLimit {
		limit = statusLogLimit
	}

	rows, err := r.client.QueryRows(ctx, `
        SELECT id, user_bucket, user_id, email, ip_address, device_type, isp, user_agent, created_at
        FROM login_logs
        ORDER BY created_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query login logs: %w", err)
	}
	defer rows.Close()

	var logs []model.LoginLog
	for rows.Next() {
		var (
			entry  model.LoginLog
			bucket int32
		)
		if err := rows.Scan(&entry.ID, &bucket, &entry.UserID, &entry.Email,
			&entry.IPAddress, &entry.DeviceType, &entry.ISP, &entry.UserAgent,
			&entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan login log: %w", err)
		}
		entry.UserBucket = int(bucket)
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate login logs: %w", err)
	}
	return logs, nil
}

// Stats aggregates login counts in one round trip. Today is bounded by local
// midnight; week and month are rolling windows off now.
func (r *LoginLogRepository) Stats(ctx context.Context, now time.Time) (model.LoginStats, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekAgo := now.Add(-7 * 24 * time.Hour)
	monthAgo := now.Add(-30 * 24 * time.Hour)

	var stats model.LoginStats
	row := r.client.QueryRow(ctx, `
        SELECT
            uniqExact(user_id),
            countIf(created_at >= ?),
            countIf(created_at >= ?),
            countIf(created_at >= ?)
        FROM login_logs`, midnight, weekAgo, monthAgo)

	if err := row.Scan(&stats.TotalUsers, &stats.Today, &stats.Week, &stats.Month); err != nil {
		return model.LoginStats{}, fmt.Errorf("failed to aggregate login stats: %w", err)
	}
	return stats, nil
}
