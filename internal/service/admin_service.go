package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mycore-gateway/internal/encryption"
	"mycore-gateway/internal/hashing"
	"mycore-gateway/internal/model"
	"mycore-gateway/internal/util"
)

// StatusReport is everything the admin panel shows in one read.
type StatusReport struct {
	Settings     model.GlobalSettings `json:"settings"`
	Stats        model.LoginStats     `json:"stats"`
	LoginLogs    []model.LoginLog     `json:"loginLogs"`
	BlockedUsers []model.BlockEntry   `json:"blockedUsers"`
}

// AdminService is the control plane: it verifies the operator's shared
// secret and mutates the policy state the access gate reads. Reads degrade
// to safe defaults when storage is down; mutations fail closed so the
// operator always knows whether a change took effect.
type AdminService struct {
	settings    model.SettingsRepository
	blocks      model.BlockRepository
	logs        model.LoginLogRepository
	indexer     model.LoginIndexer
	publisher   model.EventPublisher
	invalidator model.PolicyInvalidator
	encryption  *encryption.EncryptionManager
	hasher      *hashing.Hasher
	secret      string
	logger      *zap.Logger
}

func NewAdminService(
	settings model.SettingsRepository,
	blocks model.BlockRepository,
	logs model.LoginLogRepository,
	indexer model.LoginIndexer,
	publisher model.EventPublisher,
	invalidator model.PolicyInvalidator,
	enc *encryption.EncryptionManager,
	hasher *hashing.Hasher,
	secret string,
	logger *zap.Logger,
) *AdminService {
	return &AdminService{
		settings:    settings,
		blocks:      blocks,
		logs:        logs,
		indexer:     indexer,
		publisher:   publisher,
		invalidator: invalidator,
		encryption:  enc,
		hasher:      hasher,
		secret:      secret,
		logger:      logger,
	}
}

// VerifySecret checks the caller-supplied secret. There is no admin session:
// every call re-verifies. An unset secret rejects everything.
func (s *AdminService) VerifySecret(candidate string) bool {
	ok, err := s.hasher.VerifySecret(candidate, s.secret)
	if err != nil {
		s.logger.Error("Admin secret verification failed", util.ErrorField(err))
		return false
	}
	return ok
}

// Status aggregates settings, recent logins, the block list, and login stats.
// Each branch that fails contributes its safe default instead of an error:
// the panel must render even when a collaborator is unreachable.
func (s *AdminService) Status(ctx context.Context) *StatusReport {
	report := &StatusReport{
		Settings:     model.DefaultSettings(time.Now().UTC()),
		LoginLogs:    []model.LoginLog{},
		BlockedUsers: []model.BlockEntry{},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		settings, err := s.settings.Get(gctx)
		if err != nil {
			s.logger.Warn("Status: settings read failed, using defaults", util.ErrorField(err))
			return nil
		}
		report.Settings = settings
		return nil
	})

	g.Go(func() error {
		logs, err := s.logs.Recent(gctx, 100)
		if err != nil {
			s.logger.Warn("Status: login log read failed, using empty list", util.ErrorField(err))
			return nil
		}
		report.LoginLogs = s.decryptLogs(gctx, logs)
		return nil
	})

	g.Go(func() error {
		blocked, err := s.blocks.List(gctx)
		if err != nil {
			s.logger.Warn("Status: block list read failed, using empty list", util.ErrorField(err))
			return nil
		}
		report.BlockedUsers = blocked
		return nil
	})

	g.Go(func() error {
		stats, err := s.logs.Stats(gctx, time.Now())
		if err != nil {
			s.logger.Warn("Status: stats query failed, using zeroes", util.ErrorField(err))
			return nil
		}
		report.Stats = stats
		return nil
	})

	// Branches swallow their own errors; Wait is for completion only.
	_ = g.Wait()

	if report.LoginLogs == nil {
		report.LoginLogs = []model.LoginLog{}
	}
	if report.BlockedUsers == nil {
		report.BlockedUsers = []model.BlockEntry{}
	}

	s.logger.Debug("Status report assembled",
		util.Time("uptime_start", report.Settings.UptimeStart),
		util.Int64("total_users", int64(report.Stats.TotalUsers)),
		util.Int("blocked_users", len(report.BlockedUsers)))
	return report
}

// ToggleApp flips the master kill switch and returns the new settings.
func (s *AdminService) ToggleApp(ctx context.Context) (model.GlobalSettings, error) {
	settings, err := s.settings.ToggleApp(ctx)
	if err != nil {
		return model.GlobalSettings{}, err
	}

	s.invalidatePolicy(ctx)
	s.audit(ctx, "toggle_app", "", settings.AppEnabled)

	s.logger.Info("App kill switch toggled",
		util.Bool("app_enabled", settings.AppEnabled))
	return settings, nil
}

// ToggleCore flips the assistant-only kill switch.
func (s *AdminService) ToggleCore(ctx context.Context) (model.GlobalSettings, error) {
	settings, err := s.settings.ToggleCore(ctx)
	if err != nil {
		return model.GlobalSettings{}, err
	}

	s.invalidatePolicy(ctx)
	s.audit(ctx, "toggle_core", "", settings.CoreEnabled)

	s.logger.Info("Core kill switch toggled",
		util.Bool("core_enabled", settings.CoreEnabled))
	return settings, nil
}

// Block marks a user as forbidden. Blocking twice is idempotent.
func (s *AdminService) Block(ctx context.Context, userID string) error {
	if err := s.blocks.Block(ctx, userID); err != nil {
		return err
	}

	s.invalidateUser(ctx, userID)
	s.audit(ctx, "block_user", userID, true)
	return nil
}

// Unblock lifts a block. Unblocking a never-blocked user succeeds.
func (s *AdminService) Unblock(ctx context.Context, userID string) error {
	if err := s.blocks.Unblock(ctx, userID); err != nil {
		return err
	}

	s.invalidateUser(ctx, userID)
	s.audit(ctx, "unblock_user", userID, false)
	return nil
}

// SearchLogins queries the login-log search index.
func (s *AdminService) SearchLogins(ctx context.Context, query string, limit int) ([]model.LoginLog, error) {
	logs, err := s.indexer.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return s.decryptLogs(ctx, logs), nil
}

func (s *AdminService) decryptLogs(ctx context.Context, logs []model.LoginLog) []model.LoginLog {
	if s.encryption == nil {
		return logs
	}
	for i := range logs {
		if email, err := s.encryption.DecryptField(ctx, logs[i].Email); err == nil {
			logs[i].Email = email
		}
		if ip, err := s.encryption.DecryptField(ctx, logs[i].IPAddress); err == nil {
			logs[i].IPAddress = ip
		}
	}
	return logs
}

// invalidatePolicy drops cached policy so the gate's next read sees the
// mutation. Cache failures only shorten freshness (the TTL still expires),
// so they are logged, not surfaced.
func (s *AdminService) invalidatePolicy(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.Warn("Failed to invalidate policy cache", util.ErrorField(err))
	}
}

func (s *AdminService) invalidateUser(ctx context.Context, userID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateUser(ctx, userID); err != nil {
		s.logger.Warn("Failed to invalidate user policy cache",
			util.String("user_id", userID),
			util.ErrorField(err))
	}
}

// audit publishes a best-effort record of the mutation; the mutation itself
// has already committed.
func (s *AdminService) audit(ctx context.Context, action, userID string, newValue bool) {
	if s.publisher == nil {
		return
	}
	event := &model.AdminEvent{
		ID:        uuid.New().String(),
		Action:    action,
		UserID:    userID,
		NewValue:  newValue,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishAdminEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish admin audit event",
			util.String("action", action),
			util.ErrorField(err))
	}
}
