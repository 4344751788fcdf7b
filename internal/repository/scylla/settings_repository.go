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

// toggleRetries bounds CAS retries when two admins flip the same flag at once.
const toggleRetries = 3

// SettingsRepository persists the app_settings singleton row.
type SettingsRepository struct {
	client *ScyllaClient
}

var _ model.SettingsRepository = (*SettingsRepository)(nil)

func NewSettingsRepository(client *ScyllaClient) *SettingsRepository {
	return &SettingsRepository{client: client}
}

// Get reads the singleton row, durably creating the default (everything
// enabled) on first read.
func (r *SettingsRepository) Get(ctx context.Context) (model.GlobalSettings, error) {
	var settings model.GlobalSettings

	query := r.client.Prepared.GetSettings.WithContext(ctx).Bind(model.SettingsID)
	err := query.Scan(&settings.AppEnabled, &settings.CoreEnabled, &settings.UptimeStart)
	if err == nil {
		return settings, nil
	}
	if err != gocql.ErrNotFound {
		return model.GlobalSettings{}, fmt.Errorf("failed to read app settings: %w", err)
	}

	defaults := model.DefaultSettings(time.Now().UTC())
	create := r.client.Prepared.CreateSettings.WithContext(ctx).
		Bind(model.SettingsID, defaults.AppEnabled, defaults.CoreEnabled, defaults.UptimeStart)

	applied, err := create.MapScanCAS(map[string]interface{}{})
	if err != nil {
		return model.GlobalSettings{}, fmt.Errorf("failed to create default app settings: %w", err)
	}
	if !applied {
		// Someone else created the row between our read and write.
		query = r.client.Prepared.GetSettings.WithContext(ctx).Bind(model.SettingsID)
		if err := query.Scan(&settings.AppEnabled, &settings.CoreEnabled, &settings.UptimeStart); err != nil {
			return model.GlobalSettings{}, fmt.Errorf("failed to re-read app settings: %w", err)
		}
		return settings, nil
	}

	util.Info("Created default app settings row")
	return defaults, nil
}

// toggledApp computes the settings after flipping the master switch at now.
// Enabling resets UptimeStart to now; disabling leaves it unchanged.
func toggledApp(current model.GlobalSettings, now time.Time) model.GlobalSettings {
	current.AppEnabled = !current.AppEnabled
	if current.AppEnabled {
		current.UptimeStart = now
	}
	return current
}

// toggledCore computes the settings after flipping the assistant-only
// switch. UptimeStart is never touched.
func toggledCore(current model.GlobalSettings) model.GlobalSettings {
	current.CoreEnabled = !current.CoreEnabled
	return current
}

// ToggleApp flips the master kill switch with a compare-and-swap.
func (r *SettingsRepository) ToggleApp(ctx context.Context) (model.GlobalSettings, error) {
	for attempt := 0; attempt < toggleRetries; attempt++ {
		current, err := r.Get(ctx)
		if err != nil {
			return model.GlobalSettings{}, err
		}

		next := toggledApp(current, time.Now().UTC())
		if next.AppEnabled {
			query := r.client.Prepared.EnableApp.WithContext(ctx).Bind(next.UptimeStart, model.SettingsID)
			applied, err := query.MapScanCAS(map[string]interface{}{})
			if err != nil {
				return model.GlobalSettings{}, fmt.Errorf("failed to enable app: %w", err)
			}
			if applied {
				return next, nil
			}
		} else {
			query := r.client.Prepared.DisableApp.WithContext(ctx).Bind(model.SettingsID)
			applied, err := query.MapScanCAS(map[string]interface{}{})
			if err != nil {
				return model.GlobalSettings{}, fmt.Errorf("failed to disable app: %w", err)
			}
			if applied {
				return next, nil
			}
		}

		util.Warn("App toggle lost CAS race, retrying", zap.Int("attempt", attempt+1))
	}
	return model.GlobalSettings{}, fmt.Errorf("app toggle contention: retries exhausted")
}

// ToggleCore flips the assistant-only kill switch. It never touches
// uptime_start.
func (r *SettingsRepository) ToggleCore(ctx context.Context) (model.GlobalSettings, error) {
	for attempt := 0; attempt < toggleRetries; attempt++ {
		current, err := r.Get(ctx)
		if err != nil {
			return model.GlobalSettings{}, err
		}

		next := toggledCore(current)
		query := r.client.Prepared.SetCoreEnabled.WithContext(ctx).
			Bind(next.CoreEnabled, model.SettingsID, current.CoreEnabled)
		applied, err := query.MapScanCAS(map[string]interface{}{})
		if err != nil {
			return model.GlobalSettings{}, fmt.Errorf("failed to toggle core: %w", err)
		}
		if applied {
			return next, nil
		}

		util.Warn("Core toggle lost CAS race, retrying", zap.Int("attempt", attempt+1))
	}
	return model.GlobalSettings{}, fmt.Errorf("core toggle contention: retries exhausted")
}
