package service

import (
	"go.uber.org/zap"

	"mycore-gateway/internal/encryption"
	"mycore-gateway/internal/hashing"
	"mycore-gateway/internal/model"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	settings    model.SettingsRepository
	blocks      model.BlockRepository
	logs        model.LoginLogRepository
	indexer     model.LoginIndexer
	publisher   model.EventPublisher
	invalidator model.PolicyInvalidator
	encryption  *encryption.EncryptionManager
	hasher      *hashing.Hasher
	adminSecret string
	logger      *zap.Logger

	adminService *AdminService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	settings model.SettingsRepository,
	blocks model.BlockRepository,
	logs model.LoginLogRepository,
	indexer model.LoginIndexer,
	publisher model.EventPublisher,
	invalidator model.PolicyInvalidator,
	enc *encryption.EncryptionManager,
	hasher *hashing.Hasher,
	adminSecret string,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		settings:    settings,
		blocks:      blocks,
		logs:        logs,
		indexer:     indexer,
		publisher:   publisher,
		invalidator: invalidator,
		encryption:  enc,
		hasher:      hasher,
		adminSecret: adminSecret,
		logger:      logger,
	}
}

// AdminService returns the admin service instance (singleton)
func (f *ServiceFactory) AdminService() *AdminService {
	if f.adminService == nil {
		f.adminService = NewAdminService(
			f.settings,
			f.blocks,
			f.logs,
			f.indexer,
			f.publisher,
			f.invalidator,
			f.encryption,
			f.hasher,
			f.adminSecret,
			f.logger,
		)
	}
	return f.adminService
}
