package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"mycore-gateway/internal/config"
	"mycore-gateway/internal/util"
)

// PreparedStatements holds the statements the policy repositories execute.
// Toggles use lightweight transactions so a read-modify-write cannot lose a
// concurrent toggle.
type PreparedStatements struct {
	GetSettings     *gocql.Query
	CreateSettings  *gocql.Query
	EnableApp       *gocql.Query
	DisableApp      *gocql.Query
	SetCoreEnabled  *gocql.Query
	BlockUser       *gocql.Query
	UnblockUser     *gocql.Query
	GetBlockEntry   *gocql.Query
	ListBlockedUser *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 util.GetEnv("SCYLLA_CA_FILE", "/root/certs/ca.pem"),
			CertPath:               util.GetEnv("SCYLLA_CERT_FILE", "/root/certs/server.pem"),
			KeyPath:                util.GetEnv("SCYLLA_KEY_FILE", "/root/certs/server.key"),
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.GetSettings = s.Session.Query(`
        SELECT app_enabled, core_enabled, uptime_start
        FROM app_settings WHERE id = ?`)

	prepared.CreateSettings = s.Session.Query(`
        INSERT INTO app_settings (id, app_enabled, core_enabled, uptime_start)
        VALUES (?, ?, ?, ?) IF NOT EXISTS`)

	// Enabling resets uptime_start; disabling leaves it untouched.
	prepared.EnableApp = s.Session.Query(`
        UPDATE app_settings SET app_enabled = true, uptime_start = ?
        WHERE id = ? IF app_enabled = false`)

	prepared.DisableApp = s.Session.Query(`
        UPDATE app_settings SET app_enabled = false
        WHERE id = ? IF app_enabled = true`)

	prepared.SetCoreEnabled = s.Session.Query(`
        UPDATE app_settings SET core_enabled = ?
        WHERE id = ? IF core_enabled = ?`)

	prepared.BlockUser = s.Session.Query(`
        INSERT INTO blocked_users (user_id, blocked, blocked_at)
        VALUES (?, true, ?)`)

	prepared.UnblockUser = s.Session.Query(`
        DELETE FROM blocked_users WHERE user_id = ?`)

	prepared.GetBlockEntry = s.Session.Query(`
        SELECT blocked FROM blocked_users WHERE user_id = ?`)

	prepared.ListBlockedUser = s.Session.Query(`
        SELECT user_id, blocked, blocked_at FROM blocked_users`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}
