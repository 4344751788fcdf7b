package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded once from the environment.
type Config struct {
	Environment string

	Server        ServerConfig
	Admin         AdminConfig
	Identity      IdentityConfig
	Gate          GateConfig
	Logging       LoggingConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Clickhouse    ClickhouseConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	KMS           KMSConfig
	Bucketing     BucketingConfig
}

type ServerConfig struct {
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// AdminConfig configures the control-plane shared secret. The secret is
// compared per request; there is no admin session store.
type AdminConfig struct {
	Secret string
}

// IdentityConfig configures verification of the auth provider's JWTs.
type IdentityConfig struct {
	JWTSecret  string
	CookieName string
}

// GateConfig tunes the access-gate policy cache.
type GateConfig struct {
	CacheTTL time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
	LoginTopic string
}

type ElasticsearchConfig struct {
	URL        string
	Username   string
	Password   string
	LoginIndex string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

var (
	loaded *Config
	mu     sync.RWMutex
)

// LoadConfig reads configuration from the environment (and an optional .env
// file) and caches it for Get.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: envOr("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         envOrInt("PORT", 8080),
			TLSPort:      envOrInt("TLS_PORT", 8443),
			EnableTLS:    envOrBool("ENABLE_TLS", false),
			AutoCert:     envOrBool("AUTO_CERT", false),
			Domain:       envOr("DOMAIN", "localhost"),
			CertFile:     envOr("TLS_CERT_FILE", ""),
			KeyFile:      envOr("TLS_KEY_FILE", ""),
			AutoCertDir:  envOr("AUTOCERT_DIR", ".autocert"),
			Email:        envOr("AUTOCERT_EMAIL", ""),
			CORSOrigins:  parseCSV(envOr("CORS_ALLOWED_ORIGINS", "https://*")),
			ReadTimeout:  envOrDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: envOrDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  envOrDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Admin: AdminConfig{
			Secret: envOr("ADMIN_SECRET", ""),
		},
		Identity: IdentityConfig{
			JWTSecret:  envOr("AUTH_JWT_SECRET", ""),
			CookieName: envOr("AUTH_COOKIE_NAME", "mycore-auth-token"),
		},
		Gate: GateConfig{
			CacheTTL: envOrDuration("GATE_CACHE_TTL", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			URL:      envOr("REDIS_URL", "redis://localhost:6379"),
			Password: envOr("REDIS_PASSWORD", ""),
			DB:       envOrInt("REDIS_DB", 0),
			PoolSize: envOrInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Nodes:    parseCSV(envOr("SCYLLA_NODES", "localhost:9042")),
			Keyspace: envOr("SCYLLA_KEYSPACE", "mycore"),
			Username: envOr("SCYLLA_USERNAME", ""),
			Password: envOr("SCYLLA_PASSWORD", ""),
		},
		Clickhouse: ClickhouseConfig{
			URL:      envOr("CLICKHOUSE_URL", "http://localhost:8123"),
			Username: envOr("CLICKHOUSE_USERNAME", "default"),
			Password: envOr("CLICKHOUSE_PASSWORD", ""),
			Database: envOr("CLICKHOUSE_DATABASE", "mycore"),
		},
		Kafka: KafkaConfig{
			Brokers:    parseCSV(envOr("KAFKA_BROKERS", "localhost:9092")),
			AuditTopic: envOr("KAFKA_AUDIT_TOPIC", "admin.audit"),
			LoginTopic: envOr("KAFKA_LOGIN_TOPIC", "auth.logins"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:        envOr("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:   envOr("ELASTICSEARCH_USERNAME", ""),
			Password:   envOr("ELASTICSEARCH_PASSWORD", ""),
			LoginIndex: envOr("ELASTICSEARCH_LOGIN_INDEX", "login-logs"),
		},
		KMS: KMSConfig{
			Enabled: envOrBool("KMS_ENABLED", false),
			KeyID:   envOr("KMS_KEY_ID", ""),
			Region:  envOr("AWS_REGION", "us-east-1"),
		},
		Bucketing: BucketingConfig{
			UserBuckets:  envOrInt("USER_BUCKETS", 64),
			EventBuckets: envOrInt("EVENT_BUCKETS", 16),
		},
	}

	mu.Lock()
	loaded = cfg
	mu.Unlock()

	return cfg
}

// Get returns the last loaded configuration, loading it on first use.
func Get() *Config {
	mu.RLock()
	cfg := loaded
	mu.RUnlock()
	if cfg != nil {
		return cfg
	}
	return LoadConfig()
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if value := strings.TrimSpace(part); value != "" {
			items = append(items, value)
		}
	}
	return items
}
