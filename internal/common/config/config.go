package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Ledger        LedgerConfig            `mapstructure:"ledger"`
	Storage       StorageConfig           `mapstructure:"storage"`
	Token         TokenConfig             `mapstructure:"token"`
	Issuance      IssuanceConfig          `mapstructure:"issuance"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	HTTPAddress string `mapstructure:"http_address"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	LevelDB  LevelDBConfig  `mapstructure:"leveldb"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// GetURL returns the same connection as a postgres:// URL, the form the
// schema migrator expects.
func (p PostgresConfig) GetURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: url.Values{"sslmode": {p.SSLMode}}.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LevelDBConfig struct {
	Path string `mapstructure:"path"`
}

// Ledger drivers.
const (
	LedgerDriverPostgres = "postgres"
	LedgerDriverLevelDB  = "leveldb"
	LedgerDriverMemory   = "memory"
)

// LedgerConfig selects the certificate ledger backend.
type LedgerConfig struct {
	Driver string `mapstructure:"driver"`
	// CertificateValidity is added to the issue time to produce expireAt (hours).
	CertificateValidity int `mapstructure:"certificate_validity"`
}

// StorageConfig holds settings for the rendered document store.
type StorageConfig struct {
	Minio MinioConfig `mapstructure:"minio"`
	// PublicBaseURL, when set, resolves documents as <base>/<hash> instead of presigned links.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type MinioConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Bucket        string `mapstructure:"bucket"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	PresignExpiry int    `mapstructure:"presign_expiry"` // minutes
}

// TokenConfig carries the pre-shared secret for verification tokens.
type TokenConfig struct {
	Secret string `mapstructure:"secret"`
}

// Signer lock drivers.
const (
	LockDriverLocal = "local"
	LockDriverRedis = "redis"
)

// IssuanceConfig tunes the issuance pipeline.
type IssuanceConfig struct {
	StageTimeout   int    `mapstructure:"stage_timeout"` // milliseconds
	PrepareWorkers int    `mapstructure:"prepare_workers"`
	LockDriver     string `mapstructure:"lock_driver"`
	LockTTL        int    `mapstructure:"lock_ttl"` // milliseconds
}

// NotificationConfig holds settings for the certificate notifier.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"sms"`
	Webhook struct {
		Enabled bool   `mapstructure:"enabled"`
		URL     string `mapstructure:"url"`
	} `mapstructure:"webhook"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	QueueSize int `mapstructure:"queue_size"`
	Timeout   int `mapstructure:"timeout"` // milliseconds
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ObservabilityConfig holds tracing settings. An empty endpoint disables export.
type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// CertificateValidityDuration returns the ledger validity window.
func (l LedgerConfig) CertificateValidityDuration() time.Duration {
	return time.Duration(l.CertificateValidity) * time.Hour
}

// PresignExpiryDuration returns how long presigned document links stay valid.
func (m MinioConfig) PresignExpiryDuration() time.Duration {
	return time.Duration(m.PresignExpiry) * time.Minute
}
