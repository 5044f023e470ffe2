package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Ledger       LedgerConfig
	Receivables  ReceivablesConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.App.Location(); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvTimezone, err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"LENSDIST_APP_ENV" required:"true"`
	Port         string   `envconfig:"LENSDIST_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"LENSDIST_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"LENSDIST_LOG_FORMAT"`
	LogWarnStack bool     `envconfig:"LENSDIST_LOG_WARN_STACK" default:"false"`
	Timezone     string   `envconfig:"LENSDIST_TIMEZONE" default:"Asia/Seoul"`
	CORSOrigins  []string `envconfig:"LENSDIST_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// Location resolves the business timezone used for calendar-day arithmetic.
func (a AppConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(a.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

type ServiceConfig struct {
	Kind string `envconfig:"LENSDIST_SERVICE_KIND" default:"api"`
	// MetricsAddr is the scrape listener for the background binaries; empty disables it.
	MetricsAddr string `envconfig:"LENSDIST_METRICS_ADDR" default:":9090"`
}

type DBConfig struct {
	DSN    string `envconfig:"LENSDIST_DB_DSN"`
	Driver string `envconfig:"LENSDIST_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LENSDIST_DB_HOST"`
	LegacyPort     int    `envconfig:"LENSDIST_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LENSDIST_DB_USER"`
	LegacyPassword string `envconfig:"LENSDIST_DB_PASSWORD"`
	LegacyName     string `envconfig:"LENSDIST_DB_NAME"`
	LegacySSLMode  string `envconfig:"LENSDIST_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LENSDIST_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LENSDIST_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LENSDIST_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LENSDIST_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"LENSDIST_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LENSDIST_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LENSDIST_REDIS_ADDR"`
	Password     string        `envconfig:"LENSDIST_REDIS_PASSWORD"`
	DB           int           `envconfig:"LENSDIST_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LENSDIST_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LENSDIST_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LENSDIST_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LENSDIST_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LENSDIST_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate   bool `envconfig:"LENSDIST_AUTO_MIGRATE" default:"false"`
	PublishEvents bool `envconfig:"LENSDIST_PUBLISH_EVENTS" default:"false"`
}

// LedgerConfig controls per-store serialization of ledger postings.
type LedgerConfig struct {
	LockBackend string        `envconfig:"LENSDIST_LEDGER_LOCK_BACKEND" default:"redis"`
	LockTimeout time.Duration `envconfig:"LENSDIST_LEDGER_LOCK_TIMEOUT" default:"5s"`
	LockTTL     time.Duration `envconfig:"LENSDIST_LEDGER_LOCK_TTL" default:"30s"`
}

type ReceivablesConfig struct {
	DefaultPaymentTermDays int           `envconfig:"LENSDIST_DEFAULT_PAYMENT_TERM_DAYS" default:"30"`
	SummaryConcurrency     int           `envconfig:"LENSDIST_RECEIVABLES_SUMMARY_CONCURRENCY" default:"8"`
	SnapshotInterval       time.Duration `envconfig:"LENSDIST_RECEIVABLES_SNAPSHOT_INTERVAL" default:"15m"`
}

type EventingConfig struct {
	IdempotencyTTL         time.Duration `envconfig:"LENSDIST_IDEMPOTENCY_TTL" default:"24h"`
	OrderIdempotencyTTL    time.Duration `envconfig:"LENSDIST_ORDER_IDEMPOTENCY_TTL" default:"168h"`
	ConsumerIdempotencyTTL time.Duration `envconfig:"LENSDIST_CONSUMER_IDEMPOTENCY_TTL" default:"168h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"LENSDIST_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"LENSDIST_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"LENSDIST_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LedgerTopic        string `envconfig:"LENSDIST_PUBSUB_LEDGER_TOPIC" default:"ld-ledger-events"`
	LedgerSubscription string `envconfig:"LENSDIST_PUBSUB_LEDGER_SUBSCRIPTION"`
}

// BigQueryConfig points the receivables snapshot export at a warehouse
// table. An empty dataset disables the export.
type BigQueryConfig struct {
	Dataset          string `envconfig:"LENSDIST_BIGQUERY_DATASET"`
	ReceivablesTable string `envconfig:"LENSDIST_BIGQUERY_RECEIVABLES_TABLE" default:"receivables_snapshots"`
}

func (b BigQueryConfig) Enabled() bool {
	return strings.TrimSpace(b.Dataset) != ""
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LENSDIST_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LENSDIST_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LENSDIST_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
