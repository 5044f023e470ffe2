package config

const EnvPrefix = "LENSDIST"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "LENSDIST_APP_ENV"
	EnvPort     = "LENSDIST_APP_PORT"
	EnvTimezone = "LENSDIST_TIMEZONE"

	EnvDBDSN  = "LENSDIST_DB_DSN"
	EnvDBHost = "LENSDIST_DB_HOST"
	EnvDBUser = "LENSDIST_DB_USER"
	EnvDBName = "LENSDIST_DB_NAME"

	EnvRedisURL = "LENSDIST_REDIS_URL"

	EnvLedgerLockBackend = "LENSDIST_LEDGER_LOCK_BACKEND"
	EnvLedgerLockTimeout = "LENSDIST_LEDGER_LOCK_TIMEOUT"

	EnvDefaultPaymentTermDays = "LENSDIST_DEFAULT_PAYMENT_TERM_DAYS"

	EnvCORSOrigins = "LENSDIST_CORS_ORIGINS"

	EnvGCPProjectID      = "LENSDIST_GCP_PROJECT_ID"
	EnvPubSubLedgerTopic = "LENSDIST_PUBSUB_LEDGER_TOPIC"

	EnvBigQueryDataset          = "LENSDIST_BIGQUERY_DATASET"
	EnvBigQueryReceivablesTable = "LENSDIST_BIGQUERY_RECEIVABLES_TABLE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
