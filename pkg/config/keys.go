package config

const (
	EnvPrefix = "GIGMARKET"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

// Environment variable names referenced outside struct tags.
const (
	EnvAppEnv              = "GIGMARKET_APP_ENV"
	EnvPort                = "GIGMARKET_APP_PORT"
	EnvDBDSN               = "GIGMARKET_DB_DSN"
	EnvDBDriver            = "GIGMARKET_DB_DRIVER"
	EnvDBHost              = "GIGMARKET_DB_HOST"
	EnvDBUser              = "GIGMARKET_DB_USER"
	EnvDBName              = "GIGMARKET_DB_NAME"
	EnvRedisURL            = "GIGMARKET_REDIS_URL"
	EnvJWTSecret           = "GIGMARKET_JWT_SECRET"
	EnvJWTIssuer           = "GIGMARKET_JWT_ISSUER"
	EnvGCPProjectID        = "GIGMARKET_GCP_PROJECT_ID"
	EnvGCSBucket           = "GIGMARKET_GCS_BUCKET_NAME"
	EnvStripeFeePercentage = "GIGMARKET_STRIPE_PLATFORM_FEE_PERCENTAGE"
	EnvDirectCheckout      = "GIGMARKET_FEATURE_DIRECT_CHECKOUT"
	EnvCronStaleTTL        = "GIGMARKET_CRON_STALE_CHECKOUT_TTL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
