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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	GCS          GCSConfig
	Delivery     DeliveryConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Stripe.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env            string   `envconfig:"GIGMARKET_APP_ENV" required:"true"`
	Port           string   `envconfig:"GIGMARKET_APP_PORT" required:"true"`
	LogLevel       string   `envconfig:"GIGMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack   bool     `envconfig:"GIGMARKET_LOG_WARN_STACK" default:"false"`
	FrontendOrigin string   `envconfig:"GIGMARKET_APP_FRONTEND_ORIGIN" default:"http://localhost:5173"`
	CORSOrigins    []string `envconfig:"GIGMARKET_APP_CORS_ORIGINS" default:"http://localhost:5173"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"GIGMARKET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GIGMARKET_DB_DSN"`
	Driver string `envconfig:"GIGMARKET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GIGMARKET_DB_HOST"`
	LegacyPort     int    `envconfig:"GIGMARKET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GIGMARKET_DB_USER"`
	LegacyPassword string `envconfig:"GIGMARKET_DB_PASSWORD"`
	LegacyName     string `envconfig:"GIGMARKET_DB_NAME"`
	LegacySSLMode  string `envconfig:"GIGMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GIGMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GIGMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GIGMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GIGMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite one.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"GIGMARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GIGMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"GIGMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"GIGMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GIGMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GIGMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GIGMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GIGMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GIGMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"GIGMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GIGMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"GIGMARKET_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool `envconfig:"GIGMARKET_AUTO_MIGRATE" default:"false"`
	DirectCheckout bool `envconfig:"GIGMARKET_FEATURE_DIRECT_CHECKOUT" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"GIGMARKET_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"GIGMARKET_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GIGMARKET_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"GIGMARKET_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GIGMARKET_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"GIGMARKET_GCS_BUCKET_NAME" required:"true"`
	// Endpoint overrides the JSON API host, used by local emulators.
	Endpoint      string `envconfig:"GIGMARKET_GCS_ENDPOINT" default:"https://storage.googleapis.com"`
	PublicBaseURL string `envconfig:"GIGMARKET_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
}

type DeliveryConfig struct {
	MaxFileMB     int    `envconfig:"GIGMARKET_DELIVERY_MAX_FILE_MB" default:"10"`
	ObjectPrefix  string `envconfig:"GIGMARKET_DELIVERY_OBJECT_PREFIX" default:"deliveries"`
	MaxNoteLength int    `envconfig:"GIGMARKET_DELIVERY_MAX_NOTE_LENGTH" default:"5000"`
}

// MaxFileBytes returns the upload ceiling in bytes.
func (d DeliveryConfig) MaxFileBytes() int64 {
	if d.MaxFileMB <= 0 {
		return 10 << 20
	}
	return int64(d.MaxFileMB) << 20
}

type PubSubConfig struct {
	OrdersTopic         string `envconfig:"GIGMARKET_PUBSUB_ORDERS_TOPIC" default:"gm-order-events"`
	OrdersSubscription  string `envconfig:"GIGMARKET_PUBSUB_ORDERS_SUBSCRIPTION"`
	ReviewsTopic        string `envconfig:"GIGMARKET_PUBSUB_REVIEWS_TOPIC" default:"gm-review-events"`
	ReviewsSubscription string `envconfig:"GIGMARKET_PUBSUB_REVIEWS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GIGMARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GIGMARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GIGMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type StripeConfig struct {
	APIKey                string `envconfig:"GIGMARKET_STRIPE_API_KEY"`
	Secret                string `envconfig:"GIGMARKET_STRIPE_SECRET"`
	Env                   string `envconfig:"GIGMARKET_STRIPE_ENV" default:"test"`
	Currency              string `envconfig:"GIGMARKET_STRIPE_CURRENCY" default:"usd"`
	PlatformFeePercentage int    `envconfig:"GIGMARKET_STRIPE_PLATFORM_FEE_PERCENTAGE" default:"10"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

func (s StripeConfig) validate() error {
	if s.PlatformFeePercentage < 0 || s.PlatformFeePercentage > 100 {
		return fmt.Errorf("%s must be between 0 and 100", EnvStripeFeePercentage)
	}
	return nil
}

type CronConfig struct {
	Interval           time.Duration `envconfig:"GIGMARKET_CRON_INTERVAL" default:"15m"`
	LockTTL            time.Duration `envconfig:"GIGMARKET_CRON_LOCK_TTL" default:"10m"`
	StaleCheckoutTTL   time.Duration `envconfig:"GIGMARKET_CRON_STALE_CHECKOUT_TTL" default:"24h"`
	OutboxRetention    time.Duration `envconfig:"GIGMARKET_CRON_OUTBOX_RETENTION" default:"720h"`
	StaleCheckoutBatch int           `envconfig:"GIGMARKET_CRON_STALE_CHECKOUT_BATCH" default:"200"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:gigmarket.db?_foreign_keys=on"
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
