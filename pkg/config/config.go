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
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Gateway      GatewayConfig
	Cron         CronConfig
	Webhooks     WebhookConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"COMMERCE_APP_ENV" required:"true"`
	Port         string `envconfig:"COMMERCE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"COMMERCE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"COMMERCE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"COMMERCE_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string      `envconfig:"COMMERCE_CORS_ORIGINS"`
	CORSMaxAge  time.Duration `envconfig:"COMMERCE_CORS_MAX_AGE" default:"5m"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"COMMERCE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"COMMERCE_DB_DSN"`
	Driver string `envconfig:"COMMERCE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"COMMERCE_DB_HOST"`
	LegacyPort     int    `envconfig:"COMMERCE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COMMERCE_DB_USER"`
	LegacyPassword string `envconfig:"COMMERCE_DB_PASSWORD"`
	LegacyName     string `envconfig:"COMMERCE_DB_NAME"`
	LegacySSLMode  string `envconfig:"COMMERCE_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"COMMERCE_SQLITE_PATH" default:"commerce.db"`

	MaxOpenConns    int           `envconfig:"COMMERCE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COMMERCE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COMMERCE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COMMERCE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements slower than this; zero silences gorm.
	SlowQueryThreshold time.Duration `envconfig:"COMMERCE_DB_SLOW_QUERY_THRESHOLD" default:"250ms"`

	// TxAttempts bounds how often WithTx reruns a transaction that lost a
	// serialization race or deadlock.
	TxAttempts int `envconfig:"COMMERCE_DB_TX_ATTEMPTS" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COMMERCE_REDIS_URL"`
	Address      string        `envconfig:"COMMERCE_REDIS_ADDR"`
	Password     string        `envconfig:"COMMERCE_REDIS_PASSWORD"`
	DB           int           `envconfig:"COMMERCE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COMMERCE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COMMERCE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COMMERCE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COMMERCE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COMMERCE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"COMMERCE_JWT_SECRET" required:"true"`
	// PreviousSecret keeps tokens signed before a rotation valid until they expire.
	PreviousSecret    string        `envconfig:"COMMERCE_JWT_PREVIOUS_SECRET"`
	Issuer            string        `envconfig:"COMMERCE_JWT_ISSUER" required:"true"`
	Audience          string        `envconfig:"COMMERCE_JWT_AUDIENCE"`
	ExpirationMinutes int           `envconfig:"COMMERCE_JWT_EXPIRATION_MINUTES" default:"60"`
	Leeway            time.Duration `envconfig:"COMMERCE_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"COMMERCE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"COMMERCE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"COMMERCE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic    string `envconfig:"COMMERCE_PUBSUB_DOMAIN_TOPIC" default:"commerce-domain-events"`
	InventoryTopic string `envconfig:"COMMERCE_PUBSUB_INVENTORY_TOPIC" default:"commerce-inventory-events"`
	// Ordered publishes with the aggregate id as ordering key so subscribers see an
	// order's events in commit order.
	Ordered        bool          `envconfig:"COMMERCE_PUBSUB_ORDERED" default:"true"`
	DelayThreshold time.Duration `envconfig:"COMMERCE_PUBSUB_DELAY_THRESHOLD" default:"10ms"`
	CountThreshold int           `envconfig:"COMMERCE_PUBSUB_COUNT_THRESHOLD" default:"100"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"COMMERCE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"COMMERCE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"COMMERCE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"COMMERCE_OUTBOX_RETENTION_DAYS" default:"30"`
}

type StripeConfig struct {
	APIKey string `envconfig:"COMMERCE_STRIPE_API_KEY"`
	// WebhookSecret may list several comma-separated secrets while rolling one.
	WebhookSecret string `envconfig:"COMMERCE_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"COMMERCE_STRIPE_ENV" default:"test"`
	// MaxNetworkRetries is safe because every mutating call carries an idempotency key.
	MaxNetworkRetries int `envconfig:"COMMERCE_STRIPE_MAX_NETWORK_RETRIES" default:"2"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// GatewayConfig bounds every outbound payment-gateway call.
type GatewayConfig struct {
	Timeout time.Duration `envconfig:"COMMERCE_GATEWAY_TIMEOUT" default:"10s"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"COMMERCE_CRON_INTERVAL" default:"5m"`
	PendingRefundAge  time.Duration `envconfig:"COMMERCE_CRON_PENDING_REFUND_AGE" default:"2m"`
	RefundBatchSize   int           `envconfig:"COMMERCE_CRON_REFUND_BATCH_SIZE" default:"50"`
	LockTTL           time.Duration `envconfig:"COMMERCE_CRON_LOCK_TTL" default:"10m"`
	CompensationLimit int           `envconfig:"COMMERCE_CRON_COMPENSATION_LIMIT" default:"100"`
	PendingOrderTTL   time.Duration `envconfig:"COMMERCE_CRON_PENDING_ORDER_TTL" default:"24h"`
	DisabledJobs      []string      `envconfig:"COMMERCE_CRON_DISABLED_JOBS"`
}

type WebhookConfig struct {
	RetentionDays      int           `envconfig:"COMMERCE_WEBHOOK_RETENTION_DAYS" default:"90"`
	SeenTTL            time.Duration `envconfig:"COMMERCE_WEBHOOK_SEEN_TTL" default:"24h"`
	SignatureTolerance time.Duration `envconfig:"COMMERCE_WEBHOOK_SIGNATURE_TOLERANCE" default:"5m"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
