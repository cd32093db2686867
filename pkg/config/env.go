package config

// EnvPrefix is handed to envconfig; every tag below spells out its full name.
const EnvPrefix = "COMMERCE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "COMMERCE_APP_ENV"
	EnvPort         = "COMMERCE_APP_PORT"
	EnvDBDSN        = "COMMERCE_DB_DSN"
	EnvDBHost       = "COMMERCE_DB_HOST"
	EnvDBUser       = "COMMERCE_DB_USER"
	EnvDBName       = "COMMERCE_DB_NAME"
	EnvRedisURL     = "COMMERCE_REDIS_URL"
	EnvJWTSecret    = "COMMERCE_JWT_SECRET"
	EnvJWTIssuer    = "COMMERCE_JWT_ISSUER"
	EnvGCPProjectID = "COMMERCE_GCP_PROJECT_ID"
	EnvDomainTopic  = "COMMERCE_PUBSUB_DOMAIN_TOPIC"
	EnvStripeAPIKey = "COMMERCE_STRIPE_API_KEY"
	EnvStripeSecret = "COMMERCE_STRIPE_WEBHOOK_SECRET"
	EnvGatewayTTL   = "COMMERCE_GATEWAY_TIMEOUT"
	EnvUseSQLite    = "COMMERCE_USE_SQLITE"
	EnvCORSOrigins  = "COMMERCE_CORS_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
