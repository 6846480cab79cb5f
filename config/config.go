package config

import (
	"time"

	"github.com/Gobusters/ectoenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"clover-api"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Database driver
	DatabaseDriver string `env:"DB_DRIVER" env-default:"postgres"`
	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:""`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"clover"`
	// Database SSL Mode
	DatabaseSSLMode string `env:"DB_SQL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version
	DatabaseMigrationVersion int `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`

	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`

	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Kafka topic for ingestion run events
	KafkaRunEventTopic string `env:"KAFKA_RUN_EVENT_TOPIC" env-default:"ingestion-runs"`

	// Azure AD app registration used for management API access
	AzureClientID     string `env:"AZURE_CLIENT_ID" env-default:""`
	AzureClientSecret string `env:"AZURE_CLIENT_SECRET" env-default:""`
	// Management API scope requested for tokens
	AzureScope string `env:"AZURE_SCOPE" env-default:"https://management.azure.com/.default"`
	// Client-side request pacing toward the management API (requests/second)
	AzureRequestsPerSecond float64 `env:"AZURE_REQUESTS_PER_SECOND" env-default:"10"`
	AzureRequestBurst      int     `env:"AZURE_REQUEST_BURST" env-default:"5"`

	// Raw snapshot storage. When the bucket is set snapshots go to GCS,
	// otherwise they land on the local filesystem under RawLocalDir.
	RawBucket   string `env:"RAW_BUCKET" env-default:""`
	RawLocalDir string `env:"RAW_LOCAL_DIR" env-default:"data/raw"`

	// Orchestrator settings
	// Max subscriptions ingested concurrently across a run
	MaxConcurrentSubscriptions int64 `env:"MAX_CONCURRENT_SUBSCRIPTIONS" env-default:"10"`
	// Per-subscription ingestion deadline
	SubscriptionTimeout time.Duration `env:"SUBSCRIPTION_TIMEOUT" env-default:"15m"`

	// Scheduler settings
	SchedulerEnabled bool `env:"SCHEDULER_ENABLED" env-default:"true"`
	// Full ingestion interval (all connectors)
	FullIngestionInterval time.Duration `env:"FULL_INGESTION_INTERVAL" env-default:"24h"`
	// Incremental cost-only interval
	IncrementalCostInterval time.Duration `env:"INCREMENTAL_COST_INTERVAL" env-default:"1h"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}

// Load binds the config struct from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
