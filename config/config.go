package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"reachloop/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type Config struct {
	Environment   string `json:"environment"`
	EncryptionKey string `json:"-"`
	ServerPort    string `json:"server_port"`
	AppBaseURL    string `json:"app_base_url"`
	SentryDSN     string `json:"-"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	Redis RedisConfig `json:"redis"`

	StripeSecretKey      string `json:"stripe_secret_key"`
	StripePublishableKey string `json:"stripe_publishable_key"`
	StripeWebhookSecret  string `json:"stripe_webhook_secret"`

	// Channel provider endpoints
	LinkedInBridgeURL string `json:"linkedin_bridge_url"`
	SMSGatewayURL     string `json:"sms_gateway_url"`

	// Scheduler tuning, all durations in seconds
	SchedulerIntervalSec int `json:"scheduler_interval_sec"`
	ExecutionTimeoutSec  int `json:"execution_timeout_sec"`
	SchedulerBatchSize   int `json:"scheduler_batch_size"`
	SchedulerConcurrency int `json:"scheduler_concurrency"`
	ReplyPollIntervalSec int `json:"reply_poll_interval_sec"`

	RateLimitPerMinute int `json:"rate_limit_per_minute"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		ServerPort:    getEnv("SERVER_PORT", "5000"),
		AppBaseURL:    getEnv("APP_BASE_URL", "http://localhost:5000"),
		SentryDSN:     getEnv("SENTRY_DSN", ""),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "reachloop"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ADDRESS", "") != "",
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripePublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),

		LinkedInBridgeURL: getEnv("LINKEDIN_BRIDGE_URL", "http://localhost:8090"),
		SMSGatewayURL:     getEnv("SMS_GATEWAY_URL", ""),

		SchedulerIntervalSec: getEnvAsInt("SCHEDULER_INTERVAL_SEC", 60),
		ExecutionTimeoutSec:  getEnvAsInt("EXECUTION_TIMEOUT_SEC", 180),
		SchedulerBatchSize:   getEnvAsInt("SCHEDULER_BATCH_SIZE", 50),
		SchedulerConcurrency: getEnvAsInt("SCHEDULER_CONCURRENCY", 8),
		ReplyPollIntervalSec: getEnvAsInt("REPLY_POLL_INTERVAL_SEC", 300),

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if AppConfig.Environment == "production" {
		if AppConfig.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required for payment processing")
		}
		if AppConfig.StripeWebhookSecret == "" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required for payment processing")
		}
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Scheduler: every %ds, batch %d, %d workers",
		AppConfig.SchedulerIntervalSec,
		AppConfig.SchedulerBatchSize,
		AppConfig.SchedulerConcurrency)
}

// MigrateDB runs schema migration for every model the platform persists.
func MigrateDB(db *gorm.DB) error {
	// Defer constraint checks while tables are created out of order
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("SET CONSTRAINTS ALL DEFERRED").Error; err != nil {
			return fmt.Errorf("failed to defer constraints: %w", err)
		}
	}

	return db.AutoMigrate(
		&models.Workspace{},
		&models.User{},
		&models.SenderAccount{},
		&models.Contact{},
		&models.Campaign{},
		&models.CampaignStep{},
		&models.CampaignContact{},
		&models.CampaignAccount{},
		&models.ScheduledStep{},
		&models.EngagementEvent{},
		&models.ClickEvent{},
		&models.CreditTransaction{},
	)
}
