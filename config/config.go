package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"sellerdesk/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	Redis     RedisConfig `json:"redis"`
	SentryDSN string      `json:"-"`

	// Buyer-chat API endpoint and the bounded timeout on each send call.
	ChatAPIBaseURL string        `json:"chat_api_base_url"`
	SendTimeout    time.Duration `json:"send_timeout"`

	// Sweep cadence and per-sweep processing cap.
	SweepInterval   time.Duration `json:"sweep_interval"`
	SweepBatchLimit int           `json:"sweep_batch_limit"`

	// Minimum gap between consecutive sends within one sweep (the external
	// channel's abuse thresholds are the reason this exists).
	SendInterval time.Duration `json:"send_interval"`

	// Consecutive dispatch failures after which a sequence escalates to failed.
	FailureCeiling int `json:"failure_ceiling"`

	// Per-client cap on sequence creation requests per minute.
	RateLimitCreateSequence int `json:"rate_limit_create_sequence"`

	// Local offset of the sending window from UTC, in hours (MSK = +3).
	SlotOffsetHours int `json:"slot_offset_hours"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "sellerdesk"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ADDRESS", "") != "",
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		SentryDSN: getEnv("SENTRY_DSN", ""),

		ChatAPIBaseURL: getEnv("CHAT_API_BASE_URL", "https://buyer-chat-api.wildberries.ru"),
		SendTimeout:    time.Duration(getEnvAsInt("SEND_TIMEOUT_SECONDS", 15)) * time.Second,

		SweepInterval:   time.Duration(getEnvAsInt("SWEEP_INTERVAL_SECONDS", 300)) * time.Second,
		SweepBatchLimit: getEnvAsInt("SWEEP_BATCH_LIMIT", 100),
		SendInterval:    time.Duration(getEnvAsInt("SEND_INTERVAL_SECONDS", 3)) * time.Second,
		FailureCeiling:  getEnvAsInt("FAILURE_CEILING", 5),

		RateLimitCreateSequence: getEnvAsInt("RATE_LIMIT_CREATE_SEQUENCE", 30),

		SlotOffsetHours: getEnvAsInt("SLOT_OFFSET_HOURS", 3),
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.SweepBatchLimit <= 0 {
		return fmt.Errorf("SWEEP_BATCH_LIMIT must be positive")
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
	if err := models.Migrate(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	if err := models.EnsureDefaultSettings(DB); err != nil {
		return fmt.Errorf("settings seed failed: %w", err)
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
	log.Printf("Sweep: every %s, batch %d, send gap %s",
		AppConfig.SweepInterval,
		AppConfig.SweepBatchLimit,
		AppConfig.SendInterval)
	log.Printf("Redis lock: %t", AppConfig.Redis.Enabled)
}
