// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database       DatabaseConfig       `json:"database"`
	Server         ServerConfig         `json:"server"`
	Logging        LoggingConfig        `json:"logging"`
	Metrics        MetricsConfig        `json:"metrics"`
	Cache          CacheConfig          `json:"cache"`
	Deployment     DeploymentConfig     `json:"deployment"`
	CrystalPay     CrystalPayConfig     `json:"crystalpay"`
	CryptoBot      CryptoBotConfig      `json:"cryptobot"`
	ProviderRetry  ProviderRetryConfig  `json:"provider_retry"`
	Reconciliation ReconciliationConfig `json:"reconciliation"`
	TopUp          TopUpConfig          `json:"top_up"`
	Referral       ReferralConfig       `json:"referral"`
	Growth         GrowthConfig         `json:"growth"`
	Telegram       TelegramConfig       `json:"telegram"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	GlobalRateLimit int           `json:"global_rate_limit"` // requests per minute
	AllowedOrigins  []string      `json:"allowed_origins"`
	APITokens       []string      `json:"-"` // bearer tokens accepted on the top-up API; empty disables the check
}

type LoggingConfig struct {
	Level            string `json:"level"`  // debug, info, warn, error
	Format           string `json:"format"` // json, text
	Output           string `json:"output"` // stdout, file, both
	FilePath         string `json:"file_path"`
	MaxSize          int    `json:"max_size"` // MB
	MaxBackups       int    `json:"max_backups"`
	MaxAge           int    `json:"max_age"` // days
	Compress         bool   `json:"compress"`
	EnableCaller     bool   `json:"enable_caller"`
	EnableStacktrace bool   `json:"enable_stacktrace"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled         bool          `json:"enabled"`
	Provider        string        `json:"provider"` // redis, memory
	RedisURL        string        `json:"redis_url"`
	RedisDB         int           `json:"redis_db"`
	RedisPrefix     string        `json:"redis_prefix"`
	DefaultTTL      time.Duration `json:"default_ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

type DeploymentConfig struct {
	Domain      string `json:"domain"`
	APIDomain   string `json:"api_domain"`
	BotUsername string `json:"bot_username"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
}

// CrystalPayConfig configures the card/crypto gateway (provider A)
type CrystalPayConfig struct {
	Enabled     bool          `json:"enabled"`
	BaseURL     string        `json:"base_url"`
	Login       string        `json:"login"`
	Secret      string        `json:"secret"`
	Salt        string        `json:"salt"` // callback signature salt
	CallbackURL string        `json:"callback_url"`
	Timeout     time.Duration `json:"timeout"`
	LifetimeMin int           `json:"lifetime_min"`
}

// CryptoBotConfig configures the Telegram-native crypto gateway (provider B)
type CryptoBotConfig struct {
	Enabled bool          `json:"enabled"`
	BaseURL string        `json:"base_url"`
	Token   string        `json:"token"`
	Asset   string        `json:"asset"`
	Timeout time.Duration `json:"timeout"`
}

type ProviderRetryConfig struct {
	MaxAttempts        int           `json:"max_attempts"`
	Delay              time.Duration `json:"delay"`
	ExponentialBackoff bool          `json:"exponential_backoff"`
}

type ReconciliationConfig struct {
	Enabled           bool          `json:"enabled"`
	Interval          time.Duration `json:"interval"`
	BatchSize         int           `json:"batch_size"`
	InvoiceTimeout    time.Duration `json:"invoice_timeout"`
	RewardQueueSize   int           `json:"reward_queue_size"`
	RewardQueueWorker int           `json:"reward_queue_workers"`
}

type TopUpConfig struct {
	MinAmount decimal.Decimal `json:"min_amount"`
	MaxAmount decimal.Decimal `json:"max_amount"`
}

type ReferralConfig struct {
	MinAmount      decimal.Decimal `json:"min_amount"`      // rewards apply only above this top-up amount
	DefaultPercent decimal.Decimal `json:"default_percent"` // used when the referrer has no own percent
}

type GrowthConfig struct {
	Enabled            bool            `json:"enabled"`
	CampaignCooldown   time.Duration   `json:"campaign_cooldown"`
	UpsellThreshold    decimal.Decimal `json:"upsell_threshold"`
	UpsellBonusPercent decimal.Decimal `json:"upsell_bonus_percent"`
	OfferTTL           time.Duration   `json:"offer_ttl"`
	ReactivationAfter  time.Duration   `json:"reactivation_after"`
}

type TelegramConfig struct {
	Enabled      bool          `json:"enabled"`
	BotToken     string        `json:"bot_token"`
	AdminChatIDs []int64       `json:"admin_chat_ids"`
	SendTimeout  time.Duration `json:"send_timeout"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "postgres"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 1024*1024), // 1MB
			GlobalRateLimit: getEnvInt("GLOBAL_RATE_LIMIT", 2000),
			AllowedOrigins:  getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			APITokens:       getEnvStringSlice("API_TOKENS", nil),
		},
		Logging: LoggingConfig{
			Level:            getEnvString("LOG_LEVEL", "info"),
			Format:           getEnvString("LOG_FORMAT", "json"),
			Output:           getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:         getEnvString("LOG_FILE_PATH", "/var/log/sephora/app.log"),
			MaxSize:          getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:       getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:           getEnvInt("LOG_MAX_AGE", 30),
			Compress:         getEnvBool("LOG_COMPRESS", true),
			EnableCaller:     getEnvBool("LOG_ENABLE_CALLER", true),
			EnableStacktrace: getEnvBool("LOG_ENABLE_STACKTRACE", false),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:         getEnvBool("CACHE_ENABLED", true),
			Provider:        getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:        getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:         getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix:     getEnvString("CACHE_REDIS_PREFIX", "sephora:"),
			DefaultTTL:      getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
			CleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", 1*time.Minute),
		},
		Deployment: DeploymentConfig{
			Domain:      getEnvString("DOMAIN", "your-domain.com"),
			APIDomain:   getEnvString("API_DOMAIN", "api.your-domain.com"),
			BotUsername: getEnvString("BOT_USERNAME", ""),
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
		},
		CrystalPay: CrystalPayConfig{
			Enabled:     getEnvBool("CRYSTALPAY_ENABLED", true),
			BaseURL:     getEnvString("CRYSTALPAY_BASE_URL", "https://api.crystalpay.io/v2"),
			Login:       getEnvString("CRYSTALPAY_LOGIN", ""),
			Secret:      getEnvString("CRYSTALPAY_SECRET", ""),
			Salt:        getEnvString("CRYSTALPAY_SALT", ""),
			CallbackURL: getEnvString("CRYSTALPAY_CALLBACK_URL", ""),
			Timeout:     getEnvDuration("CRYSTALPAY_TIMEOUT", 10*time.Second),
			LifetimeMin: getEnvInt("CRYSTALPAY_LIFETIME_MIN", 60),
		},
		CryptoBot: CryptoBotConfig{
			Enabled: getEnvBool("CRYPTOBOT_ENABLED", true),
			BaseURL: getEnvString("CRYPTOBOT_BASE_URL", "https://pay.crypt.bot/api"),
			Token:   getEnvString("CRYPTOBOT_TOKEN", ""),
			Asset:   getEnvString("CRYPTOBOT_ASSET", "USDT"),
			Timeout: getEnvDuration("CRYPTOBOT_TIMEOUT", 10*time.Second),
		},
		ProviderRetry: ProviderRetryConfig{
			MaxAttempts:        getEnvInt("PROVIDER_RETRY_ATTEMPTS", 3),
			Delay:              getEnvDuration("PROVIDER_RETRY_DELAY", 1*time.Second),
			ExponentialBackoff: getEnvBool("PROVIDER_RETRY_EXPONENTIAL", true),
		},
		Reconciliation: ReconciliationConfig{
			Enabled:           getEnvBool("RECONCILE_ENABLED", true),
			Interval:          getEnvDuration("RECONCILE_INTERVAL", 10*time.Second),
			BatchSize:         getEnvInt("RECONCILE_BATCH_SIZE", 500),
			InvoiceTimeout:    getEnvDuration("RECONCILE_INVOICE_TIMEOUT", 30*time.Second),
			RewardQueueSize:   getEnvInt("REWARD_QUEUE_SIZE", 256),
			RewardQueueWorker: getEnvInt("REWARD_QUEUE_WORKERS", 4),
		},
		TopUp: TopUpConfig{
			MinAmount: getEnvDecimal("TOPUP_MIN_AMOUNT", decimal.NewFromInt(1)),
			MaxAmount: getEnvDecimal("TOPUP_MAX_AMOUNT", decimal.NewFromInt(10000)),
		},
		Referral: ReferralConfig{
			MinAmount:      getEnvDecimal("REFERRAL_MIN_AMOUNT", decimal.NewFromInt(1)),
			DefaultPercent: getEnvDecimal("REFERRAL_DEFAULT_PERCENT", decimal.NewFromInt(10)),
		},
		Growth: GrowthConfig{
			Enabled:            getEnvBool("GROWTH_ENABLED", true),
			CampaignCooldown:   getEnvDuration("GROWTH_CAMPAIGN_COOLDOWN", 72*time.Hour),
			UpsellThreshold:    getEnvDecimal("GROWTH_UPSELL_THRESHOLD", decimal.NewFromInt(100)),
			UpsellBonusPercent: getEnvDecimal("GROWTH_UPSELL_BONUS_PERCENT", decimal.NewFromInt(5)),
			OfferTTL:           getEnvDuration("GROWTH_OFFER_TTL", 7*24*time.Hour),
			ReactivationAfter:  getEnvDuration("GROWTH_REACTIVATION_AFTER", 30*24*time.Hour),
		},
		Telegram: TelegramConfig{
			Enabled:      getEnvBool("TELEGRAM_NOTIFY_ENABLED", true),
			BotToken:     getEnvString("TELEGRAM_BOT_TOKEN", ""),
			AdminChatIDs: getEnvInt64Slice("TELEGRAM_ADMIN_CHAT_IDS", nil),
			SendTimeout:  getEnvDuration("TELEGRAM_SEND_TIMEOUT", 5*time.Second),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	// Check if .env file exists
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	// Open .env file
	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	// Read file line by line
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value pairs
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		// Use standard library strings.Split and strings.TrimSpace
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64Slice(key string, defaultValue []int64) []int64 {
	var result []int64
	for _, item := range getEnvStringSlice(key, nil) {
		if parsed, err := strconv.ParseInt(item, 10, 64); err == nil {
			result = append(result, parsed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Providers: missing credentials are fatal, never retried
	if !cfg.CrystalPay.Enabled && !cfg.CryptoBot.Enabled {
		errors = append(errors, "at least one payment provider must be enabled")
	}
	if cfg.CrystalPay.Enabled {
		if cfg.CrystalPay.Login == "" || cfg.CrystalPay.Secret == "" {
			errors = append(errors, "CRYSTALPAY_LOGIN and CRYSTALPAY_SECRET are required when CrystalPay is enabled")
		}
	}
	if cfg.CryptoBot.Enabled && cfg.CryptoBot.Token == "" {
		errors = append(errors, "CRYPTOBOT_TOKEN is required when CryptoBot is enabled")
	}
	if cfg.ProviderRetry.MaxAttempts < 1 {
		errors = append(errors, "PROVIDER_RETRY_ATTEMPTS must be at least 1")
	}

	// Validate reconciliation and amounts
	if cfg.Reconciliation.Interval <= 0 {
		errors = append(errors, "RECONCILE_INTERVAL must be positive")
	}
	if !cfg.TopUp.MinAmount.IsPositive() {
		errors = append(errors, "TOPUP_MIN_AMOUNT must be positive")
	}
	if cfg.TopUp.MaxAmount.LessThan(cfg.TopUp.MinAmount) {
		errors = append(errors, "TOPUP_MAX_AMOUNT must not be below TOPUP_MIN_AMOUNT")
	}
	if cfg.Referral.DefaultPercent.IsNegative() || cfg.Referral.DefaultPercent.GreaterThan(decimal.NewFromInt(100)) {
		errors = append(errors, "REFERRAL_DEFAULT_PERCENT must be between 0 and 100")
	}

	if cfg.Telegram.Enabled && cfg.Telegram.BotToken == "" {
		errors = append(errors, "TELEGRAM_BOT_TOKEN is required when notifications are enabled")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled {
		if cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
			errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
		}
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
