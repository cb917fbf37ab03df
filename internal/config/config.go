package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Currency CurrencyConfig `mapstructure:"currency"`
	ENS      ENSConfig      `mapstructure:"ens"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// OpenAIConfig holds vision extraction configuration
type OpenAIConfig struct {
	APIKey              string        `mapstructure:"api_key"`
	Model               string        `mapstructure:"model"`
	MaxTokens           int           `mapstructure:"max_tokens"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
}

// StorageConfig holds object storage (R2/S3) configuration
type StorageConfig struct {
	Bucket          string        `mapstructure:"bucket"`
	Region          string        `mapstructure:"region"`
	BaseEndpoint    string        `mapstructure:"base_endpoint"`
	PublicBaseURL   string        `mapstructure:"public_base_url"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	PresignTTL      time.Duration `mapstructure:"presign_ttl"`
}

// CurrencyConfig holds rate source configuration
type CurrencyConfig struct {
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
}

// ENSConfig holds naming service configuration
type ENSConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MirrorConfig holds audit mirror workbook configuration
type MirrorConfig struct {
	WorkbookPath string `mapstructure:"workbook_path"`
	QueueSize    int    `mapstructure:"queue_size"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/pizza_claims.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// OpenAI defaults
	viper.SetDefault("openai.model", "gpt-4o")
	viper.SetDefault("openai.max_tokens", 500)
	viper.SetDefault("openai.timeout", 30*time.Second)
	viper.SetDefault("openai.confidence_threshold", 0.7)

	// Storage defaults
	viper.SetDefault("storage.region", "auto")
	viper.SetDefault("storage.presign_ttl", 15*time.Minute)

	// Currency defaults: rate lookups stay short so a hung rate API
	// cannot stall the submission flow
	viper.SetDefault("currency.lookup_timeout", 5*time.Second)

	// ENS defaults
	viper.SetDefault("ens.endpoint", "https://api.ensideas.com/ens/resolve")
	viper.SetDefault("ens.timeout", 3*time.Second)

	// Mirror defaults
	viper.SetDefault("mirror.workbook_path", "data/audit_log.xlsx")
	viper.SetDefault("mirror.queue_size", 64)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("storage.bucket", "R2_BUCKET_NAME")
	viper.BindEnv("storage.base_endpoint", "R2_ENDPOINT")
	viper.BindEnv("storage.public_base_url", "R2_PUBLIC_URL")
	viper.BindEnv("storage.access_key_id", "R2_ACCESS_KEY_ID")
	viper.BindEnv("storage.secret_access_key", "R2_SECRET_ACCESS_KEY")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	if c.Storage.BaseEndpoint == "" {
		return fmt.Errorf("storage.base_endpoint is required")
	}
	if c.OpenAI.ConfidenceThreshold < 0 || c.OpenAI.ConfidenceThreshold > 1 {
		return fmt.Errorf("openai.confidence_threshold must be between 0 and 1")
	}
	return nil
}
