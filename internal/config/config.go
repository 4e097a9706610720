package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Security      SecurityConfig      `json:"security"`
	Storage       StorageConfig       `json:"storage"`
	Notifications NotificationsConfig `json:"notifications"`
	Logging       LoggingConfig       `json:"logging"`
	Workers       WorkersConfig       `json:"workers"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Mode            string        `json:"mode"` // debug, release, test
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver         string        `json:"driver"` // postgres or sqlite
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	SQLitePath     string        `json:"sqlite_path"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
	LogQueries     bool          `json:"log_queries"`
}

// SecurityConfig holds session token settings
type SecurityConfig struct {
	JWTSecret        string        `json:"jwt_secret"`
	JWTRefreshSecret string        `json:"jwt_refresh_secret"`
	AccessTokenTTL   time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL  time.Duration `json:"refresh_token_ttl"`
	BcryptCost       int           `json:"bcrypt_cost"`
}

// StorageConfig configures project file storage
type StorageConfig struct {
	Provider     string `json:"provider"` // s3 or memory
	Bucket       string `json:"bucket"`
	Region       string `json:"region"`
	Endpoint     string `json:"endpoint"`
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	UsePathStyle bool   `json:"use_path_style"`
	MaxFileSize  int64  `json:"max_file_size"`
}

// NotificationsConfig configures marketplace event delivery
type NotificationsConfig struct {
	Region         string `json:"region"`
	SNSTopicARN    string `json:"sns_topic_arn"`
	SESFromAddress string `json:"ses_from_address"`
	WebSocket      bool   `json:"websocket"`
	Workers        int    `json:"workers"`
	QueueSize      int    `json:"queue_size"`
}

// LoggingConfig
type LoggingConfig struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// WorkersConfig holds cron expressions for the maintenance worker
type WorkersConfig struct {
	TokenPurgeSchedule string `json:"token_purge_schedule"`
	SummarySchedule    string `json:"summary_schedule"`
}

// Default returns the configuration used when no file or environment overrides exist
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Mode:            "debug",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:         "postgres",
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "carbon_marketplace",
			SSLMode:        "disable",
			SQLitePath:     "marketplace.db",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    30 * time.Minute,
		},
		Security: SecurityConfig{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
			BcryptCost:      12,
		},
		Storage: StorageConfig{
			Provider:    "memory",
			Bucket:      "carbon-marketplace-files",
			Region:      "us-east-1",
			MaxFileSize: 20 << 20,
		},
		Notifications: NotificationsConfig{
			Region:    "us-east-1",
			WebSocket: true,
			Workers:   4,
			QueueSize: 256,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Workers: WorkersConfig{
			TokenPurgeSchedule: "0 */30 * * * *",
			SummarySchedule:    "0 0 * * * *",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	config := Default()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func overrideWithEnv(config *Config) error {
	setString(&config.Server.Host, "SERVER_HOST")
	setString(&config.Server.Mode, "SERVER_MODE")
	if err := setInt(&config.Server.Port, "SERVER_PORT"); err != nil {
		return err
	}

	setString(&config.Database.Driver, "DATABASE_DRIVER")
	setString(&config.Database.Host, "DATABASE_HOST")
	setString(&config.Database.User, "DATABASE_USER")
	setString(&config.Database.Password, "DATABASE_PASSWORD")
	setString(&config.Database.DBName, "DATABASE_DBNAME")
	setString(&config.Database.SSLMode, "DATABASE_SSLMODE")
	setString(&config.Database.SQLitePath, "DATABASE_SQLITE_PATH")
	if err := setInt(&config.Database.Port, "DATABASE_PORT"); err != nil {
		return err
	}

	setString(&config.Security.JWTSecret, "JWT_SECRET")
	setString(&config.Security.JWTRefreshSecret, "JWT_REFRESH_SECRET")
	if err := setDuration(&config.Security.AccessTokenTTL, "JWT_ACCESS_TTL"); err != nil {
		return err
	}
	if err := setDuration(&config.Security.RefreshTokenTTL, "JWT_REFRESH_TTL"); err != nil {
		return err
	}

	setString(&config.Storage.Provider, "STORAGE_PROVIDER")
	setString(&config.Storage.Bucket, "STORAGE_BUCKET")
	setString(&config.Storage.Region, "AWS_REGION")
	setString(&config.Storage.Endpoint, "STORAGE_ENDPOINT")
	setString(&config.Storage.AccessKey, "AWS_ACCESS_KEY_ID")
	setString(&config.Storage.SecretKey, "AWS_SECRET_ACCESS_KEY")

	setString(&config.Notifications.Region, "AWS_REGION")
	setString(&config.Notifications.SNSTopicARN, "SNS_TOPIC_ARN")
	setString(&config.Notifications.SESFromAddress, "SES_FROM_ADDRESS")

	setString(&config.Logging.Level, "LOG_LEVEL")
	setString(&config.Logging.File, "LOG_FILE")

	setString(&config.Workers.TokenPurgeSchedule, "WORKER_TOKEN_PURGE_SCHEDULE")
	setString(&config.Workers.SummarySchedule, "WORKER_SUMMARY_SCHEDULE")
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = i
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

// Validate checks settings the server cannot start without
func (c *Config) Validate() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Security.JWTRefreshSecret == "" {
		c.Security.JWTRefreshSecret = c.Security.JWTSecret + ".refresh"
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Storage.Provider {
	case "s3", "memory":
	default:
		return fmt.Errorf("unsupported storage provider %q", c.Storage.Provider)
	}
	return nil
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
