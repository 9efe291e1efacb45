package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config structure represents the application configuration
type Config struct {
	Server struct {
		Port            string `yaml:"port" env:"SERVER_PORT"`
		Mode            string `yaml:"mode" env:"SERVER_MODE"`
		ShutdownTimeout string `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
		MigrationsDir   string `yaml:"migrations_dir" env:"SERVER_MIGRATIONS_DIR"`
	} `yaml:"server"`

	Database struct {
		Driver          string `yaml:"driver" env:"DB_DRIVER"`
		Host            string `yaml:"host" env:"DB_HOST"`
		Port            string `yaml:"port" env:"DB_PORT"`
		User            string `yaml:"user" env:"DB_USER"`
		Password        string `yaml:"password" env:"DB_PASSWORD"`
		DBName          string `yaml:"dbname" env:"DB_NAME"`
		SSLMode         string `yaml:"sslmode" env:"DB_SSLMODE"`
		MaxIdleConns    int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
		MaxOpenConns    int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
	} `yaml:"database"`

	JWT struct {
		Secret                string `yaml:"secret" env:"JWT_SECRET"`
		AccessTokenExpiration string `yaml:"access_token_expiration" env:"JWT_ACCESS_TOKEN_EXPIRATION"`
		Issuer                string `yaml:"issuer" env:"JWT_ISSUER"`
	} `yaml:"jwt"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"logging"`

	Chat struct {
		UnreadCap        int `yaml:"unread_cap" env:"CHAT_UNREAD_CAP"`
		MaxMessageLength int `yaml:"max_message_length" env:"CHAT_MAX_MESSAGE_LENGTH"`
		DefaultPageSize  int `yaml:"default_page_size" env:"CHAT_DEFAULT_PAGE_SIZE"`
		MaxPageSize      int `yaml:"max_page_size" env:"CHAT_MAX_PAGE_SIZE"`
		SendBuffer       int `yaml:"send_buffer" env:"CHAT_SEND_BUFFER"`
	} `yaml:"chat"`

	Redis struct {
		Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED"`
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
	} `yaml:"redis"`

	Kafka struct {
		Enabled     bool   `yaml:"enabled" env:"KAFKA_ENABLED"`
		Brokers     string `yaml:"brokers" env:"KAFKA_BROKERS"`
		Topic       string `yaml:"topic" env:"KAFKA_TOPIC"`
		GroupPrefix string `yaml:"group_prefix" env:"KAFKA_GROUP_PREFIX"`
	} `yaml:"kafka"`

	RateLimit struct {
		Enabled  bool   `yaml:"enabled" env:"RATELIMIT_ENABLED"`
		Messages int    `yaml:"messages" env:"RATELIMIT_MESSAGES"`
		Window   string `yaml:"window" env:"RATELIMIT_WINDOW"`
	} `yaml:"ratelimit"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED"`
		Path    string `yaml:"path" env:"METRICS_PATH"`
	} `yaml:"metrics"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled" env:"TRACING_ENABLED"`
		Endpoint    string  `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
		ServiceName string  `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
		SampleRatio float64 `yaml:"sample_ratio" env:"OTEL_TRACES_SAMPLER_ARG"`
	} `yaml:"tracing"`

	Seed struct {
		Enabled bool `yaml:"enabled" env:"SEED_ENABLED"`
		Users   int  `yaml:"users" env:"SEED_USERS"`
	} `yaml:"seed"`
}

// LoadConfig loads configuration from a file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}
	setDefaults(config)

	if _, err := os.Stat(configPath); err == nil {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := processStructFields(config); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default values for the configuration
func setDefaults(config *Config) {
	config.Server.Port = "8080"
	config.Server.Mode = "development"
	config.Server.ShutdownTimeout = "10s"
	config.Server.MigrationsDir = "migrations"

	config.Database.Driver = DriverPostgres
	config.Database.Host = "localhost"
	config.Database.Port = "5432"
	config.Database.User = "postgres"
	config.Database.Password = "postgres"
	config.Database.DBName = "chatsphere"
	config.Database.SSLMode = "disable"
	config.Database.MaxIdleConns = 5
	config.Database.MaxOpenConns = 20
	config.Database.ConnMaxLifetime = "1h"

	config.JWT.AccessTokenExpiration = "720h"
	config.JWT.Issuer = "chatsphere.app"

	config.Logging.Level = "info"
	config.Logging.Format = "json"

	config.Chat.UnreadCap = 100
	config.Chat.MaxMessageLength = 500
	config.Chat.DefaultPageSize = 25
	config.Chat.MaxPageSize = 100
	config.Chat.SendBuffer = 256

	config.Redis.Addr = "localhost:6379"

	config.Kafka.Brokers = "localhost:9092"
	config.Kafka.Topic = "chat-events"
	config.Kafka.GroupPrefix = "chatsphere-gateway"

	config.RateLimit.Messages = 30
	config.RateLimit.Window = "10s"

	config.Metrics.Enabled = true
	config.Metrics.Path = "/metrics"

	config.Tracing.Endpoint = "localhost:4318"
	config.Tracing.ServiceName = "chatsphere"
	config.Tracing.SampleRatio = 1.0

	config.Seed.Users = 5
}

// validateConfig ensures that the configuration is valid
func validateConfig(config *Config) error {
	switch config.Database.Driver {
	case DriverPostgres:
		if config.Database.Host == "" {
			return errors.New("database host is required")
		}
		if _, err := time.ParseDuration(config.Database.ConnMaxLifetime); err != nil {
			return fmt.Errorf("invalid database conn_max_lifetime: %w", err)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported database driver %q", config.Database.Driver)
	}

	if config.JWT.Secret == "" {
		return errors.New("JWT secret is required")
	}

	if _, err := time.ParseDuration(config.JWT.AccessTokenExpiration); err != nil {
		return fmt.Errorf("invalid JWT access token expiration format: %w", err)
	}

	if _, err := time.ParseDuration(config.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid server shutdown timeout: %w", err)
	}

	if config.Chat.UnreadCap < 1 {
		return errors.New("chat unread_cap must be at least 1")
	}
	if config.Chat.MaxMessageLength < 1 {
		return errors.New("chat max_message_length must be at least 1")
	}
	if config.Chat.DefaultPageSize < 1 || config.Chat.MaxPageSize < config.Chat.DefaultPageSize {
		return errors.New("chat page sizes must satisfy 1 <= default_page_size <= max_page_size")
	}
	if config.Chat.SendBuffer < 1 {
		return errors.New("chat send_buffer must be at least 1")
	}

	if config.RateLimit.Enabled {
		if !config.Redis.Enabled {
			return errors.New("ratelimit requires redis to be enabled")
		}
		if _, err := time.ParseDuration(config.RateLimit.Window); err != nil {
			return fmt.Errorf("invalid ratelimit window: %w", err)
		}
	}

	if config.Kafka.Enabled && len(config.KafkaBrokers()) == 0 {
		return errors.New("kafka brokers are required when kafka is enabled")
	}

	return nil
}

// GetPostgresConnectionString returns postgres connection string
func (c *Config) GetPostgresConnectionString() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
		sslMode,
	)
}

// KafkaBrokers splits the comma separated broker list
func (c *Config) KafkaBrokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.Kafka.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Mode, "production")
}

// GetEnv gets an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt gets an environment variable as an integer or returns a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(GetEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
