package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Blob     BlobConfig
	Schemas  SchemasConfig
	Queue    QueueConfig
	LLM      LLMConfig
}

// DatabaseConfig holds job-store configuration.
// DSN selects the backend: a postgres:// URL uses the pgx store,
// anything else is treated as a SQLite file path.
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr string
}

// BlobConfig holds document blob storage configuration.
// When FTPAddr is empty, documents are stored under LocalDir.
type BlobConfig struct {
	FTPAddr     string
	FTPUser     string
	FTPPassword string
	FTPBasePath string
	FTPTimeout  time.Duration
	LocalDir    string
}

// SchemasConfig holds extraction schema provider configuration
type SchemasConfig struct {
	Dir string
}

// QueueConfig holds worker pool and job liveness configuration
type QueueConfig struct {
	Workers        int
	PollInterval   time.Duration
	LeaseTTL       time.Duration
	ReapInterval   time.Duration
	MaxAttempts    int
	ProcessTimeout time.Duration
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", "./data/jobs.db"),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Blob: BlobConfig{
			FTPAddr:     getEnv("FTP_ADDR", ""),
			FTPUser:     getEnv("FTP_USER", ""),
			FTPPassword: getEnv("FTP_PASSWORD", ""),
			FTPBasePath: getEnv("FTP_BASE_PATH", "/docuscan/files"),
			FTPTimeout:  getEnvAsDuration("FTP_TIMEOUT", 30*time.Second),
			LocalDir:    getEnv("BLOB_DIR", "./data/files"),
		},
		Schemas: SchemasConfig{
			Dir: getEnv("SCHEMAS_DIR", "./schemas"),
		},
		Queue: QueueConfig{
			Workers:        getEnvAsInt("QUEUE_WORKERS", 4),
			PollInterval:   getEnvAsDuration("QUEUE_POLL_INTERVAL", 500*time.Millisecond),
			LeaseTTL:       getEnvAsDuration("QUEUE_LEASE_TTL", 5*time.Minute),
			ReapInterval:   getEnvAsDuration("QUEUE_REAP_INTERVAL", 30*time.Second),
			MaxAttempts:    getEnvAsInt("QUEUE_MAX_ATTEMPTS", 3),
			ProcessTimeout: getEnvAsDuration("QUEUE_PROCESS_TIMEOUT", 3*time.Minute),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Queue.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "QUEUE_WORKERS must be positive", ErrInvalidInput)
	}
	return nil
}
