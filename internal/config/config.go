package config

import (
	"os"
	"strconv"
	"time"
)

// Resource names and the URL template are fixed for this deployment; they are
// deliberately not read from the environment.
const (
	ContainerName   = "Odoo RDD"
	DocumentName    = "Odoo_RDD_Template"
	LibraryName     = "Odoo_RDD_Library"
	DocumentURLBase = "https://docs.google.com/spreadsheets/d/"
)

// Supported values for StoreConfig.Backend.
const (
	BackendDrive  = "drive"
	BackendMinIO  = "minio"
	BackendMemory = "memory"
)

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Backend string
}

// DriveConfig holds Google Drive / Sheets client settings.
// When Endpoint is set both clients talk to it without authentication (simulators, tests).
type DriveConfig struct {
	CredentialsFile string
	TokenFile       string
	Endpoint        string
}

// DatabaseConfig holds PostgreSQL settings for the optional run ledger.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
	ConnectTimeoutSec  int
}

// Enabled reports whether a ledger database was configured.
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MetricsConfig holds Prometheus settings for one-shot runs.
type MetricsConfig struct {
	PushgatewayURL string
	Job            string
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string
	Format string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Port     string
	Timezone string
	Store    StoreConfig
	Drive    DriveConfig
	MinIO    MinIOConfig
	Database DatabaseConfig
	Metrics  MetricsConfig
	Log      LogConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
func Load() *AppConfig {
	return &AppConfig{
		Port:     getEnv("PORT", "8080"),
		Timezone: getEnv("APP_TIMEZONE", "UTC"),
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", BackendDrive),
		},
		Drive: DriveConfig{
			CredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
			TokenFile:       getEnv("GOOGLE_TOKEN_FILE", "token.json"),
			Endpoint:        getEnv("GOOGLE_API_ENDPOINT", ""),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 4),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
			ConnectTimeoutSec:  getEnvInt("DB_CONNECT_TIMEOUT_SEC", 5),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
			Job:            getEnv("PUSHGATEWAY_JOB", "driveprov"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
