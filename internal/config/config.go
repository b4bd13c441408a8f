package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	megabyte = 1024 * 1024

	SessionBackendFile     = "file"
	SessionBackendMemory   = "memory"
	SessionBackendPostgres = "postgres"
)

// DatabaseConfig holds PostgreSQL connection settings for the postgres session backend.
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
}

// MinIOConfig holds object storage settings used to resolve s3:// sources.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether enough settings are present to build a client.
func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// SessionConfig controls session cookies and their server-side storage.
type SessionConfig struct {
	Backend string
	FileDir string
	TTL     time.Duration
}

// WorkspaceConfig controls the per-request scratch directories.
type WorkspaceConfig struct {
	Root            string
	Retention       time.Duration
	CleanupInterval time.Duration
}

// ConverterConfig tunes the format converters.
type ConverterConfig struct {
	MaxPDFBytes   int64
	SheetRowLimit int
	FetchTimeout  time.Duration
	TesseractPath string
	OCRLanguage   string
	HTMLMarkdown  bool
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables.
type AppConfig struct {
	AppHost        string
	Port           string
	LogLevel       string
	Timezone       string
	MaxUploadBytes int
	Workspace      WorkspaceConfig
	Session        SessionConfig
	Converter      ConverterConfig
	Database       DatabaseConfig
	MinIO          MinIOConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
func Load() *AppConfig {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	tmp := getEnv("TMPDIR", filepath.Join(cwd, "tmp"))

	return &AppConfig{
		AppHost:        getEnv("APP_HOST", "localhost:8008"),
		Port:           getEnv("PORT", "8008"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Timezone:       getEnv("TZ", "UTC"),
		MaxUploadBytes: getEnvInt("MAX_UPLOAD_BYTES", 250*megabyte),
		Workspace: WorkspaceConfig{
			Root:            getEnv("TEMP_ROOT", filepath.Join(tmp, "markitdown_conversions")),
			Retention:       getEnvDuration("WORKSPACE_RETENTION", time.Hour),
			CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", 5*time.Minute),
		},
		Session: SessionConfig{
			Backend: getEnv("SESSION_BACKEND", SessionBackendFile),
			FileDir: getEnv("SESSION_FILE_DIR", filepath.Join(cwd, "sessions")),
			TTL:     getEnvDuration("SESSION_TTL", time.Hour),
		},
		Converter: ConverterConfig{
			MaxPDFBytes:   getEnvInt64("PDF_MAX_BYTES", 125*megabyte),
			SheetRowLimit: getEnvInt("SHEET_ROW_LIMIT", 100),
			FetchTimeout:  getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
			TesseractPath: getEnv("TESSERACT_PATH", "tesseract"),
			OCRLanguage:   getEnv("OCR_LANG", "eng"),
			HTMLMarkdown:  getEnvBool("HTML_MARKDOWN", false),
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
	}
}

// Location resolves Timezone, falling back to UTC.
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

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go duration strings ("90s", "1h") or a bare number of seconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
