package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_MAX_OPEN_CONNS", "20")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("SESSION_BACKEND", "postgres")
	t.Setenv("CLEANUP_INTERVAL", "90s")
	t.Setenv("TEMP_ROOT", "/var/tmp/conversions")

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, SessionBackendPostgres, cfg.Session.Backend)
	assert.Equal(t, 90*time.Second, cfg.Workspace.CleanupInterval)
	assert.Equal(t, "/var/tmp/conversions", cfg.Workspace.Root)
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "MAX_UPLOAD_BYTES", "PDF_MAX_BYTES", "WORKSPACE_RETENTION", "SESSION_TTL", "FETCH_TIMEOUT", "SHEET_ROW_LIMIT", "SESSION_BACKEND"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "8008", cfg.Port)
	assert.Equal(t, 250*1024*1024, cfg.MaxUploadBytes)
	assert.Equal(t, int64(125*1024*1024), cfg.Converter.MaxPDFBytes)
	assert.Equal(t, time.Hour, cfg.Workspace.Retention)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, 30*time.Second, cfg.Converter.FetchTimeout)
	assert.Equal(t, 100, cfg.Converter.SheetRowLimit)
	assert.Equal(t, SessionBackendFile, cfg.Session.Backend)
	assert.False(t, cfg.MinIO.Enabled())
}

func TestLocation(t *testing.T) {
	cfg := &AppConfig{Timezone: "Not/AZone"}
	assert.Equal(t, time.UTC, cfg.Location())

	cfg.Timezone = "UTC"
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	os.Setenv(key, "value")
	defer os.Unsetenv(key)

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	os.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	os.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	os.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	os.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))
	assert.Equal(t, int64(123), getEnvInt64(key, 0))

	os.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))
	assert.Equal(t, int64(10), getEnvInt64(key, 10))

	os.Unsetenv(key)
	assert.Equal(t, 10, getEnvInt(key, 10))
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_DURATION_VAR"

	t.Setenv(key, "2m")
	assert.Equal(t, 2*time.Minute, getEnvDuration(key, time.Second))

	t.Setenv(key, "45")
	assert.Equal(t, 45*time.Second, getEnvDuration(key, time.Second))

	t.Setenv(key, "soon")
	assert.Equal(t, time.Second, getEnvDuration(key, time.Second))
}
