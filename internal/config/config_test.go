package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("UPLOAD_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 5001, cfg.Port)
	assert.Equal(t, 64, cfg.WSSendBuffer)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 24*time.Hour, cfg.AccessTokenTTL())
	assert.Equal(t, "0.0.0.0:5001", cfg.HTTPAddr())
	assert.Contains(t, cfg.DatabaseURL, "/keikkaduuni?sslmode=disable")
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("UPLOAD_DIR", t.TempDir())
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("HTTP_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 5001, cfg.Port)
}

func TestLoadRejects(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("UPLOAD_DIR", t.TempDir())

	t.Run("MissingSecret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := Load()
		assert.ErrorContains(t, err, "JWT_SECRET")
	})

	t.Run("UnknownDriver", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "s3cret")
		t.Setenv("DB_DRIVER", "mysql")
		_, err := Load()
		assert.ErrorContains(t, err, "DB_DRIVER")
	})
}
