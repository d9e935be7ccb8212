package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
app:
  name: intake-api
  version: 1.2.0
database:
  host: db
  port: 3306
  user: ats
  password: secret
  name: ats
  charset: utf8mb4
  parse_time: true
  loc: UTC
webhook:
  url: http://n8n.local/webhook/resume
  timeout: 5s
intake:
  max_upload_size: 2048
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, int64(2048), cfg.Intake.MaxUploadSize)
	assert.Equal(t, 20, cfg.Intake.DefaultPageSize)
	assert.Equal(t, "intake:imports", cfg.Redis.ImportQueue)
	assert.Equal(t, time.Hour, cfg.Storage.S3.URLExpiry)
	assert.Equal(t, "ats:secret@tcp(db:3306)/ats?charset=utf8mb4&parseTime=true&loc=UTC", cfg.DatabaseDSN())
}

func TestWebhookTimeoutDefaultsToThirtySeconds(t *testing.T) {
	cfg, err := Parse([]byte("app:\n  name: x\n"))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Webhook.Timeout)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("WEBHOOK_URL", "http://override/hook")
	t.Setenv("DATABASE_DSN", "file:test.db")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "http://override/hook", cfg.Webhook.URL)
	assert.Equal(t, "file:test.db", cfg.DatabaseDSN())
	assert.Equal(t, "redis:6380", cfg.RedisAddr())
}

func TestRejectsUnknownDriver(t *testing.T) {
	_, err := Parse([]byte("database:\n  driver: oracle\n"))
	require.Error(t, err)
}

func TestLoadReadsConfigPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "intake-api", cfg.App.Name)
}
