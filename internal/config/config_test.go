package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "configs")
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "data/timesheets.db", cfg.Database.Path)
	assert.Equal(t, 8.0, cfg.Validation.DailyMin)
	assert.Equal(t, 10.0, cfg.Validation.DailyMax)
	assert.Equal(t, 56.0, cfg.Validation.WeeklyMax)
	assert.True(t, cfg.Validation.EnforceDailyMax)
	assert.Equal(t, "explicit", cfg.Workflow.ReviewMode)
	assert.Equal(t, 3, cfg.Workflow.MaxConflictRetries)
	assert.Equal(t, time.Monday, cfg.WeekStartDay())
	assert.Equal(t, "local", cfg.Lock.Backend)
	assert.Equal(t, time.Minute, cfg.Billing.PollInterval)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
workflow:
  review_mode: auto_forward
  week_start: Sunday
lock:
  backend: redis
  redis_url: redis://localhost:6379/0
  ttl: 3s
billing:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "auto_forward", cfg.Workflow.ReviewMode)
	assert.Equal(t, time.Sunday, cfg.WeekStartDay())
	assert.Equal(t, 3*time.Second, cfg.Lock.TTL)
	assert.False(t, cfg.Billing.Enabled)

	cc := cfg.ToContainerConfig()
	assert.Equal(t, "redis://localhost:6379/0", cc.Lock.RedisURL)
	assert.Equal(t, time.Sunday, cc.Workflow.WeekStart)
	assert.Equal(t, 56.0, cc.Validation.WeeklyMax)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("DATABASE_PATH", "/tmp/override.db")
	t.Setenv("COMPANY_NAME", "Acme")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, "Acme", cfg.Billing.CompanyName)
}

func TestLoad_DotEnv(t *testing.T) {
	path := writeConfig(t, "")
	envFile := filepath.Join(filepath.Dir(path), "..", ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("COMPANY_NAME=FromDotEnv\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("COMPANY_NAME") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "FromDotEnv", cfg.Billing.CompanyName)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:     ServerConfig{Port: 8080},
			Database:   DatabaseConfig{Path: "x.db"},
			Validation: ValidationConfig{DailyMin: 8, DailyMax: 10, WeeklyMax: 56},
			Workflow:   WorkflowConfig{ReviewMode: "explicit", MaxConflictRetries: 3, WeekStart: "monday"},
			Lock:       LockConfig{Backend: "none"},
			Billing:    BillingConfig{Enabled: true, PollInterval: time.Minute, StorageDir: "data"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"db path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"min over max", func(c *Config) { c.Validation.DailyMin = 12 }, "daily_min"},
		{"review mode", func(c *Config) { c.Workflow.ReviewMode = "manual" }, "review_mode"},
		{"retries", func(c *Config) { c.Workflow.MaxConflictRetries = -1 }, "max_conflict_retries"},
		{"week start", func(c *Config) { c.Workflow.WeekStart = "someday" }, "week_start"},
		{"lock backend", func(c *Config) { c.Lock.Backend = "etcd" }, "lock.backend"},
		{"redis url", func(c *Config) { c.Lock.Backend = "redis" }, "redis_url"},
		{"billing storage", func(c *Config) { c.Billing.StorageDir = "" }, "storage_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
