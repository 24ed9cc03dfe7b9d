package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "port: 8080\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, 600, cfg.Dispatch.PacingMS)
	assert.Equal(t, 100, cfg.Dispatch.BatchLimit)
	assert.Equal(t, 5, cfg.Webhook.MaxAttempts)
	assert.Equal(t, 30, cfg.Webhook.BackoffBaseSec)
	assert.Equal(t, 256, cfg.Webhook.QueueSize)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "port: 8080\nnot_a_field: true\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yml  string
	}{
		{name: "port out of range", yml: "port: 70000\n"},
		{name: "bad database port", yml: "database:\n  port: -1\n"},
		{name: "bad redis db", yml: "redis:\n  db: -2\n"},
		{name: "scanner enabled without base url", yml: "scanner:\n  enable: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yml))
			assert.Error(t, err)
		})
	}
}

func TestLoadScannerBaseURLTrimmed(t *testing.T) {
	path := writeConfig(t, "scanner:\n  enable: true\n  base_url: https://scan.likeness.test/\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://scan.likeness.test", cfg.Scanner.BaseURL)
}

func TestDSNValue(t *testing.T) {
	c := DatabaseConfig{
		Host:      "db.internal",
		Port:      3306,
		User:      "likeness",
		Password:  "s3cret",
		Name:      "likeness",
		Charset:   "utf8mb4",
		ParseTime: true,
		Loc:       "Local",
	}
	dsn := c.DSNValue()
	assert.Contains(t, dsn, "likeness:s3cret@tcp(db.internal:3306)/likeness?")
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.Contains(t, dsn, "parseTime=true")

	explicit := DatabaseConfig{DSN: "user@tcp(custom)/db"}
	assert.Equal(t, "user@tcp(custom)/db", explicit.DSNValue())
}

func TestRedisURLValue(t *testing.T) {
	c := RedisConfig{Host: "cache.internal", Port: 6380, DB: 2, Password: "pw"}
	assert.Equal(t, "redis://:pw@cache.internal:6380/2", c.URLValue())

	tls := RedisConfig{Host: "cache.internal", Port: 6379, TLS: true}
	assert.Equal(t, "rediss://cache.internal:6379/0", tls.URLValue())

	explicit := RedisConfig{URL: "localhost:6379"}
	assert.Equal(t, "redis://localhost:6379", explicit.URLValue())
}
