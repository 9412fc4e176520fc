package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var overrideVars = []string{"MONGODB_URI", "PORT", "REDIS_URL", "LOG_LEVEL"}

// clearEnv unsets the override variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range overrideVars {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(writeConfig(t, "log:\n  format: json\n"))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "patient_records", cfg.Mongo.Database)
	assert.Equal(t, "patients", cfg.Mongo.Collection)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, "patients.events", cfg.Redis.Channel)
	assert.Equal(t, 30*time.Second, cfg.Cache.StatsTTL)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
server:
  port: 8080
  request_timeout: 2s
mongo:
  uri: mongodb://db:27017
  collection: people
redis:
  url: redis://cache:6379/0
rate_limit:
  enabled: true
  requests_per_second: 5
  burst: 10
cors:
  allowed_origins:
    - https://clinic.example.com
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
	assert.Equal(t, "patient_records", cfg.Mongo.Database)
	assert.Equal(t, "people", cfg.Mongo.Collection)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, []string{"https://clinic.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONGODB_URI", "mongodb://env:27017")
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_URL", "redis://env:6379")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PATIENTS_MONGO_DATABASE", "from_env")

	cfg, err := LoadConfig(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)

	assert.Equal(t, "mongodb://env:27017", cfg.Mongo.URI)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis://env:6379", cfg.Redis.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "from_env", cfg.Mongo.Database)
}

func TestLoadConfigErrors(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "server:\n  port: 70000\n"))
	assert.ErrorContains(t, err, "server.port")

	_, err = LoadConfig(writeConfig(t, "rate_limit:\n  enabled: true\n  burst: 0\n"))
	assert.ErrorContains(t, err, "rate_limit")

	t.Setenv("PORT", "not-a-port")
	_, err = LoadConfig(writeConfig(t, ""))
	assert.ErrorContains(t, err, "environment")
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Server: ServerConfig{Port: 3000},
		Mongo:  MongoConfig{Database: "patient_records", Collection: "patients"},
	}
	assert.NoError(t, cfg.Validate())

	cfg.Mongo.Collection = ""
	assert.Error(t, cfg.Validate())
}
