package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigAppliesDefaultsFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9000"
database:
  driver: memory
jwt:
  secret: file-secret
chat:
  unread_cap: 50
`)
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("CHAT_MAX_PAGE_SIZE", "60")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, 50, cfg.Chat.UnreadCap)
	assert.Equal(t, 60, cfg.Chat.MaxPageSize)
	assert.Equal(t, 25, cfg.Chat.DefaultPageSize)
	assert.True(t, cfg.Redis.Enabled)
	assert.InDelta(t, 0.25, cfg.Tracing.SampleRatio, 1e-9)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"missing secret": "database:\n  driver: memory\n",
		"bad driver":     "database:\n  driver: mongo\njwt:\n  secret: s\n",
		"zero cap":       "database:\n  driver: memory\njwt:\n  secret: s\nchat:\n  unread_cap: 0\n",
		"page sizes":     "database:\n  driver: memory\njwt:\n  secret: s\nchat:\n  default_page_size: 50\n  max_page_size: 10\n",
		"ratelimit":      "database:\n  driver: memory\njwt:\n  secret: s\nratelimit:\n  enabled: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigRejectsMalformedEnv(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: memory\njwt:\n  secret: s\n")
	t.Setenv("CHAT_UNREAD_CAP", "lots")

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "CHAT_UNREAD_CAP")
}

func TestKafkaBrokers(t *testing.T) {
	cfg := &Config{}
	cfg.Kafka.Brokers = "a:9092, b:9092,,"
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers())
}
