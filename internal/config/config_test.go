package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_TYPE", "memory")
	t.Setenv("APP_ENV", "")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("PORT", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("DEBUG", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.Equal(t, "__session", cfg.Session.CookieName)
	assert.Equal(t, 30*24*time.Hour, cfg.Session.MaxAge)
	assert.NotEmpty(t, cfg.Session.Secret)
	assert.Equal(t, "messages.new", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.Debug)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "postgresql://u:p@db:5432/chat?sslmode=disable")
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("SESSION_MAX_AGE", "1h")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("PRESENCE_FLUSH_INTERVAL", "250ms")
	t.Setenv("DEBUG", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "s3cret", cfg.Session.Secret)
	assert.Equal(t, time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.Presence.FlushInterval)
	assert.True(t, cfg.Debug)
}

func TestLoadConfigRequiresSecretInProduction(t *testing.T) {
	t.Setenv("DB_TYPE", "memory")
	t.Setenv("APP_ENV", "production")
	t.Setenv("SESSION_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigPostgresNeedsCredentials(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_USER", "")
	t.Setenv("APP_ENV", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestGetSSLModeFromURI(t *testing.T) {
	assert.Equal(t, "verify-full", getSSLModeFromURI("postgres://x/y?a=b&sslmode=verify-full"))
	assert.Equal(t, "require", getSSLModeFromURI("postgres://x/y"))
}
