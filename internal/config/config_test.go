package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.APIServerPort)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, "dashboard_updates", cfg.RedisChannel)
	assert.Equal(t, "/realtimedata/", cfg.WSPath)
	assert.Equal(t, []string{"*"}, cfg.WSAllowedOrigins)
	assert.Equal(t, 16, cfg.SendQueueSize)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 500*time.Millisecond, cfg.BrokerBackoffInitial)
	assert.Equal(t, 30*time.Second, cfg.BrokerBackoffMax)
	assert.Equal(t, 30*time.Second, cfg.BrokerHealthCheck)
	assert.Equal(t, time.Duration(0), cfg.SnapshotTTL)
	assert.Equal(t, EnvProd, cfg.Env)
}

func TestNew_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")

	_, err := New()
	require.Error(t, err)
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("SOCKET_PORT", "4000")
	t.Setenv("WS_ALLOWED_ORIGINS", "example.com,*.example.org")
	t.Setenv("SEND_QUEUE_SIZE", "4")
	t.Setenv("ENV", "dev")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.APIServerPort)
	assert.Equal(t, []string{"example.com", "*.example.org"}, cfg.WSAllowedOrigins)
	assert.Equal(t, 4, cfg.SendQueueSize)
	assert.Equal(t, EnvDev, cfg.Env)
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown env", "ENV", "staging"},
		{"zero queue", "SEND_QUEUE_SIZE", "0"},
		{"zero ping", "PING_PERIOD", "0s"},
		{"initial above max", "BROKER_BACKOFF_INITIAL", "1m"},
		{"zero health check", "BROKER_HEALTH_CHECK", "0s"},
		{"negative ttl", "SNAPSHOT_TTL", "-1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET_KEY", "secret")
			t.Setenv(tt.key, tt.value)

			_, err := New()
			assert.Error(t, err)
		})
	}
}
