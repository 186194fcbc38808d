package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8083", cfg.Server.Addr)
	assert.Equal(t, "chat_sync_events", cfg.AMQP.Exchange)
	assert.Equal(t, 5*time.Second, cfg.Client.ReconnectMaxInterval)
	assert.Equal(t, uint64(120), cfg.Client.ReconnectMaxAttempts)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("CHATSYNC_SERVER_ADDR", ":9999")
	t.Setenv("CHATSYNC_AMQP_AUDIT_ROUTING_KEY", "audit.custom")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "audit.custom", cfg.AMQP.AuditRoutingKey)
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":7070\"\ndatabase:\n  dsn: \"postgres://x\"\n"), 0o600))
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "postgres://x", cfg.Database.DSN)
	// Untouched sections keep their defaults.
	assert.Equal(t, "chat_sync_events", cfg.AMQP.Exchange)
}
