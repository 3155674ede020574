package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, []string{"user-001", "user-002", "user-003"}, cfg.AllowedUsers)
	assert.Equal(t, "http://localhost:8081", cfg.Agent.BaseURL)
	assert.Equal(t, "spending_snapshot_agent", cfg.Agent.AppName)
	assert.Equal(t, "cymbal", cfg.Agent.SnapshotApp)
	assert.Equal(t, int64(1<<20), cfg.SSE.MaxRequestBodySize)
	assert.Equal(t, time.Minute, cfg.RateLimit.WindowDuration)
	assert.False(t, cfg.ConversationLog.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_USERS", " alice , ,bob ")
	t.Setenv("AGENT_BASE_URL", "http://agent.internal:8081/")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("CONVERSATION_LOG_ENABLED", "true")
	t.Setenv("CONVERSATION_LOG_QUEUE_SIZE", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"alice", "bob"}, cfg.AllowedUsers)
	assert.Equal(t, "http://agent.internal:8081", cfg.Agent.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.WindowDuration)
	assert.True(t, cfg.ConversationLog.Enabled)
	assert.Equal(t, 1000, cfg.ConversationLog.QueueSize)
}

func TestLoadRejectsEmptyAllowList(t *testing.T) {
	t.Setenv("ALLOWED_USERS", " , ")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALLOWED_USERS")
}

func TestAllowedOrigins(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins())

	cfg.FrontendURL = "https://dash.example.com"
	assert.Equal(t, []string{"https://dash.example.com"}, cfg.AllowedOrigins())
}
