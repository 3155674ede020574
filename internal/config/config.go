// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Port         string
	FrontendURL  string
	LogLevel     string
	DBPath       string
	AllowedUsers []string

	Agent           AgentConfig
	SSE             SSEConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
}

// AgentConfig describes the upstream agent service.
type AgentConfig struct {
	BaseURL        string
	AppName        string // app used for chat sessions
	SnapshotApp    string // app used by the spending snapshot collaborator
	RequestTimeout time.Duration

	// StreamHeaderTimeout bounds the wait for /run_sse response headers.
	// The body itself is read without a deadline.
	StreamHeaderTimeout time.Duration
}

// SSEConfig controls the chat stream relay.
type SSEConfig struct {
	MaxRequestBodySize   int64
	MaxLineSize          int
	MaxConcurrentStreams int64
}

// RateLimitConfig controls per-user chat throttling.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "3000")
	v.SetDefault("FRONTEND_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_PATH", "./data/spendchat.db")
	v.SetDefault("ALLOWED_USERS", "user-001,user-002,user-003")

	v.SetDefault("AGENT_BASE_URL", "http://localhost:8081")
	v.SetDefault("AGENT_APP_NAME", "spending_snapshot_agent")
	v.SetDefault("SNAPSHOT_APP_NAME", "cymbal")
	v.SetDefault("AGENT_REQUEST_TIMEOUT", 60*time.Second)
	v.SetDefault("AGENT_STREAM_HEADER_TIMEOUT", 30*time.Second)

	v.SetDefault("SSE_MAX_REQUEST_BODY_SIZE", 1<<20)
	v.SetDefault("SSE_MAX_LINE_SIZE", 1<<20)
	v.SetDefault("MAX_CONCURRENT_STREAMS", 64)

	v.SetDefault("RATE_LIMIT_REQUESTS", 20)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)

	v.SetDefault("CONVERSATION_LOG_ENABLED", false)
	v.SetDefault("CONVERSATION_LOG_DIR", "./data/logs/conversations")
	v.SetDefault("CONVERSATION_LOG_GLOBAL_ENABLED", false)
	v.SetDefault("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson")
	v.SetDefault("CONVERSATION_LOG_QUEUE_SIZE", 1000)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	queueSize := v.GetInt("CONVERSATION_LOG_QUEUE_SIZE")
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:         v.GetString("PORT"),
		FrontendURL:  v.GetString("FRONTEND_URL"),
		LogLevel:     strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		DBPath:       v.GetString("DB_PATH"),
		AllowedUsers: splitList(v.GetString("ALLOWED_USERS")),
		Agent: AgentConfig{
			BaseURL:             strings.TrimRight(v.GetString("AGENT_BASE_URL"), "/"),
			AppName:             v.GetString("AGENT_APP_NAME"),
			SnapshotApp:         v.GetString("SNAPSHOT_APP_NAME"),
			RequestTimeout:      v.GetDuration("AGENT_REQUEST_TIMEOUT"),
			StreamHeaderTimeout: v.GetDuration("AGENT_STREAM_HEADER_TIMEOUT"),
		},
		SSE: SSEConfig{
			MaxRequestBodySize:   v.GetInt64("SSE_MAX_REQUEST_BODY_SIZE"),
			MaxLineSize:          v.GetInt("SSE_MAX_LINE_SIZE"),
			MaxConcurrentStreams: v.GetInt64("MAX_CONCURRENT_STREAMS"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowDuration:    v.GetDuration("RATE_LIMIT_WINDOW"),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       v.GetBool("CONVERSATION_LOG_ENABLED"),
			Dir:           v.GetString("CONVERSATION_LOG_DIR"),
			GlobalEnabled: v.GetBool("CONVERSATION_LOG_GLOBAL_ENABLED"),
			GlobalPath:    v.GetString("CONVERSATION_LOG_GLOBAL_PATH"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if len(c.AllowedUsers) == 0 {
		return fmt.Errorf("ALLOWED_USERS must list at least one user")
	}
	if c.Agent.BaseURL == "" {
		return fmt.Errorf("AGENT_BASE_URL cannot be empty")
	}
	if c.Agent.AppName == "" || c.Agent.SnapshotApp == "" {
		return fmt.Errorf("AGENT_APP_NAME and SNAPSHOT_APP_NAME cannot be empty")
	}
	if c.SSE.MaxRequestBodySize <= 0 {
		return fmt.Errorf("SSE_MAX_REQUEST_BODY_SIZE must be > 0")
	}
	if c.SSE.MaxLineSize <= 0 {
		return fmt.Errorf("SSE_MAX_LINE_SIZE must be > 0")
	}
	if c.SSE.MaxConcurrentStreams <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_STREAMS must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalEnabled && c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins accepted by the API.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
