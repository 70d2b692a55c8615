// Package config provides configuration loading for tripagent.
//
// Configuration is read from an optional YAML file and overridden by
// environment variables. Each binary uses the sections it needs.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the complete tripagent configuration.
type Config struct {
	Temporal      TemporalConfig      `koanf:"temporal"`
	Gateway       GatewayConfig       `koanf:"gateway"`
	Agent         AgentConfig         `koanf:"agent"`
	LLM           LLMConfig           `koanf:"llm"`
	Tools         ToolsConfig         `koanf:"tools"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// TemporalConfig holds the Temporal client and worker settings.
type TemporalConfig struct {
	Host                    string `koanf:"host"`
	Namespace               string `koanf:"namespace"`
	TaskQueue               string `koanf:"task_queue"`
	MaxConcurrentActivities int    `koanf:"max_concurrent_activities"`
}

// GatewayConfig holds HTTP gateway configuration.
type GatewayConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	QueryTimeout    Duration `koanf:"query_timeout"`
	SessionID       string   `koanf:"session_id"`
	CORSOrigins     []string `koanf:"cors_origins"`
	RateLimit       float64  `koanf:"rate_limit"` // requests per second per client IP
	RateBurst       int      `koanf:"rate_burst"`
}

// AgentConfig holds orchestration settings passed to each new session.
type AgentConfig struct {
	Goal         string `koanf:"goal"`
	MaxTurns     int    `koanf:"max_turns"`
	KeepMessages int    `koanf:"keep_messages"`
}

// LLMConfig holds settings for the OpenAI-compatible model endpoint.
type LLMConfig struct {
	BaseURL     string   `koanf:"base_url"`
	APIKey      Secret   `koanf:"api_key"`
	Model       string   `koanf:"model"`
	Temperature float64  `koanf:"temperature"`
	Timeout     Duration `koanf:"timeout"`
}

// ToolsConfig holds credentials and data sources for tool handlers.
type ToolsConfig struct {
	RapidAPIKey  Secret   `koanf:"rapidapi_key"`
	RapidAPIHost string   `koanf:"rapidapi_host"`
	StripeAPIKey Secret   `koanf:"stripe_api_key"`
	EventsFile   string   `koanf:"events_file"`
	HTTPTimeout  Duration `koanf:"http_timeout"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// OTEL also exports logs over OTLP when telemetry is enabled.
	OTEL bool `koanf:"otel"`
}

// ObservabilityConfig holds OpenTelemetry export settings.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"`
	Insecure        bool   `koanf:"insecure"`
	ServiceName     string `koanf:"service_name"`
}

// Defaults for values not provided by file or environment.
const (
	DefaultTemporalHost      = "localhost:7233"
	DefaultTemporalNamespace = "default"
	DefaultTaskQueue         = "agent-task-queue"
	DefaultSessionID         = "agent-workflow"
	DefaultGoal              = "goal_event_flight_invoice"
	DefaultMaxTurns          = 250
	DefaultKeepMessages      = 20
	DefaultMaxConcurrency    = 100
)

// Load loads configuration from the default file location and environment.
func Load() (*Config, error) {
	return LoadWithFile("")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Temporal.Host == "" {
		return errors.New("temporal host is required")
	}
	if c.Temporal.TaskQueue == "" {
		return errors.New("temporal task queue is required")
	}
	if c.Temporal.MaxConcurrentActivities < 1 {
		return fmt.Errorf("invalid max concurrent activities: %d (must be >= 1)", c.Temporal.MaxConcurrentActivities)
	}

	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d (must be 1-65535)", c.Gateway.Port)
	}
	if c.Gateway.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Gateway.QueryTimeout.Duration() <= 0 {
		return errors.New("query timeout must be positive")
	}
	if c.Gateway.RateLimit < 0 || c.Gateway.RateBurst < 0 {
		return errors.New("rate limit and burst cannot be negative")
	}

	if c.Agent.MaxTurns < 2 {
		return fmt.Errorf("invalid agent max turns: %d (must be >= 2)", c.Agent.MaxTurns)
	}
	if c.Agent.KeepMessages < 0 || c.Agent.KeepMessages >= c.Agent.MaxTurns {
		return fmt.Errorf("agent keep messages must be between 0 and max turns (%d), got %d",
			c.Agent.MaxTurns, c.Agent.KeepMessages)
	}

	if c.LLM.BaseURL != "" {
		u, err := url.Parse(c.LLM.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid llm base url: %q", c.LLM.BaseURL)
		}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2, got %v", c.LLM.Temperature)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Temporal.Host == "" {
		cfg.Temporal.Host = DefaultTemporalHost
	}
	if cfg.Temporal.Namespace == "" {
		cfg.Temporal.Namespace = DefaultTemporalNamespace
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = DefaultTaskQueue
	}
	if cfg.Temporal.MaxConcurrentActivities == 0 {
		cfg.Temporal.MaxConcurrentActivities = DefaultMaxConcurrency
	}

	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "0.0.0.0"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 8000
	}
	if cfg.Gateway.ShutdownTimeout == 0 {
		cfg.Gateway.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Gateway.QueryTimeout == 0 {
		cfg.Gateway.QueryTimeout = Duration(5 * time.Second)
	}
	if cfg.Gateway.SessionID == "" {
		cfg.Gateway.SessionID = DefaultSessionID
	}
	if len(cfg.Gateway.CORSOrigins) == 1 && strings.Contains(cfg.Gateway.CORSOrigins[0], ",") {
		cfg.Gateway.CORSOrigins = splitList(cfg.Gateway.CORSOrigins[0])
	}
	if len(cfg.Gateway.CORSOrigins) == 0 {
		cfg.Gateway.CORSOrigins = []string{"http://localhost:5173"}
	}
	if cfg.Gateway.RateLimit == 0 {
		cfg.Gateway.RateLimit = 5
	}
	if cfg.Gateway.RateBurst == 0 {
		cfg.Gateway.RateBurst = 20
	}

	if cfg.Agent.Goal == "" {
		cfg.Agent.Goal = DefaultGoal
	}
	if cfg.Agent.MaxTurns == 0 {
		cfg.Agent.MaxTurns = DefaultMaxTurns
	}
	if cfg.Agent.KeepMessages == 0 {
		cfg.Agent.KeepMessages = DefaultKeepMessages
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = Duration(60 * time.Second)
	}

	if cfg.Tools.RapidAPIHost == "" {
		cfg.Tools.RapidAPIHost = "sky-scrapper.p.rapidapi.com"
	}
	if cfg.Tools.HTTPTimeout == 0 {
		cfg.Tools.HTTPTimeout = Duration(20 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "tripagent"
	}
}

// splitList splits a comma separated env value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
