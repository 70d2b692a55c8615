package telemetry

import (
	"testing"
	"time"

	"github.com/fyrsmithlabs/tripagent/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.ObservabilityConfig{
		EnableTelemetry: true,
		Endpoint:        "collector.internal:4318",
		Protocol:        "HTTP/protobuf",
		ServiceName:     "tripagent-worker",
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, ProtocolHTTP, cfg.Protocol)
	assert.Equal(t, "tripagent-worker", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.False(t, cfg.Insecure)
	require.NoError(t, cfg.Validate())
}

func TestFromSettings_LocalIsInsecure(t *testing.T) {
	cfg := FromSettings(config.ObservabilityConfig{Endpoint: "127.0.0.1:4317"}, "")
	assert.True(t, cfg.Insecure)
	assert.Equal(t, "dev", cfg.ServiceVersion)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"disabled skips checks", func(c *Config) { c.Enabled = false; c.Endpoint = "" }, ""},
		{"valid", func(*Config) {}, ""},
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint is required"},
		{"missing service", func(c *Config) { c.ServiceName = "" }, "service name"},
		{"bad protocol", func(c *Config) { c.Protocol = "udp" }, "protocol must be"},
		{"insecure remote", func(c *Config) { c.Endpoint = "otel.example.com:4317" }, "insecure export"},
		{"rate too high", func(c *Config) { c.SampleRate = 1.5 }, "sample rate"},
		{"zero interval", func(c *Config) { c.ExportInterval = 0 }, "export interval"},
		{"zero shutdown", func(c *Config) { c.ShutdownTimeout = -time.Second }, "shutdown timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestIsLocalEndpoint(t *testing.T) {
	tests := map[string]bool{
		"localhost:4317":        true,
		"127.0.0.1:4317":        true,
		"127.1.2.3":             true,
		"[::1]:4317":            true,
		"::1":                   true,
		"http://localhost:4318": true,
		"otel.example.com:4317": false,
		"10.0.0.5:4317":         false,
	}
	for endpoint, want := range tests {
		assert.Equal(t, want, isLocalEndpoint(endpoint), endpoint)
	}
}
