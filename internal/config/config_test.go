package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8765", cfg.Addr)
	assert.Equal(t, "foxbridge", cfg.Name)
	assert.Equal(t, 500, cfg.MaxConnections)
	assert.Equal(t, 256, cfg.SendQueueSize)
	assert.Equal(t, float64(0), cfg.ClientMsgsPerSec)
	assert.Contains(t, cfg.Capabilities, "clientPublish")
	assert.Contains(t, cfg.Capabilities, "services")
	assert.Equal(t, []string{"json"}, cfg.SupportedEncodings)
	assert.Equal(t, []string{"fox.msg.>"}, cfg.NATSSubjects)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FB_ADDR", "127.0.0.1:9999")
	t.Setenv("FB_NAME", "custom")
	t.Setenv("FB_CAPABILITIES", "time,parameters")
	t.Setenv("FB_MAX_CONNECTIONS", "10")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.Addr)
	assert.Equal(t, "custom", cfg.Name)
	assert.Equal(t, []string{"time", "parameters"}, cfg.Capabilities)
	assert.Equal(t, 10, cfg.MaxConnections)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Addr = "" }},
		{"empty name", func(c *Config) { c.Name = "" }},
		{"zero max connections", func(c *Config) { c.MaxConnections = 0 }},
		{"zero send queue", func(c *Config) { c.SendQueueSize = 0 }},
		{"negative rate", func(c *Config) { c.ClientMsgsPerSec = -1 }},
		{"rate without burst", func(c *Config) { c.ClientMsgsPerSec = 5; c.ClientMsgBurst = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Addr:           ":8765",
				Name:           "foxbridge",
				MaxConnections: 500,
				SendQueueSize:  256,
				ClientMsgBurst: 100,
			}
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
