package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Riboost-Studio/print-agent/internal/model"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
		check   func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 20*time.Second, cfg.ConnectionTimeout)
				assert.Equal(t, 10, cfg.ReconnectAttempts)
				assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
				assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
				assert.Equal(t, 5*time.Minute, cfg.StatusInterval)
				assert.Equal(t, time.Hour, cfg.CleanupInterval)
				assert.Equal(t, "standard", cfg.DefaultTemplate)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, 100, cfg.QueueCapacity)
				assert.Equal(t, 7*24*time.Hour, cfg.Retention())
				assert.Equal(t, model.PrinterEpson, cfg.Printer.Type)
				assert.Equal(t, model.PrinterModeText, cfg.Printer.Mode)
				assert.Equal(t, 48, cfg.Printer.Width)
				assert.False(t, cfg.DryRun)
				assert.True(t, cfg.UsesPlaceholderToken())
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"SERVER_URL":         "wss://print.example.com/agent",
				"CONNECTION_TIMEOUT": "1500",
				"RECONNECT_ATTEMPTS": "3",
				"RECONNECT_DELAY":    "250",
				"HEARTBEAT_INTERVAL": "1000",
				"PRINT_AGENT_TOKEN":  "secret",
				"RESTAURANT_ID":      "42",
				"PRINTER_TYPE":       "star",
				"PRINTER_INTERFACE":  "tcp://10.0.0.9:9100",
				"PRINTER_MODE":       "RASTER",
				"DRY_RUN":            "true",
				"QUEUE_CAPACITY":     "5",
				"RETENTION_DAYS":     "2",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "wss://print.example.com/agent", cfg.ServerURL)
				assert.Equal(t, 1500*time.Millisecond, cfg.ConnectionTimeout)
				assert.Equal(t, 3, cfg.ReconnectAttempts)
				assert.Equal(t, 250*time.Millisecond, cfg.ReconnectDelay)
				assert.Equal(t, time.Second, cfg.HeartbeatInterval)
				assert.Equal(t, "42", cfg.RestaurantID)
				assert.Equal(t, model.PrinterStar, cfg.Printer.Type)
				assert.Equal(t, model.PrinterModeRaster, cfg.Printer.Mode)
				assert.True(t, cfg.DryRun)
				assert.Equal(t, 5, cfg.QueueCapacity)
				assert.Equal(t, 48*time.Hour, cfg.Retention())
				assert.False(t, cfg.UsesPlaceholderToken())
				assert.NoError(t, cfg.Validate())
			},
		},
		{
			name:    "invalid timeout",
			env:     map[string]string{"CONNECTION_TIMEOUT": "soon"},
			wantErr: "invalid CONNECTION_TIMEOUT",
		},
		{
			name:    "invalid dry run",
			env:     map[string]string{"DRY_RUN": "maybe"},
			wantErr: "invalid DRY_RUN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	os.Clearenv()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RESTAURANT_ID=7\nDRY_RUN=1\n"), 0o644))
	t.Cleanup(func() {
		_ = os.Unsetenv("RESTAURANT_ID")
		_ = os.Unsetenv("DRY_RUN")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7", cfg.RestaurantID)
	assert.True(t, cfg.DryRun)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			ServerURL:         "ws://localhost:3000/agent",
			Token:             "t",
			RestaurantID:      "1",
			ReconnectAttempts: 10,
			QueueCapacity:     10,
			HeartbeatInterval: time.Second,
			RetentionDays:     7,
			Printer:           model.PrinterConfig{Interface: "tcp://printer:9100", Mode: model.PrinterModeText},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no server", func(c *Config) { c.ServerURL = "" }, "SERVER_URL is required"},
		{"bad scheme", func(c *Config) { c.ServerURL = "ftp://x" }, "must use ws"},
		{"no restaurant", func(c *Config) { c.RestaurantID = "" }, "RESTAURANT_ID"},
		{"no token", func(c *Config) { c.Token = "" }, "PRINT_AGENT_TOKEN"},
		{"no interface", func(c *Config) { c.Printer.Interface = "" }, "PRINTER_INTERFACE"},
		{"no interface in dry run", func(c *Config) { c.Printer.Interface = ""; c.DryRun = true }, ""},
		{"bad mode", func(c *Config) { c.Printer.Mode = "pdf" }, "PRINTER_MODE"},
		{"zero queue", func(c *Config) { c.QueueCapacity = 0 }, "QUEUE_CAPACITY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedactedOmitsToken(t *testing.T) {
	cfg := &Config{Token: "super-secret", RestaurantID: "1"}
	snap := cfg.Redacted()
	for _, v := range snap {
		assert.NotEqual(t, "super-secret", v)
	}
	_, ok := snap["token"]
	assert.False(t, ok)
}
