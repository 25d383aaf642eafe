package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Riboost-Studio/print-agent/internal/model"
)

// PlaceholderToken is the token shipped in sample .env files. Running with it
// is allowed but logged as a warning.
const PlaceholderToken = "un_token_secreto_para_autenticar_agentes"

// Config holds all configuration for the agent
type Config struct {
	ServerURL         string
	ConnectionTimeout time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	StatusInterval    time.Duration
	CleanupInterval   time.Duration

	AgentID      string
	Token        string
	RestaurantID string

	Printer      model.PrinterConfig
	PrintTimeout time.Duration
	DryRun       bool

	DefaultTemplate string
	QueueCapacity   int
	LogLevel        string
	RetentionDays   int
	AppDataDir      string
	StatusAddr      string
}

// Load loads configuration from the environment after applying the given
// .env files. Missing files are ignored.
func Load(envFiles ...string) (*Config, error) {
	loadEnvFiles(envFiles...)

	cfg := &Config{
		ServerURL:       getEnv("SERVER_URL", "ws://localhost:3000/agent"),
		AgentID:         getEnv("AGENT_ID", ""),
		Token:           getEnv("PRINT_AGENT_TOKEN", PlaceholderToken),
		RestaurantID:    getEnv("RESTAURANT_ID", ""),
		DefaultTemplate: getEnv("DEFAULT_TEMPLATE", "standard"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		AppDataDir:      getEnv("APP_DATA_DIR", ""),
		StatusAddr:      getEnv("STATUS_ADDR", ""),
		Printer: model.PrinterConfig{
			Type:      model.ParsePrinterType(getEnv("PRINTER_TYPE", "EPSON")),
			Interface: getEnv("PRINTER_INTERFACE", ""),
			Encoding:  getEnv("PRINTER_ENCODING", "PC850"),
			Mode:      model.PrinterMode(strings.ToLower(getEnv("PRINTER_MODE", string(model.PrinterModeText)))),
		},
	}

	var errs []error
	millis := func(key string, def int) time.Duration {
		v, err := getInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return time.Duration(v) * time.Millisecond
	}
	integer := func(key string, def int) int {
		v, err := getInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg.ConnectionTimeout = millis("CONNECTION_TIMEOUT", 20000)
	cfg.ReconnectDelay = millis("RECONNECT_DELAY", 5000)
	cfg.HeartbeatInterval = millis("HEARTBEAT_INTERVAL", 30000)
	cfg.StatusInterval = millis("STATUS_INTERVAL", 5*60*1000)
	cfg.CleanupInterval = millis("CLEANUP_INTERVAL", 60*60*1000)
	cfg.PrintTimeout = millis("PRINT_TIMEOUT", 10000)
	cfg.Printer.InitTimeout = millis("PRINTER_INIT_TIMEOUT", 5000)
	cfg.ReconnectAttempts = integer("RECONNECT_ATTEMPTS", 10)
	cfg.QueueCapacity = integer("QUEUE_CAPACITY", 100)
	cfg.RetentionDays = integer("RETENTION_DAYS", 7)
	cfg.Printer.Width = integer("PRINTER_WIDTH", 48)
	cfg.Printer.PixelWidth = integer("PRINTER_PIXEL_WIDTH", 576)

	dryRun, err := getBool("DRY_RUN", false)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.DryRun = dryRun

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the agent can start. The printer interface is only
// required when printing to hardware.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerURL == "" {
		errs = append(errs, errors.New("SERVER_URL is required"))
	} else if !strings.HasPrefix(c.ServerURL, "ws://") && !strings.HasPrefix(c.ServerURL, "wss://") &&
		!strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		errs = append(errs, fmt.Errorf("SERVER_URL %q must use ws, wss, http or https", c.ServerURL))
	}
	if c.RestaurantID == "" {
		errs = append(errs, errors.New("RESTAURANT_ID is required"))
	}
	if c.Token == "" {
		errs = append(errs, errors.New("PRINT_AGENT_TOKEN is required"))
	}
	if !c.DryRun && c.Printer.Interface == "" {
		errs = append(errs, errors.New("PRINTER_INTERFACE is required unless DRY_RUN is set"))
	}
	if c.Printer.Mode != model.PrinterModeText && c.Printer.Mode != model.PrinterModeRaster {
		errs = append(errs, fmt.Errorf("PRINTER_MODE %q must be text or raster", c.Printer.Mode))
	}
	if c.ReconnectAttempts < 0 {
		errs = append(errs, errors.New("RECONNECT_ATTEMPTS must not be negative"))
	}
	if c.QueueCapacity <= 0 {
		errs = append(errs, errors.New("QUEUE_CAPACITY must be positive"))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("HEARTBEAT_INTERVAL must be positive"))
	}
	if c.RetentionDays <= 0 {
		errs = append(errs, errors.New("RETENTION_DAYS must be positive"))
	}
	return errors.Join(errs...)
}

// UsesPlaceholderToken reports whether the sample token is in use.
func (c *Config) UsesPlaceholderToken() bool {
	return c.Token == PlaceholderToken
}

// Retention is the maximum age of printouts and logs.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Redacted is the snapshot persisted under config/ and included in backups.
// It never contains the token.
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"serverUrl":         c.ServerURL,
		"connectionTimeout": c.ConnectionTimeout.Milliseconds(),
		"reconnectAttempts": c.ReconnectAttempts,
		"reconnectDelay":    c.ReconnectDelay.Milliseconds(),
		"heartbeatInterval": c.HeartbeatInterval.Milliseconds(),
		"restaurantId":      c.RestaurantID,
		"printer": map[string]any{
			"type":      c.Printer.Type,
			"interface": c.Printer.Interface,
			"encoding":  c.Printer.Encoding,
			"width":     c.Printer.Width,
			"mode":      c.Printer.Mode,
		},
		"dryRun":          c.DryRun,
		"defaultTemplate": c.DefaultTemplate,
		"queueCapacity":   c.QueueCapacity,
		"retentionDays":   c.RetentionDays,
	}
}

func loadEnvFiles(files ...string) {
	if len(files) == 0 {
		// Try to load .env file (ignore error if it doesn't exist)
		_ = godotenv.Load()
		return
	}
	for _, f := range files {
		if f == "" {
			continue
		}
		_ = godotenv.Load(f)
	}
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
