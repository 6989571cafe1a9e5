// Package config provides YAML-based configuration loading for txpipe.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	// Transport selects the link and where to bind or connect.
	Transport TransportConfig `mapstructure:"transport"`

	// Codec is the wire encoding: json or cbor. Both ends must agree.
	Codec string `mapstructure:"codec"`

	// Pipeline holds execution defaults.
	Pipeline PipelineConfig `mapstructure:"pipeline"`

	// Client holds client-mode options.
	Client ClientConfig `mapstructure:"client"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Metrics controls the Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Store configures the key/value pipeline's database.
	Store StoreConfig `mapstructure:"store"`
}

type TransportConfig struct {
	// Protocol: tcp, ws or mem
	Protocol string `mapstructure:"protocol"`
	// Interface is the bind address for servers and the target for clients.
	Interface string `mapstructure:"interface"`
	Port      int    `mapstructure:"port"`
}

type PipelineConfig struct {
	// Default is the pipeline run when a request does not name one.
	Default string `mapstructure:"default"`
	// Retries is the per-item attempt budget clients send by default.
	Retries int `mapstructure:"retries"`
	// AllOrNone is the policy clients send by default.
	AllOrNone bool `mapstructure:"all_or_none"`
	// RetryDelay is the server-side pause between attempts of one item.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type ClientConfig struct {
	// Timeout bounds one round trip; zero waits forever.
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Listen string `mapstructure:"listen"`
}

type StoreConfig struct {
	// Path is the badger directory; ignored when InMemory is set.
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			Protocol:  "tcp",
			Interface: "127.0.0.1",
			Port:      3333,
		},
		Codec: "json",
		Pipeline: PipelineConfig{
			Default:   "capitalize",
			Retries:   3,
			AllOrNone: false,
		},
		Client: ClientConfig{Timeout: 30 * time.Second},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: false,
			Rotation: RotationConfig{
				Enable:     false,
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Metrics: MetricsConfig{Enable: false, Listen: "127.0.0.1:9090"},
		Store:   StoreConfig{Path: "./data/kv", InMemory: false},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix TXPIPE and `.`/`-` are replaced with `_`.
// Example: TXPIPE_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TXPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("transport.protocol", cfg.Transport.Protocol)
	v.SetDefault("transport.interface", cfg.Transport.Interface)
	v.SetDefault("transport.port", cfg.Transport.Port)
	v.SetDefault("codec", cfg.Codec)
	v.SetDefault("pipeline.default", cfg.Pipeline.Default)
	v.SetDefault("pipeline.retries", cfg.Pipeline.Retries)
	v.SetDefault("pipeline.all_or_none", cfg.Pipeline.AllOrNone)
	v.SetDefault("pipeline.retry_delay", cfg.Pipeline.RetryDelay)
	v.SetDefault("client.timeout", cfg.Client.Timeout)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("metrics.enable", cfg.Metrics.Enable)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("store.in_memory", cfg.Store.InMemory)

	// Choose config file
	if path == "" {
		// Allow override via env var
		if envPath := os.Getenv("TXPIPE_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search common locations with base name `txpipe`
		v.SetConfigName("txpipe")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/txpipe")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".txpipe"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalises c and rejects values nothing downstream can use.
func (c *Config) Validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	c.Transport.Protocol = strings.ToLower(strings.TrimSpace(c.Transport.Protocol))
	if c.Transport.Protocol != "mem" && (c.Transport.Port < 1 || c.Transport.Port > 65535) {
		return fmt.Errorf("invalid transport.port: %d", c.Transport.Port)
	}
	if strings.TrimSpace(c.Transport.Interface) == "" {
		return errors.New("transport.interface is required")
	}

	c.Codec = strings.ToLower(strings.TrimSpace(c.Codec))
	if c.Pipeline.Retries < 1 {
		return fmt.Errorf("invalid pipeline.retries: %d (must be at least 1)", c.Pipeline.Retries)
	}
	if c.Pipeline.RetryDelay < 0 {
		return fmt.Errorf("invalid pipeline.retry_delay: %s", c.Pipeline.RetryDelay)
	}
	if c.Client.Timeout < 0 {
		return fmt.Errorf("invalid client.timeout: %s", c.Client.Timeout)
	}
	return nil
}
