// Package config provides Viper-based configuration loading for the game server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TelnetConfig holds Telnet acceptor settings.
type TelnetConfig struct {
	// Host is the bind address for the Telnet listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the Telnet listener. Zero picks a random port.
	Port int `mapstructure:"port"`
	// ReadTimeout is the per-read timeout for Telnet connections.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write timeout for Telnet connections.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxConnections caps concurrent Telnet clients; zero means unlimited.
	MaxConnections int `mapstructure:"max_connections"`
}

// Addr returns the "host:port" listen address.
func (t TelnetConfig) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// HTTPConfig holds the websocket/HTTP listener settings.
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// AllowedOrigins is the CORS origin allow-list.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// RequestsPerMinute is the per-IP rate limit; zero disables limiting.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// Addr returns the "host:port" listen address.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// HealthConfig holds the gRPC health endpoint settings.
type HealthConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
func (h HealthConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// CoordinatorConfig sizes the request queue and per-connection push buffers.
type CoordinatorConfig struct {
	// QueueSize is the capacity of the bounded request queue.
	QueueSize int `mapstructure:"queue_size"`
	// OutboxSize is the capacity of each connection's push buffer.
	OutboxSize int `mapstructure:"outbox_size"`
}

// ReconnectConfig controls the signed reconnect keys handed to players.
type ReconnectConfig struct {
	// Secret is the HMAC key; empty disables reconnect keys.
	Secret string `mapstructure:"secret"`
	// TTL is how long an issued key stays valid.
	TTL time.Duration `mapstructure:"ttl"`
}

// Enabled reports whether reconnect keys are issued.
func (r ReconnectConfig) Enabled() bool {
	return r.Secret != ""
}

// Config is the top-level application configuration.
type Config struct {
	Telnet      TelnetConfig      `mapstructure:"telnet"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Health      HealthConfig      `mapstructure:"health"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Reconnect   ReconnectConfig   `mapstructure:"reconnect"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, err := range []error{
		validateTelnet(c.Telnet),
		validateHTTP(c.HTTP),
		validateHealth(c.Health),
		validateLogging(c.Logging),
		validateCoordinator(c.Coordinator),
		validateReconnect(c.Reconnect),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool {
	return p >= 0 && p <= 65535
}

func validateTelnet(t TelnetConfig) error {
	var errs []string
	if !validPort(t.Port) {
		errs = append(errs, fmt.Sprintf("telnet.port must be 0-65535, got %d", t.Port))
	}
	if t.ReadTimeout < 0 {
		errs = append(errs, "telnet.read_timeout must not be negative")
	}
	if t.WriteTimeout < 0 {
		errs = append(errs, "telnet.write_timeout must not be negative")
	}
	if t.MaxConnections < 0 {
		errs = append(errs, "telnet.max_connections must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateHTTP(h HTTPConfig) error {
	var errs []string
	if !validPort(h.Port) {
		errs = append(errs, fmt.Sprintf("http.port must be 0-65535, got %d", h.Port))
	}
	if h.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Sprintf("http.requests_per_minute must be >= 0, got %d", h.RequestsPerMinute))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateHealth(h HealthConfig) error {
	if !validPort(h.Port) {
		return fmt.Errorf("health.port must be 0-65535, got %d", h.Port)
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateCoordinator(c CoordinatorConfig) error {
	var errs []string
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Sprintf("coordinator.queue_size must be >= 1, got %d", c.QueueSize))
	}
	if c.OutboxSize < 1 {
		errs = append(errs, fmt.Sprintf("coordinator.outbox_size must be >= 1, got %d", c.OutboxSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateReconnect(r ReconnectConfig) error {
	if r.Enabled() && r.TTL <= 0 {
		return errors.New("reconnect.ttl must be positive when reconnect.secret is set")
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with SCRABBLE_ prefix
	v.SetEnvPrefix("SCRABBLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only the built-in defaults.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telnet.host", "0.0.0.0")
	v.SetDefault("telnet.port", 4000)
	v.SetDefault("telnet.read_timeout", "30m")
	v.SetDefault("telnet.write_timeout", "30s")
	v.SetDefault("telnet.max_connections", 256)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("http.requests_per_minute", 600)

	v.SetDefault("health.host", "127.0.0.1")
	v.SetDefault("health.port", 50051)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("coordinator.queue_size", 32)
	v.SetDefault("coordinator.outbox_size", 64)

	v.SetDefault("reconnect.secret", "")
	v.SetDefault("reconnect.ttl", "2h")
}
