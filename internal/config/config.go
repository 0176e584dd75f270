// Package config provides Viper-based configuration loading for the relay.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// AllowedOrigins lists the CORS and WebSocket origins accepted. Empty allows all.
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WebSocketConfig holds per-connection transport settings.
type WebSocketConfig struct {
	ReadBufferSize  int `mapstructure:"read_buffer_size"`
	WriteBufferSize int `mapstructure:"write_buffer_size"`
	// SendBuffer is the number of outbound payloads queued per connection
	// before sends start failing.
	SendBuffer      int           `mapstructure:"send_buffer"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	// PingInterval of zero disables keepalive pings and read deadlines.
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// RedisConfig holds the match event feed settings.
type RedisConfig struct {
	// URL is a redis:// URL. Empty disables the event feed.
	URL            string        `mapstructure:"url"`
	ChannelPrefix  string        `mapstructure:"channel_prefix"`
	StatsKey       string        `mapstructure:"stats_key"`
	QueueSize      int           `mapstructure:"queue_size"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// Enabled reports whether the event feed should be wired.
func (r RedisConfig) Enabled() bool { return r.URL != "" }

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	for _, err := range []error{
		validateServer(c.Server),
		validateWebSocket(c.WebSocket),
		validateRedis(c.Redis),
		validateLogging(c.Logging),
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

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.ReadHeaderTimeout < 0 {
		errs = append(errs, "server.read_header_timeout must not be negative")
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "server.shutdown_timeout must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWebSocket(w WebSocketConfig) error {
	var errs []string
	if w.ReadBufferSize < 1 {
		errs = append(errs, fmt.Sprintf("websocket.read_buffer_size must be >= 1, got %d", w.ReadBufferSize))
	}
	if w.WriteBufferSize < 1 {
		errs = append(errs, fmt.Sprintf("websocket.write_buffer_size must be >= 1, got %d", w.WriteBufferSize))
	}
	if w.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("websocket.send_buffer must be >= 1, got %d", w.SendBuffer))
	}
	if w.MaxMessageBytes < 1 {
		errs = append(errs, fmt.Sprintf("websocket.max_message_bytes must be >= 1, got %d", w.MaxMessageBytes))
	}
	if w.WriteTimeout <= 0 {
		errs = append(errs, "websocket.write_timeout must be positive")
	}
	if w.PingInterval < 0 {
		errs = append(errs, "websocket.ping_interval must not be negative")
	}
	if w.PingInterval > 0 && w.PingInterval >= w.PongWait {
		errs = append(errs, "websocket.ping_interval must be shorter than websocket.pong_wait")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRedis(r RedisConfig) error {
	if !r.Enabled() {
		return nil
	}
	var errs []string
	if r.StatsKey == "" {
		errs = append(errs, "redis.stats_key must not be empty")
	}
	if r.QueueSize < 1 {
		errs = append(errs, fmt.Sprintf("redis.queue_size must be >= 1, got %d", r.QueueSize))
	}
	if r.PublishTimeout <= 0 {
		errs = append(errs, "redis.publish_timeout must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
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

// Load reads configuration from the given file path, applies environment
// variable overrides, and validates the result. An empty path skips the file
// and uses defaults plus environment.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with RELAY_ prefix
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Deployment platforms set these directly.
	_ = v.BindEnv("server.port", "RELAY_SERVER_PORT", "PORT")
	_ = v.BindEnv("redis.url", "RELAY_REDIS_URL", "REDIS_URL")

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.max_message_bytes", 1<<20)
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.ping_interval", "54s")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel_prefix", "match:")
	v.SetDefault("redis.stats_key", "relay:stats")
	v.SetDefault("redis.queue_size", 1024)
	v.SetDefault("redis.publish_timeout", "2s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
