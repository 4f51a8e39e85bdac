// Package config defines the configuration schema for dolphinbot.
//
// YAML keys use camelCase. Every key can be overridden from the
// environment as DOLPHINBOT_<SECTION>__<KEY>, with snake_case words, e.g.
// DOLPHINBOT_CHANNELS__TELEGRAM__WEBHOOK_SECRET.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/crystaldolphin/dolphinbot/internal/config/channel"
	"github.com/crystaldolphin/dolphinbot/internal/config/gateway"
)

const (
	ModeWebhook = "webhook"
	ModePolling = "polling"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host" koanf:"host"`
	Port            int           `yaml:"port" koanf:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout" koanf:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" koanf:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" koanf:"shutdownTimeout"`
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8000,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DispatchConfig tunes dedup, handler execution and the worker pool.
type DispatchConfig struct {
	Workers        int           `yaml:"workers" koanf:"workers"`
	QueueSize      int           `yaml:"queueSize" koanf:"queueSize"`
	IdleTimeout    time.Duration `yaml:"idleTimeout" koanf:"idleTimeout"`
	HandlerTimeout time.Duration `yaml:"handlerTimeout" koanf:"handlerTimeout"`
	DedupSize      int           `yaml:"dedupSize" koanf:"dedupSize"`
	DedupTTL       time.Duration `yaml:"dedupTtl" koanf:"dedupTtl"`
	FallbackReply  string        `yaml:"fallbackReply" koanf:"fallbackReply"`
	NoMatchReply   string        `yaml:"noMatchReply" koanf:"noMatchReply"`
	ForbiddenReply string        `yaml:"forbiddenReply" koanf:"forbiddenReply"`
}

func defaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Workers:        16,
		QueueSize:      64,
		IdleTimeout:    time.Minute,
		HandlerTimeout: 30 * time.Second,
		DedupSize:      10_000,
		DedupTTL:       24 * time.Hour,
		FallbackReply:  "Something went wrong. Please try again later.",
		ForbiddenReply: "This command is only available to administrators.",
	}
}

// JobConfig describes one cron job that injects a scheduled update.
type JobConfig struct {
	Name     string `yaml:"name" koanf:"name"`
	Spec     string `yaml:"spec" koanf:"spec"`         // 5-field cron expression
	Timezone string `yaml:"timezone" koanf:"timezone"` // IANA name, empty for local time
	Platform string `yaml:"platform" koanf:"platform"`
	ChatID   string `yaml:"chatId" koanf:"chatId"`
	Command  string `yaml:"command" koanf:"command"`
	Text     string `yaml:"text" koanf:"text"`
}

// Config is the root configuration object, loaded from dolphinbot.yml.
type Config struct {
	Mode     string                 `yaml:"mode" koanf:"mode"`
	Server   ServerConfig           `yaml:"server" koanf:"server"`
	Channels channel.ChannelsConfig `yaml:"channels" koanf:"channels"`
	Dispatch DispatchConfig         `yaml:"dispatch" koanf:"dispatch"`
	Gateway  gateway.GatewayConfig  `yaml:"gateway" koanf:"gateway"`
	Admins   []string               `yaml:"admins" koanf:"admins"`
	Jobs     []JobConfig            `yaml:"jobs" koanf:"jobs"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Mode:     ModeWebhook,
		Server:   defaultServerConfig(),
		Channels: channel.DefaultChannelsConfig(),
		Dispatch: defaultDispatchConfig(),
		Gateway:  gateway.DefaultGatewayConfig(),
	}
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
