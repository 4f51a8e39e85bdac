package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Channels.Telegram.Token = "123:abc"
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got: %v", err)
	}
}

func TestValidate_DefaultNeedsToken(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "telegram.token") {
		t.Errorf("expected missing token error, got %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"mode", func(c *Config) { c.Mode = "socket" }, "invalid mode"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"no platform", func(c *Config) { c.Channels.Telegram.Enabled = false }, "no platform enabled"},
		{"slack secret", func(c *Config) {
			c.Channels.Slack.Enabled = true
			c.Channels.Slack.BotToken = "xoxb"
		}, "signingSecret"},
		{"slack polling", func(c *Config) {
			c.Mode = ModePolling
			c.Channels.Slack.Enabled = true
			c.Channels.Slack.BotToken = "xoxb"
			c.Channels.Slack.SigningSecret = "s"
		}, "no polling mode"},
		{"attempts", func(c *Config) { c.Gateway.MaxAttempts = 0 }, "maxAttempts"},
		{"bad spec", func(c *Config) {
			c.Jobs = []JobConfig{{Name: "x", Spec: "every day", Platform: "telegram", ChatID: "1", Text: "hi"}}
		}, "invalid spec"},
		{"bad timezone", func(c *Config) {
			c.Jobs = []JobConfig{{Name: "x", Spec: "0 22 * * *", Timezone: "Mars/Olympus", Platform: "telegram", ChatID: "1", Text: "hi"}}
		}, "invalid timezone"},
		{"duplicate job", func(c *Config) {
			job := JobConfig{Name: "x", Spec: "@daily", Platform: "telegram", ChatID: "1", Text: "hi"}
			c.Jobs = []JobConfig{job, job}
		}, "duplicate name"},
		{"job platform", func(c *Config) {
			c.Jobs = []JobConfig{{Name: "x", Spec: "@daily", Platform: "irc", ChatID: "1", Text: "hi"}}
		}, "unknown platform"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8443
	if got := cfg.Addr(); got != "127.0.0.1:8443" {
		t.Errorf("Addr() = %q", got)
	}
}
