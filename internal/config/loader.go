package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DOLPHINBOT_"

// legacyEnv maps the variable names of earlier deployments onto config keys.
var legacyEnv = map[string]string{
	"BOT_TOKEN":      "channels.telegram.token",
	"WEBHOOK_URL":    "channels.telegram.webhookUrl",
	"WEBHOOK_SECRET": "channels.telegram.webhookSecret",
	"ADMIN_USER_ID":  "admins",
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	return "dolphinbot.yml"
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists) and environment overrides, in increasing precedence.
// If path is empty, ConfigPath() is used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	k := koanf.New(".")

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("access config %s: %w", path, err)
	}

	if err := k.Load(env.ProviderWithValue("", ".", legacyKey), nil); err != nil {
		return nil, fmt.Errorf("load legacy env: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func legacyKey(name, value string) (string, any) {
	key, ok := legacyEnv[name]
	if !ok || value == "" {
		return "", nil
	}
	if name == "ADMIN_USER_ID" && value == "0" {
		return "", nil
	}
	return key, value
}

// envKey turns DOLPHINBOT_DISPATCH__HANDLER_TIMEOUT into dispatch.handlerTimeout.
func envKey(name string) string {
	name = strings.TrimPrefix(name, EnvPrefix)
	if name == "CONFIG" {
		return ""
	}
	parts := strings.Split(strings.ToLower(name), "__")
	for i, part := range parts {
		words := strings.Split(part, "_")
		for j := 1; j < len(words); j++ {
			if words[j] != "" {
				words[j] = strings.ToUpper(words[j][:1]) + words[j][1:]
			}
		}
		parts[i] = strings.Join(words, "")
	}
	return strings.Join(parts, ".")
}

// Save writes cfg to path as YAML.
// If path is empty, ConfigPath() is used.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
