package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate checks that the configuration can start a bot.
func (c *Config) Validate() error {
	var errs []error

	if c.Mode != ModeWebhook && c.Mode != ModePolling {
		errs = append(errs, fmt.Errorf("invalid mode %q: must be webhook or polling", c.Mode))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.Server.Port))
	}

	tg := c.Channels.Telegram
	slack := c.Channels.Slack
	if !tg.Enabled && !slack.Enabled {
		errs = append(errs, errors.New("no platform enabled"))
	}
	if tg.Enabled && tg.Token == "" {
		errs = append(errs, errors.New("channels.telegram.token is required"))
	}
	if slack.Enabled {
		if slack.BotToken == "" {
			errs = append(errs, errors.New("channels.slack.botToken is required"))
		}
		if slack.SigningSecret == "" {
			errs = append(errs, errors.New("channels.slack.signingSecret is required"))
		}
		if c.Mode == ModePolling {
			errs = append(errs, errors.New("slack has no polling mode; use mode webhook"))
		}
	}

	if c.Dispatch.Workers < 0 || c.Dispatch.QueueSize < 0 || c.Dispatch.DedupSize < 0 {
		errs = append(errs, errors.New("dispatch sizes must be non-negative"))
	}
	if c.Gateway.MaxAttempts < 1 {
		errs = append(errs, errors.New("gateway.maxAttempts must be at least 1"))
	}

	seen := make(map[string]bool, len(c.Jobs))
	for i, job := range c.Jobs {
		if err := job.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("jobs[%d]: %w", i, err))
			continue
		}
		if seen[job.Name] {
			errs = append(errs, fmt.Errorf("jobs[%d]: duplicate name %q", i, job.Name))
		}
		seen[job.Name] = true
	}

	return errors.Join(errs...)
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks a single job definition.
func (j JobConfig) Validate() error {
	if j.Name == "" {
		return errors.New("name is required")
	}
	if _, err := cronParser.Parse(j.Spec); err != nil {
		return fmt.Errorf("job %s: invalid spec %q: %w", j.Name, j.Spec, err)
	}
	if j.Timezone != "" {
		if _, err := time.LoadLocation(j.Timezone); err != nil {
			return fmt.Errorf("job %s: invalid timezone %q: %w", j.Name, j.Timezone, err)
		}
	}
	if j.Platform != "telegram" && j.Platform != "slack" {
		return fmt.Errorf("job %s: unknown platform %q", j.Name, j.Platform)
	}
	if j.ChatID == "" {
		return fmt.Errorf("job %s: chatId is required", j.Name)
	}
	if j.Command == "" && j.Text == "" {
		return fmt.Errorf("job %s: command or text is required", j.Name)
	}
	return nil
}
