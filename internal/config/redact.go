package config

const masked = "********"

// Redacted returns a copy of c with credentials masked, for display.
func (c Config) Redacted() Config {
	mask := func(s *string) {
		if *s != "" {
			*s = masked
		}
	}
	mask(&c.Channels.Telegram.Token)
	mask(&c.Channels.Telegram.WebhookSecret)
	mask(&c.Channels.Slack.BotToken)
	mask(&c.Channels.Slack.SigningSecret)
	return c
}
