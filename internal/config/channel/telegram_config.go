package channel

// TelegramConfig configures the Telegram platform.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled" koanf:"enabled"`
	Token   string `yaml:"token" koanf:"token"`
	// AllowFrom lists sender ids or usernames. Empty allows everyone.
	AllowFrom []string `yaml:"allowFrom" koanf:"allowFrom"`
	// WebhookURL is the public URL registered with setWebhook.
	WebhookURL  string `yaml:"webhookUrl" koanf:"webhookUrl"`
	WebhookPath string `yaml:"webhookPath" koanf:"webhookPath"`
	// WebhookSecret is echoed by Telegram in X-Telegram-Bot-Api-Secret-Token.
	WebhookSecret  string `yaml:"webhookSecret" koanf:"webhookSecret"`
	APIEndpoint    string `yaml:"apiEndpoint,omitempty" koanf:"apiEndpoint"`
	PollTimeout    int    `yaml:"pollTimeout" koanf:"pollTimeout"` // seconds
	ReplyToMessage bool   `yaml:"replyToMessage" koanf:"replyToMessage"`
}

func DefaultTelegramConfig() TelegramConfig {
	return TelegramConfig{
		Enabled:     true,
		WebhookPath: "/webhook/telegram",
		PollTimeout: 30,
	}
}
