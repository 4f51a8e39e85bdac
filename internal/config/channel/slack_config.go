package channel

// SlackConfig configures the Slack platform (Events API over HTTP).
type SlackConfig struct {
	Enabled       bool     `yaml:"enabled" koanf:"enabled"`
	BotToken      string   `yaml:"botToken" koanf:"botToken"`
	SigningSecret string   `yaml:"signingSecret" koanf:"signingSecret"`
	EventsPath    string   `yaml:"eventsPath" koanf:"eventsPath"`
	APIURL        string   `yaml:"apiUrl,omitempty" koanf:"apiUrl"`
	AllowFrom     []string `yaml:"allowFrom" koanf:"allowFrom"`
	ReplyInThread bool     `yaml:"replyInThread" koanf:"replyInThread"`
}

func DefaultSlackConfig() SlackConfig {
	return SlackConfig{
		EventsPath:    "/webhook/slack",
		ReplyInThread: true,
	}
}
