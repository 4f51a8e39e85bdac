package channel

type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram" koanf:"telegram"`
	Slack    SlackConfig    `yaml:"slack" koanf:"slack"`
}

func DefaultChannelsConfig() ChannelsConfig {
	return ChannelsConfig{
		Telegram: DefaultTelegramConfig(),
		Slack:    DefaultSlackConfig(),
	}
}
