package gateway

import "time"

// GatewayConfig tunes outbound delivery.
type GatewayConfig struct {
	BufferSize  int           `yaml:"bufferSize" koanf:"bufferSize"` // outbound bus capacity
	MaxAttempts int           `yaml:"maxAttempts" koanf:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay" koanf:"baseDelay"`
	MaxDelay    time.Duration `yaml:"maxDelay" koanf:"maxDelay"`
	RatePerSec  float64       `yaml:"ratePerSec" koanf:"ratePerSec"` // per platform
	Burst       int           `yaml:"burst" koanf:"burst"`
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		BufferSize:  100,
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		RatePerSec:  25,
		Burst:       5,
	}
}
