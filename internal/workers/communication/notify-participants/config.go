// internal/workers/communication/notify-participants/config.go
package notifyparticipants

import (
	"time"

	"venueflow/internal/common/config"
)

type Config struct {
	Timeout      time.Duration
	EmailEnabled bool
	SMSEnabled   bool
	AWSRegion    string
	FromEmail    string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		EmailEnabled: true,
		SMSEnabled:   false,
		AWSRegion:    "ap-southeast-1",
	}
}

func FromNotificationConfig(cfg config.NotificationConfig) *Config {
	c := LoadConfig()
	c.EmailEnabled = cfg.EmailEnabled
	c.SMSEnabled = cfg.SMSEnabled
	if cfg.AWSRegion != "" {
		c.AWSRegion = cfg.AWSRegion
	}
	c.FromEmail = cfg.SenderEmail
	return c
}
