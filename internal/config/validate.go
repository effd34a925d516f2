package config

import (
	"fmt"
	"strings"
)

// Validate checks cross-field constraints that the strict decoder can't.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Capture.Dialect)) {
	case "", "en", "ko":
	default:
		return fmt.Errorf("capture.dialect: unknown dialect %q (want \"en\" or \"ko\")", c.Capture.Dialect)
	}

	if _, err := ParseDurationField("capture.cooldown", c.Capture.Cooldown); err != nil {
		return err
	}
	if _, err := ParseDurationField("capture.agent.timeout", c.Capture.Agent.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(c.Notify.Sink)) {
	case "", "none":
	case "webhook":
		if c.Notify.Webhook == nil || strings.TrimSpace(c.Notify.Webhook.Endpoint) == "" {
			return fmt.Errorf("notify.webhook.endpoint is required for the webhook sink")
		}
		if strings.TrimSpace(c.Notify.Webhook.Host) == "" {
			return fmt.Errorf("notify.webhook.host is required for the webhook sink")
		}
		if _, err := ParseDurationField("notify.webhook.timeout", c.Notify.Webhook.Timeout); err != nil {
			return err
		}
	case "telegram":
		if c.Notify.Telegram == nil || strings.TrimSpace(c.Notify.Telegram.Token) == "" {
			return fmt.Errorf("notify.telegram.token is required for the telegram sink")
		}
		if c.Notify.Telegram.ChatID == 0 {
			return fmt.Errorf("notify.telegram.chat_id is required for the telegram sink")
		}
	default:
		return fmt.Errorf("notify.sink: unknown sink %q", c.Notify.Sink)
	}

	if c.Refresh.Enabled {
		if _, _, err := ParseClock(c.Refresh.At); err != nil {
			return fmt.Errorf("refresh.at: %w", err)
		}
	}
	return nil
}

// ParseClock parses a local wall-clock time of day ("HH:mm" or "H:mm").
// An empty string means 04:00, the original default refresh hour.
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 4, 0, nil
	}
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q (want HH:mm)", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock time %q out of range", s)
	}
	return hour, minute, nil
}
