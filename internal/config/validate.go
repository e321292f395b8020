package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Validate checks values the strict decoder cannot: durations, timezone,
// store driver and URLs. All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	c := cfg.Cron
	for path, raw := range map[string]string{
		"cron.busy_timeout":    c.BusyTimeout,
		"cron.tick_interval":   c.TickInterval,
		"cron.run_timeout":     c.RunTimeout,
		"cron.webhook_timeout": c.WebhookTimeout,
	} {
		_, err := ParseDurationField(path, raw)
		add(err)
	}
	switch strings.ToLower(strings.TrimSpace(c.StoreDriver)) {
	case "", "file", "json", "sqlite", "sqlite3":
	default:
		add(fmt.Errorf("cron.store_driver: unknown driver %q", c.StoreDriver))
	}
	if c.MaxConcurrentRuns < 0 {
		add(errors.New("cron.max_concurrent_runs must be >= 0"))
	}
	if c.WebhookRatePerSec < 0 {
		add(errors.New("cron.webhook_rate_per_sec must be >= 0"))
	}
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("cron.timezone: %w", err))
		}
	}
	if w := strings.TrimSpace(c.Webhook); w != "" {
		u, err := url.Parse(w)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add(fmt.Errorf("cron.webhook: invalid URL %q", w))
		}
	}

	if t := cfg.Telegram; t != nil {
		if strings.TrimSpace(t.Token) == "" {
			add(errors.New("telegram.token is required when the telegram section is present"))
		}
		_, err := ParseDurationField("telegram.timeout", t.Timeout)
		add(err)
	}
	if d := cfg.Debug; d.Enabled && strings.TrimSpace(d.Addr) != "" {
		if _, _, err := net.SplitHostPort(d.Addr); err != nil {
			add(fmt.Errorf("debug.addr: %w", err))
		}
	}
	return errors.Join(errs...)
}
