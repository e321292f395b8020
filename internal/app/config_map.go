package app

import (
	"fmt"
	"strings"
	"time"

	"agentcron/internal/config"
	"agentcron/internal/cron"
	"agentcron/internal/cron/delivery"
	"agentcron/internal/cron/store"
	"agentcron/internal/observability/debugsrv"
	"agentcron/internal/transport/telegram"
	logx "agentcron/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	c := cfg.Cron
	driver := strings.ToLower(strings.TrimSpace(c.StoreDriver))
	sc := store.Config{Driver: driver, Path: strings.TrimSpace(c.Store)}
	if driver == "sqlite" || driver == "sqlite3" {
		busy, err := config.ParseDurationOrDefault("cron.busy_timeout", c.BusyTimeout, time.Second)
		if err != nil {
			return store.Config{}, err
		}
		sc.BusyTimeout = busy
	}
	return sc, nil
}

func mapCronConfig(cfg *config.Config) (cron.Config, error) {
	c := cfg.Cron
	tick, err := config.ParseDurationOrDefault("cron.tick_interval", c.TickInterval, cron.DefaultTickInterval)
	if err != nil {
		return cron.Config{}, err
	}
	runTimeout, err := config.ParseDurationOrDefault("cron.run_timeout", c.RunTimeout, cron.DefaultRunTimeout)
	if err != nil {
		return cron.Config{}, err
	}
	var loc *time.Location
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return cron.Config{}, fmt.Errorf("cron.timezone: invalid %q: %w", tz, err)
		}
	}
	return cron.Config{
		Enabled:           c.Enabled,
		MaxConcurrentRuns: c.MaxConcurrentRuns,
		TickInterval:      tick,
		RunTimeout:        runTimeout,
		Location:          loc,
	}, nil
}

func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	c := cfg.Cron
	timeout, err := config.ParseDurationOrDefault("cron.webhook_timeout", c.WebhookTimeout, delivery.DefaultTimeout)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{
		LegacyWebhook: c.Webhook,
		WebhookToken:  c.WebhookToken,
		RatePerSec:    c.WebhookRatePerSec,
		Timeout:       timeout,
	}, nil
}

func mapDebugConfig(cfg *config.Config) debugsrv.Config {
	return debugsrv.Config{
		Enabled: cfg.Debug.Enabled,
		Addr:    strings.TrimSpace(cfg.Debug.Addr),
		Token:   strings.TrimSpace(cfg.Debug.Token),
	}
}

// mapTelegramConfig returns ok=false when the section is absent.
func mapTelegramConfig(cfg *config.Config) (telegram.Config, bool, error) {
	t := cfg.Telegram
	if t == nil {
		return telegram.Config{}, false, nil
	}
	timeout, err := config.ParseDurationOrDefault("telegram.timeout", t.Timeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, false, err
	}
	return telegram.Config{
		Token:      t.Token,
		APIURL:     t.APIURL,
		RatePerSec: t.RatePerSec,
		RetryMax:   t.RetryMax,
		Timeout:    timeout,
	}, true, nil
}

// validate rejects a reload the running services could not apply.
func validate(cfg *config.Config) error {
	if _, err := mapCronConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStoreConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDeliveryConfig(cfg); err != nil {
		return err
	}
	_, _, err := mapTelegramConfig(cfg)
	return err
}
