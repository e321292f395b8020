package config

import (
	"strings"

	logx "agentcron/pkg/logx"
)

// SummarizeConfigChange lists the changed sections and safe log fields.
// Tokens are reported only as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 3)
	fields := make([]logx.Field, 0, 12)

	ol, nl := oldCfg.Logging, newCfg.Logging
	if ol.Level != nl.Level || ol.Console != nl.Console ||
		ol.File.Enabled != nl.File.Enabled || strings.TrimSpace(ol.File.Path) != strings.TrimSpace(nl.File.Path) {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", nl.Level),
			logx.Bool("logging.console", nl.Console),
			logx.Bool("logging.file_enabled", nl.File.Enabled),
		)
	}

	oc, nc := oldCfg.Cron, newCfg.Cron
	oTok, nTok := oc.WebhookToken, nc.WebhookToken
	oc.WebhookToken, nc.WebhookToken = "", ""
	if oc != nc || oTok != nTok {
		changed = append(changed, "cron")
		fields = append(fields,
			logx.Bool("cron.enabled", nc.Enabled),
			logx.String("cron.store_driver", nc.StoreDriver),
			logx.Int("cron.max_concurrent_runs", nc.MaxConcurrentRuns),
			logx.String("cron.tick_interval", nc.TickInterval),
			logx.String("cron.run_timeout", nc.RunTimeout),
			logx.String("cron.timezone", nc.Timezone),
			logx.Bool("cron.webhook_set", strings.TrimSpace(nc.Webhook) != ""),
			logx.Bool("cron.webhook_token_set", strings.TrimSpace(nTok) != ""),
		)
	}

	ot, nt := derefTelegram(oldCfg.Telegram), derefTelegram(newCfg.Telegram)
	if (oldCfg.Telegram == nil) != (newCfg.Telegram == nil) || ot != nt {
		changed = append(changed, "telegram")
		fields = append(fields,
			logx.Bool("telegram.enabled", newCfg.Telegram != nil),
			logx.Bool("telegram.token_set", strings.TrimSpace(nt.Token) != ""),
			logx.Int("telegram.rate_per_sec", nt.RatePerSec),
		)
	}
	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		fields = append(fields,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
		)
	}
	return changed, fields
}

// StorageChanged reports whether the cron store location or driver changed;
// those need a restart rather than a hot reload.
func StorageChanged(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return false
	}
	return strings.TrimSpace(oldCfg.Cron.Store) != strings.TrimSpace(newCfg.Cron.Store) ||
		!strings.EqualFold(strings.TrimSpace(oldCfg.Cron.StoreDriver), strings.TrimSpace(newCfg.Cron.StoreDriver))
}

func derefTelegram(t *TelegramConfig) TelegramConfig {
	if t == nil {
		return TelegramConfig{}
	}
	return *t
}
