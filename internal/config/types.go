package config

// Config is the daemon configuration file (JSON, or YAML by extension).
// Unknown keys are rejected.
type Config struct {
	Logging  LoggingConfig   `json:"logging"`
	Cron     CronConfig      `json:"cron"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Debug    DebugConfig     `json:"debug"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// CronConfig controls the job scheduler.
//
// All durations are Go duration strings (e.g. "500ms", "5s", "10m").
//
// Defaults (when fields are omitted/zero):
//   - store: "./data/cron/jobs.json" (sqlite: "./data/cron/jobs.db")
//   - store_driver: "file"
//   - max_concurrent_runs: 1
//   - tick_interval: "5s"
//   - run_timeout: "10m"
//   - webhook_rate_per_sec: 5
//   - webhook_timeout: "10s"
type CronConfig struct {
	Enabled     bool   `json:"enabled"`
	Store       string `json:"store,omitempty"`
	StoreDriver string `json:"store_driver,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only

	MaxConcurrentRuns int    `json:"max_concurrent_runs,omitempty"`
	TickInterval      string `json:"tick_interval,omitempty"`
	RunTimeout        string `json:"run_timeout,omitempty"`

	// Timezone for cron expressions without their own tz. Empty means local.
	Timezone string `json:"timezone,omitempty"`

	// Deprecated: set delivery on each job instead. Jobs without a delivery
	// block that set notify=true still POST here.
	Webhook           string `json:"webhook,omitempty"`
	WebhookToken      string `json:"webhook_token,omitempty"`
	WebhookRatePerSec int    `json:"webhook_rate_per_sec,omitempty"`
	WebhookTimeout    string `json:"webhook_timeout,omitempty"`
}

// TelegramConfig enables the "telegram" announce channel. Omit the section
// to disable it.
type TelegramConfig struct {
	Token      string `json:"token"`
	APIURL     string `json:"api_url,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	RetryMax   int    `json:"retry_max,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// DebugConfig controls the pprof/status HTTP listener. Addr defaults to
// "127.0.0.1:6060"; a non-loopback addr needs a token.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}
