package delivery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"agentcron/internal/cron/job"
)

const (
	DefaultRatePerSec = 5
	DefaultTimeout    = 10 * time.Second
)

// Config is resolved once at construction and again on Apply; the router
// never reads ambient configuration at delivery time.
type Config struct {
	// LegacyWebhook receives runs of jobs that have no delivery block and
	// set notify=true. Empty disables the fallback.
	LegacyWebhook string
	// WebhookToken is sent as a bearer token on every webhook POST.
	WebhookToken string
	RatePerSec   int
	Timeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = DefaultRatePerSec
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// SystemEvent is what a systemEvent delivery enqueues for the agent runtime.
type SystemEvent struct {
	JobID         string            `json:"jobId"`
	JobName       string            `json:"jobName"`
	Text          string            `json:"text"`
	SessionTarget job.SessionTarget `json:"sessionTarget"`
	Status        job.RunStatus     `json:"status"`
}

type SystemEventSink interface {
	Enqueue(ctx context.Context, ev SystemEvent) error
}

type HeartbeatRequester interface {
	RequestNow(reason string)
}

// Announcer sends text to a channel-specific target (for Telegram
// "<chat id>[:<thread id>]").
type Announcer interface {
	Announce(ctx context.Context, to, text string) error
}

type Deps struct {
	Events     SystemEventSink      // optional
	Heartbeat  HeartbeatRequester   // optional
	Announcers map[string]Announcer // keyed by delivery.channel
	HTTPClient *http.Client         // optional
}

// WebhookPayload is the JSON body POSTed for webhook deliveries.
type WebhookPayload struct {
	JobID      string        `json:"jobId"`
	JobName    string        `json:"jobName"`
	Status     job.RunStatus `json:"status"`
	Error      string        `json:"error,omitempty"`
	Output     string        `json:"output,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	DurationMs int64         `json:"durationMs"`
}

// DeliveryError is logged and dropped, never retried.
type DeliveryError struct {
	JobID string
	Mode  job.DeliveryMode
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver cron job %s via %s: %v", e.JobID, e.Mode, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
