package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"agentcron/internal/cron/job"
	logx "agentcron/pkg/logx"
)

type Router struct {
	log  logx.Logger
	deps Deps

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	client  *http.Client
}

func New(cfg Config, deps Deps, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{log: log, deps: deps}
	r.Apply(cfg)
	return r
}

// Apply swaps the legacy webhook, token, rate and timeout.
func (r *Router) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	cfg.LegacyWebhook = strings.TrimSpace(cfg.LegacyWebhook)

	client := r.deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	r.mu.Lock()
	r.cfg = cfg
	r.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	r.client = client
	r.mu.Unlock()
}

// Deliver routes one finished run. Errors are logged and dropped.
func (r *Router) Deliver(ctx context.Context, j job.Job, res job.RunResult) {
	log := r.log.With(logx.String("job_id", j.ID), logx.String("job", j.Name))

	mode, err := r.route(ctx, j, res)
	switch {
	case err != nil:
		de := &DeliveryError{JobID: j.ID, Mode: mode, Err: err}
		log.Warn("delivery failed", logx.Err(de))
	case mode != job.DeliveryNone:
		log.Debug("delivered", logx.String("mode", string(mode)))
	}

	if j.WakeMode == job.WakeNow && r.deps.Heartbeat != nil {
		r.deps.Heartbeat.RequestNow("cron:" + j.ID)
	}
}

func (r *Router) route(ctx context.Context, j job.Job, res job.RunResult) (job.DeliveryMode, error) {
	if j.Delivery == nil {
		r.mu.Lock()
		legacy := r.cfg.LegacyWebhook
		r.mu.Unlock()
		if legacy == "" || j.Notify == nil || !*j.Notify {
			return job.DeliveryNone, nil
		}
		return job.DeliveryWebhook, r.postWebhook(ctx, legacy, j, res)
	}

	d := *j.Delivery
	switch d.Mode {
	case job.DeliveryWebhook:
		return d.Mode, r.postWebhook(ctx, d.To, j, res)
	case job.DeliverySystemEvent:
		if r.deps.Events == nil {
			return d.Mode, errors.New("no system event sink configured")
		}
		return d.Mode, r.deps.Events.Enqueue(ctx, SystemEvent{
			JobID:         j.ID,
			JobName:       j.Name,
			Text:          Text(j, res),
			SessionTarget: j.SessionTarget,
			Status:        res.Status,
		})
	case job.DeliveryAnnounce:
		a := r.deps.Announcers[d.Channel]
		if a == nil {
			return d.Mode, fmt.Errorf("unknown announce channel %q", d.Channel)
		}
		return d.Mode, a.Announce(ctx, d.To, Text(j, res))
	case job.DeliveryNone:
		return d.Mode, nil
	default:
		return d.Mode, fmt.Errorf("unsupported delivery mode %q", d.Mode)
	}
}

// Text renders the human-readable outcome used by systemEvent and announce.
func Text(j job.Job, res job.RunResult) string {
	if res.Status == job.StatusError {
		return fmt.Sprintf("Cron job %q failed: %s", j.Name, res.Error)
	}
	if out := strings.TrimSpace(res.Output); out != "" {
		return out
	}
	return fmt.Sprintf("Cron job %q completed", j.Name)
}

func (r *Router) postWebhook(ctx context.Context, url string, j job.Job, res job.RunResult) error {
	r.mu.Lock()
	lim := r.limiter
	client := r.client
	token := r.cfg.WebhookToken
	timeout := r.cfg.Timeout
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	body, err := json.Marshal(WebhookPayload{
		JobID:      j.ID,
		JobName:    j.Name,
		Status:     res.Status,
		Error:      res.Error,
		Output:     res.Output,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		DurationMs: res.Duration().Milliseconds(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
