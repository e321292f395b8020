package job

import (
	"bytes"
	"encoding/json"
	"time"

	"agentcron/internal/cron/schedule"
)

type State string

const (
	StateIdle     State = "idle"
	StateDue      State = "due"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
)

type SessionTarget string

const (
	SessionMain     SessionTarget = "main"
	SessionIsolated SessionTarget = "isolated"
)

type WakeMode string

const (
	WakeNextHeartbeat WakeMode = "next-heartbeat"
	WakeNow           WakeMode = "now"
)

type DeliveryMode string

const (
	DeliveryWebhook     DeliveryMode = "webhook"
	DeliverySystemEvent DeliveryMode = "systemEvent"
	DeliveryAnnounce    DeliveryMode = "announce"
	DeliveryNone        DeliveryMode = "none"
)

// Delivery describes where a run's outcome goes.
type Delivery struct {
	Mode    DeliveryMode `json:"mode"`
	To      string       `json:"to,omitempty"`
	Channel string       `json:"channel,omitempty"`
}

// Payload is opaque to the scheduler. It must be a JSON object carrying a
// non-empty "kind"; everything else is passed through untouched.
type Payload json.RawMessage

func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*p = nil
		return nil
	}
	*p = append((*p)[:0], b...)
	return nil
}

// Kind returns the payload's "kind" tag ("" when absent or not an object).
func (p Payload) Kind() string {
	var head struct {
		Kind string `json:"kind"`
	}
	if len(p) == 0 || json.Unmarshal(p, &head) != nil {
		return ""
	}
	return head.Kind
}

// NewPayload marshals v (usually a map or struct with a "kind" field).
func NewPayload(v any) (Payload, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Payload(b), nil
}

type RunStatus string

const (
	StatusOK    RunStatus = "ok"
	StatusError RunStatus = "error"
)

// Job is a named, independently schedulable unit. Field names are the
// on-disk schema.
type Job struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Enabled        bool              `json:"enabled"`
	Schedule       schedule.Schedule `json:"schedule"`
	SessionTarget  SessionTarget     `json:"sessionTarget"`
	WakeMode       WakeMode          `json:"wakeMode"`
	Payload        Payload           `json:"payload"`
	Delivery       *Delivery         `json:"delivery,omitempty"`
	Notify         *bool             `json:"notify,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	LastStartedAt  *time.Time `json:"lastStartedAt,omitempty"`
	LastDurationMs int64      `json:"lastDurationMs,omitempty"`
	LastStatus     RunStatus  `json:"lastStatus,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	NextRunAt      *time.Time `json:"nextRunAt,omitempty"`
	State          State      `json:"state"`
}

// Clone returns a deep copy so callers can't mutate shared records.
func (j Job) Clone() Job {
	cp := j
	if j.Payload != nil {
		cp.Payload = append(Payload(nil), j.Payload...)
	}
	if j.Delivery != nil {
		d := *j.Delivery
		cp.Delivery = &d
	}
	if j.Notify != nil {
		n := *j.Notify
		cp.Notify = &n
	}
	if j.Schedule.At != nil {
		at := *j.Schedule.At
		cp.Schedule.At = &at
	}
	cp.LastRunAt = cloneTime(j.LastRunAt)
	cp.LastStartedAt = cloneTime(j.LastStartedAt)
	cp.NextRunAt = cloneTime(j.NextRunAt)
	return cp
}

// Timeout returns the per-job execution timeout override (0 = use default).
func (j Job) Timeout() time.Duration {
	if j.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(j.TimeoutSeconds) * time.Second
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// RunResult is produced by the execution backend for one dispatch.
type RunResult struct {
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	Output     string    `json:"output,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func (r RunResult) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Create is the input to Service.Add.
type Create struct {
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	Enabled        *bool             `json:"enabled,omitempty"`
	Schedule       schedule.Schedule `json:"schedule"`
	SessionTarget  SessionTarget     `json:"sessionTarget,omitempty"`
	WakeMode       WakeMode          `json:"wakeMode,omitempty"`
	Payload        Payload           `json:"payload"`
	Delivery       *Delivery         `json:"delivery,omitempty"`
	Notify         *bool             `json:"notify,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`
}

// Patch holds optional fields for Service.Update. Only non-nil fields apply.
type Patch struct {
	Name           *string            `json:"name,omitempty"`
	Description    *string            `json:"description,omitempty"`
	Enabled        *bool              `json:"enabled,omitempty"`
	Schedule       *schedule.Schedule `json:"schedule,omitempty"`
	SessionTarget  *SessionTarget     `json:"sessionTarget,omitempty"`
	WakeMode       *WakeMode          `json:"wakeMode,omitempty"`
	Payload        Payload            `json:"payload,omitempty"`
	Delivery       *Delivery          `json:"delivery,omitempty"`
	ClearDelivery  bool               `json:"clearDelivery,omitempty"`
	Notify         *bool              `json:"notify,omitempty"`
	TimeoutSeconds *int               `json:"timeoutSeconds,omitempty"`
}
