package cron

import (
	"context"
	"time"

	"agentcron/internal/cron/job"
	"agentcron/internal/cron/store"
	"agentcron/internal/eventbus"
)

const (
	DefaultTickInterval = 5 * time.Second
	DefaultRunTimeout   = 10 * time.Minute
)

// Event types published on the bus for every dispatched run.
const (
	EventRunStarted  = "cron.run.started"
	EventRunFinished = "cron.run.finished"
)

// Config controls the scheduler. The app layer maps config.cron into it.
type Config struct {
	Enabled           bool
	MaxConcurrentRuns int
	TickInterval      time.Duration

	// RunTimeout bounds a single backend call when the job has no
	// timeoutSeconds of its own.
	RunTimeout time.Duration

	// Location is the fallback timezone for cron schedules without tz.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	c.MaxConcurrentRuns = normalizeCapacity(c.MaxConcurrentRuns)
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	return c
}

// Backend executes a job. Implementations interpret the payload; the
// scheduler never does.
type Backend interface {
	Run(ctx context.Context, j job.Job) (job.RunResult, error)
}

// BackendFunc adapts a plain function to Backend.
type BackendFunc func(ctx context.Context, j job.Job) (job.RunResult, error)

func (f BackendFunc) Run(ctx context.Context, j job.Job) (job.RunResult, error) { return f(ctx, j) }

// Deliverer routes a finished run. It must absorb its own failures.
type Deliverer interface {
	Deliver(ctx context.Context, j job.Job, res job.RunResult)
}

type Deps struct {
	Store   *store.Store
	Backend Backend
	Router  Deliverer   // optional
	Bus     eventbus.Bus // optional

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

type ListOptions struct {
	IncludeDisabled bool
}

type RunMode int

const (
	// RunModeForce dispatches regardless of nextRunAt.
	RunModeForce RunMode = iota
	// RunModeDue dispatches only if the job is currently due.
	RunModeDue
)

// Status is a point-in-time summary of the scheduler.
type Status struct {
	Enabled    bool       `json:"enabled"`
	Started    bool       `json:"started"`
	Jobs       int        `json:"jobs"`
	InFlight   int        `json:"inFlight"`
	Capacity   int        `json:"capacity"`
	NextWakeAt *time.Time `json:"nextWakeAt,omitempty"`
	StorePath  string     `json:"storePath,omitempty"`
}

// RunEvent is the Data of EventRunStarted and EventRunFinished.
type RunEvent struct {
	JobID      string        `json:"jobId"`
	JobName    string        `json:"jobName"`
	Status     job.RunStatus `json:"status,omitempty"`
	Error      string        `json:"error,omitempty"`
	DurationMs int64         `json:"durationMs,omitempty"`
}
