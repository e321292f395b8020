package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentcron/internal/cron/job"
	"agentcron/internal/cron/schedule"
	"agentcron/internal/cron/store"
	"agentcron/internal/eventbus"
	"agentcron/internal/runtime/supervisor"
	logx "agentcron/pkg/logx"
)

// Service is the facade over the job table. Its mutex serializes every
// store and gate mutation, including persistence.
type Service struct {
	log     logx.Logger
	store   *store.Store
	backend Backend
	router  Deliverer
	bus     eventbus.Bus
	now     func() time.Time

	mu      sync.Mutex
	cfg     Config
	calc    schedule.Calculator
	gate    *gate
	started bool
	live    map[string]int // job id -> runs still executing, across Stop/Start
	sup     *supervisor.Supervisor

	runs sync.WaitGroup
}

func New(cfg Config, deps Deps, log logx.Logger) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("cron: store is required")
	}
	if deps.Backend == nil {
		return nil, errors.New("cron: backend is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	cfg = cfg.withDefaults()
	return &Service{
		log:     log,
		store:   deps.Store,
		backend: deps.Backend,
		router:  deps.Router,
		bus:     deps.Bus,
		now:     now,
		cfg:     cfg,
		calc:    schedule.Calculator{Location: cfg.Location},
		gate:    newGate(cfg.MaxConcurrentRuns),
		live:    map[string]int{},
	}, nil
}

// Start loads the store, repairs run state left behind by a crash and arms
// the tick loop. Calling it on a started service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if err := s.store.Load(ctx); err != nil {
		return err
	}

	now := s.now()
	changed := 0
	for _, j := range s.store.List() {
		if s.live[j.ID] > 0 {
			// Still executing from before a Stop; its completion settles it.
			continue
		}
		before := j.State
		beforeNext := j.NextRunAt
		switch {
		case !j.Enabled:
			if j.State != job.StateDisabled || j.NextRunAt != nil {
				j.State = job.StateDisabled
				j.NextRunAt = nil
			}
		case j.State == job.StateRunning || j.State == job.StateDue:
			// The run never completed; keep nextRunAt so the job is
			// dispatched again.
			j.State = job.StateIdle
			if j.NextRunAt == nil {
				s.refreshLocked(&j, now)
			}
		case j.NextRunAt == nil || j.State == job.StateDisabled:
			s.refreshLocked(&j, now)
		}
		if j.State != before || !sameTime(j.NextRunAt, beforeNext) {
			s.store.Upsert(j)
			changed++
		}
	}
	if changed > 0 {
		if err := s.store.Save(ctx); err != nil {
			return fmt.Errorf("persist repaired jobs: %w", err)
		}
		s.log.Info("repaired job run state", logx.Int("jobs", changed))
	}

	s.started = true
	if s.cfg.Enabled {
		s.armLocked()
	}
	s.log.Info("service started",
		logx.Bool("enabled", s.cfg.Enabled),
		logx.Int("jobs", s.store.Len()),
		logx.Int("max_concurrent_runs", s.gate.Capacity()),
		logx.String("store", s.store.Path()),
	)
	return nil
}

// Stop halts future ticks. In-flight runs are not cancelled. A run finishing
// while stopped releases its gate slot but neither persists nor delivers; one
// finishing after a new Start is folded in as usual.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	sup := s.sup
	s.sup = nil
	inflight := s.gate.InFlight()
	s.mu.Unlock()

	var err error
	if sup != nil {
		err = sup.Stop(ctx)
	}
	s.log.Info("service stopped", logx.Int("in_flight", inflight), logx.Duration("took", time.Since(start)))
	return err
}

// Wait blocks until every in-flight run (including its delivery) returned.
// Call it only after Stop, when no new run can be admitted.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply hot-reloads capacity, timeouts, timezone and the enabled flag.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	s.calc = schedule.Calculator{Location: cfg.Location}
	s.gate.SetCapacity(cfg.MaxConcurrentRuns)

	if !s.started {
		return
	}
	rearm := old.Enabled != cfg.Enabled || old.TickInterval != cfg.TickInterval
	if rearm && s.sup != nil {
		s.sup.Cancel()
		s.sup = nil
	}
	if rearm && cfg.Enabled {
		s.armLocked()
	}
	if old.Enabled != cfg.Enabled || old.MaxConcurrentRuns != cfg.MaxConcurrentRuns {
		s.log.Info("config applied",
			logx.Bool("enabled", cfg.Enabled),
			logx.Int("max_concurrent_runs", cfg.MaxConcurrentRuns),
			logx.Duration("tick_interval", cfg.TickInterval),
		)
	}
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Enabled:   s.cfg.Enabled,
		Started:   s.started,
		Jobs:      s.store.Len(),
		InFlight:  s.gate.InFlight(),
		Capacity:  s.gate.Capacity(),
		StorePath: s.store.Path(),
	}
	for _, j := range s.store.List() {
		if !j.Enabled || j.State == job.StateRunning || j.NextRunAt == nil {
			continue
		}
		if st.NextWakeAt == nil || j.NextRunAt.Before(*st.NextWakeAt) {
			t := *j.NextRunAt
			st.NextWakeAt = &t
		}
	}
	return st
}

// Add validates c, assigns an id and the initial nextRunAt, and persists.
func (s *Service) Add(ctx context.Context, c job.Create) (job.Job, error) {
	c.Normalize()
	if err := job.ValidateCreate(c); err != nil {
		return job.Job{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return job.Job{}, ErrNotStarted
	}

	now := s.now()
	enabled := true
	if c.Enabled != nil {
		enabled = *c.Enabled
	}
	j := job.Job{
		ID:             uuid.NewString(),
		Name:           c.Name,
		Description:    c.Description,
		Enabled:        enabled,
		Schedule:       c.Schedule,
		SessionTarget:  c.SessionTarget,
		WakeMode:       c.WakeMode,
		Payload:        c.Payload,
		Delivery:       c.Delivery,
		Notify:         c.Notify,
		TimeoutSeconds: c.TimeoutSeconds,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	j = j.Clone()
	s.refreshLocked(&j, now)

	s.store.Upsert(j)
	if err := s.store.Save(ctx); err != nil {
		s.store.Delete(j.ID)
		return job.Job{}, fmt.Errorf("persist job: %w", err)
	}
	s.log.Info("job added", logx.String("job_id", j.ID), logx.String("name", j.Name), logx.String("schedule", j.Schedule.String()))
	return j.Clone(), nil
}

func (s *Service) GetJob(id string) (job.Job, bool) {
	return s.store.Get(id)
}

// List returns jobs in insertion order, skipping disabled ones unless asked.
func (s *Service) List(opts ListOptions) []job.Job {
	all := s.store.List()
	if opts.IncludeDisabled {
		return all
	}
	out := all[:0]
	for _, j := range all {
		if j.Enabled {
			out = append(out, j)
		}
	}
	return out
}

// Update applies p to job id. A running job stays running; its completion
// recomputes the schedule from the patched record.
func (s *Service) Update(ctx context.Context, id string, p job.Patch) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return job.Job{}, ErrNotStarted
	}
	prev, ok := s.store.Get(id)
	if !ok {
		return job.Job{}, ErrNotFound
	}

	next := p.Apply(prev)
	if err := job.Validate(next); err != nil {
		return job.Job{}, err
	}

	now := s.now()
	next.UpdatedAt = now
	scheduleChanged := p.Schedule != nil && !sameSchedule(prev.Schedule, next.Schedule)
	if scheduleChanged && next.Schedule.OneShot() {
		next.LastRunAt = nil
	}
	if next.State != job.StateRunning {
		if scheduleChanged || prev.Enabled != next.Enabled || next.NextRunAt == nil {
			s.refreshLocked(&next, now)
		}
	}

	s.store.Upsert(next)
	if err := s.store.Save(ctx); err != nil {
		s.store.Upsert(prev)
		return job.Job{}, fmt.Errorf("persist job: %w", err)
	}
	s.log.Info("job updated", logx.String("job_id", id), logx.Bool("enabled", next.Enabled))
	return next.Clone(), nil
}

// Remove deletes job id. A run in flight finishes without being rescheduled
// or delivered.
func (s *Service) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return false, ErrNotStarted
	}
	prev, ok := s.store.Get(id)
	if !ok {
		return false, nil
	}
	s.store.Delete(id)
	if err := s.store.Save(ctx); err != nil {
		s.store.Upsert(prev)
		return false, fmt.Errorf("persist removal: %w", err)
	}
	s.log.Info("job removed", logx.String("job_id", id), logx.String("state", string(prev.State)))
	return true, nil
}

// Run triggers job id outside the tick loop. It reports false when the job
// is already running, not due (RunModeDue) or the gate is full.
func (s *Service) Run(ctx context.Context, id string, mode RunMode) (bool, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return false, ErrNotStarted
	}
	j, ok := s.store.Get(id)
	if !ok {
		s.mu.Unlock()
		return false, ErrNotFound
	}
	now := s.now()
	if j.State == job.StateRunning || s.live[id] > 0 {
		s.mu.Unlock()
		return false, nil
	}
	if mode == RunModeDue && !isDue(j, now) {
		s.mu.Unlock()
		return false, nil
	}
	if !s.gate.TryAcquire() {
		s.mu.Unlock()
		return false, nil
	}
	prev := j.Clone()
	markRunning(&j, now)
	s.store.Upsert(j)
	if err := s.store.Save(ctx); err != nil {
		s.store.Upsert(prev)
		s.gate.Release()
		s.mu.Unlock()
		return false, fmt.Errorf("persist run state: %w", err)
	}
	r := s.admitLocked(j)
	s.mu.Unlock()

	s.log.Info("manual run", logx.String("job_id", id), logx.Bool("force", mode == RunModeForce))
	s.launch(ctx, r)
	return true, nil
}

// refreshLocked derives state and nextRunAt from enabled, schedule and
// lastRunAt. A schedule with no further occurrence disables the job.
func (s *Service) refreshLocked(j *job.Job, now time.Time) {
	if !j.Enabled {
		j.State = job.StateDisabled
		j.NextRunAt = nil
		return
	}
	next, ok := s.calc.NextDue(j.Schedule, j.LastRunAt, now)
	if !ok {
		j.Enabled = false
		j.State = job.StateDisabled
		j.NextRunAt = nil
		return
	}
	j.State = job.StateIdle
	j.NextRunAt = &next
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func sameSchedule(a, b schedule.Schedule) bool {
	return a.Kind == b.Kind &&
		a.EveryMs == b.EveryMs &&
		a.Expr == b.Expr &&
		a.TZ == b.TZ &&
		sameTime(a.At, b.At)
}
