package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentcron/internal/cron/job"
	"agentcron/internal/eventbus"
	"agentcron/internal/runtime/supervisor"
	logx "agentcron/pkg/logx"
)

// run is one admitted dispatch.
type run struct {
	job     job.Job
	timeout time.Duration
}

func (s *Service) armLocked() {
	sup := supervisor.NewSupervisor(context.Background(), supervisor.WithLogger(s.log))
	every := s.cfg.TickInterval
	sup.Go0("cron.tick", func(ctx context.Context) {
		s.loop(ctx, every)
	})
	s.sup = sup
}

func (s *Service) loop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick admits due jobs in store order and launches them. It returns the
// number of runs started. Jobs denied by the gate are marked due and retried
// on the next tick.
func (s *Service) Tick(ctx context.Context) int {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return 0
	}
	now := s.now()

	var (
		admitted []run
		changed  bool
		denied   int
	)
	for _, j := range s.store.List() {
		if !isDue(j, now) || s.live[j.ID] > 0 {
			continue
		}
		if !s.gate.TryAcquire() {
			denied++
			if j.State != job.StateDue {
				j.State = job.StateDue
				s.store.Upsert(j)
				changed = true
			}
			continue
		}
		markRunning(&j, now)
		s.store.Upsert(j)
		changed = true
		admitted = append(admitted, s.admitLocked(j))
	}
	if changed {
		if err := s.store.Save(ctx); err != nil {
			s.log.Error("persist tick state failed", logx.Err(err))
		}
	}
	s.mu.Unlock()

	if denied > 0 {
		s.log.Debug("gate full; jobs left due", logx.Int("due", denied), logx.Int("admitted", len(admitted)))
	}
	for _, r := range admitted {
		s.launch(ctx, r)
	}
	return len(admitted)
}

func isDue(j job.Job, now time.Time) bool {
	if !j.Enabled || j.State == job.StateRunning || j.NextRunAt == nil {
		return false
	}
	return !j.NextRunAt.After(now)
}

func markRunning(j *job.Job, now time.Time) {
	j.State = job.StateRunning
	started := now
	j.LastStartedAt = &started
}

func (s *Service) admitLocked(j job.Job) run {
	timeout := j.Timeout()
	if timeout <= 0 {
		timeout = s.cfg.RunTimeout
	}
	s.runs.Add(1)
	s.live[j.ID]++
	return run{job: j, timeout: timeout}
}

// launch runs r in its own goroutine. The run outlives ctx cancellation;
// only its own timeout bounds it.
func (s *Service) launch(ctx context.Context, r run) {
	parent := context.WithoutCancel(ctx)
	go func() {
		defer s.runs.Done()
		s.execute(parent, r)
	}()
}

func (s *Service) execute(parent context.Context, r run) {
	j := r.job
	log := s.log.With(logx.String("job_id", j.ID), logx.String("job", j.Name))
	s.publish(EventRunStarted, RunEvent{JobID: j.ID, JobName: j.Name})
	log.Debug("run started", logx.Duration("timeout", r.timeout))

	runCtx, cancel := context.WithTimeout(parent, r.timeout)
	startedAt := s.now()
	res, err := s.invoke(runCtx, j)
	cancel()
	finishedAt := s.now()

	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s: %w", r.timeout, err)
	}
	res.StartedAt = startedAt
	res.FinishedAt = finishedAt
	if err != nil {
		ee := &ExecutionError{JobID: j.ID, Err: err}
		res.Status = job.StatusError
		res.Error = err.Error()
		log.Warn("run failed", logx.Err(ee))
	} else if res.Status == "" {
		res.Status = job.StatusOK
	}
	if res.Status == job.StatusError && res.Error == "" {
		res.Error = "backend reported error"
	}

	s.complete(parent, r, res, log)
}

// invoke calls the backend in a nested goroutine so a backend that ignores
// ctx still cannot hold the run past its timeout.
func (s *Service) invoke(ctx context.Context, j job.Job) (job.RunResult, error) {
	type outcome struct {
		res job.RunResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: fmt.Errorf("backend panic: %v", p)}
			}
		}()
		res, err := s.backend.Run(ctx, j.Clone())
		ch <- outcome{res: res, err: err}
	}()

	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		return job.RunResult{}, ctx.Err()
	}
}

func (s *Service) complete(ctx context.Context, r run, res job.RunResult, log logx.Logger) {
	s.mu.Lock()
	s.gate.Release()
	if s.live[r.job.ID]--; s.live[r.job.ID] <= 0 {
		delete(s.live, r.job.ID)
	}
	alive := s.started
	cur, exists := s.store.Get(r.job.ID)
	if !alive || !exists {
		s.mu.Unlock()
		log.Info("run finished; result discarded", logx.Bool("service_alive", alive), logx.Bool("job_exists", exists))
		s.publishFinished(r.job, res)
		return
	}

	finished := res.FinishedAt
	cur.LastRunAt = &finished
	cur.LastDurationMs = res.Duration().Milliseconds()
	cur.LastStatus = res.Status
	cur.LastError = res.Error
	if cur.Schedule.OneShot() {
		cur.Enabled = false
	}
	s.refreshLocked(&cur, s.now())
	s.store.Upsert(cur)
	if err := s.store.Save(ctx); err != nil {
		log.Error("persist run result failed", logx.Err(err))
	}
	s.mu.Unlock()

	fields := []logx.Field{
		logx.String("status", string(res.Status)),
		logx.Duration("took", res.Duration()),
	}
	if cur.NextRunAt != nil {
		fields = append(fields, logx.Time("next_run_at", *cur.NextRunAt))
	}
	log.Info("run finished", fields...)
	s.publishFinished(cur, res)

	if s.router != nil {
		s.router.Deliver(ctx, cur, res)
	}
}

func (s *Service) publishFinished(j job.Job, res job.RunResult) {
	s.publish(EventRunFinished, RunEvent{
		JobID:      j.ID,
		JobName:    j.Name,
		Status:     res.Status,
		Error:      res.Error,
		DurationMs: res.Duration().Milliseconds(),
	})
}

func (s *Service) publish(typ string, ev RunEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: ev})
}
