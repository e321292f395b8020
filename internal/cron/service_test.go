package cron

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcron/internal/cron/job"
	"agentcron/internal/cron/schedule"
	"agentcron/internal/cron/store"
	"agentcron/internal/eventbus"
	logx "agentcron/pkg/logx"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type delivered struct {
	job job.Job
	res job.RunResult
}

type recordingRouter struct {
	mu  sync.Mutex
	got []delivered
}

func (r *recordingRouter) Deliver(_ context.Context, j job.Job, res job.RunResult) {
	r.mu.Lock()
	r.got = append(r.got, delivered{job: j, res: res})
	r.mu.Unlock()
}

func (r *recordingRouter) calls() []delivered {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivered(nil), r.got...)
}

type harness struct {
	t      *testing.T
	svc    *Service
	clock  *clock
	router *recordingRouter
	path   string
}

func okBackend() Backend {
	return BackendFunc(func(context.Context, job.Job) (job.RunResult, error) {
		return job.RunResult{Output: "done"}, nil
	})
}

func newHarness(t *testing.T, cfg Config, backend Backend) *harness {
	t.Helper()
	return newHarnessAt(t, filepath.Join(t.TempDir(), "jobs.json"), cfg, backend)
}

func newHarnessAt(t *testing.T, path string, cfg Config, backend Backend) *harness {
	t.Helper()
	st, err := store.Open(store.Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{t: t, clock: &clock{t: t0}, router: &recordingRouter{}, path: path}
	h.svc, err = New(cfg, Deps{Store: st, Backend: backend, Router: h.router, Now: h.clock.Now}, logx.Nop())
	require.NoError(t, err)
	return h
}

func (h *harness) start() {
	h.t.Helper()
	require.NoError(h.t, h.svc.Start(context.Background()))
	h.t.Cleanup(func() { _ = h.svc.Stop(context.Background()) })
}

func (h *harness) wait() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(h.t, h.svc.Wait(ctx))
}

func (h *harness) add(name string, s schedule.Schedule, opts ...func(*job.Create)) job.Job {
	h.t.Helper()
	p, err := job.NewPayload(map[string]any{"kind": "systemEvent", "text": name})
	require.NoError(h.t, err)
	c := job.Create{Name: name, Schedule: s, Payload: p}
	for _, o := range opts {
		o(&c)
	}
	j, err := h.svc.Add(context.Background(), c)
	require.NoError(h.t, err)
	return j
}

func (h *harness) get(id string) job.Job {
	h.t.Helper()
	j, ok := h.svc.GetJob(id)
	require.True(h.t, ok, "job %s missing", id)
	return j
}

func TestEveryJobDueImmediatelyThenAfterInterval(t *testing.T) {
	h := newHarness(t, Config{}, okBackend())
	h.start()

	a := h.add("A", schedule.Every(time.Minute))
	require.NotNil(t, a.NextRunAt)
	assert.True(t, a.NextRunAt.Equal(t0))
	assert.Equal(t, job.StateIdle, a.State)

	assert.Equal(t, 1, h.svc.Tick(context.Background()))
	h.wait()

	got := h.get(a.ID)
	require.NotNil(t, got.LastRunAt)
	assert.Equal(t, job.StatusOK, got.LastStatus)
	assert.Equal(t, job.StateIdle, got.State)
	assert.True(t, got.NextRunAt.Equal(t0.Add(time.Minute)), "next=%v", got.NextRunAt)

	assert.Equal(t, 0, h.svc.Tick(context.Background()))

	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, h.svc.Tick(context.Background()))
	h.wait()

	again := h.get(a.ID)
	assert.GreaterOrEqual(t, again.LastRunAt.Sub(*got.LastRunAt), time.Minute)
	assert.Len(t, h.router.calls(), 2)
}

func TestAtJobDisabledAfterSingleRun(t *testing.T) {
	h := newHarness(t, Config{}, okBackend())
	h.start()

	at := h.add("once", schedule.At(t0.Add(time.Second)))
	assert.Equal(t, 0, h.svc.Tick(context.Background()))

	h.clock.Advance(time.Second)
	assert.Equal(t, 1, h.svc.Tick(context.Background()))
	h.wait()

	got := h.get(at.ID)
	assert.Equal(t, job.StateDisabled, got.State)
	assert.False(t, got.Enabled)
	assert.Nil(t, got.NextRunAt)

	h.clock.Advance(time.Hour)
	assert.Equal(t, 0, h.svc.Tick(context.Background()))
	assert.Len(t, h.router.calls(), 1)
}

func TestAtJobDisabledEvenOnError(t *testing.T) {
	h := newHarness(t, Config{}, BackendFunc(func(context.Context, job.Job) (job.RunResult, error) {
		return job.RunResult{}, errors.New("boom")
	}))
	h.start()

	at := h.add("once", schedule.At(t0))
	assert.Equal(t, 1, h.svc.Tick(context.Background()))
	h.wait()

	got := h.get(at.ID)
	assert.Equal(t, job.StateDisabled, got.State)
	assert.Equal(t, job.StatusError, got.LastStatus)
}

func TestAtInThePastFiresOnNextTick(t *testing.T) {
	h := newHarness(t, Config{}, okBackend())
	h.start()

	j := h.add("overdue", schedule.At(t0.Add(-time.Hour)))
	assert.True(t, j.Enabled)
	require.NotNil(t, j.NextRunAt)
	assert.True(t, j.NextRunAt.Equal(t0.Add(-time.Hour)))

	assert.Equal(t, 1, h.svc.Tick(context.Background()))
	h.wait()

	got := h.get(j.ID)
	assert.Equal(t, job.StateDisabled, got.State)
	assert.False(t, got.Enabled)
	assert.Nil(t, got.NextRunAt)
	assert.Len(t, h.router.calls(), 1)
}

// blockingBackend parks every run until release is closed.
type blockingBackend struct {
	mu      sync.Mutex
	ran     []string
	running int
	peak    int
	release chan struct{}
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{release: make(chan struct{})}
}

func (b *blockingBackend) Run(_ context.Context, j job.Job) (job.RunResult, error) {
	b.mu.Lock()
	b.ran = append(b.ran, j.Name)
	b.running++
	if b.running > b.peak {
		b.peak = b.running
	}
	b.mu.Unlock()

	<-b.release

	b.mu.Lock()
	b.running--
	b.mu.Unlock()
	return job.RunResult{Status: job.StatusOK}, nil
}

func (b *blockingBackend) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ran...)
}

func TestGateAdmitsInStoreOrder(t *testing.T) {
	b := newBlockingBackend()
	h := newHarness(t, Config{MaxConcurrentRuns: 1}, b)
	h.start()

	first := h.add("first", schedule.Every(time.Minute))
	second := h.add("second", schedule.Every(time.Minute))

	assert.Equal(t, 1, h.svc.Tick(context.Background()))
	assert.Equal(t, job.StateRunning, h.get(first.ID).State)
	assert.Equal(t, job.StateDue, h.get(second.ID).State)

	// Still full: nothing new is admitted and the running job is not re-dispatched.
	assert.Equal(t, 0, h.svc.Tick(context.Background()))

	close(b.release)
	h.wait()
	assert.Equal(t, 1, h.svc.Tick(context.Background()))
	h.wait()

	assert.Equal(t, []string{"first", "second"}, b.names())
	assert.Equal(t, 1, b.peak)
	assert.Equal(t, 0, h.svc.Status().InFlight)
}

func TestRunningNeverExceedsCapacity(t *testing.T) {
	b := newBlockingBackend()
	h := newHarness(t, Config{MaxConcurrentRuns: 2}, b)
	h.start()

	for _, n := range []string{"a", "b", "c", "d", "e"} {
		h.add(n, schedule.Every(time.Minute))
	}

	for i := 0; i < 3; i++ {
		h.svc.Tick(context.Background())
		running := 0
		for _, j := range h.svc.List(ListOptions{}) {
			if j.State == job.StateRunning {
				running++
			}
		}
		assert.LessOrEqual(t, running, 2)
	}
	close(b.release)
	h.wait()

	for i := 0; i < 3; i++ {
		h.svc.Tick(context.Background())
		h.wait()
	}
	assert.Len(t, b.names(), 5)
	assert.LessOrEqual(t, b.peak, 2)
}

func TestBackendFailureKeepsSchedule(t *testing.T) {
	cases := map[string]Backend{
		"error": BackendFunc(func(context.Context, job.Job) (job.RunResult, error) {
			return job.RunResult{}, errors.New("agent unavailable")
		}),
		"panic": BackendFunc(func(context.Context, job.Job) (job.RunResult, error) {
			panic("kaboom")
		}),
		"reported": BackendFunc(func(context.Context, job.Job) (job.RunResult, error) {
			return job.RunResult{Status: job.StatusError, Error: "tool failed"}, nil
		}),
	}
	for name, backend := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, Config{}, backend)
			h.start()
			j := h.add("flaky", schedule.Every(time.Minute))

			assert.Equal(t, 1, h.svc.Tick(context.Background()))
			h.wait()

			got := h.get(j.ID)
			assert.Equal(t, job.StatusError, got.LastStatus)
			assert.NotEmpty(t, got.LastError)
			assert.Equal(t, job.StateIdle, got.State)
			assert.True(t, got.Enabled)
			require.NotNil(t, got.NextRunAt)

			h.clock.Advance(time.Minute)
			assert.Equal(t, 1, h.svc.Tick(context.Background()))
			h.wait()
		})
	}
}

func TestRunTimeoutFreesGate(t *testing.T) {
	hang := make(chan struct{})
	t.Cleanup(func() { close(hang) })

	backend := BackendFunc(func(ctx context.Context, j job.Job) (job.RunResult, error) {
		<-hang // ignores ctx on purpose
		return job.RunResult{}, nil
	})
	h := newHarness(t, Config{MaxConcurrentRuns: 1, RunTimeout: 30 * time.Millisecond}, backend)
	h.start()
	j := h.add("hung", schedule.Every(time.Minute))

	assert.Equal(t, 1, h.svc.Tick(context.Background()))
	h.wait()

	got := h.get(j.ID)
	assert.Equal(t, job.StatusError, got.LastStatus)
	assert.Contains(t, got.LastError, "timed out")
	assert.Equal(t, 0, h.svc.Status().InFlight)
}

func TestDeliveryAndNextRunSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	h := newHarnessAt(t, path, Config{}, okBackend())
	h.start()

	want := &job.Delivery{Mode: job.DeliveryWebhook, To: "https://example.invalid/cron"}
	a := h.add("hook", schedule.Every(time.Hour), func(c *job.Create) { c.Delivery = want })
	b := h.add("daily", schedule.Cron("0 9 * * *", "UTC"))
	assert.Equal(t, want, h.get(a.ID).Delivery)
	require.NoError(t, h.svc.Stop(context.Background()))

	h2 := newHarnessAt(t, path, Config{}, okBackend())
	h2.start()

	for _, orig := range []job.Job{a, b} {
		got := h2.get(orig.ID)
		assert.Equal(t, orig.Delivery, got.Delivery)
		require.NotNil(t, got.NextRunAt)
		assert.True(t, orig.NextRunAt.Equal(*got.NextRunAt), "%s: %v != %v", orig.Name, orig.NextRunAt, got.NextRunAt)
	}
	assert.JSONEq(t, string(a.Payload), string(h2.get(a.ID).Payload))
	assert.Equal(t, []string{a.ID, b.ID}, ids(h2.svc.List(ListOptions{})))
}

func TestStartRepairsInterruptedRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	doc := `{"version":1,"jobs":[{"id":"j1","name":"interrupted","enabled":true,` +
		`"schedule":{"kind":"every","everyMs":60000},"sessionTarget":"main","wakeMode":"now",` +
		`"payload":{"kind":"systemEvent"},"nextRunAt":"2026-03-01T11:59:00Z","state":"running"}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	h := newHarnessAt(t, path, Config{}, okBackend())
	h.start()

	got := h.get("j1")
	assert.Equal(t, job.StateIdle, got.State)
	assert.True(t, got.NextRunAt.Equal(time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC)))

	assert.Equal(t, 1, h.svc.Tick(context.Background()))
	h.wait()
}

func TestStartFailsOnCorruptStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	h := newHarnessAt(t, path, Config{}, okBackend())
	err := h.svc.Start(context.Background())

	var ce *store.CorruptStoreError
	require.ErrorAs(t, err, &ce)
	assert.False(t, h.svc.Status().Started)

	data, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	assert.Equal(t, "{not json", string(data))
}

func TestStartIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{}, okBackend())
	h.start()
	j := h.add("x", schedule.Every(time.Minute))
	require.NoError(t, h.svc.Start(context.Background()))
	assert.Equal(t, 1, h.svc.Status().Jobs)
	h.get(j.ID)
}

func TestRemoveRunningJob(t *testing.T) {
	b := newBlockingBackend()
	h := newHarness(t, Config{}, b)
	h.start()
	j := h.add("doomed", schedule.Every(time.Minute))

	require.Equal(t, 1, h.svc.Tick(context.Background()))
	ok, err := h.svc.Remove(context.Background(), j.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	close(b.release)
	h.wait()

	_, exists := h.svc.GetJob(j.ID)
	assert.False(t, exists)
	assert.Empty(t, h.router.calls())
	assert.Equal(t, 0, h.svc.Status().InFlight)

	ok, err = h.svc.Remove(context.Background(), j.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStopDiscardsLateCompletion(t *testing.T) {
	b := newBlockingBackend()
	h := newHarness(t, Config{}, b)
	h.start()
	j := h.add("late", schedule.Every(time.Minute))

	require.Equal(t, 1, h.svc.Tick(context.Background()))
	require.NoError(t, h.svc.Stop(context.Background()))

	close(b.release)
	h.wait()

	assert.Empty(t, h.router.calls())
	assert.Nil(t, h.get(j.ID).LastRunAt)
	assert.Equal(t, 0, h.svc.Status().InFlight)
	assert.Equal(t, 0, h.svc.Tick(context.Background()))

	_, err := h.svc.Run(context.Background(), j.ID, RunModeForce)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestRestartWithRunInFlight(t *testing.T) {
	b := newBlockingBackend()
	h := newHarness(t, Config{MaxConcurrentRuns: 2}, b)
	h.start()
	j := h.add("slow", schedule.Every(time.Minute))

	require.Equal(t, 1, h.svc.Tick(context.Background()))
	require.NoError(t, h.svc.Stop(context.Background()))
	require.NoError(t, h.svc.Start(context.Background()))

	assert.Equal(t, job.StateRunning, h.get(j.ID).State)
	assert.Equal(t, 0, h.svc.Tick(context.Background()))
	started, err := h.svc.Run(context.Background(), j.ID, RunModeForce)
	require.NoError(t, err)
	assert.False(t, started)

	close(b.release)
	h.wait()

	b.mu.Lock()
	peak := b.peak
	b.mu.Unlock()
	assert.Equal(t, 1, peak)
	assert.Equal(t, []string{"slow"}, b.names())

	got := h.get(j.ID)
	assert.Equal(t, job.StateIdle, got.State)
	require.NotNil(t, got.LastRunAt)
	assert.Equal(t, job.StatusOK, got.LastStatus)
	require.Len(t, h.router.calls(), 1)
}

func TestUpdate(t *testing.T) {
	h := newHarness(t, Config{}, okBackend())
	h.start()
	j := h.add("job", schedule.Every(time.Minute))

	off := false
	got, err := h.svc.Update(context.Background(), j.ID, job.Patch{Enabled: &off})
	require.NoError(t, err)
	assert.Equal(t, job.StateDisabled, got.State)
	assert.Nil(t, got.NextRunAt)
	assert.Empty(t, h.svc.List(ListOptions{}))
	assert.Len(t, h.svc.List(ListOptions{IncludeDisabled: true}), 1)

	on := true
	sched := schedule.Every(5 * time.Minute)
	got, err = h.svc.Update(context.Background(), j.ID, job.Patch{Enabled: &on, Schedule: &sched})
	require.NoError(t, err)
	assert.Equal(t, job.StateIdle, got.State)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.Equal(t0))

	bad := schedule.Every(0)
	_, err = h.svc.Update(context.Background(), j.ID, job.Patch{Schedule: &bad})
	var ve *job.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, sched, h.get(j.ID).Schedule)

	_, err = h.svc.Update(context.Background(), "missing", job.Patch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAtScheduleRearms(t *testing.T) {
	h := newHarness(t, Config{}, okBackend())
	h.start()
	j := h.add("once", schedule.At(t0))
	require.Equal(t, 1, h.svc.Tick(context.Background()))
	h.wait()
	require.Equal(t, job.StateDisabled, h.get(j.ID).State)

	on := true
	later := schedule.At(t0.Add(time.Hour))
	got, err := h.svc.Update(context.Background(), j.ID, job.Patch{Enabled: &on, Schedule: &later})
	require.NoError(t, err)
	assert.Nil(t, got.LastRunAt)
	assert.Equal(t, job.StateIdle, got.State)
	assert.True(t, got.NextRunAt.Equal(t0.Add(time.Hour)))
}

func TestAddValidation(t *testing.T) {
	h := newHarness(t, Config{}, okBackend())
	h.start()

	_, err := h.svc.Add(context.Background(), job.Create{Schedule: schedule.Every(-time.Second)})
	var ve *job.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.GreaterOrEqual(t, len(ve.Errors), 3)
	assert.Equal(t, 0, h.svc.Status().Jobs)

	_, statErr := os.Stat(h.path)
	assert.True(t, os.IsNotExist(statErr), "nothing should be persisted")
}

func TestAddDisabled(t *testing.T) {
	h := newHarness(t, Config{}, okBackend())
	h.start()
	off := false
	j := h.add("off", schedule.Every(time.Minute), func(c *job.Create) { c.Enabled = &off })
	assert.Equal(t, job.StateDisabled, j.State)
	assert.Nil(t, j.NextRunAt)
	assert.Equal(t, 0, h.svc.Tick(context.Background()))
}

func TestManualRun(t *testing.T) {
	h := newHarness(t, Config{}, okBackend())
	h.start()
	j := h.add("hourly", schedule.Every(time.Hour))
	require.Equal(t, 1, h.svc.Tick(context.Background()))
	h.wait()

	ran, err := h.svc.Run(context.Background(), j.ID, RunModeDue)
	require.NoError(t, err)
	assert.False(t, ran, "not due yet")

	ran, err = h.svc.Run(context.Background(), j.ID, RunModeForce)
	require.NoError(t, err)
	assert.True(t, ran)
	h.wait()
	assert.Len(t, h.router.calls(), 2)

	_, err = h.svc.Run(context.Background(), "nope", RunModeForce)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManualRunSkipsRunningJob(t *testing.T) {
	b := newBlockingBackend()
	h := newHarness(t, Config{MaxConcurrentRuns: 2}, b)
	h.start()
	j := h.add("busy", schedule.Every(time.Minute))
	require.Equal(t, 1, h.svc.Tick(context.Background()))

	ran, err := h.svc.Run(context.Background(), j.ID, RunModeForce)
	require.NoError(t, err)
	assert.False(t, ran)

	close(b.release)
	h.wait()
	assert.Equal(t, []string{"busy"}, b.names())
}

func TestNotStarted(t *testing.T) {
	h := newHarness(t, Config{}, okBackend())
	_, err := h.svc.Add(context.Background(), job.Create{})
	assert.Error(t, err)

	p, _ := job.NewPayload(map[string]any{"kind": "k"})
	_, err = h.svc.Add(context.Background(), job.Create{Name: "n", Schedule: schedule.Every(time.Second), Payload: p})
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = h.svc.Remove(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Equal(t, 0, h.svc.Tick(context.Background()))
}

func TestRunEventsPublished(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "jobs.json")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	c := &clock{t: t0}
	svc, err := New(Config{}, Deps{Store: st, Backend: okBackend(), Bus: bus, Now: c.Now}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop(context.Background())

	p, _ := job.NewPayload(map[string]any{"kind": "k"})
	j, err := svc.Add(context.Background(), job.Create{Name: "ev", Schedule: schedule.Every(time.Minute), Payload: p})
	require.NoError(t, err)
	require.Equal(t, 1, svc.Tick(context.Background()))
	require.NoError(t, svc.Wait(context.Background()))

	var types []string
	for len(types) < 2 {
		select {
		case e := <-ch:
			types = append(types, e.Type)
			ev, ok := e.Data.(RunEvent)
			require.True(t, ok)
			assert.Equal(t, j.ID, ev.JobID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for events, got %v", types)
		}
	}
	assert.Equal(t, []string{EventRunStarted, EventRunFinished}, types)
}

func TestTickLoopDispatches(t *testing.T) {
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "jobs.json")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	var mu sync.Mutex
	runs := 0
	backend := BackendFunc(func(context.Context, job.Job) (job.RunResult, error) {
		mu.Lock()
		runs++
		mu.Unlock()
		return job.RunResult{}, nil
	})
	svc, err := New(Config{Enabled: true, TickInterval: 10 * time.Millisecond}, Deps{Store: st, Backend: backend}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))

	p, _ := job.NewPayload(map[string]any{"kind": "k"})
	_, err = svc.Add(context.Background(), job.Create{Name: "loop", Schedule: schedule.Every(time.Hour), Payload: p})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Stop(context.Background()))
	require.NoError(t, svc.Wait(context.Background()))
	assert.False(t, svc.Status().Started)
}

func TestApplyCapacity(t *testing.T) {
	h := newHarness(t, Config{MaxConcurrentRuns: 1}, okBackend())
	h.start()
	h.svc.Apply(Config{MaxConcurrentRuns: 3})
	assert.Equal(t, 3, h.svc.Status().Capacity)
	h.svc.Apply(Config{MaxConcurrentRuns: -1})
	assert.Equal(t, 1, h.svc.Status().Capacity)
}

func TestStatusNextWake(t *testing.T) {
	h := newHarness(t, Config{}, okBackend())
	h.start()
	h.add("late", schedule.At(t0.Add(2*time.Hour)))
	h.add("soon", schedule.At(t0.Add(time.Hour)))

	st := h.svc.Status()
	require.NotNil(t, st.NextWakeAt)
	assert.True(t, st.NextWakeAt.Equal(t0.Add(time.Hour)))
	assert.Equal(t, 2, st.Jobs)
	assert.Equal(t, h.path, st.StorePath)
}

func ids(jobs []job.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.ID)
	}
	return out
}
