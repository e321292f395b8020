package app

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcron/internal/cron"
	"agentcron/internal/cron/job"
	"agentcron/internal/cron/schedule"
	"agentcron/internal/eventbus"
	logx "agentcron/pkg/logx"
)

const testConfig = `logging:
  level: error
  console: false
cron:
  enabled: true
  store: {{STORE}}
  max_concurrent_runs: {{CAP}}
  tick_interval: 1h
`

func writeConfig(t *testing.T, path, store string, capacity int) {
	t.Helper()
	body := strings.ReplaceAll(testConfig, "{{STORE}}", store)
	body = strings.ReplaceAll(body, "{{CAP}}", strconv.Itoa(capacity))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func startApp(t *testing.T, capacity int, opts ...Option) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeConfig(t, cfgPath, filepath.Join(dir, "jobs.json"), capacity)

	a, err := NewApp(cfgPath, opts...)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopSignal)
	})
	return a, cfgPath
}

func payload(t *testing.T, text string) job.Payload {
	t.Helper()
	p, err := job.NewPayload(map[string]any{"kind": "systemEvent", "text": text})
	require.NoError(t, err)
	return p
}

func TestRuntimeMainSessionPublishesSystemEvent(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4, EventSystemEvent)
	defer unsub()

	rt := NewRuntime(bus, logx.Nop())
	res, err := rt.Run(context.Background(), job.Job{
		ID:            "j1",
		Name:          "ping",
		SessionTarget: job.SessionMain,
		Payload:       payload(t, "wake up"),
	})
	require.NoError(t, err)
	assert.Equal(t, job.StatusOK, res.Status)
	assert.Equal(t, "wake up", res.Output)

	select {
	case e := <-ch:
		data, ok := e.Data.(SystemEventData)
		require.True(t, ok)
		assert.Equal(t, "j1", data.JobID)
		assert.Equal(t, "wake up", data.Text)
	case <-time.After(time.Second):
		t.Fatal("no system event published")
	}
}

func TestRuntimeIsolatedNeedsBackend(t *testing.T) {
	rt := NewRuntime(eventbus.New(), logx.Nop())
	_, err := rt.Run(context.Background(), job.Job{ID: "j1", SessionTarget: job.SessionIsolated})
	assert.ErrorIs(t, err, ErrNoIsolatedRuntime)
}

func TestRuntimeHeartbeat(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(1, EventHeartbeat)
	defer unsub()

	NewRuntime(bus, logx.Nop()).RequestNow("cron:j1")
	select {
	case e := <-ch:
		assert.Equal(t, "cron:j1", e.Data)
	case <-time.After(time.Second):
		t.Fatal("no heartbeat published")
	}
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("cron:\n  store_driver: redis\n"), 0o644))

	_, err := NewApp(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store_driver")
}

func TestAppRunsJobThroughBackendAndDelivery(t *testing.T) {
	var calls atomic.Int32
	backend := cron.BackendFunc(func(ctx context.Context, j job.Job) (job.RunResult, error) {
		calls.Add(1)
		return job.RunResult{Status: job.StatusOK, Output: "done"}, nil
	})
	a, _ := startApp(t, 1, WithBackend(backend))

	events, unsub := a.Bus().Subscribe(8, EventSystemEvent)
	defer unsub()

	j, err := a.Cron().Add(context.Background(), job.Create{
		Name:     "report",
		Schedule: schedule.Every(time.Hour),
		Payload:  payload(t, "report"),
		Delivery: &job.Delivery{Mode: job.DeliverySystemEvent},
	})
	require.NoError(t, err)

	started, err := a.Cron().Run(context.Background(), j.ID, cron.RunModeForce)
	require.NoError(t, err)
	require.True(t, started)

	select {
	case e := <-events:
		data, ok := e.Data.(SystemEventData)
		require.True(t, ok)
		assert.Equal(t, j.ID, data.JobID)
		assert.Contains(t, data.Text, "done")
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not reach the runtime")
	}
	assert.EqualValues(t, 1, calls.Load())

	require.Eventually(t, func() bool {
		got, ok := a.Cron().GetJob(j.ID)
		return ok && got.LastStatus == job.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
}

func TestAppHotReloadAppliesCapacity(t *testing.T) {
	a, cfgPath := startApp(t, 1)
	require.Equal(t, 1, a.Cron().Status().Capacity)

	writeConfig(t, cfgPath, a.Cron().Status().StorePath, 3)

	require.Eventually(t, func() bool {
		return a.Cron().Status().Capacity == 3
	}, 10*time.Second, 50*time.Millisecond)
}

func TestStopIsSafeBeforeStart(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	writeConfig(t, cfgPath, filepath.Join(dir, "jobs.json"), 1)

	a, err := NewApp(cfgPath)
	require.NoError(t, err)
	assert.NoError(t, a.Stop(context.Background(), StopSignal))
	assert.NoError(t, a.Err())
	_ = a.store.Close()
}
