package app

import (
	"context"
	"encoding/json"
	"errors"

	"agentcron/internal/cron/delivery"
	"agentcron/internal/cron/job"
	"agentcron/internal/eventbus"
	logx "agentcron/pkg/logx"
)

// Events published by the built-in runtime.
const (
	EventSystemEvent = "agent.system_event"
	EventHeartbeat   = "agent.heartbeat"
)

var ErrNoIsolatedRuntime = errors.New("no isolated agent runtime configured")

// SystemEventData is the Data of EventSystemEvent.
type SystemEventData struct {
	JobID   string          `json:"jobId"`
	JobName string          `json:"jobName"`
	Text    string          `json:"text"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Runtime is the built-in stand-in for an agent runtime. Main-session jobs
// are turned into system events on the bus; isolated jobs need a real
// runtime and fail. It also serves as the delivery sink and heartbeat.
type Runtime struct {
	bus eventbus.Bus
	log logx.Logger
}

func NewRuntime(bus eventbus.Bus, log logx.Logger) *Runtime {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runtime{bus: bus, log: log}
}

func (r *Runtime) Run(ctx context.Context, j job.Job) (job.RunResult, error) {
	if err := ctx.Err(); err != nil {
		return job.RunResult{}, err
	}
	if j.SessionTarget == job.SessionIsolated {
		return job.RunResult{}, ErrNoIsolatedRuntime
	}

	var body struct {
		Text    string `json:"text"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(j.Payload, &body)
	text := body.Text
	if text == "" {
		text = body.Message
	}
	r.bus.Publish(eventbus.Event{Type: EventSystemEvent, Data: SystemEventData{
		JobID:   j.ID,
		JobName: j.Name,
		Text:    text,
		Payload: json.RawMessage(j.Payload),
	}})
	r.log.Debug("system event queued", logx.String("job_id", j.ID), logx.String("kind", j.Payload.Kind()))
	return job.RunResult{Status: job.StatusOK, Output: text}, nil
}

// Enqueue implements delivery.SystemEventSink.
func (r *Runtime) Enqueue(ctx context.Context, ev delivery.SystemEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.bus.Publish(eventbus.Event{Type: EventSystemEvent, Data: SystemEventData{
		JobID:   ev.JobID,
		JobName: ev.JobName,
		Text:    ev.Text,
	}})
	return nil
}

// RequestNow implements delivery.HeartbeatRequester.
func (r *Runtime) RequestNow(reason string) {
	r.bus.Publish(eventbus.Event{Type: EventHeartbeat, Data: reason})
	r.log.Debug("heartbeat requested", logx.String("reason", reason))
}
