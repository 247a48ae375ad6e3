package engine

import (
	"context"
	"time"
)

// EventType names an entry in the executor's event stream.
type EventType string

const (
	EventStepStarted         EventType = "step_started"
	EventStepCompleted       EventType = "step_completed"
	EventStepFailed          EventType = "step_failed"
	EventStepTimeout         EventType = "step_timeout"
	EventToolCall            EventType = "tool_call"
	EventToolResult          EventType = "tool_result"
	EventToolError           EventType = "tool_error"
	EventToolBlocked         EventType = "tool_blocked"
	EventParameterInference  EventType = "parameter_inference"
	EventPlanCreated         EventType = "plan_created"
	EventPlanRevised         EventType = "plan_revised"
	EventPlanRevisionBlocked EventType = "plan_revision_blocked"
	EventProgressUpdate      EventType = "progress_update"
	EventVerificationStarted EventType = "verification_started"
	EventVerificationPassed  EventType = "verification_passed"
	EventVerificationFailed  EventType = "verification_failed"
	EventRetryStarted        EventType = "retry_started"
	EventError               EventType = "error"
	EventAssistantText       EventType = "assistant_text"
	EventModelRetry          EventType = "model_retry"
	EventTaskStatus          EventType = "task_status"
	EventAwaitingInput       EventType = "awaiting_input"
)

// Event is one entry of the stream.
type Event struct {
	TaskID  string
	Type    EventType
	Payload map[string]any
	At      time.Time
}

// EventSink receives executor events. Implementations must not block for long:
// they are called inline from the executor loop.
type EventSink interface {
	LogEvent(ctx context.Context, ev Event)
}

// Sinks fans an event out to every sink in order.
type Sinks []EventSink

func (ss Sinks) LogEvent(ctx context.Context, ev Event) {
	for _, s := range ss {
		s.LogEvent(ctx, ev)
	}
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) LogEvent(context.Context, Event) {}

// ChanSink bridges engine -> UI channel. Events are dropped when the channel is full.
type ChanSink struct{ Ch chan<- Event }

func (s ChanSink) LogEvent(_ context.Context, ev Event) {
	select {
	case s.Ch <- ev:
	default:
	}
}
