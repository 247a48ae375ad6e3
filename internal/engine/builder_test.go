package engine

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"
)

func TestExecutorBuilder_Validation(t *testing.T) {
	task := NewTask("x")

	t.Run("missing LLM", func(t *testing.T) {
		_, err := NewExecutorBuilder().WithToolRegistry(ToolRegistry{}).Build(task)
		if err == nil || err.Error() != "LLM client not configured: use WithLLM" {
			t.Errorf("Build() error = %v, want missing LLM", err)
		}
	})

	t.Run("missing tools", func(t *testing.T) {
		_, err := NewExecutorBuilder().WithLLM(newScriptedLLM()).Build(task)
		if err == nil || err.Error() != "tools not configured: use WithToolRegistry" {
			t.Errorf("Build() error = %v, want missing tools", err)
		}
	})

	t.Run("reserved tool name", func(t *testing.T) {
		_, err := NewExecutorBuilder().
			WithLLM(newScriptedLLM()).
			WithToolRegistry(ToolRegistry{ReviseToolName: staticTool(ReviseToolName, "")}).
			Build(task)
		if err == nil {
			t.Error("Build() expected error for reserved tool name")
		}
	})
}

func TestExecutorBuilder_Success(t *testing.T) {
	usage := &UsageCounters{}
	e, err := NewExecutorBuilder().
		WithLLM(newScriptedLLM()).
		WithModel("test-model").
		WithToolRegistry(ToolRegistry{}).
		WithGuardrails(Guardrails{MaxTurns: 10}).
		WithUsageCounters(usage).
		WithPauseForInput(true).
		Build(NewTask("x"))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if e.cfg.Model != "test-model" || e.cfg.Guardrails.MaxTurns != 10 || !e.cfg.PauseForInput {
		t.Errorf("config not applied: %+v", e.cfg)
	}
	if e.usage != usage {
		t.Error("usage counters not shared")
	}
	if e.cfg.MaxTurnsPerStep != DefaultMaxTurnsPerStep || e.cfg.StepTimeout != DefaultStepTimeout {
		t.Errorf("defaults not applied: %+v", e.cfg)
	}
	if _, ok := e.sink.(Sinks); !ok {
		t.Errorf("default sink = %T, want Sinks", e.sink)
	}
}

func TestLoggerSink(t *testing.T) {
	var buf bytes.Buffer
	s := LoggerSink{L: log.New(&buf, "", 0)}
	s.LogEvent(context.Background(), Event{TaskID: "t1", Type: EventStepFailed, Payload: map[string]any{"stepId": "s1", "error": "boom"}, At: time.Now()})
	s.LogEvent(context.Background(), Event{TaskID: "t1", Type: EventPlanRevised, Payload: map[string]any{"b": 2, "a": 1}})
	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("step s1 step_failed: boom")) {
		t.Errorf("unexpected step log: %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("plan_revised a=1 b=2")) {
		t.Errorf("payload not sorted: %q", out)
	}
}

func TestChanSinkDropsWhenFull(t *testing.T) {
	ch := make(chan Event, 1)
	s := ChanSink{Ch: ch}
	s.LogEvent(context.Background(), Event{Type: EventStepStarted})
	s.LogEvent(context.Background(), Event{Type: EventStepCompleted})
	if len(ch) != 1 || (<-ch).Type != EventStepStarted {
		t.Error("ChanSink should keep the first event and drop the overflow")
	}
}
