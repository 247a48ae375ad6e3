package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
)

// LoggerSink renders events as single log lines.
type LoggerSink struct{ L *log.Logger }

func (s LoggerSink) LogEvent(_ context.Context, ev Event) {
	l := s.L
	if l == nil {
		l = log.Default()
	}
	switch ev.Type {
	case EventStepStarted:
		l.Printf("▶️  [%s] step %v: %v", ev.TaskID, ev.Payload["index"], ev.Payload["description"])
	case EventStepCompleted:
		l.Printf("✅ [%s] step %v completed", ev.TaskID, ev.Payload["stepId"])
	case EventStepFailed, EventStepTimeout:
		l.Printf("❌ [%s] step %v %s: %v", ev.TaskID, ev.Payload["stepId"], ev.Type, ev.Payload["error"])
	case EventToolCall:
		l.Printf("tool → %v args=%v", ev.Payload["tool"], ev.Payload["input"])
	case EventToolResult:
		l.Printf("tool %v result: %s", ev.Payload["tool"], preview(fmt.Sprint(ev.Payload["result"]), 100))
	case EventToolError, EventToolBlocked:
		l.Printf("⚠️  tool %v %s: %v", ev.Payload["tool"], ev.Type, ev.Payload["reason"])
	case EventAssistantText:
		l.Printf("assistant> %s", preview(fmt.Sprint(ev.Payload["text"]), 300))
	default:
		l.Printf("[%s] %s %s", ev.TaskID, ev.Type, formatPayload(ev.Payload))
	}
}

func preview(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

func formatPayload(p map[string]any) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, preview(fmt.Sprint(p[k]), 120)))
	}
	return strings.Join(parts, " ")
}
