package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type scriptFn func(ctx context.Context, msgs []ChatMessage) (LLMResponse, error)

// scriptedLLM replays a fixed sequence of replies, then ends every turn
// with "Done.".
type scriptedLLM struct {
	mu     sync.Mutex
	script []scriptFn
	calls  int
}

func newScriptedLLM(script ...scriptFn) *scriptedLLM {
	return &scriptedLLM{script: script}
}

func (s *scriptedLLM) Chat(ctx context.Context, model string, msgs []ChatMessage, schemas []ToolSchema, opts ChatOptions) (LLMResponse, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()
	if i < len(s.script) {
		return s.script[i](ctx, msgs)
	}
	return textResp("Done.")(ctx, msgs)
}

func (s *scriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func textResp(text string) scriptFn {
	return func(context.Context, []ChatMessage) (LLMResponse, error) {
		return LLMResponse{
			Assistant:    ChatMessage{Role: RoleAssistant, Content: text},
			Usage:        Usage{Prompt: 10, Completion: 5, Total: 15},
			FinishReason: FinishStop,
		}, nil
	}
}

func planResp(steps ...string) scriptFn {
	b, _ := json.Marshal(map[string]any{"description": "test plan", "steps": steps})
	return textResp("Here is the plan:\n" + string(b))
}

var callSeq int

func toolResp(name string, args map[string]any) scriptFn {
	return func(context.Context, []ChatMessage) (LLMResponse, error) {
		callSeq++
		call := ToolCall{ID: fmt.Sprintf("call-%d", callSeq), Name: name, Args: args}
		return LLMResponse{
			Assistant:    ChatMessage{Role: RoleAssistant, ToolCalls: []ToolCall{call}},
			ToolCalls:    []ToolCall{call},
			Usage:        Usage{Prompt: 10, Completion: 5, Total: 15},
			FinishReason: FinishToolCalls,
		}, nil
	}
}

func blockingResp() scriptFn {
	return func(ctx context.Context, _ []ChatMessage) (LLMResponse, error) {
		<-ctx.Done()
		return LLMResponse{}, ctx.Err()
	}
}

func errResp(err error) scriptFn {
	return func(context.Context, []ChatMessage) (LLMResponse, error) {
		return LLMResponse{}, err
	}
}

// recordingSink keeps every event.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) LogEvent(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) Count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recordingSink) Last(t EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return Event{}, false
}

// fakeClock is an injectable now() for TTL tests.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func staticTool(name, result string, tags ...string) Tool {
	return Tool{
		Name:       name,
		SchemaJSON: `{"type":"object"}`,
		Fn: func(context.Context, map[string]any) (string, error) {
			return result, nil
		},
		Metadata: ToolMetadata{Tags: tags},
	}
}

// testConfig keeps retries fast.
func testConfig() ExecutorConfig {
	cfg := DefaultExecutorConfig()
	cfg.RetryPolicy = RetryPolicy{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
	return cfg
}

func buildExecutor(llm LLMClient, tools ToolRegistry, sink EventSink, task *Task, mutate ...func(*ExecutorConfig)) *Executor {
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	return newExecutor(task, cfg, llm, tools, sink, nil)
}
