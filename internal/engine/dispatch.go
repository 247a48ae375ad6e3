package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const defaultToolTimeout = 90 * time.Second

var tracer = otel.Tracer("github.com/ChamsBouzaiene/taskpilot/internal/engine")

// OutcomeKind is what happened to one tool call.
type OutcomeKind string

const (
	OutcomeExecuted         OutcomeKind = "executed"
	OutcomeSoftFailure      OutcomeKind = "soft_failure"
	OutcomeError            OutcomeKind = "error"
	OutcomeCancelled        OutcomeKind = "cancelled"
	OutcomeDisabled         OutcomeKind = "disabled"
	OutcomeRateLimited      OutcomeKind = "rate_limited"
	OutcomeDuplicate        OutcomeKind = "duplicate"
	OutcomeDuplicateCached  OutcomeKind = "duplicate_cached"
	OutcomeSemanticDup      OutcomeKind = "semantic_duplicate"
	OutcomeRedundantRead    OutcomeKind = "redundant_read"
	OutcomeCachedListing    OutcomeKind = "cached_listing"
	OutcomeRevisionAccepted OutcomeKind = "revision_accepted"
	OutcomeRevisionRejected OutcomeKind = "revision_rejected"
)

// Blocked reports whether the call was stopped before execution.
func (k OutcomeKind) Blocked() bool {
	switch k {
	case OutcomeDisabled, OutcomeRateLimited, OutcomeDuplicate, OutcomeDuplicateCached,
		OutcomeSemanticDup, OutcomeRedundantRead, OutcomeCachedListing:
		return true
	}
	return false
}

// Satisfied reports whether a blocked call was answered from what the task
// already has, as opposed to refused.
func (k OutcomeKind) Satisfied() bool {
	switch k {
	case OutcomeDuplicateCached, OutcomeRedundantRead, OutcomeCachedListing:
		return true
	}
	return false
}

// DispatchResult is the tool-result content returned to the model plus what
// the step runner needs to judge the turn.
type DispatchResult struct {
	Call    ToolCall
	Kind    OutcomeKind
	Content string
	Err     string // failure text for errors and soft failures
}

// dispatchCall is the state threaded through the stages.
type dispatchCall struct {
	taskID string
	stepID string
	call   ToolCall
	tool   Tool
	args   map[string]any

	// modelArgs are the arguments as the model sent them. Dedup checks and
	// records against these so alias spellings key the same way both times.
	modelArgs map[string]any
}

// dispatchStage returns a result to short-circuit, or nil to continue.
type dispatchStage func(ctx context.Context, dc *dispatchCall) *DispatchResult

// Mediator wraps every tool invocation in the breaker, dedup, file
// redundancy and parameter inference stages, then executes it with a timeout.
type Mediator struct {
	Tools   ToolRegistry
	Breaker *ToolFailureTracker
	Dedup   *Deduplicator
	Files   *FileTracker
	Sink    EventSink
	Timeout time.Duration

	stages []dispatchStage
}

// NewMediator builds a mediator owning fresh trackers.
func NewMediator(tools ToolRegistry, sink EventSink) *Mediator {
	if sink == nil {
		sink = NopSink{}
	}
	m := &Mediator{
		Tools:   tools,
		Breaker: NewToolFailureTracker(),
		Dedup:   NewDeduplicator(),
		Files:   NewFileTracker(),
		Sink:    sink,
		Timeout: defaultToolTimeout,
	}
	m.stages = []dispatchStage{
		m.circuitStage,
		m.dedupStage,
		m.fileRedundancyStage,
		m.inferenceStage,
		m.executeStage,
	}
	return m
}

// ResetStep clears per-step tracker state.
func (m *Mediator) ResetStep() {
	m.Dedup.ResetStep()
	m.Files.ResetStep()
}

// Reset clears all tracker state.
func (m *Mediator) Reset() {
	m.Breaker.Reset()
	m.Dedup.Reset()
	m.Files.Reset()
}

// NormalizeToolName strips a namespace prefix: "functions.web_search" -> "web_search".
func NormalizeToolName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, "."); i >= 0 && i < len(name)-1 {
		return name[i+1:]
	}
	return name
}

// Dispatch runs one tool call through the pipeline.
func (m *Mediator) Dispatch(ctx context.Context, taskID, stepID string, call ToolCall) DispatchResult {
	ctx, span := tracer.Start(ctx, "tool.dispatch")
	defer span.End()

	call.Name = NormalizeToolName(call.Name)
	span.SetAttributes(attribute.String("tool.name", call.Name))
	m.emit(ctx, taskID, EventToolCall, map[string]any{"stepId": stepID, "tool": call.Name, "input": call.Args, "callId": call.ID})

	res := m.run(ctx, taskID, stepID, call)
	res.Call = call
	span.SetAttributes(attribute.String("tool.outcome", string(res.Kind)))
	return res
}

func (m *Mediator) run(ctx context.Context, taskID, stepID string, call ToolCall) DispatchResult {
	tool, ok := m.Tools[call.Name]
	if !ok {
		msg := fmt.Sprintf("tool not found: %s (available tools: %s)", call.Name, strings.Join(m.Tools.Names(), ", "))
		m.emit(ctx, taskID, EventToolError, map[string]any{"stepId": stepID, "tool": call.Name, "reason": msg})
		return DispatchResult{Kind: OutcomeError, Content: errorContent(msg), Err: msg}
	}
	if call.Error != "" {
		msg := fmt.Sprintf("invalid tool call arguments: %s", call.Error)
		m.emit(ctx, taskID, EventToolError, map[string]any{"stepId": stepID, "tool": call.Name, "reason": msg})
		return DispatchResult{Kind: OutcomeError, Content: errorContent(msg), Err: msg}
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	dc := &dispatchCall{taskID: taskID, stepID: stepID, call: call, tool: tool, args: args, modelArgs: args}
	for _, stage := range m.stages {
		if res := stage(ctx, dc); res != nil {
			if res.Kind.Blocked() {
				m.emit(ctx, taskID, EventToolBlocked, map[string]any{"stepId": stepID, "tool": call.Name, "kind": string(res.Kind), "reason": res.Err})
			}
			return *res
		}
	}
	// executeStage always returns a result.
	return DispatchResult{Kind: OutcomeError, Content: errorContent("dispatch pipeline produced no result"), Err: "dispatch pipeline produced no result"}
}

func (m *Mediator) circuitStage(_ context.Context, dc *dispatchCall) *DispatchResult {
	if !m.Breaker.IsDisabled(dc.tool.Name) {
		return nil
	}
	reason := m.Breaker.DisabledReason(dc.tool.Name)
	return &DispatchResult{Kind: OutcomeDisabled, Content: errorContent(reason), Err: reason}
}

func (m *Mediator) dedupStage(_ context.Context, dc *dispatchCall) *DispatchResult {
	v := m.Dedup.Check(dc.tool, dc.modelArgs)
	if !v.Blocked {
		return nil
	}
	switch v.Kind {
	case DedupDuplicateCached:
		return &DispatchResult{Kind: OutcomeDuplicateCached, Content: v.Result, Err: v.Reason}
	case DedupRateLimited:
		return &DispatchResult{Kind: OutcomeRateLimited, Content: errorContent(v.Reason), Err: v.Reason}
	case DedupSemantic:
		return &DispatchResult{Kind: OutcomeSemanticDup, Content: errorContent(v.Reason), Err: v.Reason}
	default:
		return &DispatchResult{Kind: OutcomeDuplicate, Content: errorContent(v.Reason), Err: v.Reason}
	}
}

func (m *Mediator) fileRedundancyStage(_ context.Context, dc *dispatchCall) *DispatchResult {
	kind, path := ClassifyFileOp(dc.tool.Name, dc.args)
	switch kind {
	case FileOpRead:
		if blocked, reason := m.Files.CheckRead(path); blocked {
			return &DispatchResult{Kind: OutcomeRedundantRead, Content: errorContent(reason), Err: reason}
		}
	case FileOpList:
		if blocked, cached := m.Files.CheckListing(path); blocked {
			return &DispatchResult{Kind: OutcomeCachedListing, Content: cached, Err: "listing of " + path + " served from cache"}
		}
	}
	return nil
}

func (m *Mediator) inferenceStage(ctx context.Context, dc *dispatchCall) *DispatchResult {
	args, inferred := InferParameters(dc.tool, dc.args, m.Files)
	for _, inf := range inferred {
		m.emit(ctx, dc.taskID, EventParameterInference, map[string]any{
			"stepId": dc.stepID, "tool": dc.tool.Name, "param": inf.Param, "from": inf.From, "value": inf.Value,
		})
	}
	dc.args = args
	return nil
}

type toolOutput struct {
	result string
	err    error
}

func (m *Mediator) executeStage(ctx context.Context, dc *dispatchCall) *DispatchResult {
	name := dc.tool.Name
	if err := dc.tool.ValidateArgs(dc.args); err != nil {
		return m.fail(ctx, dc, err.Error())
	}

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan toolOutput, 1)
	go func() {
		res, err := dc.tool.Fn(tctx, dc.args)
		done <- toolOutput{result: res, err: err}
	}()

	var out toolOutput
	select {
	case out = <-done:
	case <-tctx.Done():
		out = toolOutput{err: tctx.Err()}
	}
	if out.err != nil {
		if ctx.Err() != nil {
			// Cancelled from above: the call never settled, leave trackers alone.
			return &DispatchResult{Kind: OutcomeCancelled, Content: errorContent("tool call cancelled"), Err: ctx.Err().Error()}
		}
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			out.err = fmt.Errorf("tool %s timed out after %s", name, timeout)
		}
		return m.fail(ctx, dc, out.err.Error())
	}

	content := out.result
	m.Dedup.Record(dc.tool, dc.modelArgs, content)
	switch kind, path := ClassifyFileOp(name, dc.args); kind {
	case FileOpRead:
		m.Files.RecordRead(path)
	case FileOpList:
		m.Files.RecordListing(path, content)
	case FileOpCreate:
		if warning := m.Files.RecordCreate(path); warning != "" {
			content += "\n\nWARNING: " + warning
		}
	}

	if failed, msg, hasErrField := softFailure(out.result); failed {
		if hasErrField {
			m.Breaker.RecordFailure(name, msg)
		}
		m.emit(ctx, dc.taskID, EventToolError, map[string]any{"stepId": dc.stepID, "tool": name, "reason": msg, "soft": true})
		return &DispatchResult{Kind: OutcomeSoftFailure, Content: content, Err: msg}
	}

	m.Breaker.RecordSuccess(name)
	m.emit(ctx, dc.taskID, EventToolResult, map[string]any{"stepId": dc.stepID, "tool": name, "result": preview(content, 2000)})
	return &DispatchResult{Kind: OutcomeExecuted, Content: content}
}

func (m *Mediator) fail(ctx context.Context, dc *dispatchCall, msg string) *DispatchResult {
	disabled := m.Breaker.RecordFailure(dc.tool.Name, msg)
	m.emit(ctx, dc.taskID, EventToolError, map[string]any{
		"stepId": dc.stepID, "tool": dc.tool.Name, "reason": msg, "class": string(ClassifyToolFailure(msg)), "disabled": disabled,
	})
	return &DispatchResult{Kind: OutcomeError, Content: errorContent(msg), Err: msg}
}

// softFailure inspects a JSON tool result for "success": false. It returns
// the failure text and whether the result carried an explicit error field.
func softFailure(result string) (bool, string, bool) {
	trimmed := strings.TrimSpace(result)
	if !strings.HasPrefix(trimmed, "{") {
		return false, "", false
	}
	var r struct {
		Success  *bool  `json:"success"`
		Error    string `json:"error"`
		ExitCode *int   `json:"exitCode"`
		Stderr   string `json:"stderr"`
	}
	if err := json.Unmarshal([]byte(trimmed), &r); err != nil || r.Success == nil || *r.Success {
		return false, "", false
	}
	switch {
	case r.Error != "":
		return true, r.Error, true
	case r.ExitCode != nil:
		msg := fmt.Sprintf("exit code %d", *r.ExitCode)
		if s := strings.TrimSpace(r.Stderr); s != "" {
			msg += ": " + preview(s, 300)
		}
		return true, msg, false
	default:
		return true, "tool reported failure", false
	}
}

func errorContent(msg string) string {
	return "ERROR: " + msg
}

func (m *Mediator) emit(ctx context.Context, taskID string, t EventType, payload map[string]any) {
	m.Sink.LogEvent(ctx, Event{TaskID: taskID, Type: t, Payload: payload, At: time.Now()})
}
