package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending       TaskStatus = "pending"
	TaskRunning       TaskStatus = "running"
	TaskCompleted     TaskStatus = "completed"
	TaskFailed        TaskStatus = "failed"
	TaskCancelled     TaskStatus = "cancelled"
	TaskAwaitingInput TaskStatus = "awaiting_input"
)

// Task is the unit of work handed to an Executor. The executor only updates
// Status and CurrentAttempt.
type Task struct {
	ID              string
	ParentID        string
	Title           string
	Prompt          string
	Status          TaskStatus
	SuccessCriteria *SuccessCriteria
	MaxAttempts     int
	CurrentAttempt  int
}

// NewTask creates a pending single-attempt task.
func NewTask(prompt string) *Task {
	title := strings.TrimSpace(prompt)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	if len(title) > 80 {
		title = title[:77] + "..."
	}
	return &Task{
		ID:          uuid.NewString(),
		Title:       title,
		Prompt:      prompt,
		Status:      TaskPending,
		MaxAttempts: 1,
	}
}

// StepFunc runs one started step and must leave it completed or failed. A
// returned error is fatal to the task.
type StepFunc func(ctx context.Context, plan *Plan, step *PlanStep) error

// Executor drives one task: analyze, plan, then run the plan and verify its
// success criteria up to MaxAttempts times. It is single-threaded; Pause and
// Resume are the only methods safe to call from other goroutines.
type Executor struct {
	task  *Task
	cfg   ExecutorConfig
	llm   LLMClient
	tools ToolRegistry
	sink  EventSink

	usage      *UsageCounters
	iterations int

	mediator  *Mediator
	revisions *RevisionManager
	planner   *Planner
	commands  CommandRunner
	files     FileChecker

	plan        *Plan
	analysis    TaskAnalysis
	retryNotes  []string
	stepResults map[string]string

	depth  int
	parent *Executor

	pauseMu  sync.Mutex
	paused   bool
	resumeCh chan struct{}

	runStepFn StepFunc
}

func newExecutor(task *Task, cfg ExecutorConfig, llm LLMClient, tools ToolRegistry, sink EventSink, usage *UsageCounters) *Executor {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = NopSink{}
	}
	if usage == nil {
		usage = &UsageCounters{}
	}
	if tools == nil {
		tools = ToolRegistry{}
	}
	e := &Executor{
		task:        task,
		cfg:         cfg,
		llm:         llm,
		tools:       tools,
		sink:        sink,
		usage:       usage,
		files:       OSFileChecker{},
		stepResults: make(map[string]string),
	}
	e.mediator = NewMediator(tools, sink)
	e.mediator.Timeout = cfg.ToolTimeout
	e.revisions = NewRevisionManager(sink)
	e.revisions.MaxRevisions = cfg.MaxPlanRevisions
	e.planner = &Planner{Call: e.callModel, Tools: tools, Rules: e.cfg.Rules}
	e.runStepFn = e.runStep
	return e
}

// Task returns the task being executed.
func (e *Executor) Task() *Task { return e.task }

// Plan returns the live plan, nil before planning.
func (e *Executor) Plan() *Plan { return e.plan }

// Revisions returns the number of accepted plan revisions.
func (e *Executor) Revisions() int { return e.revisions.Count() }

// Usage returns the shared usage counters with this executor's iterations.
func (e *Executor) Usage() UsageSnapshot {
	s := e.usage.Snapshot()
	s.Iterations = e.iterations
	return s
}

// Execute runs the task to a terminal status.
func (e *Executor) Execute(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "task.execute")
	span.SetAttributes(attribute.String("task.id", e.task.ID), attribute.Int("task.max_attempts", e.task.MaxAttempts))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	defer func() { e.finishTask(ctx, err) }()
	e.setStatus(ctx, TaskRunning)

	maxAttempts := e.task.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	e.analysis = AnalyzeTask(e.task.Prompt)
	if err := CheckBudgets(e.cfg.Guardrails, e.Usage()); err != nil {
		return err
	}
	if e.plan == nil {
		e.plan = e.planner.CreatePlan(ctx, e.task, e.analysis)
		e.emit(ctx, EventPlanCreated, map[string]any{
			"description": e.plan.Description,
			"steps":       stepDescriptionsOf(e.plan),
			"kind":        string(e.analysis.Kind),
			"complexity":  e.analysis.Complexity,
		})
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var lastErr error
	var unmet []string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		e.task.CurrentAttempt = attempt
		if attempt > 1 {
			e.prepareRetry(ctx, attempt, lastErr)
		}

		err := e.runAttempt(ctx, attempt)
		if isFatal(ctx, err) {
			return err
		}
		if err != nil {
			lastErr = err
			unmet = nil
			log.Printf("⚠️  attempt %d/%d failed: %v", attempt, maxAttempts, err)
			continue
		}
		if e.task.SuccessCriteria.Empty() {
			return nil
		}
		unmet = e.verifyCriteria(ctx, e.task.SuccessCriteria)
		if len(unmet) == 0 {
			return nil
		}
		lastErr = &CriteriaUnmetError{Attempts: attempt, Unmet: unmet}
	}

	if unmet != nil {
		return &CriteriaUnmetError{Attempts: maxAttempts, Unmet: unmet}
	}
	return fmt.Errorf("task failed after %d attempt(s): %w", maxAttempts, lastErr)
}

func (e *Executor) runAttempt(ctx context.Context, attempt int) error {
	ctx, span := tracer.Start(ctx, "task.attempt")
	defer span.End()
	span.SetAttributes(attribute.Int("attempt", attempt))
	err := e.executePlan(ctx, e.plan)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// prepareRetry resets step statuses and tracker state for a new attempt.
// Revision count and recovery signatures are kept.
func (e *Executor) prepareRetry(ctx context.Context, attempt int, lastErr error) {
	e.plan.ResetStatuses()
	e.mediator.Reset()
	e.stepResults = make(map[string]string)
	note := fmt.Sprintf("Attempt %d of %d. The previous attempt did not achieve the goal", attempt, e.task.MaxAttempts)
	if lastErr != nil {
		note += ": " + preview(lastErr.Error(), 500)
	}
	note += ". Use a different approach where the previous one failed."
	e.retryNotes = append(e.retryNotes, note)
	e.emit(ctx, EventRetryStarted, map[string]any{"attempt": attempt, "maxAttempts": e.task.MaxAttempts, "previousError": errString(lastErr)})
}

// executePlan runs every pending step in order, including steps inserted
// while running. Non-verification failures fail the plan.
func (e *Executor) executePlan(ctx context.Context, plan *Plan) error {
	var failed []StepFailure
	for i := 0; i < plan.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.waitIfPaused(ctx); err != nil {
			return err
		}
		step := plan.At(i)
		if step.Status != StepPending {
			continue
		}
		if _, err := plan.Start(i); err != nil {
			return fmt.Errorf("start step: %w", err)
		}
		if err := e.runStepFn(ctx, plan, step); err != nil {
			return err
		}
		if !step.Status.Terminal() {
			return fmt.Errorf("%w: step %q returned with status %s", ErrTaskIncomplete, step.Description, step.Status)
		}

		if step.Status == StepFailed {
			if !IsVerificationStep(step.Description) {
				failed = append(failed, StepFailure{StepID: step.ID, Description: step.Description, Error: step.Error})
			}
			e.revisions.MaybeEscalate(ctx, e.task.ID, plan, step, step.Error)
		}
		e.emit(ctx, EventProgressUpdate, map[string]any{
			"completed": plan.CountCompleted(),
			"total":     plan.Len(),
			"stepId":    step.ID,
			"status":    string(step.Status),
		})
	}
	if len(failed) > 0 {
		return &PlanFailedError{Failed: failed}
	}
	return nil
}

// isFatal reports errors that end Execute without another attempt.
func isFatal(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		IsBudgetExceeded(err) ||
		errors.Is(err, ErrAwaitingInput) ||
		errors.Is(err, ErrTaskIncomplete)
}

func (e *Executor) finishTask(ctx context.Context, err error) {
	switch {
	case err == nil:
		e.setStatus(ctx, TaskCompleted)
	case errors.Is(err, ErrAwaitingInput):
		e.setStatus(ctx, TaskAwaitingInput)
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		// Cancellation is a status transition, not an error.
		e.setStatus(ctx, TaskCancelled)
	default:
		e.setStatus(ctx, TaskFailed)
		e.emit(ctx, EventError, map[string]any{"error": err.Error()})
	}
}

func (e *Executor) setStatus(ctx context.Context, s TaskStatus) {
	e.task.Status = s
	e.emit(ctx, EventTaskStatus, map[string]any{"status": string(s), "attempt": e.task.CurrentAttempt})
}

// callModel checks budgets, calls the model with retries and records usage.
func (e *Executor) callModel(ctx context.Context, msgs []ChatMessage, schemas []ToolSchema) (LLMResponse, error) {
	if err := CheckBudgets(e.cfg.Guardrails, e.Usage()); err != nil {
		return LLMResponse{}, err
	}
	resp, err := RetryLLMCall(ctx, e.cfg.RetryPolicy, e.llm, e.cfg.Model, msgs, schemas, e.cfg.ChatOptions,
		func(attempt int, delay time.Duration, err error) {
			e.emit(ctx, EventModelRetry, map[string]any{"attempt": attempt, "delay": delay.String(), "error": err.Error()})
		})
	if err != nil {
		return LLMResponse{}, err
	}
	e.iterations++
	e.usage.Record(resp.Usage, e.cfg.Pricing)
	return resp, nil
}

// ProvideInput records the user's answer to a clarifying question. The
// suspended step sees it when Execute is called again.
func (e *Executor) ProvideInput(answer string) {
	if answer = strings.TrimSpace(answer); answer != "" {
		e.retryNotes = append(e.retryNotes, "The user answered your question: "+answer)
	}
}

// Pause asks the executor to stop at the next loop boundary.
func (e *Executor) Pause() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	if !e.paused {
		e.paused = true
		e.resumeCh = make(chan struct{})
	}
}

// Resume releases a paused executor.
func (e *Executor) Resume() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	if e.paused {
		e.paused = false
		close(e.resumeCh)
	}
}

// Paused reports whether the executor is paused.
func (e *Executor) Paused() bool {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	return e.paused
}

// waitIfPaused blocks while paused; cancellation still ends the wait.
func (e *Executor) waitIfPaused(ctx context.Context) error {
	e.pauseMu.Lock()
	if !e.paused {
		e.pauseMu.Unlock()
		return ctx.Err()
	}
	ch := e.resumeCh
	e.pauseMu.Unlock()
	select {
	case <-ch:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SpawnChild creates an executor for a subtask. The child shares usage
// counters and event sinks with its parent and owns its own trackers.
func (e *Executor) SpawnChild(task *Task) (*Executor, error) {
	if e.depth+1 > e.cfg.MaxSpawnDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrSpawnDepth, e.depth+1)
	}
	task.ParentID = e.task.ID
	child := newExecutor(task, e.cfg, e.llm, e.tools, e.sink, e.usage)
	child.commands = e.commands
	child.files = e.files
	child.depth = e.depth + 1
	child.parent = e
	return child, nil
}

// Parent returns the spawning executor, nil for a root task.
func (e *Executor) Parent() *Executor { return e.parent }

// Depth returns the spawn depth, 0 for a root task.
func (e *Executor) Depth() int { return e.depth }

func (e *Executor) emit(ctx context.Context, t EventType, payload map[string]any) {
	e.sink.LogEvent(ctx, Event{TaskID: e.task.ID, Type: t, Payload: payload, At: time.Now()})
}

func stepDescriptionsOf(p *Plan) []string {
	out := make([]string, 0, p.Len())
	for _, st := range p.Steps() {
		out = append(out, st.Description)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
