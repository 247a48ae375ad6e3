package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ChamsBouzaiene/taskpilot/internal/prompts"
)

// ReviseToolName is the built-in tool through which the model proposes
// additional plan steps.
const ReviseToolName = "revise_plan"

const reviseToolSchema = `{
  "type": "object",
  "properties": {
    "steps": {"type": "array", "items": {"type": "string"}, "minItems": 1, "description": "New steps to insert after the current step"},
    "reason": {"type": "string", "description": "Why the plan needs these steps"}
  },
  "required": ["steps"]
}`

const unavailableToolsMsg = "required tools are unavailable or failed"

// toolFailure is the most recent failed tool call not yet followed by a
// successful one.
type toolFailure struct {
	tool string
	msg  string
}

func (f *toolFailure) String() string {
	return fmt.Sprintf("Tool %s failed: %s", f.tool, f.msg)
}

// stepLoop is the per-step state of the runner.
type stepLoop struct {
	anySuccess  bool
	lastFailure *toolFailure
	empty       int
}

// runStep drives the observe, call model, dispatch tools loop for one step.
// It always leaves the step completed or failed unless it returns a fatal
// error.
func (e *Executor) runStep(ctx context.Context, plan *Plan, step *PlanStep) error {
	ctx, span := tracer.Start(ctx, "plan.step")
	defer span.End()
	span.SetAttributes(attribute.String("step.id", step.ID), attribute.String("step.description", preview(step.Description, 120)))

	stepCtx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()

	e.mediator.ResetStep()
	e.emit(ctx, EventStepStarted, map[string]any{
		"stepId":      step.ID,
		"index":       plan.Position(step.ID) + 1,
		"total":       plan.Len(),
		"description": step.Description,
		"attempt":     e.task.CurrentAttempt,
	})

	msgs := e.stepMessages(plan, step)
	schemas := append(e.tools.Schemas(), ToolSchema{
		Name:        ReviseToolName,
		Description: "Insert additional steps into the plan after the current step when the current plan cannot reach the goal.",
		JSONSchema:  reviseToolSchema,
	})

	var st stepLoop
	for turn := 1; turn <= e.cfg.MaxTurnsPerStep; turn++ {
		if err := e.waitIfPaused(stepCtx); err != nil {
			return e.interrupted(ctx, plan, step, err)
		}

		resp, err := e.callModel(stepCtx, msgs, schemas)
		if err != nil {
			if stepCtx.Err() != nil {
				return e.interrupted(ctx, plan, step, err)
			}
			if IsBudgetExceeded(err) {
				e.finishStep(ctx, plan, step, StepFailed, err.Error())
				return err
			}
			e.finishStep(ctx, plan, step, StepFailed, WrapWithContext(err, step.ID, turn, "llm_call", "").Error())
			return nil
		}

		text := strings.TrimSpace(resp.Assistant.Content)
		if text != "" {
			e.emit(ctx, EventAssistantText, map[string]any{"stepId": step.ID, "turn": turn, "text": text})
		}

		if len(resp.ToolCalls) == 0 {
			if text == "" {
				st.empty++
				if st.empty >= e.cfg.MaxEmptyResponses {
					e.finishStep(ctx, plan, step, StepFailed, fmt.Sprintf("model returned %d consecutive empty responses", st.empty))
					return nil
				}
				msgs = append(msgs, ChatMessage{Role: RoleUser, Content: "Your last reply was empty. Continue with the current step: call a tool or state the result."})
				continue
			}
			if e.cfg.PauseForInput && IsClarifyingQuestion(text) {
				if err := plan.Suspend(step.ID); err != nil {
					return err
				}
				e.emit(ctx, EventAwaitingInput, map[string]any{"stepId": step.ID, "question": text})
				return &AwaitingInputError{StepID: step.ID, Question: text}
			}
			if st.lastFailure != nil {
				e.finishStep(ctx, plan, step, StepFailed, st.lastFailure.String())
				return nil
			}
			e.stepResults[step.ID] = text
			e.finishStep(ctx, plan, step, StepCompleted, "")
			return nil
		}
		st.empty = 0

		msgs = append(msgs, ChatMessage{Role: RoleAssistant, Content: resp.Assistant.Content, ToolCalls: resp.ToolCalls})

		allBlocked, allSatisfied := true, true
		var blockedReasons []string
		for _, call := range resp.ToolCalls {
			var res DispatchResult
			if NormalizeToolName(call.Name) == ReviseToolName {
				res = e.handleRevision(ctx, plan, step, call)
			} else {
				res = e.mediator.Dispatch(stepCtx, e.task.ID, step.ID, call)
			}
			if res.Kind == OutcomeCancelled {
				return e.interrupted(ctx, plan, step, stepCtx.Err())
			}

			switch {
			case res.Kind == OutcomeExecuted:
				st.anySuccess = true
				st.lastFailure = nil
			case res.Kind == OutcomeError || res.Kind == OutcomeSoftFailure:
				st.lastFailure = &toolFailure{tool: res.Call.Name, msg: res.Err}
			}
			if res.Kind.Blocked() {
				blockedReasons = append(blockedReasons, fmt.Sprintf("%s: %s", res.Call.Name, res.Err))
				if !res.Kind.Satisfied() {
					allSatisfied = false
				}
			} else {
				allBlocked = false
			}

			id := call.ID
			if id == "" {
				id = res.Call.Name
			}
			msgs = append(msgs, ChatMessage{Role: RoleTool, Name: id, Content: res.Content})
		}

		if allBlocked {
			switch {
			case allSatisfied && st.lastFailure != nil:
				// Cached replays do not resolve an earlier tool failure.
				e.finishStep(ctx, plan, step, StepFailed, st.lastFailure.String())
			case allSatisfied:
				e.stepResults[step.ID] = "already satisfied: repeated calls were answered from earlier results"
				e.finishStep(ctx, plan, step, StepCompleted, "")
			default:
				e.finishStep(ctx, plan, step, StepFailed, fmt.Sprintf("%s (%s)", unavailableToolsMsg, strings.Join(blockedReasons, "; ")))
			}
			return nil
		}
	}

	if st.anySuccess && st.lastFailure == nil {
		e.stepResults[step.ID] = fmt.Sprintf("completed after %d turns", e.cfg.MaxTurnsPerStep)
		e.finishStep(ctx, plan, step, StepCompleted, "")
		return nil
	}
	msg := fmt.Sprintf("step did not complete within %d turns", e.cfg.MaxTurnsPerStep)
	if st.lastFailure != nil {
		msg = st.lastFailure.String() + "; " + msg
	}
	e.finishStep(ctx, plan, step, StepFailed, msg)
	return nil
}

// interrupted settles a step whose context ended. A step timeout fails only
// the step; cancellation from above is returned.
func (e *Executor) interrupted(ctx context.Context, plan *Plan, step *PlanStep, cause error) error {
	if ctx.Err() != nil {
		e.finishStep(ctx, plan, step, StepFailed, "cancelled")
		return ctx.Err()
	}
	msg := fmt.Sprintf("step timed out after %s", e.cfg.StepTimeout)
	e.emit(ctx, EventStepTimeout, map[string]any{"stepId": step.ID, "timeout": e.cfg.StepTimeout.String(), "cause": errString(cause)})
	e.finishStep(ctx, plan, step, StepFailed, msg)
	return nil
}

func (e *Executor) finishStep(ctx context.Context, plan *Plan, step *PlanStep, status StepStatus, errText string) {
	if err := plan.Finish(step.ID, status, errText); err != nil {
		e.emit(ctx, EventError, map[string]any{"stepId": step.ID, "error": err.Error()})
		return
	}
	if status == StepCompleted {
		e.emit(ctx, EventStepCompleted, map[string]any{"stepId": step.ID, "description": step.Description, "duration": step.CompletedAt.Sub(step.StartedAt).String()})
		return
	}
	e.emit(ctx, EventStepFailed, map[string]any{
		"stepId":       step.ID,
		"description":  step.Description,
		"error":        errText,
		"verification": IsVerificationStep(step.Description),
	})
}

func (e *Executor) handleRevision(ctx context.Context, plan *Plan, step *PlanStep, call ToolCall) DispatchResult {
	call.Name = ReviseToolName
	var steps []string
	if raw, ok := call.Args["steps"].([]any); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				steps = append(steps, str)
			}
		}
	}
	reason, _ := call.Args["reason"].(string)

	res := e.revisions.Propose(ctx, e.task.ID, plan, step.ID, steps, reason)
	if !res.Accepted {
		b, _ := json.Marshal(map[string]any{"success": false, "accepted": false, "reason": res.Reason})
		return DispatchResult{Call: call, Kind: OutcomeRevisionRejected, Content: string(b)}
	}
	added := make([]string, 0, len(res.Added))
	for _, s := range res.Added {
		added = append(added, s.Description)
	}
	b, _ := json.Marshal(map[string]any{"success": true, "accepted": true, "added": added, "truncated": res.Truncated})
	return DispatchResult{Call: call, Kind: OutcomeRevisionAccepted, Content: string(b)}
}

// stepMessages builds a fresh context for a step: instructions, task, plan,
// digest of finished steps and accumulated file knowledge. Raw transcripts
// of earlier steps are never included.
func (e *Executor) stepMessages(plan *Plan, step *PlanStep) []ChatMessage {
	sys := prompts.MustRender(prompts.StepID, map[string]string{
		"revise_tool": ReviseToolName,
		"kind":        string(e.analysis.Kind),
		"complexity":  e.analysis.Complexity,
	}, rulesFragment(e.cfg.Rules))

	var user strings.Builder
	user.WriteString(fmt.Sprintf("Overall task:\n%s\n\n", e.task.Prompt))
	user.WriteString(plan.FormatForPrompt())
	user.WriteString("\n\n")

	var done []string
	for _, s := range plan.Steps() {
		if s.Status != StepCompleted {
			continue
		}
		line := "- " + s.Description
		if r := e.stepResults[s.ID]; r != "" {
			line += ": " + preview(r, 200)
		}
		done = append(done, line)
	}
	if len(done) > 0 {
		user.WriteString("Completed steps:\n")
		user.WriteString(strings.Join(done, "\n"))
		user.WriteString("\n\n")
	}
	if k := e.mediator.Files.KnowledgeSummary(); k != "" {
		user.WriteString("Known so far:\n")
		user.WriteString(k)
		user.WriteString("\n\n")
	}
	for _, note := range e.retryNotes {
		user.WriteString(note)
		user.WriteString("\n\n")
	}
	user.WriteString(fmt.Sprintf("Current step: %s", step.Description))

	return []ChatMessage{
		{Role: RoleSystem, Content: sys},
		{Role: RoleUser, Content: user.String()},
	}
}
