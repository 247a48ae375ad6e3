package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const defaultMaxPlanRevisions = 5

// recoverySteps are inserted after a step whose failure asks for another strategy.
var recoverySteps = []string{
	"Try an alternative toolchain or input strategy to achieve the failed step's goal",
	"Implement the smallest safe code/feature change needed to continue",
}

// RevisionResult reports what happened to a proposal.
type RevisionResult struct {
	Accepted  bool
	Truncated bool
	Added     []*PlanStep
	Reason    string // rejection reason
}

// RevisionManager applies bounded mutations to a live plan. The revision
// count and recovery signatures live for the whole task, across attempts.
type RevisionManager struct {
	MaxRevisions int
	Sink         EventSink

	count              int
	recoverySignatures map[string]string // step id -> last recovery failure signature
}

// NewRevisionManager returns a manager with the default revision limit.
func NewRevisionManager(sink EventSink) *RevisionManager {
	if sink == nil {
		sink = NopSink{}
	}
	return &RevisionManager{
		MaxRevisions:       defaultMaxPlanRevisions,
		Sink:               sink,
		recoverySignatures: make(map[string]string),
	}
}

// Count returns the number of accepted revisions.
func (r *RevisionManager) Count() int { return r.count }

// Propose inserts steps after anchorID, or after the in_progress step when
// anchorID is empty, or at the end when neither exists. Rejections are
// reported, never returned as errors.
func (r *RevisionManager) Propose(ctx context.Context, taskID string, plan *Plan, anchorID string, steps []string, reason string) RevisionResult {
	var proposed []string
	for _, s := range steps {
		if s = normalizeStepDescription(s); s != "" {
			proposed = append(proposed, s)
		}
	}

	reject := func(why string) RevisionResult {
		r.emit(ctx, taskID, EventPlanRevisionBlocked, map[string]any{"reason": why, "proposed": proposed, "revisionCount": r.count})
		return RevisionResult{Reason: why}
	}

	if len(proposed) == 0 {
		return reject("revision proposed no steps")
	}
	if r.count >= r.MaxRevisions {
		return reject(fmt.Sprintf("plan revision limit reached (%d)", r.MaxRevisions))
	}
	for _, p := range proposed {
		for _, failed := range plan.FailedSteps() {
			if StepsSimilar(p, failed.Description) {
				return reject(fmt.Sprintf("proposed step %q repeats the strategy of failed step %q", p, failed.Description))
			}
		}
	}
	remaining := MaxTotalSteps - plan.Len()
	if remaining <= 0 {
		return reject(fmt.Sprintf("plan already has the maximum of %d steps", MaxTotalSteps))
	}
	truncated := false
	if len(proposed) > remaining {
		proposed = proposed[:remaining]
		truncated = true
	}

	if anchorID == "" {
		if cur, ok := plan.Current(); ok {
			anchorID = cur.ID
		}
	}
	added := plan.InsertAfter(anchorID, proposed)
	r.count++
	r.emit(ctx, taskID, EventPlanRevised, map[string]any{
		"reason":        reason,
		"added":         proposed,
		"truncated":     truncated,
		"revisionCount": r.count,
		"totalSteps":    plan.Len(),
	})
	return RevisionResult{Accepted: true, Truncated: truncated, Added: added}
}

// MaybeEscalate appends the recovery steps to the plan when the
// failure text shows recovery intent and its signature differs from the last
// one that triggered recovery for the same step.
func (r *RevisionManager) MaybeEscalate(ctx context.Context, taskID string, plan *Plan, step *PlanStep, errText string) bool {
	if !HasRecoveryIntent(errText) {
		return false
	}
	sig := FailureSignature(errText)
	if prev, ok := r.recoverySignatures[step.ID]; ok && prev == sig {
		return false
	}
	res := r.Propose(ctx, taskID, plan, "", recoverySteps, "recovery after failure: "+preview(errText, 200))
	if !res.Accepted {
		return false
	}
	r.recoverySignatures[step.ID] = sig
	return true
}

var actionKeyword = regexp.MustCompile(`(?i)\b(copy|edit|verify|write|create|delete|move|download|install)`)

const similarityPrefixLen = 24

// StepsSimilar reports whether two step descriptions describe the same
// strategy: equal normalized prefixes or a shared action keyword.
func StepsSimilar(a, b string) bool {
	na, nb := similarityKey(a), similarityKey(b)
	if na != "" && na == nb {
		return true
	}
	kb := map[string]bool{}
	for _, k := range actionKeyword.FindAllString(b, -1) {
		kb[strings.ToLower(k)] = true
	}
	for _, k := range actionKeyword.FindAllString(a, -1) {
		if kb[strings.ToLower(k)] {
			return true
		}
	}
	return false
}

func similarityKey(s string) string {
	s = strings.ToLower(normalizeStepDescription(s))
	s = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == ' ' {
			return r
		}
		return -1
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > similarityPrefixLen {
		s = s[:similarityPrefixLen]
	}
	return s
}

func (r *RevisionManager) emit(ctx context.Context, taskID string, t EventType, payload map[string]any) {
	r.Sink.LogEvent(ctx, Event{TaskID: taskID, Type: t, Payload: payload, At: time.Now()})
}
