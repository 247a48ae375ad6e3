package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxTotalSteps bounds the size of a plan, revisions included.
const MaxTotalSteps = 20

// StepStatus is the lifecycle state of a plan step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// Terminal reports whether the status ends a step.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// PlanStep is one unit of work.
type PlanStep struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	StartedAt   time.Time  `json:"started_at,omitempty"`
	CompletedAt time.Time  `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Plan is an ordered, append-only arena of steps. Steps are addressed by
// stable id; order holds arena indices in execution order so insertion after
// the running step does not move existing steps.
type Plan struct {
	Description string
	steps       []*PlanStep
	order       []int
	byID        map[string]int
	current     int // position in order of the in_progress step, -1 if none
}

// NewPlan builds a plan whose steps are all pending.
func NewPlan(description string, steps []string) *Plan {
	p := &Plan{Description: description, byID: make(map[string]int), current: -1}
	for _, s := range steps {
		p.appendStep(s)
	}
	return p
}

func newStep(description string) *PlanStep {
	return &PlanStep{ID: uuid.NewString(), Description: normalizeStepDescription(description), Status: StepPending}
}

var stepNumbering = regexp.MustCompile(`(?i)^\s*(step\s*)?\d+[.):\-]\s*`)

func normalizeStepDescription(s string) string {
	s = strings.TrimSpace(s)
	s = stepNumbering.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

func (p *Plan) appendStep(description string) *PlanStep {
	st := newStep(description)
	p.steps = append(p.steps, st)
	idx := len(p.steps) - 1
	p.byID[st.ID] = idx
	p.order = append(p.order, idx)
	return st
}

// Len returns the number of steps.
func (p *Plan) Len() int { return len(p.order) }

// At returns the i-th step in execution order.
func (p *Plan) At(i int) *PlanStep { return p.steps[p.order[i]] }

// Steps returns the steps in execution order.
func (p *Plan) Steps() []*PlanStep {
	out := make([]*PlanStep, len(p.order))
	for i, idx := range p.order {
		out[i] = p.steps[idx]
	}
	return out
}

// Step looks a step up by id.
func (p *Plan) Step(id string) (*PlanStep, bool) {
	idx, ok := p.byID[id]
	if !ok {
		return nil, false
	}
	return p.steps[idx], true
}

// Position returns the execution-order position of a step, or -1.
func (p *Plan) Position(id string) int {
	idx, ok := p.byID[id]
	if !ok {
		return -1
	}
	for i, o := range p.order {
		if o == idx {
			return i
		}
	}
	return -1
}

// Current returns the in_progress step, if any.
func (p *Plan) Current() (*PlanStep, bool) {
	if p.current < 0 || p.current >= len(p.order) {
		return nil, false
	}
	st := p.At(p.current)
	if st.Status != StepInProgress {
		return nil, false
	}
	return st, true
}

// Start marks the step at position i in_progress.
func (p *Plan) Start(i int) (*PlanStep, error) {
	if cur, ok := p.Current(); ok {
		return nil, fmt.Errorf("step %s is still in progress", cur.ID)
	}
	st := p.At(i)
	if st.Status != StepPending {
		return nil, fmt.Errorf("step %s is %s, not pending", st.ID, st.Status)
	}
	st.Status = StepInProgress
	st.StartedAt = time.Now()
	st.CompletedAt = time.Time{}
	st.Error = ""
	p.current = i
	return st, nil
}

// Finish moves the in_progress step to a terminal status.
func (p *Plan) Finish(id string, status StepStatus, errText string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}
	st, ok := p.Step(id)
	if !ok {
		return fmt.Errorf("step not found: %s", id)
	}
	if st.Status != StepInProgress {
		return fmt.Errorf("step %s is %s, not in_progress", id, st.Status)
	}
	st.Status = status
	st.CompletedAt = time.Now()
	st.Error = errText
	if cur, ok := p.Current(); !ok || cur.ID == id {
		p.current = -1
	}
	return nil
}

// Suspend returns the in_progress step to pending so it runs again when the
// task is resumed.
func (p *Plan) Suspend(id string) error {
	st, ok := p.Step(id)
	if !ok {
		return fmt.Errorf("step not found: %s", id)
	}
	if st.Status != StepInProgress {
		return fmt.Errorf("step %s is %s, not in progress", id, st.Status)
	}
	st.Status = StepPending
	st.StartedAt = time.Time{}
	p.current = -1
	return nil
}

// InsertAfter inserts pending steps directly after the step with anchor id,
// or appends them when anchor is unknown. It returns the new steps.
func (p *Plan) InsertAfter(anchor string, descriptions []string) []*PlanStep {
	pos := p.Position(anchor)
	if pos < 0 {
		pos = len(p.order) - 1
	}
	added := make([]*PlanStep, 0, len(descriptions))
	newIdx := make([]int, 0, len(descriptions))
	for _, d := range descriptions {
		st := newStep(d)
		p.steps = append(p.steps, st)
		idx := len(p.steps) - 1
		p.byID[st.ID] = idx
		newIdx = append(newIdx, idx)
		added = append(added, st)
	}
	order := make([]int, 0, len(p.order)+len(newIdx))
	order = append(order, p.order[:pos+1]...)
	order = append(order, newIdx...)
	order = append(order, p.order[pos+1:]...)
	p.order = order
	if p.current > pos {
		p.current += len(newIdx)
	}
	return added
}

// ResetStatuses returns every step to pending.
func (p *Plan) ResetStatuses() {
	for _, st := range p.steps {
		st.Status = StepPending
		st.StartedAt = time.Time{}
		st.CompletedAt = time.Time{}
		st.Error = ""
	}
	p.current = -1
}

// FailedSteps returns the steps that ended failed.
func (p *Plan) FailedSteps() []*PlanStep {
	var out []*PlanStep
	for _, st := range p.Steps() {
		if st.Status == StepFailed {
			out = append(out, st)
		}
	}
	return out
}

// CountCompleted returns the number of completed steps.
func (p *Plan) CountCompleted() int {
	n := 0
	for _, st := range p.Steps() {
		if st.Status == StepCompleted {
			n++
		}
	}
	return n
}

// FormatForPrompt renders the plan with status markers for context injection.
func (p *Plan) FormatForPrompt() string {
	var sb strings.Builder
	sb.WriteString("[PLAN]\n")
	if p.Description != "" {
		sb.WriteString(fmt.Sprintf("Goal: %s\n", p.Description))
	}
	for i, st := range p.Steps() {
		var icon string
		switch st.Status {
		case StepCompleted:
			icon = "✓"
		case StepFailed:
			icon = "✗"
		case StepInProgress:
			icon = "→"
		default:
			icon = " "
		}
		desc := st.Description
		if len(desc) > 80 {
			desc = desc[:77] + "..."
		}
		sb.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, icon, desc))
	}
	sb.WriteString("[/PLAN]")
	return sb.String()
}

var verificationPrefix = regexp.MustCompile(`(?i)^\s*verif(y|ication)\b\s*:?`)

// IsVerificationStep reports whether a step is a tolerated, non-fatal check.
func IsVerificationStep(description string) bool {
	return verificationPrefix.MatchString(description)
}
