package engine

import (
	"fmt"
	"time"
)

// Circuit breaker thresholds.
const (
	systemicFailureThreshold       = 2
	inputDependentFailureThreshold = 4
	toolCooldown                   = 5 * time.Minute
)

// ToolFailureState is the breaker state of a single tool.
type ToolFailureState struct {
	SystemicFailures       int
	InputDependentFailures int
	DisabledUntil          time.Time
	LastError              string
	LastClass              ToolFailureClass
}

// ToolFailureTracker disables tools that keep failing and re-enables them
// after a cooldown. It is owned by one executor and is not safe for
// concurrent use.
type ToolFailureTracker struct {
	states   map[string]*ToolFailureState
	cooldown time.Duration
	now      func() time.Time
}

// NewToolFailureTracker returns an empty tracker.
func NewToolFailureTracker() *ToolFailureTracker {
	return &ToolFailureTracker{
		states:   make(map[string]*ToolFailureState),
		cooldown: toolCooldown,
		now:      time.Now,
	}
}

// state returns the tool's state, applying cooldown expiry first.
func (t *ToolFailureTracker) state(tool string) *ToolFailureState {
	st, ok := t.states[tool]
	if !ok {
		return nil
	}
	if !st.DisabledUntil.IsZero() && !t.now().Before(st.DisabledUntil) {
		delete(t.states, tool)
		return nil
	}
	return st
}

// IsDisabled reports whether tool is currently disabled.
func (t *ToolFailureTracker) IsDisabled(tool string) bool {
	st := t.state(tool)
	return st != nil && !st.DisabledUntil.IsZero()
}

// DisabledReason describes why tool is disabled, or "" when it is not.
func (t *ToolFailureTracker) DisabledReason(tool string) string {
	st := t.state(tool)
	if st == nil || st.DisabledUntil.IsZero() {
		return ""
	}
	remaining := st.DisabledUntil.Sub(t.now()).Round(time.Second)
	return fmt.Sprintf("tool %q is temporarily disabled for %s after repeated %s failures (last error: %s). Use an alternative approach or a different tool.",
		tool, remaining, st.LastClass, preview(st.LastError, 200))
}

// RecordFailure feeds one failure into the breaker and reports whether the
// tool is now disabled.
func (t *ToolFailureTracker) RecordFailure(tool, msg string) bool {
	st := t.state(tool)
	if st == nil {
		st = &ToolFailureState{}
		t.states[tool] = st
	}
	class := ClassifyToolFailure(msg)
	st.LastError = msg
	st.LastClass = class

	disable := false
	switch class {
	case ToolFailureNonRetryable:
		disable = true
	case ToolFailureInputDependent:
		st.InputDependentFailures++
		disable = st.InputDependentFailures >= inputDependentFailureThreshold
	default:
		st.SystemicFailures++
		disable = st.SystemicFailures >= systemicFailureThreshold
	}
	if disable && st.DisabledUntil.IsZero() {
		st.DisabledUntil = t.now().Add(t.cooldown)
	}
	return !st.DisabledUntil.IsZero()
}

// RecordSuccess clears the tool's consecutive failure counters.
func (t *ToolFailureTracker) RecordSuccess(tool string) {
	st := t.state(tool)
	if st == nil || !st.DisabledUntil.IsZero() {
		return
	}
	delete(t.states, tool)
}

// State returns a copy of the tool's state.
func (t *ToolFailureTracker) State(tool string) (ToolFailureState, bool) {
	st := t.state(tool)
	if st == nil {
		return ToolFailureState{}, false
	}
	return *st, true
}

// Reset clears every tool's state.
func (t *ToolFailureTracker) Reset() {
	t.states = make(map[string]*ToolFailureState)
}
