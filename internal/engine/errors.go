// Package engine provides agent orchestration functionality.
// This file contains the error taxonomy.

package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// RetryClass indicates whether an error should be retried.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"     // Definitely retry
	RetryClassNonRetryable RetryClass = "non_retryable" // Never retry
)

// EngineError wraps errors with classification metadata.
type EngineError struct {
	Err         error
	Class       RetryClass
	HTTPStatus  int  // HTTP status code if applicable
	IsRateLimit bool // True if this is a rate limit error
	IsQuota     bool // True if this is a quota exhaustion error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("engine error: %s", e.Class)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError with classification.
func NewEngineError(err error, class RetryClass) *EngineError {
	return &EngineError{
		Err:   err,
		Class: class,
	}
}

// WrapLLMError wraps a provider error with classification metadata.
func WrapLLMError(err error, httpStatus int) error {
	if err == nil {
		return nil
	}
	return &EngineError{
		Err:         err,
		Class:       ClassifyLLMError(err),
		HTTPStatus:  httpStatus,
		IsRateLimit: httpStatus == http.StatusTooManyRequests,
		IsQuota:     httpStatus == http.StatusPaymentRequired || nonRetryablePatterns.Match(err.Error()),
	}
}

// RetryExhaustedError indicates that all retry attempts have been exhausted.
type RetryExhaustedError struct {
	Err         error
	Attempts    int
	MaxAttempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// IsRetryExhausted checks if an error is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var retryExhausted *RetryExhaustedError
	return errors.As(err, &retryExhausted)
}

// BudgetKind names the guardrail that was exceeded.
type BudgetKind string

const (
	BudgetTurns      BudgetKind = "turns"
	BudgetIterations BudgetKind = "iterations"
	BudgetTokens     BudgetKind = "tokens"
	BudgetCost       BudgetKind = "cost"
)

// BudgetExceededError is fatal: it ends the current attempt and is never retried.
type BudgetExceededError struct {
	Kind  BudgetKind
	Used  float64
	Limit float64
}

func (e *BudgetExceededError) Error() string {
	if e.Kind == BudgetCost {
		return fmt.Sprintf("budget exceeded: %s used $%.4f of $%.4f limit", e.Kind, e.Used, e.Limit)
	}
	return fmt.Sprintf("budget exceeded: %s used %.0f of %.0f limit", e.Kind, e.Used, e.Limit)
}

// IsBudgetExceeded checks if an error is a BudgetExceededError.
func IsBudgetExceeded(err error) bool {
	var b *BudgetExceededError
	return errors.As(err, &b)
}

var (
	// ErrAwaitingInput suspends a task until the user answers a question.
	ErrAwaitingInput = errors.New("awaiting user input")
	// ErrTaskIncomplete is a contract violation: a step returned without a terminal status.
	ErrTaskIncomplete = errors.New("Task incomplete")
	// ErrTaskFailed means one or more non-verification steps failed.
	ErrTaskFailed = errors.New("Task failed")
	// ErrSpawnDepth is returned when a child task would exceed the spawn depth bound.
	ErrSpawnDepth = errors.New("maximum spawn depth exceeded")
)

// AwaitingInputError carries the question the model asked.
type AwaitingInputError struct {
	StepID   string
	Question string
}

func (e *AwaitingInputError) Error() string {
	return fmt.Sprintf("%v: %s", ErrAwaitingInput, e.Question)
}

func (e *AwaitingInputError) Unwrap() error { return ErrAwaitingInput }

// StepFailure summarises one failed step for plan-level errors.
type StepFailure struct {
	StepID      string
	Description string
	Error       string
}

// PlanFailedError reports the non-verification steps that ended failed.
type PlanFailedError struct {
	Failed []StepFailure
}

func (e *PlanFailedError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("%q: %s", f.Description, f.Error))
	}
	return fmt.Sprintf("%v: %d step(s) failed: %s", ErrTaskFailed, len(e.Failed), strings.Join(parts, "; "))
}

func (e *PlanFailedError) Unwrap() error { return ErrTaskFailed }

// CriteriaUnmetError is the terminal goal-mode failure.
type CriteriaUnmetError struct {
	Attempts int
	Unmet    []string
}

func (e *CriteriaUnmetError) Error() string {
	return fmt.Sprintf("success criteria not met after %d attempt(s): %s", e.Attempts, strings.Join(e.Unmet, "; "))
}

// ToolValidationError indicates that tool arguments failed JSON schema validation.
type ToolValidationError struct {
	ToolName string
	Errors   []string
}

func (e *ToolValidationError) Error() string {
	return fmt.Sprintf("tool %s validation failed: invalid parameter: %s", e.ToolName, strings.Join(e.Errors, "; "))
}

// EngineContextError wraps errors with execution context (step, turn, operation).
type EngineContextError struct {
	Err       error
	StepID    string
	Turn      int
	ToolName  string
	Operation string // "llm_call", "tool_execution", "planning", ...
}

func (e *EngineContextError) Error() string {
	if e.ToolName != "" {
		return fmt.Sprintf("[step=%s turn=%d op=%s tool=%s] %v", e.StepID, e.Turn, e.Operation, e.ToolName, e.Err)
	}
	return fmt.Sprintf("[step=%s turn=%d op=%s] %v", e.StepID, e.Turn, e.Operation, e.Err)
}

func (e *EngineContextError) Unwrap() error {
	return e.Err
}

// WrapWithContext wraps an error with execution context for debugging.
func WrapWithContext(err error, stepID string, turn int, operation, toolName string) error {
	if err == nil {
		return nil
	}
	return &EngineContextError{
		Err:       err,
		StepID:    stepID,
		Turn:      turn,
		ToolName:  toolName,
		Operation: operation,
	}
}
