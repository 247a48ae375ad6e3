// Package engine provides agent orchestration functionality.
// This file contains the pattern tables behind every text classifier the
// executor uses: model-error classes, tool-failure classes, clarifying
// questions and recovery intent.

package engine

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// patternTable is an ordered list of case-insensitive patterns.
type patternTable []*regexp.Regexp

func newPatternTable(exprs ...string) patternTable {
	t := make(patternTable, 0, len(exprs))
	for _, e := range exprs {
		t = append(t, regexp.MustCompile(`(?i)`+e))
	}
	return t
}

// Match reports whether any pattern matches s.
func (t patternTable) Match(s string) bool {
	for _, re := range t {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

var (
	// Quota and billing exhaustion never clears by waiting.
	nonRetryablePatterns = newPatternTable(
		`quota`,
		`billing`,
		`payment required`,
		`credit balance`,
		`insufficient[_ ](funds|credits?)`,
		`rate[ _-]?limit.*(quota|billing|plan|exhausted)`,
		`429.*(quota|billing)`,
	)

	retryablePatterns = newPatternTable(
		`timeout`,
		`timed out`,
		`\b429\b`,
		`too many requests`,
		`rate[ _-]?limit`,
		`\b502\b`,
		`\b503\b`,
		`bad gateway`,
		`service unavailable`,
		`overloaded`,
		`network`,
		`econnreset`,
		`etimedout`,
		`econnrefused`,
		`connection reset`,
		`socket hang up`,
	)

	// Tool failures that depend on the arguments given rather than the tool itself.
	inputDependentPatterns = newPatternTable(
		`missing (required )?(parameter|argument|field)`,
		`(parameter|argument|field) .*(is )?required`,
		`required (parameter|argument|property)`,
		`invalid (parameter|argument|input|value|path)`,
		`validation failed`,
		`file not found`,
		`no such file`,
		`enoent`,
		`does not exist`,
		`not a directory`,
		`is a directory`,
		`permission denied.*['"/\\]`,
		`eacces.*['"/\\]`,
	)

	// Tool failures that disable the tool on the first occurrence.
	toolNonRetryablePatterns = newPatternTable(
		`quota`,
		`billing`,
		`not supported`,
		`unsupported operation`,
		`not installed`,
		`command not found`,
		`executable file not found`,
		`unauthorized`,
		`invalid api key`,
		`tool not found`,
	)

	questionPatterns = newPatternTable(
		`\?\s*$`,
		`^(could|would|should|can|do|does|did|is|are|which|what|where|when|who|how)\b[^.!]*\?`,
		`\b(please|kindly) (confirm|clarify|specify|provide|let me know)\b`,
		`\bdo you want me to\b`,
		`\bwould you like\b`,
		`\bwhich (one|option|file|approach)\b`,
	)

	recoveryIntentPatterns = newPatternTable(
		`workaround`,
		`alternative (approach|strategy|method|tool)`,
		`different approach`,
		`try (another|a different) (way|approach)`,
		`\bblocked\b`,
		`cannot proceed`,
		`can't proceed`,
		`unable to (continue|proceed)`,
		`no (viable|available) (tool|option|approach)`,
		`required tools are unavailable`,
		`not possible with the (current|available) tools`,
	)
)

// ClassifyLLMError classifies an error from a model call.
// Cancellation and quota/billing exhaustion are never retried; transient
// transport failures are; anything unrecognised is not.
func ClassifyLLMError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}
	if errors.Is(err, context.Canceled) {
		return RetryClassNonRetryable
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) && engineErr.Class != "" {
		return engineErr.Class
	}
	var budgetErr *BudgetExceededError
	if errors.As(err, &budgetErr) {
		return RetryClassNonRetryable
	}

	msg := err.Error()
	if nonRetryablePatterns.Match(msg) {
		return RetryClassNonRetryable
	}
	if errors.Is(err, context.DeadlineExceeded) || retryablePatterns.Match(msg) {
		return RetryClassRetryable
	}
	return RetryClassNonRetryable
}

// ToolFailureClass buckets a tool failure for the circuit breaker.
type ToolFailureClass string

const (
	ToolFailureSystemic       ToolFailureClass = "systemic"
	ToolFailureInputDependent ToolFailureClass = "input_dependent"
	ToolFailureNonRetryable   ToolFailureClass = "non_retryable"
)

// ClassifyToolFailure maps a tool error message to its failure bucket.
func ClassifyToolFailure(msg string) ToolFailureClass {
	switch {
	case toolNonRetryablePatterns.Match(msg):
		return ToolFailureNonRetryable
	case inputDependentPatterns.Match(msg):
		return ToolFailureInputDependent
	default:
		return ToolFailureSystemic
	}
}

// IsClarifyingQuestion reports whether assistant text reads as a question
// addressed to the user.
func IsClarifyingQuestion(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	// Only the tail matters: long reports often quote questions mid-way.
	lines := strings.Split(text, "\n")
	tail := strings.TrimSpace(lines[len(lines)-1])
	return questionPatterns.Match(tail)
}

// HasRecoveryIntent reports whether a failure message asks for, or implies the
// need for, an alternative strategy.
func HasRecoveryIntent(msg string) bool {
	return recoveryIntentPatterns.Match(msg)
}

var (
	signatureDigits = regexp.MustCompile(`\d+`)
	signatureSpace  = regexp.MustCompile(`\s+`)
)

// FailureSignature normalizes an error text so that failures differing only in
// numbers, case or whitespace compare equal.
func FailureSignature(msg string) string {
	s := strings.ToLower(strings.TrimSpace(msg))
	s = signatureDigits.ReplaceAllString(s, "#")
	s = signatureSpace.ReplaceAllString(s, " ")
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
