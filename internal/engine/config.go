package engine

import "time"

// Executor defaults.
const (
	DefaultMaxTurnsPerStep   = 5
	DefaultMaxEmptyResponses = 3
	DefaultStepTimeout       = 5 * time.Minute
	DefaultMaxSpawnDepth     = 3
	DefaultMaxOutputTokens   = 8192
)

// ExecutorConfig holds all executor configuration options.
type ExecutorConfig struct {
	Model             string
	ChatOptions       ChatOptions
	Guardrails        Guardrails
	Pricing           Pricing
	RetryPolicy       RetryPolicy
	MaxTurnsPerStep   int
	MaxEmptyResponses int
	StepTimeout       time.Duration
	ToolTimeout       time.Duration
	MaxPlanRevisions  int
	MaxSpawnDepth     int
	PauseForInput     bool   // suspend the task when the model asks the user a question
	Rules             string // project instructions appended to the planner and step prompts
}

// DefaultExecutorConfig returns the default executor configuration.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Model:             "claude-sonnet-4-5",
		ChatOptions:       ChatOptions{MaxOutputTokens: DefaultMaxOutputTokens},
		RetryPolicy:       DefaultRetryPolicy(),
		MaxTurnsPerStep:   DefaultMaxTurnsPerStep,
		MaxEmptyResponses: DefaultMaxEmptyResponses,
		StepTimeout:       DefaultStepTimeout,
		ToolTimeout:       defaultToolTimeout,
		MaxPlanRevisions:  defaultMaxPlanRevisions,
		MaxSpawnDepth:     DefaultMaxSpawnDepth,
	}
}

// withDefaults fills zero-valued knobs.
func (c ExecutorConfig) withDefaults() ExecutorConfig {
	d := DefaultExecutorConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.ChatOptions.MaxOutputTokens == 0 {
		c.ChatOptions.MaxOutputTokens = d.ChatOptions.MaxOutputTokens
	}
	if c.RetryPolicy.Multiplier == 0 {
		c.RetryPolicy = d.RetryPolicy
	}
	if c.MaxTurnsPerStep <= 0 {
		c.MaxTurnsPerStep = d.MaxTurnsPerStep
	}
	if c.MaxEmptyResponses <= 0 {
		c.MaxEmptyResponses = d.MaxEmptyResponses
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = d.StepTimeout
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = d.ToolTimeout
	}
	if c.MaxPlanRevisions <= 0 {
		c.MaxPlanRevisions = d.MaxPlanRevisions
	}
	if c.MaxSpawnDepth <= 0 {
		c.MaxSpawnDepth = d.MaxSpawnDepth
	}
	return c
}
