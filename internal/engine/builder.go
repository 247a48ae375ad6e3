package engine

import (
	"fmt"
	"log"
	"sort"
)

// ExecutorBuilder helps construct an Executor with a fluent API.
type ExecutorBuilder struct {
	config   ExecutorConfig
	llm      LLMClient
	tools    ToolRegistry
	sinks    Sinks
	usage    *UsageCounters
	commands CommandRunner
	files    FileChecker
}

// NewExecutorBuilder creates a builder with the default configuration.
func NewExecutorBuilder() *ExecutorBuilder {
	return &ExecutorBuilder{config: DefaultExecutorConfig()}
}

// WithConfig replaces the whole configuration.
func (b *ExecutorBuilder) WithConfig(cfg ExecutorConfig) *ExecutorBuilder {
	b.config = cfg
	return b
}

// WithModel sets the model name.
func (b *ExecutorBuilder) WithModel(model string) *ExecutorBuilder {
	b.config.Model = model
	return b
}

// WithLLM sets the LLM client.
func (b *ExecutorBuilder) WithLLM(llm LLMClient) *ExecutorBuilder {
	b.llm = llm
	return b
}

// WithToolRegistry sets the tools the executor may dispatch.
func (b *ExecutorBuilder) WithToolRegistry(reg ToolRegistry) *ExecutorBuilder {
	b.tools = reg
	return b
}

// WithGuardrails sets the budget limits.
func (b *ExecutorBuilder) WithGuardrails(g Guardrails) *ExecutorBuilder {
	b.config.Guardrails = g
	return b
}

// WithPricing sets the per-million-token prices used for cost accounting.
func (b *ExecutorBuilder) WithPricing(p Pricing) *ExecutorBuilder {
	b.config.Pricing = p
	return b
}

// WithRetryPolicy sets the model-call retry policy.
func (b *ExecutorBuilder) WithRetryPolicy(p RetryPolicy) *ExecutorBuilder {
	b.config.RetryPolicy = p
	return b
}

// WithPauseForInput toggles suspension on clarifying questions.
func (b *ExecutorBuilder) WithPauseForInput(on bool) *ExecutorBuilder {
	b.config.PauseForInput = on
	return b
}

// WithRules sets project instructions for the planner and step prompts.
func (b *ExecutorBuilder) WithRules(rules string) *ExecutorBuilder {
	b.config.Rules = rules
	return b
}

// WithSinks sets the event sinks. Defaults to a LoggerSink.
func (b *ExecutorBuilder) WithSinks(sinks ...EventSink) *ExecutorBuilder {
	b.sinks = append(b.sinks, sinks...)
	return b
}

// WithUsageCounters shares usage counters across executors.
func (b *ExecutorBuilder) WithUsageCounters(u *UsageCounters) *ExecutorBuilder {
	b.usage = u
	return b
}

// WithCommandRunner sets the runner used for command success criteria.
func (b *ExecutorBuilder) WithCommandRunner(r CommandRunner) *ExecutorBuilder {
	b.commands = r
	return b
}

// WithFileChecker sets the checker used for file success criteria.
func (b *ExecutorBuilder) WithFileChecker(f FileChecker) *ExecutorBuilder {
	b.files = f
	return b
}

// Build constructs the Executor for task.
func (b *ExecutorBuilder) Build(task *Task) (*Executor, error) {
	if b.llm == nil {
		return nil, fmt.Errorf("LLM client not configured: use WithLLM")
	}
	if b.tools == nil {
		return nil, fmt.Errorf("tools not configured: use WithToolRegistry")
	}
	if task == nil {
		return nil, fmt.Errorf("task is nil")
	}
	if _, clash := b.tools[ReviseToolName]; clash {
		return nil, fmt.Errorf("tool name %q is reserved", ReviseToolName)
	}

	sinks := b.sinks
	if len(sinks) == 0 {
		sinks = Sinks{LoggerSink{L: log.Default()}}
	}

	e := newExecutor(task, b.config, b.llm, b.tools, sinks, b.usage)
	e.commands = b.commands
	if b.files != nil {
		e.files = b.files
	}
	logInitialConfiguration(e.cfg, b.tools)
	return e, nil
}

// logInitialConfiguration logs a one-line summary of model, tools and limits.
func logInitialConfiguration(cfg ExecutorConfig, tools ToolRegistry) {
	categories := map[string]bool{}
	for _, t := range tools {
		if t.Metadata.Category != "" {
			categories[t.Metadata.Category] = true
		}
	}
	cats := make([]string, 0, len(categories))
	for c := range categories {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	log.Printf("🔧 TOOLS: %d available [categories: %v]", len(tools), cats)
	g := cfg.Guardrails
	log.Printf("💰 LIMITS: model=%s turns=%d iterations=%d tokens=%d cost=$%.2f", cfg.Model, g.MaxTurns, g.MaxIterations, g.MaxTokens, g.MaxCostUSD)
}
