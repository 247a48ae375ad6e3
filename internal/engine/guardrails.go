package engine

import "sync"

// Guardrails are externally configured ceilings. Zero means unlimited.
type Guardrails struct {
	MaxTurns      int     // global model turns across a task tree
	MaxIterations int     // model calls for this task
	MaxTokens     int     // cumulative input+output tokens
	MaxCostUSD    float64 // cumulative cost
}

// Pricing converts token usage into cost.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Cost returns the USD cost of one response's usage.
func (p Pricing) Cost(u Usage) float64 {
	return float64(u.Prompt)/1e6*p.InputPerMillion + float64(u.Completion)/1e6*p.OutputPerMillion
}

// UsageCounters are the cumulative counters the budget checker reads.
// A child executor shares its parent's counters, so turns and spend are
// global to the task tree.
type UsageCounters struct {
	mu           sync.Mutex
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Turns        int
}

// UsageSnapshot is a point-in-time copy of UsageCounters plus the reading
// executor's own iteration count.
type UsageSnapshot struct {
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Iterations   int
	Turns        int
}

// Record adds one model response to the counters.
func (c *UsageCounters) Record(u Usage, pricing Pricing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InputTokens += u.Prompt
	c.OutputTokens += u.Completion
	c.CostUSD += pricing.Cost(u)
	c.Turns++
}

// Snapshot returns a copy of the counters with Iterations left zero.
func (c *UsageCounters) Snapshot() UsageSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return UsageSnapshot{
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
		CostUSD:      c.CostUSD,
		Turns:        c.Turns,
	}
}

// CheckBudgets checks, in order, turns, iterations, tokens and cost. The
// first exhausted limit is returned as a *BudgetExceededError.
func CheckBudgets(g Guardrails, u UsageSnapshot) error {
	if g.MaxTurns > 0 && u.Turns >= g.MaxTurns {
		return &BudgetExceededError{Kind: BudgetTurns, Used: float64(u.Turns), Limit: float64(g.MaxTurns)}
	}
	if g.MaxIterations > 0 && u.Iterations >= g.MaxIterations {
		return &BudgetExceededError{Kind: BudgetIterations, Used: float64(u.Iterations), Limit: float64(g.MaxIterations)}
	}
	tokens := u.InputTokens + u.OutputTokens
	if g.MaxTokens > 0 && tokens >= g.MaxTokens {
		return &BudgetExceededError{Kind: BudgetTokens, Used: float64(tokens), Limit: float64(g.MaxTokens)}
	}
	if g.MaxCostUSD > 0 && u.CostUSD >= g.MaxCostUSD {
		return &BudgetExceededError{Kind: BudgetCost, Used: u.CostUSD, Limit: g.MaxCostUSD}
	}
	return nil
}
