package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/ChamsBouzaiene/taskpilot/internal/prompts"
)

const (
	maxPlannedSteps      = 10
	fallbackStepMaxChars = 500
)

// ModelCaller performs one budget-checked, retried model call.
type ModelCaller func(ctx context.Context, messages []ChatMessage, schemas []ToolSchema) (LLMResponse, error)

// Planner turns a task into a Plan with one model call.
type Planner struct {
	Call  ModelCaller
	Tools ToolRegistry
	Rules string
}

// planDoc is the JSON the planning prompt asks for. Steps may be strings or
// objects with a description.
type planDoc struct {
	Description string            `json:"description"`
	Steps       []json.RawMessage `json:"steps"`
}

// CreatePlan always returns a plan: the parsed model plan, else a single
// step built from the raw reply, else a single step equal to the task prompt.
func (p *Planner) CreatePlan(ctx context.Context, task *Task, analysis TaskAnalysis) *Plan {
	msgs := []ChatMessage{
		{Role: RoleSystem, Content: p.systemPrompt(analysis)},
		{Role: RoleUser, Content: task.Prompt},
	}
	resp, err := p.Call(ctx, msgs, nil)
	if err != nil {
		log.Printf("⚠️  planning call failed, using task prompt as single step: %v", err)
		return NewPlan(task.Title, []string{task.Prompt})
	}
	if plan, ok := ParsePlan(resp.Assistant.Content); ok {
		if plan.Description == "" {
			plan.Description = task.Title
		}
		return plan
	}
	return fallbackPlan(task, resp.Assistant.Content)
}

func fallbackPlan(task *Task, raw string) *Plan {
	text := strings.TrimSpace(raw)
	if text == "" {
		return NewPlan(task.Title, []string{task.Prompt})
	}
	if len(text) > fallbackStepMaxChars {
		text = text[:fallbackStepMaxChars]
	}
	return NewPlan(task.Title, []string{text})
}

// ParsePlan parses the balanced JSON object starting at the first '{' in
// free text. Only that object is considered; anything else falls back.
func ParsePlan(text string) (*Plan, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}
	obj := balancedObject(text, start)
	if obj == "" {
		return nil, false
	}
	var doc planDoc
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return nil, false
	}
	steps := stepDescriptions(doc.Steps)
	if len(steps) == 0 {
		return nil, false
	}
	if len(steps) > MaxTotalSteps {
		steps = steps[:MaxTotalSteps]
	}
	return NewPlan(strings.TrimSpace(doc.Description), steps), true
}

// balancedObject returns the substring from text[start] ('{') to its matching
// close brace, skipping braces inside quoted strings. It returns "" when the
// braces never balance.
func balancedObject(text string, start int) string {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func stepDescriptions(raw []json.RawMessage) []string {
	var out []string
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			Description string `json:"description"`
			Title       string `json:"title"`
			Step        string `json:"step"`
		}
		if err := json.Unmarshal(r, &obj); err != nil {
			continue
		}
		for _, s := range []string{obj.Description, obj.Title, obj.Step} {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func (p *Planner) systemPrompt(analysis TaskAnalysis) string {
	tools := "- none"
	if len(p.Tools) > 0 {
		lines := make([]string, 0, len(p.Tools))
		for _, name := range p.Tools.Names() {
			lines = append(lines, fmt.Sprintf("- %s: %s", name, p.Tools[name].Description))
		}
		tools = strings.Join(lines, "\n")
	}
	return prompts.MustRender(prompts.PlannerID, map[string]string{
		"kind":       string(analysis.Kind),
		"complexity": analysis.Complexity,
		"tools":      tools,
		"max_steps":  strconv.Itoa(maxPlannedSteps),
	}, rulesFragment(p.Rules))
}

// rulesFragment wraps project rules for inclusion in a system prompt.
func rulesFragment(rules string) string {
	rules = strings.TrimSpace(rules)
	if rules == "" {
		return ""
	}
	return "Project rules:\n" + rules
}
