package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  []string
		valid bool
	}{
		{
			name:  "plain json",
			text:  `{"description":"d","steps":["a","b"]}`,
			want:  []string{"a", "b"},
			valid: true,
		},
		{
			name:  "json embedded in prose with braces inside strings",
			text:  "Sure! Plan below.\n```json\n{\"description\": \"use {curly} braces\", \"steps\": [\"write \\\"}\\\" to file\", \"check\"]}\n```\nGood luck {not json",
			want:  []string{`write "}" to file`, "check"},
			valid: true,
		},
		{
			name:  "object steps",
			text:  `{"steps":[{"id":"1","description":"first"},{"title":"second"}]}`,
			want:  []string{"first", "second"},
			valid: true,
		},
		{name: "only the first object counts", text: `{"note":"x"} then {"steps":["real"]}`},
		{name: "empty steps", text: `{"steps":[]}`},
		{name: "invalid json", text: `{"steps": [a, b]}`},
		{name: "no json", text: "just do it"},
		{name: "unbalanced", text: `{"steps": ["a"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := ParsePlan(tt.text)
			require.Equal(t, tt.valid, ok)
			if !tt.valid {
				return
			}
			assert.Equal(t, tt.want, stepDescriptionsOf(p))
			for _, st := range p.Steps() {
				assert.Equal(t, StepPending, st.Status)
				assert.NotEmpty(t, st.ID)
			}
		})
	}
}

func TestPlanner_Fallbacks(t *testing.T) {
	task := NewTask("Summarise the quarterly numbers")
	ctx := context.Background()

	t.Run("raw text becomes the single step", func(t *testing.T) {
		p := &Planner{Call: func(context.Context, []ChatMessage, []ToolSchema) (LLMResponse, error) {
			return LLMResponse{Assistant: ChatMessage{Content: "First open the spreadsheet and total the columns."}}, nil
		}}
		plan := p.CreatePlan(ctx, task, AnalyzeTask(task.Prompt))
		assert.Equal(t, []string{"First open the spreadsheet and total the columns."}, stepDescriptionsOf(plan))
	})

	t.Run("model error falls back to the task prompt", func(t *testing.T) {
		p := &Planner{Call: func(context.Context, []ChatMessage, []ToolSchema) (LLMResponse, error) {
			return LLMResponse{}, errors.New("quota exceeded")
		}}
		plan := p.CreatePlan(ctx, task, AnalyzeTask(task.Prompt))
		assert.Equal(t, []string{task.Prompt}, stepDescriptionsOf(plan))
	})

	t.Run("empty reply falls back to the task prompt", func(t *testing.T) {
		p := &Planner{Call: func(context.Context, []ChatMessage, []ToolSchema) (LLMResponse, error) {
			return LLMResponse{}, nil
		}}
		plan := p.CreatePlan(ctx, task, AnalyzeTask(task.Prompt))
		assert.Equal(t, []string{task.Prompt}, stepDescriptionsOf(plan))
	})

	t.Run("long raw text is truncated", func(t *testing.T) {
		long := make([]byte, 2000)
		for i := range long {
			long[i] = 'x'
		}
		p := &Planner{Call: func(context.Context, []ChatMessage, []ToolSchema) (LLMResponse, error) {
			return LLMResponse{Assistant: ChatMessage{Content: string(long)}}, nil
		}}
		plan := p.CreatePlan(ctx, task, AnalyzeTask(task.Prompt))
		assert.Len(t, plan.At(0).Description, fallbackStepMaxChars)
	})
}

func TestPlanner_PromptListsTools(t *testing.T) {
	var system string
	p := &Planner{
		Tools: ToolRegistry{"read_file": {Name: "read_file", Description: "Read a file"}},
		Call: func(_ context.Context, msgs []ChatMessage, _ []ToolSchema) (LLMResponse, error) {
			system = msgs[0].Content
			return LLMResponse{Assistant: ChatMessage{Content: `{"steps":["a"]}`}}, nil
		},
	}
	p.CreatePlan(context.Background(), NewTask("x"), TaskAnalysis{Kind: TaskKindGeneral, Complexity: "simple"})
	assert.Contains(t, system, "- read_file: Read a file")
}

func TestPlanner_PromptIncludesRules(t *testing.T) {
	var system string
	p := &Planner{
		Rules: "  Never touch vendor/.\n",
		Call: func(_ context.Context, msgs []ChatMessage, _ []ToolSchema) (LLMResponse, error) {
			system = msgs[0].Content
			return LLMResponse{Assistant: ChatMessage{Content: `{"steps":["a"]}`}}, nil
		},
	}
	p.CreatePlan(context.Background(), NewTask("x"), TaskAnalysis{Kind: TaskKindGeneral, Complexity: "simple"})
	assert.Contains(t, system, "- none")
	assert.True(t, strings.HasSuffix(system, "Project rules:\nNever touch vendor/."))
}
