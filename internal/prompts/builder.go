package prompts

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{[a-z_]+\}\}`)

// PromptBuilder helps compose prompts from fragments and variables.
type PromptBuilder struct {
	basePrompt *Prompt
	fragments  []string
	variables  map[string]string
}

// NewPromptBuilder creates a new prompt builder based on a registered prompt.
func NewPromptBuilder(registry *PromptRegistry, id string, version PromptVersion) (*PromptBuilder, error) {
	basePrompt, err := registry.Get(id, version)
	if err != nil {
		return nil, fmt.Errorf("failed to get base prompt: %w", err)
	}
	return newPromptBuilder(basePrompt), nil
}

func newPromptBuilder(p *Prompt) *PromptBuilder {
	return &PromptBuilder{
		basePrompt: p,
		fragments:  []string{p.Content},
		variables:  make(map[string]string),
	}
}

// AddFragment appends a fragment to the prompt. Empty fragments are skipped.
func (b *PromptBuilder) AddFragment(text string) *PromptBuilder {
	if strings.TrimSpace(text) != "" {
		b.fragments = append(b.fragments, text)
	}
	return b
}

// SetVariable sets a variable for template substitution.
func (b *PromptBuilder) SetVariable(key, value string) *PromptBuilder {
	b.variables[key] = value
	return b
}

// Build constructs the final prompt string. A placeholder in the base prompt
// left without a value is an error; fragments and values are not checked.
func (b *PromptBuilder) Build() (string, error) {
	var missing []string
	for _, ph := range placeholderPattern.FindAllString(b.basePrompt.Content, -1) {
		if _, ok := b.variables[strings.Trim(ph, "{}")]; !ok {
			missing = append(missing, ph)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("prompt %s: unresolved placeholders %s", b.basePrompt.ID, strings.Join(missing, ", "))
	}

	result := strings.Join(b.fragments, "\n\n")
	for key, value := range b.variables {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result, nil
}

// Render builds the latest version of a built-in prompt.
func Render(id string, vars map[string]string, fragments ...string) (string, error) {
	return DefaultRegistry().Render(id, vars, fragments...)
}

// MustRender is Render for built-in prompts; it panics if the prompt is
// missing or a variable was not supplied.
func MustRender(id string, vars map[string]string, fragments ...string) string {
	s, err := Render(id, vars, fragments...)
	if err != nil {
		panic(err)
	}
	return s
}
