package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// ToolFunc executes a tool. The returned string is the tool result, normally
// a JSON object; an object with "success": false is treated as a soft failure.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool tags understood by the dispatch mediator.
const (
	TagIdempotent = "idempotent" // safe to answer repeats from cache
	TagStateful   = "stateful"   // depends on external/visual state; never deduplicated
)

// ToolMetadata provides categorization for tools.
type ToolMetadata struct {
	Category string   // e.g., "filesystem", "execution", "browser"
	Tags     []string // e.g., ["idempotent"]
}

type Tool struct {
	Name        string
	Description string
	SchemaJSON  string
	Fn          ToolFunc
	Metadata    ToolMetadata
}

// HasTag reports whether the tool carries tag.
func (t Tool) HasTag(tag string) bool {
	for _, tg := range t.Metadata.Tags {
		if tg == tag {
			return true
		}
	}
	return false
}

// ValidateArgs validates the provided arguments against the tool's JSON schema.
func (t Tool) ValidateArgs(args map[string]any) error {
	if t.SchemaJSON == "" {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	schemaLoader := gojsonschema.NewStringLoader(t.SchemaJSON)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errorMsgs []string
		for _, err := range result.Errors() {
			errorMsgs = append(errorMsgs, err.String())
		}
		return &ToolValidationError{
			ToolName: t.Name,
			Errors:   errorMsgs,
		}
	}
	return nil
}

// schemaProperties returns the property names declared by the tool schema.
func (t Tool) schemaProperties() map[string]bool {
	props := map[string]bool{}
	if t.SchemaJSON == "" {
		return props
	}
	var s struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal([]byte(t.SchemaJSON), &s); err != nil {
		return props
	}
	for name := range s.Properties {
		props[name] = true
	}
	return props
}

type ToolRegistry map[string]Tool

// Schemas returns the provider-facing schemas sorted by tool name.
func (r ToolRegistry) Schemas() []ToolSchema {
	s := make([]ToolSchema, 0, len(r))
	for _, t := range r {
		s = append(s, ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			JSONSchema:  t.SchemaJSON,
		})
	}
	sort.Slice(s, func(i, j int) bool { return s[i].Name < s[j].Name })
	return s
}

// Names returns the sorted tool names.
func (r ToolRegistry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FilterByCategory returns a new registry containing only tools of the given category.
func (r ToolRegistry) FilterByCategory(category string) ToolRegistry {
	filtered := make(ToolRegistry)
	for name, tool := range r {
		if tool.Metadata.Category == category {
			filtered[name] = tool
		}
	}
	return filtered
}
