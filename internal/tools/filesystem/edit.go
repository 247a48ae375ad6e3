package filesystem

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/taskpilot/internal/engine"
	"github.com/ChamsBouzaiene/taskpilot/internal/tools/toolresult"
)

const maxEditLines = 500

var generatedMarkers = []string{
	"Code generated",
	"DO NOT EDIT",
	"Auto-generated",
	"automatically generated",
	"This file is generated",
}

// isGeneratedFile reports a generated-file marker in the first 500 bytes.
func isGeneratedFile(content string) (bool, string) {
	preview := content
	if len(preview) > 500 {
		preview = preview[:500]
	}
	for _, marker := range generatedMarkers {
		if strings.Contains(preview, marker) {
			return true, marker
		}
	}
	return false, ""
}

func detectIndentation(content string) string {
	switch {
	case strings.Contains(content, "\t"):
		return "tabs"
	case strings.Contains(content, "    "):
		return "4 spaces"
	case strings.Contains(content, "  "):
		return "2 spaces"
	default:
		return "unknown"
	}
}

// editFileImpl replaces oldString with newString in path. Without
// replaceAll the match must be unique.
func editFileImpl(fsys FileSystem, repoRoot, path, oldString, newString string, replaceAll bool) (string, error) {
	fields := map[string]any{"path": path}
	full, err := resolve(repoRoot, path)
	if err != nil {
		return toolresult.Fail(err.Error(), fields)
	}
	data, err := fsys.ReadFile(full)
	if err != nil {
		return toolresult.Fail(describeFSError(path, err), fields)
	}
	content := string(data)

	if gen, marker := isGeneratedFile(content); gen {
		return toolresult.Fail(fmt.Sprintf("not supported: %s appears to be generated (found %q); edit the generator instead", path, marker), fields)
	}
	if n := strings.Count(oldString, "\n"); n > maxEditLines {
		return toolresult.Fail(fmt.Sprintf("invalid value: old_string is %d lines (max %d); split the change", n, maxEditLines), fields)
	}
	if oldString == newString {
		return toolresult.Fail("invalid value: old_string and new_string are identical", fields)
	}

	count := strings.Count(content, oldString)
	switch {
	case oldString == "" || count == 0:
		hint := ""
		if oldString != "" && strings.Contains(strings.Join(strings.Fields(content), " "), strings.Join(strings.Fields(oldString), " ")) {
			hint = "; the text exists with different whitespace"
		}
		return toolresult.Fail(fmt.Sprintf("invalid value: old_string not found in %s (file uses %s indentation%s); read the file again and copy the exact text", path, detectIndentation(content), hint), fields)
	case count > 1 && !replaceAll:
		return toolresult.Fail(fmt.Sprintf("invalid value: old_string appears %d times in %s; add surrounding context or set replace_all", count, path), fields)
	}

	replacements := 1
	if replaceAll {
		content = strings.ReplaceAll(content, oldString, newString)
		replacements = count
	} else {
		content = strings.Replace(content, oldString, newString, 1)
	}
	if err := fsys.WriteFile(full, []byte(content), 0644); err != nil {
		return toolresult.Fail(fmt.Sprintf("failed to write file: %s", describeFSError(path, err)), fields)
	}
	fields["replacements"] = replacements
	return toolresult.OK(fields)
}

// NewEditFileTool creates the edit_file tool. When path is omitted the
// engine fills in the file most recently created in the step.
func NewEditFileTool(repoRoot string, fsys FileSystem) engine.Tool {
	return engine.Tool{
		Name:        "edit_file",
		Description: "Replaces an exact string in a file. Read the file first and copy the text to replace verbatim, including indentation.",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"File path relative to the repository root"},
			"old_string":{"type":"string","description":"Exact text to replace"},
			"new_string":{"type":"string","description":"Replacement text"},
			"replace_all":{"type":"boolean","description":"Replace every occurrence (default false)"}
		},"required":["path","old_string","new_string"]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok || path == "" {
				return "", fmt.Errorf("missing required parameter: path")
			}
			oldString, _ := args["old_string"].(string)
			newString, ok := args["new_string"].(string)
			if !ok {
				return "", fmt.Errorf("missing required parameter: new_string")
			}
			replaceAll, _ := args["replace_all"].(bool)
			return editFileImpl(fsys, repoRoot, path, oldString, newString, replaceAll)
		},
		Metadata: engine.ToolMetadata{Category: "filesystem"},
	}
}
