package filesystem

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChamsBouzaiene/taskpilot/internal/engine"
	"github.com/ChamsBouzaiene/taskpilot/internal/tools/toolresult"
)

const (
	defaultReadLines = 400
	maxReadChars     = 60000
)

// readFileImpl returns lines [start, start+limit) of path, 1-based.
func readFileImpl(fsys FileSystem, repoRoot, path string, start, limit int) (string, error) {
	full, err := resolve(repoRoot, path)
	if err != nil {
		return toolresult.Fail(err.Error(), map[string]any{"path": path})
	}
	data, err := fsys.ReadFile(full)
	if err != nil {
		return toolresult.Fail(describeFSError(path, err), map[string]any{"path": path})
	}

	content := string(data)
	lines := strings.Split(content, "\n")
	total := len(lines)
	if start < 1 {
		start = 1
	}
	if limit <= 0 {
		limit = defaultReadLines
	}
	if start > total {
		return toolresult.Fail(fmt.Sprintf("invalid value: start line %d is past the end of %s (%d lines)", start, path, total), map[string]any{"path": path})
	}
	end := start - 1 + limit
	if end > total {
		end = total
	}

	body := strings.Join(lines[start-1:end], "\n")
	truncated := end < total || start > 1
	if len(body) > maxReadChars {
		body = body[:maxReadChars]
		truncated = true
	}
	return toolresult.OK(map[string]any{
		"path":       path,
		"content":    body,
		"line_count": total,
		"start_line": start,
		"end_line":   end,
		"truncated":  truncated,
	})
}

// NewReadFileTool creates the read_file tool.
func NewReadFileTool(repoRoot string, fsys FileSystem) engine.Tool {
	return engine.Tool{
		Name:        "read_file",
		Description: "Reads a file from the repository. Long files are returned in windows of lines; use start_line to page.",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"Path to the file relative to the repository root"},
			"start_line":{"type":"integer","minimum":1,"description":"First line to return (default 1)"},
			"max_lines":{"type":"integer","minimum":1,"description":"Number of lines to return (default 400)"}
		},"required":["path"]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok || path == "" {
				return "", fmt.Errorf("missing required parameter: path")
			}
			return readFileImpl(fsys, repoRoot, path, intArg(args, "start_line", 1), intArg(args, "max_lines", defaultReadLines))
		},
		Metadata: engine.ToolMetadata{
			Category: "filesystem",
			Tags:     []string{engine.TagIdempotent},
		},
	}
}
