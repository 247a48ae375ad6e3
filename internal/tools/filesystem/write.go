package filesystem

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ChamsBouzaiene/taskpilot/internal/engine"
	"github.com/ChamsBouzaiene/taskpilot/internal/tools/toolresult"
)

func writeFileImpl(fsys FileSystem, repoRoot, path, content string) (string, error) {
	full, err := resolve(repoRoot, path)
	if err != nil {
		return toolresult.Fail(err.Error(), map[string]any{"path": path})
	}
	if err := fsys.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return toolresult.Fail(fmt.Sprintf("failed to create directory: %s", describeFSError(filepath.Dir(path), err)), map[string]any{"path": path})
	}
	if err := fsys.WriteFile(full, []byte(content), 0644); err != nil {
		return toolresult.Fail(fmt.Sprintf("failed to write file: %s", describeFSError(path, err)), map[string]any{"path": path})
	}
	return toolresult.OK(map[string]any{"path": path, "bytes": len(content)})
}

// NewWriteFileTool creates the write_file tool.
func NewWriteFileTool(repoRoot string, fsys FileSystem) engine.Tool {
	return engine.Tool{
		Name:        "write_file",
		Description: "Writes content to a file. Creates the file and parent directories if needed, overwrites if it exists.",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"Path to the file relative to the repository root"},
			"content":{"type":"string","description":"Content to write to the file"}
		},"required":["path","content"]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok || path == "" {
				return "", fmt.Errorf("missing required parameter: path")
			}
			content, ok := args["content"].(string)
			if !ok {
				return "", fmt.Errorf("missing required parameter: content")
			}
			return writeFileImpl(fsys, repoRoot, path, content)
		},
		Metadata: engine.ToolMetadata{Category: "filesystem"},
	}
}
