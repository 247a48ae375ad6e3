// Package tools assembles the built-in tool registry.
package tools

import (
	"github.com/ChamsBouzaiene/taskpilot/internal/engine"
	"github.com/ChamsBouzaiene/taskpilot/internal/sandbox"
	"github.com/ChamsBouzaiene/taskpilot/internal/tools/execution"
	"github.com/ChamsBouzaiene/taskpilot/internal/tools/filesystem"
)

// ToolSet selects tool groups for NewToolRegistry.
type ToolSet struct {
	Filesystem bool
	Execution  bool
}

// DefaultToolSet enables every group.
func DefaultToolSet() ToolSet {
	return ToolSet{Filesystem: true, Execution: true}
}

// NewToolRegistry creates the registry of built-in tools rooted at repoRoot.
// run_command is only registered when a runner is supplied.
func NewToolRegistry(repoRoot string, runner sandbox.Runner, set ToolSet) engine.ToolRegistry {
	reg := make(engine.ToolRegistry)
	fsys := filesystem.OSFileSystem{}

	if set.Filesystem {
		for _, t := range []engine.Tool{
			filesystem.NewReadFileTool(repoRoot, fsys),
			filesystem.NewListFilesTool(repoRoot, fsys),
			filesystem.NewWriteFileTool(repoRoot, fsys),
			filesystem.NewEditFileTool(repoRoot, fsys),
		} {
			reg[t.Name] = t
		}
	}
	if set.Execution && runner != nil {
		t := execution.NewRunCommandTool(repoRoot, runner)
		reg[t.Name] = t
	}
	return reg
}
