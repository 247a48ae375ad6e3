package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ChamsBouzaiene/taskpilot/internal/sandbox"
)

func TestNewToolRegistry(t *testing.T) {
	reg := NewToolRegistry(t.TempDir(), sandbox.NewHostRunner(sandbox.Config{}), DefaultToolSet())
	assert.Equal(t, []string{"edit_file", "list_files", "read_file", "run_command", "write_file"}, reg.Names())
	assert.Len(t, reg.FilterByCategory("filesystem"), 4)

	for _, s := range reg.Schemas() {
		assert.NotEmpty(t, s.JSONSchema, s.Name)
	}

	noExec := NewToolRegistry(t.TempDir(), nil, DefaultToolSet())
	assert.NotContains(t, noExec, "run_command")

	fsOnly := NewToolRegistry(t.TempDir(), sandbox.NewHostRunner(sandbox.Config{}), ToolSet{Filesystem: true})
	assert.Len(t, fsOnly, 4)
}
