package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const pathContentSchema = `{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path"],"additionalProperties":false}`

func TestInferParameters_Aliases(t *testing.T) {
	tool := Tool{Name: "write_file", SchemaJSON: pathContentSchema}
	in := map[string]any{"file_path": "a.txt", "text": "hello"}

	out, inferred := InferParameters(tool, in, nil)
	assert.Equal(t, map[string]any{"path": "a.txt", "content": "hello"}, out)
	assert.Len(t, inferred, 2)
	assert.Equal(t, "a.txt", in["file_path"], "input must not be modified")
	assert.NotContains(t, in, "path")
	assert.NoError(t, tool.ValidateArgs(out))
}

func TestInferParameters_EditTargetFromRecentFile(t *testing.T) {
	files := NewFileTracker()
	files.RecordCreate("drafts/plan.md")
	files.RecordCreate("drafts/notes.md")

	tool := Tool{Name: "edit_file", SchemaJSON: pathContentSchema}
	out, inferred := InferParameters(tool, map[string]any{"content": "x"}, files)
	assert.Equal(t, "drafts/notes.md", out["path"])
	if assert.Len(t, inferred, 1) {
		assert.Equal(t, "recent_file", inferred[0].From)
	}
}

func TestInferParameters_NothingToDo(t *testing.T) {
	tool := Tool{Name: "write_file", SchemaJSON: pathContentSchema}
	in := map[string]any{"path": "a.txt"}
	out, inferred := InferParameters(tool, in, NewFileTracker())
	assert.Equal(t, in, out)
	assert.Empty(t, inferred)

	// Undeclared canonical parameters are never invented.
	run := Tool{Name: "run_command", SchemaJSON: `{"type":"object","properties":{"command":{"type":"string"}}}`}
	out, inferred = InferParameters(run, map[string]any{"cmd": "ls", "file": "x"}, nil)
	assert.Equal(t, "ls", out["command"])
	assert.Len(t, inferred, 1)
}
