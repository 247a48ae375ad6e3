package filesystem

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingFS wraps OSFileSystem and fails writes.
type failingFS struct {
	OSFileSystem
	writeErr error
}

func (f failingFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return f.writeErr
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func TestReadFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.txt": "one\ntwo\nthree"})
	tool := NewReadFileTool(root, OSFileSystem{})

	out, err := tool.Fn(context.Background(), map[string]any{"path": "a.txt"})
	require.NoError(t, err)
	res := decode(t, out)
	assert.Equal(t, true, res["success"])
	assert.Equal(t, "one\ntwo\nthree", res["content"])
	assert.Equal(t, false, res["truncated"])

	out, err = tool.Fn(context.Background(), map[string]any{"path": "a.txt", "start_line": float64(2), "max_lines": float64(1)})
	require.NoError(t, err)
	res = decode(t, out)
	assert.Equal(t, "two", res["content"])
	assert.Equal(t, true, res["truncated"])

	out, err = tool.Fn(context.Background(), map[string]any{"path": "missing.txt"})
	require.NoError(t, err)
	res = decode(t, out)
	assert.Equal(t, false, res["success"])
	assert.Contains(t, res["error"], "file not found")

	out, err = tool.Fn(context.Background(), map[string]any{"path": "../etc/passwd"})
	require.NoError(t, err)
	assert.Contains(t, decode(t, out)["error"], "outside the repository root")

	assert.True(t, tool.HasTag("idempotent"))
}

func TestWriteFile(t *testing.T) {
	root := t.TempDir()
	tool := NewWriteFileTool(root, OSFileSystem{})

	out, err := tool.Fn(context.Background(), map[string]any{"path": "docs/new.md", "content": "# hi"})
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, out)["success"])
	data, err := os.ReadFile(filepath.Join(root, "docs", "new.md"))
	require.NoError(t, err)
	assert.Equal(t, "# hi", string(data))

	broken := NewWriteFileTool(root, failingFS{writeErr: fs.ErrPermission})
	out, err = broken.Fn(context.Background(), map[string]any{"path": "x.md", "content": "x"})
	require.NoError(t, err)
	res := decode(t, out)
	assert.Equal(t, false, res["success"])
	assert.Contains(t, res["error"], "permission denied")

	_, err = tool.Fn(context.Background(), map[string]any{"content": "x"})
	assert.Error(t, err)
}

func TestListFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		".gitignore":        "*.log\n",
		"main.go":           "package main",
		"debug.log":         "noise",
		"pkg/util.go":       "package pkg",
		"pkg/deep/x.go":     "package deep",
		"node_modules/m.js": "",
		".git/HEAD":         "ref",
	})
	tool := NewListFilesTool(root, OSFileSystem{})

	out, err := tool.Fn(context.Background(), map[string]any{})
	require.NoError(t, err)
	res := decode(t, out)
	files := toStrings(res["files"])
	assert.Contains(t, files, "main.go")
	assert.Contains(t, files, "pkg/")
	assert.NotContains(t, files, "debug.log")
	assert.NotContains(t, files, "node_modules/")
	assert.NotContains(t, files, ".git/")

	out, err = tool.Fn(context.Background(), map[string]any{"recursive": true, "max_depth": float64(1)})
	require.NoError(t, err)
	files = toStrings(decode(t, out)["files"])
	assert.Contains(t, files, filepath.Join("pkg", "util.go"))
	assert.NotContains(t, files, filepath.Join("pkg", "deep", "x.go"))

	out, err = tool.Fn(context.Background(), map[string]any{"recursive": true, "limit": float64(2)})
	require.NoError(t, err)
	res = decode(t, out)
	assert.Len(t, res["files"], 2)
	assert.Equal(t, true, res["truncated"])

	out, err = tool.Fn(context.Background(), map[string]any{"path": "nope"})
	require.NoError(t, err)
	assert.Equal(t, false, decode(t, out)["success"])
}

func toStrings(v any) []string {
	var out []string
	for _, x := range v.([]any) {
		out = append(out, strings.TrimSpace(x.(string)))
	}
	return out
}

func TestResolve(t *testing.T) {
	root := "/repo"
	_, err := resolve(root, "../repo2/x")
	assert.Error(t, err)
	p, err := resolve(root, "a/../b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "b.txt"), p)
}

func TestEditFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"main.go": "package main\n\nfunc a() {}\nfunc a() {}\n",
		"gen.go":  "// Code generated by x. DO NOT EDIT.\npackage gen\n",
	})
	tool := NewEditFileTool(root, OSFileSystem{})
	call := func(args map[string]any) map[string]any {
		out, err := tool.Fn(context.Background(), args)
		require.NoError(t, err)
		return decode(t, out)
	}

	res := call(map[string]any{"path": "main.go", "old_string": "func a() {}", "new_string": "func b() {}"})
	assert.Equal(t, false, res["success"])
	assert.Contains(t, res["error"], "appears 2 times")

	res = call(map[string]any{"path": "main.go", "old_string": "func a() {}", "new_string": "func b() {}", "replace_all": true})
	assert.Equal(t, true, res["success"])
	assert.EqualValues(t, 2, res["replacements"])

	res = call(map[string]any{"path": "main.go", "old_string": "func  zzz()", "new_string": "x"})
	assert.Contains(t, res["error"], "not found")

	res = call(map[string]any{"path": "gen.go", "old_string": "package gen", "new_string": "package g"})
	assert.Contains(t, res["error"], "generated")

	data, err := os.ReadFile(filepath.Join(root, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main\n\nfunc b() {}\nfunc b() {}\n", string(data))
}
