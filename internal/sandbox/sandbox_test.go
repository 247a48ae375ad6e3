//go:build !windows

package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostRunner(t *testing.T) {
	r := NewHostRunner(Config{})
	dir := t.TempDir()

	t.Run("success", func(t *testing.T) {
		res, err := RunShell(context.Background(), r, dir, "echo hello", time.Second*10)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Code)
		assert.Equal(t, "hello\n", res.Stdout)
	})

	t.Run("non-zero exit is not an error", func(t *testing.T) {
		res, err := RunShell(context.Background(), r, dir, "echo oops >&2; exit 3", time.Second*10)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Code)
		assert.Equal(t, "oops", res.Combined())
	})

	t.Run("timeout", func(t *testing.T) {
		res, err := RunShell(context.Background(), r, dir, "sleep 5", 100*time.Millisecond)
		require.Error(t, err)
		assert.True(t, res.TimedOut)
	})

	t.Run("runs in repo dir", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0644))
		res, err := RunShell(context.Background(), r, dir, "ls", time.Second*10)
		require.NoError(t, err)
		assert.Contains(t, res.Stdout, "marker.txt")
	})
}

func TestCommandRunner(t *testing.T) {
	cr := CommandRunner{Runner: NewHostRunner(Config{}), Dir: t.TempDir(), Timeout: 10 * time.Second}

	code, out, err := cr.RunCommand(context.Background(), "echo ok")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "ok", out)

	code, _, err = cr.RunCommand(context.Background(), "exit 2")
	require.NoError(t, err)
	assert.Equal(t, 2, code)

	cr.Timeout = 50 * time.Millisecond
	code, out, err = cr.RunCommand(context.Background(), "sleep 5")
	require.NoError(t, err)
	assert.NotEqual(t, 0, code)
	assert.Contains(t, out, "timed out")
}

func TestDetectProjectType(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  ProjectType
	}{
		{"go manifest", []string{"go.mod", "a.py"}, ProjectTypeGo},
		{"python manifest", []string{"requirements.txt"}, ProjectTypePython},
		{"extension majority", []string{"a.ts", "b.js", "c.go"}, ProjectTypeNode},
		{"empty", nil, ProjectTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, f), nil, 0644))
			}
			assert.Equal(t, tt.want, DetectProjectType(dir))
		})
	}
	assert.Equal(t, "golang:alpine", GetDockerImage(ProjectTypeGo, Config{}))
	assert.Equal(t, "custom:1", GetDockerImage(ProjectTypeGo, Config{DockerImage: "custom:1"}))
}

func TestResourceParsing(t *testing.T) {
	n, err := parseMemory("512m")
	require.NoError(t, err)
	assert.Equal(t, int64(512*units.MiB), n)

	n, err = parseMemory("")
	require.NoError(t, err)
	assert.Equal(t, int64(units.GiB), n)

	_, err = parseMemory("lots")
	assert.Error(t, err)

	assert.Equal(t, int64(1.5e9), parseNanoCPUs("1.5"))
	assert.Equal(t, int64(2e9), parseNanoCPUs("bogus"))
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeHost, ParseMode(""))
	assert.Equal(t, ModeDocker, ParseMode("Docker"))
	assert.Equal(t, ModeAuto, ParseMode("auto"))
	assert.Equal(t, ModeHost, ParseMode("vm"))
}
