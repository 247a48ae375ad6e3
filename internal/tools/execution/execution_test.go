package execution

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/taskpilot/internal/sandbox"
)

// MockRunner is a mock implementation of sandbox.Runner.
type MockRunner struct {
	RunCmdFunc func(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (sandbox.Result, error)
	calls      int
}

func (m *MockRunner) RunCmd(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
	m.calls++
	if m.RunCmdFunc != nil {
		return m.RunCmdFunc(ctx, repoDir, name, args, timeout)
	}
	return sandbox.Result{}, nil
}

func TestRunCommand(t *testing.T) {
	tests := []struct {
		name        string
		command     string
		result      sandbox.Result
		err         error
		wantSuccess bool
		wantError   string
		wantCalls   int
	}{
		{name: "success", command: "go version", result: sandbox.Result{Stdout: "go version go1.24\n"}, wantSuccess: true, wantCalls: 1},
		{name: "env prefix allowed", command: "CGO_ENABLED=0 go build ./...", wantSuccess: true, wantCalls: 1},
		{name: "not allowlisted", command: "nc -l 80", wantError: "not in the allowlist", wantCalls: 0},
		{name: "failing tests", command: "go test ./...", result: sandbox.Result{Code: 1, Stdout: "FAIL"}, wantCalls: 1},
		{name: "missing binary", command: "make build", result: sandbox.Result{Code: 127}, wantError: "command not found", wantCalls: 1},
		{name: "timeout", command: "go test ./...", result: sandbox.Result{TimedOut: true, Code: -1}, err: context.DeadlineExceeded, wantError: "timed out", wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &MockRunner{RunCmdFunc: func(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
				assert.Equal(t, "sh", name)
				assert.Equal(t, []string{"-c", tt.command}, args)
				return tt.result, tt.err
			}}
			tool := NewRunCommandTool("/repo", runner)
			out, err := tool.Fn(context.Background(), map[string]any{"command": tt.command})
			require.NoError(t, err)

			var res map[string]any
			require.NoError(t, json.Unmarshal([]byte(out), &res))
			assert.Equal(t, tt.wantSuccess, res["success"])
			if tt.wantError != "" {
				assert.Contains(t, res["error"], tt.wantError)
			} else {
				assert.NotContains(t, res, "error")
			}
			assert.Equal(t, tt.wantCalls, runner.calls)
		})
	}
}

func TestRunCommandCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &MockRunner{RunCmdFunc: func(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
		cancel()
		return sandbox.Result{Code: -1}, ctx.Err()
	}}
	_, err := NewRunCommandTool("/repo", runner).Fn(ctx, map[string]any{"command": "go test ./..."})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTruncateOutputKeepsTail(t *testing.T) {
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = "line"
	}
	lines[99] = "FAIL summary"
	out, truncated := truncateOutput(strings.Join(lines, "\n"), 10)
	assert.True(t, truncated)
	assert.True(t, strings.HasSuffix(out, "FAIL summary"))
	assert.Equal(t, 10, strings.Count(out, "\n")+1)

	out, truncated = truncateOutput("short\n", 10)
	assert.False(t, truncated)
	assert.Equal(t, "short", out)
}

func TestParseTimeoutArg(t *testing.T) {
	assert.Equal(t, defaultRunCmdTimeout, parseTimeoutArg(nil))
	assert.Equal(t, minRunCmdTimeout, parseTimeoutArg(float64(1)))
	assert.Equal(t, maxRunCmdTimeout, parseTimeoutArg(float64(10000)))
	assert.Equal(t, 30*time.Second, parseTimeoutArg(float64(30)))
}
