// Package execution implements the run_command tool.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/taskpilot/internal/engine"
	"github.com/ChamsBouzaiene/taskpilot/internal/sandbox"
	"github.com/ChamsBouzaiene/taskpilot/internal/tools/toolresult"
)

const (
	defaultRunCmdTimeout = 60 * time.Second
	maxRunCmdTimeout     = 5 * time.Minute
	minRunCmdTimeout     = 5 * time.Second
	defaultRunCmdLines   = 40
	maxRunCmdLines       = 200
	maxRunCmdChars       = 4000
)

// allowedCommands are the executables a command line may start with.
var allowedCommands = map[string]bool{}

func init() {
	for _, c := range []string{
		"go", "gofmt", "goimports", "golangci-lint",
		"npm", "npx", "yarn", "pnpm", "bun", "node", "tsc", "eslint", "prettier",
		"python", "python3", "pip", "pip3", "pytest", "uv", "ruff", "black", "mypy",
		"cargo", "rustc", "rustfmt",
		"make", "cmake", "gradle", "mvn",
		"mkdir", "touch", "rm", "cp", "mv", "cat", "head", "tail",
		"ls", "find", "tree", "wc", "grep", "awk", "sed", "sort", "uniq", "diff",
		"git", "curl", "wget",
		"sh", "bash",
		"echo", "printf", "date", "which", "env", "test", "true", "false",
		"tar", "zip", "unzip", "gzip", "gunzip", "jq", "yq",
	} {
		allowedCommands[c] = true
	}
}

// leadingExecutable returns the first word of a command line, skipping
// VAR=value assignments.
func leadingExecutable(command string) string {
	for _, f := range strings.Fields(command) {
		if strings.Contains(f, "=") && !strings.HasPrefix(f, "=") {
			continue
		}
		return f
	}
	return ""
}

// runCommandImpl runs command through the shell. A non-zero exit is a soft
// failure without an "error" field, so failing builds or tests do not count
// against the tool itself; exit 126/127 and timeouts do.
func runCommandImpl(ctx context.Context, runner sandbox.Runner, repoRoot, command string, timeout time.Duration, maxLines int) (string, error) {
	exe := leadingExecutable(command)
	if !allowedCommands[exe] {
		return toolresult.Fail(fmt.Sprintf("invalid argument: command %q is not in the allowlist", exe), map[string]any{"command": command, "exitCode": -1})
	}

	res, err := sandbox.RunShell(ctx, runner, repoRoot, command, timeout)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	stdout, stdoutTrunc := truncateOutput(res.Stdout, maxLines)
	stderr, stderrTrunc := truncateOutput(res.Stderr, maxLines)
	fields := map[string]any{
		"command":   command,
		"exitCode":  res.Code,
		"stdout":    stdout,
		"stderr":    stderr,
		"truncated": stdoutTrunc || stderrTrunc,
	}

	switch {
	case res.TimedOut || errors.Is(err, context.DeadlineExceeded):
		fields["timedOut"] = true
		return toolresult.Fail(fmt.Sprintf("command timed out after %s", timeout), fields)
	case err != nil:
		return toolresult.Fail(err.Error(), fields)
	case res.Code == 127:
		return toolresult.Fail(fmt.Sprintf("command not found: %s", exe), fields)
	case res.Code == 126:
		return toolresult.Fail(fmt.Sprintf("permission denied: '%s' is not executable", exe), fields)
	case res.Code != 0:
		return toolresult.Fail("", fields)
	}
	return toolresult.OK(fields)
}

func parseTimeoutArg(value any) time.Duration {
	seconds, ok := value.(float64)
	if !ok || seconds <= 0 {
		return defaultRunCmdTimeout
	}
	timeout := time.Duration(seconds * float64(time.Second))
	if timeout < minRunCmdTimeout {
		timeout = minRunCmdTimeout
	}
	if timeout > maxRunCmdTimeout {
		timeout = maxRunCmdTimeout
	}
	return timeout
}

// truncateOutput keeps the last maxLines lines, where errors and test
// summaries usually are, capped at maxRunCmdChars.
func truncateOutput(output string, maxLines int) (string, bool) {
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return "", false
	}
	truncated := false
	lines := strings.Split(output, "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
		truncated = true
	}
	joined := strings.Join(lines, "\n")
	if len(joined) > maxRunCmdChars {
		joined = joined[len(joined)-maxRunCmdChars:]
		truncated = true
	}
	return joined, truncated
}

// NewRunCommandTool creates the run_command tool.
func NewRunCommandTool(repoRoot string, runner sandbox.Runner) engine.Tool {
	return engine.Tool{
		Name:        "run_command",
		Description: "Runs a shell command in the repository root. The command must start with an allowlisted executable (build tools, linters, file utilities, git, curl, sh). Returns exit code and the tail of stdout/stderr.",
		SchemaJSON: `{"type":"object","properties":{
			"command":{"type":"string","description":"Shell command line, e.g. \"go test ./...\""},
			"timeout_seconds":{"type":"integer","minimum":5,"maximum":300,"description":"Maximum seconds to allow the command to run (default 60)"},
			"max_output_lines":{"type":"integer","minimum":5,"maximum":200,"description":"Maximum stdout/stderr lines to return (default 40)"}
		},"required":["command"]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			command, ok := args["command"].(string)
			if !ok || strings.TrimSpace(command) == "" {
				return "", fmt.Errorf("missing required parameter: command")
			}
			maxLines := defaultRunCmdLines
			if n, ok := args["max_output_lines"].(float64); ok && n > 0 {
				maxLines = min(int(n), maxRunCmdLines)
			}
			return runCommandImpl(ctx, runner, repoRoot, command, parseTimeoutArg(args["timeout_seconds"]), maxLines)
		},
		Metadata: engine.ToolMetadata{Category: "execution"},
	}
}
