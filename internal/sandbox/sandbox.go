// Package sandbox runs shell commands for the run_command tool and for
// shell success criteria, either on the host or inside a Docker container.
package sandbox

import (
	"context"
	"strings"
	"time"
)

// Result captures output of a command.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	out := strings.TrimRight(r.Stdout, "\n")
	if errText := strings.TrimRight(r.Stderr, "\n"); errText != "" {
		if out != "" {
			out += "\n"
		}
		out += errText
	}
	return out
}

// Runner runs a command in a sandboxed environment.
//
// A non-zero exit status is reported through Result.Code with a nil error;
// the error is reserved for commands that could not be run or timed out.
type Runner interface {
	// RunCmd runs name with args in repoDir. timeout <= 0 uses the runner's default.
	RunCmd(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error)
}

// RunShell runs command through /bin/sh -c.
func RunShell(ctx context.Context, r Runner, repoDir, command string, timeout time.Duration) (Result, error) {
	return r.RunCmd(ctx, repoDir, "sh", []string{"-c", command}, timeout)
}

// CommandRunner adapts a Runner to the executor's success-criteria contract.
type CommandRunner struct {
	Runner  Runner
	Dir     string
	Timeout time.Duration
}

// RunCommand runs a shell command and returns its exit code and combined
// output. A timed-out command reports the timeout as its output.
func (c CommandRunner) RunCommand(ctx context.Context, command string) (int, string, error) {
	res, err := RunShell(ctx, c.Runner, c.Dir, command, c.Timeout)
	if res.TimedOut {
		return res.Code, "command timed out: " + res.Combined(), nil
	}
	if err != nil {
		return 0, "", err
	}
	return res.Code, res.Combined(), nil
}
