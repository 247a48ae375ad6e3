package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SuccessCriteria define when a goal-mode task is done. Both parts must hold
// when set.
type SuccessCriteria struct {
	Command string   // shell command that must exit 0
	Files   []string // paths that must exist
}

// Empty reports whether no criteria are set.
func (c *SuccessCriteria) Empty() bool {
	return c == nil || (c.Command == "" && len(c.Files) == 0)
}

// CommandRunner runs a shell command for criteria verification.
type CommandRunner interface {
	RunCommand(ctx context.Context, command string) (exitCode int, output string, err error)
}

// FileChecker checks file existence for criteria verification.
type FileChecker interface {
	Exists(path string) bool
}

// OSFileChecker resolves relative paths against Root.
type OSFileChecker struct {
	Root string
}

func (c OSFileChecker) Exists(path string) bool {
	if !filepath.IsAbs(path) && c.Root != "" {
		path = filepath.Join(c.Root, path)
	}
	_, err := os.Stat(path)
	return err == nil
}

// verifyCriteria returns the unmet criteria, emitting verification events.
func (e *Executor) verifyCriteria(ctx context.Context, c *SuccessCriteria) []string {
	e.emit(ctx, EventVerificationStarted, map[string]any{"command": c.Command, "files": c.Files, "attempt": e.task.CurrentAttempt})

	var unmet []string
	if c.Command != "" {
		switch {
		case e.commands == nil:
			unmet = append(unmet, fmt.Sprintf("command %q: no command runner configured", c.Command))
		default:
			code, out, err := e.commands.RunCommand(ctx, c.Command)
			switch {
			case err != nil:
				unmet = append(unmet, fmt.Sprintf("command %q: %v", c.Command, err))
			case code != 0:
				unmet = append(unmet, fmt.Sprintf("command %q exited with code %d: %s", c.Command, code, preview(out, 300)))
			}
		}
	}
	for _, f := range c.Files {
		if !e.files.Exists(f) {
			unmet = append(unmet, fmt.Sprintf("file %s does not exist", f))
		}
	}

	payload := map[string]any{"attempt": e.task.CurrentAttempt, "at": time.Now().Format(time.RFC3339)}
	if len(unmet) == 0 {
		e.emit(ctx, EventVerificationPassed, payload)
	} else {
		payload["unmet"] = unmet
		e.emit(ctx, EventVerificationFailed, payload)
	}
	return unmet
}
