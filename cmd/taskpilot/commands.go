package main

import (
	"context"
	"io"
	"log"

	"github.com/ChamsBouzaiene/taskpilot/internal/engine"
	"github.com/ChamsBouzaiene/taskpilot/internal/engine/protocol"
)

// controllable is the part of the executor the command loop drives.
type controllable interface {
	Task() *engine.Task
	Pause()
	Resume()
}

// serveCommands applies pause/resume/cancel commands read from r to exec
// until r closes, a cancel arrives, or ctx ends.
func serveCommands(ctx context.Context, r io.Reader, exec controllable, cancel context.CancelFunc) {
	taskID := exec.Task().ID
	err := protocol.ReadCommands(ctx, r, func(cmd protocol.Command) error {
		switch c := cmd.(type) {
		case protocol.PauseCommand:
			if c.TaskID == taskID {
				log.Printf("⏸️  Pause requested")
				exec.Pause()
			}
		case protocol.ResumeCommand:
			if c.TaskID == taskID {
				log.Printf("▶️  Resume requested")
				exec.Resume()
			}
		case protocol.CancelCommand:
			if c.TaskID == taskID {
				log.Printf("🛑 Cancel requested: %s", c.Reason)
				cancel()
				return protocol.ErrStopReading
			}
		}
		return nil
	}, func(err error) {
		log.Printf("⚠️  Ignoring command: %v", err)
	})
	if err != nil && ctx.Err() == nil {
		log.Printf("⚠️  Command stream closed: %v", err)
	}
}
