// Package protocol defines the newline-delimited JSON wire used in the CLI's
// machine mode: engine events go out as envelopes, control commands come in.
package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChamsBouzaiene/taskpilot/internal/engine"
)

// CommandType enumerates all supported client -> engine commands.
type CommandType string

const (
	CommandPause  CommandType = "pause"
	CommandResume CommandType = "resume"
	CommandCancel CommandType = "cancel"
)

// Command is a marker interface implemented by all protocol commands.
type Command interface {
	GetType() CommandType
}

// PauseCommand stops the task at the next loop boundary.
type PauseCommand struct {
	Type   CommandType `json:"type"`
	TaskID string      `json:"task_id"`
}

// GetType implements Command.
func (c PauseCommand) GetType() CommandType { return CommandPause }

// ResumeCommand releases a paused task.
type ResumeCommand struct {
	Type   CommandType `json:"type"`
	TaskID string      `json:"task_id"`
}

// GetType implements Command.
func (c ResumeCommand) GetType() CommandType { return CommandResume }

// CancelCommand aborts the task.
type CancelCommand struct {
	Type   CommandType `json:"type"`
	TaskID string      `json:"task_id"`
	Reason string      `json:"reason,omitempty"`
}

// GetType implements Command.
func (c CancelCommand) GetType() CommandType { return CommandCancel }

type rawCommand struct {
	Type   CommandType `json:"type"`
	TaskID string      `json:"task_id"`
}

// DecodeCommand converts raw JSON into a strongly typed command.
func DecodeCommand(data []byte) (Command, error) {
	var base rawCommand
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	if base.TaskID == "" {
		return nil, fmt.Errorf("%s requires task_id", base.Type)
	}

	switch base.Type {
	case CommandPause:
		return PauseCommand{Type: base.Type, TaskID: base.TaskID}, nil
	case CommandResume:
		return ResumeCommand{Type: base.Type, TaskID: base.TaskID}, nil
	case CommandCancel:
		var cmd CancelCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode cancel: %w", err)
		}
		return cmd, nil
	default:
		return nil, fmt.Errorf("unknown command type: %s", base.Type)
	}
}

// Envelope is one event on the wire.
type Envelope struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	TaskID    string         `json:"task_id"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewEnvelope wraps an engine event.
func NewEnvelope(ev engine.Event) Envelope {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return Envelope{
		ID:        uuid.NewString(),
		Type:      string(ev.Type),
		TaskID:    ev.TaskID,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Payload:   ev.Payload,
	}
}

// Writer is an engine.EventSink emitting one JSON envelope per line.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// LogEvent implements engine.EventSink. Payload values that cannot be
// encoded are replaced by their string form.
func (w *Writer) LogEvent(_ context.Context, ev engine.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	env := NewEnvelope(ev)
	if err := w.enc.Encode(env); err != nil {
		safe := make(map[string]any, len(env.Payload))
		for k, v := range env.Payload {
			safe[k] = fmt.Sprint(v)
		}
		env.Payload = safe
		_ = w.enc.Encode(env)
	}
}

// ErrStopReading is returned by a handler to end ReadCommands.
var ErrStopReading = errors.New("stop reading commands")

// ReadCommands decodes one command per line from r and hands each to fn
// until r is exhausted, fn returns an error, or ctx ends. Malformed lines
// are reported through onError and skipped.
func ReadCommands(ctx context.Context, r io.Reader, fn func(Command) error, onError func(error)) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		cmd, err := DecodeCommand(line)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			continue
		}
		if err := fn(cmd); err != nil {
			if errors.Is(err, ErrStopReading) {
				return nil
			}
			return err
		}
	}
	return sc.Err()
}
