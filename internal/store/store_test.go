package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/taskpilot/internal/engine"
)

func openTestStore(t *testing.T) *EventStore {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndQueryEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	s.LogEvent(ctx, engine.Event{TaskID: "t1", Type: engine.EventPlanCreated, Payload: map[string]any{"steps": []string{"a", "b"}}, At: base})
	s.LogEvent(ctx, engine.Event{TaskID: "t2", Type: engine.EventStepStarted, At: base})
	s.LogEvent(ctx, engine.Event{TaskID: "t1", Type: engine.EventStepStarted, Payload: map[string]any{"index": 0}, At: base.Add(time.Second)})

	all, err := s.Events(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, engine.EventPlanCreated, all[0].Type)
	assert.Equal(t, []any{"a", "b"}, all[0].Payload["steps"])
	assert.True(t, all[1].At.Equal(base.Add(time.Second)))
	assert.Less(t, all[0].Seq, all[1].Seq)

	steps, err := s.Events(ctx, "t1", engine.EventStepStarted)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.EqualValues(t, 0, steps[0].Payload["index"])

	other, err := s.Events(ctx, "t2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Empty(t, other[0].Payload)
}

func TestTaskStatusUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Task(ctx, "t1")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	s.LogEvent(ctx, engine.Event{TaskID: "t1", Type: engine.EventTaskStatus, Payload: map[string]any{"status": "running", "attempt": 1}})
	s.LogEvent(ctx, engine.Event{TaskID: "t1", Type: engine.EventTaskStatus, Payload: map[string]any{"status": "completed", "attempt": 2}})

	rec, err := s.Task(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "completed", rec.Status)
	assert.Equal(t, 2, rec.Attempt)

	tasks, err := s.Tasks(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestLogEventSurvivesCancelledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.LogEvent(ctx, engine.Event{TaskID: "t1", Type: engine.EventTaskStatus, Payload: map[string]any{"status": "cancelled"}})

	rec, err := s.Task(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", rec.Status)
}
