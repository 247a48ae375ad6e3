// Package store persists the engine's event stream in SQLite so task
// histories can be inspected after the process exits.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ChamsBouzaiene/taskpilot/internal/engine"
)

// EventRecord is one persisted event.
type EventRecord struct {
	Seq     int64
	TaskID  string
	Type    engine.EventType
	Payload map[string]any
	At      time.Time
}

// TaskRecord is the latest known status of a task.
type TaskRecord struct {
	TaskID    string
	Status    string
	Attempt   int
	UpdatedAt time.Time
}

// EventStore is an engine.EventSink backed by SQLite.
type EventStore struct {
	db *sql.DB
}

var _ engine.EventSink = (*EventStore)(nil)

// Open opens or creates the database at path and initialises the schema.
func Open(ctx context.Context, path string) (*EventStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite doesn't support multiple writers well.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &EventStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *EventStore) Close() error {
	return s.db.Close()
}

func (s *EventStore) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS events (
		seq     INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		type    TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		at_unix INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_task ON events(task_id, seq);

	CREATE TABLE IF NOT EXISTS tasks (
		task_id    TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		attempt    INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// LogEvent implements engine.EventSink. Write failures are logged, never
// returned, so storage problems cannot stop a task. The write survives
// cancellation of ctx so the final status of a cancelled task is kept.
func (s *EventStore) LogEvent(ctx context.Context, ev engine.Event) {
	if err := s.Append(context.WithoutCancel(ctx), ev); err != nil {
		log.Printf("⚠️  event store: %v", err)
	}
}

// Append persists ev and, for task_status events, the task's status row.
func (s *EventStore) Append(ctx context.Context, ev engine.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		payload, _ = json.Marshal(map[string]any{"unencodable": fmt.Sprint(ev.Payload)})
	}
	if ev.Payload == nil {
		payload = []byte("{}")
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (task_id, type, payload, at_unix) VALUES (?, ?, ?, ?)`,
		ev.TaskID, string(ev.Type), string(payload), at.UnixNano(),
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if ev.Type == engine.EventTaskStatus {
		status, _ := ev.Payload["status"].(string)
		attempt, _ := ev.Payload["attempt"].(int)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (task_id, status, attempt, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(task_id) DO UPDATE SET status = excluded.status, attempt = excluded.attempt, updated_at = excluded.updated_at`,
			ev.TaskID, status, attempt, at.UnixNano(),
		); err != nil {
			return fmt.Errorf("upsert task: %w", err)
		}
	}
	return tx.Commit()
}

// Events returns the events of taskID in emission order. An empty types
// list returns every type.
func (s *EventStore) Events(ctx context.Context, taskID string, types ...engine.EventType) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, task_id, type, payload, at_unix FROM events WHERE task_id = ? ORDER BY seq`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	want := map[engine.EventType]bool{}
	for _, t := range types {
		want[t] = true
	}

	var out []EventRecord
	for rows.Next() {
		var (
			rec     EventRecord
			typ     string
			payload string
			atNanos int64
		)
		if err := rows.Scan(&rec.Seq, &rec.TaskID, &typ, &payload, &atNanos); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Type = engine.EventType(typ)
		if len(want) > 0 && !want[rec.Type] {
			continue
		}
		if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of event %d: %w", rec.Seq, err)
		}
		rec.At = time.Unix(0, atNanos)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Task returns the latest status row for taskID, or sql.ErrNoRows.
func (s *EventStore) Task(ctx context.Context, taskID string) (TaskRecord, error) {
	var rec TaskRecord
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT task_id, status, attempt, updated_at FROM tasks WHERE task_id = ?`, taskID,
	).Scan(&rec.TaskID, &rec.Status, &rec.Attempt, &updated)
	if err != nil {
		return TaskRecord{}, err
	}
	rec.UpdatedAt = time.Unix(0, updated)
	return rec, nil
}

// Tasks lists known tasks, most recently updated first.
func (s *EventStore) Tasks(ctx context.Context, limit int) ([]TaskRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, status, attempt, updated_at FROM tasks ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		var updated int64
		if err := rows.Scan(&rec.TaskID, &rec.Status, &rec.Attempt, &updated); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		rec.UpdatedAt = time.Unix(0, updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}
