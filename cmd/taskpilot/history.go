package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/taskpilot/internal/store"
)

// runHistory prints recorded tasks, or the events of one task.
func runHistory(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	dbPath := fs.String("events-db", os.Getenv("TASKPILOT_EVENTS_DB"), "SQLite event database")
	limit := fs.Int("limit", 20, "Number of tasks to list")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "taskpilot history: -events-db is required")
		return exitUsage
	}

	es, err := store.Open(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskpilot history: %v\n", err)
		return exitFailed
	}
	defer es.Close()

	if fs.NArg() == 0 {
		tasks, err := es.Tasks(ctx, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "taskpilot history: %v\n", err)
			return exitFailed
		}
		for _, t := range tasks {
			fmt.Printf("%s  %-15s attempt=%d  %s\n", t.TaskID, t.Status, t.Attempt, t.UpdatedAt.Format(time.RFC3339))
		}
		return exitOK
	}

	events, err := es.Events(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskpilot history: %v\n", err)
		return exitFailed
	}
	if len(events) == 0 {
		fmt.Fprintf(os.Stderr, "taskpilot history: no events recorded for %s\n", fs.Arg(0))
		return exitFailed
	}
	for _, ev := range events {
		fmt.Printf("%s  %-22s %s\n", ev.At.Format("15:04:05.000"), ev.Type, formatFields(ev.Payload))
	}
	return exitOK
}

func formatFields(p map[string]any) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, p[k]))
	}
	return strings.Join(parts, " ")
}
