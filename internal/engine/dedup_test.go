package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDedup(clock *fakeClock) *Deduplicator {
	d := NewDeduplicator()
	d.now = clock.Now
	return d
}

func TestDeduplicator_ExactDuplicateNonIdempotent(t *testing.T) {
	d := newTestDedup(newFakeClock())
	tool := staticTool("send_message", "sent")
	args := map[string]any{"to": "bob", "text": "hi"}

	for i := 0; i < 2; i++ {
		require.False(t, d.Check(tool, args).Blocked, "call %d", i+1)
		d.Record(tool, args, "sent")
	}
	v := d.Check(tool, map[string]any{"text": " hi ", "to": "bob"})
	assert.True(t, v.Blocked)
	assert.Equal(t, DedupDuplicate, v.Kind)
}

func TestDeduplicator_IdempotentReturnsCache(t *testing.T) {
	d := newTestDedup(newFakeClock())
	tool := staticTool("lookup", "", TagIdempotent)
	args := map[string]any{"key": "a"}
	d.Record(tool, args, "first")
	d.Record(tool, args, "second")

	v := d.Check(tool, args)
	assert.True(t, v.Blocked)
	assert.Equal(t, DedupDuplicateCached, v.Kind)
	assert.Equal(t, "second", v.Result)
}

func TestDeduplicator_WindowExpiry(t *testing.T) {
	clock := newFakeClock()
	d := newTestDedup(clock)
	tool := staticTool("send_message", "sent")
	args := map[string]any{"to": "bob"}
	d.Record(tool, args, "sent")
	d.Record(tool, args, "sent")
	clock.Advance(61 * time.Second)
	assert.False(t, d.Check(tool, args).Blocked)
}

func TestDeduplicator_RateLimit(t *testing.T) {
	d := newTestDedup(newFakeClock())
	tool := staticTool("web_search", "[]")
	for i := 0; i < 10; i++ {
		d.Record(tool, map[string]any{"query": string(rune('a' + i))}, "[]")
	}
	v := d.Check(tool, map[string]any{"query": "zzz"})
	assert.True(t, v.Blocked)
	assert.Equal(t, DedupRateLimited, v.Kind)

	d.ResetStep()
	assert.Equal(t, DedupRateLimited, d.Check(tool, map[string]any{"query": "zzz"}).Kind, "rate counters survive ResetStep")

	d.Reset()
	assert.False(t, d.Check(tool, map[string]any{"query": "zzz"}).Blocked)
}

func TestDeduplicator_Semantic(t *testing.T) {
	d := newTestDedup(newFakeClock())
	tool := staticTool("create_document", "ok")
	d.Record(tool, map[string]any{"path": "out/Report.docx"}, "ok")
	d.Record(tool, map[string]any{"path": "out/report_v2.docx"}, "ok")

	v := d.Check(tool, map[string]any{"path": "out/report_final (1).docx"})
	assert.True(t, v.Blocked)
	assert.Equal(t, DedupSemantic, v.Kind)

	d.ResetStep()
	assert.False(t, d.Check(tool, map[string]any{"path": "out/report_final.docx"}).Blocked)
}

func TestDeduplicator_ExemptTools(t *testing.T) {
	d := newTestDedup(newFakeClock())
	for _, tool := range []Tool{
		staticTool("browser_click", "ok"),
		staticTool("take_screenshot", "ok"),
		staticTool("poll_queue", "ok", TagStateful),
	} {
		args := map[string]any{"x": 1}
		for i := 0; i < 5; i++ {
			d.Record(tool, args, "ok")
		}
		assert.False(t, d.Check(tool, args).Blocked, tool.Name)
	}
}

func TestSemanticSignature(t *testing.T) {
	tests := []struct {
		tool string
		args map[string]any
		want string
	}{
		{"web_search", map[string]any{"query": `"Go generics" site:go.dev`}, "search:go generics"},
		{"web_search", map[string]any{"query": "Go  Generics"}, "search:go generics"},
		{"copy_file", map[string]any{"source": "data/Input-v3.csv"}, "copy:input"},
		{"create_file", map[string]any{"path": "Notes_final.md"}, "create:notes"},
		{"read_file", map[string]any{"path": "a.txt"}, ""},
	}
	for _, tt := range tests {
		if got := SemanticSignature(tt.tool, tt.args); got != tt.want {
			t.Errorf("SemanticSignature(%s, %v) = %q, want %q", tt.tool, tt.args, got, tt.want)
		}
	}
}
