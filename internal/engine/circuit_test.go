package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(clock *fakeClock) *ToolFailureTracker {
	tr := NewToolFailureTracker()
	tr.now = clock.Now
	return tr
}

func TestToolFailureTracker_Thresholds(t *testing.T) {
	tests := []struct {
		name      string
		msg       string
		threshold int
	}{
		{"non-retryable disables on first failure", "API quota exceeded", 1},
		{"systemic disables after two", "connection refused", 2},
		{"input-dependent disables after four", "missing required parameter: path", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker(newFakeClock())
			for i := 1; i < tt.threshold; i++ {
				assert.False(t, tr.RecordFailure("tool", tt.msg), "failure %d", i)
				assert.False(t, tr.IsDisabled("tool"))
			}
			assert.True(t, tr.RecordFailure("tool", tt.msg))
			assert.True(t, tr.IsDisabled("tool"))
			assert.Contains(t, tr.DisabledReason("tool"), "alternative approach")
		})
	}
}

func TestToolFailureTracker_CooldownClearsCounters(t *testing.T) {
	clock := newFakeClock()
	tr := newTestTracker(clock)

	require.True(t, tr.RecordFailure("search", "billing hard limit"))
	clock.Advance(4 * time.Minute)
	assert.True(t, tr.IsDisabled("search"))

	clock.Advance(time.Minute)
	assert.False(t, tr.IsDisabled("search"))
	_, ok := tr.State("search")
	assert.False(t, ok, "counters must be cleared after cooldown")

	// A fresh systemic failure starts counting from zero again.
	assert.False(t, tr.RecordFailure("search", "connection refused"))
}

func TestToolFailureTracker_SuccessResetsCounters(t *testing.T) {
	tr := newTestTracker(newFakeClock())
	tr.RecordFailure("fetch", "connection refused")
	tr.RecordSuccess("fetch")
	assert.False(t, tr.RecordFailure("fetch", "connection refused"))
	assert.True(t, tr.RecordFailure("fetch", "connection refused"))
}

func TestToolFailureTracker_BucketsAreSeparate(t *testing.T) {
	tr := newTestTracker(newFakeClock())
	tr.RecordFailure("edit", "missing required parameter: path")
	tr.RecordFailure("edit", "missing required parameter: path")
	assert.False(t, tr.RecordFailure("edit", "connection refused"))
	st, ok := tr.State("edit")
	require.True(t, ok)
	assert.Equal(t, 2, st.InputDependentFailures)
	assert.Equal(t, 1, st.SystemicFailures)
}
