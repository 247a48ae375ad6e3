package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_Lifecycle(t *testing.T) {
	p := NewPlan("goal", []string{"1. gather input", "Step 2: write report"})
	require.Equal(t, 2, p.Len())
	assert.Equal(t, "gather input", p.At(0).Description)
	assert.Equal(t, "write report", p.At(1).Description)
	assert.NotEqual(t, p.At(0).ID, p.At(1).ID)

	st, err := p.Start(0)
	require.NoError(t, err)
	assert.Equal(t, StepInProgress, st.Status)

	_, err = p.Start(1)
	assert.Error(t, err, "only one step may be in progress")

	cur, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, st.ID, cur.ID)

	require.NoError(t, p.Finish(st.ID, StepCompleted, ""))
	assert.Error(t, p.Finish(st.ID, StepFailed, "again"), "terminal steps cannot transition")
	assert.Error(t, p.Finish(p.At(1).ID, StepCompleted, ""), "pending steps cannot finish")
	_, ok = p.Current()
	assert.False(t, ok)
}

func TestPlan_InsertAfter(t *testing.T) {
	p := NewPlan("", []string{"a", "b", "c"})
	_, err := p.Start(1)
	require.NoError(t, err)
	b := p.At(1)

	added := p.InsertAfter(b.ID, []string{"x", "y"})
	require.Len(t, added, 2)
	assert.Equal(t, []string{"a", "b", "x", "y", "c"}, stepDescriptionsOf(p))

	cur, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, b.ID, cur.ID, "the running step keeps its identity")
	assert.Equal(t, 1, p.Position(b.ID))
	assert.Equal(t, StepPending, added[0].Status)

	p.InsertAfter("unknown", []string{"z"})
	assert.Equal(t, "z", p.At(p.Len()-1).Description)
}

func TestPlan_ResetStatuses(t *testing.T) {
	p := NewPlan("", []string{"a"})
	st, _ := p.Start(0)
	require.NoError(t, p.Finish(st.ID, StepFailed, "boom"))
	assert.Len(t, p.FailedSteps(), 1)

	p.ResetStatuses()
	assert.Equal(t, StepPending, st.Status)
	assert.Empty(t, st.Error)
	assert.Empty(t, p.FailedSteps())
}

func TestPlan_Suspend(t *testing.T) {
	p := NewPlan("", []string{"a", "b"})
	st, err := p.Start(0)
	require.NoError(t, err)

	require.NoError(t, p.Suspend(st.ID))
	assert.Equal(t, StepPending, st.Status)
	_, running := p.Current()
	assert.False(t, running)

	_, err = p.Start(0)
	require.NoError(t, err, "a suspended step can start again")
	assert.Error(t, p.Suspend(p.At(1).ID), "only the in_progress step can be suspended")
}

func TestIsVerificationStep(t *testing.T) {
	tests := []struct {
		desc string
		want bool
	}{
		{"Verify: output file exists", true},
		{"verification of the build", true},
		{"VERIFY the totals", true},
		{"Verifying things", false},
		{"Write the report and verify it", false},
	}
	for _, tt := range tests {
		if got := IsVerificationStep(tt.desc); got != tt.want {
			t.Errorf("IsVerificationStep(%q) = %v, want %v", tt.desc, got, tt.want)
		}
	}
}
