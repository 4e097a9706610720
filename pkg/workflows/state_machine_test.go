package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreditStateMachine(t *testing.T) {
	sm := NewCreditStateMachine()

	tests := []struct {
		from, to string
		want     bool
	}{
		{"MINTED", "LISTED", true},
		{"LISTED", "SOLD", true},
		{"LISTED", "MINTED", true},
		{"MINTED", "SOLD", false},
		{"SOLD", "MINTED", false},
		{"SOLD", "LISTED", false},
		{"LISTED", "LISTED", false},
		{"UNKNOWN", "MINTED", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, sm.CanTransition(tt.from, tt.to))
		})
	}
	assert.True(t, sm.IsTerminal("SOLD"))
	assert.False(t, sm.IsTerminal("LISTED"))
}

func TestProjectStateMachine(t *testing.T) {
	sm := NewProjectStateMachine()

	assert.True(t, sm.CanTransition("PENDING", "APPROVED"))
	assert.True(t, sm.CanTransition("PENDING", "REJECTED"))
	assert.True(t, sm.CanTransition("REJECTED", "APPROVED"))
	assert.True(t, sm.CanTransition("APPROVED", "REJECTED"))
	assert.False(t, sm.CanTransition("APPROVED", "APPROVED"))
	assert.False(t, sm.CanTransition("APPROVED", "PENDING"))
	assert.ElementsMatch(t, []string{"APPROVED", "REJECTED"}, sm.GetAllowedTransitions("PENDING"))
	assert.Empty(t, sm.GetAllowedTransitions("nope"))
}
