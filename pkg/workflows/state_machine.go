package workflows

// StateMachine enforces status transitions
type StateMachine struct {
	allowedTransitions map[string][]string
}

// New creates a state machine from an adjacency map of allowed transitions
func New(transitions map[string][]string) *StateMachine {
	return &StateMachine{allowedTransitions: transitions}
}

// NewProjectStateMachine covers project review. Reviewed projects may be
// reviewed again in either direction.
func NewProjectStateMachine() *StateMachine {
	return New(map[string][]string{
		"PENDING":  {"APPROVED", "REJECTED"},
		"REJECTED": {"APPROVED", "REJECTED"},
		"APPROVED": {"REJECTED"},
	})
}

// NewCreditStateMachine covers a minted credit moving through the listing book.
func NewCreditStateMachine() *StateMachine {
	return New(map[string][]string{
		"MINTED": {"LISTED"},
		"LISTED": {"SOLD", "MINTED"}, // withdrawal returns the credit to MINTED
		"SOLD":   {},
	})
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}

// IsTerminal reports whether no transition leaves status.
func (sm *StateMachine) IsTerminal(status string) bool {
	return len(sm.GetAllowedTransitions(status)) == 0
}
