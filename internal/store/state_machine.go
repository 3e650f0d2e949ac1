package store

import "fmt"

const (
	JobPending   = "PENDING"
	JobRunning   = "RUNNING"
	JobCompleted = "COMPLETED"
	JobFailed    = "FAILED"
	JobCancelled = "CANCELLED"
)

var terminalStates = map[string]bool{
	JobCompleted: true,
	JobFailed:    true,
	JobCancelled: true,
}

// RUNNING -> PENDING is the liveness reset; it is also taken by a retryable
// failure.
var allowedTransitions = map[string]map[string]bool{
	JobPending: {
		JobRunning:   true,
		JobCancelled: true,
	},
	JobRunning: {
		JobPending:   true,
		JobCompleted: true,
		JobFailed:    true,
		JobCancelled: true,
	},
}

func ValidateJobTransition(from, to string) error {
	if terminalStates[from] {
		return fmt.Errorf("cannot transition from terminal state %s: %w", from, ErrInvalidStateTransition)
	}

	if allowed, ok := allowedTransitions[from][to]; !ok || !allowed {
		return fmt.Errorf("from %s to %s: %w", from, to, ErrInvalidStateTransition)
	}

	return nil
}
