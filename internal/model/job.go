package model

import "time"

// Job status constants.
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// Progress bounds.
const (
	MinProgress = 0
	MaxProgress = 100
)

// validTransitions maps each status to the set of statuses it may transition to.
// RUNNING→RUNNING covers intermediate checkpoints. Terminal statuses have no entry.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning:   true,
		StatusSucceeded: true,
		StatusFailed:    true,
	},
	StatusRunning: {
		StatusRunning:   true,
		StatusSucceeded: true,
		StatusFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Predecessors returns the statuses from which to is reachable in one step,
// in a stable order.
func Predecessors(to string) []string {
	var from []string
	for _, s := range []string{StatusPending, StatusRunning} {
		if ValidTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// IsTerminal reports whether no further transitions are possible from status.
func IsTerminal(status string) bool {
	return status == StatusSucceeded || status == StatusFailed
}

// Job is one asynchronously progressing unit of work. Status and Progress
// only move forward; UpdatedAt is rewritten on every transition.
type Job struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
