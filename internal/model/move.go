package model

import "time"

// Move records one synchronous compute-engine invocation. It is inserted
// before the engine runs and updated exactly once afterwards.
type Move struct {
	ID          string     `json:"id"`
	BoardState  string     `json:"board_state"`
	Turn        int        `json:"turn"`
	Difficulty  string     `json:"difficulty"`
	Exploration string     `json:"exploration,omitempty"`
	Coordinate  string     `json:"coordinate,omitempty"`
	DebugInfo   string     `json:"debug_info,omitempty"`
	Error       string     `json:"error,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	DurationMS  *int       `json:"duration_ms,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Succeeded reports whether the engine returned a coordinate for this move.
func (m *Move) Succeeded() bool {
	return m.CompletedAt != nil && m.Error == "" && m.Coordinate != ""
}
