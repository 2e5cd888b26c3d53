package bridge

import (
	"context"
	"encoding/json"
)

// Protocol constants shared with engine builds.
const (
	// Separator splits the primary answer from the optional secondary payload.
	Separator = "|"

	DefaultExploration = "1.414"
	DefaultDifficulty  = "medium"
)

// Invoker executes one compute request. Implementations must be safe for
// concurrent use.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Result, error)
}

// Request is a single compute call.
type Request struct {
	// Board is the caller's JSON payload: a nested integer array, or a JSON
	// string holding the array's text form.
	Board      json.RawMessage
	Turn       int
	Difficulty string
	// Exploration is the tunable exploration constant; nil selects
	// DefaultExploration.
	Exploration *float64
	// Extra holds additional positional parameters appended verbatim.
	Extra []string
}

// Result is the decoded engine answer.
type Result struct {
	Primary   string
	Secondary string
	ExitCode  int
	// DurationMS is the wall-clock lifetime of the engine process.
	DurationMS int
}
