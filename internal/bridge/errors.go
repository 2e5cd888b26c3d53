package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineNotFound is returned when no candidate directory contains the
	// engine executable. No process is started.
	ErrEngineNotFound = errors.New("engine executable not found")

	// ErrEmptyOutput is returned when the engine exits zero without a result line.
	ErrEmptyOutput = errors.New("engine produced no result line")

	// ErrOutputTooLarge is returned when the result line exceeds MaxResultBytes.
	ErrOutputTooLarge = errors.New("engine result line too large")

	// ErrTimeout is returned when the engine exceeds its bounded wait and is killed.
	ErrTimeout = errors.New("engine timed out")

	// ErrInvalidBoard is returned when the board payload is not a rectangular
	// grid of single-digit cells.
	ErrInvalidBoard = errors.New("invalid board encoding")
)

// ExecutionError reports an engine process that exited non-zero.
type ExecutionError struct {
	ExitCode int
	// Stderr holds the tail of the engine's diagnostic output.
	Stderr string
}

func (e *ExecutionError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("engine exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("engine exited with code %d: %s", e.ExitCode, e.Stderr)
}
