package store

import (
	"context"
	"errors"
	"time"

	"github.com/pointcloud/backend/internal/model"
)

// ErrNotFound is returned when a job or move is not found.
var ErrNotFound = errors.New("record not found")

// ErrInvalidTransition is returned when an update would move a job backwards
// (status or progress) or rewrite a move that was already completed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Stats holds aggregate counts over persisted jobs and moves.
type Stats struct {
	Jobs              int            `json:"jobs"`
	JobsByStatus      map[string]int `json:"jobs_by_status"`
	Moves             int            `json:"moves"`
	MovesFailed       int            `json:"moves_failed"`
	AvgMoveDurationMS float64        `json:"avg_move_duration_ms"`
}

// Store defines the persistence operations for jobs and moves.
type Store interface {
	CreateJob(ctx context.Context, j *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	// UpdateJob writes status, progress, error and updated_at. It returns
	// ErrNotFound for an unknown id and ErrInvalidTransition when the write
	// would violate the forward-only ordering of status or progress.
	UpdateJob(ctx context.Context, j *model.Job) error
	ListJobs(ctx context.Context, limit, offset int) ([]*model.Job, int, error)
	// FailUnfinishedJobs moves every PENDING or RUNNING job to FAILED with
	// errMsg, keeping its progress, and returns the ids it changed.
	FailUnfinishedJobs(ctx context.Context, errMsg string, at time.Time) ([]string, error)

	CreateMove(ctx context.Context, m *model.Move) error
	GetMove(ctx context.Context, id string) (*model.Move, error)
	// UpdateMove writes the post-invocation fields of a move. A move can be
	// completed once; later calls return ErrInvalidTransition.
	UpdateMove(ctx context.Context, m *model.Move) error
	ListMoves(ctx context.Context, limit, offset int) ([]*model.Move, int, error)

	GetStats(ctx context.Context) (*Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// validProgress reports whether p is inside the allowed progress range.
func validProgress(p int) bool {
	return p >= model.MinProgress && p <= model.MaxProgress
}
