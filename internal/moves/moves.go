// Package moves computes engine moves on request and keeps an audit record of
// every call: the request is stored before the engine runs and completed with
// its outcome afterwards.
package moves

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pointcloud/backend/internal/bridge"
	"github.com/pointcloud/backend/internal/model"
	"github.com/pointcloud/backend/internal/store"
)

// auditTimeout bounds the post-invocation write, which outlives the caller's
// context.
const auditTimeout = 5 * time.Second

// Params is a compute-move request.
type Params struct {
	// Board is stored verbatim and decoded by the bridge.
	Board       json.RawMessage
	Turn        int
	Difficulty  string
	Exploration *float64
	Extra       []string
}

// Service runs compute requests through an Invoker and audits them.
type Service struct {
	store   store.Store
	invoker bridge.Invoker
	logger  *slog.Logger
}

// NewService creates a new compute-move service.
func NewService(s store.Store, inv bridge.Invoker, logger *slog.Logger) *Service {
	return &Service{store: s, invoker: inv, logger: logger}
}

// Calculate records the request, invokes the engine and records the outcome.
// The returned move is non-nil whenever the request was recorded, including
// when the engine fails; the error is the bridge error unchanged so callers
// can classify it.
func (s *Service) Calculate(ctx context.Context, p Params) (*model.Move, error) {
	difficulty := p.Difficulty
	if difficulty == "" {
		difficulty = bridge.DefaultDifficulty
	}

	m := &model.Move{
		ID:          model.NewID(),
		BoardState:  string(p.Board),
		Turn:        p.Turn,
		Difficulty:  difficulty,
		Exploration: bridge.FormatExploration(p.Exploration),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateMove(ctx, m); err != nil {
		return nil, fmt.Errorf("record move: %w", err)
	}

	start := time.Now()
	res, invokeErr := s.invoker.Invoke(ctx, bridge.Request{
		Board:       p.Board,
		Turn:        p.Turn,
		Difficulty:  difficulty,
		Exploration: p.Exploration,
		Extra:       p.Extra,
	})

	// Prefer the engine-reported duration; fall back to wall-clock time.
	dur := int(time.Since(start).Milliseconds())
	if res.DurationMS > 0 {
		dur = res.DurationMS
	}
	now := time.Now().UTC()
	m.DurationMS = &dur
	m.CompletedAt = &now

	var execErr *bridge.ExecutionError
	switch {
	case invokeErr == nil:
		code := 0
		m.ExitCode = &code
		m.Coordinate = res.Primary
		m.DebugInfo = res.Secondary
	case errors.As(invokeErr, &execErr):
		code := execErr.ExitCode
		m.ExitCode = &code
		m.Error = invokeErr.Error()
	default:
		m.Error = invokeErr.Error()
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.store.UpdateMove(auditCtx, m); err != nil {
		s.logger.Error("failed to complete move record", "move_id", m.ID, "error", err)
	}

	if invokeErr != nil {
		s.logger.Warn("move calculation failed", "move_id", m.ID, "duration_ms", dur, "error", invokeErr)
		return m, invokeErr
	}

	s.logger.Info("move calculated", "move_id", m.ID, "coordinate", m.Coordinate, "duration_ms", dur)
	return m, nil
}

// Get returns a recorded move. An unknown id yields store.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*model.Move, error) {
	return s.store.GetMove(ctx, id)
}

// List returns a page of recorded moves, newest first, and the total count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*model.Move, int, error) {
	return s.store.ListMoves(ctx, limit, offset)
}
