package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointcloud/backend/internal/model"
)

// Compile-time interface satisfaction check.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPostgresStore runs migrations against databaseURL, connects a pool and
// verifies connectivity.
func OpenPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewPostgresStore(pool), nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, j *model.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		j.ID, j.Status, j.Progress, j.Error, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job
	err := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.Status, &j.Progress, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, j *model.Job) error {
	from := model.Predecessors(j.Status)
	if len(from) == 0 || !validProgress(j.Progress) {
		return s.classifyJobMiss(ctx, j.ID)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, progress = $2, error = $3, updated_at = $4
		 WHERE id = $5 AND status = ANY($6) AND progress <= $2`,
		j.Status, j.Progress, j.Error, j.UpdatedAt, j.ID, from)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyJobMiss(ctx, j.ID)
	}
	return nil
}

func (s *PostgresStore) FailUnfinishedJobs(ctx context.Context, errMsg string, at time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE jobs SET status = $1, error = $2, updated_at = $3
		 WHERE status = ANY($4) RETURNING id`,
		model.StatusFailed, errMsg, at, model.Predecessors(model.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("fail unfinished jobs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("fail unfinished jobs: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) classifyJobMiss(ctx context.Context, id string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check job exists: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

func (s *PostgresStore) ListJobs(ctx context.Context, limit, offset int) ([]*model.Job, int, error) {
	tx, err := s.beginSnapshot(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(&j.ID, &j.Status, &j.Progress, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, total, rows.Err()
}

// beginSnapshot opens a read-only transaction whose statements share one
// snapshot, so a page and its total count agree.
func (s *PostgresStore) beginSnapshot(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	return tx, nil
}

// --- Moves ---

func (s *PostgresStore) CreateMove(ctx context.Context, m *model.Move) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_moves (`+moveColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.ID, m.BoardState, m.Turn, m.Difficulty, m.Exploration, m.Coordinate,
		m.DebugInfo, m.Error, m.ExitCode, m.DurationMS, m.CreatedAt, m.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert move: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMove(ctx context.Context, id string) (*model.Move, error) {
	var m model.Move
	err := s.pool.QueryRow(ctx,
		`SELECT `+moveColumns+` FROM ai_moves WHERE id = $1`, id,
	).Scan(&m.ID, &m.BoardState, &m.Turn, &m.Difficulty, &m.Exploration, &m.Coordinate,
		&m.DebugInfo, &m.Error, &m.ExitCode, &m.DurationMS, &m.CreatedAt, &m.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get move: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) UpdateMove(ctx context.Context, m *model.Move) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ai_moves SET exploration = $1, coordinate = $2, debug_info = $3, error = $4,
			exit_code = $5, duration_ms = $6, completed_at = $7
		 WHERE id = $8 AND completed_at IS NULL`,
		m.Exploration, m.Coordinate, m.DebugInfo, m.Error,
		m.ExitCode, m.DurationMS, m.CompletedAt, m.ID)
	if err != nil {
		return fmt.Errorf("update move: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ai_moves WHERE id = $1)`, m.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check move exists: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

func (s *PostgresStore) ListMoves(ctx context.Context, limit, offset int) ([]*model.Move, int, error) {
	tx, err := s.beginSnapshot(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM ai_moves`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count moves: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT `+moveColumns+` FROM ai_moves ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list moves: %w", err)
	}
	defer rows.Close()

	var moves []*model.Move
	for rows.Next() {
		var m model.Move
		if err := rows.Scan(&m.ID, &m.BoardState, &m.Turn, &m.Difficulty, &m.Exploration, &m.Coordinate,
			&m.DebugInfo, &m.Error, &m.ExitCode, &m.DurationMS, &m.CreatedAt, &m.CompletedAt); err != nil {
			return nil, 0, fmt.Errorf("scan move: %w", err)
		}
		moves = append(moves, &m)
	}
	return moves, total, rows.Err()
}

// --- Stats ---

func (s *PostgresStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{JobsByStatus: make(map[string]int)}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan job status count: %w", err)
		}
		stats.JobsByStatus[status] = n
		stats.Jobs += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job status counts: %w", err)
	}

	var avg *float64
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE error <> ''), AVG(duration_ms)::float8 FROM ai_moves`,
	).Scan(&stats.Moves, &stats.MovesFailed, &avg)
	if err != nil {
		return nil, fmt.Errorf("aggregate moves: %w", err)
	}
	if avg != nil {
		stats.AvgMoveDurationMS = *avg
	}
	return stats, nil
}
