package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pointcloud/backend/internal/model"

	_ "modernc.org/sqlite"
)

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
    id         TEXT PRIMARY KEY,
    status     TEXT NOT NULL,
    progress   INTEGER NOT NULL DEFAULT 0,
    error      TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
)`

const createMovesTable = `
CREATE TABLE IF NOT EXISTS ai_moves (
    id           TEXT PRIMARY KEY,
    board_state  TEXT NOT NULL,
    player_turn  INTEGER NOT NULL,
    difficulty   TEXT NOT NULL,
    exploration  TEXT NOT NULL DEFAULT '',
    coordinate   TEXT NOT NULL DEFAULT '',
    debug_info   TEXT NOT NULL DEFAULT '',
    error        TEXT NOT NULL DEFAULT '',
    exit_code    INTEGER,
    duration_ms  INTEGER,
    created_at   DATETIME NOT NULL,
    completed_at DATETIME
)`

const (
	jobColumns  = `id, status, progress, error, created_at, updated_at`
	moveColumns = `id, board_state, player_turn, difficulty, exploration, coordinate,
		debug_info, error, exit_code, duration_ms, created_at, completed_at`
)

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and creates the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection; pin the pool to one so
	// every goroutine sees the same tables.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for name, ddl := range map[string]string{"jobs": createJobsTable, "ai_moves": createMovesTable} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create %s table: %w", name, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateJob inserts a new job record.
func (s *SQLiteStore) CreateJob(ctx context.Context, j *model.Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		j.ID, j.Status, j.Progress, j.Error, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	j := &model.Job{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.Status, &j.Progress, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// UpdateJob applies a forward transition. The guard lives in the WHERE
// clause so a single statement both checks and writes.
func (s *SQLiteStore) UpdateJob(ctx context.Context, j *model.Job) error {
	from := model.Predecessors(j.Status)
	if len(from) == 0 || !validProgress(j.Progress) {
		return s.classifyMiss(ctx, j.ID)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	args := []any{j.Status, j.Progress, j.Error, j.UpdatedAt, j.ID}
	for _, st := range from {
		args = append(args, st)
	}
	args = append(args, j.Progress)

	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, progress = ?, error = ?, updated_at = ?
		WHERE id = ? AND status IN (`+placeholders+`) AND progress <= ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return s.classifyMiss(ctx, j.ID)
	}
	return nil
}

// FailUnfinishedJobs fails every job still in a non-terminal status.
func (s *SQLiteStore) FailUnfinishedJobs(ctx context.Context, errMsg string, at time.Time) ([]string, error) {
	from := model.Predecessors(model.StatusFailed)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	args := []any{model.StatusFailed, errMsg, at}
	for _, st := range from {
		args = append(args, st)
	}

	rows, err := s.db.QueryContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ?
		WHERE status IN (`+placeholders+`) RETURNING id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("fail unfinished jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failed job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failed job ids: %w", err)
	}
	return ids, nil
}

// classifyMiss distinguishes a missing job from a rejected transition.
func (s *SQLiteStore) classifyMiss(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM jobs WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check job exists: %w", err)
	}
	return ErrInvalidTransition
}

// ListJobs returns a paginated list of jobs ordered by created_at DESC,
// along with the total count of all jobs.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit, offset int) ([]*model.Job, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j := &model.Job{}
		if err := rows.Scan(&j.ID, &j.Status, &j.Progress, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, total, nil
}

// CreateMove inserts the pre-filled move record.
func (s *SQLiteStore) CreateMove(ctx context.Context, m *model.Move) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_moves (`+moveColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.BoardState, m.Turn, m.Difficulty, m.Exploration, m.Coordinate,
		m.DebugInfo, m.Error, m.ExitCode, m.DurationMS, m.CreatedAt, m.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert move: %w", err)
	}
	return nil
}

// GetMove retrieves a move by ID.
func (s *SQLiteStore) GetMove(ctx context.Context, id string) (*model.Move, error) {
	m := &model.Move{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+moveColumns+` FROM ai_moves WHERE id = ?`, id,
	).Scan(
		&m.ID, &m.BoardState, &m.Turn, &m.Difficulty, &m.Exploration, &m.Coordinate,
		&m.DebugInfo, &m.Error, &m.ExitCode, &m.DurationMS, &m.CreatedAt, &m.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get move: %w", err)
	}
	return m, nil
}

// UpdateMove writes the post-fill fields once.
func (s *SQLiteStore) UpdateMove(ctx context.Context, m *model.Move) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE ai_moves SET exploration = ?, coordinate = ?, debug_info = ?, error = ?,
			exit_code = ?, duration_ms = ?, completed_at = ?
		WHERE id = ? AND completed_at IS NULL`,
		m.Exploration, m.Coordinate, m.DebugInfo, m.Error,
		m.ExitCode, m.DurationMS, m.CompletedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("update move: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM ai_moves WHERE id = ?", m.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check move exists: %w", err)
	}
	return ErrInvalidTransition
}

// ListMoves returns a paginated list of moves ordered by created_at DESC,
// along with the total count of all moves.
func (s *SQLiteStore) ListMoves(ctx context.Context, limit, offset int) ([]*model.Move, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM ai_moves").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count moves: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+moveColumns+` FROM ai_moves ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list moves: %w", err)
	}
	defer rows.Close()

	var moves []*model.Move
	for rows.Next() {
		m := &model.Move{}
		if err := rows.Scan(
			&m.ID, &m.BoardState, &m.Turn, &m.Difficulty, &m.Exploration, &m.Coordinate,
			&m.DebugInfo, &m.Error, &m.ExitCode, &m.DurationMS, &m.CreatedAt, &m.CompletedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan move: %w", err)
		}
		moves = append(moves, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate moves: %w", err)
	}

	return moves, total, nil
}

// GetStats aggregates job counts by status and move outcomes.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{JobsByStatus: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job status count: %w", err)
		}
		stats.JobsByStatus[status] = n
		stats.Jobs += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job status counts: %w", err)
	}
	// Release the connection before the next query; in-memory databases
	// run on a single connection.
	rows.Close()

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0),
			AVG(duration_ms)
		FROM ai_moves`,
	).Scan(&stats.Moves, &stats.MovesFailed, &avg)
	if err != nil {
		return nil, fmt.Errorf("aggregate moves: %w", err)
	}
	if avg.Valid {
		stats.AvgMoveDurationMS = avg.Float64
	}

	return stats, nil
}
