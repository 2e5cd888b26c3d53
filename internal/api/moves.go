package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pointcloud/backend/internal/bridge"
	"github.com/pointcloud/backend/internal/model"
	"github.com/pointcloud/backend/internal/moves"
	"github.com/pointcloud/backend/internal/store"
)

// Error kinds reported by the calculate endpoint.
const (
	kindInvalidBoard   = "invalid_board"
	kindEngineNotFound = "engine_not_found"
	kindExecution      = "engine_execution_error"
	kindEmptyOutput    = "engine_empty_output"
	kindOutputTooLarge = "engine_output_too_large"
	kindTimeout        = "engine_timeout"
	kindInternal       = "internal"
)

// calculateRequest is the JSON body for POST /v1/othello/calculate. Level is
// accepted as an alias of Difficulty.
type calculateRequest struct {
	Board       json.RawMessage `json:"board"`
	Turn        *int            `json:"turn"`
	Level       string          `json:"level"`
	Difficulty  string          `json:"difficulty"`
	Exploration *float64        `json:"exploration"`
	Extra       []string        `json:"extra"`
}

type calculateResponse struct {
	MoveID     string `json:"move_id"`
	Coordinate string `json:"coordinate"`
	DebugInfo  string `json:"debug_info,omitempty"`
}

type calculateErrorResponse struct {
	Error    string `json:"error"`
	Kind     string `json:"kind"`
	MoveID   string `json:"move_id,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

// listMovesResponse wraps the paginated list response.
type listMovesResponse struct {
	Moves  []*model.Move `json:"moves"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (s *Server) handleCalculateMove(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if len(req.Board) == 0 || string(req.Board) == "null" {
		s.writeError(w, http.StatusBadRequest, "board is required")
		return
	}
	if req.Turn == nil {
		s.writeError(w, http.StatusBadRequest, "turn is required")
		return
	}

	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = req.Level
	}

	m, err := s.moves.Calculate(r.Context(), moves.Params{
		Board:       req.Board,
		Turn:        *req.Turn,
		Difficulty:  difficulty,
		Exploration: req.Exploration,
		Extra:       req.Extra,
	})
	if err != nil {
		status, kind := classifyEngineError(err)
		calculateFailures.WithLabelValues(kind).Inc()
		if status == http.StatusInternalServerError {
			s.logger.Error("calculate move", "error", err)
		}
		resp := calculateErrorResponse{Error: err.Error(), Kind: kind}
		if m != nil {
			resp.MoveID = m.ID
			resp.ExitCode = m.ExitCode
		}
		s.writeJSON(w, status, resp)
		return
	}

	s.writeJSON(w, http.StatusOK, calculateResponse{
		MoveID:     m.ID,
		Coordinate: m.Coordinate,
		DebugInfo:  m.DebugInfo,
	})
}

// classifyEngineError maps a bridge failure to an HTTP status and error kind.
func classifyEngineError(err error) (int, string) {
	var execErr *bridge.ExecutionError
	switch {
	case errors.Is(err, bridge.ErrInvalidBoard):
		return http.StatusBadRequest, kindInvalidBoard
	case errors.Is(err, bridge.ErrEngineNotFound):
		return http.StatusServiceUnavailable, kindEngineNotFound
	case errors.As(err, &execErr):
		return http.StatusBadGateway, kindExecution
	case errors.Is(err, bridge.ErrEmptyOutput):
		return http.StatusBadGateway, kindEmptyOutput
	case errors.Is(err, bridge.ErrOutputTooLarge):
		return http.StatusBadGateway, kindOutputTooLarge
	case errors.Is(err, bridge.ErrTimeout):
		return http.StatusGatewayTimeout, kindTimeout
	default:
		return http.StatusInternalServerError, kindInternal
	}
}

func (s *Server) handleGetMove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !model.ValidID(id) {
		s.writeError(w, http.StatusNotFound, "move not found")
		return
	}

	m, err := s.moves.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "move not found")
		return
	}
	if err != nil {
		s.logger.Error("get move", "move_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get move")
		return
	}

	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleListMoves(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	list, total, err := s.moves.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list moves", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list moves")
		return
	}

	if list == nil {
		list = []*model.Move{}
	}

	s.writeJSON(w, http.StatusOK, listMovesResponse{
		Moves:  list,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}
