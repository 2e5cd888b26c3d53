package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pointcloud/backend/internal/bridge"
	"github.com/pointcloud/backend/internal/model"
)

func TestCalculateMove(t *testing.T) {
	var got bridge.Request
	inv := &stubInvoker{fn: func(req bridge.Request) (bridge.Result, error) {
		got = req
		return bridge.Result{Primary: "2,3", Secondary: "LEGAL:4"}, nil
	}}
	srv := newTestServerWith(t, inv)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts, "/v1/othello/calculate", `{"board":[[0,0],[0,1]],"turn":1,"level":"hard"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body calculateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Coordinate != "2,3" || body.DebugInfo != "LEGAL:4" {
		t.Errorf("response = %+v", body)
	}
	if len(body.MoveID) != 26 {
		t.Errorf("move_id = %q, want ULID", body.MoveID)
	}
	if got.Difficulty != "hard" {
		t.Errorf("difficulty = %q, want level alias %q", got.Difficulty, "hard")
	}
	if got.Turn != 1 {
		t.Errorf("turn = %d, want 1", got.Turn)
	}

	m, err := srv.moves.Get(t.Context(), body.MoveID)
	if err != nil {
		t.Fatalf("Get move: %v", err)
	}
	if m.BoardState != `[[0,0],[0,1]]` {
		t.Errorf("board_state = %q, want verbatim request board", m.BoardState)
	}
	if m.Coordinate != "2,3" {
		t.Errorf("coordinate = %q, want %q", m.Coordinate, "2,3")
	}
}

func TestCalculateMoveDifficultyWinsOverLevel(t *testing.T) {
	var got bridge.Request
	inv := &stubInvoker{fn: func(req bridge.Request) (bridge.Result, error) {
		got = req
		return bridge.Result{Primary: "0,0"}, nil
	}}
	srv := newTestServerWith(t, inv)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts, "/v1/othello/calculate",
		`{"board":"[[0,1]]","turn":2,"level":"easy","difficulty":"hard","exploration":0.9}`)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got.Difficulty != "hard" {
		t.Errorf("difficulty = %q, want %q", got.Difficulty, "hard")
	}
	if got.Exploration == nil || *got.Exploration != 0.9 {
		t.Errorf("exploration = %v, want 0.9", got.Exploration)
	}
}

func TestCalculateMoveBadRequest(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "not json"},
		{"missing board", `{"turn":1}`},
		{"null board", `{"board":null,"turn":1}`},
		{"missing turn", `{"board":[[0]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts, "/v1/othello/calculate", tt.body)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			var errResp map[string]string
			json.NewDecoder(resp.Body).Decode(&errResp)
			if errResp["error"] == "" {
				t.Error("expected error message in response")
			}
		})
	}
}

func TestCalculateMoveEngineErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"invalid board", fmt.Errorf("%w: ragged", bridge.ErrInvalidBoard), http.StatusBadRequest, kindInvalidBoard},
		{"not found", fmt.Errorf("%w: ai_engine", bridge.ErrEngineNotFound), http.StatusServiceUnavailable, kindEngineNotFound},
		{"exit code", &bridge.ExecutionError{ExitCode: 1}, http.StatusBadGateway, kindExecution},
		{"empty output", bridge.ErrEmptyOutput, http.StatusBadGateway, kindEmptyOutput},
		{"result too large", fmt.Errorf("%w: exceeds 1048576 bytes", bridge.ErrOutputTooLarge), http.StatusBadGateway, kindOutputTooLarge},
		{"timeout", fmt.Errorf("%w after 10s", bridge.ErrTimeout), http.StatusGatewayTimeout, kindTimeout},
		{"other", errors.New("start engine: permission denied"), http.StatusInternalServerError, kindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &stubInvoker{fn: func(bridge.Request) (bridge.Result, error) {
				return bridge.Result{}, tt.err
			}}
			srv := newTestServerWith(t, inv)
			ts := httptest.NewServer(srv.Router())
			defer ts.Close()

			resp := postJSON(t, ts, "/v1/othello/calculate", `{"board":[[0,1]],"turn":1}`)
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var body calculateErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", body.Kind, tt.wantKind)
			}
			if body.MoveID == "" {
				t.Error("expected move_id for audited failure")
			}

			m, err := srv.moves.Get(t.Context(), body.MoveID)
			if err != nil {
				t.Fatalf("Get move: %v", err)
			}
			if m.Coordinate != "" {
				t.Errorf("coordinate = %q, want empty on failure", m.Coordinate)
			}
		})
	}
}

func TestCalculateMoveExitCodeReported(t *testing.T) {
	inv := &stubInvoker{fn: func(bridge.Request) (bridge.Result, error) {
		return bridge.Result{ExitCode: 7}, &bridge.ExecutionError{ExitCode: 7}
	}}
	srv := newTestServerWith(t, inv)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts, "/v1/othello/calculate", `{"board":[[0]],"turn":1}`)
	defer resp.Body.Close()

	var body calculateErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ExitCode == nil || *body.ExitCode != 7 {
		t.Errorf("exit_code = %v, want 7", body.ExitCode)
	}
}

func TestListAndGetMoves(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for range 3 {
		resp := postJSON(t, ts, "/v1/othello/calculate", `{"board":[[0,1]],"turn":1}`)
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/v1/othello/moves?limit=2")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var list listMovesResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 3 || len(list.Moves) != 2 {
		t.Fatalf("total = %d len = %d, want 3 and 2", list.Total, len(list.Moves))
	}

	resp2, err := http.Get(ts.URL + "/v1/othello/moves/" + list.Moves[0].ID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp2.Body.Close()

	var m model.Move
	if err := json.NewDecoder(resp2.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Coordinate != "3,4" {
		t.Errorf("coordinate = %q, want %q", m.Coordinate, "3,4")
	}
}

func TestGetMoveNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/othello/moves/nonexistent")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
