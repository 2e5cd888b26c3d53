package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pointcloud/backend/internal/bridge"
	"github.com/pointcloud/backend/internal/model"
	"github.com/pointcloud/backend/internal/moves"
	"github.com/pointcloud/backend/internal/store"
)

func TestGetStatsEmpty(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var stats store.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if stats.Jobs != 0 || stats.Moves != 0 {
		t.Errorf("jobs = %d moves = %d, want 0", stats.Jobs, stats.Moves)
	}
	if stats.AvgMoveDurationMS != 0 {
		t.Errorf("avg_move_duration_ms = %f, want 0", stats.AvgMoveDurationMS)
	}
}

func TestGetStatsPopulated(t *testing.T) {
	// Turn 2 requests fail with empty output.
	inv := &stubInvoker{fn: func(req bridge.Request) (bridge.Result, error) {
		if req.Turn == 2 {
			return bridge.Result{}, bridge.ErrEmptyOutput
		}
		return bridge.Result{Primary: "3,4", DurationMS: 40}, nil
	}}
	srv := newTestServerWith(t, inv)
	ctx := context.Background()

	// Three succeeded jobs and one failed.
	for i := range 4 {
		now := time.Now().UTC()
		j := &model.Job{ID: model.NewID(), Status: model.StatusPending, CreatedAt: now, UpdatedAt: now}
		if err := srv.store.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		j.Status, j.Progress = model.StatusSucceeded, 100
		if i == 3 {
			j.Status, j.Progress, j.Error = model.StatusFailed, 0, "boom"
		}
		if err := srv.store.UpdateJob(ctx, j); err != nil {
			t.Fatalf("UpdateJob: %v", err)
		}
	}

	// Two moves through the service: one ok, one failing.
	if _, err := srv.moves.Calculate(ctx, moves.Params{Board: []byte(`[[0,1],[1,0]]`), Turn: 1}); err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if _, err := srv.moves.Calculate(ctx, moves.Params{Board: []byte(`[[0,1],[1,0]]`), Turn: 2}); err == nil {
		t.Fatal("Calculate: expected error")
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var stats store.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if stats.Jobs != 4 {
		t.Errorf("jobs = %d, want 4", stats.Jobs)
	}
	if stats.JobsByStatus[model.StatusSucceeded] != 3 {
		t.Errorf("jobs_by_status[SUCCEEDED] = %d, want 3", stats.JobsByStatus[model.StatusSucceeded])
	}
	if stats.JobsByStatus[model.StatusFailed] != 1 {
		t.Errorf("jobs_by_status[FAILED] = %d, want 1", stats.JobsByStatus[model.StatusFailed])
	}
	if stats.Moves != 2 {
		t.Errorf("moves = %d, want 2", stats.Moves)
	}
	if stats.MovesFailed != 1 {
		t.Errorf("moves_failed = %d, want 1", stats.MovesFailed)
	}
}
