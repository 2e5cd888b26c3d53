package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pointcloud/backend/internal/model"
)

type sseEvent struct {
	name string
	data string
}

// readEvents collects SSE events from resp until the stream ends.
func readEvents(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.name != "" {
				events = append(events, cur)
			}
			cur = sseEvent{}
		}
	}
	return events
}

func TestStreamJobEventsNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/jobs/nonexistent/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStreamJobEventsFinishedJob(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	now := time.Now().UTC()
	j := &model.Job{ID: model.NewID(), Status: model.StatusPending, CreatedAt: now, UpdatedAt: now}
	if err := srv.store.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	j.Status, j.Progress = model.StatusSucceeded, 100
	if err := srv.store.UpdateJob(ctx, j); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/jobs/" + j.ID + "/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	events := readEvents(t, resp)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	if events[0].name != eventStatus {
		t.Errorf("event[0] = %q, want %q", events[0].name, eventStatus)
	}
	var snap model.Job
	if err := json.Unmarshal([]byte(events[0].data), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Status != model.StatusSucceeded || snap.Progress != 100 {
		t.Errorf("snapshot = %s/%d, want SUCCEEDED/100", snap.Status, snap.Progress)
	}
	if events[1].name != eventDone || events[1].data != model.StatusSucceeded {
		t.Errorf("last event = %+v, want done SUCCEEDED", events[1])
	}
}

func TestStreamJobEventsFollowsProgress(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	j := submitJob(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/jobs/"+j.ID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	events := readEvents(t, resp)
	if len(events) < 2 {
		t.Fatalf("got %d events, want at least 2", len(events))
	}

	last := model.Job{Status: model.StatusPending, Progress: -1}
	for _, ev := range events[:len(events)-1] {
		var snap model.Job
		if err := json.Unmarshal([]byte(ev.data), &snap); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if snap.Progress <= last.Progress && snap.Status == last.Status {
			t.Errorf("snapshot %s/%d did not advance past %s/%d", snap.Status, snap.Progress, last.Status, last.Progress)
		}
		last = snap
	}
	if last.Status != model.StatusSucceeded || last.Progress != 100 {
		t.Errorf("final snapshot = %s/%d, want SUCCEEDED/100", last.Status, last.Progress)
	}
	if done := events[len(events)-1]; done.name != eventDone {
		t.Errorf("last event = %q, want %q", done.name, eventDone)
	}
}

func TestAfter(t *testing.T) {
	pending := model.Job{Status: model.StatusPending}
	run30 := model.Job{Status: model.StatusRunning, Progress: 30}
	run80 := model.Job{Status: model.StatusRunning, Progress: 80}
	done := model.Job{Status: model.StatusSucceeded, Progress: 100}
	failed := model.Job{Status: model.StatusFailed, Progress: 30}

	tests := []struct {
		a, b model.Job
		want bool
	}{
		{run30, pending, true},
		{run80, run30, true},
		{run30, run80, false},
		{run30, run30, false},
		{pending, run30, false},
		{done, run80, true},
		{failed, run80, true},
		{run80, done, false},
		{done, failed, false},
	}

	for _, tt := range tests {
		if got := after(tt.a, tt.b); got != tt.want {
			t.Errorf("after(%s/%d, %s/%d) = %v, want %v",
				tt.a.Status, tt.a.Progress, tt.b.Status, tt.b.Progress, got, tt.want)
		}
	}
}
