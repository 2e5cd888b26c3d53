// testserver starts a pointcloud API server with an in-process stub engine and
// short job phases for E2E testing and frontend development.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/pointcloud/backend/internal/api"
	"github.com/pointcloud/backend/internal/bridge"
	"github.com/pointcloud/backend/internal/engine"
	"github.com/pointcloud/backend/internal/moves"
	"github.com/pointcloud/backend/internal/store"
)

// stubInvoker answers compute requests without starting a process. It still
// validates the board so malformed requests fail the way they would for real.
type stubInvoker struct {
	delay time.Duration
}

func (s *stubInvoker) Invoke(ctx context.Context, req bridge.Request) (bridge.Result, error) {
	args, err := bridge.EncodeArgs(req)
	if err != nil {
		return bridge.Result{}, err
	}

	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return bridge.Result{}, ctx.Err()
	}

	return bridge.Result{
		Primary:    "2,3",
		Secondary:  fmt.Sprintf("STUB:%d", len(args[0])),
		DurationMS: int(s.delay.Milliseconds()),
	}, nil
}

func main() {
	addr := ":8080"
	if v := os.Getenv("POINTCLOUD_LISTEN_ADDR"); v != "" {
		addr = v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	eng := engine.NewEngine(db, logger, engine.WithPhaseInterval(200*time.Millisecond))
	mv := moves.NewService(db, &stubInvoker{delay: 50 * time.Millisecond}, logger)
	srv := api.NewServer(addr, db, eng, mv, logger)

	logger.Info("testserver: starting", "addr", addr)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
