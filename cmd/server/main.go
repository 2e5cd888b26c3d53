package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/pointcloud/backend/internal/api"
	"github.com/pointcloud/backend/internal/bridge"
	"github.com/pointcloud/backend/internal/config"
	"github.com/pointcloud/backend/internal/engine"
	"github.com/pointcloud/backend/internal/moves"
	"github.com/pointcloud/backend/internal/store"
)

const openTimeout = 30 * time.Second

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("pointcloud: starting",
		"listen_addr", cfg.ListenAddr,
		"postgres", cfg.DatabaseURL != "",
		"engine_name", cfg.EngineName,
		"engine_timeout", cfg.EngineTimeout.String(),
	)

	db, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	eng := engine.NewEngine(db, logger,
		engine.WithPhaseInterval(cfg.JobPhaseInterval),
		engine.WithPersistRetries(cfg.PersistRetries, 0),
	)
	recoverCtx, cancel := context.WithTimeout(context.Background(), openTimeout)
	n, err := eng.FailInterrupted(recoverCtx)
	cancel()
	if err != nil {
		log.Fatalf("failed to reconcile interrupted jobs: %v", err)
	}
	if n > 0 {
		logger.Warn("failed jobs interrupted by previous shutdown", "count", n)
	}

	inv := bridge.NewProcessInvoker(logger,
		bridge.WithEngineName(cfg.EngineName),
		bridge.WithSearchDirs(cfg.EngineDirs...),
		bridge.WithTimeout(cfg.EngineTimeout),
	)
	srv := api.NewServer(cfg.ListenAddr, db, eng, moves.NewService(db, inv, logger), logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// openStore selects PostgreSQL when a database URL is configured and SQLite
// otherwise.
func openStore(cfg config.Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		s, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	if !store.IsPostgresURL(cfg.DatabaseURL) {
		return nil, errors.New("POINTCLOUD_DATABASE_URL must be a postgres:// or postgresql:// URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()
	s, err := store.OpenPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return s, nil
}
