package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr     = ":8080"
	defaultDBPath         = "pointcloud.db"
	defaultEngineName     = "ai_engine"
	defaultEngineTimeout  = 10 * time.Second
	defaultPhaseInterval  = 2 * time.Second
	defaultPersistRetries = 2

	envListenAddr     = "POINTCLOUD_LISTEN_ADDR"
	envDBPath         = "POINTCLOUD_DB_PATH"
	envDatabaseURL    = "POINTCLOUD_DATABASE_URL"
	envLogLevel       = "POINTCLOUD_LOG_LEVEL"
	envEngineName     = "POINTCLOUD_ENGINE_NAME"
	envEngineDirs     = "POINTCLOUD_ENGINE_DIRS"
	envEngineTimeout  = "POINTCLOUD_ENGINE_TIMEOUT"
	envPhaseInterval  = "POINTCLOUD_JOB_PHASE_INTERVAL"
	envPersistRetries = "POINTCLOUD_PERSIST_RETRIES"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	// DatabaseURL selects PostgreSQL when set; otherwise DBPath is opened
	// with SQLite.
	DatabaseURL string
	LogLevel    slog.Level

	EngineName    string
	EngineDirs    []string
	EngineTimeout time.Duration

	JobPhaseInterval time.Duration
	PersistRetries   int
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed durations and integers keep their defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:       defaultListenAddr,
		DBPath:           defaultDBPath,
		LogLevel:         slog.LevelInfo,
		EngineName:       defaultEngineName,
		EngineTimeout:    defaultEngineTimeout,
		JobPhaseInterval: defaultPhaseInterval,
		PersistRetries:   defaultPersistRetries,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	cfg.DatabaseURL = os.Getenv(envDatabaseURL)
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envEngineName); v != "" {
		cfg.EngineName = v
	}
	if v := os.Getenv(envEngineDirs); v != "" {
		cfg.EngineDirs = parseDirs(v)
	}
	cfg.EngineTimeout = parseDuration(os.Getenv(envEngineTimeout), cfg.EngineTimeout)
	cfg.JobPhaseInterval = parseDuration(os.Getenv(envPhaseInterval), cfg.JobPhaseInterval)
	if v := os.Getenv(envPersistRetries); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.PersistRetries = n
		}
	}

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseDuration returns s as a positive duration, or def.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// parseDirs splits an OS path list, dropping empty entries.
func parseDirs(s string) []string {
	var dirs []string
	for _, d := range filepath.SplitList(s) {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
