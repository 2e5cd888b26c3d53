package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		envListenAddr, envDBPath, envDatabaseURL, envLogLevel, envEngineName,
		envEngineDirs, envEngineTimeout, envPhaseInterval, envPersistRetries,
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.DBPath != defaultDBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, defaultDBPath)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
	if cfg.EngineName != "ai_engine" {
		t.Errorf("EngineName = %q, want %q", cfg.EngineName, "ai_engine")
	}
	if cfg.EngineDirs != nil {
		t.Errorf("EngineDirs = %v, want nil", cfg.EngineDirs)
	}
	if cfg.EngineTimeout != 10*time.Second {
		t.Errorf("EngineTimeout = %v, want 10s", cfg.EngineTimeout)
	}
	if cfg.JobPhaseInterval != 2*time.Second {
		t.Errorf("JobPhaseInterval = %v, want 2s", cfg.JobPhaseInterval)
	}
	if cfg.PersistRetries != 2 {
		t.Errorf("PersistRetries = %d, want 2", cfg.PersistRetries)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	dirs := strings.Join([]string{"/opt/engine", "", "/srv/bin"}, string(filepath.ListSeparator))
	t.Setenv(envListenAddr, ":9090")
	t.Setenv(envDBPath, "/tmp/test.db")
	t.Setenv(envDatabaseURL, "postgres://u:p@localhost/pc")
	t.Setenv(envLogLevel, "debug")
	t.Setenv(envEngineName, "othello_ai")
	t.Setenv(envEngineDirs, dirs)
	t.Setenv(envEngineTimeout, "3s")
	t.Setenv(envPhaseInterval, "250ms")
	t.Setenv(envPersistRetries, "5")

	cfg := Load()

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.DatabaseURL != "postgres://u:p@localhost/pc" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.EngineName != "othello_ai" {
		t.Errorf("EngineName = %q, want %q", cfg.EngineName, "othello_ai")
	}
	if len(cfg.EngineDirs) != 2 || cfg.EngineDirs[0] != "/opt/engine" || cfg.EngineDirs[1] != "/srv/bin" {
		t.Errorf("EngineDirs = %v, want [/opt/engine /srv/bin]", cfg.EngineDirs)
	}
	if cfg.EngineTimeout != 3*time.Second {
		t.Errorf("EngineTimeout = %v, want 3s", cfg.EngineTimeout)
	}
	if cfg.JobPhaseInterval != 250*time.Millisecond {
		t.Errorf("JobPhaseInterval = %v, want 250ms", cfg.JobPhaseInterval)
	}
	if cfg.PersistRetries != 5 {
		t.Errorf("PersistRetries = %d, want 5", cfg.PersistRetries)
	}
}

func TestLoadInvalidValuesKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(envEngineTimeout, "soon")
	t.Setenv(envPhaseInterval, "-1s")
	t.Setenv(envPersistRetries, "many")

	cfg := Load()

	if cfg.EngineTimeout != defaultEngineTimeout {
		t.Errorf("EngineTimeout = %v, want default", cfg.EngineTimeout)
	}
	if cfg.JobPhaseInterval != defaultPhaseInterval {
		t.Errorf("JobPhaseInterval = %v, want default", cfg.JobPhaseInterval)
	}
	if cfg.PersistRetries != defaultPersistRetries {
		t.Errorf("PersistRetries = %d, want default", cfg.PersistRetries)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		got := parseLogLevel(tt.input)
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("logger output is not valid JSON: %v\noutput: %s", err, buf.String())
	}

	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("JSON output missing expected key %q", key)
		}
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want %q", entry["key"], "value")
	}
}
