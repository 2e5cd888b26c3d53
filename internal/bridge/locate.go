package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultEngineName is the engine's base name before platform adjustment.
const DefaultEngineName = "ai_engine"

// ExecutableName returns the platform-specific file name for base.
func ExecutableName(goos, base string) string {
	if goos == "windows" && !strings.HasSuffix(strings.ToLower(base), ".exe") {
		return base + ".exe"
	}
	return base
}

// SearchDirs returns extra followed by the working directory and its parent,
// with duplicates removed.
func SearchDirs(extra []string) ([]string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	seen := make(map[string]bool)
	var dirs []string
	for _, d := range append(append([]string{}, extra...), wd, filepath.Dir(wd)) {
		if d == "" {
			continue
		}
		abs, err := filepath.Abs(d)
		if err != nil {
			continue
		}
		if !seen[abs] {
			seen[abs] = true
			dirs = append(dirs, abs)
		}
	}
	return dirs, nil
}

// Locate returns the path of the first regular file called name in dirs.
func Locate(name string, dirs []string) (string, error) {
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		return candidate, nil
	}
	return "", fmt.Errorf("%w: %s (searched %s)", ErrEngineNotFound, name, strings.Join(dirs, ", "))
}
