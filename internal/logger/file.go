package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// LogFileConfig describes where a per-build log file should be created.
type LogFileConfig struct {
	Prefix    string
	LogDir    string
	DAGLogDir string
	DAGName   string
	RequestID string
}

// OpenLogFile creates (or appends to) the log file described by cfg,
// creating any missing directories along the way.
func OpenLogFile(cfg LogFileConfig) (*os.File, error) {
	if cfg.DAGName == "" {
		return nil, fmt.Errorf("log file config: DAGName must not be empty")
	}
	if cfg.LogDir == "" && cfg.DAGLogDir == "" {
		return nil, fmt.Errorf("log file config: LogDir or DAGLogDir must be set")
	}

	dir, err := prepareLogDirectory(cfg)
	if err != nil {
		return nil, fmt.Errorf("prepare log directory: %w", err)
	}

	return openFile(filepath.Join(dir, generateLogFilename(cfg)))
}

func prepareLogDirectory(cfg LogFileConfig) (string, error) {
	base := cfg.LogDir
	if cfg.DAGLogDir != "" {
		base = cfg.DAGLogDir
	}
	dir := filepath.Join(base, safeName(cfg.DAGName))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func generateLogFilename(cfg LogFileConfig) string {
	timestamp := time.Now().Format("20060102.15:04:05.000")
	return fmt.Sprintf("%s%s.%s.%s.log",
		cfg.Prefix,
		safeName(cfg.DAGName),
		timestamp,
		truncString(cfg.RequestID, 8),
	)
}

func openFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0o644)
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// safeName converts name into a filesystem-safe path component.
func safeName(name string) string {
	safe := unsafeNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	if safe == "" {
		return "_"
	}
	return safe
}

// truncString truncates s to at most n runes.
func truncString(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
