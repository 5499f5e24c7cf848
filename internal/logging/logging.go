// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config selects the log level, an optional log file and the output format.
type Config struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
	JSON  bool   `yaml:"json"`
}

var (
	mu      sync.Mutex
	logFile *os.File
)

// Init builds a logger writing to stderr and, when cfg.Path is set, appending
// to that file. Calling Init again closes the previously opened file.
func Init(cfg Config) (zerolog.Logger, error) {
	return initWith(cfg, os.Stderr)
}

func initWith(cfg Config, console io.Writer) (zerolog.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writers []io.Writer
	if cfg.JSON {
		writers = append(writers, console)
	} else {
		writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339})
	}

	if cfg.Path != "" {
		if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return zerolog.Nop(), err
			}
		}
		file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), err
		}
		logFile = file
		writers = append(writers, logFile)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, nil
}

// Close releases the log file opened by Init, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// ParseLevel accepts zerolog level names case-insensitively; empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	if s == "warning" {
		s = "warn"
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// Component tags a logger with the name of the subsystem using it.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
