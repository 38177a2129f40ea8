// Package logging builds the process logger: console plus rotated files,
// with sensitive attributes scrubbed before any handler sees them.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/syntrixbase/inkwell/internal/config"
)

// openFiles are closed by Shutdown.
var openFiles struct {
	sync.Mutex
	list []*lumberjack.Logger
}

// Initialize installs the logger built from cfg as slog's default.
func Initialize(cfg config.LoggingConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(logger)
	logger.Info("Logging initialized",
		"level", cfg.Level,
		"format", cfg.Format,
		"dir", cfg.Dir,
		"console", cfg.Console.Enabled,
		"file", cfg.File.Enabled,
	)
	return nil
}

// NewLogger builds the console sink and the rotated inkwell.log and
// errors.log sinks selected by cfg, behind the redaction handler. cfg.Level
// is a floor for every sink.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	floor := parseLevel(cfg.Level)
	var sinks []sink
	add := func(w io.Writer, format string, level slog.Level) {
		level = max(floor, level)
		sinks = append(sinks, sink{handler: newHandler(w, format, level), min: level})
	}

	if cfg.Console.Enabled {
		add(os.Stdout, cfg.Console.Format, parseLevel(cfg.Console.Level))
	}
	if cfg.File.Enabled {
		add(rotatingFile(cfg, "inkwell.log"), cfg.File.Format, parseLevel(cfg.File.Level))
		add(rotatingFile(cfg, "errors.log"), cfg.File.Format, slog.LevelWarn)
	}

	var h slog.Handler
	switch len(sinks) {
	case 0:
		h = slog.DiscardHandler
	case 1:
		h = sinks[0].handler
	default:
		h = newFanout(sinks...)
	}
	return slog.New(NewRedactHandler(h, cfg.RedactKeys)), nil
}

func rotatingFile(cfg config.LoggingConfig, name string) *lumberjack.Logger {
	f := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name),
		MaxSize:    cfg.Rotation.MaxSize,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAge,
		Compress:   cfg.Rotation.Compress,
	}
	openFiles.Lock()
	openFiles.list = append(openFiles.list, f)
	openFiles.Unlock()
	return f
}

// Shutdown closes every file opened by NewLogger.
func Shutdown() error {
	openFiles.Lock()
	files := openFiles.list
	openFiles.list = nil
	openFiles.Unlock()

	var errs []error
	for _, f := range files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", f.Filename, err))
		}
	}
	return errors.Join(errs...)
}

// parseLevel falls back to info for anything it does not know.
func parseLevel(s string) slog.Level {
	var l slog.Level
	if s == "" || l.UnmarshalText([]byte(s)) != nil {
		return slog.LevelInfo
	}
	return l
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
