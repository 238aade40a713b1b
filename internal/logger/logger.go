// Package logger builds the process logger: charmbracelet/log on stderr,
// optionally teed into a size-rotated file.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options mirror the [log] config table.
type Options struct {
	Level      string
	Format     string // text, json or logfmt
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger wraps *log.Logger and owns the rotating file, if any.
type Logger struct {
	*log.Logger
	rotator *lumberjack.Logger
}

// New returns a logger writing to stderr and, when File is set, to a rotated
// log file as well.
func New(opts Options) (*Logger, error) {
	return NewWithWriter(os.Stderr, opts)
}

// NewWithWriter is New with an explicit console writer.
func NewWithWriter(console io.Writer, opts Options) (*Logger, error) {
	level := log.InfoLevel
	if opts.Level != "" {
		lvl, err := log.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = lvl
	}

	formatter, err := parseFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	out := console
	var rotator *lumberjack.Logger
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
		rotator = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 30),
			LocalTime:  true,
		}
		out = io.MultiWriter(console, rotator)
	}

	l := log.NewWithOptions(out, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Prefix:          "streamscout",
	})
	return &Logger{Logger: l, rotator: rotator}, nil
}

// Discard returns a logger that drops everything, for tests and library use.
func Discard() *Logger {
	return &Logger{Logger: log.NewWithOptions(io.Discard, log.Options{})}
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

func parseFormat(s string) (log.Formatter, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	default:
		return log.TextFormatter, fmt.Errorf("unsupported log format %q (valid: text, json, logfmt)", s)
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
