package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Environment variables read by OptionsFromEnv.
const (
	EnvLogLevel = "LLMWRAPPER_LOG_LEVEL"
	EnvLogFile  = "LLMWRAPPER_LOG_FILE"
)

// Options configures New.
type Options struct {
	Level slog.Level
	// FilePath enables a JSON file sink in addition to the console.
	FilePath string
	// Console defaults to os.Stderr.
	Console io.Writer
	// NoColor disables ANSI colors. Colors are also off when Console is not
	// a terminal.
	NoColor bool
}

// OptionsFromEnv reads LLMWRAPPER_LOG_LEVEL and LLMWRAPPER_LOG_FILE.
func OptionsFromEnv() Options {
	return Options{
		Level:    ParseLevel(os.Getenv(EnvLogLevel)),
		FilePath: os.Getenv(EnvLogFile),
	}
}

// ParseLevel maps DEBUG, INFO, WARNING/WARN and ERROR to slog levels.
// Anything else is INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a masked logger writing to the console and, when configured,
// to a log file. If the file cannot be opened the failure is reported on the
// console and logging continues there. The returned Closer releases the
// file.
func New(opts Options) (*slog.Logger, io.Closer) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	handlers := fanoutHandler{
		tint.NewHandler(console, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.TimeOnly,
			NoColor:    opts.NoColor || !isTerminal(console),
		}),
	}

	var closer io.Closer = nopCloser{}
	var fileErr error
	if opts.FilePath != "" {
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			fileErr = err
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: opts.Level}))
			closer = f
		}
	}

	logger := slog.New(NewMaskingHandler(handlers))
	if fileErr != nil {
		logger.Warn("log file unavailable, logging to console only",
			"path", opts.FilePath,
			"error", fileErr,
		)
	}
	return logger, closer
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
