// Package observability wires the mining pipeline's structured logging and
// optional metrics export, trimmed to the CLI's actual needs from the
// teacher's own observability conventions.
package observability

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// Verbosity selects the minimum level a built logger emits.
type Verbosity int

const (
	// VerbosityNormal emits Info and above.
	VerbosityNormal Verbosity = iota
	// VerbosityQuiet emits Warn and above (one -q).
	VerbosityQuiet
	// VerbositySilent emits Error only (two or more -q).
	VerbositySilent
	// VerbosityVerbose emits Debug and above (one or more -v).
	VerbosityVerbose
)

// LoggerConfig configures the process-wide logger built once in main.
type LoggerConfig struct {
	Verbosity Verbosity
	// JSON forces the JSON handler regardless of whether Writer is a
	// terminal. When false, the handler is chosen by isatty(Writer).
	JSON   bool
	Writer io.Writer
}

// NewLogger builds the single process-wide *slog.Logger the CLI passes down
// to every component via Logger.With("component", ...).
func NewLogger(cfg LoggerConfig) *slog.Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level(cfg.Verbosity)}

	var handler slog.Handler
	if cfg.JSON || !isTerminal(writer) {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler)
}

func level(v Verbosity) slog.Level {
	switch v {
	case VerbosityVerbose:
		return slog.LevelDebug
	case VerbosityQuiet:
		return slog.LevelWarn
	case VerbositySilent:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd())
}
