package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Options configures New.
type Options struct {
	Level   slog.Level
	Console bool // human-readable colored output instead of JSON
	NoColor bool
}

// New creates the application logger. Console mode uses tint, otherwise
// records are written as JSON. Both standardize the "error" key to "err"
// and inject correlation values from the context.
func New(w io.Writer, opts Options) *slog.Logger {
	var inner slog.Handler
	if opts.Console {
		inner = tint.NewHandler(w, &tint.Options{
			Level:       opts.Level,
			TimeFormat:  time.TimeOnly,
			NoColor:     opts.NoColor,
			ReplaceAttr: replaceAttr,
		})
	} else {
		inner = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       opts.Level,
			ReplaceAttr: replaceAttr,
		})
	}
	return slog.New(NewCorrelationHandler(inner))
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps a config string to a level. Unknown values yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == "error" {
		a.Key = "err"
	}
	return a
}
