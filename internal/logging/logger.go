package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"smartclim/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the diagnostics logger. Console output is reserved for status
// lines, so records go to cfg.File when set and to stderr otherwise. The
// returned closer releases the log file.
func New(cfg config.Log, appName string) (*slog.Logger, io.Closer, error) {
	level, err := config.ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	toFile := strings.TrimSpace(cfg.File) != ""
	if toFile {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w, closer = f, f
	}

	return slog.New(newHandler(w, cfg.Format, level, toFile)).With("app", appName), closer, nil
}

func newHandler(w io.Writer, format string, level slog.Level, noColor bool) slog.Handler {
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    noColor,
	})
}
