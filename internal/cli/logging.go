package cli

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"

	"github.com/aponysus/courier/config"
)

// newLogger builds the process logger. Format json writes slog JSON lines to
// w; anything else gets the colored tint output.
func newLogger(cfg config.LoggingConfig, level slog.Level, w io.Writer) *slog.Logger {
	if strings.EqualFold(cfg.Format, config.FormatJSON) {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return stylelog.New(&tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
}
