// Package logging builds the process logger. Fields tagged `masq:"secret"` are
// redacted whatever the output format.
package logging

import (
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/m-mizutani/clog"
	"github.com/m-mizutani/clog/hooks"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/masq"

	apperrors "github-stats-harvester/internal/errors"
)

var levelMap = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// New returns a logger writing to w. format is "json" or "text"; level is one of
// debug, info, warn or error.
func New(format, level string, w io.Writer) (*slog.Logger, error) {
	filter := masq.New(
		// Mask value with `masq:"secret"` tag
		masq.WithTag("secret"),
	)

	lvl, ok := levelMap[level]
	if !ok {
		return nil, goerr.Wrap(&apperrors.ConfigError{Field: "LOG_LEVEL", Reason: "must be debug, info, warn or error"},
			"invalid log level", goerr.V("value", level))
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = clog.New(
			clog.WithWriter(w),
			clog.WithLevel(lvl),
			clog.WithColorMap(&clog.ColorMap{
				Level: map[slog.Level]*color.Color{
					slog.LevelDebug: color.New(color.FgGreen, color.Bold),
					slog.LevelInfo:  color.New(color.FgCyan, color.Bold),
					slog.LevelWarn:  color.New(color.FgYellow, color.Bold),
					slog.LevelError: color.New(color.FgRed, color.Bold),
				},
				LevelDefault: color.New(color.FgBlue, color.Bold),
				Time:         color.New(color.FgWhite),
				Message:      color.New(color.FgHiWhite),
				AttrKey:      color.New(color.FgHiCyan),
				AttrValue:    color.New(color.FgHiWhite),
			}),
			clog.WithAttrHook(hooks.GoErr()),
			clog.WithReplaceAttr(filter),
		)

	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       lvl,
			ReplaceAttr: filter,
		})

	default:
		return nil, goerr.Wrap(&apperrors.ConfigError{Field: "LOG_FORMAT", Reason: "must be json or text"},
			"invalid log format", goerr.V("value", format))
	}

	return slog.New(handler), nil
}
