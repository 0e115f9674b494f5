// Package errutil reports unexpected failures to the log and to Sentry.
package errutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
)

// InitSentry configures the global Sentry client. An empty DSN disables reporting.
func InitSentry(dsn, environment string, logger *slog.Logger) error {
	if dsn == "" {
		logger.Warn("Sentry is not configured")
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	}); err != nil {
		return goerr.Wrap(err, "failed to initialize sentry")
	}
	return nil
}

// HandleError logs err and sends it to Sentry with goerr values attached as extras.
// Extra args are appended to the log record.
func HandleError(ctx context.Context, logger *slog.Logger, msg string, err error, args ...any) {
	if err == nil {
		return
	}

	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		if goErr := goerr.Unwrap(err); goErr != nil {
			for k, v := range goErr.Values() {
				scope.SetExtra(fmt.Sprintf("%v", k), v)
			}
		}
	})
	evID := hub.CaptureException(err)

	attrs := append([]any{"error", err}, args...)
	if evID != nil {
		attrs = append(attrs, "sentry.EventID", *evID)
	}
	logger.ErrorContext(ctx, msg, attrs...)
}

// FromPanic converts a recovered value into an error.
func FromPanic(r any) error {
	if err, ok := r.(error); ok {
		return goerr.Wrap(err, "recovered from panic")
	}
	return goerr.New("recovered from panic", goerr.V("panic", fmt.Sprintf("%v", r)))
}
