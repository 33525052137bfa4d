package middleware

import (
	"context"
	"log/slog"
	"time"

	"rentalspot/internal/app/commands"
)

// CommandLogging logs every dispatched command with its outcome and latency.
func CommandLogging(logger *slog.Logger) CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := next.Dispatch(ctx, cmd)
			attrs := []any{
				slog.String("command", cmd.Key()),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.WarnContext(ctx, "command failed", append(attrs, slog.String("error", err.Error()))...)
				return nil, err
			}
			logger.DebugContext(ctx, "command handled", attrs...)
			return res, nil
		})
	}
}
