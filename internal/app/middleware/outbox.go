package middleware

import (
	"context"

	"github.com/cockroachdb/errors"

	"rentalspot/internal/app/commands"
	"rentalspot/internal/app/outbox"
)

// OutboxFlush flushes the events a command recorded once its handler has
// returned without error. A failed command flushes nothing. A flush error
// is reported against the command key, with the handler result dropped.
func OutboxFlush(box outbox.Outbox) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := next.Dispatch(ctx, cmd)
			if err != nil {
				return nil, err
			}
			if flushErr := box.Flush(ctx); flushErr != nil {
				return nil, errors.Wrapf(flushErr, "flush events of %s", cmd.Key())
			}
			return res, nil
		})
	}
}
