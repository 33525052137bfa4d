package commands

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Command is a write intent routed through the bus by its Key.
type Command interface {
	Key() string
}

// Handler applies one kind of command, for example a calendar patch or an
// override upsert, and returns its result.
type Handler[C Command, R any] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}

// HandlerFunc lets a plain function be registered as a Handler.
type HandlerFunc[C Command, R any] func(ctx context.Context, cmd C) (R, error)

func (f HandlerFunc[C, R]) Handle(ctx context.Context, cmd C) (R, error) {
	return f(ctx, cmd)
}

// Bus is the untyped entry point used by transports. Middleware wraps it,
// so a Dispatch may be validated, logged or replayed before reaching the
// registered handler.
type Bus interface {
	Dispatch(ctx context.Context, cmd Command) (any, error)
}

var (
	ErrHandlerNotFound = errors.New("commands: handler not found")
	ErrInvalidCommand  = errors.New("commands: invalid command for handler")
	ErrResultType      = errors.New("commands: result type mismatch")
	ErrNilBus          = errors.New("commands: nil bus")
)

// Dispatch sends cmd through bus and asserts the result type. A handler that
// returns nil yields the zero R.
func Dispatch[C Command, R any](ctx context.Context, bus Bus, cmd C) (R, error) {
	var out R
	if bus == nil {
		return out, ErrNilBus
	}
	res, err := bus.Dispatch(ctx, cmd)
	switch {
	case err != nil:
		return out, err
	case res == nil:
		return out, nil
	}
	typed, ok := res.(R)
	if !ok {
		return out, errors.Wrapf(ErrResultType, "%s: got %T", cmd.Key(), res)
	}
	return typed, nil
}
