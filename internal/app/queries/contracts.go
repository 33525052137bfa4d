package queries

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Query is a read of calendar or pricing state, keyed for bus routing.
type Query interface {
	Key() string
}

type Handler[Q Query, R any] interface {
	Handle(ctx context.Context, query Q) (R, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[Q Query, R any] func(ctx context.Context, query Q) (R, error)

func (f HandlerFunc[Q, R]) Handle(ctx context.Context, query Q) (R, error) {
	return f(ctx, query)
}

// Bus answers queries. Reads never touch the outbox or the idempotency
// store; the query pipeline only validates.
type Bus interface {
	Ask(ctx context.Context, query Query) (any, error)
}

var (
	ErrHandlerNotFound = errors.New("queries: handler not found")
	ErrInvalidQuery    = errors.New("queries: invalid query for handler")
	ErrResultType      = errors.New("queries: result type mismatch")
	ErrNilBus          = errors.New("queries: nil bus")
)

// Ask is the typed counterpart of Bus.Ask.
func Ask[Q Query, R any](ctx context.Context, bus Bus, query Q) (R, error) {
	var out R
	if bus == nil {
		return out, ErrNilBus
	}
	res, err := bus.Ask(ctx, query)
	switch {
	case err != nil:
		return out, err
	case res == nil:
		return out, nil
	}
	typed, ok := res.(R)
	if !ok {
		return out, errors.Wrapf(ErrResultType, "%s: got %T", query.Key(), res)
	}
	return typed, nil
}
