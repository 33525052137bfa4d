package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"rentalspot/internal/app/commands"
	"rentalspot/internal/pkg/clock"
)

// IdempotentCommand is implemented by commands that carry a caller key.
type IdempotentCommand interface {
	commands.Command
	IdempotencyKey() string
	// ResultPrototype returns a pointer of the handler's result type that
	// the cached payload decodes into.
	ResultPrototype() any
}

type IdempotencyRecord struct {
	Key        string
	Command    string
	Payload    []byte
	OccurredAt time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	Save(ctx context.Context, rec IdempotencyRecord) error
}

type ResultCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

type JSONResultCodec struct{}

func (JSONResultCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONResultCodec) Decode(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

var (
	errMissingPrototype = errors.New("middleware: idempotent command requires result prototype")
	ErrKeyReused        = errors.New("middleware: idempotency key reused for another command")
)

// Idempotency replays the stored result of a command whose key was already
// handled. Only successful results are stored, so a failed attempt can be
// retried under the same key.
func Idempotency(store IdempotencyStore, codec ResultCodec, clk clock.Clock) CommandMiddleware {
	if store == nil {
		panic("middleware: idempotency store required")
	}
	if codec == nil {
		codec = JSONResultCodec{}
	}
	clk = clock.OrReal(clk)
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			idCmd, ok := cmd.(IdempotentCommand)
			if !ok || idCmd.IdempotencyKey() == "" {
				return next.Dispatch(ctx, cmd)
			}
			key := idCmd.IdempotencyKey()
			rec, found, err := store.Get(ctx, key)
			if err != nil {
				return nil, errors.Wrap(err, "idempotency lookup")
			}
			if found {
				if rec.Command != "" && rec.Command != cmd.Key() {
					return nil, errors.Wrapf(ErrKeyReused, "%s", key)
				}
				proto := idCmd.ResultPrototype()
				if proto == nil {
					return nil, errMissingPrototype
				}
				if len(rec.Payload) > 0 {
					if err := codec.Decode(rec.Payload, proto); err != nil {
						return nil, errors.Wrap(err, "decode cached result")
					}
				}
				return proto, nil
			}

			result, err := next.Dispatch(ctx, cmd)
			if err != nil {
				return nil, err
			}
			record := IdempotencyRecord{Key: key, Command: cmd.Key(), OccurredAt: clk.Now()}
			if result != nil {
				payload, encErr := codec.Encode(result)
				if encErr != nil {
					return nil, errors.Wrap(encErr, "encode result")
				}
				record.Payload = payload
			}
			if err := store.Save(ctx, record); err != nil {
				return nil, errors.Wrap(err, "idempotency save")
			}
			return result, nil
		})
	}
}
