package middleware

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"rentalspot/internal/app/commands"
	"rentalspot/internal/app/queries"
	"rentalspot/internal/domain/calendar"
)

type Validator interface {
	Validate(ctx context.Context, message any) error
}

// StructValidator checks `validate` struct tags and then, when the message
// has one, its own Validate method. Failures are marked calendar.ErrValidation.
type StructValidator struct {
	v *validator.Validate
}

func NewStructValidator() *StructValidator {
	return &StructValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (s *StructValidator) Validate(ctx context.Context, message any) error {
	if err := s.v.StructCtx(ctx, message); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil
		}
		return errors.Mark(errors.Wrapf(err, "validate %T", message), calendar.ErrValidation)
	}
	if self, ok := message.(interface{ Validate() error }); ok {
		if err := self.Validate(); err != nil {
			return errors.Mark(err, calendar.ErrValidation)
		}
	}
	return nil
}

func Validation(v Validator) CommandMiddleware {
	if v == nil {
		panic("middleware: validator required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := v.Validate(ctx, cmd); err != nil {
				return nil, err
			}
			return next.Dispatch(ctx, cmd)
		})
	}
}

func QueryValidation(v Validator) QueryMiddleware {
	if v == nil {
		panic("middleware: validator required")
	}
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := v.Validate(ctx, q); err != nil {
				return nil, err
			}
			return next.Ask(ctx, q)
		})
	}
}
