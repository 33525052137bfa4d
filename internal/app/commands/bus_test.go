package commands_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentalspot/internal/app/commands"
)

type closeDays struct{ Days int }

func (closeDays) Key() string { return "test.close_days" }

type reopenDays struct{}

func (reopenDays) Key() string { return "test.reopen_days" }

func TestDispatchReturnsTypedResult(t *testing.T) {
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler[closeDays, int](bus, commands.HandlerFunc[closeDays, int](func(_ context.Context, cmd closeDays) (int, error) {
		return cmd.Days * 2, nil
	}))

	got, err := commands.Dispatch[closeDays, int](context.Background(), bus, closeDays{Days: 3})
	require.NoError(t, err)
	assert.Equal(t, 6, got)
}

func TestDispatchUnknownKey(t *testing.T) {
	bus := commands.NewInMemoryBus()

	_, err := commands.Dispatch[reopenDays, int](context.Background(), bus, reopenDays{})
	require.ErrorIs(t, err, commands.ErrHandlerNotFound)
	assert.Contains(t, err.Error(), "test.reopen_days")
}

func TestDispatchResultTypeMismatchNamesCommand(t *testing.T) {
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler[closeDays, string](bus, commands.HandlerFunc[closeDays, string](func(context.Context, closeDays) (string, error) {
		return "closed", nil
	}))

	_, err := commands.Dispatch[closeDays, int](context.Background(), bus, closeDays{})
	require.ErrorIs(t, err, commands.ErrResultType)
	assert.Contains(t, err.Error(), "test.close_days")
}

func TestDispatchNilBusAndHandlerErrors(t *testing.T) {
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler[closeDays, *int](bus, commands.HandlerFunc[closeDays, *int](func(context.Context, closeDays) (*int, error) {
		return nil, nil
	}))
	boom := errors.New("boom")
	commands.RegisterHandler[reopenDays, int](bus, commands.HandlerFunc[reopenDays, int](func(context.Context, reopenDays) (int, error) {
		return 0, boom
	}))

	got, err := commands.Dispatch[closeDays, *int](context.Background(), bus, closeDays{})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = commands.Dispatch[closeDays, *int](context.Background(), nil, closeDays{})
	require.ErrorIs(t, err, commands.ErrNilBus)

	_, err = commands.Dispatch[reopenDays, int](context.Background(), bus, reopenDays{})
	require.ErrorIs(t, err, boom)
}
