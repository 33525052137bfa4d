package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentalspot/internal/pkg/clock"
)

func TestInLocationShiftsCalendarDay(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	base := clock.NewMockClock(time.Date(2025, 6, 30, 20, 0, 0, 0, time.UTC))

	now := clock.InLocation(base, tokyo).Now()

	assert.Equal(t, time.July, now.Month())
	assert.Equal(t, 1, now.Day())
	assert.True(t, now.Equal(base.Now()))
}

func TestInLocationNil(t *testing.T) {
	base := clock.NewMockClock(time.Date(2025, 6, 30, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, base.Now(), clock.InLocation(base, nil).Now())
}
