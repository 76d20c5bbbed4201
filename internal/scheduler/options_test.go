package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClockTime(t *testing.T) {
	got, err := ParseClockTime("09:05")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 9, Minute: 5}, got)
	assert.Equal(t, "09:05", got.String())

	got, err = ParseClockTime("7:30")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 7, Minute: 30}, got)

	for _, bad := range []string{"", "24:00", "12:60", "12", "ab:cd", "12:5", "123:00"} {
		_, err := ParseClockTime(bad)
		assert.ErrorIs(t, err, ErrInvalidOption, bad)
	}
}

func TestClockTimeNext(t *testing.T) {
	at := ClockTime{Hour: 9, Minute: 0}
	morning := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), at.Next(morning))

	evening := time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), at.Next(evening))

	exact := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, exact, at.Next(exact))
}

func TestParseAccounts(t *testing.T) {
	got, err := ParseAccounts("all")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseAccounts("3, 1,3")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, got)
	assert.Equal(t, "3,1", FormatAccounts(got))
	assert.Equal(t, "all", FormatAccounts(nil))

	for _, bad := range []string{"1,x", "0", ",", "-2"} {
		_, err := ParseAccounts(bad)
		assert.ErrorIs(t, err, ErrInvalidOption, bad)
	}
}

func TestParseIntervalHours(t *testing.T) {
	d, err := ParseIntervalHours(1.5)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = ParseIntervalHours(0)
	assert.ErrorIs(t, err, ErrInvalidOption)
}
