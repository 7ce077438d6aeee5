package fields

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTime(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"08:00", "08:00", true},
		{" 14:30 ", "14:30", true},
		{"9:5", "09:05", true},
		{"7:45", "07:45", true},
		{"", "00:00", false},
		{"   ", "00:00", false},
		{"24:00", "00:00", false},
		{"12:60", "00:00", false},
		{"ab:cd", "00:00", false},
		{"1230", "00:00", false},
		{"1:2:3", "00:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ValidateTime(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.valid, ok)
		})
	}
}

func TestDepartureTimeNeverCrossesMidnight(t *testing.T) {
	assert.Equal(t, "09:00", DepartureTime("08:00", 60))
	assert.Equal(t, "08:01", DepartureTime("08:00", 1))
	assert.Equal(t, "23:59", DepartureTime("23:30", 60))
	assert.Equal(t, "23:59", DepartureTime("23:59", 1))
	assert.Equal(t, "23:59", DepartureTime("22:59", 60))
	assert.Equal(t, "01:00", DepartureTime("", 60), "malformed input starts from 00:00")

	// Exhaustive check over every minute of the day for a few offsets.
	for _, offset := range []int{1, 16, 30, 60, 180} {
		for m := 0; m < 24*60; m++ {
			in := formatMinutes(m)
			got := DepartureTime(in, offset)
			if m+offset >= 24*60 {
				require.Equal(t, LastMinute, got, "offset %d from %s", offset, in)
				continue
			}
			require.Equal(t, formatMinutes(m+offset), got, "offset %d from %s", offset, in)
		}
	}
}

func TestAdjustUnloadArrival(t *testing.T) {
	assert.Equal(t, "10:16", AdjustUnloadArrival("10:05", "10:00"))
	assert.Equal(t, "10:16", AdjustUnloadArrival("10:15", "10:00"))
	assert.Equal(t, "10:16", AdjustUnloadArrival("09:00", "10:00"))
	assert.Equal(t, "10:16", AdjustUnloadArrival("10:16", "10:00"))
	assert.Equal(t, "14:00", AdjustUnloadArrival("14:00", "10:00"))
	assert.Equal(t, "23:59", AdjustUnloadArrival("23:50", "23:50"))
}

func TestShiftDate(t *testing.T) {
	got, err := ShiftDate("28/02/2024", 1)
	require.NoError(t, err)
	assert.Equal(t, "29/02/2024", got)

	got, err = ShiftDate("30/12/2024", 5)
	require.NoError(t, err)
	assert.Equal(t, "04/01/2025", got)

	_, err = ShiftDate("2024-01-01", 1)
	assert.Error(t, err)
	_, err = ShiftDate("", 1)
	assert.Error(t, err)
}

func TestParseDateAcceptsUnpaddedInput(t *testing.T) {
	d, err := ParseDate("1/3/2025")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), d)
	assert.Equal(t, "01/03/2025", FormatDate(d))

	got, err := ShiftDate("9/12/2024", 1)
	require.NoError(t, err)
	assert.Equal(t, "10/12/2024", got)

	assert.True(t, ValidDate("01/03/2025"))
	assert.False(t, ValidDate("32/1/2025"))
}

func TestAfterComparesCalendarDays(t *testing.T) {
	day := time.Date(2025, 3, 10, 23, 0, 0, 0, time.Local)
	same := time.Date(2025, 3, 10, 0, 1, 0, 0, time.UTC)
	next := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	assert.False(t, After(same, day))
	assert.True(t, After(next, day))
	assert.False(t, After(day, next))
}
