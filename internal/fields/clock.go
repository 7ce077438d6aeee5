package fields

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layouts used by the portal's text inputs.
const (
	DateLayout = "02/01/2006"
	TimeLayout = "15:04"

	// dateInput also accepts unpadded days and months such as "1/3/2025".
	dateInput = "2/1/2006"

	// DefaultTime replaces empty or malformed times.
	DefaultTime = "00:00"
	// LastMinute is the clamp for computed times that would cross midnight.
	LastMinute = "23:59"
)

// ValidateTime normalizes an HH:MM value. Loose forms such as "9:5" are
// zero-padded. Empty or malformed input yields (DefaultTime, false).
func ValidateTime(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultTime, false
	}
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t.Format(TimeLayout), true
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return DefaultTime, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return DefaultTime, false
	}
	return fmt.Sprintf("%02d:%02d", h, m), true
}

func minutesOf(s string) int {
	norm, _ := ValidateTime(s)
	t, _ := time.Parse(TimeLayout, norm)
	return t.Hour()*60 + t.Minute()
}

func formatMinutes(total int) string {
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// AddMinutes returns t plus the given minutes. A result that would cross
// midnight is clamped to LastMinute on the same day. Malformed input is
// treated as DefaultTime.
func AddMinutes(t string, minutes int) string {
	total := minutesOf(t) + minutes
	if total >= 24*60 {
		return LastMinute
	}
	if total < 0 {
		return DefaultTime
	}
	return formatMinutes(total)
}

// DepartureTime is the departure time for an arrival at t after a stay of
// the given minutes.
func DepartureTime(t string, minutes int) string {
	return AddMinutes(t, minutes)
}

// AdjustUnloadArrival keeps the unload arrival strictly more than 15
// minutes after the load departure. When it is not, the arrival moves to
// departure + 16 minutes.
func AdjustUnloadArrival(unload, loadDeparture string) string {
	u := minutesOf(unload)
	d := minutesOf(loadDeparture)
	if u <= d+15 {
		return AddMinutes(formatMinutes(d), 16)
	}
	return formatMinutes(u)
}

// ValidDate reports whether s is a DD/MM/YYYY date.
func ValidDate(s string) bool {
	_, err := ParseDate(s)
	return err == nil
}

// ParseDate parses a DD/MM/YYYY date. Single-digit days and months are
// accepted.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	t, err := time.Parse(dateInput, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders a date the way the portal expects.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ShiftDate adds days to a DD/MM/YYYY date.
func ShiftDate(s string, days int) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return FormatDate(t.AddDate(0, 0, days)), nil
}

// After reports whether date a falls on a later calendar day than b.
func After(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay > by
	}
	if am != bm {
		return am > bm
	}
	return ad > bd
}
