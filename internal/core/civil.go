package core

import (
	"time"
)

// Jakarta is the fixed UTC+7 zone every ledger date is computed in.
var Jakarta = time.FixedZone("WIB", 7*60*60)

const (
	DateLayout      = "2006-01-02"
	MonthLayout     = "2006-01"
	TimestampLayout = "2006-01-02 15:04:05"
)

// Clock returns the current instant. Services take one so tests can pin
// "today".
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time { return time.Now() }

// DateKey formats t as the civil date in Jakarta.
func DateKey(t time.Time) string {
	return t.In(Jakarta).Format(DateLayout)
}

// MonthKey formats t as the civil month in Jakarta.
func MonthKey(t time.Time) string {
	return t.In(Jakarta).Format(MonthLayout)
}

// Timestamp formats t as a Jakarta local wall-clock timestamp.
func Timestamp(t time.Time) string {
	return t.In(Jakarta).Format(TimestampLayout)
}

// NextMidnight returns the start of the Jakarta day after t.
func NextMidnight(t time.Time) time.Time {
	local := t.In(Jakarta)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, Jakarta)
}

// ValidateDate checks that s is a YYYY-MM-DD civil date.
func ValidateDate(s string) error {
	if len(s) != len(DateLayout) {
		return ErrInvalidDate
	}
	if _, err := time.ParseInLocation(DateLayout, s, Jakarta); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// NormalizeMonth truncates s to seven characters and checks that the result
// is a YYYY-MM month key.
func NormalizeMonth(s string) (string, error) {
	if len(s) > len(MonthLayout) {
		s = s[:len(MonthLayout)]
	}
	if len(s) != len(MonthLayout) {
		return "", ErrInvalidMonth
	}
	if _, err := time.ParseInLocation(MonthLayout, s, Jakarta); err != nil {
		return "", ErrInvalidMonth
	}
	return s, nil
}
