package core

import (
	"errors"
	"testing"
	"time"
)

func TestDateKeyUsesJakarta(t *testing.T) {
	// 18:30 UTC is already the next day in UTC+7.
	ts := time.Date(2025, 9, 5, 18, 30, 0, 0, time.UTC)
	if got := DateKey(ts); got != "2025-09-06" {
		t.Fatalf("DateKey=%s", got)
	}
	if got := MonthKey(time.Date(2025, 8, 31, 17, 0, 0, 0, time.UTC)); got != "2025-09" {
		t.Fatalf("MonthKey=%s", got)
	}
	if got := Timestamp(ts); got != "2025-09-06 01:30:00" {
		t.Fatalf("Timestamp=%s", got)
	}
}

func TestNextMidnight(t *testing.T) {
	ts := time.Date(2025, 12, 31, 20, 0, 0, 0, Jakarta)
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, Jakarta)
	if got := NextMidnight(ts); !got.Equal(want) {
		t.Fatalf("NextMidnight=%v want %v", got, want)
	}
}

func TestValidateDate(t *testing.T) {
	for _, s := range []string{"2025-09-06", "2024-02-29"} {
		if err := ValidateDate(s); err != nil {
			t.Fatalf("ValidateDate(%q)=%v", s, err)
		}
	}
	for _, s := range []string{"", "2025-9-6", "2025-02-30", "06-09-2025", "2025-09-06T00:00"} {
		if err := ValidateDate(s); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("ValidateDate(%q) expected ErrInvalidDate, got %v", s, err)
		}
	}
}

func TestNormalizeMonth(t *testing.T) {
	got, err := NormalizeMonth("2025-09-15")
	if err != nil || got != "2025-09" {
		t.Fatalf("truncation: %q %v", got, err)
	}
	for _, s := range []string{"", "2025", "2025-13", "abcd-ef", "2025/09"} {
		if _, err := NormalizeMonth(s); !errors.Is(err, ErrInvalidMonth) {
			t.Fatalf("NormalizeMonth(%q) expected ErrInvalidMonth, got %v", s, err)
		}
	}
}
