// Package core holds the ledger domain: amounts, civil dates, categories and
// the derivation of daily and monthly views from raw rows.
package core

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var nonNumeric = regexp.MustCompile(`[^\d,.\-]`)

// Amount bounds. A value like 1e50000000 parses fine but expands to
// millions of digits on every String or Add.
const (
	maxAmountLen       = 40
	maxAmountIntDigits = 15
	maxAmountScale     = 4
)

// ParseAmount parses a client supplied amount. Empty, malformed,
// non-finite and out-of-range values are rejected with ErrInvalidAmount,
// as are amounts with more than four decimal places. Sign is not checked.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxAmountLen {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return clientAmount(d)
}

// CheckAmount rejects values with more than fifteen integer digits or an
// exponent no plain amount would have. Zero is returned normalised.
func CheckAmount(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsZero() {
		return decimal.Zero, nil
	}
	exp := d.Exponent()
	if exp > maxAmountIntDigits || exp < -maxAmountLen {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.NumDigits()+int(exp) > maxAmountIntDigits {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

func clientAmount(d decimal.Decimal) (decimal.Decimal, error) {
	d, err := CheckAmount(d)
	if err != nil {
		return decimal.Zero, err
	}
	if d.Exponent() < -maxAmountScale && !d.Equal(d.Truncate(maxAmountScale)) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// AmountFromJSON accepts the value of a JSON "amount" field decoded with
// UseNumber: a number or a numeric string.
func AmountFromJSON(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case json.Number:
		return ParseAmount(x.String())
	case string:
		return ParseAmount(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, ErrInvalidAmount
		}
		return clientAmount(decimal.NewFromFloat(x))
	default:
		return decimal.Zero, ErrInvalidAmount
	}
}

// ParseStoredAmount reads a cell written by a human or by an older version
// of the app. Text cells follow the Indonesian convention where '.' groups
// thousands and ',' marks decimals. Anything unparseable or out of range
// counts as zero, and float noise is rounded to four places.
// The boolean reports whether the cell held anything at all.
func ParseStoredAmount(v any) (decimal.Decimal, bool) {
	d, present := parseStoredCell(v)
	if !present {
		return decimal.Zero, false
	}
	d, err := CheckAmount(d)
	if err != nil {
		return decimal.Zero, true
	}
	if d.Exponent() < -maxAmountScale {
		d = d.Round(maxAmountScale)
	}
	return d, true
}

func parseStoredCell(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, false
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, true
		}
		return decimal.NewFromFloat(x), true
	case int64:
		return decimal.NewFromInt(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero, true
		}
		return d, true
	case string:
		if strings.TrimSpace(x) == "" {
			return decimal.Zero, false
		}
		s := nonNumeric.ReplaceAllString(x, "")
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, true
		}
		return d, true
	default:
		return decimal.Zero, true
	}
}
