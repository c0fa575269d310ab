package core

import (
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type (
	// SummaryRow is one row of the summary table. Only Date, Income and
	// CreatedAt are authoritative; the remaining columns are a cache of
	// values derived from the expense rows.
	SummaryRow struct {
		Ref           string
		Date          string
		Income        decimal.Decimal
		IncomePresent bool
		TotalExpense  decimal.Decimal
		ReasonSummary string
		CreatedAt     string
		CashStart     decimal.Decimal
		CashEnd       decimal.Decimal
	}

	// ExpenseRow is a single immutable spending transaction.
	ExpenseRow struct {
		Ref       string
		Date      string
		Amount    decimal.Decimal
		Category  Category
		Detail    string
		Timestamp string
	}

	// Snapshot is a point-in-time read of both tables in store order.
	Snapshot struct {
		Summaries []SummaryRow
		Expenses  []ExpenseRow
	}

	// ExpenseInput carries an expense as submitted by a client before
	// categorisation.
	ExpenseInput struct {
		Amount   decimal.Decimal
		Category string
		Detail   string
		Reason   string
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrMissingCategory  = errors.New("amount and category required")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrIncomeAlreadySet = errors.New("income already set")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
)

// IncomeSet reports whether income was recorded for the row. A stored zero
// cannot be told apart from an empty cell and counts as unset.
func (r SummaryRow) IncomeSet() bool {
	return r.IncomePresent && !r.Income.IsZero()
}

// Reason is the display string persisted in legacy layouts and returned to
// clients: the category, optionally followed by " - detail".
func (e ExpenseRow) Reason() string {
	if e.Detail == "" {
		return string(e.Category)
	}
	return string(e.Category) + " - " + e.Detail
}

// Resolve turns client input into a categorised expense for date. An
// explicit category name wins; free text in either field is classified.
func (in ExpenseInput) Resolve(date, timestamp string) (ExpenseRow, error) {
	if err := ValidateDate(date); err != nil {
		return ExpenseRow{}, err
	}
	category := strings.TrimSpace(in.Category)
	detail := strings.TrimSpace(in.Detail)
	reason := strings.TrimSpace(in.Reason)

	var cat Category
	switch {
	case category != "":
		if c, ok := ParseCategory(category); ok {
			cat = c
		} else {
			cat = Classify(category)
			if detail == "" {
				detail = category
			}
		}
	case reason != "":
		cat = Classify(reason)
		if detail == "" && !strings.EqualFold(reason, string(cat)) {
			detail = reason
		}
	default:
		return ExpenseRow{}, ErrMissingCategory
	}

	return ExpenseRow{
		Date:      date,
		Amount:    in.Amount,
		Category:  cat,
		Detail:    detail,
		Timestamp: timestamp,
	}, nil
}

// FindSummary returns the first summary row for date in store order.
func (s Snapshot) FindSummary(date string) (SummaryRow, bool) {
	for _, r := range s.Summaries {
		if r.Date == date {
			return r, true
		}
	}
	return SummaryRow{}, false
}

// ExpensesOn returns the expense rows for date in insertion order.
func (s Snapshot) ExpensesOn(date string) []ExpenseRow {
	var out []ExpenseRow
	for _, e := range s.Expenses {
		if e.Date == date {
			out = append(out, e)
		}
	}
	return out
}

// Dates returns every non-empty date present in either table, most recent
// first.
func (s Snapshot) Dates() []string {
	seen := make(map[string]struct{}, len(s.Summaries))
	out := make([]string, 0, len(s.Summaries))
	add := func(d string) {
		if d == "" {
			return
		}
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	for _, r := range s.Summaries {
		add(r.Date)
	}
	for _, e := range s.Expenses {
		add(e.Date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}
