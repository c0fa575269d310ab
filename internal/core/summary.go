package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// CashPolicy decides where a day's starting cash comes from.
type CashPolicy string

const (
	// CashReset starts every day from zero.
	CashReset CashPolicy = "reset"
	// CashCarry starts every day from the previous recorded day's ending cash.
	CashCarry CashPolicy = "carry"
)

// ParseCashPolicy validates a configured policy name.
func ParseCashPolicy(s string) (CashPolicy, error) {
	switch p := CashPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case CashReset, CashCarry:
		return p, nil
	case "":
		return CashReset, nil
	default:
		return "", fmt.Errorf("unknown cash policy %q", s)
	}
}

type (
	// Day is the reconciled view of one civil date. Every field except Date,
	// Income and Ref is recomputed from the expense rows on each read.
	Day struct {
		Ref           string
		Date          string
		Income        decimal.Decimal
		IncomeSet     bool
		TotalExpense  decimal.Decimal
		ReasonSummary string
		CashStart     decimal.Decimal
		CashEnd       decimal.Decimal
		Expenses      []ExpenseRow
	}

	// MonthSummary is the monthly close for one YYYY-MM key.
	MonthSummary struct {
		Month             string
		TotalIncome       decimal.Decimal
		TotalExpense      decimal.Decimal
		TransactionsCount int
		TopExpense        *ExpenseRow
		Days              []Day
	}
)

// ReasonSummary joins expense reasons the way the summary sheet shows them.
func ReasonSummary(expenses []ExpenseRow) string {
	parts := make([]string, 0, len(expenses))
	for _, e := range expenses {
		if r := e.Reason(); r != "" {
			parts = append(parts, r)
		}
	}
	return strings.Join(parts, ", ")
}

// Reconcile derives every date present in the snapshot, oldest first.
func Reconcile(s Snapshot, policy CashPolicy) []Day {
	byDate := make(map[string][]ExpenseRow)
	for _, e := range s.Expenses {
		byDate[e.Date] = append(byDate[e.Date], e)
	}

	dates := s.Dates()
	days := make([]Day, 0, len(dates))
	carried := decimal.Zero
	for i := len(dates) - 1; i >= 0; i-- {
		d := buildDay(s, dates[i], byDate[dates[i]], policy, carried)
		carried = d.CashEnd
		days = append(days, d)
	}
	return days
}

// ReconcileDay derives a single date. A date with no rows yields an empty
// day whose starting cash still honours the policy.
func ReconcileDay(s Snapshot, date string, policy CashPolicy) Day {
	carried := decimal.Zero
	for _, d := range Reconcile(s, policy) {
		if d.Date == date {
			return d
		}
		if d.Date > date {
			break
		}
		carried = d.CashEnd
	}
	return buildDay(s, date, nil, policy, carried)
}

func buildDay(s Snapshot, date string, expenses []ExpenseRow, policy CashPolicy, carried decimal.Decimal) Day {
	day := Day{Date: date, Expenses: expenses}
	if row, ok := s.FindSummary(date); ok {
		day.Ref = row.Ref
		day.Income = row.Income
		day.IncomeSet = row.IncomeSet()
	}
	for _, e := range expenses {
		day.TotalExpense = day.TotalExpense.Add(e.Amount)
	}
	day.ReasonSummary = ReasonSummary(expenses)
	if policy == CashCarry {
		day.CashStart = carried
	}
	day.CashEnd = day.CashStart.Add(day.Income).Sub(day.TotalExpense)
	return day
}

// Month aggregates the days whose date starts with month. Days are returned
// oldest first and the top expense is the first largest one in that order.
func Month(s Snapshot, month string, policy CashPolicy) MonthSummary {
	out := MonthSummary{Month: month, Days: []Day{}}
	prefix := month + "-"
	for _, d := range Reconcile(s, policy) {
		if !strings.HasPrefix(d.Date, prefix) {
			continue
		}
		out.Days = append(out.Days, d)
		out.TotalIncome = out.TotalIncome.Add(d.Income)
		out.TotalExpense = out.TotalExpense.Add(d.TotalExpense)
		out.TransactionsCount += len(d.Expenses)
		for i := range d.Expenses {
			e := d.Expenses[i]
			if out.TopExpense == nil || e.Amount.GreaterThan(out.TopExpense.Amount) {
				out.TopExpense = &e
			}
		}
	}
	return out
}
