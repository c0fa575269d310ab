package google

import (
	"fmt"
	"strconv"
	"strings"

	"kasharian/internal/core"
)

// firstDataRow is the sheet row of values[0]; row 1 holds headers.
const firstDataRow = 2

// parseSummaryRows converts summary!A2:G values into rows. Refs are the
// A1 address of column A so writers can target the same row later.
func parseSummaryRows(sheet string, values [][]interface{}) []core.SummaryRow {
	out := make([]core.SummaryRow, 0, len(values))
	for i, row := range values {
		date := cellString(row, 0)
		if date == "" {
			continue
		}
		income, present := core.ParseStoredAmount(cell(row, 1))
		total, _ := core.ParseStoredAmount(cell(row, 2))
		cashStart, _ := core.ParseStoredAmount(cell(row, 5))
		cashEnd, _ := core.ParseStoredAmount(cell(row, 6))
		out = append(out, core.SummaryRow{
			Ref:           rowRef(sheet, i+firstDataRow),
			Date:          date,
			Income:        income,
			IncomePresent: present,
			TotalExpense:  total,
			ReasonSummary: cellString(row, 3),
			CreatedAt:     cellString(row, 4),
			CashStart:     cashStart,
			CashEnd:       cashEnd,
		})
	}
	return out
}

// parseExpenseRows converts expenses!A2:E values into rows. Rows with five
// cells use the date, amount, category, detail, timestamp layout; shorter
// rows are the older date, amount, reason, timestamp layout.
func parseExpenseRows(sheet string, values [][]interface{}) []core.ExpenseRow {
	out := make([]core.ExpenseRow, 0, len(values))
	for i, row := range values {
		date := cellString(row, 0)
		if date == "" {
			continue
		}
		amount, _ := core.ParseStoredAmount(cell(row, 1))
		e := core.ExpenseRow{
			Ref:    rowRef(sheet, i+firstDataRow),
			Date:   date,
			Amount: amount,
		}
		if len(row) >= 5 {
			e.Category, e.Detail = currentCategory(cellString(row, 2), cellString(row, 3))
			e.Timestamp = cellString(row, 4)
		} else {
			e.Category, e.Detail = legacyCategory(cellString(row, 2))
			e.Timestamp = cellString(row, 3)
		}
		out = append(out, e)
	}
	return out
}

func currentCategory(category, detail string) (core.Category, string) {
	if c, ok := core.ParseCategory(category); ok {
		return c, detail
	}
	if detail == "" {
		detail = category
	}
	return core.Classify(category), detail
}

// legacyCategory splits a stored reason. "Makan - soto" keeps its explicit
// category; anything else is classified and kept verbatim as the detail.
func legacyCategory(reason string) (core.Category, string) {
	if head, tail, ok := strings.Cut(reason, " - "); ok {
		if c, ok := core.ParseCategory(head); ok {
			return c, strings.TrimSpace(tail)
		}
	}
	cat := core.Classify(reason)
	if strings.EqualFold(strings.TrimSpace(reason), string(cat)) {
		return cat, ""
	}
	return cat, reason
}

func cell(row []interface{}, idx int) interface{} {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}

func cellString(row []interface{}, idx int) string {
	v := cell(row, idx)
	if v == nil {
		return ""
	}
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func rowRef(sheet string, row int) string {
	return fmt.Sprintf("%s!A%d", sheet, row)
}

// parseRowRef extracts the row number from a ref produced by rowRef or from
// an updatedRange such as "summary!A5:G5".
func parseRowRef(sheet, ref string) (int, error) {
	rest, ok := strings.CutPrefix(ref, sheet+"!")
	if !ok {
		if quoted, qok := strings.CutPrefix(ref, "'"+sheet+"'!"); qok {
			rest, ok = quoted, true
		}
	}
	if !ok {
		return 0, fmt.Errorf("row ref %q does not belong to sheet %q", ref, sheet)
	}
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.TrimLeft(rest, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	n, err := strconv.Atoi(rest)
	if err != nil || n < firstDataRow {
		return 0, fmt.Errorf("invalid row ref %q", ref)
	}
	return n, nil
}
