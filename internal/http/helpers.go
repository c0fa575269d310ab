package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"kasharian/internal/core"
	applog "kasharian/internal/log"
)

var errBadBody = errors.New("invalid request body")

type (
	messageResponse struct {
		Message string `json:"message"`
	}

	expenseResponse struct {
		Date     string      `json:"date"`
		Amount   json.Number `json:"amount"`
		Reason   string      `json:"reason"`
		Ts       string      `json:"ts"`
		Category string      `json:"category"`
		Detail   string      `json:"detail"`
	}

	// todayResponse has a nullable income so the dashboard knows to show
	// the income form.
	todayResponse struct {
		Date         string            `json:"date"`
		Income       *json.Number      `json:"income"`
		IncomeSet    bool              `json:"incomeSet"`
		TotalExpense json.Number       `json:"totalExpense"`
		CashStart    json.Number       `json:"cashStart"`
		CashEnd      json.Number       `json:"cashEnd"`
		Expenses     []expenseResponse `json:"expenses"`
	}

	dayResponse struct {
		Date         string            `json:"date"`
		Income       json.Number       `json:"income"`
		TotalExpense json.Number       `json:"totalExpense"`
		CashStart    json.Number       `json:"cashStart"`
		CashEnd      json.Number       `json:"cashEnd"`
		Expenses     []expenseResponse `json:"expenses"`
	}

	monthResponse struct {
		Month             string           `json:"month"`
		TotalIncome       json.Number      `json:"totalIncome"`
		TotalExpense      json.Number      `json:"totalExpense"`
		TransactionsCount int              `json:"transactionsCount"`
		TopExpense        *expenseResponse `json:"topExpense"`
		Days              []dayResponse    `json:"days"`
	}
)

// number renders an amount as a bare JSON number.
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func newExpenseResponse(e core.ExpenseRow) expenseResponse {
	return expenseResponse{
		Date:     e.Date,
		Amount:   number(e.Amount),
		Reason:   e.Reason(),
		Ts:       e.Timestamp,
		Category: string(e.Category),
		Detail:   e.Detail,
	}
}

func newExpenseResponses(rows []core.ExpenseRow) []expenseResponse {
	out := make([]expenseResponse, 0, len(rows))
	for _, e := range rows {
		out = append(out, newExpenseResponse(e))
	}
	return out
}

func newTodayResponse(d core.Day) todayResponse {
	resp := todayResponse{
		Date:         d.Date,
		IncomeSet:    d.IncomeSet,
		TotalExpense: number(d.TotalExpense),
		CashStart:    number(d.CashStart),
		CashEnd:      number(d.CashEnd),
		Expenses:     newExpenseResponses(d.Expenses),
	}
	if d.IncomeSet {
		income := number(d.Income)
		resp.Income = &income
	}
	return resp
}

func newDayResponse(d core.Day) dayResponse {
	return dayResponse{
		Date:         d.Date,
		Income:       number(d.Income),
		TotalExpense: number(d.TotalExpense),
		CashStart:    number(d.CashStart),
		CashEnd:      number(d.CashEnd),
		Expenses:     newExpenseResponses(d.Expenses),
	}
}

func newDayResponses(days []core.Day) []dayResponse {
	out := make([]dayResponse, 0, len(days))
	for _, d := range days {
		out = append(out, newDayResponse(d))
	}
	return out
}

func newMonthResponse(m core.MonthSummary) monthResponse {
	resp := monthResponse{
		Month:             m.Month,
		TotalIncome:       number(m.TotalIncome),
		TotalExpense:      number(m.TotalExpense),
		TransactionsCount: m.TransactionsCount,
		Days:              newDayResponses(m.Days),
	}
	if m.TopExpense != nil {
		top := newExpenseResponse(*m.TopExpense)
		resp.TopExpense = &top
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// writeError maps domain errors to status codes. Anything unrecognised is
// logged and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, core.ErrForbidden):
		writeMessage(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, core.ErrIncomeAlreadySet):
		writeMessage(w, http.StatusConflict, core.ErrIncomeAlreadySet.Error())
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrMissingCategory),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, errBadBody):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		ctx := r.Context()
		applog.NewStructuredLogger(applog.FromContext(ctx)).
			LogError(ctx, "Request failed", err, operation, applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", "", ""))
		writeMessage(w, http.StatusInternalServerError, "server error")
	}
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
