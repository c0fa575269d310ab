package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"kasharian/internal/core"
	ports "kasharian/internal/sheets"
)

const summaryRefPrefix = "mem:summary:"

var _ ports.Store = (*Store)(nil)

// Store keeps both tables in process memory. It mirrors the spreadsheet
// semantics, duplicates included, so it can stand in for it in tests.
type Store struct {
	mu        sync.Mutex
	summaries []core.SummaryRow
	expenses  []core.ExpenseRow
}

func New() *Store {
	return &Store{}
}

// Seed preloads rows, assigning refs in order.
func (s *Store) Seed(summaries []core.SummaryRow, expenses []core.ExpenseRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range summaries {
		r.Ref = summaryRefPrefix + strconv.Itoa(len(s.summaries)+1)
		s.summaries = append(s.summaries, r)
	}
	for _, e := range expenses {
		e.Ref = fmt.Sprintf("mem:expense:%d", len(s.expenses)+1)
		s.expenses = append(s.expenses, e)
	}
}

func (s *Store) Snapshot(_ context.Context) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.Snapshot{
		Summaries: append([]core.SummaryRow(nil), s.summaries...),
		Expenses:  append([]core.ExpenseRow(nil), s.expenses...),
	}, nil
}

func (s *Store) CreateSummary(_ context.Context, date, createdAt string) error {
	if err := core.ValidateDate(date); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, core.SummaryRow{
		Ref:       summaryRefPrefix + strconv.Itoa(len(s.summaries)+1),
		Date:      date,
		CreatedAt: createdAt,
	})
	return nil
}

func (s *Store) SetIncome(_ context.Context, ref string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.index(ref)
	if err != nil {
		return err
	}
	s.summaries[i].Income = amount
	s.summaries[i].IncomePresent = true
	return nil
}

func (s *Store) RefreshSummary(_ context.Context, day core.Day) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.index(day.Ref)
	if err != nil {
		return err
	}
	row := &s.summaries[i]
	row.TotalExpense = day.TotalExpense
	row.ReasonSummary = day.ReasonSummary
	row.CashStart = day.CashStart
	row.CashEnd = day.CashEnd
	return nil
}

func (s *Store) AppendExpense(_ context.Context, e core.ExpenseRow) (string, error) {
	if err := core.ValidateDate(e.Date); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Ref = fmt.Sprintf("mem:expense:%d", len(s.expenses)+1)
	s.expenses = append(s.expenses, e)
	return e.Ref, nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = nil
	s.expenses = nil
	return nil
}

func (s *Store) index(ref string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(ref, summaryRefPrefix))
	if err != nil || !strings.HasPrefix(ref, summaryRefPrefix) || n < 1 || n > len(s.summaries) {
		return 0, fmt.Errorf("unknown summary row %q", ref)
	}
	return n - 1, nil
}
