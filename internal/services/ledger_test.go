package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kasharian/internal/auth"
	"kasharian/internal/core"
	"kasharian/internal/sheets/memory"
)

func at(ts string) core.Clock {
	t, _ := time.ParseInLocation(core.TimestampLayout, ts, core.Jakarta)
	return func() time.Time { return t }
}

func amount(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newLedger(store *memory.Store) *Ledger {
	return NewLedger(store, LedgerOptions{
		Clock:   at("2025-09-06 10:15:00"),
		IsAdmin: func(id auth.Identity) bool { return id.Username == "admin" },
	})
}

func countSummaries(t *testing.T, store *memory.Store, date string) int {
	t.Helper()
	snap, err := store.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	n := 0
	for _, r := range snap.Summaries {
		if r.Date == date {
			n++
		}
	}
	return n
}

func TestGetOrCreateDayIsIdempotent(t *testing.T) {
	store := memory.New()
	l := newLedger(store)
	ctx := context.Background()

	first, err := l.GetOrCreateDay(ctx, "2025-09-06")
	if err != nil {
		t.Fatalf("GetOrCreateDay: %v", err)
	}
	second, err := l.GetOrCreateDay(ctx, "2025-09-06")
	if err != nil {
		t.Fatalf("GetOrCreateDay: %v", err)
	}

	if first.Ref == "" || first.Ref != second.Ref {
		t.Fatalf("refs differ: %q vs %q", first.Ref, second.Ref)
	}
	if first.IncomeSet || !first.CashStart.IsZero() || !first.TotalExpense.IsZero() {
		t.Fatalf("fresh day not empty: %+v", first)
	}
	if n := countSummaries(t, store, "2025-09-06"); n != 1 {
		t.Fatalf("summary rows = %d, want 1", n)
	}

	snap, _ := store.Snapshot(ctx)
	if snap.Summaries[0].CreatedAt != "2025-09-06 10:15:00" {
		t.Fatalf("createdAt = %q", snap.Summaries[0].CreatedAt)
	}
}

func TestGetOrCreateDayConcurrent(t *testing.T) {
	store := memory.New()
	l := newLedger(store)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.GetOrCreateDay(context.Background(), "2025-09-06"); err != nil {
				t.Errorf("GetOrCreateDay: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := countSummaries(t, store, "2025-09-06"); n != 1 {
		t.Fatalf("summary rows = %d, want 1", n)
	}
}

func TestGetOrCreateDayRejectsBadDate(t *testing.T) {
	l := newLedger(memory.New())
	if _, err := l.GetOrCreateDay(context.Background(), "2025-13-01"); !errors.Is(err, core.ErrInvalidDate) {
		t.Fatalf("err = %v, want ErrInvalidDate", err)
	}
}

func TestRecordIncomeTwiceConflicts(t *testing.T) {
	store := memory.New()
	l := newLedger(store)
	ctx := context.Background()

	if err := l.RecordIncome(ctx, "2025-09-06", amount(100000)); err != nil {
		t.Fatalf("RecordIncome: %v", err)
	}
	if err := l.RecordIncome(ctx, "2025-09-06", amount(50000)); !errors.Is(err, core.ErrIncomeAlreadySet) {
		t.Fatalf("second RecordIncome = %v, want ErrIncomeAlreadySet", err)
	}

	day, err := l.GetOrCreateDay(ctx, "2025-09-06")
	if err != nil {
		t.Fatalf("GetOrCreateDay: %v", err)
	}
	if !day.IncomeSet || !day.Income.Equal(amount(100000)) || !day.CashEnd.Equal(amount(100000)) {
		t.Fatalf("day = %+v", day)
	}
}

func TestZeroIncomeCountsAsUnset(t *testing.T) {
	store := memory.New()
	store.Seed([]core.SummaryRow{
		{Date: "2025-09-06", Income: decimal.Zero, IncomePresent: true},
		{Date: "2025-09-07"},
	}, nil)
	l := newLedger(store)
	ctx := context.Background()

	for _, date := range []string{"2025-09-06", "2025-09-07"} {
		day, err := l.GetOrCreateDay(ctx, date)
		if err != nil {
			t.Fatalf("GetOrCreateDay(%s): %v", date, err)
		}
		if day.IncomeSet {
			t.Fatalf("%s: IncomeSet = true for zero/absent income", date)
		}
		if err := l.RecordIncome(ctx, date, amount(25000)); err != nil {
			t.Fatalf("RecordIncome(%s): %v", date, err)
		}
	}
}

func TestRecordExpenseRoundTrip(t *testing.T) {
	store := memory.New()
	l := newLedger(store)
	ctx := context.Background()

	if err := l.RecordIncome(ctx, "2025-09-06", amount(100000)); err != nil {
		t.Fatalf("RecordIncome: %v", err)
	}
	e, err := l.RecordExpense(ctx, "2025-09-06", core.ExpenseInput{
		Amount:   decimal.RequireFromString("15000.5"),
		Category: "makan",
		Detail:   "nasi padang",
	})
	if err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	if e.Ref == "" || e.Category != core.Makan || e.Timestamp != "2025-09-06 10:15:00" {
		t.Fatalf("expense = %+v", e)
	}
	if _, err := l.RecordExpense(ctx, "2025-09-06", core.ExpenseInput{Amount: amount(12000), Reason: "kopi susu"}); err != nil {
		t.Fatalf("RecordExpense reason: %v", err)
	}

	day, err := l.GetOrCreateDay(ctx, "2025-09-06")
	if err != nil {
		t.Fatalf("GetOrCreateDay: %v", err)
	}
	if len(day.Expenses) != 2 {
		t.Fatalf("expenses = %+v", day.Expenses)
	}
	got := day.Expenses[0]
	if !got.Amount.Equal(decimal.RequireFromString("15000.5")) || got.Category != core.Makan || got.Detail != "nasi padang" {
		t.Fatalf("round trip lost data: %+v", got)
	}
	if day.Expenses[1].Category != core.Minum || day.Expenses[1].Detail != "kopi susu" {
		t.Fatalf("classified expense = %+v", day.Expenses[1])
	}
	if !day.TotalExpense.Equal(decimal.RequireFromString("27000.5")) || !day.CashEnd.Equal(decimal.RequireFromString("72999.5")) {
		t.Fatalf("totals: expense=%s cashEnd=%s", day.TotalExpense, day.CashEnd)
	}

	// Cached columns on the stored row follow the expense rows.
	snap, _ := store.Snapshot(ctx)
	row, _ := snap.FindSummary("2025-09-06")
	if !row.TotalExpense.Equal(day.TotalExpense) || row.ReasonSummary != "Makan - nasi padang, Minum - kopi susu" {
		t.Fatalf("stored row not refreshed: %+v", row)
	}
}

func TestRecordExpenseCreatesDay(t *testing.T) {
	store := memory.New()
	l := newLedger(store)

	if _, err := l.RecordExpense(context.Background(), "2025-09-06", core.ExpenseInput{Amount: amount(5000), Reason: "parkir"}); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	if n := countSummaries(t, store, "2025-09-06"); n != 1 {
		t.Fatalf("summary rows = %d, want 1", n)
	}
}

func TestRecordExpenseValidatesBeforeWriting(t *testing.T) {
	store := memory.New()
	l := newLedger(store)

	_, err := l.RecordExpense(context.Background(), "2025-09-06", core.ExpenseInput{Amount: amount(5000)})
	if !errors.Is(err, core.ErrMissingCategory) {
		t.Fatalf("err = %v, want ErrMissingCategory", err)
	}
	if n := countSummaries(t, store, "2025-09-06"); n != 0 {
		t.Fatalf("rejected expense created %d summary rows", n)
	}
}

func TestResetRequiresAdmin(t *testing.T) {
	store := memory.New()
	l := newLedger(store)
	ctx := context.Background()

	if err := l.RecordIncome(ctx, "2025-09-06", amount(100000)); err != nil {
		t.Fatalf("RecordIncome: %v", err)
	}
	if err := l.Reset(ctx, auth.Identity{Username: "kasir"}); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("Reset as kasir = %v, want ErrForbidden", err)
	}
	if n := countSummaries(t, store, "2025-09-06"); n != 1 {
		t.Fatal("forbidden reset cleared data")
	}

	if err := l.Reset(ctx, auth.Identity{Username: "admin"}); err != nil {
		t.Fatalf("Reset as admin: %v", err)
	}
	snap, _ := store.Snapshot(ctx)
	if len(snap.Summaries) != 0 || len(snap.Expenses) != 0 {
		t.Fatalf("reset left rows: %+v", snap)
	}
}

type brokenStore struct {
	*memory.Store
}

func (brokenStore) Snapshot(context.Context) (core.Snapshot, error) {
	return core.Snapshot{}, errors.New("quota exceeded")
}

func TestSnapshotErrorsAreWrapped(t *testing.T) {
	l := NewLedger(brokenStore{memory.New()}, LedgerOptions{})

	err := l.Ping(context.Background())
	if err == nil || err.Error() != "read ledger snapshot: quota exceeded" {
		t.Fatalf("Ping = %v", err)
	}
}

func TestOnWriteHooks(t *testing.T) {
	l := newLedger(memory.New())
	calls := 0
	l.OnWrite(func() { calls++ })

	if _, err := l.RecordExpense(context.Background(), "2025-09-06", core.ExpenseInput{Amount: amount(1), Reason: "roko"}); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	if calls == 0 {
		t.Fatal("write hooks not called")
	}
}

func TestTodayUsesJakarta(t *testing.T) {
	// 18:30 UTC is already the next day in Jakarta.
	l := NewLedger(memory.New(), LedgerOptions{Clock: func() time.Time {
		return time.Date(2025, 9, 30, 18, 30, 0, 0, time.UTC)
	}})
	if l.Today() != "2025-10-01" || l.CurrentMonth() != "2025-10" {
		t.Fatalf("Today=%s CurrentMonth=%s", l.Today(), l.CurrentMonth())
	}
}
