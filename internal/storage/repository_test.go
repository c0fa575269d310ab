package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"kasharian/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "ledger.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRunMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	v1, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	v2, err := RunMigrations(path)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if v1 != 1 || v2 != 1 {
		t.Fatalf("versions: %d %d", v1, v2)
	}
}

func TestCreateSummaryIsUniquePerDate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for i := 0; i < 3; i++ {
		if err := repo.CreateSummary(ctx, "2025-09-06", "2025-09-06 08:00:00"); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	snap, err := repo.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(snap.Summaries))
	}
	row := snap.Summaries[0]
	if row.Ref != "1" || row.IncomePresent || !row.CashEnd.IsZero() {
		t.Fatalf("fresh row: %+v", row)
	}

	if err := repo.CreateSummary(ctx, "2025/09/06", ""); err == nil {
		t.Fatal("expected invalid date error")
	}
}

func TestSetIncomeOnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if err := repo.CreateSummary(ctx, "2025-09-06", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.SetIncome(ctx, "1", decimal.NewFromInt(100000)); err != nil {
		t.Fatalf("set income: %v", err)
	}
	err := repo.SetIncome(ctx, "1", decimal.NewFromInt(5))
	if !errors.Is(err, core.ErrIncomeAlreadySet) {
		t.Fatalf("expected ErrIncomeAlreadySet, got %v", err)
	}
	if err := repo.SetIncome(ctx, "42", decimal.NewFromInt(5)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.SetIncome(ctx, "summary!B2", decimal.NewFromInt(5)); err == nil {
		t.Fatal("expected ref error")
	}

	snap, _ := repo.Snapshot(ctx)
	if !snap.Summaries[0].Income.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("income overwritten: %+v", snap.Summaries[0])
	}
}

func TestSetIncomeAllowedAfterZero(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	_ = repo.CreateSummary(ctx, "2025-09-06", "")

	if err := repo.SetIncome(ctx, "1", decimal.Zero); err != nil {
		t.Fatalf("set zero: %v", err)
	}
	if err := repo.SetIncome(ctx, "1", decimal.NewFromInt(7)); err != nil {
		t.Fatalf("zero income should be replaceable: %v", err)
	}
}

func TestExpensesAndRefresh(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	_ = repo.CreateSummary(ctx, "2025-09-06", "")
	_ = repo.SetIncome(ctx, "1", decimal.NewFromInt(100000))

	ref, err := repo.AppendExpense(ctx, core.ExpenseRow{
		Date: "2025-09-06", Amount: decimal.RequireFromString("15000.5"),
		Category: core.Makan, Detail: "soto", Timestamp: "2025-09-06 12:00:00",
	})
	if err != nil || ref != "1" {
		t.Fatalf("append: ref=%q err=%v", ref, err)
	}
	if _, err := repo.AppendExpense(ctx, core.ExpenseRow{Date: "nope"}); err == nil {
		t.Fatal("expected invalid date error")
	}

	snap, _ := repo.Snapshot(ctx)
	day := core.ReconcileDay(snap, "2025-09-06", core.CashReset)
	if err := repo.RefreshSummary(ctx, day); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	snap, _ = repo.Snapshot(ctx)
	row := snap.Summaries[0]
	if !row.TotalExpense.Equal(decimal.RequireFromString("15000.5")) || row.ReasonSummary != "Makan - soto" {
		t.Fatalf("refreshed row: %+v", row)
	}
	if !row.CashEnd.Equal(decimal.RequireFromString("84999.5")) {
		t.Fatalf("cash end: %s", row.CashEnd)
	}

	e, err := repo.GetExpense(ctx, 1)
	if err != nil || e.Category != core.Makan || e.Detail != "soto" {
		t.Fatalf("get expense: %+v %v", e, err)
	}
	if _, err := repo.GetExpense(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSyncBookkeeping(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	_ = repo.CreateSummary(ctx, "2025-09-06", "")
	_, _ = repo.AppendExpense(ctx, core.ExpenseRow{Date: "2025-09-06", Amount: decimal.NewFromInt(1), Category: core.Jajan})
	_, _ = repo.AppendExpense(ctx, core.ExpenseRow{Date: "2025-09-06", Amount: decimal.NewFromInt(2), Category: core.Jajan})

	pending, err := repo.GetPendingExpenses(ctx, 10)
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending expenses: %d %v", len(pending), err)
	}
	if err := repo.MarkExpenseSynced(ctx, 1); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if err := repo.MarkExpenseSyncError(ctx, 2); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	pending, _ = repo.GetPendingExpenses(ctx, 10)
	if len(pending) != 1 || pending[0].Ref != "2" {
		t.Fatalf("errored expenses stay pending: %+v", pending)
	}

	sums, err := repo.GetPendingSummaries(ctx, 10)
	if err != nil || len(sums) != 1 || sums[0].Version != 1 {
		t.Fatalf("pending summaries: %+v %v", sums, err)
	}
	if err := repo.MarkSummarySynced(ctx, sums[0].ID, sums[0].Version); err != nil {
		t.Fatalf("mark summary: %v", err)
	}
	if sums, _ = repo.GetPendingSummaries(ctx, 10); len(sums) != 0 {
		t.Fatalf("expected no pending summaries, got %+v", sums)
	}

	// A write after the mirror bumps the version and makes the row pending again.
	_ = repo.SetIncome(ctx, "1", decimal.NewFromInt(10))
	v, err := repo.SummaryVersion(ctx, "2025-09-06")
	if err != nil || v.Version != 2 {
		t.Fatalf("summary version: %+v %v", v, err)
	}
	// Acknowledging a stale version leaves it pending.
	_ = repo.MarkSummarySynced(ctx, 1, 1)
	if sums, _ = repo.GetPendingSummaries(ctx, 10); len(sums) != 1 {
		t.Fatalf("stale ack should keep row pending, got %+v", sums)
	}
	if _, err := repo.SummaryVersion(ctx, "2025-01-01"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	_ = repo.CreateSummary(ctx, "2025-09-06", "")
	_, _ = repo.AppendExpense(ctx, core.ExpenseRow{Date: "2025-09-06", Amount: decimal.NewFromInt(1), Category: core.Jajan})

	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	snap, _ := repo.Snapshot(ctx)
	if len(snap.Summaries) != 0 || len(snap.Expenses) != 0 {
		t.Fatalf("expected empty ledger, got %+v", snap)
	}
}

func TestSummaryByID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	_ = repo.CreateSummary(ctx, "2025-09-06", "")

	p, err := repo.SummaryByID(ctx, 1)
	if err != nil || p.Date != "2025-09-06" || p.Version != 1 {
		t.Fatalf("summary by id: %+v %v", p, err)
	}
	if _, err := repo.SummaryByID(ctx, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseStoredRejectsHugeExponents(t *testing.T) {
	cases := map[string]string{
		"15000.5":       "15000.5",
		"":              "0",
		"garbage":       "0",
		"1e50000000":    "0",
		"-1e2000000000": "0",
		"1e-90":         "0",
	}
	for in, want := range cases {
		if got := parseStored(in); got.String() != want {
			t.Fatalf("parseStored(%q) = %s, want %s", in, got, want)
		}
	}
}
