package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"kasharian/internal/core"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateSummary(ctx, "2025-09-06", "2025-09-06 08:00:00"); err != nil {
		t.Fatalf("create: %v", err)
	}
	snap, _ := s.Snapshot(ctx)
	row, ok := snap.FindSummary("2025-09-06")
	if !ok || row.Ref != "mem:summary:1" || row.IncomePresent {
		t.Fatalf("unexpected row: %+v ok=%v", row, ok)
	}

	if err := s.SetIncome(ctx, row.Ref, decimal.NewFromInt(100000)); err != nil {
		t.Fatalf("set income: %v", err)
	}
	ref, err := s.AppendExpense(ctx, core.ExpenseRow{Date: "2025-09-06", Amount: decimal.NewFromInt(15000), Category: core.Makan, Detail: "soto"})
	if err != nil || ref != "mem:expense:1" {
		t.Fatalf("append: ref=%q err=%v", ref, err)
	}

	day := core.ReconcileDay(mustSnapshot(t, s), "2025-09-06", core.CashReset)
	if err := s.RefreshSummary(ctx, day); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	snap = mustSnapshot(t, s)
	row = snap.Summaries[0]
	if !row.IncomeSet() || !row.TotalExpense.Equal(decimal.NewFromInt(15000)) || !row.CashEnd.Equal(decimal.NewFromInt(85000)) {
		t.Fatalf("row after refresh: %+v", row)
	}
	if row.ReasonSummary != "Makan - soto" {
		t.Fatalf("reason summary: %q", row.ReasonSummary)
	}
}

func TestMemoryStoreUnknownRef(t *testing.T) {
	s := New()
	for _, ref := range []string{"", "mem:summary:1", "summary!B2", "mem:summary:x"} {
		if err := s.SetIncome(context.Background(), ref, decimal.NewFromInt(1)); err == nil {
			t.Fatalf("expected error for ref %q", ref)
		}
	}
}

func TestMemoryStoreRejectsBadDate(t *testing.T) {
	s := New()
	if err := s.CreateSummary(context.Background(), "06/09/2025", ""); err == nil {
		t.Fatalf("expected date validation error")
	}
	if _, err := s.AppendExpense(context.Background(), core.ExpenseRow{Date: ""}); err == nil {
		t.Fatalf("expected date validation error")
	}
}

func TestMemoryStoreClear(t *testing.T) {
	s := New()
	s.Seed(
		[]core.SummaryRow{{Date: "2025-09-01"}, {Date: "2025-09-02"}},
		[]core.ExpenseRow{{Date: "2025-09-01", Amount: decimal.NewFromInt(5)}},
	)
	snap := mustSnapshot(t, s)
	if len(snap.Summaries) != 2 || snap.Summaries[1].Ref != "mem:summary:2" || len(snap.Expenses) != 1 {
		t.Fatalf("seed: %+v", snap)
	}
	if err := s.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	snap = mustSnapshot(t, s)
	if len(snap.Summaries) != 0 || len(snap.Expenses) != 0 {
		t.Fatalf("expected empty store, got %+v", snap)
	}
}

func mustSnapshot(t *testing.T, s *Store) core.Snapshot {
	t.Helper()
	snap, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}
