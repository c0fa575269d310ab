package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"kasharian/internal/amqp"
	"kasharian/internal/core"
	"kasharian/internal/sheets"
	"kasharian/internal/storage"
)

// LocalLedger is the SQLite side of the mirror.
type LocalLedger interface {
	sheets.LedgerReader
	GetExpense(ctx context.Context, id int64) (core.ExpenseRow, error)
	GetPendingExpenses(ctx context.Context, limit int) ([]core.ExpenseRow, error)
	GetPendingSummaries(ctx context.Context, limit int) ([]storage.PendingSummary, error)
	SummaryVersion(ctx context.Context, date string) (storage.PendingSummary, error)
	MarkExpenseSynced(ctx context.Context, id int64) error
	MarkExpenseSyncError(ctx context.Context, id int64) error
	MarkSummarySynced(ctx context.Context, id, version int64) error
	MarkSummarySyncError(ctx context.Context, id int64) error
}

// SyncWorker mirrors the SQLite ledger into the spreadsheet. Every handler
// is idempotent so redelivered messages and sweeps are safe. The consumer
// and the periodic sweep share mu, since both check the spreadsheet before
// appending to it.
type SyncWorker struct {
	mu        sync.Mutex
	local     LocalLedger
	remote    sheets.Store
	policy    core.CashPolicy
	batchSize int
}

func NewSyncWorker(local LocalLedger, remote sheets.Store, policy core.CashPolicy, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		local:     local,
		remote:    remote,
		policy:    policy,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single ledger sync message from AMQP
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.LedgerSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"message_id", msg.ID,
		"kind", msg.Kind,
		"date", msg.Date,
		"row_id", msg.RowID)

	w.mu.Lock()
	defer w.mu.Unlock()

	switch msg.Kind {
	case amqp.KindReset:
		if err := w.remote.Clear(ctx); err != nil {
			return fmt.Errorf("clear spreadsheet: %w", err)
		}
		slog.InfoContext(ctx, "Spreadsheet cleared after ledger reset")
		return nil
	case amqp.KindExpense:
		expense, err := w.local.GetExpense(ctx, msg.RowID)
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted by a reset that raced the message.
			slog.WarnContext(ctx, "Expense no longer exists, skipping", "row_id", msg.RowID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("get expense from storage: %w", err)
		}
		return w.syncExpense(ctx, msg.RowID, expense)
	case amqp.KindSummary, amqp.KindIncome:
		return w.mirrorDay(ctx, msg.Date)
	default:
		return fmt.Errorf("unknown sync kind %q", msg.Kind)
	}
}

// ProcessPending mirrors rows whose messages were lost. It is the periodic
// backup for the AMQP path.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	synced, failed, err := w.sweep(ctx, w.batchSize)
	if err != nil {
		return err
	}
	if synced+failed > 0 {
		slog.InfoContext(ctx, "Processed pending ledger rows", "synced", synced, "errors", failed)
	}
	return nil
}

// StartupSyncCheck runs a larger sweep when the worker starts, to recover
// from downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.sweep(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if synced+failed == 0 {
		slog.InfoContext(ctx, "No pending ledger rows found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed",
		"synced", synced,
		"errors", failed)
	return nil
}

func (w *SyncWorker) sweep(ctx context.Context, limit int) (synced, failed int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	expenses, err := w.local.GetPendingExpenses(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending expenses: %w", err)
	}
	for _, e := range expenses {
		id, _ := strconv.ParseInt(e.Ref, 10, 64)
		if err := w.syncExpense(ctx, id, e); err != nil {
			slog.ErrorContext(ctx, "Failed to sync expense", "id", id, "error", err)
			failed++
			continue
		}
		synced++
	}

	summaries, err := w.local.GetPendingSummaries(ctx, limit)
	if err != nil {
		return synced, failed, fmt.Errorf("get pending summaries: %w", err)
	}
	for _, s := range summaries {
		if err := w.mirrorDay(ctx, s.Date); err != nil {
			slog.ErrorContext(ctx, "Failed to sync summary", "id", s.ID, "date", s.Date, "error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

func (w *SyncWorker) syncExpense(ctx context.Context, id int64, e core.ExpenseRow) error {
	remote, err := w.remote.Snapshot(ctx)
	if err != nil {
		w.markExpenseError(ctx, id)
		return fmt.Errorf("read spreadsheet: %w", err)
	}

	// A redelivered message may find the row already appended.
	ref, found := findExpense(remote, e)
	if !found {
		ref, err = w.remote.AppendExpense(ctx, e)
		if err != nil {
			w.markExpenseError(ctx, id)
			return fmt.Errorf("append to sheets: %w", err)
		}
	}

	if err := w.local.MarkExpenseSynced(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", id, "error", err)
	}

	slog.InfoContext(ctx, "Synced expense",
		"id", id,
		"sheets_ref", ref,
		"date", e.Date,
		"amount", e.Amount.String(),
		"category", e.Category,
		"duplicate", found)

	return w.mirrorDay(ctx, e.Date)
}

// mirrorDay makes the spreadsheet summary row for date match the local one.
func (w *SyncWorker) mirrorDay(ctx context.Context, date string) error {
	version, err := w.local.SummaryVersion(ctx, date)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "No local summary row, skipping mirror", "date", date)
		return nil
	}
	if err != nil {
		return err
	}

	if err := w.mirrorDayVersion(ctx, date); err != nil {
		if markErr := w.local.MarkSummarySyncError(ctx, version.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark summary sync error", "id", version.ID, "error", markErr)
		}
		return err
	}

	if err := w.local.MarkSummarySynced(ctx, version.ID, version.Version); err != nil {
		slog.ErrorContext(ctx, "Failed to mark summary as synced", "id", version.ID, "error", err)
	}
	return nil
}

func (w *SyncWorker) mirrorDayVersion(ctx context.Context, date string) error {
	localSnap, err := w.local.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("read local ledger: %w", err)
	}
	localRow, ok := localSnap.FindSummary(date)
	if !ok {
		return nil
	}
	day := core.ReconcileDay(localSnap, date, w.policy)

	remoteSnap, err := w.remote.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	remoteRow, ok := remoteSnap.FindSummary(date)
	if !ok {
		if err := w.remote.CreateSummary(ctx, date, localRow.CreatedAt); err != nil {
			return fmt.Errorf("create spreadsheet summary %s: %w", date, err)
		}
		if remoteSnap, err = w.remote.Snapshot(ctx); err != nil {
			return fmt.Errorf("re-read spreadsheet: %w", err)
		}
		if remoteRow, ok = remoteSnap.FindSummary(date); !ok {
			return fmt.Errorf("spreadsheet summary %s missing after create", date)
		}
	}

	if localRow.IncomeSet() && !remoteRow.Income.Equal(localRow.Income) {
		if err := w.remote.SetIncome(ctx, remoteRow.Ref, localRow.Income); err != nil {
			return fmt.Errorf("set spreadsheet income %s: %w", date, err)
		}
	}

	day.Ref = remoteRow.Ref
	if err := w.remote.RefreshSummary(ctx, day); err != nil {
		return fmt.Errorf("refresh spreadsheet summary %s: %w", date, err)
	}

	slog.InfoContext(ctx, "Mirrored summary row",
		"date", date,
		"row_ref", remoteRow.Ref,
		"total_expense", day.TotalExpense.String(),
		"cash_end", day.CashEnd.String())
	return nil
}

func (w *SyncWorker) markExpenseError(ctx context.Context, id int64) {
	if err := w.local.MarkExpenseSyncError(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync error", "id", id, "error", err)
	}
}

func findExpense(s core.Snapshot, e core.ExpenseRow) (string, bool) {
	for _, r := range s.Expenses {
		if r.Date == e.Date && r.Timestamp == e.Timestamp && r.Category == e.Category &&
			r.Detail == e.Detail && r.Amount.Equal(e.Amount) {
			return r.Ref, true
		}
	}
	return "", false
}
