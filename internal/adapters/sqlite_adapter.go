package adapters

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"kasharian/internal/amqp"
	"kasharian/internal/core"
	"kasharian/internal/sheets"
	"kasharian/internal/storage"
)

var _ sheets.Store = (*SQLiteAdapter)(nil)

// SyncPublisher announces local ledger changes to the mirror worker.
type SyncPublisher interface {
	PublishLedgerSync(ctx context.Context, msg *amqp.LedgerSyncMessage) error
}

// SQLiteAdapter serves the ledger from SQLite and notifies the sync worker
// after every write. Publishing is best effort: rows left unannounced are
// picked up by the worker's pending sweep.
type SQLiteAdapter struct {
	storage   *storage.SQLiteRepository
	publisher SyncPublisher
}

// NewSQLiteAdapter wraps repo. publisher may be nil when AMQP is disabled.
func NewSQLiteAdapter(repo *storage.SQLiteRepository, publisher SyncPublisher) *SQLiteAdapter {
	return &SQLiteAdapter{
		storage:   repo,
		publisher: publisher,
	}
}

// Snapshot implements sheets.LedgerReader
func (a *SQLiteAdapter) Snapshot(ctx context.Context) (core.Snapshot, error) {
	return a.storage.Snapshot(ctx)
}

// CreateSummary implements sheets.SummaryWriter
func (a *SQLiteAdapter) CreateSummary(ctx context.Context, date, createdAt string) error {
	if err := a.storage.CreateSummary(ctx, date, createdAt); err != nil {
		return err
	}
	a.publish(ctx, amqp.NewLedgerSyncMessage(amqp.KindSummary, date, 0))
	return nil
}

// SetIncome implements sheets.SummaryWriter
func (a *SQLiteAdapter) SetIncome(ctx context.Context, ref string, amount decimal.Decimal) error {
	if err := a.storage.SetIncome(ctx, ref, amount); err != nil {
		return err
	}
	id, _ := strconv.ParseInt(ref, 10, 64)
	row, err := a.storage.SummaryByID(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "Income saved but summary lookup failed, leaving it to the pending sweep",
			"row_ref", ref, "error", err)
		return nil
	}
	a.publish(ctx, amqp.NewLedgerSyncMessage(amqp.KindIncome, row.Date, id))
	return nil
}

// RefreshSummary implements sheets.SummaryWriter. The worker recomputes
// derived values itself, so no message is sent.
func (a *SQLiteAdapter) RefreshSummary(ctx context.Context, day core.Day) error {
	return a.storage.RefreshSummary(ctx, day)
}

// AppendExpense implements sheets.ExpenseWriter
func (a *SQLiteAdapter) AppendExpense(ctx context.Context, e core.ExpenseRow) (string, error) {
	ref, err := a.storage.AppendExpense(ctx, e)
	if err != nil {
		return "", err
	}
	id, _ := strconv.ParseInt(ref, 10, 64)
	a.publish(ctx, amqp.NewLedgerSyncMessage(amqp.KindExpense, e.Date, id))
	return ref, nil
}

// Clear implements sheets.LedgerResetter
func (a *SQLiteAdapter) Clear(ctx context.Context) error {
	if err := a.storage.Clear(ctx); err != nil {
		return err
	}
	a.publish(ctx, amqp.NewLedgerSyncMessage(amqp.KindReset, "", 0))
	return nil
}

func (a *SQLiteAdapter) publish(ctx context.Context, msg *amqp.LedgerSyncMessage) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.PublishLedgerSync(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Failed to publish ledger sync message",
			"kind", msg.Kind,
			"date", msg.Date,
			"row_id", msg.RowID,
			"error", err)
	}
}
