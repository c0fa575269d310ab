package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"kasharian/internal/auth"
	"kasharian/internal/core"
	applog "kasharian/internal/log"
	"kasharian/internal/sheets"
)

// Ledger applies the daily cash rules on top of a row store. All mutations
// go through one mutex, so within a process a date never gets two summary
// rows and income is never written twice.
type Ledger struct {
	store  sheets.Store
	clock  core.Clock
	policy core.CashPolicy
	admin  func(auth.Identity) bool

	mu    sync.Mutex
	reads singleflight.Group

	// version counts committed writes. Shared reads are keyed by it so a
	// read that began before a write is never joined after it.
	version atomic.Uint64

	onWrite []func()
	log     *applog.StructuredLogger
}

// LedgerOptions configures a Ledger. Zero values select the system clock,
// the reset policy and the default logger.
type LedgerOptions struct {
	Clock   core.Clock
	Policy  core.CashPolicy
	IsAdmin func(auth.Identity) bool
	Logger  *applog.Logger
}

func NewLedger(store sheets.Store, opts LedgerOptions) *Ledger {
	if opts.Clock == nil {
		opts.Clock = core.SystemClock
	}
	if opts.Policy == "" {
		opts.Policy = core.CashReset
	}
	if opts.IsAdmin == nil {
		opts.IsAdmin = func(auth.Identity) bool { return false }
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}
	return &Ledger{
		store:  store,
		clock:  opts.Clock,
		policy: opts.Policy,
		admin:  opts.IsAdmin,
		log:    applog.NewStructuredLogger(logger.WithComponent(applog.ComponentLedger)),
	}
}

// OnWrite registers fn to run after every successful mutation. Register
// before serving requests.
func (l *Ledger) OnWrite(fn func()) {
	l.onWrite = append(l.onWrite, fn)
}

// Policy returns the cash policy the ledger derives days with.
func (l *Ledger) Policy() core.CashPolicy { return l.policy }

// Today returns the current Jakarta civil date.
func (l *Ledger) Today() string {
	return core.DateKey(l.clock())
}

// CurrentMonth returns the current Jakarta month key.
func (l *Ledger) CurrentMonth() string {
	return core.MonthKey(l.clock())
}

// Snapshot reads both tables. Concurrent callers share one store read as
// long as no write lands in between.
func (l *Ledger) Snapshot(ctx context.Context) (core.Snapshot, error) {
	key := "snapshot:" + strconv.FormatUint(l.version.Load(), 10)
	v, err, _ := l.reads.Do(key, func() (interface{}, error) {
		return l.store.Snapshot(ctx)
	})
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("read ledger snapshot: %w", err)
	}
	return v.(core.Snapshot), nil
}

// freshSnapshot bypasses singleflight so a mutation sees its own writes.
func (l *Ledger) freshSnapshot(ctx context.Context) (core.Snapshot, error) {
	s, err := l.store.Snapshot(ctx)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("read ledger snapshot: %w", err)
	}
	return s, nil
}

// GetOrCreateDay returns the reconciled day for date, creating its summary
// row first if none exists.
func (l *Ledger) GetOrCreateDay(ctx context.Context, date string) (core.Day, error) {
	if err := core.ValidateDate(date); err != nil {
		return core.Day{}, err
	}

	snap, err := l.Snapshot(ctx)
	if err != nil {
		return core.Day{}, err
	}
	if _, ok := snap.FindSummary(date); ok {
		return core.ReconcileDay(snap, date, l.policy), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	snap, created, err := l.ensureDayLocked(ctx, date)
	if err != nil {
		return core.Day{}, err
	}
	if created {
		l.written()
	}
	return core.ReconcileDay(snap, date, l.policy), nil
}

// ensureDayLocked creates the summary row for date if missing and returns
// a snapshot that contains it.
func (l *Ledger) ensureDayLocked(ctx context.Context, date string) (core.Snapshot, bool, error) {
	snap, err := l.freshSnapshot(ctx)
	if err != nil {
		return snap, false, err
	}
	if _, ok := snap.FindSummary(date); ok {
		return snap, false, nil
	}

	if err := l.store.CreateSummary(ctx, date, core.Timestamp(l.clock())); err != nil {
		return snap, false, fmt.Errorf("create summary row %s: %w", date, err)
	}
	snap, err = l.freshSnapshot(ctx)
	if err != nil {
		return snap, false, err
	}
	if _, ok := snap.FindSummary(date); !ok {
		return snap, false, fmt.Errorf("summary row %s missing after create", date)
	}
	return snap, true, nil
}

// RecordIncome sets the income of date. It fails with
// core.ErrIncomeAlreadySet when a non-zero income is already stored.
func (l *Ledger) RecordIncome(ctx context.Context, date string, amount decimal.Decimal) error {
	if err := core.ValidateDate(date); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	snap, created, err := l.ensureDayLocked(ctx, date)
	if err != nil {
		return err
	}
	if created {
		l.written()
	}
	row, _ := snap.FindSummary(date)
	if row.IncomeSet() {
		return core.ErrIncomeAlreadySet
	}

	if err := l.store.SetIncome(ctx, row.Ref, amount); err != nil {
		if errors.Is(err, core.ErrIncomeAlreadySet) {
			return err
		}
		return fmt.Errorf("set income %s: %w", date, err)
	}
	l.written()
	l.log.LogIncomeRecorded(ctx, date, amount.String(), row.Ref)

	l.refreshLocked(ctx, date)
	return nil
}

// RecordExpense appends an expense to date after resolving its category.
func (l *Ledger) RecordExpense(ctx context.Context, date string, in core.ExpenseInput) (core.ExpenseRow, error) {
	expense, err := in.Resolve(date, core.Timestamp(l.clock()))
	if err != nil {
		return core.ExpenseRow{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, created, err := l.ensureDayLocked(ctx, date); err != nil {
		return core.ExpenseRow{}, err
	} else if created {
		l.written()
	}

	ref, err := l.store.AppendExpense(ctx, expense)
	if err != nil {
		return core.ExpenseRow{}, fmt.Errorf("append expense %s: %w", date, err)
	}
	expense.Ref = ref
	l.written()
	l.log.LogExpenseRecorded(ctx, date, expense.Amount.String(), string(expense.Category), expense.Detail, ref)

	l.refreshLocked(ctx, date)
	return expense, nil
}

// refreshLocked writes the derived totals of date back to its summary row.
// The stored copy is a cache that every read recomputes, so failures are
// only logged.
func (l *Ledger) refreshLocked(ctx context.Context, date string) {
	snap, err := l.freshSnapshot(ctx)
	if err == nil {
		day := core.ReconcileDay(snap, date, l.policy)
		if day.Ref != "" {
			err = l.store.RefreshSummary(ctx, day)
		}
	}
	if err != nil {
		l.log.LogError(ctx, "Failed to refresh cached summary totals", err, applog.OpUpdate,
			applog.NewFields().WithDate(date))
		return
	}
	l.written()
}

// Reset clears both tables. Only the administrator may do it.
func (l *Ledger) Reset(ctx context.Context, id auth.Identity) error {
	if !l.admin(id) {
		return core.ErrForbidden
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	l.written()
	applog.FromContext(ctx).WarnContext(ctx, "Ledger reset", applog.FieldUser, id.Username)
	return nil
}

// Ping checks that the store answers.
func (l *Ledger) Ping(ctx context.Context) error {
	_, err := l.Snapshot(ctx)
	return err
}

func (l *Ledger) written() {
	l.version.Add(1)
	for _, fn := range l.onWrite {
		fn()
	}
}
