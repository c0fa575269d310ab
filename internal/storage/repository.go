package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"kasharian/internal/core"
	ports "kasharian/internal/sheets"

	_ "modernc.org/sqlite"
)

var _ ports.Store = (*SQLiteRepository)(nil)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db *sql.DB
}

// PendingSummary identifies a summary row whose latest version has not been
// mirrored yet.
type PendingSummary struct {
	ID      int64
	Date    string
	Version int64
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("SQLite ledger ready", "path", dbPath, "schema_version", version)
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Snapshot implements sheets.LedgerReader. Rows come back in insertion order.
func (r *SQLiteRepository) Snapshot(ctx context.Context) (core.Snapshot, error) {
	summaries, err := r.listSummaries(ctx)
	if err != nil {
		return core.Snapshot{}, err
	}
	expenses, err := r.queryExpenses(ctx, `SELECT id, date, amount, category, detail, ts FROM expenses ORDER BY id`)
	if err != nil {
		return core.Snapshot{}, err
	}
	return core.Snapshot{Summaries: summaries, Expenses: expenses}, nil
}

func (r *SQLiteRepository) listSummaries(ctx context.Context) ([]core.SummaryRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, income, total_expense, reason_summary, created_at, cash_start, cash_end
		FROM summaries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var out []core.SummaryRow
	for rows.Next() {
		var (
			id                        int64
			income                    sql.NullString
			total, cashStart, cashEnd string
			row                       core.SummaryRow
		)
		if err := rows.Scan(&id, &row.Date, &income, &total, &row.ReasonSummary, &row.CreatedAt, &cashStart, &cashEnd); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		row.Ref = strconv.FormatInt(id, 10)
		if income.Valid {
			row.Income, row.IncomePresent = parseStored(income.String), true
		}
		row.TotalExpense = parseStored(total)
		row.CashStart = parseStored(cashStart)
		row.CashEnd = parseStored(cashEnd)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.ExpenseRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.ExpenseRow
	for rows.Next() {
		var (
			id       int64
			amount   string
			category string
			e        core.ExpenseRow
		)
		if err := rows.Scan(&id, &e.Date, &amount, &category, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.Ref = strconv.FormatInt(id, 10)
		e.Amount = parseStored(amount)
		if c, ok := core.ParseCategory(category); ok {
			e.Category = c
		} else {
			e.Category = core.Classify(category)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

// CreateSummary implements sheets.SummaryWriter. The UNIQUE date column
// makes concurrent creation collapse to a single row.
func (r *SQLiteRepository) CreateSummary(ctx context.Context, date, createdAt string) error {
	if err := core.ValidateDate(date); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO summaries (date, created_at) VALUES (?, ?)
		ON CONFLICT(date) DO NOTHING`, date, createdAt)
	if err != nil {
		return fmt.Errorf("create summary %s: %w", date, err)
	}
	return nil
}

// SetIncome implements sheets.SummaryWriter. The update only applies while
// the stored income is empty or zero, so a concurrent second writer gets
// core.ErrIncomeAlreadySet.
func (r *SQLiteRepository) SetIncome(ctx context.Context, ref string, amount decimal.Decimal) error {
	id, err := parseID(ref)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE summaries
		SET income = ?, version = version + 1, sync_status = 'pending'
		WHERE id = ? AND (income IS NULL OR income = '' OR CAST(income AS REAL) = 0)`,
		amount.String(), id)
	if err != nil {
		return fmt.Errorf("set income on summary %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set income rows affected: %w", err)
	}
	if n == 0 {
		if exists, err := r.summaryExists(ctx, id); err != nil {
			return err
		} else if exists {
			return core.ErrIncomeAlreadySet
		}
		return fmt.Errorf("summary %d: %w", id, ErrNotFound)
	}
	return nil
}

// RefreshSummary implements sheets.SummaryWriter.
func (r *SQLiteRepository) RefreshSummary(ctx context.Context, day core.Day) error {
	id, err := parseID(day.Ref)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE summaries
		SET total_expense = ?, reason_summary = ?, cash_start = ?, cash_end = ?,
		    version = version + 1, sync_status = 'pending'
		WHERE id = ?`,
		day.TotalExpense.String(), day.ReasonSummary, day.CashStart.String(), day.CashEnd.String(), id)
	if err != nil {
		return fmt.Errorf("refresh summary %d: %w", id, err)
	}
	return nil
}

// AppendExpense implements sheets.ExpenseWriter.
func (r *SQLiteRepository) AppendExpense(ctx context.Context, e core.ExpenseRow) (string, error) {
	if err := core.ValidateDate(e.Date); err != nil {
		return "", err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (date, amount, category, detail, ts) VALUES (?, ?, ?, ?, ?)`,
		e.Date, e.Amount.String(), string(e.Category), e.Detail, e.Timestamp)
	if err != nil {
		return "", fmt.Errorf("create expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("expense id: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", id,
		"date", e.Date,
		"amount", e.Amount.String(),
		"category", e.Category)

	return strconv.FormatInt(id, 10), nil
}

// Clear implements sheets.LedgerResetter.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM expenses`, `DELETE FROM summaries`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear ledger: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}

// GetExpense retrieves a single expense by ID.
func (r *SQLiteRepository) GetExpense(ctx context.Context, id int64) (core.ExpenseRow, error) {
	rows, err := r.queryExpenses(ctx, `SELECT id, date, amount, category, detail, ts FROM expenses WHERE id = ?`, id)
	if err != nil {
		return core.ExpenseRow{}, err
	}
	if len(rows) == 0 {
		return core.ExpenseRow{}, fmt.Errorf("expense %d: %w", id, ErrNotFound)
	}
	return rows[0], nil
}

// GetPendingExpenses returns expenses that still need mirroring, oldest first.
func (r *SQLiteRepository) GetPendingExpenses(ctx context.Context, limit int) ([]core.ExpenseRow, error) {
	return r.queryExpenses(ctx, `
		SELECT id, date, amount, category, detail, ts FROM expenses
		WHERE sync_status != 'synced' ORDER BY id LIMIT ?`, limit)
}

// GetPendingSummaries returns summary rows whose current version has not
// been mirrored, oldest first.
func (r *SQLiteRepository) GetPendingSummaries(ctx context.Context, limit int) ([]PendingSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, version FROM summaries
		WHERE sync_status != 'synced' OR synced_version < version
		ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending summaries: %w", err)
	}
	defer rows.Close()

	var out []PendingSummary
	for rows.Next() {
		var p PendingSummary
		if err := rows.Scan(&p.ID, &p.Date, &p.Version); err != nil {
			return nil, fmt.Errorf("scan pending summary: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkExpenseSynced marks an expense as successfully mirrored.
func (r *SQLiteRepository) MarkExpenseSynced(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE expenses SET sync_status = 'synced', synced_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("mark expense synced: %w", err)
	}
	slog.InfoContext(ctx, "Expense marked as synced", "id", id)
	return nil
}

// MarkExpenseSyncError flags an expense whose mirroring failed.
func (r *SQLiteRepository) MarkExpenseSyncError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE expenses SET sync_status = 'error' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark expense sync error: %w", err)
	}
	slog.WarnContext(ctx, "Expense marked with sync error", "id", id)
	return nil
}

// MarkSummarySynced records that version of a summary row was mirrored. A
// newer local version keeps the row pending.
func (r *SQLiteRepository) MarkSummarySynced(ctx context.Context, id, version int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE summaries
		SET synced_version = MAX(synced_version, ?),
		    sync_status = CASE WHEN version <= ? THEN 'synced' ELSE 'pending' END
		WHERE id = ?`, version, version, id)
	if err != nil {
		return fmt.Errorf("mark summary synced: %w", err)
	}
	return nil
}

// MarkSummarySyncError flags a summary row whose mirroring failed.
func (r *SQLiteRepository) MarkSummarySyncError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE summaries SET sync_status = 'error' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark summary sync error: %w", err)
	}
	slog.WarnContext(ctx, "Summary marked with sync error", "id", id)
	return nil
}

// SummaryVersion returns the id and current version of the row for date.
func (r *SQLiteRepository) SummaryVersion(ctx context.Context, date string) (PendingSummary, error) {
	p := PendingSummary{Date: date}
	err := r.db.QueryRowContext(ctx, `SELECT id, version FROM summaries WHERE date = ?`, date).Scan(&p.ID, &p.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("summary %s: %w", date, ErrNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("summary version %s: %w", date, err)
	}
	return p, nil
}

// SummaryByID returns the date and current version of a summary row.
func (r *SQLiteRepository) SummaryByID(ctx context.Context, id int64) (PendingSummary, error) {
	p := PendingSummary{ID: id}
	err := r.db.QueryRowContext(ctx, `SELECT date, version FROM summaries WHERE id = ?`, id).Scan(&p.Date, &p.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("summary %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("summary %d: %w", id, err)
	}
	return p, nil
}

func (r *SQLiteRepository) summaryExists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM summaries WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("check summary %d: %w", id, err)
	}
	return n > 0, nil
}

func parseID(ref string) (int64, error) {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid row ref %q", ref)
	}
	return id, nil
}

func parseStored(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	if d, err = core.CheckAmount(d); err != nil {
		return decimal.Zero
	}
	return d
}
