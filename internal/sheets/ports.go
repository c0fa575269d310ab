package sheets

import (
	"context"

	"github.com/shopspring/decimal"

	"kasharian/internal/core"
)

// Ports for outbound row-store adapters.
type (
	// LedgerReader reads both tables in one round trip.
	LedgerReader interface {
		Snapshot(ctx context.Context) (core.Snapshot, error)
	}

	// SummaryWriter manages rows of the summary table.
	SummaryWriter interface {
		// CreateSummary appends an empty row for date. Adapters that can
		// enforce uniqueness treat an existing row as success.
		CreateSummary(ctx context.Context, date, createdAt string) error
		// SetIncome writes the income cell of the row identified by ref.
		SetIncome(ctx context.Context, ref string, amount decimal.Decimal) error
		// RefreshSummary rewrites the derived cache columns of a row.
		RefreshSummary(ctx context.Context, day core.Day) error
	}

	// ExpenseWriter appends transactions.
	ExpenseWriter interface {
		AppendExpense(ctx context.Context, e core.ExpenseRow) (ref string, err error)
	}

	// LedgerResetter wipes every data row of both tables.
	LedgerResetter interface {
		Clear(ctx context.Context) error
	}

	// Store is the full row store the ledger runs against.
	Store interface {
		LedgerReader
		SummaryWriter
		ExpenseWriter
		LedgerResetter
	}
)
