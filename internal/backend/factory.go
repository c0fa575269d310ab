package backend

import (
	"context"
	"fmt"
	"log/slog"

	"kasharian/internal/adapters"
	"kasharian/internal/amqp"
	gsheet "kasharian/internal/sheets/google"
	"kasharian/internal/sheets/memory"
	"kasharian/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// AMQP is optional; without it the worker's pending sweep still mirrors rows.
	var (
		amqpClient *amqp.Client
		publisher  adapters.SyncPublisher
	)
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without sync", "error", err)
		} else {
			publisher = amqpClient
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	adapter := adapters.NewSQLiteAdapter(repo, publisher)

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil)

	return &BackendResult{
		Backend: adapter,
		Cleanup: func() error {
			if amqpClient != nil {
				if err := amqpClient.Close(); err != nil {
					f.logger.Warn("Failed to close AMQP client", "error", err)
				}
			}
			return repo.Close()
		},
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := NewSheetsClient(ctx, config)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Initialized Google Sheets backend",
		"summary_sheet", config.SummarySheet,
		"expenses_sheet", config.ExpensesSheet)

	return &BackendResult{Backend: cli}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Warn("Initialized memory backend, data is lost on restart")
	return &BackendResult{Backend: memory.New()}, nil
}

// NewSheetsClient builds the spreadsheet client from backend config. The
// sync worker uses it directly as its mirror target.
func NewSheetsClient(ctx context.Context, config Config) (*gsheet.Client, error) {
	cli, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   config.SpreadsheetID,
		SummarySheet:    config.SummarySheet,
		ExpensesSheet:   config.ExpensesSheet,
		CredentialsJSON: config.ServiceAccountJSON,
		CredentialsFile: config.ServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	return cli, nil
}
