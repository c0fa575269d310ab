package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"kasharian/internal/core"
	ports "kasharian/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	DefaultSummarySheet  = "summary"
	DefaultExpensesSheet = "expenses"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	summarySheet  string
	expensesSheet string
}

// Ensure interface conformance
var (
	_ ports.Store          = (*Client)(nil)
	_ ports.LedgerReader   = (*Client)(nil)
	_ ports.SummaryWriter  = (*Client)(nil)
	_ ports.ExpenseWriter  = (*Client)(nil)
	_ ports.LedgerResetter = (*Client)(nil)
)

// Options configures a Client. Credentials may be given inline or as a
// path; when both are empty GOOGLE_APPLICATION_CREDENTIALS is consulted.
type Options struct {
	SpreadsheetID   string
	SummarySheet    string
	ExpensesSheet   string
	CredentialsJSON string
	CredentialsFile string
}

// NewFromEnv creates a Sheets client from environment variables.
// Required: SPREADSHEET_ID (or GOOGLE_SPREADSHEET_ID).
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional sheet names: SUMMARY_SHEET_NAME, EXPENSES_SHEET_NAME.
func NewFromEnv(ctx context.Context) (*Client, error) {
	id := strings.TrimSpace(os.Getenv("SPREADSHEET_ID"))
	if id == "" {
		id = strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	}
	return New(ctx, Options{
		SpreadsheetID:   id,
		SummarySheet:    os.Getenv("SUMMARY_SHEET_NAME"),
		ExpensesSheet:   os.Getenv("EXPENSES_SHEET_NAME"),
		CredentialsJSON: os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"),
		CredentialsFile: os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"),
	})
}

// New creates a Sheets client bound to one spreadsheet.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, opts.CredentialsJSON, opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(svc, opts), nil
}

func newClient(svc *gsheet.Service, opts Options) *Client {
	summary := strings.TrimSpace(opts.SummarySheet)
	if summary == "" {
		summary = DefaultSummarySheet
	}
	expenses := strings.TrimSpace(opts.ExpensesSheet)
	if expenses == "" {
		expenses = DefaultExpensesSheet
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(opts.SpreadsheetID),
		summarySheet:  summary,
		expensesSheet: expenses,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, serviceAccountJSON, serviceAccountFile string) (*gsheet.Service, error) {
	serviceAccountJSON = strings.TrimSpace(serviceAccountJSON)
	serviceAccountFile = strings.TrimSpace(serviceAccountFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "credentials_size", len(credentialsJSON))
	return service, nil
}

func (c *Client) summaryRange() string  { return c.summarySheet + "!A2:G" }
func (c *Client) expensesRange() string { return c.expensesSheet + "!A2:E" }

// Snapshot reads both tables with a single batchGet.
func (c *Client) Snapshot(ctx context.Context) (core.Snapshot, error) {
	if c.svc == nil {
		return core.Snapshot{}, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.BatchGet(c.spreadsheetID).
		Ranges(c.summaryRange(), c.expensesRange()).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("batch get ledger: %w", err)
	}

	var summaryValues, expenseValues [][]interface{}
	if len(resp.ValueRanges) > 0 {
		summaryValues = resp.ValueRanges[0].Values
	}
	if len(resp.ValueRanges) > 1 {
		expenseValues = resp.ValueRanges[1].Values
	}
	return core.Snapshot{
		Summaries: parseSummaryRows(c.summarySheet, summaryValues),
		Expenses:  parseExpenseRows(c.expensesSheet, expenseValues),
	}, nil
}

// CreateSummary appends a fresh row. The sheet cannot enforce uniqueness,
// so two processes racing here can both append; readers keep the first.
func (c *Client) CreateSummary(ctx context.Context, date, createdAt string) error {
	if err := core.ValidateDate(date); err != nil {
		return err
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	vr := &gsheet.ValueRange{Values: [][]interface{}{{
		date, "", numberCell(decimal.Zero), "", createdAt, numberCell(decimal.Zero), numberCell(decimal.Zero),
	}}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.summarySheet+"!A:G", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append summary row for %s: %w", date, err)
	}
	return nil
}

func (c *Client) SetIncome(ctx context.Context, ref string, amount decimal.Decimal) error {
	row, err := parseRowRef(c.summarySheet, ref)
	if err != nil {
		return err
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!B%d", c.summarySheet, row)
	vr := &gsheet.ValueRange{Values: [][]interface{}{{numberCell(amount)}}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// RefreshSummary overwrites columns C:D and F:G, replacing any legacy
// formulas with plain values.
func (c *Client) RefreshSummary(ctx context.Context, day core.Day) error {
	row, err := parseRowRef(c.summarySheet, day.Ref)
	if err != nil {
		return err
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	req := &gsheet.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data: []*gsheet.ValueRange{
			{
				Range:  fmt.Sprintf("%s!C%d:D%d", c.summarySheet, row, row),
				Values: [][]interface{}{{numberCell(day.TotalExpense), day.ReasonSummary}},
			},
			{
				Range:  fmt.Sprintf("%s!F%d:G%d", c.summarySheet, row, row),
				Values: [][]interface{}{{numberCell(day.CashStart), numberCell(day.CashEnd)}},
			},
		},
	}
	if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("refresh summary row %d: %w", row, err)
	}
	return nil
}

func (c *Client) AppendExpense(ctx context.Context, e core.ExpenseRow) (string, error) {
	if err := core.ValidateDate(e.Date); err != nil {
		return "", err
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	vr := &gsheet.ValueRange{Values: [][]interface{}{{
		e.Date, numberCell(e.Amount), string(e.Category), e.Detail, e.Timestamp,
	}}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.expensesSheet+"!A:E", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append expense to %s: %w", c.expensesSheet, err)
	}
	ref := ""
	if resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// Clear removes every data row of both tables, keeping the header rows.
func (c *Client) Clear(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	req := &gsheet.BatchClearValuesRequest{Ranges: []string{c.summaryRange(), c.expensesRange()}}
	if _, err := c.svc.Spreadsheets.Values.BatchClear(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	return nil
}

// numberCell serialises an amount as a JSON number literal so it lands in
// the sheet as a numeric cell without float rounding.
func numberCell(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
