package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SyncKind tells the worker which part of the ledger changed.
type SyncKind string

const (
	KindSummary SyncKind = "summary"
	KindIncome  SyncKind = "income"
	KindExpense SyncKind = "expense"
	KindReset   SyncKind = "reset"
)

func (k SyncKind) valid() bool {
	switch k {
	case KindSummary, KindIncome, KindExpense, KindReset:
		return true
	}
	return false
}

// LedgerSyncMessage is a lightweight notification that a local ledger row
// changed. It carries identifiers only; the worker re-reads the row from
// SQLite before mirroring it.
type LedgerSyncMessage struct {
	ID        string    `json:"id"`
	Kind      SyncKind  `json:"kind"`
	Date      string    `json:"date,omitempty"`
	RowID     int64     `json:"row_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerSyncMessage creates a message with a fresh id.
func NewLedgerSyncMessage(kind SyncKind, date string, rowID int64) *LedgerSyncMessage {
	return &LedgerSyncMessage{
		ID:        uuid.NewString(),
		Kind:      kind,
		Date:      date,
		RowID:     rowID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerSyncMessageFromJSON decodes and validates a message body.
func LedgerSyncMessageFromJSON(data []byte) (*LedgerSyncMessage, error) {
	var msg LedgerSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Kind.valid() {
		return nil, fmt.Errorf("unknown sync kind %q", msg.Kind)
	}
	if msg.Kind != KindReset && msg.Date == "" {
		return nil, fmt.Errorf("%s message without date", msg.Kind)
	}
	if msg.Kind == KindExpense && msg.RowID <= 0 {
		return nil, fmt.Errorf("expense message without row id")
	}
	return &msg, nil
}
