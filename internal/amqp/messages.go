package amqp

import (
	"encoding/json"
	"time"

	"rentbook/internal/core"
)

// Receipt mutation actions carried on the wire.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// ReceiptChangedMessage announces a tenant-receipt mutation. The worker only
// needs the dates to know which month buckets to recompute; it re-reads the
// receipts themselves from the store.
type ReceiptChangedMessage struct {
	ReceiptID string    `json:"receipt_id"`
	Action    string    `json:"action"`
	Date      core.Date `json:"date"`
	// PreviousDate is set on updates that moved the receipt to another date,
	// so the old month's aggregate can be recomputed too.
	PreviousDate *core.Date `json:"previous_date,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

func NewReceiptChangedMessage(id, action string, date core.Date, previous *core.Date) *ReceiptChangedMessage {
	return &ReceiptChangedMessage{
		ReceiptID:    id,
		Action:       action,
		Date:         date,
		PreviousDate: previous,
		Timestamp:    time.Now(),
	}
}

func (m *ReceiptChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReceiptChangedMessageFromJSON(data []byte) (*ReceiptChangedMessage, error) {
	var msg ReceiptChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
