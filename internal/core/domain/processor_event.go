package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProcessorEventType enumerates the payment processor callback events.
type ProcessorEventType string

const (
	ProcessorEventAuthorized ProcessorEventType = "payment.authorized"
	ProcessorEventCaptured   ProcessorEventType = "payment.captured"
	ProcessorEventFailed     ProcessorEventType = "payment.failed"
	ProcessorEventRefunded   ProcessorEventType = "payment.refunded"
)

// ProcessorEvent is the audit trail of a received processor callback.
// The (PaymentID, EventType) pair is unique: re-delivery of the same event
// hits that constraint instead of double-posting ledger entries.
type ProcessorEvent struct {
	ID            uuid.UUID          `json:"id"`
	PaymentID     string             `json:"payment_id"` // processor-side payment id
	EventType     ProcessorEventType `json:"event_type"`
	TransactionID uuid.UUID          `json:"transaction_id"`
	Payload       []byte             `json:"-"` // raw webhook body
	ReceivedAt    time.Time          `json:"received_at"`
}

// DedupeKey is the replay-protection key for a processor delivery.
func DedupeKey(paymentID string, eventType ProcessorEventType) string {
	return paymentID + ":" + string(eventType)
}
