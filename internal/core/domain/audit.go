package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionTransactionCreated  AuditAction = "TRANSACTION_CREATED"
	AuditActionFraudCaseCreated    AuditAction = "FRAUD_CASE_CREATED"
	AuditActionFraudCaseResolved   AuditAction = "FRAUD_CASE_RESOLVED"
	AuditActionSettlementProcessed AuditAction = "SETTLEMENT_PROCESSED"
)

// AuditLog records a single audited action. Writes are fire-and-forget;
// an audit failure never rolls back the operation that produced it.
type AuditLog struct {
	ID         uuid.UUID   `json:"id"`
	MerchantID *uuid.UUID  `json:"merchant_id,omitempty"`
	Action     AuditAction `json:"action"`
	Entity     string      `json:"entity"`
	EntityID   string      `json:"entity_id"`
	Metadata   string      `json:"metadata,omitempty"` // JSON string
	CreatedAt  time.Time   `json:"created_at"`
}
