package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEntryType represents the kind of money movement an entry records.
type LedgerEntryType string

const (
	LedgerEntryTransactionCredit LedgerEntryType = "TRANSACTION_CREDIT"
	LedgerEntryFeeDebit          LedgerEntryType = "FEE_DEBIT"
	LedgerEntryCommissionCredit  LedgerEntryType = "COMMISSION_CREDIT"
	LedgerEntryRefundDebit       LedgerEntryType = "REFUND_DEBIT"
	LedgerEntrySettlementDebit   LedgerEntryType = "SETTLEMENT_DEBIT"
)

// LedgerEntry is an immutable append-only money movement record.
// Exactly one of MerchantID / SuperMerchantID is set. Balance is the running
// balance of that account after applying this entry, captured at write time
// and never recomputed.
type LedgerEntry struct {
	ID              uuid.UUID       `json:"id"`
	MerchantID      *uuid.UUID      `json:"merchant_id,omitempty"`
	SuperMerchantID *uuid.UUID      `json:"super_merchant_id,omitempty"`
	Type            LedgerEntryType `json:"type"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Balance         int64           `json:"balance"`
	TransactionID   *uuid.UUID      `json:"transaction_id,omitempty"`
	SettlementID    *uuid.UUID      `json:"settlement_id,omitempty"`
	Description     string          `json:"description"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SignedDelta returns the entry's contribution to the running balance:
// credits positive, debits negative.
func (e *LedgerEntry) SignedDelta() int64 {
	switch e.Type {
	case LedgerEntryTransactionCredit, LedgerEntryCommissionCredit:
		return e.Amount
	case LedgerEntryFeeDebit, LedgerEntryRefundDebit, LedgerEntrySettlementDebit:
		return -e.Amount
	default:
		return 0
	}
}

// AccountID returns the owning account id and type.
func (e *LedgerEntry) AccountID() (uuid.UUID, AccountType) {
	if e.SuperMerchantID != nil {
		return *e.SuperMerchantID, AccountTypeSuperMerchant
	}
	if e.MerchantID != nil {
		return *e.MerchantID, AccountTypeMerchant
	}
	return uuid.Nil, AccountTypeMerchant
}
