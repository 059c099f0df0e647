package domain

import (
	"time"

	"github.com/google/uuid"
)

// SettlementStatus represents the payout lifecycle.
type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "PENDING"
	SettlementStatusCompleted SettlementStatus = "COMPLETED"
	SettlementStatusFailed    SettlementStatus = "FAILED"
)

// Settlement is a payout record for one account over [PeriodStart, PeriodEnd).
// Exactly one of MerchantID / SuperMerchantID is set.
// NetAmount = Amount - FeeTotal. Immutable after COMPLETED.
type Settlement struct {
	ID               uuid.UUID        `json:"id"`
	MerchantID       *uuid.UUID       `json:"merchant_id,omitempty"`
	SuperMerchantID  *uuid.UUID       `json:"super_merchant_id,omitempty"`
	Amount           int64            `json:"amount"`
	FeeTotal         int64            `json:"fee_total"`
	NetAmount        int64            `json:"net_amount"`
	Currency         string           `json:"currency"`
	PeriodStart      time.Time        `json:"period_start"`
	PeriodEnd        time.Time        `json:"period_end"`
	TransactionCount int              `json:"transaction_count"`
	Status           SettlementStatus `json:"status"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// AccountID returns the settled account id and type.
func (s *Settlement) AccountID() (uuid.UUID, AccountType) {
	if s.SuperMerchantID != nil {
		return *s.SuperMerchantID, AccountTypeSuperMerchant
	}
	if s.MerchantID != nil {
		return *s.MerchantID, AccountTypeMerchant
	}
	return uuid.Nil, AccountTypeMerchant
}
