package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus represents the state of a merchant or super-merchant account.
type AccountStatus string

const (
	AccountStatusActive      AccountStatus = "ACTIVE"
	AccountStatusSuspended   AccountStatus = "SUSPENDED"
	AccountStatusDeactivated AccountStatus = "DEACTIVATED"
)

// AccountType distinguishes the two ledger account owners.
type AccountType string

const (
	AccountTypeMerchant      AccountType = "merchant"
	AccountTypeSuperMerchant AccountType = "super-merchant"
)

// Merchant represents a business accepting payments through the platform.
// Every merchant belongs to exactly one super-merchant (one level, no deeper).
type Merchant struct {
	ID                uuid.UUID     `json:"id"`
	SuperMerchantID   uuid.UUID     `json:"super_merchant_id"`
	Name              string        `json:"name"`
	APIKey            string        `json:"api_key"`
	SecretHash        string        `json:"-"` // Argon2id hash, never expose
	TransactionFeeBps int64         `json:"transaction_fee_bps"`
	Status            AccountStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// IsActive returns true if the merchant account is active.
func (m *Merchant) IsActive() bool {
	return m.Status == AccountStatusActive
}

// SuperMerchant represents a reseller aggregating multiple merchants and
// earning commission on their volume.
type SuperMerchant struct {
	ID                uuid.UUID     `json:"id"`
	Name              string        `json:"name"`
	CommissionRateBps int64         `json:"commission_rate_bps"`
	Status            AccountStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// IsActive returns true if the super-merchant account is active.
func (s *SuperMerchant) IsActive() bool {
	return s.Status == AccountStatusActive
}

// FeeFor computes a fee in minor units from a basis-point rate,
// rounding down.
func FeeFor(amount, rateBps int64) int64 {
	return amount * rateBps / 10000
}
