package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus represents the lifecycle state of a payment attempt.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusAuthorized TransactionStatus = "AUTHORIZED"
	TransactionStatusCaptured   TransactionStatus = "CAPTURED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
	TransactionStatusRefunded   TransactionStatus = "REFUNDED"
)

// FraudStatus is the screening outcome attached to a transaction.
type FraudStatus string

const (
	FraudStatusClean   FraudStatus = "CLEAN"
	FraudStatusReview  FraudStatus = "REVIEW"
	FraudStatusBlocked FraudStatus = "BLOCKED"
)

// PaymentMethod enumerates supported payment instruments.
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodWallet       PaymentMethod = "WALLET"
	PaymentMethodOther        PaymentMethod = "OTHER"
)

// Transaction represents one payment attempt owned by a merchant.
// Amounts are minor units. NetAmount = Amount - MerchantFee - SuperMerchantFee - PSPFee.
type Transaction struct {
	ID                 uuid.UUID         `json:"id"`
	MerchantID         uuid.UUID         `json:"merchant_id"`
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	PaymentMethod      PaymentMethod     `json:"payment_method"`
	Status             TransactionStatus `json:"status"`
	CustomerEmail      *string           `json:"customer_email,omitempty"`
	CustomerName       *string           `json:"customer_name,omitempty"`
	CustomerIP         *string           `json:"customer_ip,omitempty"`
	Country            *string           `json:"country,omitempty"`
	ExternalID         *string           `json:"external_id,omitempty"`
	ProcessorPaymentID *string           `json:"processor_payment_id,omitempty"`
	FraudScore         int               `json:"fraud_score"`
	FraudStatus        FraudStatus       `json:"fraud_status"`
	MerchantFee        int64             `json:"merchant_fee"`
	SuperMerchantFee   int64             `json:"super_merchant_fee"`
	PSPFee             int64             `json:"psp_fee"`
	NetAmount          int64             `json:"net_amount"`
	CreatedAt          time.Time         `json:"created_at"`
	ProcessedAt        *time.Time        `json:"processed_at,omitempty"`
}

// validTransitions encodes the status state machine:
// PENDING -> PROCESSING -> {AUTHORIZED -> CAPTURED} | FAILED; CAPTURED -> REFUNDED.
var validTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:    {TransactionStatusProcessing, TransactionStatusFailed},
	TransactionStatusProcessing: {TransactionStatusAuthorized, TransactionStatusCaptured, TransactionStatusFailed},
	TransactionStatusAuthorized: {TransactionStatusCaptured, TransactionStatusFailed},
	TransactionStatusCaptured:   {TransactionStatusRefunded},
}

// CanTransitionTo reports whether the status state machine allows moving
// from the current status to next.
func (t *Transaction) CanTransitionTo(next TransactionStatus) bool {
	for _, s := range validTransitions[t.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true once the transaction is in a final state.
// CAPTURED is terminal for settlement purposes even though it may still
// move to REFUNDED.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCaptured ||
		t.Status == TransactionStatusFailed ||
		t.Status == TransactionStatusRefunded
}

// IsBlocked returns true if fraud screening rejected the transaction.
// Blocked transactions never enter the ledger.
func (t *Transaction) IsBlocked() bool {
	return t.FraudStatus == FraudStatusBlocked
}
