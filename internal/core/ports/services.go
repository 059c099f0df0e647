package ports

import (
	"context"
	"time"

	"github.com/vantagepsp/psp-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SignatureService handles HMAC-SHA256 signing and verification of
// processor webhook payloads.
type SignatureService interface {
	Sign(secretKey string, payload []byte) string
	Verify(secretKey string, payload []byte, signature string) bool
}

// HashService handles secret hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService handles JWT token operations for admin access.
type TokenService interface {
	Generate(subject string, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
	Role    string
}

// RuleCache caches the active fraud rule set (fast path before the DB).
type RuleCache interface {
	Get(ctx context.Context) ([]domain.FraudRule, error) // nil, nil on miss
	Set(ctx context.Context, rules []domain.FraudRule, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

// DedupeStore is the Redis-layer replay check for processor events
// (fast path; the unique processor_events row is authoritative).
type DedupeStore interface {
	// Seen reports whether the key was already marked.
	Seen(ctx context.Context, key string) (bool, error)
	// MarkSeen records the key, best-effort.
	MarkSeen(ctx context.Context, key string, ttl time.Duration) error
}

// EventPublisher emits domain events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, payload any) error
	Close() error
}

// --- Service Ports (Business Logic) ---

// FraudResult is the outcome of screening a payment request.
type FraudResult struct {
	Score          int
	TriggeredRules []uuid.UUID
	Status         domain.FraudStatus
}

// FraudEngine scores incoming payment requests against the active rules.
type FraudEngine interface {
	Evaluate(ctx context.Context, input FraudInput) (*FraudResult, error)
}

// FraudInput carries the transaction attributes rules evaluate against.
type FraudInput struct {
	MerchantID      uuid.UUID
	Amount          int64
	Currency        string
	CustomerEmail   *string
	CustomerIP      *string
	CustomerCountry *string
}

// LedgerService owns all balance mutation. Every posting runs inside a
// caller-provided pgx.Tx with the affected accounts locked.
type LedgerService interface {
	// LockAccounts acquires the in-process locks for the given accounts in
	// deterministic order and returns the release func.
	LockAccounts(ids ...uuid.UUID) func()

	// RecordCapture posts TRANSACTION_CREDIT and FEE_DEBIT for the merchant
	// and, when the merchant belongs to a super-merchant, COMMISSION_CREDIT.
	RecordCapture(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error
	// RecordRefund posts REFUND_DEBIT for the merchant.
	RecordRefund(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error
	// RecordSettlementDebit posts SETTLEMENT_DEBIT for the settled account.
	RecordSettlementDebit(ctx context.Context, tx pgx.Tx, s *domain.Settlement) error

	// GetBalance returns the account's current balance (latest snapshot, 0
	// when the account has no entries).
	GetBalance(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType) (int64, error)
	// GetEntries returns the account's entries, most recent first.
	GetEntries(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType, limit int) ([]domain.LedgerEntry, error)
}

// SettlementService aggregates captured activity into payouts.
type SettlementService interface {
	// SettleMerchant settles one merchant for the period. Returns nil, nil
	// when there is nothing to settle.
	SettleMerchant(ctx context.Context, merchantID uuid.UUID, periodStart, periodEnd time.Time) (*domain.Settlement, error)
	// SettleSuperMerchant settles accrued commission for the period.
	SettleSuperMerchant(ctx context.Context, superMerchantID uuid.UUID, periodStart, periodEnd time.Time) (*domain.Settlement, error)
	// ProcessDailySettlements runs both passes for the daily window ending
	// at now (UTC midnight boundaries). Per-account failures are isolated.
	ProcessDailySettlements(ctx context.Context, now time.Time) (*SettlementRunSummary, error)
}

// SettlementRunSummary reports the outcome of a settlement run.
type SettlementRunSummary struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Settled     int
	Skipped     int
	Failed      int
}

// PaymentService defines the core payment business logic.
type PaymentService interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error)
	// ApplyProcessorEvent applies a processor callback exactly once:
	// status transition plus ledger postings in a single transaction.
	ApplyProcessorEvent(ctx context.Context, in ProcessorEventInput) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, merchantID, transactionID uuid.UUID) (*domain.Transaction, error)
}

// CreatePaymentRequest holds validated input for payment creation.
type CreatePaymentRequest struct {
	MerchantID      uuid.UUID
	Amount          int64
	Currency        string
	PaymentMethod   domain.PaymentMethod
	ExternalID      *string
	CustomerEmail   *string
	CustomerName    *string
	CustomerIP      *string
	CustomerCountry *string
}

// CreatePaymentResult is the outcome of payment creation. Blocked is true
// when fraud screening rejected the payment; the transaction is still
// persisted (FAILED/BLOCKED) for the audit trail.
type CreatePaymentResult struct {
	Transaction *domain.Transaction
	Fraud       FraudResult
	Blocked     bool
}

// ProcessorEventInput holds a verified processor callback.
type ProcessorEventInput struct {
	PaymentID     string
	EventType     domain.ProcessorEventType
	TransactionID uuid.UUID
	Payload       []byte
	OccurredAt    time.Time
}

// FraudCaseService manages the human-review lifecycle of fraud cases.
type FraudCaseService interface {
	GetCase(ctx context.Context, id uuid.UUID) (*domain.FraudCase, error)
	// ResolveCase moves an open case to APPROVED or REJECTED. Resolving an
	// already-resolved case is rejected.
	ResolveCase(ctx context.Context, id uuid.UUID, decision domain.FraudCaseStatus, reviewer string) (*domain.FraudCase, error)
}

// AuditService records audit events without blocking the caller.
type AuditService interface {
	Record(merchantID *uuid.UUID, action domain.AuditAction, entity string, entityID string, metadata any)
}
