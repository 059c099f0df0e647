package ports

import (
	"context"
	"time"

	"github.com/vantagepsp/psp-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MerchantRepository defines persistence operations for merchants.
type MerchantRepository interface {
	Create(ctx context.Context, merchant *domain.Merchant) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Merchant, error)
	ListActive(ctx context.Context) ([]domain.Merchant, error)
}

// SuperMerchantRepository defines persistence operations for super-merchants.
type SuperMerchantRepository interface {
	Create(ctx context.Context, sm *domain.SuperMerchant) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SuperMerchant, error)
	ListActive(ctx context.Context) ([]domain.SuperMerchant, error)
}

// TransactionRepository defines persistence operations for transactions.
// Methods accepting pgx.Tx are used inside transaction blocks.
type TransactionRepository interface {
	Create(ctx context.Context, t *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByProcessorPaymentID(ctx context.Context, paymentID string) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, processedAt *time.Time) error
	SetProcessorPaymentID(ctx context.Context, tx pgx.Tx, id uuid.UUID, paymentID string) error
	// ListCapturedInPeriod returns CAPTURED transactions with
	// processedAt in [periodStart, periodEnd) for settlement aggregation.
	ListCapturedInPeriod(ctx context.Context, merchantID uuid.UUID, periodStart, periodEnd time.Time) ([]domain.Transaction, error)
	// Velocity-rule window queries, keyed by merchant + customer email.
	CountByCustomerSince(ctx context.Context, merchantID uuid.UUID, customerEmail string, since time.Time) (int64, error)
	SumAmountByCustomerSince(ctx context.Context, merchantID uuid.UUID, customerEmail string, since time.Time) (int64, error)
}

// LedgerRepository defines persistence for the append-only ledger.
// Entries are immutable: there is no update or delete path.
type LedgerRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	// GetLatestEntry returns the most recent entry for the account, or nil.
	GetLatestEntry(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType) (*domain.LedgerEntry, error)
	// GetLatestEntryForUpdate is the in-transaction, row-locked variant used
	// for the read-compute-write balance cycle.
	GetLatestEntryForUpdate(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, accountType domain.AccountType) (*domain.LedgerEntry, error)
	// List returns entries most-recent-first.
	List(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType, limit int) ([]domain.LedgerEntry, error)
	// ListCommissionInPeriod returns COMMISSION_CREDIT entries created in
	// [periodStart, periodEnd) for super-merchant settlement.
	ListCommissionInPeriod(ctx context.Context, superMerchantID uuid.UUID, periodStart, periodEnd time.Time) ([]domain.LedgerEntry, error)
}

// SettlementRepository defines persistence for settlements.
type SettlementRepository interface {
	Create(ctx context.Context, s *domain.Settlement) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Settlement, error)
	// ExistsForPeriod is the duplicate-settlement guard: true if any
	// non-FAILED settlement covers the same account and period.
	ExistsForPeriod(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType, periodStart, periodEnd time.Time) (bool, error)
	MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, processedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType, limit int) ([]domain.Settlement, error)
}

// FraudRuleRepository provides read access to rule configuration.
type FraudRuleRepository interface {
	ListActive(ctx context.Context) ([]domain.FraudRule, error)
}

// FraudCaseRepository defines persistence for fraud cases.
// Create must fail with a conflict when a case already exists for the
// transaction (unique on transaction id).
type FraudCaseRepository interface {
	Create(ctx context.Context, c *domain.FraudCase) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.FraudCase, error)
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.FraudCase, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.FraudCaseStatus) error
}

// ProcessorEventRepository persists received processor callbacks.
// Create enforces uniqueness on (payment id, event type).
type ProcessorEventRepository interface {
	Create(ctx context.Context, tx pgx.Tx, ev *domain.ProcessorEvent) error
	Exists(ctx context.Context, paymentID string, eventType domain.ProcessorEventType) (bool, error)
}

// AuditRepository persists audit records.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
