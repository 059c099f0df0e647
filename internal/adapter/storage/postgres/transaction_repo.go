package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vantagepsp/psp-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, merchant_id, amount, currency, payment_method, status,
	customer_email, customer_name, customer_ip, country, external_id, processor_payment_id,
	fraud_score, fraud_status, merchant_fee, super_merchant_fee, psp_fee, net_amount,
	created_at, processed_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new transaction.
func (r *TransactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.MerchantID, t.Amount, t.Currency, t.PaymentMethod, t.Status,
		t.CustomerEmail, t.CustomerName, t.CustomerIP, t.Country, t.ExternalID, t.ProcessorPaymentID,
		t.FraudScore, t.FraudStatus, t.MerchantFee, t.SuperMerchantFee, t.PSPFee, t.NetAmount,
		t.CreatedAt, t.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransactionRow(r.pool.QueryRow(ctx, query, id))
}

// GetByProcessorPaymentID fetches a transaction by the processor-side payment id.
func (r *TransactionRepo) GetByProcessorPaymentID(ctx context.Context, paymentID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE processor_payment_id = $1`
	return scanTransactionRow(r.pool.QueryRow(ctx, query, paymentID))
}

// UpdateStatus updates a transaction's status within a database transaction.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, processedAt *time.Time) error {
	query := `UPDATE transactions SET status = $1, processed_at = COALESCE($2, processed_at) WHERE id = $3`

	tag, err := tx.Exec(ctx, query, status, processedAt, id)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// SetProcessorPaymentID records the processor-side payment id once the first
// callback arrives.
func (r *TransactionRepo) SetProcessorPaymentID(ctx context.Context, tx pgx.Tx, id uuid.UUID, paymentID string) error {
	query := `UPDATE transactions SET processor_payment_id = $1 WHERE id = $2 AND processor_payment_id IS NULL`

	if _, err := tx.Exec(ctx, query, paymentID, id); err != nil {
		return fmt.Errorf("set processor payment id: %w", err)
	}
	return nil
}

// ListCapturedInPeriod returns CAPTURED transactions processed within
// [periodStart, periodEnd) for one merchant.
func (r *TransactionRepo) ListCapturedInPeriod(ctx context.Context, merchantID uuid.UUID, periodStart, periodEnd time.Time) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE merchant_id = $1 AND status = 'CAPTURED' AND processed_at >= $2 AND processed_at < $3
		ORDER BY processed_at`

	rows, err := r.pool.Query(ctx, query, merchantID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("list captured transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t := domain.Transaction{}
		if err := scanTransaction(rows, &t); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// CountByCustomerSince counts a customer's transactions at one merchant
// since the given time. Blocked attempts count toward velocity.
func (r *TransactionRepo) CountByCustomerSince(ctx context.Context, merchantID uuid.UUID, customerEmail string, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM transactions
		WHERE merchant_id = $1 AND customer_email = $2 AND created_at >= $3`

	var count int64
	err := r.pool.QueryRow(ctx, query, merchantID, customerEmail, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transactions by customer: %w", err)
	}
	return count, nil
}

// SumAmountByCustomerSince sums a customer's transaction amounts at one
// merchant since the given time.
func (r *TransactionRepo) SumAmountByCustomerSince(ctx context.Context, merchantID uuid.UUID, customerEmail string, since time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE merchant_id = $1 AND customer_email = $2 AND created_at >= $3`

	var sum int64
	err := r.pool.QueryRow(ctx, query, merchantID, customerEmail, since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum transactions by customer: %w", err)
	}
	return sum, nil
}

func scanTransactionRow(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	if err := scanTransaction(row, t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func scanTransaction(row pgx.Row, t *domain.Transaction) error {
	return row.Scan(
		&t.ID, &t.MerchantID, &t.Amount, &t.Currency, &t.PaymentMethod, &t.Status,
		&t.CustomerEmail, &t.CustomerName, &t.CustomerIP, &t.Country, &t.ExternalID, &t.ProcessorPaymentID,
		&t.FraudScore, &t.FraudStatus, &t.MerchantFee, &t.SuperMerchantFee, &t.PSPFee, &t.NetAmount,
		&t.CreatedAt, &t.ProcessedAt,
	)
}
