package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const settlementColumns = `id, merchant_id, super_merchant_id, amount, fee_total, net_amount,
	currency, period_start, period_end, transaction_count, status, processed_at, created_at`

// SettlementRepo implements ports.SettlementRepository.
type SettlementRepo struct {
	pool Pool
}

// NewSettlementRepo creates a new SettlementRepo.
func NewSettlementRepo(pool Pool) *SettlementRepo {
	return &SettlementRepo{pool: pool}
}

// Create inserts a new settlement. A partial unique index on
// (account, period) for non-FAILED rows backs the duplicate guard.
func (r *SettlementRepo) Create(ctx context.Context, s *domain.Settlement) error {
	query := `INSERT INTO settlements (` + settlementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.MerchantID, s.SuperMerchantID, s.Amount, s.FeeTotal, s.NetAmount,
		s.Currency, s.PeriodStart, s.PeriodEnd, s.TransactionCount, s.Status, s.ProcessedAt, s.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrDuplicateSettlement()
		}
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

// GetByID fetches a settlement by UUID.
func (r *SettlementRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE id = $1`

	s := &domain.Settlement{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.MerchantID, &s.SuperMerchantID, &s.Amount, &s.FeeTotal, &s.NetAmount,
		&s.Currency, &s.PeriodStart, &s.PeriodEnd, &s.TransactionCount, &s.Status, &s.ProcessedAt, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get settlement by id: %w", err)
	}
	return s, nil
}

// ExistsForPeriod reports whether a non-FAILED settlement already covers the
// account and period.
func (r *SettlementRepo) ExistsForPeriod(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType, periodStart, periodEnd time.Time) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM settlements
		WHERE ` + accountColumn(accountType) + ` = $1 AND period_start = $2 AND period_end = $3 AND status != 'FAILED')`

	var exists bool
	err := r.pool.QueryRow(ctx, query, accountID, periodStart, periodEnd).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check settlement exists: %w", err)
	}
	return exists, nil
}

// MarkCompleted transitions a settlement to COMPLETED within a database
// transaction, alongside its SETTLEMENT_DEBIT ledger entry.
func (r *SettlementRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, processedAt time.Time) error {
	query := `UPDATE settlements SET status = 'COMPLETED', processed_at = $1 WHERE id = $2 AND status = 'PENDING'`

	tag, err := tx.Exec(ctx, query, processedAt, id)
	if err != nil {
		return fmt.Errorf("mark settlement completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("settlement not pending: %s", id)
	}
	return nil
}

// MarkFailed transitions a settlement to FAILED.
func (r *SettlementRepo) MarkFailed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE settlements SET status = 'FAILED' WHERE id = $1 AND status = 'PENDING'`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("mark settlement failed: %w", err)
	}
	return nil
}

// ListByAccount returns the account's settlements, most recent first.
func (r *SettlementRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType, limit int) ([]domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements
		WHERE ` + accountColumn(accountType) + ` = $1
		ORDER BY period_end DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var settlements []domain.Settlement
	for rows.Next() {
		s := domain.Settlement{}
		err := rows.Scan(
			&s.ID, &s.MerchantID, &s.SuperMerchantID, &s.Amount, &s.FeeTotal, &s.NetAmount,
			&s.Currency, &s.PeriodStart, &s.PeriodEnd, &s.TransactionCount, &s.Status, &s.ProcessedAt, &s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		settlements = append(settlements, s)
	}
	return settlements, rows.Err()
}
