package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// FraudRuleRepo implements ports.FraudRuleRepository.
type FraudRuleRepo struct {
	pool Pool
}

// NewFraudRuleRepo creates a new FraudRuleRepo.
func NewFraudRuleRepo(pool Pool) *FraudRuleRepo {
	return &FraudRuleRepo{pool: pool}
}

// ListActive fetches all active fraud rules.
func (r *FraudRuleRepo) ListActive(ctx context.Context) ([]domain.FraudRule, error) {
	query := `SELECT id, name, rule_type, score, is_active, config, created_at, updated_at
		FROM fraud_rules WHERE is_active = TRUE ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active fraud rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.FraudRule
	for rows.Next() {
		rule := domain.FraudRule{}
		err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Type, &rule.Score, &rule.IsActive,
			&rule.RawConfig, &rule.CreatedAt, &rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fraud rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// FraudCaseRepo implements ports.FraudCaseRepository.
type FraudCaseRepo struct {
	pool Pool
}

// NewFraudCaseRepo creates a new FraudCaseRepo.
func NewFraudCaseRepo(pool Pool) *FraudCaseRepo {
	return &FraudCaseRepo{pool: pool}
}

// Create inserts a new fraud case. The unique index on transaction_id turns
// a second case for the same transaction into ErrDuplicateFraudCase.
func (r *FraudCaseRepo) Create(ctx context.Context, c *domain.FraudCase) error {
	query := `INSERT INTO fraud_cases (id, transaction_id, merchant_id, fraud_score, triggered_rules, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.TransactionID, c.MerchantID, c.FraudScore,
		c.TriggeredRules, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrDuplicateFraudCase()
		}
		return fmt.Errorf("insert fraud case: %w", err)
	}
	return nil
}

// GetByID fetches a fraud case by UUID.
func (r *FraudCaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.FraudCase, error) {
	query := `SELECT id, transaction_id, merchant_id, fraud_score, triggered_rules, status, created_at, updated_at
		FROM fraud_cases WHERE id = $1`

	return r.scanCase(r.pool.QueryRow(ctx, query, id))
}

// GetByTransactionID fetches the fraud case attached to a transaction.
func (r *FraudCaseRepo) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.FraudCase, error) {
	query := `SELECT id, transaction_id, merchant_id, fraud_score, triggered_rules, status, created_at, updated_at
		FROM fraud_cases WHERE transaction_id = $1`

	return r.scanCase(r.pool.QueryRow(ctx, query, transactionID))
}

// UpdateStatus updates a fraud case's review status.
func (r *FraudCaseRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.FraudCaseStatus) error {
	query := `UPDATE fraud_cases SET status = $1, updated_at = NOW() WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update fraud case status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fraud case not found: %s", id)
	}
	return nil
}

func (r *FraudCaseRepo) scanCase(row pgx.Row) (*domain.FraudCase, error) {
	c := &domain.FraudCase{}
	err := row.Scan(
		&c.ID, &c.TransactionID, &c.MerchantID, &c.FraudScore,
		&c.TriggeredRules, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get fraud case: %w", err)
	}
	return c, nil
}
