package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/vantagepsp/psp-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SuperMerchantRepo implements ports.SuperMerchantRepository.
type SuperMerchantRepo struct {
	pool Pool
}

// NewSuperMerchantRepo creates a new SuperMerchantRepo.
func NewSuperMerchantRepo(pool Pool) *SuperMerchantRepo {
	return &SuperMerchantRepo{pool: pool}
}

// Create inserts a new super-merchant into the database.
func (r *SuperMerchantRepo) Create(ctx context.Context, sm *domain.SuperMerchant) error {
	query := `INSERT INTO super_merchants (id, name, commission_rate_bps, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		sm.ID, sm.Name, sm.CommissionRateBps, sm.Status, sm.CreatedAt, sm.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert super_merchant: %w", err)
	}
	return nil
}

// GetByID fetches a super-merchant by its UUID.
func (r *SuperMerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.SuperMerchant, error) {
	query := `SELECT id, name, commission_rate_bps, status, created_at, updated_at
		FROM super_merchants WHERE id = $1`

	sm := &domain.SuperMerchant{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&sm.ID, &sm.Name, &sm.CommissionRateBps, &sm.Status, &sm.CreatedAt, &sm.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get super_merchant by id: %w", err)
	}
	return sm, nil
}

// ListActive fetches all ACTIVE super-merchants, ordered by creation time.
func (r *SuperMerchantRepo) ListActive(ctx context.Context) ([]domain.SuperMerchant, error) {
	query := `SELECT id, name, commission_rate_bps, status, created_at, updated_at
		FROM super_merchants WHERE status = 'ACTIVE' ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active super_merchants: %w", err)
	}
	defer rows.Close()

	var sms []domain.SuperMerchant
	for rows.Next() {
		sm := domain.SuperMerchant{}
		err := rows.Scan(&sm.ID, &sm.Name, &sm.CommissionRateBps, &sm.Status, &sm.CreatedAt, &sm.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan super_merchant: %w", err)
		}
		sms = append(sms, sm)
	}
	return sms, rows.Err()
}
