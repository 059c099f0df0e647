package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/vantagepsp/psp-core/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MerchantRepo implements ports.MerchantRepository.
type MerchantRepo struct {
	pool Pool
}

// NewMerchantRepo creates a new MerchantRepo.
func NewMerchantRepo(pool Pool) *MerchantRepo {
	return &MerchantRepo{pool: pool}
}

// Create inserts a new merchant into the database.
func (r *MerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	query := `INSERT INTO merchants (id, super_merchant_id, name, api_key, secret_hash, transaction_fee_bps, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.SuperMerchantID, m.Name, m.APIKey, m.SecretHash,
		m.TransactionFeeBps, m.Status, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert merchant: %w", err)
	}
	return nil
}

// GetByID fetches a merchant by its UUID.
func (r *MerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	query := `SELECT id, super_merchant_id, name, api_key, secret_hash, transaction_fee_bps, status, created_at, updated_at
		FROM merchants WHERE id = $1`

	return r.scanMerchant(r.pool.QueryRow(ctx, query, id), "id")
}

// GetByAPIKey fetches a merchant by its public API key.
func (r *MerchantRepo) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Merchant, error) {
	query := `SELECT id, super_merchant_id, name, api_key, secret_hash, transaction_fee_bps, status, created_at, updated_at
		FROM merchants WHERE api_key = $1`

	return r.scanMerchant(r.pool.QueryRow(ctx, query, apiKey), "api_key")
}

// ListActive fetches all ACTIVE merchants, ordered by creation time.
func (r *MerchantRepo) ListActive(ctx context.Context) ([]domain.Merchant, error) {
	query := `SELECT id, super_merchant_id, name, api_key, secret_hash, transaction_fee_bps, status, created_at, updated_at
		FROM merchants WHERE status = 'ACTIVE' ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active merchants: %w", err)
	}
	defer rows.Close()

	var merchants []domain.Merchant
	for rows.Next() {
		m := domain.Merchant{}
		err := rows.Scan(
			&m.ID, &m.SuperMerchantID, &m.Name, &m.APIKey, &m.SecretHash,
			&m.TransactionFeeBps, &m.Status, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan merchant: %w", err)
		}
		merchants = append(merchants, m)
	}
	return merchants, rows.Err()
}

func (r *MerchantRepo) scanMerchant(row pgx.Row, by string) (*domain.Merchant, error) {
	m := &domain.Merchant{}
	err := row.Scan(
		&m.ID, &m.SuperMerchantID, &m.Name, &m.APIKey, &m.SecretHash,
		&m.TransactionFeeBps, &m.Status, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get merchant by %s: %w", by, err)
	}
	return m, nil
}
