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

const ledgerColumns = `id, merchant_id, super_merchant_id, entry_type, amount, currency,
	balance, transaction_id, settlement_id, description, created_at`

// LedgerRepo implements ports.LedgerRepository. The ledger_entries table is
// append-only: no UPDATE or DELETE statements exist in this file.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Create appends a ledger entry within a database transaction.
func (r *LedgerRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.MerchantID, e.SuperMerchantID, e.Type, e.Amount, e.Currency,
		e.Balance, e.TransactionID, e.SettlementID, e.Description, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// GetLatestEntry returns the most recent entry for the account, or nil when
// the account has no history.
func (r *LedgerRepo) GetLatestEntry(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE ` + accountColumn(accountType) + ` = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`

	return scanLedgerRow(r.pool.QueryRow(ctx, query, accountID))
}

// GetLatestEntryForUpdate is the row-locked variant used inside the balance
// read-compute-write cycle.
func (r *LedgerRepo) GetLatestEntryForUpdate(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, accountType domain.AccountType) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE ` + accountColumn(accountType) + ` = $1
		ORDER BY created_at DESC, id DESC LIMIT 1 FOR UPDATE`

	return scanLedgerRow(tx.QueryRow(ctx, query, accountID))
}

// List returns the account's entries, most recent first.
func (r *LedgerRepo) List(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType, limit int) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE ` + accountColumn(accountType) + ` = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()
	return collectLedgerEntries(rows)
}

// ListCommissionInPeriod returns COMMISSION_CREDIT entries for a
// super-merchant created within [periodStart, periodEnd).
func (r *LedgerRepo) ListCommissionInPeriod(ctx context.Context, superMerchantID uuid.UUID, periodStart, periodEnd time.Time) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE super_merchant_id = $1 AND entry_type = 'COMMISSION_CREDIT'
		AND created_at >= $2 AND created_at < $3
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, superMerchantID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("list commission entries: %w", err)
	}
	defer rows.Close()
	return collectLedgerEntries(rows)
}

func accountColumn(accountType domain.AccountType) string {
	if accountType == domain.AccountTypeSuperMerchant {
		return "super_merchant_id"
	}
	return "merchant_id"
}

func scanLedgerRow(row pgx.Row) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{}
	err := row.Scan(
		&e.ID, &e.MerchantID, &e.SuperMerchantID, &e.Type, &e.Amount, &e.Currency,
		&e.Balance, &e.TransactionID, &e.SettlementID, &e.Description, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return e, nil
}

func collectLedgerEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		e := domain.LedgerEntry{}
		err := rows.Scan(
			&e.ID, &e.MerchantID, &e.SuperMerchantID, &e.Type, &e.Amount, &e.Currency,
			&e.Balance, &e.TransactionID, &e.SettlementID, &e.Description, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
