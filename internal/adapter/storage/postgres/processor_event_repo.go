package postgres

import (
	"context"
	"fmt"

	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/pkg/apperror"

	"github.com/jackc/pgx/v5"
)

// ProcessorEventRepo implements ports.ProcessorEventRepository.
type ProcessorEventRepo struct {
	pool Pool
}

// NewProcessorEventRepo creates a new ProcessorEventRepo.
func NewProcessorEventRepo(pool Pool) *ProcessorEventRepo {
	return &ProcessorEventRepo{pool: pool}
}

// Create inserts a processor event within a database transaction. The unique
// index on (payment_id, event_type) is the authoritative replay guard: a
// redelivered event fails here and rolls back everything else in the tx.
func (r *ProcessorEventRepo) Create(ctx context.Context, tx pgx.Tx, ev *domain.ProcessorEvent) error {
	query := `INSERT INTO processor_events (id, payment_id, event_type, transaction_id, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query,
		ev.ID, ev.PaymentID, ev.EventType, ev.TransactionID, ev.Payload, ev.ReceivedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrDuplicateEvent()
		}
		return fmt.Errorf("insert processor event: %w", err)
	}
	return nil
}

// Exists reports whether the event was already recorded.
func (r *ProcessorEventRepo) Exists(ctx context.Context, paymentID string, eventType domain.ProcessorEventType) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM processor_events WHERE payment_id = $1 AND event_type = $2)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, paymentID, eventType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processor event exists: %w", err)
	}
	return exists, nil
}
