package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSettlement(merchantID uuid.UUID) *domain.Settlement {
	periodStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &domain.Settlement{
		ID:               uuid.New(),
		MerchantID:       &merchantID,
		Amount:           10000,
		FeeTotal:         300,
		NetAmount:        9700,
		Currency:         "USD",
		PeriodStart:      periodStart,
		PeriodEnd:        periodStart.Add(24 * time.Hour),
		TransactionCount: 3,
		Status:           domain.SettlementStatusPending,
		CreatedAt:        time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestSettlementRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettlementRepo(mock)
	s := newTestSettlement(uuid.New())

	mock.ExpectExec("INSERT INTO settlements").
		WithArgs(s.ID, s.MerchantID, s.SuperMerchantID, s.Amount, s.FeeTotal, s.NetAmount,
			s.Currency, s.PeriodStart, s.PeriodEnd, s.TransactionCount, s.Status, s.ProcessedAt, s.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), s)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepo_Create_Duplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettlementRepo(mock)
	s := newTestSettlement(uuid.New())

	mock.ExpectExec("INSERT INTO settlements").
		WithArgs(s.ID, s.MerchantID, s.SuperMerchantID, s.Amount, s.FeeTotal, s.NetAmount,
			s.Currency, s.PeriodStart, s.PeriodEnd, s.TransactionCount, s.Status, s.ProcessedAt, s.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = repo.Create(context.Background(), s)
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "SET_001", appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepo_ExistsForPeriod(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettlementRepo(mock)
	merchantID := uuid.New()
	periodStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.Add(24 * time.Hour)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(merchantID, periodStart, periodEnd).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsForPeriod(context.Background(), merchantID, domain.AccountTypeMerchant, periodStart, periodEnd)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepo_MarkCompleted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettlementRepo(mock)
	id := uuid.New()
	processedAt := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE settlements SET status = 'COMPLETED'").
		WithArgs(processedAt, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.MarkCompleted(context.Background(), tx, id, processedAt)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepo_MarkCompleted_NotPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettlementRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE settlements SET status = 'COMPLETED'").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.MarkCompleted(context.Background(), tx, uuid.New(), time.Now())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
