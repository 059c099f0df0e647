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

func TestProcessorEventRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewProcessorEventRepo(mock)
	ev := &domain.ProcessorEvent{
		ID:            uuid.New(),
		PaymentID:     "pay_abc123",
		EventType:     domain.ProcessorEventCaptured,
		TransactionID: uuid.New(),
		Payload:       []byte(`{"event":"payment.captured"}`),
		ReceivedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO processor_events").
		WithArgs(ev.ID, ev.PaymentID, ev.EventType, ev.TransactionID, ev.Payload, ev.ReceivedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, ev)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessorEventRepo_Create_Redelivery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewProcessorEventRepo(mock)
	ev := &domain.ProcessorEvent{
		ID:            uuid.New(),
		PaymentID:     "pay_abc123",
		EventType:     domain.ProcessorEventCaptured,
		TransactionID: uuid.New(),
		ReceivedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO processor_events").
		WithArgs(ev.ID, ev.PaymentID, ev.EventType, ev.TransactionID, ev.Payload, ev.ReceivedAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, ev)
	require.Error(t, err)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "PAY_005", appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessorEventRepo_Exists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewProcessorEventRepo(mock)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("pay_abc123", domain.ProcessorEventCaptured).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.Exists(context.Background(), "pay_abc123", domain.ProcessorEventCaptured)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
