package service

import (
	"context"
	"testing"
	"time"

	"github.com/vantagepsp/psp-core/internal/adapter/events"
	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type settlementTestDeps struct {
	svc            *SettlementServiceImpl
	settlementRepo *mocks.MockSettlementRepository
	txRepo         *mocks.MockTransactionRepository
	ledgerRepo     *mocks.MockLedgerRepository
	merchantRepo   *mocks.MockMerchantRepository
	superRepo      *mocks.MockSuperMerchantRepository
	ledger         *mocks.MockLedgerService
	transactor     *mocks.MockDBTransactor
	publisher      *mocks.MockEventPublisher
	audit          *mocks.MockAuditService
	ctrl           *gomock.Controller
}

func setupSettlementService(t *testing.T) *settlementTestDeps {
	ctrl := gomock.NewController(t)
	d := &settlementTestDeps{
		settlementRepo: mocks.NewMockSettlementRepository(ctrl),
		txRepo:         mocks.NewMockTransactionRepository(ctrl),
		ledgerRepo:     mocks.NewMockLedgerRepository(ctrl),
		merchantRepo:   mocks.NewMockMerchantRepository(ctrl),
		superRepo:      mocks.NewMockSuperMerchantRepository(ctrl),
		ledger:         mocks.NewMockLedgerService(ctrl),
		transactor:     mocks.NewMockDBTransactor(ctrl),
		publisher:      mocks.NewMockEventPublisher(ctrl),
		audit:          mocks.NewMockAuditService(ctrl),
		ctrl:           ctrl,
	}
	d.audit.EXPECT().Record(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	d.svc = NewSettlementService(
		d.settlementRepo, d.txRepo, d.ledgerRepo, d.merchantRepo, d.superRepo,
		d.ledger, d.transactor, d.publisher, d.audit, zerolog.Nop(),
	)
	return d
}

func settlementPeriod() (time.Time, time.Time) {
	end := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	return end.Add(-24 * time.Hour), end
}

func capturedTxn(merchantID uuid.UUID, amount int64) domain.Transaction {
	mFee := amount * 2 / 100
	sFee := amount / 100
	pspFee := amount / 200
	return domain.Transaction{
		ID:               uuid.New(),
		MerchantID:       merchantID,
		Amount:           amount,
		Currency:         "USD",
		Status:           domain.TransactionStatusCaptured,
		MerchantFee:      mFee,
		SuperMerchantFee: sFee,
		PSPFee:           pspFee,
		NetAmount:        amount - mFee - sFee - pspFee,
	}
}

func TestSettlementService_SettleMerchant_Success(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	start, end := settlementPeriod()

	txns := []domain.Transaction{
		capturedTxn(merchantID, 10000),
		capturedTxn(merchantID, 20000),
	}

	d.settlementRepo.EXPECT().ExistsForPeriod(ctx, merchantID, domain.AccountTypeMerchant, start, end).Return(false, nil)
	d.txRepo.EXPECT().ListCapturedInPeriod(ctx, merchantID, start, end).Return(txns, nil)

	var created *domain.Settlement
	d.settlementRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, stl *domain.Settlement) error {
			created = stl
			return nil
		})
	d.ledger.EXPECT().LockAccounts(merchantID).Return(func() {})
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.ledger.EXPECT().RecordSettlementDebit(ctx, gomock.Any(), gomock.Any()).Return(nil)
	d.settlementRepo.EXPECT().MarkCompleted(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	d.publisher.EXPECT().Publish(ctx, events.TopicSettlementCompleted, gomock.Any(), gomock.Any()).Return(nil)

	stl, err := d.svc.SettleMerchant(ctx, merchantID, start, end)
	require.NoError(t, err)
	require.NotNil(t, stl)
	assert.Equal(t, domain.SettlementStatusCompleted, stl.Status)
	assert.NotNil(t, stl.ProcessedAt)

	require.NotNil(t, created)
	assert.Equal(t, int64(30000), created.Amount)
	// Only the merchant fee is withheld from the payout; the
	// super-merchant and PSP fees were already taken out upstream.
	assert.Equal(t, int64(600), created.FeeTotal)
	assert.Equal(t, int64(29400), created.NetAmount)
	assert.Equal(t, 2, created.TransactionCount)
}

func TestSettlementService_SettleMerchant_AlreadySettled(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	start, end := settlementPeriod()

	d.settlementRepo.EXPECT().ExistsForPeriod(ctx, merchantID, domain.AccountTypeMerchant, start, end).Return(true, nil)

	stl, err := d.svc.SettleMerchant(ctx, merchantID, start, end)
	require.NoError(t, err)
	assert.Nil(t, stl)
}

func TestSettlementService_SettleMerchant_NothingCaptured(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	start, end := settlementPeriod()

	d.settlementRepo.EXPECT().ExistsForPeriod(ctx, merchantID, domain.AccountTypeMerchant, start, end).Return(false, nil)
	d.txRepo.EXPECT().ListCapturedInPeriod(ctx, merchantID, start, end).Return(nil, nil)

	stl, err := d.svc.SettleMerchant(ctx, merchantID, start, end)
	require.NoError(t, err)
	assert.Nil(t, stl)
}

func TestSettlementService_SettleMerchant_LedgerFailureMarksFailed(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	start, end := settlementPeriod()

	d.settlementRepo.EXPECT().ExistsForPeriod(ctx, merchantID, domain.AccountTypeMerchant, start, end).Return(false, nil)
	d.txRepo.EXPECT().ListCapturedInPeriod(ctx, merchantID, start, end).
		Return([]domain.Transaction{capturedTxn(merchantID, 10000)}, nil)
	d.settlementRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.ledger.EXPECT().LockAccounts(merchantID).Return(func() {})
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.ledger.EXPECT().RecordSettlementDebit(ctx, gomock.Any(), gomock.Any()).Return(assert.AnError)
	d.settlementRepo.EXPECT().MarkFailed(ctx, gomock.Any()).Return(nil)

	_, err := d.svc.SettleMerchant(ctx, merchantID, start, end)
	require.Error(t, err)
}

func TestSettlementService_SettleSuperMerchant_Success(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	superID := uuid.New()
	start, end := settlementPeriod()

	entries := []domain.LedgerEntry{
		{ID: uuid.New(), SuperMerchantID: &superID, Type: domain.LedgerEntryCommissionCredit, Amount: 100, Currency: "USD"},
		{ID: uuid.New(), SuperMerchantID: &superID, Type: domain.LedgerEntryCommissionCredit, Amount: 250, Currency: "USD"},
	}

	d.settlementRepo.EXPECT().ExistsForPeriod(ctx, superID, domain.AccountTypeSuperMerchant, start, end).Return(false, nil)
	d.ledgerRepo.EXPECT().ListCommissionInPeriod(ctx, superID, start, end).Return(entries, nil)

	var created *domain.Settlement
	d.settlementRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, stl *domain.Settlement) error {
			created = stl
			return nil
		})
	d.ledger.EXPECT().LockAccounts(superID).Return(func() {})
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.ledger.EXPECT().RecordSettlementDebit(ctx, gomock.Any(), gomock.Any()).Return(nil)
	d.settlementRepo.EXPECT().MarkCompleted(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	d.publisher.EXPECT().Publish(ctx, events.TopicSettlementCompleted, gomock.Any(), gomock.Any()).Return(nil)

	stl, err := d.svc.SettleSuperMerchant(ctx, superID, start, end)
	require.NoError(t, err)
	require.NotNil(t, stl)

	require.NotNil(t, created)
	assert.Equal(t, int64(350), created.Amount)
	assert.Zero(t, created.FeeTotal)
	assert.Equal(t, int64(350), created.NetAmount)
	require.NotNil(t, created.SuperMerchantID)
	assert.Equal(t, superID, *created.SuperMerchantID)
}

func TestSettlementService_ProcessDailySettlements(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	now := time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	settled := domain.Merchant{ID: uuid.New(), Status: domain.AccountStatusActive}
	idle := domain.Merchant{ID: uuid.New(), Status: domain.AccountStatusActive}

	d.merchantRepo.EXPECT().ListActive(ctx).Return([]domain.Merchant{settled, idle}, nil)

	// First merchant settles.
	d.settlementRepo.EXPECT().ExistsForPeriod(ctx, settled.ID, domain.AccountTypeMerchant, start, end).Return(false, nil)
	d.txRepo.EXPECT().ListCapturedInPeriod(ctx, settled.ID, start, end).
		Return([]domain.Transaction{capturedTxn(settled.ID, 10000)}, nil)
	d.settlementRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.ledger.EXPECT().LockAccounts(settled.ID).Return(func() {})
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.ledger.EXPECT().RecordSettlementDebit(ctx, gomock.Any(), gomock.Any()).Return(nil)
	d.settlementRepo.EXPECT().MarkCompleted(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	d.publisher.EXPECT().Publish(ctx, events.TopicSettlementCompleted, gomock.Any(), gomock.Any()).Return(nil)

	// Second merchant has nothing to settle.
	d.settlementRepo.EXPECT().ExistsForPeriod(ctx, idle.ID, domain.AccountTypeMerchant, start, end).Return(false, nil)
	d.txRepo.EXPECT().ListCapturedInPeriod(ctx, idle.ID, start, end).Return(nil, nil)

	// No super-merchant activity.
	sm := domain.SuperMerchant{ID: uuid.New(), Status: domain.AccountStatusActive}
	d.superRepo.EXPECT().ListActive(ctx).Return([]domain.SuperMerchant{sm}, nil)
	d.settlementRepo.EXPECT().ExistsForPeriod(ctx, sm.ID, domain.AccountTypeSuperMerchant, start, end).Return(false, nil)
	d.ledgerRepo.EXPECT().ListCommissionInPeriod(ctx, sm.ID, start, end).Return(nil, nil)

	summary, err := d.svc.ProcessDailySettlements(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, start, summary.PeriodStart)
	assert.Equal(t, end, summary.PeriodEnd)
	assert.Equal(t, 1, summary.Settled)
	assert.Equal(t, 2, summary.Skipped)
	assert.Zero(t, summary.Failed)
}

func TestSettlementService_ProcessDailySettlements_FailureIsolated(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	now := time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	broken := domain.Merchant{ID: uuid.New(), Status: domain.AccountStatusActive}
	healthy := domain.Merchant{ID: uuid.New(), Status: domain.AccountStatusActive}

	d.merchantRepo.EXPECT().ListActive(ctx).Return([]domain.Merchant{broken, healthy}, nil)

	d.settlementRepo.EXPECT().ExistsForPeriod(ctx, broken.ID, domain.AccountTypeMerchant, start, end).
		Return(false, assert.AnError)

	d.settlementRepo.EXPECT().ExistsForPeriod(ctx, healthy.ID, domain.AccountTypeMerchant, start, end).Return(false, nil)
	d.txRepo.EXPECT().ListCapturedInPeriod(ctx, healthy.ID, start, end).Return(nil, nil)

	d.superRepo.EXPECT().ListActive(ctx).Return(nil, nil)

	summary, err := d.svc.ProcessDailySettlements(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
}

// Compile-time interface checks for the transaction helper shared across
// service tests.
var _ pgx.Tx = (*mockTx)(nil)
