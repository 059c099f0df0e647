package service

import (
	"context"
	"testing"
	"time"

	"github.com/vantagepsp/psp-core/config"
	"github.com/vantagepsp/psp-core/internal/adapter/events"
	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/internal/core/ports"
	"github.com/vantagepsp/psp-core/internal/core/ports/mocks"
	"github.com/vantagepsp/psp-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type paymentTestDeps struct {
	svc          *PaymentServiceImpl
	merchantRepo *mocks.MockMerchantRepository
	superRepo    *mocks.MockSuperMerchantRepository
	txRepo       *mocks.MockTransactionRepository
	caseRepo     *mocks.MockFraudCaseRepository
	eventRepo    *mocks.MockProcessorEventRepository
	fraudEngine  *mocks.MockFraudEngine
	ledger       *mocks.MockLedgerService
	transactor   *mocks.MockDBTransactor
	dedupe       *mocks.MockDedupeStore
	publisher    *mocks.MockEventPublisher
	audit        *mocks.MockAuditService
	ctrl         *gomock.Controller
}

func setupPaymentService(t *testing.T) *paymentTestDeps {
	ctrl := gomock.NewController(t)
	d := &paymentTestDeps{
		merchantRepo: mocks.NewMockMerchantRepository(ctrl),
		superRepo:    mocks.NewMockSuperMerchantRepository(ctrl),
		txRepo:       mocks.NewMockTransactionRepository(ctrl),
		caseRepo:     mocks.NewMockFraudCaseRepository(ctrl),
		eventRepo:    mocks.NewMockProcessorEventRepository(ctrl),
		fraudEngine:  mocks.NewMockFraudEngine(ctrl),
		ledger:       mocks.NewMockLedgerService(ctrl),
		transactor:   mocks.NewMockDBTransactor(ctrl),
		dedupe:       mocks.NewMockDedupeStore(ctrl),
		publisher:    mocks.NewMockEventPublisher(ctrl),
		audit:        mocks.NewMockAuditService(ctrl),
		ctrl:         ctrl,
	}
	d.audit.EXPECT().Record(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	d.svc = NewPaymentService(
		d.merchantRepo, d.superRepo, d.txRepo, d.caseRepo, d.eventRepo,
		d.fraudEngine, d.ledger, d.transactor, d.dedupe, d.publisher, d.audit,
		config.FeeConfig{PSPFeeBps: 50}, zerolog.Nop(),
	)
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func activeMerchant(superID uuid.UUID) *domain.Merchant {
	return &domain.Merchant{
		ID:                uuid.New(),
		SuperMerchantID:   superID,
		Name:              "Corner Store",
		TransactionFeeBps: 200,
		Status:            domain.AccountStatusActive,
	}
}

func activeSuper() *domain.SuperMerchant {
	return &domain.SuperMerchant{
		ID:                uuid.New(),
		Name:              "Acme Reseller",
		CommissionRateBps: 100,
		Status:            domain.AccountStatusActive,
	}
}

// ==================== CreatePayment Tests ====================

func TestPaymentService_CreatePayment_Success(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	super := activeSuper()
	merchant := activeMerchant(super.ID)

	req := ports.CreatePaymentRequest{
		MerchantID:    merchant.ID,
		Amount:        10000,
		Currency:      "USD",
		PaymentMethod: domain.PaymentMethodCard,
	}

	d.merchantRepo.EXPECT().GetByID(ctx, merchant.ID).Return(merchant, nil)
	d.superRepo.EXPECT().GetByID(ctx, super.ID).Return(super, nil)
	d.fraudEngine.EXPECT().Evaluate(ctx, gomock.Any()).
		Return(&ports.FraudResult{Score: 10, Status: domain.FraudStatusClean}, nil)

	var created *domain.Transaction
	d.txRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, txn *domain.Transaction) error {
			created = txn
			return nil
		})
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), gomock.Any(), domain.TransactionStatusProcessing, nil).Return(nil)

	result, err := d.svc.CreatePayment(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Blocked)
	assert.Equal(t, domain.TransactionStatusProcessing, result.Transaction.Status)

	// 10000 at 200/100/50 bps: 200 + 100 + 50 in fees.
	require.NotNil(t, created)
	assert.Equal(t, int64(200), created.MerchantFee)
	assert.Equal(t, int64(100), created.SuperMerchantFee)
	assert.Equal(t, int64(50), created.PSPFee)
	assert.Equal(t, int64(9650), created.NetAmount)
}

func TestPaymentService_CreatePayment_InvalidAmount(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.CreatePayment(context.Background(), ports.CreatePaymentRequest{
		MerchantID: uuid.New(),
		Amount:     0,
	})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "PAY_001", appErr.Code)
}

func TestPaymentService_CreatePayment_MerchantNotActive(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchant := activeMerchant(uuid.New())
	merchant.Status = domain.AccountStatusSuspended

	d.merchantRepo.EXPECT().GetByID(ctx, merchant.ID).Return(merchant, nil)

	_, err := d.svc.CreatePayment(ctx, ports.CreatePaymentRequest{
		MerchantID: merchant.ID,
		Amount:     5000,
		Currency:   "USD",
	})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "PAY_003", appErr.Code)
}

func TestPaymentService_CreatePayment_MerchantNotFound(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()
	d.merchantRepo.EXPECT().GetByID(ctx, id).Return(nil, nil)

	_, err := d.svc.CreatePayment(ctx, ports.CreatePaymentRequest{MerchantID: id, Amount: 5000})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "PAY_002", appErr.Code)
}

func TestPaymentService_CreatePayment_Blocked(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	super := activeSuper()
	merchant := activeMerchant(super.ID)

	d.merchantRepo.EXPECT().GetByID(ctx, merchant.ID).Return(merchant, nil)
	d.superRepo.EXPECT().GetByID(ctx, super.ID).Return(super, nil)
	d.fraudEngine.EXPECT().Evaluate(ctx, gomock.Any()).
		Return(&ports.FraudResult{Score: 95, TriggeredRules: []uuid.UUID{uuid.New()}, Status: domain.FraudStatusBlocked}, nil)

	var created *domain.Transaction
	d.txRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, txn *domain.Transaction) error {
			created = txn
			return nil
		})
	d.caseRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, c *domain.FraudCase) error {
			assert.Equal(t, domain.FraudCaseStatusOpen, c.Status)
			assert.Equal(t, 95, c.FraudScore)
			return nil
		})
	d.publisher.EXPECT().Publish(ctx, events.TopicTransactionBlocked, gomock.Any(), gomock.Any()).Return(nil)

	result, err := d.svc.CreatePayment(ctx, ports.CreatePaymentRequest{
		MerchantID: merchant.ID,
		Amount:     10000,
		Currency:   "USD",
	})
	require.NoError(t, err)
	assert.True(t, result.Blocked)
	assert.Equal(t, domain.TransactionStatusFailed, created.Status)
	assert.Equal(t, domain.FraudStatusBlocked, created.FraudStatus)
	// Blocked attempts carry no fees.
	assert.Zero(t, created.MerchantFee)
	assert.Zero(t, created.NetAmount)
}

func TestPaymentService_CreatePayment_ReviewOpensCase(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	super := activeSuper()
	merchant := activeMerchant(super.ID)

	d.merchantRepo.EXPECT().GetByID(ctx, merchant.ID).Return(merchant, nil)
	d.superRepo.EXPECT().GetByID(ctx, super.ID).Return(super, nil)
	d.fraudEngine.EXPECT().Evaluate(ctx, gomock.Any()).
		Return(&ports.FraudResult{Score: 75, Status: domain.FraudStatusReview}, nil)
	d.txRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.caseRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, c *domain.FraudCase) error {
			assert.Equal(t, domain.FraudCaseStatusUnderReview, c.Status)
			return nil
		})
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), gomock.Any(), domain.TransactionStatusProcessing, nil).Return(nil)

	result, err := d.svc.CreatePayment(ctx, ports.CreatePaymentRequest{
		MerchantID: merchant.ID,
		Amount:     10000,
		Currency:   "USD",
	})
	require.NoError(t, err)
	assert.False(t, result.Blocked)
	assert.Equal(t, domain.FraudStatusReview, result.Transaction.FraudStatus)
}

func TestPaymentService_CreatePayment_FraudEngineFailureFailsOpen(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	super := activeSuper()
	merchant := activeMerchant(super.ID)

	d.merchantRepo.EXPECT().GetByID(ctx, merchant.ID).Return(merchant, nil)
	d.superRepo.EXPECT().GetByID(ctx, super.ID).Return(super, nil)
	d.fraudEngine.EXPECT().Evaluate(ctx, gomock.Any()).Return(nil, assert.AnError)
	d.txRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), gomock.Any(), domain.TransactionStatusProcessing, nil).Return(nil)

	result, err := d.svc.CreatePayment(ctx, ports.CreatePaymentRequest{
		MerchantID: merchant.ID,
		Amount:     10000,
		Currency:   "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.FraudStatusClean, result.Transaction.FraudStatus)
}

func TestPaymentService_CreatePayment_NegativeNet(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	super := activeSuper()
	super.CommissionRateBps = 6000
	merchant := activeMerchant(super.ID)
	merchant.TransactionFeeBps = 5000

	d.merchantRepo.EXPECT().GetByID(ctx, merchant.ID).Return(merchant, nil)
	d.superRepo.EXPECT().GetByID(ctx, super.ID).Return(super, nil)
	d.fraudEngine.EXPECT().Evaluate(ctx, gomock.Any()).
		Return(&ports.FraudResult{Status: domain.FraudStatusClean}, nil)

	_, err := d.svc.CreatePayment(ctx, ports.CreatePaymentRequest{
		MerchantID: merchant.ID,
		Amount:     10000,
		Currency:   "USD",
	})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "LGR_001", appErr.Code)
}

// ==================== ApplyProcessorEvent Tests ====================

func processingTransaction(merchantID uuid.UUID) *domain.Transaction {
	return &domain.Transaction{
		ID:               uuid.New(),
		MerchantID:       merchantID,
		Amount:           10000,
		Currency:         "USD",
		Status:           domain.TransactionStatusProcessing,
		MerchantFee:      200,
		SuperMerchantFee: 100,
		PSPFee:           50,
		NetAmount:        9650,
		FraudStatus:      domain.FraudStatusClean,
	}
}

func TestPaymentService_ApplyProcessorEvent_Captured(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	super := activeSuper()
	merchant := activeMerchant(super.ID)
	txn := processingTransaction(merchant.ID)

	in := ports.ProcessorEventInput{
		PaymentID:     "pay_123",
		EventType:     domain.ProcessorEventCaptured,
		TransactionID: txn.ID,
		OccurredAt:    time.Now().UTC(),
	}
	key := domain.DedupeKey("pay_123", domain.ProcessorEventCaptured)

	d.dedupe.EXPECT().Seen(ctx, key).Return(false, nil)
	d.eventRepo.EXPECT().Exists(ctx, "pay_123", domain.ProcessorEventCaptured).Return(false, nil)
	d.txRepo.EXPECT().GetByProcessorPaymentID(ctx, "pay_123").Return(nil, nil)
	d.txRepo.EXPECT().GetByID(ctx, txn.ID).Return(txn, nil)
	d.merchantRepo.EXPECT().GetByID(ctx, merchant.ID).Return(merchant, nil)

	unlocked := false
	d.ledger.EXPECT().LockAccounts(gomock.Any(), gomock.Any()).Return(func() { unlocked = true })
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.eventRepo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, ev *domain.ProcessorEvent) error {
			assert.Equal(t, "pay_123", ev.PaymentID)
			assert.Equal(t, txn.ID, ev.TransactionID)
			return nil
		})
	d.txRepo.EXPECT().SetProcessorPaymentID(ctx, gomock.Any(), txn.ID, "pay_123").Return(nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), txn.ID, domain.TransactionStatusCaptured, gomock.Any()).Return(nil)
	d.ledger.EXPECT().RecordCapture(ctx, gomock.Any(), txn).Return(nil)
	d.dedupe.EXPECT().MarkSeen(ctx, key, gomock.Any()).Return(nil)
	d.publisher.EXPECT().Publish(ctx, events.TopicTransactionCaptured, txn.ID.String(), gomock.Any()).Return(nil)

	result, err := d.svc.ApplyProcessorEvent(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCaptured, result.Status)
	require.NotNil(t, result.ProcessorPaymentID)
	assert.Equal(t, "pay_123", *result.ProcessorPaymentID)
	assert.NotNil(t, result.ProcessedAt)
	assert.True(t, unlocked)
}

func TestPaymentService_ApplyProcessorEvent_DuplicateRedis(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	key := domain.DedupeKey("pay_123", domain.ProcessorEventCaptured)
	d.dedupe.EXPECT().Seen(ctx, key).Return(true, nil)

	_, err := d.svc.ApplyProcessorEvent(ctx, ports.ProcessorEventInput{
		PaymentID: "pay_123",
		EventType: domain.ProcessorEventCaptured,
	})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "PAY_005", appErr.Code)
}

func TestPaymentService_ApplyProcessorEvent_DuplicateDB(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	key := domain.DedupeKey("pay_123", domain.ProcessorEventCaptured)
	d.dedupe.EXPECT().Seen(ctx, key).Return(false, nil)
	d.eventRepo.EXPECT().Exists(ctx, "pay_123", domain.ProcessorEventCaptured).Return(true, nil)

	_, err := d.svc.ApplyProcessorEvent(ctx, ports.ProcessorEventInput{
		PaymentID: "pay_123",
		EventType: domain.ProcessorEventCaptured,
	})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "PAY_005", appErr.Code)
}

func TestPaymentService_ApplyProcessorEvent_InvalidTransition(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchant := activeMerchant(uuid.New())
	txn := processingTransaction(merchant.ID)
	txn.Status = domain.TransactionStatusFailed

	key := domain.DedupeKey("pay_123", domain.ProcessorEventCaptured)
	d.dedupe.EXPECT().Seen(ctx, key).Return(false, nil)
	d.eventRepo.EXPECT().Exists(ctx, "pay_123", domain.ProcessorEventCaptured).Return(false, nil)
	d.txRepo.EXPECT().GetByProcessorPaymentID(ctx, "pay_123").Return(txn, nil)

	_, err := d.svc.ApplyProcessorEvent(ctx, ports.ProcessorEventInput{
		PaymentID: "pay_123",
		EventType: domain.ProcessorEventCaptured,
	})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "PAY_004", appErr.Code)
}

func TestPaymentService_ApplyProcessorEvent_UnknownType(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.ApplyProcessorEvent(context.Background(), ports.ProcessorEventInput{
		PaymentID: "pay_123",
		EventType: "payment.exploded",
	})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "PAY_001", appErr.Code)
}

func TestPaymentService_ApplyProcessorEvent_TransactionNotFound(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	key := domain.DedupeKey("pay_404", domain.ProcessorEventCaptured)
	d.dedupe.EXPECT().Seen(ctx, key).Return(false, nil)
	d.eventRepo.EXPECT().Exists(ctx, "pay_404", domain.ProcessorEventCaptured).Return(false, nil)
	d.txRepo.EXPECT().GetByProcessorPaymentID(ctx, "pay_404").Return(nil, nil)

	_, err := d.svc.ApplyProcessorEvent(ctx, ports.ProcessorEventInput{
		PaymentID: "pay_404",
		EventType: domain.ProcessorEventCaptured,
	})
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "PAY_002", appErr.Code)
}

func TestPaymentService_ApplyProcessorEvent_Refunded(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	super := activeSuper()
	merchant := activeMerchant(super.ID)
	txn := processingTransaction(merchant.ID)
	txn.Status = domain.TransactionStatusCaptured
	pid := "pay_123"
	txn.ProcessorPaymentID = &pid

	key := domain.DedupeKey(pid, domain.ProcessorEventRefunded)
	d.dedupe.EXPECT().Seen(ctx, key).Return(false, nil)
	d.eventRepo.EXPECT().Exists(ctx, pid, domain.ProcessorEventRefunded).Return(false, nil)
	d.txRepo.EXPECT().GetByProcessorPaymentID(ctx, pid).Return(txn, nil)
	d.merchantRepo.EXPECT().GetByID(ctx, merchant.ID).Return(merchant, nil)
	d.ledger.EXPECT().LockAccounts(gomock.Any(), gomock.Any()).Return(func() {})
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.eventRepo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).Return(nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), txn.ID, domain.TransactionStatusRefunded, gomock.Any()).Return(nil)
	d.ledger.EXPECT().RecordRefund(ctx, gomock.Any(), txn).Return(nil)
	d.dedupe.EXPECT().MarkSeen(ctx, key, gomock.Any()).Return(nil)
	d.publisher.EXPECT().Publish(ctx, events.TopicTransactionRefunded, txn.ID.String(), gomock.Any()).Return(nil)

	result, err := d.svc.ApplyProcessorEvent(ctx, ports.ProcessorEventInput{
		PaymentID: pid,
		EventType: domain.ProcessorEventRefunded,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusRefunded, result.Status)
}

// ==================== GetTransaction Tests ====================

func TestPaymentService_GetTransaction_WrongMerchant(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	txn := processingTransaction(uuid.New())
	d.txRepo.EXPECT().GetByID(ctx, txn.ID).Return(txn, nil)

	_, err := d.svc.GetTransaction(ctx, uuid.New(), txn.ID)
	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "PAY_002", appErr.Code)
}

func TestPaymentService_GetTransaction_Success(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	txn := processingTransaction(uuid.New())
	d.txRepo.EXPECT().GetByID(ctx, txn.ID).Return(txn, nil)

	got, err := d.svc.GetTransaction(ctx, txn.MerchantID, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)
}
