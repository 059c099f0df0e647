package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vantagepsp/psp-core/config"
	"github.com/vantagepsp/psp-core/internal/adapter/events"
	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/internal/core/ports"
	"github.com/vantagepsp/psp-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// dedupeTTL bounds how long a processor event key stays in Redis. The
// processor_events table remains the authoritative guard after expiry.
const dedupeTTL = 72 * time.Hour

// PaymentServiceImpl implements ports.PaymentService.
type PaymentServiceImpl struct {
	merchantRepo ports.MerchantRepository
	superRepo    ports.SuperMerchantRepository
	txRepo       ports.TransactionRepository
	caseRepo     ports.FraudCaseRepository
	eventRepo    ports.ProcessorEventRepository
	fraudEngine  ports.FraudEngine
	ledger       ports.LedgerService
	transactor   ports.DBTransactor
	dedupe       ports.DedupeStore
	publisher    ports.EventPublisher
	audit        ports.AuditService
	fees         config.FeeConfig
	log          zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	merchantRepo ports.MerchantRepository,
	superRepo ports.SuperMerchantRepository,
	txRepo ports.TransactionRepository,
	caseRepo ports.FraudCaseRepository,
	eventRepo ports.ProcessorEventRepository,
	fraudEngine ports.FraudEngine,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	dedupe ports.DedupeStore,
	publisher ports.EventPublisher,
	audit ports.AuditService,
	fees config.FeeConfig,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		merchantRepo: merchantRepo,
		superRepo:    superRepo,
		txRepo:       txRepo,
		caseRepo:     caseRepo,
		eventRepo:    eventRepo,
		fraudEngine:  fraudEngine,
		ledger:       ledger,
		transactor:   transactor,
		dedupe:       dedupe,
		publisher:    publisher,
		audit:        audit,
		fees:         fees,
		log:          log,
	}
}

// CreatePayment screens the request, snapshots fees, and persists the
// transaction. A blocked request is still persisted (FAILED/BLOCKED, zero
// fees) so the attempt is auditable, but it never reaches the ledger.
func (s *PaymentServiceImpl) CreatePayment(ctx context.Context, req ports.CreatePaymentRequest) (*ports.CreatePaymentResult, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	merchant, err := s.merchantRepo.GetByID(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}
	if !merchant.IsActive() {
		return nil, apperror.ErrMerchantNotActive()
	}

	super, err := s.superRepo.GetByID(ctx, merchant.SuperMerchantID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load super-merchant: %w", err))
	}
	if super == nil {
		return nil, apperror.ErrNotFound("super-merchant")
	}

	fraud := s.screen(ctx, req)

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:            uuid.New(),
		MerchantID:    req.MerchantID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
		Status:        domain.TransactionStatusPending,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		CustomerIP:    req.CustomerIP,
		Country:       req.CustomerCountry,
		ExternalID:    req.ExternalID,
		FraudScore:    fraud.Score,
		FraudStatus:   fraud.Status,
		CreatedAt:     now,
	}

	if fraud.Status == domain.FraudStatusBlocked {
		return s.persistBlocked(ctx, txn, merchant, fraud)
	}

	// Fee snapshot at creation time; later rate changes never reprice this
	// transaction.
	txn.MerchantFee = domain.FeeFor(req.Amount, merchant.TransactionFeeBps)
	txn.SuperMerchantFee = domain.FeeFor(req.Amount, super.CommissionRateBps)
	txn.PSPFee = domain.FeeFor(req.Amount, s.fees.PSPFeeBps)
	txn.NetAmount = req.Amount - txn.MerchantFee - txn.SuperMerchantFee - txn.PSPFee
	if txn.NetAmount < 0 {
		return nil, apperror.ErrNegativeNetAmount()
	}

	if err := s.txRepo.Create(ctx, txn); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create transaction: %w", err))
	}

	if fraud.Status == domain.FraudStatusReview {
		s.openFraudCase(ctx, txn, fraud, domain.FraudCaseStatusUnderReview)
	}

	// Hand off to the processor: PENDING -> PROCESSING.
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, domain.TransactionStatusProcessing, nil); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update status: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	txn.Status = domain.TransactionStatusProcessing

	s.audit.Record(&txn.MerchantID, domain.AuditActionTransactionCreated, "transaction", txn.ID.String(), map[string]any{
		"amount":      txn.Amount,
		"currency":    txn.Currency,
		"fraud_score": txn.FraudScore,
	})

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("merchant_id", txn.MerchantID.String()).
		Int64("amount", txn.Amount).
		Int("fraud_score", txn.FraudScore).
		Msg("payment created")

	return &ports.CreatePaymentResult{Transaction: txn, Fraud: fraud}, nil
}

// screen runs fraud evaluation. An engine failure fails open with a clean
// result: availability of the payment path wins over screening.
func (s *PaymentServiceImpl) screen(ctx context.Context, req ports.CreatePaymentRequest) ports.FraudResult {
	result, err := s.fraudEngine.Evaluate(ctx, ports.FraudInput{
		MerchantID:      req.MerchantID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		CustomerEmail:   req.CustomerEmail,
		CustomerIP:      req.CustomerIP,
		CustomerCountry: req.CustomerCountry,
	})
	if err != nil {
		s.log.Error().Err(err).Str("merchant_id", req.MerchantID.String()).Msg("fraud evaluation failed, treating as clean")
		return ports.FraudResult{Status: domain.FraudStatusClean}
	}
	return *result
}

// persistBlocked stores a blocked attempt as FAILED/BLOCKED with zero fees
// and opens an OPEN fraud case. No ledger entries are written.
func (s *PaymentServiceImpl) persistBlocked(ctx context.Context, txn *domain.Transaction, merchant *domain.Merchant, fraud ports.FraudResult) (*ports.CreatePaymentResult, error) {
	txn.Status = domain.TransactionStatusFailed
	now := time.Now().UTC()
	txn.ProcessedAt = &now

	if err := s.txRepo.Create(ctx, txn); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create blocked transaction: %w", err))
	}

	s.openFraudCase(ctx, txn, fraud, domain.FraudCaseStatusOpen)

	s.audit.Record(&merchant.ID, domain.AuditActionTransactionCreated, "transaction", txn.ID.String(), map[string]any{
		"blocked":     true,
		"fraud_score": fraud.Score,
	})

	if err := s.publisher.Publish(ctx, events.TopicTransactionBlocked, txn.ID.String(), txn); err != nil {
		s.log.Warn().Err(err).Str("tx_id", txn.ID.String()).Msg("failed to publish blocked event")
	}

	s.log.Warn().
		Str("tx_id", txn.ID.String()).
		Str("merchant_id", txn.MerchantID.String()).
		Int("fraud_score", fraud.Score).
		Msg("payment blocked by fraud screening")

	return &ports.CreatePaymentResult{Transaction: txn, Fraud: fraud, Blocked: true}, nil
}

// openFraudCase creates the review record. A duplicate case for the same
// transaction is logged and ignored: the first case wins.
func (s *PaymentServiceImpl) openFraudCase(ctx context.Context, txn *domain.Transaction, fraud ports.FraudResult, status domain.FraudCaseStatus) {
	now := time.Now().UTC()
	c := &domain.FraudCase{
		ID:             uuid.New(),
		TransactionID:  txn.ID,
		MerchantID:     txn.MerchantID,
		FraudScore:     fraud.Score,
		TriggeredRules: fraud.TriggeredRules,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.caseRepo.Create(ctx, c); err != nil {
		s.log.Warn().Err(err).Str("tx_id", txn.ID.String()).Msg("failed to open fraud case")
		return
	}
	s.audit.Record(&txn.MerchantID, domain.AuditActionFraudCaseCreated, "fraud_case", c.ID.String(), map[string]any{
		"transaction_id": txn.ID.String(),
		"fraud_score":    fraud.Score,
	})
}

// eventTargets maps processor event types to transaction statuses.
var eventTargets = map[domain.ProcessorEventType]domain.TransactionStatus{
	domain.ProcessorEventAuthorized: domain.TransactionStatusAuthorized,
	domain.ProcessorEventCaptured:   domain.TransactionStatusCaptured,
	domain.ProcessorEventFailed:     domain.TransactionStatusFailed,
	domain.ProcessorEventRefunded:   domain.TransactionStatusRefunded,
}

// ApplyProcessorEvent applies a processor callback exactly once. The event
// record, status transition, and any ledger postings commit in a single
// database transaction, so a redelivered event rolls back whole.
func (s *PaymentServiceImpl) ApplyProcessorEvent(ctx context.Context, in ports.ProcessorEventInput) (*domain.Transaction, error) {
	target, ok := eventTargets[in.EventType]
	if !ok {
		return nil, apperror.Validation(fmt.Sprintf("unknown event type %q", in.EventType))
	}

	key := domain.DedupeKey(in.PaymentID, in.EventType)

	// Fast path: Redis replay check.
	seen, err := s.dedupe.Seen(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("redis dedupe check failed, falling through to DB")
	}
	if seen {
		return nil, apperror.ErrDuplicateEvent()
	}

	// DB-level check before doing any work.
	exists, err := s.eventRepo.Exists(ctx, in.PaymentID, in.EventType)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("event dedupe check: %w", err))
	}
	if exists {
		return nil, apperror.ErrDuplicateEvent()
	}

	txn, err := s.resolveTransaction(ctx, in)
	if err != nil {
		return nil, err
	}

	if !txn.CanTransitionTo(target) {
		return nil, apperror.ErrInvalidTransition(string(txn.Status), string(target))
	}

	merchant, err := s.merchantRepo.GetByID(ctx, txn.MerchantID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load merchant: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}

	var processedAt *time.Time
	if target == domain.TransactionStatusCaptured ||
		target == domain.TransactionStatusFailed ||
		target == domain.TransactionStatusRefunded {
		at := in.OccurredAt.UTC()
		if at.IsZero() {
			at = time.Now().UTC()
		}
		processedAt = &at
	}

	// Ledger postings serialize per account; take the in-process locks
	// before opening the database transaction.
	if target == domain.TransactionStatusCaptured || target == domain.TransactionStatusRefunded {
		unlock := s.ledger.LockAccounts(txn.MerchantID, merchant.SuperMerchantID)
		defer unlock()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Authoritative replay guard: unique (payment_id, event_type).
	ev := &domain.ProcessorEvent{
		ID:            uuid.New(),
		PaymentID:     in.PaymentID,
		EventType:     in.EventType,
		TransactionID: txn.ID,
		Payload:       in.Payload,
		ReceivedAt:    time.Now().UTC(),
	}
	if err := s.eventRepo.Create(ctx, dbTx, ev); err != nil {
		return nil, err
	}

	if txn.ProcessorPaymentID == nil {
		if err := s.txRepo.SetProcessorPaymentID(ctx, dbTx, txn.ID, in.PaymentID); err != nil {
			return nil, apperror.ErrDatabaseError(err)
		}
		pid := in.PaymentID
		txn.ProcessorPaymentID = &pid
	}

	if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, target, processedAt); err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	switch target {
	case domain.TransactionStatusCaptured:
		if err := s.ledger.RecordCapture(ctx, dbTx, txn); err != nil {
			return nil, err
		}
	case domain.TransactionStatusRefunded:
		if err := s.ledger.RecordRefund(ctx, dbTx, txn); err != nil {
			return nil, err
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	txn.Status = target
	if processedAt != nil {
		txn.ProcessedAt = processedAt
	}

	// Post-commit: best-effort fast-path mark and event publishing.
	if err := s.dedupe.MarkSeen(ctx, key, dedupeTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to mark event seen in redis")
	}
	s.publishLifecycleEvent(ctx, txn, target)

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("event_type", string(in.EventType)).
		Str("status", string(target)).
		Msg("processor event applied")

	return txn, nil
}

// resolveTransaction locates the transaction for a callback: by the
// processor-side payment id first, then by the embedded transaction id for
// the first event of a payment.
func (s *PaymentServiceImpl) resolveTransaction(ctx context.Context, in ports.ProcessorEventInput) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByProcessorPaymentID(ctx, in.PaymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lookup by payment id: %w", err))
	}
	if txn != nil {
		return txn, nil
	}

	if in.TransactionID != uuid.Nil {
		txn, err = s.txRepo.GetByID(ctx, in.TransactionID)
		if err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("lookup by transaction id: %w", err))
		}
		if txn != nil {
			return txn, nil
		}
	}
	return nil, apperror.ErrNotFound("transaction")
}

func (s *PaymentServiceImpl) publishLifecycleEvent(ctx context.Context, txn *domain.Transaction, target domain.TransactionStatus) {
	var topic string
	switch target {
	case domain.TransactionStatusCaptured:
		topic = events.TopicTransactionCaptured
	case domain.TransactionStatusRefunded:
		topic = events.TopicTransactionRefunded
	default:
		return
	}
	if err := s.publisher.Publish(ctx, topic, txn.ID.String(), txn); err != nil {
		s.log.Warn().Err(err).Str("tx_id", txn.ID.String()).Str("topic", topic).Msg("failed to publish lifecycle event")
	}
}

// GetTransaction returns a transaction scoped to its owning merchant.
func (s *PaymentServiceImpl) GetTransaction(ctx context.Context, merchantID, transactionID uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByID(ctx, transactionID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if txn == nil || txn.MerchantID != merchantID {
		return nil, apperror.ErrNotFound("transaction")
	}
	return txn, nil
}
