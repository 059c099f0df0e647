package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vantagepsp/psp-core/internal/adapter/events"
	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/internal/core/ports"
	"github.com/vantagepsp/psp-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SettlementServiceImpl implements ports.SettlementService. One settlement
// per account per period; the payout debit and the COMPLETED flip commit in
// the same database transaction.
type SettlementServiceImpl struct {
	settlementRepo ports.SettlementRepository
	txRepo         ports.TransactionRepository
	ledgerRepo     ports.LedgerRepository
	merchantRepo   ports.MerchantRepository
	superRepo      ports.SuperMerchantRepository
	ledger         ports.LedgerService
	transactor     ports.DBTransactor
	publisher      ports.EventPublisher
	audit          ports.AuditService
	log            zerolog.Logger
}

// NewSettlementService creates a new SettlementServiceImpl.
func NewSettlementService(
	settlementRepo ports.SettlementRepository,
	txRepo ports.TransactionRepository,
	ledgerRepo ports.LedgerRepository,
	merchantRepo ports.MerchantRepository,
	superRepo ports.SuperMerchantRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	publisher ports.EventPublisher,
	audit ports.AuditService,
	log zerolog.Logger,
) *SettlementServiceImpl {
	return &SettlementServiceImpl{
		settlementRepo: settlementRepo,
		txRepo:         txRepo,
		ledgerRepo:     ledgerRepo,
		merchantRepo:   merchantRepo,
		superRepo:      superRepo,
		ledger:         ledger,
		transactor:     transactor,
		publisher:      publisher,
		audit:          audit,
		log:            log,
	}
}

// SettleMerchant settles one merchant for [periodStart, periodEnd).
// Returns nil, nil when the period is already settled or has no captured
// transactions.
func (s *SettlementServiceImpl) SettleMerchant(ctx context.Context, merchantID uuid.UUID, periodStart, periodEnd time.Time) (*domain.Settlement, error) {
	exists, err := s.settlementRepo.ExistsForPeriod(ctx, merchantID, domain.AccountTypeMerchant, periodStart, periodEnd)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("settlement period check: %w", err))
	}
	if exists {
		s.log.Debug().Str("merchant_id", merchantID.String()).Msg("period already settled, skipping")
		return nil, nil
	}

	txns, err := s.txRepo.ListCapturedInPeriod(ctx, merchantID, periodStart, periodEnd)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list captured transactions: %w", err))
	}
	if len(txns) == 0 {
		return nil, nil
	}

	// Payout takes back the merchant fee only; the super-merchant fee was
	// withheld from the capture credit and the PSP fee never enters the
	// ledger.
	var gross, feeTotal int64
	currency := txns[0].Currency
	for i := range txns {
		t := &txns[i]
		gross += t.Amount
		feeTotal += t.MerchantFee
	}
	net := gross - feeTotal

	mID := merchantID
	stl := &domain.Settlement{
		ID:               uuid.New(),
		MerchantID:       &mID,
		Amount:           gross,
		FeeTotal:         feeTotal,
		NetAmount:        net,
		Currency:         currency,
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		TransactionCount: len(txns),
		Status:           domain.SettlementStatusPending,
		CreatedAt:        time.Now().UTC(),
	}

	return s.execute(ctx, stl, merchantID)
}

// SettleSuperMerchant settles the commission accrued by a super-merchant
// over [periodStart, periodEnd). Commission was already net of fees when it
// was credited, so FeeTotal is zero.
func (s *SettlementServiceImpl) SettleSuperMerchant(ctx context.Context, superMerchantID uuid.UUID, periodStart, periodEnd time.Time) (*domain.Settlement, error) {
	exists, err := s.settlementRepo.ExistsForPeriod(ctx, superMerchantID, domain.AccountTypeSuperMerchant, periodStart, periodEnd)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("settlement period check: %w", err))
	}
	if exists {
		s.log.Debug().Str("super_merchant_id", superMerchantID.String()).Msg("period already settled, skipping")
		return nil, nil
	}

	entries, err := s.ledgerRepo.ListCommissionInPeriod(ctx, superMerchantID, periodStart, periodEnd)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list commission entries: %w", err))
	}
	if len(entries) == 0 {
		return nil, nil
	}

	var total int64
	currency := entries[0].Currency
	for i := range entries {
		total += entries[i].Amount
	}

	smID := superMerchantID
	stl := &domain.Settlement{
		ID:               uuid.New(),
		SuperMerchantID:  &smID,
		Amount:           total,
		FeeTotal:         0,
		NetAmount:        total,
		Currency:         currency,
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		TransactionCount: len(entries),
		Status:           domain.SettlementStatusPending,
		CreatedAt:        time.Now().UTC(),
	}

	return s.execute(ctx, stl, superMerchantID)
}

// execute persists the PENDING settlement, then posts the payout debit and
// flips the settlement COMPLETED in one database transaction. On failure the
// settlement is marked FAILED so a later run can retry the period.
func (s *SettlementServiceImpl) execute(ctx context.Context, stl *domain.Settlement, accountID uuid.UUID) (*domain.Settlement, error) {
	if err := s.settlementRepo.Create(ctx, stl); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == "SET_001" {
			// Lost the race to a concurrent run for the same period.
			return nil, nil
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create settlement: %w", err))
	}

	unlock := s.ledger.LockAccounts(accountID)
	defer unlock()

	if err := s.settle(ctx, stl); err != nil {
		if mfErr := s.settlementRepo.MarkFailed(ctx, stl.ID); mfErr != nil {
			s.log.Error().Err(mfErr).Str("settlement_id", stl.ID.String()).Msg("failed to mark settlement FAILED")
		}
		return nil, err
	}

	now := time.Now().UTC()
	stl.Status = domain.SettlementStatusCompleted
	stl.ProcessedAt = &now

	s.audit.Record(stl.MerchantID, domain.AuditActionSettlementProcessed, "settlement", stl.ID.String(), map[string]any{
		"net_amount":        stl.NetAmount,
		"transaction_count": stl.TransactionCount,
		"period_start":      stl.PeriodStart,
		"period_end":        stl.PeriodEnd,
	})

	if err := s.publisher.Publish(ctx, events.TopicSettlementCompleted, stl.ID.String(), stl); err != nil {
		s.log.Warn().Err(err).Str("settlement_id", stl.ID.String()).Msg("failed to publish settlement event")
	}

	s.log.Info().
		Str("settlement_id", stl.ID.String()).
		Str("account_id", accountID.String()).
		Int64("net_amount", stl.NetAmount).
		Int("transaction_count", stl.TransactionCount).
		Msg("settlement completed")

	return stl, nil
}

func (s *SettlementServiceImpl) settle(ctx context.Context, stl *domain.Settlement) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.ledger.RecordSettlementDebit(ctx, dbTx, stl); err != nil {
		return err
	}
	if err := s.settlementRepo.MarkCompleted(ctx, dbTx, stl.ID, time.Now().UTC()); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("mark completed: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// ProcessDailySettlements settles all active merchants and super-merchants
// for the UTC day preceding now. A failure on one account is logged and
// counted; the run continues.
func (s *SettlementServiceImpl) ProcessDailySettlements(ctx context.Context, now time.Time) (*ports.SettlementRunSummary, error) {
	end := now.UTC().Truncate(24 * time.Hour)
	start := end.Add(-24 * time.Hour)

	summary := &ports.SettlementRunSummary{PeriodStart: start, PeriodEnd: end}

	merchants, err := s.merchantRepo.ListActive(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list merchants: %w", err))
	}
	for i := range merchants {
		m := &merchants[i]
		stl, err := s.SettleMerchant(ctx, m.ID, start, end)
		switch {
		case err != nil:
			summary.Failed++
			s.log.Error().Err(err).Str("merchant_id", m.ID.String()).Msg("merchant settlement failed")
		case stl == nil:
			summary.Skipped++
		default:
			summary.Settled++
		}
	}

	supers, err := s.superRepo.ListActive(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list super-merchants: %w", err))
	}
	for i := range supers {
		sm := &supers[i]
		stl, err := s.SettleSuperMerchant(ctx, sm.ID, start, end)
		switch {
		case err != nil:
			summary.Failed++
			s.log.Error().Err(err).Str("super_merchant_id", sm.ID.String()).Msg("super-merchant settlement failed")
		case stl == nil:
			summary.Skipped++
		default:
			summary.Settled++
		}
	}

	s.log.Info().
		Time("period_start", start).
		Time("period_end", end).
		Int("settled", summary.Settled).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("daily settlement run finished")

	return summary, nil
}
