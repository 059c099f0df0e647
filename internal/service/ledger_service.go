package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/internal/core/ports"
	"github.com/vantagepsp/psp-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService. Every posting runs
// inside a caller-provided pgx.Tx; the balance snapshot is computed from the
// latest entry read with FOR UPDATE, so concurrent postings to one account
// serialize at the database. The in-process account locks keep lock wait
// time short and postings for one account ordered within this process.
type LedgerServiceImpl struct {
	ledgerRepo   ports.LedgerRepository
	merchantRepo ports.MerchantRepository
	log          zerolog.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(ledgerRepo ports.LedgerRepository, merchantRepo ports.MerchantRepository, log zerolog.Logger) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		ledgerRepo:   ledgerRepo,
		merchantRepo: merchantRepo,
		log:          log,
		locks:        make(map[uuid.UUID]*sync.Mutex),
	}
}

// LockAccounts acquires the per-account locks in sorted id order, so two
// postings touching the same pair of accounts can never deadlock. The
// returned func releases them in reverse order.
func (s *LedgerServiceImpl) LockAccounts(ids ...uuid.UUID) func() {
	sorted := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	acquired := make([]*sync.Mutex, 0, len(sorted))
	for _, id := range sorted {
		acquired = append(acquired, s.lockFor(id))
	}
	for _, m := range acquired {
		m.Lock()
	}
	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}

func (s *LedgerServiceImpl) lockFor(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	return m
}

// RecordCapture posts the capture entries for the merchant: a
// TRANSACTION_CREDIT of amount less merchant and super-merchant fees, then
// a FEE_DEBIT of the merchant fee, plus a COMMISSION_CREDIT for the
// super-merchant when commission accrued. The PSP fee never enters the
// ledger; it is platform revenue tracked on the transaction only.
func (s *LedgerServiceImpl) RecordCapture(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	merchant, err := s.merchantRepo.GetByID(ctx, txn.MerchantID)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("load merchant: %w", err))
	}
	if merchant == nil {
		return apperror.ErrNotFound("merchant")
	}

	now := time.Now().UTC()
	txnID := txn.ID

	credit := &domain.LedgerEntry{
		ID:            uuid.New(),
		MerchantID:    &txn.MerchantID,
		Type:          domain.LedgerEntryTransactionCredit,
		Amount:        txn.Amount - txn.MerchantFee - txn.SuperMerchantFee,
		Currency:      txn.Currency,
		TransactionID: &txnID,
		Description:   fmt.Sprintf("payment captured (%s)", txnID),
		CreatedAt:     now,
	}
	if err := s.append(ctx, tx, credit); err != nil {
		return err
	}

	if txn.MerchantFee > 0 {
		feeDebit := &domain.LedgerEntry{
			ID:            uuid.New(),
			MerchantID:    &txn.MerchantID,
			Type:          domain.LedgerEntryFeeDebit,
			Amount:        txn.MerchantFee,
			Currency:      txn.Currency,
			TransactionID: &txnID,
			Description:   fmt.Sprintf("fees for transaction %s", txnID),
			CreatedAt:     now,
		}
		if err := s.append(ctx, tx, feeDebit); err != nil {
			return err
		}
	}

	if txn.SuperMerchantFee > 0 {
		commission := &domain.LedgerEntry{
			ID:              uuid.New(),
			SuperMerchantID: &merchant.SuperMerchantID,
			Type:            domain.LedgerEntryCommissionCredit,
			Amount:          txn.SuperMerchantFee,
			Currency:        txn.Currency,
			TransactionID:   &txnID,
			Description:     fmt.Sprintf("commission for transaction %s", txnID),
			CreatedAt:       now,
		}
		if err := s.append(ctx, tx, commission); err != nil {
			return err
		}
	}

	return nil
}

// RecordRefund posts REFUND_DEBIT of the gross amount to the merchant.
// Fees and accrued commission are not returned on refund: the merchant
// absorbs them.
func (s *LedgerServiceImpl) RecordRefund(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	txnID := txn.ID
	debit := &domain.LedgerEntry{
		ID:            uuid.New(),
		MerchantID:    &txn.MerchantID,
		Type:          domain.LedgerEntryRefundDebit,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		TransactionID: &txnID,
		Description:   fmt.Sprintf("refund for transaction %s", txnID),
		CreatedAt:     time.Now().UTC(),
	}
	return s.append(ctx, tx, debit)
}

// RecordSettlementDebit posts SETTLEMENT_DEBIT of the settlement's net
// amount to the settled account.
func (s *LedgerServiceImpl) RecordSettlementDebit(ctx context.Context, tx pgx.Tx, stl *domain.Settlement) error {
	stlID := stl.ID
	debit := &domain.LedgerEntry{
		ID:              uuid.New(),
		MerchantID:      stl.MerchantID,
		SuperMerchantID: stl.SuperMerchantID,
		Type:            domain.LedgerEntrySettlementDebit,
		Amount:          stl.NetAmount,
		Currency:        stl.Currency,
		SettlementID:    &stlID,
		Description:     fmt.Sprintf("settlement payout %s", stlID),
		CreatedAt:       time.Now().UTC(),
	}
	return s.append(ctx, tx, debit)
}

// GetBalance returns the account's current balance: the latest snapshot,
// or 0 for an account with no entries.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType) (int64, error) {
	latest, err := s.ledgerRepo.GetLatestEntry(ctx, accountID, accountType)
	if err != nil {
		return 0, apperror.ErrDatabaseError(err)
	}
	if latest == nil {
		return 0, nil
	}
	return latest.Balance, nil
}

// GetEntries returns the account's entries, most recent first.
func (s *LedgerServiceImpl) GetEntries(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := s.ledgerRepo.List(ctx, accountID, accountType, limit)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	return entries, nil
}

// append snapshots the running balance from the row-locked latest entry and
// writes the new entry. Runs inside the caller's transaction.
func (s *LedgerServiceImpl) append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	accountID, accountType := entry.AccountID()
	if accountID == uuid.Nil {
		return apperror.InternalError(fmt.Errorf("ledger entry without account"))
	}

	latest, err := s.ledgerRepo.GetLatestEntryForUpdate(ctx, tx, accountID, accountType)
	if err != nil {
		return apperror.ErrLedgerConflict(err)
	}

	var prior int64
	if latest != nil {
		prior = latest.Balance
	}
	entry.Balance = prior + entry.SignedDelta()

	if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return apperror.ErrDatabaseError(err)
	}

	s.log.Debug().
		Str("account_id", accountID.String()).
		Str("entry_type", string(entry.Type)).
		Int64("amount", entry.Amount).
		Int64("balance", entry.Balance).
		Msg("ledger entry appended")

	return nil
}
