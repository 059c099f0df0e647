package integration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Merchant Repo ---

type inMemoryMerchantRepo struct {
	mu        sync.RWMutex
	merchants map[uuid.UUID]*domain.Merchant
}

func newInMemoryMerchantRepo() *inMemoryMerchantRepo {
	return &inMemoryMerchantRepo{merchants: make(map[uuid.UUID]*domain.Merchant)}
}

func (r *inMemoryMerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.merchants[m.ID] = &cp
	return nil
}

func (r *inMemoryMerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.merchants[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *inMemoryMerchantRepo) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.merchants {
		if m.APIKey == apiKey {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryMerchantRepo) ListActive(ctx context.Context) ([]domain.Merchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Merchant
	for _, m := range r.merchants {
		if m.Status == domain.AccountStatusActive {
			result = append(result, *m)
		}
	}
	return result, nil
}

// --- In-Memory Super-Merchant Repo ---

type inMemorySuperMerchantRepo struct {
	mu     sync.RWMutex
	supers map[uuid.UUID]*domain.SuperMerchant
}

func newInMemorySuperMerchantRepo() *inMemorySuperMerchantRepo {
	return &inMemorySuperMerchantRepo{supers: make(map[uuid.UUID]*domain.SuperMerchant)}
}

func (r *inMemorySuperMerchantRepo) Create(ctx context.Context, sm *domain.SuperMerchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *sm
	r.supers[sm.ID] = &cp
	return nil
}

func (r *inMemorySuperMerchantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.SuperMerchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sm, ok := r.supers[id]
	if !ok {
		return nil, nil
	}
	cp := *sm
	return &cp, nil
}

func (r *inMemorySuperMerchantRepo) ListActive(ctx context.Context) ([]domain.SuperMerchant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.SuperMerchant
	for _, sm := range r.supers {
		if sm.Status == domain.AccountStatusActive {
			result = append(result, *sm)
		}
	}
	return result, nil
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.Transaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{transactions: make(map[uuid.UUID]*domain.Transaction)}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.transactions[t.ID] = &cp
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryTransactionRepo) GetByProcessorPaymentID(ctx context.Context, paymentID string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transactions {
		if t.ProcessorPaymentID != nil && *t.ProcessorPaymentID == paymentID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, processedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return fmt.Errorf("transaction not found")
	}
	t.Status = status
	if processedAt != nil {
		t.ProcessedAt = processedAt
	}
	return nil
}

func (r *inMemoryTransactionRepo) SetProcessorPaymentID(ctx context.Context, tx pgx.Tx, id uuid.UUID, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return fmt.Errorf("transaction not found")
	}
	t.ProcessorPaymentID = &paymentID
	return nil
}

func (r *inMemoryTransactionRepo) ListCapturedInPeriod(ctx context.Context, merchantID uuid.UUID, periodStart, periodEnd time.Time) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.transactions {
		if t.MerchantID != merchantID || t.Status != domain.TransactionStatusCaptured || t.ProcessedAt == nil {
			continue
		}
		if t.ProcessedAt.Before(periodStart) || !t.ProcessedAt.Before(periodEnd) {
			continue
		}
		result = append(result, *t)
	}
	return result, nil
}

func (r *inMemoryTransactionRepo) CountByCustomerSince(ctx context.Context, merchantID uuid.UUID, customerEmail string, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, t := range r.transactions {
		if t.MerchantID == merchantID && t.CustomerEmail != nil && *t.CustomerEmail == customerEmail && !t.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *inMemoryTransactionRepo) SumAmountByCustomerSince(ctx context.Context, merchantID uuid.UUID, customerEmail string, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum int64
	for _, t := range r.transactions {
		if t.MerchantID == merchantID && t.CustomerEmail != nil && *t.CustomerEmail == customerEmail && !t.CreatedAt.Before(since) {
			sum += t.Amount
		}
	}
	return sum, nil
}

// --- In-Memory Ledger Repo ---

type inMemoryLedgerRepo struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
}

func newInMemoryLedgerRepo() *inMemoryLedgerRepo {
	return &inMemoryLedgerRepo{}
}

func (r *inMemoryLedgerRepo) Create(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *entry
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.entries = append(r.entries, cp)
	return nil
}

func (r *inMemoryLedgerRepo) accountEntries(accountID uuid.UUID, accountType domain.AccountType) []domain.LedgerEntry {
	var result []domain.LedgerEntry
	for _, e := range r.entries {
		id, typ := e.AccountID()
		if id == accountID && typ == accountType {
			result = append(result, e)
		}
	}
	return result
}

func (r *inMemoryLedgerRepo) GetLatestEntry(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType) (*domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.accountEntries(accountID, accountType)
	if len(entries) == 0 {
		return nil, nil
	}
	last := entries[len(entries)-1]
	return &last, nil
}

func (r *inMemoryLedgerRepo) GetLatestEntryForUpdate(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, accountType domain.AccountType) (*domain.LedgerEntry, error) {
	return r.GetLatestEntry(ctx, accountID, accountType)
}

func (r *inMemoryLedgerRepo) List(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType, limit int) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.accountEntries(accountID, accountType)
	// Most recent first, like the SQL implementation.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *inMemoryLedgerRepo) ListCommissionInPeriod(ctx context.Context, superMerchantID uuid.UUID, periodStart, periodEnd time.Time) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.LedgerEntry
	for _, e := range r.entries {
		if e.Type != domain.LedgerEntryCommissionCredit || e.SuperMerchantID == nil || *e.SuperMerchantID != superMerchantID {
			continue
		}
		if e.CreatedAt.Before(periodStart) || !e.CreatedAt.Before(periodEnd) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

// --- In-Memory Settlement Repo ---

type inMemorySettlementRepo struct {
	mu          sync.RWMutex
	settlements map[uuid.UUID]*domain.Settlement
}

func newInMemorySettlementRepo() *inMemorySettlementRepo {
	return &inMemorySettlementRepo{settlements: make(map[uuid.UUID]*domain.Settlement)}
}

func (r *inMemorySettlementRepo) Create(ctx context.Context, s *domain.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	accountID, accountType := s.AccountID()
	for _, existing := range r.settlements {
		if existing.Status == domain.SettlementStatusFailed {
			continue
		}
		id, typ := existing.AccountID()
		if id == accountID && typ == accountType &&
			existing.PeriodStart.Equal(s.PeriodStart) && existing.PeriodEnd.Equal(s.PeriodEnd) {
			return apperror.ErrDuplicateSettlement()
		}
	}
	cp := *s
	r.settlements[s.ID] = &cp
	return nil
}

func (r *inMemorySettlementRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Settlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settlements[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *inMemorySettlementRepo) ExistsForPeriod(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType, periodStart, periodEnd time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.settlements {
		if s.Status == domain.SettlementStatusFailed {
			continue
		}
		id, typ := s.AccountID()
		if id == accountID && typ == accountType && s.PeriodStart.Equal(periodStart) && s.PeriodEnd.Equal(periodEnd) {
			return true, nil
		}
	}
	return false, nil
}

func (r *inMemorySettlementRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, processedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settlements[id]
	if !ok {
		return fmt.Errorf("settlement not found")
	}
	s.Status = domain.SettlementStatusCompleted
	s.ProcessedAt = &processedAt
	return nil
}

func (r *inMemorySettlementRepo) MarkFailed(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settlements[id]
	if !ok {
		return fmt.Errorf("settlement not found")
	}
	s.Status = domain.SettlementStatusFailed
	return nil
}

func (r *inMemorySettlementRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, accountType domain.AccountType, limit int) ([]domain.Settlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Settlement
	for _, s := range r.settlements {
		id, typ := s.AccountID()
		if id == accountID && typ == accountType {
			result = append(result, *s)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// --- In-Memory Fraud Rule Repo ---

type inMemoryFraudRuleRepo struct {
	mu    sync.RWMutex
	rules []domain.FraudRule
}

func newInMemoryFraudRuleRepo() *inMemoryFraudRuleRepo {
	return &inMemoryFraudRuleRepo{}
}

func (r *inMemoryFraudRuleRepo) add(rule domain.FraudRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
}

func (r *inMemoryFraudRuleRepo) ListActive(ctx context.Context) ([]domain.FraudRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.FraudRule
	for _, rule := range r.rules {
		if rule.IsActive {
			result = append(result, rule)
		}
	}
	return result, nil
}

// --- In-Memory Fraud Case Repo ---

type inMemoryFraudCaseRepo struct {
	mu    sync.RWMutex
	cases map[uuid.UUID]*domain.FraudCase
}

func newInMemoryFraudCaseRepo() *inMemoryFraudCaseRepo {
	return &inMemoryFraudCaseRepo{cases: make(map[uuid.UUID]*domain.FraudCase)}
}

func (r *inMemoryFraudCaseRepo) Create(ctx context.Context, c *domain.FraudCase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.cases {
		if existing.TransactionID == c.TransactionID {
			return apperror.ErrDuplicateFraudCase()
		}
	}
	cp := *c
	r.cases[c.ID] = &cp
	return nil
}

func (r *inMemoryFraudCaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.FraudCase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *inMemoryFraudCaseRepo) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*domain.FraudCase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.cases {
		if c.TransactionID == transactionID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryFraudCaseRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.FraudCaseStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cases[id]
	if !ok {
		return fmt.Errorf("fraud case not found")
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Processor Event Repo ---

type inMemoryProcessorEventRepo struct {
	mu     sync.RWMutex
	events map[string]*domain.ProcessorEvent
}

func newInMemoryProcessorEventRepo() *inMemoryProcessorEventRepo {
	return &inMemoryProcessorEventRepo{events: make(map[string]*domain.ProcessorEvent)}
}

func (r *inMemoryProcessorEventRepo) Create(ctx context.Context, tx pgx.Tx, ev *domain.ProcessorEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := domain.DedupeKey(ev.PaymentID, ev.EventType)
	if _, ok := r.events[key]; ok {
		return apperror.ErrDuplicateEvent()
	}
	cp := *ev
	r.events[key] = &cp
	return nil
}

func (r *inMemoryProcessorEventRepo) Exists(ctx context.Context, paymentID string, eventType domain.ProcessorEventType) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.events[domain.DedupeKey(paymentID, eventType)]
	return ok, nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu   sync.RWMutex
	logs []domain.AuditLog
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
