package handler

import (
	"strconv"
	"time"

	"github.com/vantagepsp/psp-core/internal/adapter/http/dto"
	"github.com/vantagepsp/psp-core/internal/adapter/http/middleware"
	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/internal/core/ports"
	"github.com/vantagepsp/psp-core/pkg/apperror"
	"github.com/vantagepsp/psp-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LedgerHandler exposes merchant-facing balance and entry queries.
type LedgerHandler struct {
	ledgerSvc ports.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerSvc ports.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerSvc: ledgerSvc}
}

// GetBalance handles GET /api/v1/ledger/balance.
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	merchantID, ok := c.Get(middleware.CtxMerchantID)
	if !ok {
		response.Error(c, apperror.ErrInvalidAPIKey())
		return
	}
	id := merchantID.(uuid.UUID)

	balance, err := h.ledgerSvc.GetBalance(c.Request.Context(), id, domain.AccountTypeMerchant)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		AccountID:   id.String(),
		AccountType: string(domain.AccountTypeMerchant),
		Balance:     balance,
	})
}

// ListEntries handles GET /api/v1/ledger/entries.
func (h *LedgerHandler) ListEntries(c *gin.Context) {
	merchantID, ok := c.Get(middleware.CtxMerchantID)
	if !ok {
		response.Error(c, apperror.ErrInvalidAPIKey())
		return
	}
	id := merchantID.(uuid.UUID)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	entries, err := h.ledgerSvc.GetEntries(c.Request.Context(), id, domain.AccountTypeMerchant, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := make([]dto.LedgerEntryResponse, 0, len(entries))
	for i := range entries {
		resp = append(resp, toLedgerEntryResponse(&entries[i]))
	}
	response.OK(c, resp)
}

func toLedgerEntryResponse(e *domain.LedgerEntry) dto.LedgerEntryResponse {
	resp := dto.LedgerEntryResponse{
		ID:          e.ID.String(),
		Type:        string(e.Type),
		Amount:      e.Amount,
		Currency:    e.Currency,
		Balance:     e.Balance,
		Description: e.Description,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
	if e.TransactionID != nil {
		s := e.TransactionID.String()
		resp.TransactionID = &s
	}
	if e.SettlementID != nil {
		s := e.SettlementID.String()
		resp.SettlementID = &s
	}
	return resp
}
