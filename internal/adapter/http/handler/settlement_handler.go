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

// SettlementHandler exposes operator settlement endpoints.
type SettlementHandler struct {
	settlementSvc  ports.SettlementService
	settlementRepo ports.SettlementRepository
}

// NewSettlementHandler creates a new SettlementHandler.
func NewSettlementHandler(settlementSvc ports.SettlementService, settlementRepo ports.SettlementRepository) *SettlementHandler {
	return &SettlementHandler{settlementSvc: settlementSvc, settlementRepo: settlementRepo}
}

// RunDaily handles POST /api/v1/admin/settlements/run. It settles the UTC
// day before the current one; re-running is safe because settled periods
// are skipped.
func (h *SettlementHandler) RunDaily(c *gin.Context) {
	summary, err := h.settlementSvc.ProcessDailySettlements(c.Request.Context(), time.Now().UTC())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.SettlementRunResponse{
		PeriodStart: summary.PeriodStart.Format(time.RFC3339),
		PeriodEnd:   summary.PeriodEnd.Format(time.RFC3339),
		Settled:     summary.Settled,
		Skipped:     summary.Skipped,
		Failed:      summary.Failed,
	})
}

// ListSettlements handles GET /api/v1/settlements. It returns the
// authenticated merchant's own settlement history, most recent first.
func (h *SettlementHandler) ListSettlements(c *gin.Context) {
	merchantID, ok := c.Get(middleware.CtxMerchantID)
	if !ok {
		response.Error(c, apperror.ErrInvalidAPIKey())
		return
	}
	id := merchantID.(uuid.UUID)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	settlements, err := h.settlementRepo.ListByAccount(c.Request.Context(), id, domain.AccountTypeMerchant, limit)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}

	resp := make([]dto.SettlementResponse, 0, len(settlements))
	for i := range settlements {
		resp = append(resp, toSettlementResponse(&settlements[i]))
	}
	response.OK(c, resp)
}

// GetSettlement handles GET /api/v1/admin/settlements/:id.
func (h *SettlementHandler) GetSettlement(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid settlement id"))
		return
	}

	stl, err := h.settlementRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}
	if stl == nil {
		response.Error(c, apperror.ErrNotFound("settlement"))
		return
	}

	response.OK(c, toSettlementResponse(stl))
}

func toSettlementResponse(s *domain.Settlement) dto.SettlementResponse {
	resp := dto.SettlementResponse{
		ID:               s.ID.String(),
		Amount:           s.Amount,
		FeeTotal:         s.FeeTotal,
		NetAmount:        s.NetAmount,
		Currency:         s.Currency,
		PeriodStart:      s.PeriodStart.Format(time.RFC3339),
		PeriodEnd:        s.PeriodEnd.Format(time.RFC3339),
		TransactionCount: s.TransactionCount,
		Status:           string(s.Status),
	}
	if s.MerchantID != nil {
		v := s.MerchantID.String()
		resp.MerchantID = &v
	}
	if s.SuperMerchantID != nil {
		v := s.SuperMerchantID.String()
		resp.SuperMerchantID = &v
	}
	if s.ProcessedAt != nil {
		v := s.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &v
	}
	return resp
}
