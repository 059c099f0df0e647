package handler

import (
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

// FraudHandler exposes operator fraud-review endpoints.
type FraudHandler struct {
	caseSvc ports.FraudCaseService
}

// NewFraudHandler creates a new FraudHandler.
func NewFraudHandler(caseSvc ports.FraudCaseService) *FraudHandler {
	return &FraudHandler{caseSvc: caseSvc}
}

// GetCase handles GET /api/v1/admin/fraud-cases/:id.
func (h *FraudHandler) GetCase(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid fraud case id"))
		return
	}

	fc, err := h.caseSvc.GetCase(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toFraudCaseResponse(fc))
}

// ResolveCase handles POST /api/v1/admin/fraud-cases/:id/resolve.
func (h *FraudHandler) ResolveCase(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid fraud case id"))
		return
	}

	var req dto.ResolveCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	reviewer := req.Reviewer
	if subject := c.GetString(middleware.CtxSubject); subject != "" {
		reviewer = subject
	}

	fc, err := h.caseSvc.ResolveCase(c.Request.Context(), id, domain.FraudCaseStatus(req.Decision), reviewer)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toFraudCaseResponse(fc))
}

func toFraudCaseResponse(fc *domain.FraudCase) dto.FraudCaseResponse {
	rules := make([]string, 0, len(fc.TriggeredRules))
	for _, id := range fc.TriggeredRules {
		rules = append(rules, id.String())
	}
	return dto.FraudCaseResponse{
		ID:             fc.ID.String(),
		TransactionID:  fc.TransactionID.String(),
		MerchantID:     fc.MerchantID.String(),
		FraudScore:     fc.FraudScore,
		TriggeredRules: rules,
		Status:         string(fc.Status),
		CreatedAt:      fc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      fc.UpdatedAt.Format(time.RFC3339),
	}
}
