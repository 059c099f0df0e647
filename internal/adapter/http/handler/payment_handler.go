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

// PaymentHandler handles the merchant payment endpoints.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// CreatePayment handles POST /api/v1/payments.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	merchantID, ok := c.Get(middleware.CtxMerchantID)
	if !ok {
		response.Error(c, apperror.ErrInvalidAPIKey())
		return
	}

	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	ip := c.ClientIP()
	result, err := h.paymentSvc.CreatePayment(c.Request.Context(), ports.CreatePaymentRequest{
		MerchantID:      merchantID.(uuid.UUID),
		Amount:          req.Amount,
		Currency:        req.Currency,
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
		ExternalID:      req.ExternalID,
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		CustomerIP:      &ip,
		CustomerCountry: req.CustomerCountry,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Blocked {
		response.Error(c, apperror.ErrTransactionBlocked(result.Fraud.Score))
		return
	}

	response.Created(c, toTransactionResponse(result.Transaction))
}

// GetTransaction handles GET /api/v1/payments/:id.
func (h *PaymentHandler) GetTransaction(c *gin.Context) {
	merchantID, ok := c.Get(middleware.CtxMerchantID)
	if !ok {
		response.Error(c, apperror.ErrInvalidAPIKey())
		return
	}

	txID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid transaction id"))
		return
	}

	txn, err := h.paymentSvc.GetTransaction(c.Request.Context(), merchantID.(uuid.UUID), txID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransactionResponse(txn))
}

// toTransactionResponse converts domain.Transaction to its DTO.
func toTransactionResponse(tx *domain.Transaction) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:            tx.ID.String(),
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		PaymentMethod: string(tx.PaymentMethod),
		Status:        string(tx.Status),
		FraudStatus:   string(tx.FraudStatus),
		NetAmount:     tx.NetAmount,
		ExternalID:    tx.ExternalID,
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.ProcessedAt != nil {
		s := tx.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &s
	}
	return resp
}
