package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/vantagepsp/psp-core/internal/adapter/http/dto"
	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/internal/core/ports"
	"github.com/vantagepsp/psp-core/pkg/apperror"
	"github.com/vantagepsp/psp-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HeaderProcessorSignature carries the processor's HMAC over the raw body.
const HeaderProcessorSignature = "X-Processor-Signature"

// WebhookHandler receives payment processor callbacks.
type WebhookHandler struct {
	paymentSvc    ports.PaymentService
	sigSvc        ports.SignatureService
	webhookSecret string
	log           zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(paymentSvc ports.PaymentService, sigSvc ports.SignatureService, webhookSecret string, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		paymentSvc:    paymentSvc,
		sigSvc:        sigSvc,
		webhookSecret: webhookSecret,
		log:           log,
	}
}

// HandleProcessorEvent handles POST /webhooks/processor. The signature is
// verified over the exact raw bytes before any decoding.
func (h *WebhookHandler) HandleProcessorEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	signature := c.GetHeader(HeaderProcessorSignature)
	if signature == "" || !h.sigSvc.Verify(h.webhookSecret, body, signature) {
		response.Error(c, apperror.ErrInvalidSignature())
		return
	}

	var req dto.ProcessorWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.Error(c, apperror.Validation("malformed webhook body"))
		return
	}
	if req.PaymentID == "" || req.EventType == "" {
		response.Error(c, apperror.Validation("payment_id and event_type are required"))
		return
	}

	var txID uuid.UUID
	if req.TransactionID != "" {
		txID, err = uuid.Parse(req.TransactionID)
		if err != nil {
			response.Error(c, apperror.Validation("invalid transaction_id"))
			return
		}
	}

	occurredAt := time.Now().UTC()
	if req.OccurredAt != "" {
		if at, err := time.Parse(time.RFC3339, req.OccurredAt); err == nil {
			occurredAt = at
		}
	}

	txn, err := h.paymentSvc.ApplyProcessorEvent(c.Request.Context(), ports.ProcessorEventInput{
		PaymentID:     req.PaymentID,
		EventType:     domain.ProcessorEventType(req.EventType),
		TransactionID: txID,
		Payload:       body,
		OccurredAt:    occurredAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransactionResponse(txn))
}
