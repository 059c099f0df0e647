package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vantagepsp/psp-core/internal/adapter/http/dto"
	"github.com/vantagepsp/psp-core/internal/adapter/http/middleware"
	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/internal/core/ports"
	"github.com/vantagepsp/psp-core/internal/core/ports/mocks"
	"github.com/vantagepsp/psp-core/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func sampleTransaction(merchantID uuid.UUID) *domain.Transaction {
	return &domain.Transaction{
		ID:            uuid.New(),
		MerchantID:    merchantID,
		Amount:        10000,
		Currency:      "USD",
		PaymentMethod: domain.PaymentMethodCard,
		Status:        domain.TransactionStatusProcessing,
		FraudStatus:   domain.FraudStatusClean,
		NetAmount:     9650,
		CreatedAt:     time.Now().UTC(),
	}
}

// --- Payment Handler Tests ---

func TestCreatePayment_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPayment := mocks.NewMockPaymentService(ctrl)
	h := NewPaymentHandler(mockPayment)

	merchantID := uuid.New()
	txn := sampleTransaction(merchantID)
	mockPayment.EXPECT().CreatePayment(gomock.Any(), gomock.Any()).
		Return(&ports.CreatePaymentResult{Transaction: txn}, nil)

	body, _ := json.Marshal(dto.CreatePaymentRequest{
		Amount:        10000,
		Currency:      "USD",
		PaymentMethod: "CARD",
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.CtxMerchantID, merchantID)

	h.CreatePayment(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, txn.ID.String(), data["id"])
	assert.Equal(t, "PROCESSING", data["status"])
}

func TestCreatePayment_Blocked(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPayment := mocks.NewMockPaymentService(ctrl)
	h := NewPaymentHandler(mockPayment)

	merchantID := uuid.New()
	txn := sampleTransaction(merchantID)
	txn.Status = domain.TransactionStatusFailed
	txn.FraudStatus = domain.FraudStatusBlocked
	mockPayment.EXPECT().CreatePayment(gomock.Any(), gomock.Any()).
		Return(&ports.CreatePaymentResult{
			Transaction: txn,
			Fraud:       ports.FraudResult{Score: 95, Status: domain.FraudStatusBlocked},
			Blocked:     true,
		}, nil)

	body, _ := json.Marshal(dto.CreatePaymentRequest{
		Amount:        10000,
		Currency:      "USD",
		PaymentMethod: "CARD",
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.CtxMerchantID, merchantID)

	h.CreatePayment(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "FRD_001", resp["error_code"])
}

func TestCreatePayment_ValidationError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPayment := mocks.NewMockPaymentService(ctrl)
	h := NewPaymentHandler(mockPayment)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader([]byte("{}")))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.CtxMerchantID, uuid.New())

	h.CreatePayment(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePayment_NoAuthContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPayment := mocks.NewMockPaymentService(ctrl)
	h := NewPaymentHandler(mockPayment)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader([]byte("{}")))

	h.CreatePayment(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetTransaction_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPayment := mocks.NewMockPaymentService(ctrl)
	h := NewPaymentHandler(mockPayment)

	merchantID := uuid.New()
	txn := sampleTransaction(merchantID)
	mockPayment.EXPECT().GetTransaction(gomock.Any(), merchantID, txn.ID).Return(txn, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+txn.ID.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: txn.ID.String()}}
	c.Set(middleware.CtxMerchantID, merchantID)

	h.GetTransaction(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Webhook Handler Tests ---

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newWebhookHandler(ctrl *gomock.Controller) (*WebhookHandler, *mocks.MockPaymentService) {
	mockPayment := mocks.NewMockPaymentService(ctrl)
	sigSvc := mocks.NewMockSignatureService(ctrl)
	sigSvc.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(secret string, payload []byte, signature string) bool {
			return signBody(secret, payload) == signature
		}).AnyTimes()
	h := NewWebhookHandler(mockPayment, sigSvc, "whsec_test", zerolog.Nop())
	return h, mockPayment
}

func TestHandleProcessorEvent_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h, mockPayment := newWebhookHandler(ctrl)

	merchantID := uuid.New()
	txn := sampleTransaction(merchantID)
	txn.Status = domain.TransactionStatusCaptured

	body, _ := json.Marshal(dto.ProcessorWebhookRequest{
		PaymentID:     "pay_123",
		EventType:     "payment.captured",
		TransactionID: txn.ID.String(),
	})

	mockPayment.EXPECT().ApplyProcessorEvent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, in ports.ProcessorEventInput) (*domain.Transaction, error) {
			assert.Equal(t, "pay_123", in.PaymentID)
			assert.Equal(t, domain.ProcessorEventCaptured, in.EventType)
			assert.Equal(t, txn.ID, in.TransactionID)
			return txn, nil
		})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhooks/processor", bytes.NewReader(body))
	c.Request.Header.Set(HeaderProcessorSignature, signBody("whsec_test", body))

	h.HandleProcessorEvent(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleProcessorEvent_InvalidSignature(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h, _ := newWebhookHandler(ctrl)

	body := []byte(`{"payment_id":"pay_123","event_type":"payment.captured"}`)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhooks/processor", bytes.NewReader(body))
	c.Request.Header.Set(HeaderProcessorSignature, "deadbeef")

	h.HandleProcessorEvent(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "SEC_002", resp["error_code"])
}

func TestHandleProcessorEvent_MissingSignature(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h, _ := newWebhookHandler(ctrl)

	body := []byte(`{"payment_id":"pay_123","event_type":"payment.captured"}`)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhooks/processor", bytes.NewReader(body))

	h.HandleProcessorEvent(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleProcessorEvent_DuplicateEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h, mockPayment := newWebhookHandler(ctrl)

	body := []byte(`{"payment_id":"pay_123","event_type":"payment.captured"}`)
	mockPayment.EXPECT().ApplyProcessorEvent(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrDuplicateEvent())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhooks/processor", bytes.NewReader(body))
	c.Request.Header.Set(HeaderProcessorSignature, signBody("whsec_test", body))

	h.HandleProcessorEvent(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "PAY_005", resp["error_code"])
}

// --- Fraud Handler Tests ---

func TestResolveCase_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockCase := mocks.NewMockFraudCaseService(ctrl)
	h := NewFraudHandler(mockCase)

	fc := &domain.FraudCase{
		ID:            uuid.New(),
		TransactionID: uuid.New(),
		MerchantID:    uuid.New(),
		FraudScore:    80,
		Status:        domain.FraudCaseStatusApproved,
	}
	mockCase.EXPECT().ResolveCase(gomock.Any(), fc.ID, domain.FraudCaseStatusApproved, "analyst-1").Return(fc, nil)

	body, _ := json.Marshal(dto.ResolveCaseRequest{Decision: "APPROVED", Reviewer: "fallback"})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/admin/fraud-cases/"+fc.ID.String()+"/resolve", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: fc.ID.String()}}
	c.Set(middleware.CtxSubject, "analyst-1")

	h.ResolveCase(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "APPROVED", data["status"])
}

func TestResolveCase_AlreadyResolved(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockCase := mocks.NewMockFraudCaseService(ctrl)
	h := NewFraudHandler(mockCase)

	id := uuid.New()
	mockCase.EXPECT().ResolveCase(gomock.Any(), id, gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrFraudCaseClosed())

	body, _ := json.Marshal(dto.ResolveCaseRequest{Decision: "REJECTED", Reviewer: "analyst-1"})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/admin/fraud-cases/"+id.String()+"/resolve", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.ResolveCase(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

// --- Settlement Handler Tests ---

func TestRunDaily_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSettlement := mocks.NewMockSettlementService(ctrl)
	mockRepo := mocks.NewMockSettlementRepository(ctrl)
	h := NewSettlementHandler(mockSettlement, mockRepo)

	mockSettlement.EXPECT().ProcessDailySettlements(gomock.Any(), gomock.Any()).
		Return(&ports.SettlementRunSummary{Settled: 3, Skipped: 1}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/admin/settlements/run", nil)

	h.RunDaily(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["settled"])
	assert.Equal(t, float64(1), data["skipped"])
}

func TestListSettlements_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSettlement := mocks.NewMockSettlementService(ctrl)
	mockRepo := mocks.NewMockSettlementRepository(ctrl)
	h := NewSettlementHandler(mockSettlement, mockRepo)

	merchantID := uuid.New()
	mockRepo.EXPECT().ListByAccount(gomock.Any(), merchantID, domain.AccountTypeMerchant, 50).
		Return([]domain.Settlement{
			{ID: uuid.New(), MerchantID: &merchantID, Amount: 10000, FeeTotal: 200, NetAmount: 9800,
				Currency: "USD", Status: domain.SettlementStatusCompleted},
		}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/settlements", nil)
	c.Set(middleware.CtxMerchantID, merchantID)

	h.ListSettlements(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].([]interface{})
	require.Len(t, data, 1)
	first := data[0].(map[string]interface{})
	assert.Equal(t, float64(9800), first["net_amount"])
	assert.Equal(t, "COMPLETED", first["status"])
}

func TestGetSettlement_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockSettlement := mocks.NewMockSettlementService(ctrl)
	mockRepo := mocks.NewMockSettlementRepository(ctrl)
	h := NewSettlementHandler(mockSettlement, mockRepo)

	id := uuid.New()
	mockRepo.EXPECT().GetByID(gomock.Any(), id).Return(nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/admin/settlements/"+id.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.GetSettlement(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// --- Health Check Tests ---

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Ping(_ context.Context) error { return s.err }
func (s stubChecker) Name() string                 { return s.name }

func TestHealthCheck_AllHealthy(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(stubChecker{name: "postgres"}, stubChecker{name: "redis"})(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthCheck_Degraded(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(stubChecker{name: "postgres"}, stubChecker{name: "redis", err: errors.New("connection refused")})(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
