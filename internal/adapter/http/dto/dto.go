package dto

// CreatePaymentRequest is the request body for payment creation.
type CreatePaymentRequest struct {
	Amount          int64   `json:"amount" binding:"required,gt=0"`
	Currency        string  `json:"currency" binding:"required,currency_code"`
	PaymentMethod   string  `json:"payment_method" binding:"required,payment_method"`
	ExternalID      *string `json:"external_id,omitempty" binding:"omitempty,max=100"`
	CustomerEmail   *string `json:"customer_email,omitempty" binding:"omitempty,email"`
	CustomerName    *string `json:"customer_name,omitempty" binding:"omitempty,max=200"`
	CustomerCountry *string `json:"customer_country,omitempty" binding:"omitempty,country_code"`
}

// TransactionResponse is the response body for transaction results.
type TransactionResponse struct {
	ID            string  `json:"id"`
	Amount        int64   `json:"amount"`
	Currency      string  `json:"currency"`
	PaymentMethod string  `json:"payment_method"`
	Status        string  `json:"status"`
	FraudStatus   string  `json:"fraud_status"`
	NetAmount     int64   `json:"net_amount"`
	ExternalID    *string `json:"external_id,omitempty"`
	CreatedAt     string  `json:"created_at"`
	ProcessedAt   *string `json:"processed_at,omitempty"`
}

// ProcessorWebhookRequest is the processor callback body. The raw request
// body is what gets signature-verified, not this decoded form.
type ProcessorWebhookRequest struct {
	PaymentID     string `json:"payment_id" binding:"required,max=100"`
	EventType     string `json:"event_type" binding:"required"`
	TransactionID string `json:"transaction_id,omitempty" binding:"omitempty,uuid"`
	OccurredAt    string `json:"occurred_at,omitempty"`
}

// BalanceResponse is the response for a ledger balance query.
type BalanceResponse struct {
	AccountID   string `json:"account_id"`
	AccountType string `json:"account_type"`
	Balance     int64  `json:"balance"`
}

// LedgerEntryResponse is one ledger entry in a listing.
type LedgerEntryResponse struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Amount        int64   `json:"amount"`
	Currency      string  `json:"currency"`
	Balance       int64   `json:"balance"`
	TransactionID *string `json:"transaction_id,omitempty"`
	SettlementID  *string `json:"settlement_id,omitempty"`
	Description   string  `json:"description"`
	CreatedAt     string  `json:"created_at"`
}

// SettlementResponse is the response body for settlement records.
type SettlementResponse struct {
	ID               string  `json:"id"`
	MerchantID       *string `json:"merchant_id,omitempty"`
	SuperMerchantID  *string `json:"super_merchant_id,omitempty"`
	Amount           int64   `json:"amount"`
	FeeTotal         int64   `json:"fee_total"`
	NetAmount        int64   `json:"net_amount"`
	Currency         string  `json:"currency"`
	PeriodStart      string  `json:"period_start"`
	PeriodEnd        string  `json:"period_end"`
	TransactionCount int     `json:"transaction_count"`
	Status           string  `json:"status"`
	ProcessedAt      *string `json:"processed_at,omitempty"`
}

// SettlementRunResponse summarizes a manual settlement run.
type SettlementRunResponse struct {
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	Settled     int    `json:"settled"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
}

// FraudCaseResponse is the response body for fraud case queries.
type FraudCaseResponse struct {
	ID             string   `json:"id"`
	TransactionID  string   `json:"transaction_id"`
	MerchantID     string   `json:"merchant_id"`
	FraudScore     int      `json:"fraud_score"`
	TriggeredRules []string `json:"triggered_rules"`
	Status         string   `json:"status"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

// ResolveCaseRequest is the request body for resolving a fraud case.
type ResolveCaseRequest struct {
	Decision string `json:"decision" binding:"required,oneof=APPROVED REJECTED"`
	Reviewer string `json:"reviewer" binding:"required,max=100"`
}
