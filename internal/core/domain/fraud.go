package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// FraudRuleType enumerates the supported rule predicates.
type FraudRuleType string

const (
	FraudRuleVelocity        FraudRuleType = "VELOCITY"
	FraudRuleAmountThreshold FraudRuleType = "AMOUNT_THRESHOLD"
	FraudRuleCountryBlock    FraudRuleType = "COUNTRY_BLOCK"
	FraudRuleIPBlock         FraudRuleType = "IP_BLOCK"
	FraudRuleEmailPattern    FraudRuleType = "EMAIL_PATTERN"
)

// FraudRule is a configured screening rule. Config is stored as JSON and
// parsed once into a typed variant via ParseConfig; it is never interpreted
// per evaluation.
type FraudRule struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Type      FraudRuleType   `json:"type"`
	Score     int             `json:"score"`
	IsActive  bool            `json:"is_active"`
	RawConfig json.RawMessage `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RuleConfig is the tagged union of per-type rule configurations.
type RuleConfig interface {
	ruleConfig()
}

// VelocityConfig triggers when a merchant+customer pair exceeds a
// transaction count or summed amount within a trailing window.
type VelocityConfig struct {
	WindowMinutes   int   `json:"windowMinutes"`
	MaxTransactions int64 `json:"maxTransactions"`
	MaxAmount       int64 `json:"maxAmount"` // minor units; 0 disables the amount check
}

// AmountThresholdConfig triggers when amount >= Threshold (minor units).
type AmountThresholdConfig struct {
	Threshold int64 `json:"threshold"`
}

// CountryBlockConfig triggers when the transaction country is listed.
type CountryBlockConfig struct {
	BlockedCountries []string `json:"blockedCountries"`
}

// IPBlockConfig triggers when the customer IP is listed.
type IPBlockConfig struct {
	BlockedIPs []string `json:"blockedIps"`
}

// EmailPatternConfig triggers when any pattern matches the customer email.
// Patterns are compiled at parse time.
type EmailPatternConfig struct {
	Patterns []string `json:"patterns"`
	compiled []*regexp.Regexp
}

func (VelocityConfig) ruleConfig()        {}
func (AmountThresholdConfig) ruleConfig() {}
func (CountryBlockConfig) ruleConfig()    {}
func (IPBlockConfig) ruleConfig()         {}
func (*EmailPatternConfig) ruleConfig()   {}

// Matches reports whether any compiled pattern matches the email.
func (c *EmailPatternConfig) Matches(email string) bool {
	for _, re := range c.compiled {
		if re.MatchString(email) {
			return true
		}
	}
	return false
}

// ParseConfig decodes the rule's raw JSON config into its typed variant.
// A malformed config returns an error; callers treat such a rule as
// non-triggering rather than failing the evaluation.
func (r *FraudRule) ParseConfig() (RuleConfig, error) {
	switch r.Type {
	case FraudRuleVelocity:
		cfg := VelocityConfig{WindowMinutes: 60, MaxTransactions: 10}
		if err := json.Unmarshal(r.RawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("velocity config: %w", err)
		}
		if cfg.WindowMinutes <= 0 || cfg.MaxTransactions <= 0 {
			return nil, fmt.Errorf("velocity config: window and max transactions must be positive")
		}
		return cfg, nil
	case FraudRuleAmountThreshold:
		var cfg AmountThresholdConfig
		if err := json.Unmarshal(r.RawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("amount threshold config: %w", err)
		}
		if cfg.Threshold <= 0 {
			return nil, fmt.Errorf("amount threshold config: threshold must be positive")
		}
		return cfg, nil
	case FraudRuleCountryBlock:
		var cfg CountryBlockConfig
		if err := json.Unmarshal(r.RawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("country block config: %w", err)
		}
		return cfg, nil
	case FraudRuleIPBlock:
		var cfg IPBlockConfig
		if err := json.Unmarshal(r.RawConfig, &cfg); err != nil {
			return nil, fmt.Errorf("ip block config: %w", err)
		}
		return cfg, nil
	case FraudRuleEmailPattern:
		cfg := &EmailPatternConfig{}
		if err := json.Unmarshal(r.RawConfig, cfg); err != nil {
			return nil, fmt.Errorf("email pattern config: %w", err)
		}
		for _, p := range cfg.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("email pattern %q: %w", p, err)
			}
			cfg.compiled = append(cfg.compiled, re)
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("unknown rule type %q", r.Type)
	}
}

// FraudCaseStatus is the review state of a fraud case.
type FraudCaseStatus string

const (
	FraudCaseStatusOpen        FraudCaseStatus = "OPEN"         // blocked, awaiting investigation
	FraudCaseStatusUnderReview FraudCaseStatus = "UNDER_REVIEW" // flagged, payment proceeded
	FraudCaseStatusApproved    FraudCaseStatus = "APPROVED"
	FraudCaseStatusRejected    FraudCaseStatus = "REJECTED"
)

// FraudCase is a human-review record created when a transaction's risk
// score crosses the review or block threshold. Unique per transaction.
type FraudCase struct {
	ID             uuid.UUID       `json:"id"`
	TransactionID  uuid.UUID       `json:"transaction_id"`
	MerchantID     uuid.UUID       `json:"merchant_id"`
	FraudScore     int             `json:"fraud_score"`
	TriggeredRules []uuid.UUID     `json:"triggered_rules"`
	Status         FraudCaseStatus `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsResolved returns true once human review reached a terminal decision.
func (c *FraudCase) IsResolved() bool {
	return c.Status == FraudCaseStatusApproved || c.Status == FraudCaseStatusRejected
}
