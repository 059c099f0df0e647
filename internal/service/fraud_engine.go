package service

import (
	"context"
	"strings"
	"time"

	"github.com/vantagepsp/psp-core/config"
	"github.com/vantagepsp/psp-core/internal/core/domain"
	"github.com/vantagepsp/psp-core/internal/core/ports"
	"github.com/vantagepsp/psp-core/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FraudEngineImpl implements ports.FraudEngine. Rules are loaded from the
// Redis cache when fresh, falling back to the database. A rule with a
// malformed config or a failing data lookup never triggers: screening
// fails open per rule, not per request.
type FraudEngineImpl struct {
	ruleRepo  ports.FraudRuleRepository
	ruleCache ports.RuleCache
	txRepo    ports.TransactionRepository
	cfg       config.FraudConfig
	log       zerolog.Logger
}

// NewFraudEngine creates a new FraudEngineImpl.
func NewFraudEngine(
	ruleRepo ports.FraudRuleRepository,
	ruleCache ports.RuleCache,
	txRepo ports.TransactionRepository,
	cfg config.FraudConfig,
	log zerolog.Logger,
) *FraudEngineImpl {
	return &FraudEngineImpl{
		ruleRepo:  ruleRepo,
		ruleCache: ruleCache,
		txRepo:    txRepo,
		cfg:       cfg,
		log:       log,
	}
}

// Evaluate scores the payment against all active rules and maps the total
// to CLEAN / REVIEW / BLOCKED using the configured thresholds.
func (e *FraudEngineImpl) Evaluate(ctx context.Context, input ports.FraudInput) (*ports.FraudResult, error) {
	rules, err := e.loadRules(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	score := 0
	var triggered []uuid.UUID

	for i := range rules {
		rule := &rules[i]
		cfg, err := rule.ParseConfig()
		if err != nil {
			e.log.Warn().Err(err).
				Str("rule_id", rule.ID.String()).
				Str("rule_name", rule.Name).
				Msg("skipping fraud rule with malformed config")
			continue
		}
		if e.ruleTriggers(ctx, input, rule, cfg) {
			score += rule.Score
			triggered = append(triggered, rule.ID)
		}
	}

	status := domain.FraudStatusClean
	switch {
	case score >= e.cfg.AutoBlockThreshold:
		status = domain.FraudStatusBlocked
	case score >= e.cfg.ScoreThreshold:
		status = domain.FraudStatusReview
	}

	return &ports.FraudResult{
		Score:          score,
		TriggeredRules: triggered,
		Status:         status,
	}, nil
}

// loadRules returns the active rule set, cache first.
func (e *FraudEngineImpl) loadRules(ctx context.Context) ([]domain.FraudRule, error) {
	cached, err := e.ruleCache.Get(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("rule cache read failed, loading from database")
	}
	if cached != nil {
		return cached, nil
	}

	rules, err := e.ruleRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	// Best-effort refill
	if err := e.ruleCache.Set(ctx, rules, e.cfg.RuleCacheTTL); err != nil {
		e.log.Warn().Err(err).Msg("failed to refill rule cache")
	}
	return rules, nil
}

func (e *FraudEngineImpl) ruleTriggers(ctx context.Context, input ports.FraudInput, rule *domain.FraudRule, cfg domain.RuleConfig) bool {
	switch c := cfg.(type) {
	case domain.VelocityConfig:
		return e.velocityTriggers(ctx, input, c)
	case domain.AmountThresholdConfig:
		return input.Amount >= c.Threshold
	case domain.CountryBlockConfig:
		if input.CustomerCountry == nil {
			return false
		}
		for _, blocked := range c.BlockedCountries {
			if strings.EqualFold(blocked, *input.CustomerCountry) {
				return true
			}
		}
		return false
	case domain.IPBlockConfig:
		if input.CustomerIP == nil {
			return false
		}
		for _, blocked := range c.BlockedIPs {
			if blocked == *input.CustomerIP {
				return true
			}
		}
		return false
	case *domain.EmailPatternConfig:
		if input.CustomerEmail == nil {
			return false
		}
		return c.Matches(*input.CustomerEmail)
	default:
		e.log.Warn().Str("rule_id", rule.ID.String()).Msg("unhandled rule config type")
		return false
	}
}

// velocityTriggers checks the customer's trailing transaction count and
// amount at this merchant. Without a customer email there is no identity to
// key the window on, so the rule does not trigger.
func (e *FraudEngineImpl) velocityTriggers(ctx context.Context, input ports.FraudInput, c domain.VelocityConfig) bool {
	if input.CustomerEmail == nil {
		return false
	}

	since := time.Now().UTC().Add(-time.Duration(c.WindowMinutes) * time.Minute)

	count, err := e.txRepo.CountByCustomerSince(ctx, input.MerchantID, *input.CustomerEmail, since)
	if err != nil {
		e.log.Warn().Err(err).Msg("velocity count lookup failed, rule not triggered")
		return false
	}
	if count >= c.MaxTransactions {
		return true
	}

	if c.MaxAmount > 0 {
		sum, err := e.txRepo.SumAmountByCustomerSince(ctx, input.MerchantID, *input.CustomerEmail, since)
		if err != nil {
			e.log.Warn().Err(err).Msg("velocity sum lookup failed, rule not triggered")
			return false
		}
		if sum >= c.MaxAmount {
			return true
		}
	}
	return false
}
