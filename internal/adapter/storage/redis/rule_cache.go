package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vantagepsp/psp-core/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// RuleCache implements ports.RuleCache using a single Redis key holding the
// JSON-encoded active rule set.
type RuleCache struct {
	client *goredis.Client
	key    string
}

// NewRuleCache creates a new Redis-backed fraud rule cache.
func NewRuleCache(client *goredis.Client) *RuleCache {
	return &RuleCache{
		client: client,
		key:    "fraud:rules:active",
	}
}

// Get retrieves the cached rule set. Returns nil, nil on a miss.
func (c *RuleCache) Get(ctx context.Context) ([]domain.FraudRule, error) {
	val, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis rule cache get: %w", err)
	}

	var rules []domain.FraudRule
	if err := json.Unmarshal(val, &rules); err != nil {
		return nil, fmt.Errorf("redis rule cache decode: %w", err)
	}
	return rules, nil
}

// Set stores the rule set with TTL.
func (c *RuleCache) Set(ctx context.Context, rules []domain.FraudRule, ttl time.Duration) error {
	data, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("redis rule cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis rule cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached rule set so the next load hits the database.
func (c *RuleCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("redis rule cache invalidate: %w", err)
	}
	return nil
}
