package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/vantagepsp/psp-core/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules() []domain.FraudRule {
	return []domain.FraudRule{
		{
			ID:        uuid.New(),
			Name:      "high amount",
			Type:      domain.FraudRuleAmountThreshold,
			Score:     40,
			IsActive:  true,
			RawConfig: json.RawMessage(`{"threshold":500000}`),
		},
		{
			ID:        uuid.New(),
			Name:      "velocity",
			Type:      domain.FraudRuleVelocity,
			Score:     50,
			IsActive:  true,
			RawConfig: json.RawMessage(`{"windowMinutes":60,"maxTransactions":10}`),
		},
	}
}

func TestRuleCache_SetAndGet(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewRuleCache(client)
	ctx := context.Background()

	// Get before set => miss
	rules, err := cache.Get(ctx)
	assert.NoError(t, err)
	assert.Nil(t, rules)

	want := testRules()
	err = cache.Set(ctx, want, 30*time.Second)
	require.NoError(t, err)

	rules, err = cache.Get(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, want[0].ID, rules[0].ID)
	assert.Equal(t, want[1].Type, rules[1].Type)
	assert.JSONEq(t, string(want[1].RawConfig), string(rules[1].RawConfig))
}

func TestRuleCache_TTLExpiry(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewRuleCache(client)
	ctx := context.Background()

	err := cache.Set(ctx, testRules(), 1*time.Second)
	require.NoError(t, err)

	// Fast-forward time in miniredis
	s.FastForward(2 * time.Second)

	rules, err := cache.Get(ctx)
	assert.NoError(t, err)
	assert.Nil(t, rules, "expired rule set should be a miss")
}

func TestRuleCache_Invalidate(t *testing.T) {
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	cache := NewRuleCache(client)
	ctx := context.Background()

	err := cache.Set(ctx, testRules(), time.Minute)
	require.NoError(t, err)

	err = cache.Invalidate(ctx)
	require.NoError(t, err)

	rules, err := cache.Get(ctx)
	assert.NoError(t, err)
	assert.Nil(t, rules)
}
