package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DedupeStore implements ports.DedupeStore using Redis SET NX. It is the
// fast-path replay check for processor events; the unique processor_events
// row remains authoritative.
type DedupeStore struct {
	client *goredis.Client
	prefix string
}

// NewDedupeStore creates a new Redis-backed event dedupe store.
func NewDedupeStore(client *goredis.Client) *DedupeStore {
	return &DedupeStore{
		client: client,
		prefix: "processor:event:",
	}
}

// Seen reports whether the event key was already marked.
func (s *DedupeStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis dedupe check: %w", err)
	}
	return n > 0, nil
}

// MarkSeen records the event key with TTL.
func (s *DedupeStore) MarkSeen(ctx context.Context, key string, ttl time.Duration) error {
	err := s.client.SetArgs(ctx, s.prefix+key, 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Err()
	if err != nil && err != goredis.Nil {
		return fmt.Errorf("redis dedupe mark: %w", err)
	}
	return nil
}
