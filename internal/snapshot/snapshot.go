// Package snapshot persists the last successfully derived price in Redis,
// so a restarted instance can serve a stale-but-shown value with its true
// as-of timestamp instead of an empty error state.
//
// Only prices that came from a successful fetch are ever written; the
// snapshot can go stale but it can never be fabricated.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yourorg/silver-spot-api/internal/model"
)

const keyPrefix = "silver:last:"

// Store is a Redis-backed last-known-price cache.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a snapshot store against the given Redis instance.
func New(addr, password string, db int, ttl time.Duration) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

// Ping verifies the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Put writes the latest derived price for its market.
func (s *Store) Put(ctx context.Context, p model.DerivedPrice) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+string(p.Market), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// Get reads the last stored price for a market. The second return value is
// false when no snapshot exists or it has expired.
func (s *Store) Get(ctx context.Context, market model.Market) (model.DerivedPrice, bool, error) {
	raw, err := s.rdb.Get(ctx, keyPrefix+string(market)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.DerivedPrice{}, false, nil
	}
	if err != nil {
		return model.DerivedPrice{}, false, fmt.Errorf("reading snapshot: %w", err)
	}

	var p model.DerivedPrice
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.DerivedPrice{}, false, fmt.Errorf("decoding snapshot: %w", err)
	}
	return p, true, nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}
