package balance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/redis"
)

// Cache is the cache-aside store for last-known balances. The transaction
// service writes it as a side effect of settling; the gateway only reads,
// to seed a freshly connected socket with a value. Absence means "unknown",
// which is distinct from a zero balance and must stay that way.
type Cache struct {
	store   *redis.Store
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewCache creates a Cache. Reads run behind a circuit breaker so a flapping
// Redis degrades handshakes to "unknown balance" instead of stalling them.
func NewCache(store *redis.Store, log *zap.Logger) *Cache {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "balance-cache",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Cache{
		store:   store,
		breaker: breaker,
		log:     log.With(zap.String("module", "balance_cache")),
	}
}

// Get returns the last known balance for a user. The second return is false
// when no value is known; callers must surface that as null, never zero.
func (c *Cache) Get(ctx context.Context, userID string) (float64, bool, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		value, found, err := c.store.Get(ctx, redis.BalanceKey(userID))
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		return value, nil
	})
	if err != nil {
		c.log.Warn("balance read failed, treating as unknown",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return 0, false, err
	}
	if result == nil {
		return 0, false, nil
	}

	switch v := result.(type) {
	case float64:
		return v, true, nil
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.log.Warn("unparsable balance value, treating as unknown",
				zap.String("user_id", userID),
				zap.String("value", v),
			)
			return 0, false, nil
		}
		return parsed, true, nil
	default:
		c.log.Warn("unexpected balance value type, treating as unknown",
			zap.String("user_id", userID),
			zap.Any("value", result),
		)
		return 0, false, nil
	}
}

// Put writes a balance as a plain numeric string, matching what the
// transaction service writes. No TTL: set-and-overwrite, last writer wins.
func (c *Cache) Put(ctx context.Context, userID string, value float64) error {
	raw := strconv.FormatFloat(value, 'f', -1, 64)
	if err := c.store.Set(ctx, redis.BalanceKey(userID), raw, 0); err != nil {
		return fmt.Errorf("failed to cache balance for %s: %w", userID, err)
	}
	return nil
}
