// Package notifier is the producer side of the balance event contract: the
// transaction service calls it after settling a transaction to refresh the
// cached balance and fan the change out to every gateway instance.
package notifier

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tiloneee/tigo-booking-balance-gateway/internal/balance"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/redis"
)

// Notifier publishes balance events on the shared channel. Publishing is
// fire-and-forget with at-most-once delivery; a failed publish means no
// instance sees the event and the error is returned to the caller.
type Notifier struct {
	store *redis.Store
	cache *balance.Cache
	log   *zap.Logger
}

// New creates a Notifier.
func New(store *redis.Store, cache *balance.Cache, log *zap.Logger) *Notifier {
	return &Notifier{
		store: store,
		cache: cache,
		log:   log.With(zap.String("module", "balance_notifier")),
	}
}

// BalanceUpdated records a new balance and announces it. The cache write
// happens first so a client connecting between the write and the publish
// still sees the fresh value; a cache failure is logged and does not block
// the publish.
func (n *Notifier) BalanceUpdated(ctx context.Context, userID string, newBalance, previousBalance float64, transactionID, transactionType string, amount float64) error {
	n.putBalance(ctx, userID, newBalance)
	return n.store.Publish(ctx, redis.ChannelBalanceUpdates, balance.Event{
		Kind:            balance.KindBalanceUpdated,
		UserID:          userID,
		NewBalance:      balance.Float(newBalance),
		PreviousBalance: balance.Float(previousBalance),
		TransactionID:   transactionID,
		TransactionType: transactionType,
		Amount:          balance.Float(amount),
		Timestamp:       time.Now().UTC(),
	})
}

// TransactionCompleted announces a settled transaction along with the
// balance it produced.
func (n *Notifier) TransactionCompleted(ctx context.Context, userID string, newBalance float64, transactionID, transactionType string, amount float64) error {
	n.putBalance(ctx, userID, newBalance)
	return n.store.Publish(ctx, redis.ChannelBalanceUpdates, balance.Event{
		Kind:            balance.KindTransactionCompleted,
		UserID:          userID,
		NewBalance:      balance.Float(newBalance),
		TransactionID:   transactionID,
		TransactionType: transactionType,
		Amount:          balance.Float(amount),
		Timestamp:       time.Now().UTC(),
	})
}

// TransactionFailed announces a failed transaction. The balance did not
// change, so the cache is left alone.
func (n *Notifier) TransactionFailed(ctx context.Context, userID, transactionID, transactionType string) error {
	return n.store.Publish(ctx, redis.ChannelBalanceUpdates, balance.Event{
		Kind:            balance.KindTransactionFailed,
		UserID:          userID,
		TransactionID:   transactionID,
		TransactionType: transactionType,
		Timestamp:       time.Now().UTC(),
	})
}

// BalanceInsufficient announces a rejected charge: the amount required and
// the balance that fell short of it.
func (n *Notifier) BalanceInsufficient(ctx context.Context, userID string, requiredAmount, currentBalance float64) error {
	return n.store.Publish(ctx, redis.ChannelBalanceUpdates, balance.Event{
		Kind:           balance.KindBalanceInsufficient,
		UserID:         userID,
		RequiredAmount: balance.Float(requiredAmount),
		CurrentBalance: balance.Float(currentBalance),
		Timestamp:      time.Now().UTC(),
	})
}

func (n *Notifier) putBalance(ctx context.Context, userID string, value float64) {
	if err := n.cache.Put(ctx, userID, value); err != nil {
		n.log.Warn("failed to refresh cached balance",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
