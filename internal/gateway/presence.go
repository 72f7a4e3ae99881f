package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/redis"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/ws"
)

// Presence mirrors local connection membership into Redis sets so adjacent
// subsystems (chat, notifications) can answer "is this user online" without
// talking to a gateway instance. Writes are best-effort: a failure is logged
// and never blocks or fails the connection itself.
type Presence struct {
	store *redis.Store
	log   *zap.Logger
}

// NewPresence creates a Presence tracker.
func NewPresence(store *redis.Store, log *zap.Logger) *Presence {
	return &Presence{
		store: store,
		log:   log.With(zap.String("module", "presence")),
	}
}

// Online records a connection for a user.
func (p *Presence) Online(userID, connID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.store.SAdd(ctx, redis.PresenceKey(userID), connID); err != nil {
		p.log.Warn("failed to record presence", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if err := p.store.SAdd(ctx, redis.RoomMembersKey(ws.UserRoom(userID)), connID); err != nil {
		p.log.Warn("failed to record room membership", zap.String("user_id", userID), zap.Error(err))
	}
}

// Offline removes a connection for a user.
func (p *Presence) Offline(userID, connID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.store.SRem(ctx, redis.PresenceKey(userID), connID); err != nil {
		p.log.Warn("failed to clear presence", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if err := p.store.SRem(ctx, redis.RoomMembersKey(ws.UserRoom(userID)), connID); err != nil {
		p.log.Warn("failed to clear room membership", zap.String("user_id", userID), zap.Error(err))
	}
}

// IsOnline reports whether the user has any live connection on any instance.
func (p *Presence) IsOnline(ctx context.Context, userID string) (bool, error) {
	members, err := p.store.SMembers(ctx, redis.PresenceKey(userID))
	if err != nil {
		return false, err
	}
	return len(members) > 0, nil
}
