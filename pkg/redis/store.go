package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/backoff"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/errors"
	jsonx "github.com/tiloneee/tigo-booking-balance-gateway/pkg/json"
)

const (
	subscriberReadyTimeout = time.Second
	subscriberReadyRetries = 1
)

// Handler consumes one validated channel payload. It is invoked inline on the
// subscriber read loop and must not block.
type Handler func(payload []byte)

// Store is the process-wide Redis access layer. It holds three independent
// connections: one for general key/value work, one dedicated to publishing
// and one dedicated to subscribing. The split is required because a
// connection in subscribe mode cannot issue other commands.
type Store struct {
	general    *Client
	publisher  *Client
	subscriber *Client
	log        *zap.Logger

	mu   sync.Mutex
	subs map[string]*goredis.PubSub
}

// Connect establishes all three connections. Any failure is returned to the
// caller, which must treat it as fatal to process startup.
func Connect(cfg Config, log *zap.Logger) (*Store, error) {
	general, err := NewClient(cfg, "general", log)
	if err != nil {
		return nil, err
	}
	publisher, err := NewClient(cfg, "publisher", log)
	if err != nil {
		general.Close()
		return nil, err
	}
	subscriber, err := NewClient(cfg, "subscriber", log)
	if err != nil {
		general.Close()
		publisher.Close()
		return nil, err
	}

	log.Info("connected to Redis",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.Int("db", cfg.DB),
	)

	return &Store{
		general:    general,
		publisher:  publisher,
		subscriber: subscriber,
		log:        log.With(zap.String("module", "redis_store")),
		subs:       make(map[string]*goredis.PubSub),
	}, nil
}

// Close tears down all subscriptions and connections.
func (s *Store) Close() error {
	s.mu.Lock()
	for channel, ps := range s.subs {
		if err := ps.Close(); err != nil {
			s.log.Warn("failed to close subscription", zap.String("channel", channel), zap.Error(err))
		}
		delete(s.subs, channel)
	}
	s.mu.Unlock()

	var firstErr error
	for _, c := range []*Client{s.general, s.publisher, s.subscriber} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Ping checks the general connection, for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	return s.general.IsAvailable(ctx)
}

// encode serializes a value to the wire string. Strings pass through
// untouched; everything else is JSON. Producers rely on plain numeric
// strings surviving unwrapped.
func encode(value interface{}) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	data, err := jsonx.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	return string(data), nil
}

// decode is the read-side counterpart: try JSON first, fall back to the raw
// string when the payload was never JSON to begin with.
func decode(raw string) interface{} {
	var v interface{}
	if err := jsonx.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// Get reads a key. The second return is false on a miss; absence is a
// distinct state, never substituted with a zero value.
func (s *Store) Get(ctx context.Context, key string) (interface{}, bool, error) {
	raw, err := s.general.Get(ctx, key).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, false, nil
		}
		return nil, false, errors.LogWithError(s.log, "failed to get "+key, err, zap.String("key", key))
	}
	return decode(raw), true, nil
}

// Set writes a key with an optional TTL (0 means no expiry).
func (s *Store) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if err := s.general.Set(ctx, key, data, ttl).Err(); err != nil {
		return errors.LogWithError(s.log, "failed to set "+key, err, zap.String("key", key))
	}
	return nil
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.general.Del(ctx, key).Err(); err != nil {
		return errors.LogWithError(s.log, "failed to delete "+key, err, zap.String("key", key))
	}
	return nil
}

// Publish JSON-encodes message and publishes it on channel. Fire-and-forget:
// no retry, no delivery confirmation. Errors propagate so the caller can
// decide whether the loss matters.
func (s *Store) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := jsonx.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode message for %s: %w", channel, err)
	}
	receivers, err := s.publisher.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	s.log.Debug("published message",
		zap.String("channel", channel),
		zap.Int64("receivers", receivers),
	)
	return nil
}

// Subscribe attaches handler to channel on this instance. The subscriber
// connection must report ready within a bounded wait (single retry) or an
// explicit error is returned instead of subscribing on a dead connection.
// Each incoming payload is validated as JSON before delivery; malformed
// payloads are logged and dropped without disturbing the loop.
func (s *Store) Subscribe(ctx context.Context, channel string, handler Handler) error {
	s.mu.Lock()
	if _, ok := s.subs[channel]; ok {
		s.mu.Unlock()
		return errors.ErrAlreadySubscribed
	}
	s.mu.Unlock()

	ready := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, subscriberReadyTimeout)
		defer cancel()
		return s.subscriber.IsAvailable(pingCtx)
	}
	if err := backoff.Retry(ready, backoff.Constant(subscriberReadyTimeout, subscriberReadyRetries)); err != nil {
		s.log.Error("subscriber connection not ready", zap.String("channel", channel), zap.Error(err))
		return errors.ErrSubscriberNotReady
	}

	ps := s.subscriber.Subscribe(ctx, channel)
	// Force the subscription handshake so a failure surfaces here, not on
	// the first message.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	s.mu.Lock()
	s.subs[channel] = ps
	s.mu.Unlock()

	s.log.Info("subscribed to channel", zap.String("channel", channel))

	go s.receiveLoop(ctx, channel, ps, handler)
	return nil
}

func (s *Store) receiveLoop(ctx context.Context, channel string, ps *goredis.PubSub, handler Handler) {
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("subscription loop stopping", zap.String("channel", channel))
			return
		case msg, ok := <-ch:
			if !ok {
				s.log.Info("subscription channel closed", zap.String("channel", channel))
				return
			}
			payload := []byte(msg.Payload)
			if !jsonx.Valid(payload) {
				s.log.Warn("dropping malformed channel message",
					zap.String("channel", channel),
					zap.String("payload", msg.Payload),
				)
				continue
			}
			handler(payload)
		}
	}
}

// Unsubscribe stops delivery for channel on this instance only.
func (s *Store) Unsubscribe(channel string) error {
	s.mu.Lock()
	ps, ok := s.subs[channel]
	if ok {
		delete(s.subs, channel)
	}
	s.mu.Unlock()

	if !ok {
		return errors.ErrNotSubscribed
	}
	if err := ps.Close(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", channel, err)
	}
	s.log.Info("unsubscribed from channel", zap.String("channel", channel))
	return nil
}

// Hash primitives, string-or-JSON value convention. Used for presence
// tracking by the chat and notification subsystems.

// HSet writes one hash field.
func (s *Store) HSet(ctx context.Context, key, field string, value interface{}) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if err := s.general.HSet(ctx, key, field, data).Err(); err != nil {
		return fmt.Errorf("failed to hset %s.%s: %w", key, field, err)
	}
	return nil
}

// HGet reads one hash field; the second return is false on a miss.
func (s *Store) HGet(ctx context.Context, key, field string) (interface{}, bool, error) {
	raw, err := s.general.HGet(ctx, key, field).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to hget %s.%s: %w", key, field, err)
	}
	return decode(raw), true, nil
}

// HGetAll reads all fields of a hash.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]interface{}, error) {
	raw, err := s.general.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to hgetall %s: %w", key, err)
	}
	out := make(map[string]interface{}, len(raw))
	for field, v := range raw {
		out[field] = decode(v)
	}
	return out, nil
}

// HDel removes hash fields.
func (s *Store) HDel(ctx context.Context, key string, fields ...string) error {
	if err := s.general.HDel(ctx, key, fields...).Err(); err != nil {
		return fmt.Errorf("failed to hdel %s: %w", key, err)
	}
	return nil
}

// Set primitives.

// SAdd adds members to a set.
func (s *Store) SAdd(ctx context.Context, key string, members ...interface{}) error {
	encoded, err := encodeAll(members)
	if err != nil {
		return err
	}
	if err := s.general.SAdd(ctx, key, encoded...).Err(); err != nil {
		return fmt.Errorf("failed to sadd %s: %w", key, err)
	}
	return nil
}

// SRem removes members from a set.
func (s *Store) SRem(ctx context.Context, key string, members ...interface{}) error {
	encoded, err := encodeAll(members)
	if err != nil {
		return err
	}
	if err := s.general.SRem(ctx, key, encoded...).Err(); err != nil {
		return fmt.Errorf("failed to srem %s: %w", key, err)
	}
	return nil
}

// SMembers returns all members of a set.
func (s *Store) SMembers(ctx context.Context, key string) ([]interface{}, error) {
	raw, err := s.general.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to smembers %s: %w", key, err)
	}
	out := make([]interface{}, len(raw))
	for i, v := range raw {
		out[i] = decode(v)
	}
	return out, nil
}

// SIsMember reports set membership.
func (s *Store) SIsMember(ctx context.Context, key string, member interface{}) (bool, error) {
	data, err := encode(member)
	if err != nil {
		return false, err
	}
	ok, err := s.general.SIsMember(ctx, key, data).Result()
	if err != nil {
		return false, fmt.Errorf("failed to sismember %s: %w", key, err)
	}
	return ok, nil
}

// List primitives.

// RPush appends values to a list.
func (s *Store) RPush(ctx context.Context, key string, values ...interface{}) error {
	encoded, err := encodeAll(values)
	if err != nil {
		return err
	}
	if err := s.general.RPush(ctx, key, encoded...).Err(); err != nil {
		return fmt.Errorf("failed to rpush %s: %w", key, err)
	}
	return nil
}

// LRange reads a slice of a list.
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]interface{}, error) {
	raw, err := s.general.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to lrange %s: %w", key, err)
	}
	out := make([]interface{}, len(raw))
	for i, v := range raw {
		out[i] = decode(v)
	}
	return out, nil
}

// LRem removes count occurrences of value from a list.
func (s *Store) LRem(ctx context.Context, key string, count int64, value interface{}) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if err := s.general.LRem(ctx, key, count, data).Err(); err != nil {
		return fmt.Errorf("failed to lrem %s: %w", key, err)
	}
	return nil
}

func encodeAll(values []interface{}) ([]interface{}, error) {
	encoded := make([]interface{}, len(values))
	for i, v := range values {
		data, err := encode(v)
		if err != nil {
			return nil, err
		}
		encoded[i] = data
	}
	return encoded, nil
}
