package gateway

import (
	"context"

	"go.uber.org/zap"

	"github.com/tiloneee/tigo-booking-balance-gateway/internal/balance"
	jsonx "github.com/tiloneee/tigo-booking-balance-gateway/pkg/json"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/metrics"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/redis"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/ws"
)

// Broadcaster consumes the balance channel and re-emits each event to the
// local room of the event's user. Every instance runs exactly one of these;
// an instance with no sockets for the user simply delivers to an empty room.
type Broadcaster struct {
	hub   *ws.Hub
	store *redis.Store
	log   *zap.Logger
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(hub *ws.Hub, store *redis.Store, log *zap.Logger) *Broadcaster {
	return &Broadcaster{
		hub:   hub,
		store: store,
		log:   log.With(zap.String("module", "broadcaster")),
	}
}

// Start subscribes to the balance channel. Call once per process, at
// startup; a subscribe failure is fatal.
func (b *Broadcaster) Start(ctx context.Context) error {
	return b.store.Subscribe(ctx, redis.ChannelBalanceUpdates, b.handle)
}

// handle runs inline on the subscriber read loop, so it only decodes, maps
// and queues frames; actual socket writes happen on each connection's own
// write pump.
func (b *Broadcaster) handle(payload []byte) {
	var event balance.Event
	if err := jsonx.Unmarshal(payload, &event); err != nil {
		metrics.EventsDiscarded.WithLabelValues("decode").Inc()
		b.log.Warn("dropping undecodable balance event", zap.Error(err))
		return
	}
	if event.UserID == "" {
		metrics.EventsDiscarded.WithLabelValues("no_user").Inc()
		b.log.Warn("dropping balance event without user id", zap.String("kind", string(event.Kind)))
		return
	}
	metrics.EventsReceived.WithLabelValues(string(event.Kind)).Inc()

	room := ws.UserRoom(event.UserID)
	for _, out := range b.framesFor(event) {
		members := b.hub.Members(room)
		delivered := b.hub.Broadcast(room, out.frame)
		metrics.FramesDelivered.WithLabelValues(out.msgType).Add(float64(delivered))
		if delivered < members {
			metrics.FramesDropped.Add(float64(members - delivered))
		}
		b.log.Debug("broadcast balance frame",
			zap.String("room", room),
			zap.String("type", out.msgType),
			zap.Int("delivered", delivered),
		)
	}
}

type outFrame struct {
	msgType string
	frame   []byte
}

// framesFor maps one event to the frames it produces. The four kinds are
// independent; TRANSACTION_COMPLETED yields both the state change and the
// transaction outcome.
func (b *Broadcaster) framesFor(event balance.Event) []outFrame {
	switch event.Kind {
	case balance.KindBalanceUpdated:
		if event.NewBalance == nil {
			metrics.EventsDiscarded.WithLabelValues("no_balance").Inc()
			b.log.Warn("dropping BALANCE_UPDATED without newBalance", zap.String("user_id", event.UserID))
			return nil
		}
		return b.encode(nil,
			ws.MsgBalanceUpdated, ws.BalanceUpdatedPayload{
				NewBalance:      *event.NewBalance,
				PreviousBalance: event.PreviousBalance,
				TransactionID:   event.TransactionID,
				TransactionType: event.TransactionType,
				Amount:          event.Amount,
				Timestamp:       event.Timestamp,
			})

	case balance.KindTransactionCompleted:
		if event.NewBalance == nil {
			metrics.EventsDiscarded.WithLabelValues("no_balance").Inc()
			b.log.Warn("dropping TRANSACTION_COMPLETED without newBalance", zap.String("user_id", event.UserID))
			return nil
		}
		frames := b.encode(nil,
			ws.MsgBalanceUpdated, ws.BalanceUpdatedPayload{
				NewBalance:      *event.NewBalance,
				PreviousBalance: event.PreviousBalance,
				TransactionID:   event.TransactionID,
				TransactionType: event.TransactionType,
				Amount:          event.Amount,
				Timestamp:       event.Timestamp,
			})
		return b.encode(frames,
			ws.MsgTransactionCompleted, ws.TransactionCompletedPayload{
				TransactionID:   event.TransactionID,
				TransactionType: event.TransactionType,
				Amount:          deref(event.Amount),
				NewBalance:      *event.NewBalance,
				Timestamp:       event.Timestamp,
			})

	case balance.KindTransactionFailed:
		return b.encode(nil,
			ws.MsgTransactionFailed, ws.TransactionFailedPayload{
				TransactionID:   event.TransactionID,
				TransactionType: event.TransactionType,
				Timestamp:       event.Timestamp,
			})

	case balance.KindBalanceInsufficient:
		required := deref(event.RequiredAmount)
		current := deref(event.CurrentBalance)
		return b.encode(nil,
			ws.MsgBalanceInsufficient, ws.BalanceInsufficientPayload{
				RequiredAmount: required,
				CurrentBalance: current,
				Shortfall:      required - current,
				Timestamp:      event.Timestamp,
			})

	default:
		metrics.EventsDiscarded.WithLabelValues("unknown_kind").Inc()
		b.log.Warn("dropping balance event of unknown kind",
			zap.String("kind", string(event.Kind)),
			zap.String("user_id", event.UserID),
		)
		return nil
	}
}

func (b *Broadcaster) encode(frames []outFrame, msgType string, payload interface{}) []outFrame {
	frame, err := ws.EncodeFrame(msgType, payload)
	if err != nil {
		b.log.Error("failed to encode broadcast frame", zap.String("type", msgType), zap.Error(err))
		return frames
	}
	return append(frames, outFrame{msgType: msgType, frame: frame})
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
