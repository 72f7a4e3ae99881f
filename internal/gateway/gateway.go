// Package gateway is the WebSocket endpoint that delivers balance events to
// live client connections: handshake authentication, per-user rooms and the
// channel subscriber that feeds them.
package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tiloneee/tigo-booking-balance-gateway/internal/balance"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/errors"
	jsonx "github.com/tiloneee/tigo-booking-balance-gateway/pkg/json"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/metrics"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/redis"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/ws"
)

const snapshotTimeout = 3 * time.Second

// Gateway upgrades authenticated requests, joins each connection to its
// user room and answers client frames. Per connection the lifecycle is
// Connecting -> Authenticated -> joined -> Disconnected; there is no
// re-authentication state, a token refresh needs a fresh connection.
type Gateway struct {
	hub      *ws.Hub
	store    *redis.Store
	cache    *balance.Cache
	authn    *Authenticator
	presence *Presence
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// New creates a Gateway.
func New(hub *ws.Hub, store *redis.Store, cache *balance.Cache, authn *Authenticator, allowedOrigins []string, log *zap.Logger) *Gateway {
	g := &Gateway{
		hub:      hub,
		store:    store,
		cache:    cache,
		authn:    authn,
		presence: NewPresence(store, log),
		log:      log.With(zap.String("module", "gateway")),
	}
	g.upgrader = websocket.Upgrader{
		// Echo the bearer subprotocol so browser clients that smuggled the
		// token through Sec-WebSocket-Protocol complete the handshake.
		Subprotocols: []string{"bearer"},
		CheckOrigin:  originChecker(allowedOrigins, log),
	}
	return g
}

// HandleWS is the single WebSocket endpoint. Authentication happens before
// the upgrade: a missing or invalid token is rejected at the HTTP layer and
// the client never receives a frame.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	identity, err := g.authn.Authenticate(r)
	if err != nil {
		metrics.AuthFailures.WithLabelValues(authFailureReason(err)).Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	wsConn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := ws.NewConn(wsConn, identity.UserID, g.log)
	room := ws.UserRoom(identity.UserID)

	go conn.WritePump()

	// Queue the snapshot before joining the room so balance_initial is
	// always the first frame, ahead of any broadcast that lands next.
	g.sendSnapshot(conn, ws.MsgBalanceInitial)

	g.hub.Join(room, conn)
	metrics.ActiveConnections.Inc()
	go g.presence.Online(identity.UserID, conn.ID)

	g.log.Info("client connected",
		zap.String("user_id", identity.UserID),
		zap.String("conn_id", conn.ID),
		zap.String("remote", r.RemoteAddr),
	)

	conn.ReadPump(
		func(msg []byte) { g.handleClientFrame(conn, msg) },
		func() {
			g.hub.Leave(room, conn)
			conn.Close()
			metrics.ActiveConnections.Dec()
			go g.presence.Offline(identity.UserID, conn.ID)
			g.log.Info("client disconnected",
				zap.String("user_id", identity.UserID),
				zap.String("conn_id", conn.ID),
			)
		},
	)
}

func (g *Gateway) handleClientFrame(conn *ws.Conn, msg []byte) {
	var frame ws.Frame
	if err := jsonx.Unmarshal(msg, &frame); err != nil {
		g.sendError(conn, "invalid message")
		return
	}

	switch frame.Type {
	case ws.MsgSubscribeBalance:
		// Idempotent: the connection already joined its room on connect.
		g.hub.Join(ws.UserRoom(conn.UserID), conn)
	case ws.MsgGetCurrentBalance:
		g.sendSnapshot(conn, ws.MsgBalanceCurrent)
	default:
		g.sendError(conn, "unknown message type: "+frame.Type)
	}
}

// sendSnapshot reads the cached balance and replies to this socket only,
// never the room. A failed or missing read yields null, not zero.
func (g *Gateway) sendSnapshot(conn *ws.Conn, msgType string) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	payload := ws.SnapshotPayload{}
	value, known, err := g.cache.Get(ctx, conn.UserID)
	if err != nil {
		g.log.Warn("snapshot read failed, sending unknown balance",
			zap.String("user_id", conn.UserID),
			zap.Error(err),
		)
	} else if known {
		payload.Balance = &value
	}

	g.send(conn, msgType, payload)
}

func (g *Gateway) sendError(conn *ws.Conn, message string) {
	g.send(conn, ws.MsgError, ws.ErrorPayload{Message: message})
}

func (g *Gateway) send(conn *ws.Conn, msgType string, payload interface{}) {
	frame, err := ws.EncodeFrame(msgType, payload)
	if err != nil {
		g.log.Error("failed to encode frame", zap.String("type", msgType), zap.Error(err))
		return
	}
	if conn.Send(frame) {
		metrics.FramesDelivered.WithLabelValues(msgType).Inc()
	} else {
		metrics.FramesDropped.Inc()
	}
}

func authFailureReason(err error) string {
	switch {
	case errors.Is(err, errors.ErrNoToken):
		return "no_token"
	case errors.Is(err, errors.ErrTokenExpired):
		return "expired"
	case errors.Is(err, errors.ErrNoSubject):
		return "no_subject"
	default:
		return "invalid"
	}
}

// originChecker builds the upgrade origin policy from the configured
// allow-list. Non-browser clients without an Origin header are accepted;
// "*" allows everything.
func originChecker(allowed []string, log *zap.Logger) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		originHost := origin
		if idx := strings.Index(originHost, "://"); idx >= 0 {
			originHost = originHost[idx+3:]
		}
		if idx := strings.Index(originHost, ":"); idx >= 0 {
			originHost = originHost[:idx]
		}
		for _, a := range allowed {
			if a == "*" || a == originHost {
				return true
			}
			if strings.HasPrefix(a, "*.") && strings.HasSuffix(originHost, a[1:]) {
				return true
			}
		}
		log.Warn("rejected WebSocket origin", zap.String("origin", origin))
		return false
	}
}
