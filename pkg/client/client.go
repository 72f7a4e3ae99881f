// Package client is the reconnecting consumer of the balance gateway: one
// logical live connection per authenticated session, with an initial
// snapshot, push updates and an explicit refresh escape hatch.
package client

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/backoff"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/errors"
	jsonx "github.com/tiloneee/tigo-booking-balance-gateway/pkg/json"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/ws"
)

// State is the connection state surfaced to the caller.
type State string

const (
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
)

const (
	defaultRetryInterval = 2 * time.Second
	defaultMaxRetries    = 5
	writeTimeout         = 5 * time.Second
)

// Config configures a Client.
type Config struct {
	// URL is the gateway WebSocket endpoint, e.g. ws://host:8090/ws.
	URL string
	// Token is the bearer token sent on every (re)connect handshake.
	Token string
	// RetryInterval is the fixed delay between reconnect attempts.
	RetryInterval time.Duration
	// MaxRetries bounds reconnect attempts before giving up.
	MaxRetries uint64
	// OnState is called on every state transition. Optional.
	OnState func(State)
	// OnBalance is called whenever the local balance value changes. Optional.
	OnBalance func(float64)
	// OnEvent receives transaction outcome frames (transaction_completed,
	// transaction_failed, balance_insufficient, error). Optional.
	OnEvent func(msgType string, payload []byte)

	Logger *zap.Logger
}

// Client maintains the connection and the last pushed balance. All state is
// owned per client instance; two clients for two users never contend.
type Client struct {
	cfg Config
	log *zap.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	balance    float64
	known      bool
	state      State
	refreshing bool
	closed     bool
}

// New creates a Client. Connect must be called before anything is received.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("client: URL is required")
	}
	if cfg.Token == "" {
		return nil, errors.ErrNoToken
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		cfg:   cfg,
		log:   cfg.Logger.With(zap.String("module", "balance_client")),
		state: StateDisconnected,
	}, nil
}

// Connect dials the gateway, retrying with the configured fixed interval up
// to MaxRetries, then starts consuming pushes. The server sends the initial
// snapshot on its own; nothing needs to be requested.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.dialWithRetry(ctx); err != nil {
		c.setState(StateDisconnected)
		return err
	}
	c.setState(StateConnected)
	go c.readLoop(ctx)
	return nil
}

func (c *Client) dialWithRetry(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.Token)

	dial := func() error {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
		if err != nil {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			c.log.Warn("dial failed", zap.Int("status", status), zap.Error(err))
			// An auth rejection will not heal by retrying.
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return backoff.Permanent(err)
			}
			return err
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		return nil
	}
	if err := backoff.Retry(dial, backoff.Constant(c.cfg.RetryInterval, c.cfg.MaxRetries)); err != nil {
		return errors.Wrap(err, "client: connect failed")
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if closed || conn == nil {
			c.setState(StateDisconnected)
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() || ctx.Err() != nil {
				c.setState(StateDisconnected)
				return
			}
			c.log.Info("connection lost, reconnecting", zap.Error(err))
			// A refresh that was in flight died with the connection; its
			// reply will never arrive.
			c.clearRefreshing()
			c.setState(StateReconnecting)
			if dialErr := c.dialWithRetry(ctx); dialErr != nil {
				c.log.Warn("reconnect attempts exhausted", zap.Error(dialErr))
				c.setState(StateDisconnected)
				return
			}
			c.setState(StateConnected)
			continue
		}
		c.handleFrame(msg)
	}
}

func (c *Client) handleFrame(msg []byte) {
	var frame ws.Frame
	if err := jsonx.Unmarshal(msg, &frame); err != nil {
		c.log.Warn("dropping undecodable frame", zap.Error(err))
		return
	}

	switch frame.Type {
	case ws.MsgBalanceInitial, ws.MsgBalanceCurrent:
		var payload ws.SnapshotPayload
		if err := jsonx.Unmarshal(frame.Payload, &payload); err != nil {
			c.log.Warn("dropping undecodable snapshot", zap.Error(err))
			return
		}
		// A null snapshot means the server does not know; keep whatever we
		// had instead of clobbering it.
		c.mu.Lock()
		if frame.Type == ws.MsgBalanceCurrent {
			c.refreshing = false
		}
		changed := false
		if payload.Balance != nil {
			c.balance = *payload.Balance
			c.known = true
			changed = true
		}
		c.mu.Unlock()
		if changed {
			c.notifyBalance()
		}

	case ws.MsgBalanceUpdated:
		var payload ws.BalanceUpdatedPayload
		if err := jsonx.Unmarshal(frame.Payload, &payload); err != nil {
			c.log.Warn("dropping undecodable balance update", zap.Error(err))
			return
		}
		c.setBalance(payload.NewBalance)

	case ws.MsgTransactionCompleted:
		var payload ws.TransactionCompletedPayload
		if err := jsonx.Unmarshal(frame.Payload, &payload); err != nil {
			c.log.Warn("dropping undecodable transaction outcome", zap.Error(err))
			return
		}
		c.setBalance(payload.NewBalance)
		if c.cfg.OnEvent != nil {
			c.cfg.OnEvent(frame.Type, frame.Payload)
		}

	case ws.MsgTransactionFailed, ws.MsgBalanceInsufficient, ws.MsgError:
		if c.cfg.OnEvent != nil {
			c.cfg.OnEvent(frame.Type, frame.Payload)
		}

	default:
		c.log.Debug("ignoring frame of unknown type", zap.String("type", frame.Type))
	}
}

func (c *Client) setBalance(value float64) {
	c.mu.Lock()
	c.balance = value
	c.known = true
	c.mu.Unlock()
	c.notifyBalance()
}

func (c *Client) notifyBalance() {
	if c.cfg.OnBalance != nil {
		c.mu.Lock()
		v := c.balance
		c.mu.Unlock()
		c.cfg.OnBalance(v)
	}
}

// Balance returns the last pushed balance. The second return is false until
// a value has arrived; an unknown balance is not zero.
func (c *Client) Balance() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance, c.known
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Refresh requests a one-off snapshot, e.g. after a reconnect gap. The model
// stays push-based: no polling, one refresh in flight per session.
func (c *Client) Refresh() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.ErrClosed
	}
	if c.conn == nil || c.state != StateConnected {
		c.mu.Unlock()
		return errors.ErrNotConnected
	}
	if c.refreshing {
		c.mu.Unlock()
		return errors.ErrRefreshInFlight
	}
	c.refreshing = true
	conn := c.conn
	c.mu.Unlock()

	frame, err := ws.EncodeFrame(ws.MsgGetCurrentBalance, struct{}{})
	if err != nil {
		c.clearRefreshing()
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.clearRefreshing()
		return errors.Wrap(err, "client: refresh failed")
	}
	return nil
}

func (c *Client) clearRefreshing() {
	c.mu.Lock()
	c.refreshing = false
	c.mu.Unlock()
}

// Close tears the connection down for good; no reconnect follows.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.setState(StateDisconnected)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	if c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}
