package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/errors"
	jsonx "github.com/tiloneee/tigo-booking-balance-gateway/pkg/json"
	"github.com/tiloneee/tigo-booking-balance-gateway/pkg/ws"
)

// fakeGateway upgrades every request and hands the socket to the per-test
// handler along with a 1-based connection counter.
func fakeGateway(t *testing.T, handler func(conn *websocket.Conn, attempt int)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	var attempts int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		handler(conn, int(atomic.AddInt64(&attempts, 1)))
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func sendFrame(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	frame, err := ws.EncodeFrame(msgType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	if cfg.Token == "" {
		cfg.Token = "test-token"
	}
	cfg.RetryInterval = 20 * time.Millisecond
	cfg.Logger = zap.NewNop()
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func waitBalance(t *testing.T, c *Client, want float64) {
	t.Helper()
	require.Eventually(t, func() bool {
		v, known := c.Balance()
		return known && v == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewRequiresURLAndToken(t *testing.T) {
	_, err := New(Config{Token: "t"})
	assert.Error(t, err)

	_, err = New(Config{URL: "ws://localhost/ws"})
	assert.ErrorIs(t, err, errors.ErrNoToken)
}

func TestInitialSnapshotSetsBalance(t *testing.T) {
	url := fakeGateway(t, func(conn *websocket.Conn, _ int) {
		sendFrame(t, conn, ws.MsgBalanceInitial, ws.SnapshotPayload{Balance: floatp(42)})
	})
	c := newTestClient(t, Config{URL: url})

	_, known := c.Balance()
	assert.False(t, known)

	require.NoError(t, c.Connect(context.Background()))
	waitBalance(t, c, 42)
}

func TestNullSnapshotKeepsLastValue(t *testing.T) {
	url := fakeGateway(t, func(conn *websocket.Conn, _ int) {
		sendFrame(t, conn, ws.MsgBalanceInitial, ws.SnapshotPayload{Balance: floatp(42)})
		sendFrame(t, conn, ws.MsgBalanceCurrent, ws.SnapshotPayload{})
		sendFrame(t, conn, ws.MsgBalanceUpdated, ws.BalanceUpdatedPayload{NewBalance: 50})
	})
	c := newTestClient(t, Config{URL: url})
	require.NoError(t, c.Connect(context.Background()))

	// The null balance_current between the two real values must not reset
	// the known balance to zero.
	waitBalance(t, c, 42)
	waitBalance(t, c, 50)
}

func TestBalanceUpdatedOverwrites(t *testing.T) {
	updates := make(chan float64, 8)
	url := fakeGateway(t, func(conn *websocket.Conn, _ int) {
		sendFrame(t, conn, ws.MsgBalanceInitial, ws.SnapshotPayload{Balance: floatp(100)})
		sendFrame(t, conn, ws.MsgBalanceUpdated, ws.BalanceUpdatedPayload{NewBalance: 80})
		sendFrame(t, conn, ws.MsgBalanceUpdated, ws.BalanceUpdatedPayload{NewBalance: 60})
	})
	c := newTestClient(t, Config{URL: url, OnBalance: func(v float64) { updates <- v }})
	require.NoError(t, c.Connect(context.Background()))

	waitBalance(t, c, 60)
	var seen []float64
	for len(updates) > 0 {
		seen = append(seen, <-updates)
	}
	assert.Equal(t, []float64{100, 80, 60}, seen)
}

func TestTransactionOutcomeReachesOnEvent(t *testing.T) {
	events := make(chan string, 4)
	url := fakeGateway(t, func(conn *websocket.Conn, _ int) {
		sendFrame(t, conn, ws.MsgTransactionFailed, ws.TransactionFailedPayload{TransactionID: "tx-1"})
	})
	c := newTestClient(t, Config{URL: url, OnEvent: func(msgType string, payload []byte) {
		var p ws.TransactionFailedPayload
		require.NoError(t, jsonx.Unmarshal(payload, &p))
		events <- msgType + ":" + p.TransactionID
	}})
	require.NoError(t, c.Connect(context.Background()))

	select {
	case got := <-events:
		assert.Equal(t, ws.MsgTransactionFailed+":tx-1", got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event callback")
	}
}

func TestRefreshBeforeConnect(t *testing.T) {
	c := newTestClient(t, Config{URL: "ws://localhost:1/ws"})
	assert.ErrorIs(t, c.Refresh(), errors.ErrNotConnected)
}

func TestRefreshSingleFlight(t *testing.T) {
	release := make(chan struct{})
	url := fakeGateway(t, func(conn *websocket.Conn, _ int) {
		sendFrame(t, conn, ws.MsgBalanceInitial, ws.SnapshotPayload{Balance: floatp(10)})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame ws.Frame
			require.NoError(t, jsonx.Unmarshal(msg, &frame))
			if frame.Type != ws.MsgGetCurrentBalance {
				continue
			}
			<-release
			sendFrame(t, conn, ws.MsgBalanceCurrent, ws.SnapshotPayload{Balance: floatp(25)})
		}
	})
	c := newTestClient(t, Config{URL: url})
	require.NoError(t, c.Connect(context.Background()))
	waitBalance(t, c, 10)

	require.NoError(t, c.Refresh())
	// No second request while the first reply is still pending.
	assert.ErrorIs(t, c.Refresh(), errors.ErrRefreshInFlight)

	close(release)
	waitBalance(t, c, 25)
	require.Eventually(t, func() bool {
		return c.Refresh() == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRefreshSurvivesReconnect(t *testing.T) {
	url := fakeGateway(t, func(conn *websocket.Conn, attempt int) {
		if attempt == 1 {
			sendFrame(t, conn, ws.MsgBalanceInitial, ws.SnapshotPayload{Balance: floatp(10)})
			// Swallow the refresh request and drop the socket, so its reply
			// never arrives on this connection.
			conn.ReadMessage()
			conn.Close()
			return
		}
		sendFrame(t, conn, ws.MsgBalanceInitial, ws.SnapshotPayload{Balance: floatp(20)})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame ws.Frame
			require.NoError(t, jsonx.Unmarshal(msg, &frame))
			if frame.Type == ws.MsgGetCurrentBalance {
				sendFrame(t, conn, ws.MsgBalanceCurrent, ws.SnapshotPayload{Balance: floatp(25)})
			}
		}
	})
	c := newTestClient(t, Config{URL: url})
	require.NoError(t, c.Connect(context.Background()))
	waitBalance(t, c, 10)

	require.NoError(t, c.Refresh())
	waitBalance(t, c, 20)
	require.Eventually(t, func() bool {
		return c.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	// The unanswered refresh must not jam the session after reconnecting.
	require.NoError(t, c.Refresh())
	waitBalance(t, c, 25)
}

func TestUnauthorizedDoesNotRetry(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), MaxRetries: 5})
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits))
	assert.Equal(t, StateDisconnected, c.State())
}

func TestReconnectAfterDrop(t *testing.T) {
	states := make(chan State, 8)
	url := fakeGateway(t, func(conn *websocket.Conn, attempt int) {
		if attempt == 1 {
			sendFrame(t, conn, ws.MsgBalanceInitial, ws.SnapshotPayload{Balance: floatp(10)})
			conn.Close()
			return
		}
		sendFrame(t, conn, ws.MsgBalanceInitial, ws.SnapshotPayload{Balance: floatp(20)})
	})
	c := newTestClient(t, Config{URL: url, OnState: func(s State) { states <- s }})
	require.NoError(t, c.Connect(context.Background()))

	waitBalance(t, c, 10)
	waitBalance(t, c, 20)

	var seen []State
	for len(states) > 0 {
		seen = append(seen, <-states)
	}
	assert.Contains(t, seen, StateReconnecting)
	assert.Equal(t, StateConnected, c.State())
}

func TestCloseStopsTheClient(t *testing.T) {
	url := fakeGateway(t, func(conn *websocket.Conn, _ int) {
		sendFrame(t, conn, ws.MsgBalanceInitial, ws.SnapshotPayload{Balance: floatp(10)})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	c := newTestClient(t, Config{URL: url})
	require.NoError(t, c.Connect(context.Background()))
	waitBalance(t, c, 10)

	require.NoError(t, c.Close())
	assert.Equal(t, StateDisconnected, c.State())
	assert.ErrorIs(t, c.Refresh(), errors.ErrClosed)

	// Closing twice is a no-op.
	require.NoError(t, c.Close())
}

func floatp(v float64) *float64 {
	return &v
}
