// Package ws holds the WebSocket protocol frames, the typed authenticated
// connection and the per-user room hub used by the balance gateway.
package ws

import (
	"encoding/json"
	"time"

	jsonx "github.com/tiloneee/tigo-booking-balance-gateway/pkg/json"
)

// Client -> server message types.
const (
	MsgSubscribeBalance  = "subscribe_balance"
	MsgGetCurrentBalance = "get_current_balance"
)

// Server -> client message types.
const (
	MsgBalanceInitial       = "balance_initial"
	MsgBalanceCurrent       = "balance_current"
	MsgBalanceUpdated       = "balance_updated"
	MsgTransactionCompleted = "transaction_completed"
	MsgTransactionFailed    = "transaction_failed"
	MsgBalanceInsufficient  = "balance_insufficient"
	MsgError                = "error"
)

// Frame is the envelope every message travels in, both directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeFrame builds the wire bytes for a typed message.
func EncodeFrame(msgType string, payload interface{}) ([]byte, error) {
	raw, err := jsonx.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return jsonx.Marshal(Frame{Type: msgType, Payload: raw})
}

// SnapshotPayload carries a one-off balance value. Balance is null when the
// cache holds nothing for the user; null means unknown, not zero.
type SnapshotPayload struct {
	Balance *float64 `json:"balance"`
}

// BalanceUpdatedPayload announces the authoritative balance after a change.
type BalanceUpdatedPayload struct {
	NewBalance      float64   `json:"newBalance"`
	PreviousBalance *float64  `json:"previousBalance,omitempty"`
	TransactionID   string    `json:"transactionId,omitempty"`
	TransactionType string    `json:"transactionType,omitempty"`
	Amount          *float64  `json:"amount,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// TransactionCompletedPayload announces a settled transaction.
type TransactionCompletedPayload struct {
	TransactionID   string    `json:"transactionId"`
	TransactionType string    `json:"transactionType"`
	Amount          float64   `json:"amount"`
	NewBalance      float64   `json:"newBalance"`
	Timestamp       time.Time `json:"timestamp"`
}

// TransactionFailedPayload announces a failed transaction.
type TransactionFailedPayload struct {
	TransactionID   string    `json:"transactionId"`
	TransactionType string    `json:"transactionType"`
	Timestamp       time.Time `json:"timestamp"`
}

// BalanceInsufficientPayload announces a rejected charge.
type BalanceInsufficientPayload struct {
	RequiredAmount float64   `json:"requiredAmount"`
	CurrentBalance float64   `json:"currentBalance"`
	Shortfall      float64   `json:"shortfall"`
	Timestamp      time.Time `json:"timestamp"`
}

// ErrorPayload is sent for client-visible runtime errors. The connection
// stays open; only auth failures disconnect.
type ErrorPayload struct {
	Message string `json:"message"`
}
