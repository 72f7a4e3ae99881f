// Package balance holds the event taxonomy published by the transaction
// service and the cache-aside store for last-known balances.
package balance

import "time"

// EventKind identifies one of the four balance event types carried on the
// balance:updates channel.
type EventKind string

const (
	KindBalanceUpdated       EventKind = "BALANCE_UPDATED"
	KindTransactionCompleted EventKind = "TRANSACTION_COMPLETED"
	KindTransactionFailed    EventKind = "TRANSACTION_FAILED"
	KindBalanceInsufficient  EventKind = "BALANCE_INSUFFICIENT"
)

// Event is the wire message produced once per balance state change. It is
// immutable and never persisted; every gateway instance receives every event
// and decides locally whether it has sockets to deliver to.
type Event struct {
	Kind            EventKind `json:"kind"`
	UserID          string    `json:"userId"`
	NewBalance      *float64  `json:"newBalance,omitempty"`
	PreviousBalance *float64  `json:"previousBalance,omitempty"`
	TransactionID   string    `json:"transactionId,omitempty"`
	TransactionType string    `json:"transactionType,omitempty"`
	Amount          *float64  `json:"amount,omitempty"`
	RequiredAmount  *float64  `json:"requiredAmount,omitempty"`
	CurrentBalance  *float64  `json:"currentBalance,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Float returns a pointer to v, for optional event fields.
func Float(v float64) *float64 {
	return &v
}
