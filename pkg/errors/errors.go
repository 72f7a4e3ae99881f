package errors

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Authentication errors.
var (
	// ErrNoToken is returned when a handshake carries no credential at all.
	ErrNoToken = errors.New("no token provided")
	// ErrInvalidToken is returned when a token is malformed or fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a token has expired.
	ErrTokenExpired = errors.New("token expired")
	// ErrNoSubject is returned when a verified token has no subject claim.
	ErrNoSubject = errors.New("token has no subject")
)

// Connection store errors.
var (
	// ErrSubscriberNotReady is returned when the subscriber connection does not
	// become ready within the bounded wait at subscribe time.
	ErrSubscriberNotReady = errors.New("subscriber connection not ready")
	// ErrAlreadySubscribed is returned on a second subscribe to the same channel.
	ErrAlreadySubscribed = errors.New("already subscribed to channel")
	// ErrNotSubscribed is returned when unsubscribing from a channel that has no
	// active subscription on this instance.
	ErrNotSubscribed = errors.New("not subscribed to channel")
)

// Client subscriber errors.
var (
	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned after Close has been called.
	ErrClosed = errors.New("client closed")
	// ErrRefreshInFlight is returned when a refresh is already pending on this session.
	ErrRefreshInFlight = errors.New("refresh already in flight")
)

// New creates a new error with the given message.
func New(msg string) error {
	return errors.New(msg)
}

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// LogWithError logs the error with the given fields and returns it wrapped
// with msg. Use this for standardized error logging across packages.
func LogWithError(log *zap.Logger, msg string, err error, fields ...zap.Field) error {
	if log != nil {
		log.Error(msg, append(fields, zap.Error(err))...)
	}
	return Wrap(err, msg)
}
