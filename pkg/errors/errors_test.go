package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWrapPreservesChain(t *testing.T) {
	err := Wrap(ErrNotConnected, "dial")

	require.Error(t, err)
	assert.True(t, Is(err, ErrNotConnected))
	assert.Equal(t, "dial: not connected", err.Error())
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "anything"))
}

func TestLogWithErrorWraps(t *testing.T) {
	err := LogWithError(zap.NewNop(), "subscribe failed", ErrSubscriberNotReady)

	require.Error(t, err)
	assert.True(t, Is(err, ErrSubscriberNotReady))
}

func TestLogWithErrorNilLogger(t *testing.T) {
	err := LogWithError(nil, "no logger", ErrNoToken)

	assert.True(t, Is(err, ErrNoToken))
}
