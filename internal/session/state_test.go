package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		allowed  bool
	}{
		{StateCreated, StateQRPending, true},
		{StateQRPending, StateQRReady, true},
		{StateQRReady, StateAuthenticating, true},
		{StateQRReady, StateQRPending, true},
		{StateAuthenticating, StateConnected, true},
		{StateConnected, StateDisconnected, true},
		{StateDisconnected, StateReconnecting, true},
		{StateReconnecting, StateConnected, true},
		{StateReconnecting, StateFailed, true},
		{StateFailed, StateCreated, true},
		{StateQRReady, StateFailed, true},

		{StateCreated, StateConnected, false},
		{StateQRPending, StateConnected, false},
		{StateConnected, StateReconnecting, false},
		{StateDisconnected, StateConnected, false},
		{StateFailed, StateReconnecting, false},
		{StateConnected, StateFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestState_PathTo(t *testing.T) {
	assert.Equal(t, []State{StateAuthenticating, StateConnected}, StateQRReady.pathTo(StateConnected))
	assert.Equal(t, []State{StateQRReady}, StateQRPending.pathTo(StateQRReady))
	assert.Nil(t, StateQRReady.pathTo(StateQRPending))
	assert.Nil(t, StateConnected.pathTo(StateConnected))
	assert.Nil(t, StateCreated.pathTo(StateConnected))

	path := StateQRPending.pathTo(StateConnected)
	prev := StateQRPending
	for _, next := range path {
		assert.True(t, CanTransition(prev, next), "%s -> %s", prev, next)
		prev = next
	}
}

func TestState_Predicates(t *testing.T) {
	assert.True(t, StateQRReady.IsPairing())
	assert.False(t, StateCreated.IsPairing())
	assert.True(t, StateCreated.AcceptsChallengeRequest())
	assert.False(t, StateAuthenticating.AcceptsChallengeRequest())
	assert.False(t, StateConnected.AcceptsChallengeRequest())
}
