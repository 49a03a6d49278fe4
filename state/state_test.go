package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/graph/state"
)

func TestSteps(t *testing.T) {
	tests := []struct {
		description string
		from, to    state.State
		expected    []state.Change
	}{
		{
			description: "null to playing",
			from:        state.Null,
			to:          state.Playing,
			expected:    []state.Change{state.NullToReady, state.ReadyToPaused, state.PausedToPlaying},
		},
		{
			description: "playing to null",
			from:        state.Playing,
			to:          state.Null,
			expected:    []state.Change{state.PlayingToPaused, state.PausedToReady, state.ReadyToNull},
		},
		{
			description: "ready to paused",
			from:        state.Ready,
			to:          state.Paused,
			expected:    []state.Change{state.ReadyToPaused},
		},
		{
			description: "paused to ready",
			from:        state.Paused,
			to:          state.Ready,
			expected:    []state.Change{state.PausedToReady},
		},
		{
			description: "same state",
			from:        state.Paused,
			to:          state.Paused,
		},
		{
			description: "invalid state",
			from:        state.VoidPending,
			to:          state.Paused,
		},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, state.Steps(test.from, test.to), test.description)
	}
}

func TestNext(t *testing.T) {
	c, ok := state.Next(state.Ready, state.Playing)
	assert.True(t, ok)
	assert.Equal(t, state.ReadyToPaused, c)
	assert.True(t, c.Upward())
	assert.Equal(t, state.PausedToReady, c.Reverse())

	_, ok = state.Next(state.Ready, state.Ready)
	assert.False(t, ok)
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "NULL->READY", state.NullToReady.String())
	assert.Equal(t, "VOID_PENDING", state.VoidPending.String())
	assert.Equal(t, "NO_PREROLL", state.NoPreroll.String())
	assert.Equal(t, "State(42)", state.State(42).String())
}
