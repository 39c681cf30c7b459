package callstate

import (
	"testing"

	"github.com/NexaFlowAI/voice-widget-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStates = []domain.CallState{
	domain.CallStateIdle,
	domain.CallStateConnecting,
	domain.CallStateConnected,
	domain.CallStateEnding,
	domain.CallStateEnded,
}

// force puts a machine into an arbitrary state without validation
func force(m *Machine, state domain.CallState) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func TestTransitionTable(t *testing.T) {
	legal := map[domain.CallState]map[domain.CallState]bool{
		domain.CallStateIdle:       {domain.CallStateConnecting: true},
		domain.CallStateConnecting: {domain.CallStateConnected: true, domain.CallStateEnded: true},
		domain.CallStateConnected:  {domain.CallStateEnding: true},
		domain.CallStateEnding:     {domain.CallStateEnded: true},
		domain.CallStateEnded:      {domain.CallStateIdle: true},
	}

	for _, from := range allStates {
		for _, to := range allStates {
			m := NewMachine()
			force(m, from)

			ok := m.TransitionTo(to)
			if legal[from][to] {
				assert.True(t, ok, "%s -> %s should be allowed", from, to)
				assert.Equal(t, to, m.Current())
			} else {
				assert.False(t, ok, "%s -> %s should be rejected", from, to)
				assert.Equal(t, from, m.Current(), "state must be unchanged after rejection")
			}
		}
	}
}

func TestResetAlwaysYieldsIdle(t *testing.T) {
	for _, from := range allStates {
		m := NewMachine()
		force(m, from)
		m.Reset()
		assert.Equal(t, domain.CallStateIdle, m.Current())
	}
}

func TestStrayCallStartCannotResurrectEndedSession(t *testing.T) {
	m := NewMachine()
	require.True(t, m.TransitionTo(domain.CallStateConnecting))
	require.True(t, m.TransitionTo(domain.CallStateEnded))

	// A late call-start event maps to a connected transition
	assert.False(t, m.TransitionTo(domain.CallStateConnected))
	assert.Equal(t, domain.CallStateEnded, m.Current())
}

func TestPredicates(t *testing.T) {
	m := NewMachine()
	assert.True(t, m.Is(domain.CallStateIdle))
	assert.False(t, m.Active())

	require.True(t, m.TransitionTo(domain.CallStateConnecting))
	assert.True(t, m.Active())
	assert.True(t, m.Is(domain.CallStateConnecting))
}
