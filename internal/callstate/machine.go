package callstate

import (
	"sync"

	"github.com/NexaFlowAI/voice-widget-service/internal/domain"
	"github.com/NexaFlowAI/voice-widget-service/pkg/logger"
	"go.uber.org/zap"
)

// allowedTransitions is the legal successor set for each call state.
// Illegal transitions are rejected so out-of-order SDK events (for example a
// stray call-start arriving after the flow already reached ended) cannot
// resurrect a dead session.
var allowedTransitions = map[domain.CallState][]domain.CallState{
	domain.CallStateIdle:       {domain.CallStateConnecting},
	domain.CallStateConnecting: {domain.CallStateConnected, domain.CallStateEnded},
	domain.CallStateConnected:  {domain.CallStateEnding},
	domain.CallStateEnding:     {domain.CallStateEnded},
	domain.CallStateEnded:      {domain.CallStateIdle},
}

// Machine enforces legal lifecycle transitions for a voice call. It owns
// nothing beyond the state value; callers are responsible for side effects
// like starting timers or releasing resources.
//
// The mutex matters: transitions are requested both by HTTP handlers and by
// the SDK event read loop.
type Machine struct {
	mu    sync.Mutex
	state domain.CallState
}

// NewMachine returns a machine in the idle state
func NewMachine() *Machine {
	return &Machine{state: domain.CallStateIdle}
}

// TransitionTo moves to next only if next is a legal successor of the current
// state. On rejection the state is unchanged, false is returned and a warning
// is logged.
func (m *Machine) TransitionTo(next domain.CallState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, allowed := range allowedTransitions[m.state] {
		if allowed == next {
			m.state = next
			return true
		}
	}

	logger.Base().Warn("rejected illegal call state transition",
		zap.String("from", string(m.state)),
		zap.String("to", string(next)))
	return false
}

// Reset unconditionally forces the machine back to idle, bypassing transition
// validation. Used to recover from the terminal ended state before a new call.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.state = domain.CallStateIdle
	m.mu.Unlock()
}

// Current returns the current state
func (m *Machine) Current() domain.CallState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Is reports whether the machine is in the given state
func (m *Machine) Is(state domain.CallState) bool {
	return m.Current() == state
}

// Active reports whether a call session exists, i.e. the state is anything
// other than idle. The floating entry point is hidden while Active is true.
func (m *Machine) Active() bool {
	return m.Current() != domain.CallStateIdle
}
