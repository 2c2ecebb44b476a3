// internal/session/machine.go
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatbridge/api/schemas"
)

// Machine tracks the controller lifecycle and guards every externally
// visible operation against invalid states. It deliberately knows nothing
// about the browser; the controller revalidates against a live DOM probe
// before trusting Ready (the machine is bookkeeping, not ground truth).
type Machine struct {
	mu           sync.Mutex
	state        schemas.SessionState
	loggedIn     bool
	conversation string
	lastActivity time.Time
	logger       *zap.Logger

	now func() time.Time
}

// InvalidTransitionError reports a rejected state change.
type InvalidTransitionError struct {
	From, To schemas.SessionState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid session transition %s -> %s", e.From, e.To)
}

// transitions is the legal edge set. Degraded and Terminated are reachable
// from anywhere and handled separately in Transition.
var transitions = map[schemas.SessionState][]schemas.SessionState{
	schemas.StateUninitialized: {schemas.StateLaunching},
	schemas.StateLaunching:     {schemas.StateAwaitingLogin, schemas.StateReady},
	schemas.StateAwaitingLogin: {schemas.StateReady},
	schemas.StateReady:         {schemas.StateBusy},
	schemas.StateBusy:          {schemas.StateReady},
	schemas.StateDegraded:      {schemas.StateReady},
}

// NewMachine returns a Machine in the Uninitialized state with a fresh
// conversation identifier.
func NewMachine(logger *zap.Logger) *Machine {
	return &Machine{
		state:        schemas.StateUninitialized,
		conversation: uuid.New().String(),
		logger:       logger.Named("session"),
		now:          time.Now,
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() schemas.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves the machine to the requested state, enforcing the edge
// set. Terminated is absorbing; Degraded is reachable from any live state.
func (m *Machine) Transition(to schemas.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to)
}

func (m *Machine) transitionLocked(to schemas.SessionState) error {
	from := m.state
	if from == schemas.StateTerminated {
		return &InvalidTransitionError{From: from, To: to}
	}
	if to == schemas.StateTerminated || to == schemas.StateDegraded {
		m.apply(from, to)
		return nil
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			m.apply(from, to)
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to}
}

func (m *Machine) apply(from, to schemas.SessionState) {
	m.state = to
	m.lastActivity = m.now()
	m.logger.Debug("Session state changed.",
		zap.String("from", string(from)),
		zap.String("to", string(to)))
}

// Begin marks an operation as accepted (Ready -> Busy).
func (m *Machine) Begin() error {
	return m.Transition(schemas.StateBusy)
}

// End releases the Busy state. It is unconditional: whether the operation
// succeeded, failed, or timed out, the browser is no longer occupied.
// When degraded is set the machine lands in Degraded instead of Ready.
func (m *Machine) End(degraded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == schemas.StateTerminated {
		return
	}
	if degraded {
		m.apply(m.state, schemas.StateDegraded)
		return
	}
	if m.state == schemas.StateBusy {
		m.apply(m.state, schemas.StateReady)
	}
}

// Conversation returns the current opaque conversation identifier.
func (m *Machine) Conversation() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversation
}

// ResetConversation replaces the conversation identifier and returns the
// new value. Called after the new-conversation interaction succeeds.
func (m *Machine) ResetConversation() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversation = uuid.New().String()
	m.lastActivity = m.now()
	return m.conversation
}

// SetLoggedIn refreshes the login flag derived from the DOM probe.
func (m *Machine) SetLoggedIn(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loggedIn = v
	m.lastActivity = m.now()
}

// LoggedIn reports the last observed login status.
func (m *Machine) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loggedIn
}

// LastActivity returns the timestamp of the last state change or probe.
func (m *Machine) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}
