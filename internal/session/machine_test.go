// internal/session/machine_test.go
package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatbridge/api/schemas"
)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	return NewMachine(zap.NewNop())
}

func advanceTo(t *testing.T, m *Machine, path ...schemas.SessionState) {
	t.Helper()
	for _, s := range path {
		require.NoError(t, m.Transition(s))
	}
}

func TestMachineHappyPath(t *testing.T) {
	m := newTestMachine(t)
	assert.Equal(t, schemas.StateUninitialized, m.State())

	advanceTo(t, m,
		schemas.StateLaunching,
		schemas.StateAwaitingLogin,
		schemas.StateReady,
	)

	require.NoError(t, m.Begin())
	assert.Equal(t, schemas.StateBusy, m.State())

	m.End(false)
	assert.Equal(t, schemas.StateReady, m.State())
}

func TestMachinePersistedSessionSkipsLogin(t *testing.T) {
	m := newTestMachine(t)
	advanceTo(t, m, schemas.StateLaunching, schemas.StateReady)
	assert.Equal(t, schemas.StateReady, m.State())
}

func TestMachineRejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		name string
		path []schemas.SessionState
		to   schemas.SessionState
	}{
		{"uninitialized to ready", nil, schemas.StateReady},
		{"uninitialized to busy", nil, schemas.StateBusy},
		{"launching to busy", []schemas.SessionState{schemas.StateLaunching}, schemas.StateBusy},
		{"awaiting login to busy", []schemas.SessionState{schemas.StateLaunching, schemas.StateAwaitingLogin}, schemas.StateBusy},
		{"ready to launching", []schemas.SessionState{schemas.StateLaunching, schemas.StateReady}, schemas.StateLaunching},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMachine(t)
			advanceTo(t, m, tc.path...)

			err := m.Transition(tc.to)
			require.Error(t, err)

			var ite *InvalidTransitionError
			require.ErrorAs(t, err, &ite)
			assert.Equal(t, tc.to, ite.To)
		})
	}
}

func TestMachineDegradedReachableFromAnyLiveState(t *testing.T) {
	for _, path := range [][]schemas.SessionState{
		{schemas.StateLaunching},
		{schemas.StateLaunching, schemas.StateAwaitingLogin},
		{schemas.StateLaunching, schemas.StateReady},
		{schemas.StateLaunching, schemas.StateReady, schemas.StateBusy},
	} {
		m := newTestMachine(t)
		advanceTo(t, m, path...)
		require.NoError(t, m.Transition(schemas.StateDegraded))
		assert.Equal(t, schemas.StateDegraded, m.State())
	}
}

func TestMachineDegradedRecoversViaReady(t *testing.T) {
	m := newTestMachine(t)
	advanceTo(t, m, schemas.StateLaunching, schemas.StateReady)
	require.NoError(t, m.Transition(schemas.StateDegraded))

	// A successful health probe moves Degraded back to Ready.
	require.NoError(t, m.Transition(schemas.StateReady))
	assert.Equal(t, schemas.StateReady, m.State())
}

func TestMachineTerminatedIsAbsorbing(t *testing.T) {
	m := newTestMachine(t)
	advanceTo(t, m, schemas.StateLaunching, schemas.StateReady)
	require.NoError(t, m.Transition(schemas.StateTerminated))

	for _, to := range []schemas.SessionState{
		schemas.StateReady,
		schemas.StateBusy,
		schemas.StateDegraded,
		schemas.StateLaunching,
	} {
		assert.Error(t, m.Transition(to), "terminated must reject %s", to)
	}

	// End is a no-op after termination.
	m.End(false)
	assert.Equal(t, schemas.StateTerminated, m.State())
}

func TestMachineEndDegradedLandsInDegraded(t *testing.T) {
	m := newTestMachine(t)
	advanceTo(t, m, schemas.StateLaunching, schemas.StateReady)
	require.NoError(t, m.Begin())

	m.End(true)
	assert.Equal(t, schemas.StateDegraded, m.State())
}

func TestResetConversationReplacesIdentifier(t *testing.T) {
	m := newTestMachine(t)
	before := m.Conversation()
	require.NotEmpty(t, before)

	after := m.ResetConversation()
	assert.NotEqual(t, before, after)
	assert.Equal(t, after, m.Conversation())
}

func TestLoginFlag(t *testing.T) {
	m := newTestMachine(t)
	assert.False(t, m.LoggedIn())
	m.SetLoggedIn(true)
	assert.True(t, m.LoggedIn())
	assert.False(t, m.LastActivity().IsZero())
}
