// internal/selectors/registry_test.go
package selectors

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

const validSelectors = `
base-url: "https://chat.example.com"
roles:
  message-input:
    - "#prompt-textarea"
    - "div[contenteditable='true']"
  send-button:
    - "#primary-send"
    - "#legacy-send"
  response-block:
    - "div[data-message-author-role='assistant']"
  streaming-cursor:
    - ".result-streaming"
  login-gate:
    - "button[data-testid='login-button']"
  new-conversation-control:
    - "a[data-testid='new-chat']"
`

func writeSelectors(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRegistryLoadsRoles(t *testing.T) {
	r, err := NewRegistry(writeSelectors(t, validSelectors), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com", r.BaseURL())

	candidates, err := r.Resolve(RoleSendButton)
	require.NoError(t, err)
	assert.Equal(t, []string{"#primary-send", "#legacy-send"}, candidates,
		"candidates must keep declared priority order")
}

func TestNewRegistryRejectsMissingRequiredRole(t *testing.T) {
	missing := `
base-url: "https://chat.example.com"
roles:
  message-input: ["#prompt"]
  send-button: ["#send"]
  response-block: ["#out"]
  streaming-cursor: [".streaming"]
`
	_, err := NewRegistry(writeSelectors(t, missing), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login-gate")
}

func TestNewRegistryRejectsMissingBaseURL(t *testing.T) {
	_, err := NewRegistry(writeSelectors(t, `roles: {message-input: ["#a"]}`), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base-url")
}

func TestResolveUnknownRole(t *testing.T) {
	r, err := NewRegistry(writeSelectors(t, validSelectors), zap.NewNop())
	require.NoError(t, err)

	_, err = r.Resolve("no-such-role")
	require.Error(t, err)

	var ure *UnresolvedRoleError
	require.ErrorAs(t, err, &ure)
	assert.Equal(t, "no-such-role", ure.Role)
}

func TestReloadSwapsConfiguration(t *testing.T) {
	path := writeSelectors(t, validSelectors)
	r, err := NewRegistry(path, zap.NewNop())
	require.NoError(t, err)

	updated := `
base-url: "https://chat.example.com"
roles:
  message-input: ["#new-prompt"]
  send-button: ["#new-send"]
  response-block: ["#new-out"]
  streaming-cursor: [".new-streaming"]
  login-gate: ["#new-gate"]
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	require.NoError(t, r.Reload())

	candidates, err := r.Resolve(RoleMessageInput)
	require.NoError(t, err)
	assert.Equal(t, []string{"#new-prompt"}, candidates)
}

func TestReloadFailureKeepsWorkingConfiguration(t *testing.T) {
	path := writeSelectors(t, validSelectors)
	r, err := NewRegistry(path, zap.NewNop())
	require.NoError(t, err)

	// Overwrite with a file missing required roles.
	require.NoError(t, os.WriteFile(path, []byte(`base-url: "https://x"`), 0o644))
	require.Error(t, r.Reload())

	// The previous mapping must still resolve.
	candidates, err := r.Resolve(RoleSendButton)
	require.NoError(t, err)
	assert.Equal(t, []string{"#primary-send", "#legacy-send"}, candidates)
	assert.Equal(t, "https://chat.example.com", r.BaseURL())
}

func TestWatchReloadsAndStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := writeSelectors(t, validSelectors)
	r, err := NewRegistry(path, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Watch(ctx))

	updated := `
base-url: "https://chat.example.com"
roles:
  message-input: ["#watched-prompt"]
  send-button: ["#send"]
  response-block: ["#out"]
  streaming-cursor: [".streaming"]
  login-gate: ["#gate"]
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	assert.Eventually(t, func() bool {
		candidates, err := r.Resolve(RoleMessageInput)
		return err == nil && len(candidates) == 1 && candidates[0] == "#watched-prompt"
	}, 2*time.Second, 10*time.Millisecond,
		"an edit on disk must be installed without a restart")

	// A malformed edit must be rejected while the watch is live.
	require.NoError(t, os.WriteFile(path, []byte(`base-url: "https://x"`), 0o644))
	time.Sleep(100 * time.Millisecond)

	candidates, err := r.Resolve(RoleMessageInput)
	require.NoError(t, err)
	assert.Equal(t, []string{"#watched-prompt"}, candidates)

	// Cancellation ends the watcher goroutine; goleak verifies it.
	cancel()
}

func TestResolveReturnsCopy(t *testing.T) {
	r, err := NewRegistry(writeSelectors(t, validSelectors), zap.NewNop())
	require.NoError(t, err)

	first, err := r.Resolve(RoleSendButton)
	require.NoError(t, err)
	first[0] = "mutated"

	second, err := r.Resolve(RoleSendButton)
	require.NoError(t, err)
	assert.Equal(t, "#primary-send", second[0])
}
