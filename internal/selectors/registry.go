// internal/selectors/registry.go
package selectors

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Logical UI roles the bridge drives. Locators for these are external,
// revisable data; the code never hardcodes a concrete selector.
const (
	RoleMessageInput    = "message-input"
	RoleSendButton      = "send-button"
	RoleResponseBlock   = "response-block"
	RoleStreamingCursor = "streaming-cursor"
	RoleLoginGate       = "login-gate"
	RoleNewConversation = "new-conversation-control"
)

// requiredRoles must resolve for the registry to be considered usable.
// new-conversation-control is optional; the controller falls back to
// navigating the base URL when it is absent.
var requiredRoles = []string{
	RoleMessageInput,
	RoleSendButton,
	RoleResponseBlock,
	RoleStreamingCursor,
	RoleLoginGate,
}

// UnresolvedRoleError reports a role with no candidate locators. It is
// the registry-level signal of UI drift.
type UnresolvedRoleError struct {
	Role string
}

func (e *UnresolvedRoleError) Error() string {
	return fmt.Sprintf("selector role %q has no candidate locators", e.Role)
}

// Registry maps logical roles to ordered candidate locators, loaded from
// an external yaml file. Reload never replaces a working map with a
// malformed one.
type Registry struct {
	mu      sync.RWMutex
	roles   map[string][]string
	baseURL string

	path   string
	logger *zap.Logger
}

// NewRegistry loads the selector file at path. The initial load must
// succeed; afterwards Reload failures leave the current map installed.
func NewRegistry(path string, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		path:   path,
		logger: logger.Named("selectors"),
	}
	roles, baseURL, err := r.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load selector configuration: %w", err)
	}
	r.roles = roles
	r.baseURL = baseURL
	r.logger.Info("Selector configuration loaded.",
		zap.String("path", path), zap.Int("roles", len(roles)))
	return r, nil
}

// load reads and validates the selector file without touching Registry
// state.
func (r *Registry) load() (map[string][]string, string, error) {
	v := viper.New()
	v.SetConfigFile(r.path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, "", fmt.Errorf("error reading selector file: %w", err)
	}

	baseURL := v.GetString("base-url")
	if baseURL == "" {
		return nil, "", fmt.Errorf("selector file missing base-url")
	}

	roles := make(map[string][]string)
	rolesSub := v.GetStringMap("roles")
	for role := range rolesSub {
		candidates := v.GetStringSlice("roles." + role)
		cleaned := make([]string, 0, len(candidates))
		for _, c := range candidates {
			if c != "" {
				cleaned = append(cleaned, c)
			}
		}
		if len(cleaned) > 0 {
			roles[role] = cleaned
		}
	}

	var missing []string
	for _, role := range requiredRoles {
		if len(roles[role]) == 0 {
			missing = append(missing, role)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, "", fmt.Errorf("selector file missing required roles: %v", missing)
	}

	return roles, baseURL, nil
}

// Resolve returns the candidate locators for a role in priority order.
// The slice is a copy; callers may not mutate registry state.
func (r *Registry) Resolve(role string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.roles[role]
	if len(candidates) == 0 {
		return nil, &UnresolvedRoleError{Role: role}
	}
	out := make([]string, len(candidates))
	copy(out, candidates)
	return out, nil
}

// BaseURL returns the navigation target for the conversational UI.
func (r *Registry) BaseURL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.baseURL
}

// RequiredRoles returns the role names every operation depends on.
func RequiredRoles() []string {
	out := make([]string, len(requiredRoles))
	copy(out, requiredRoles)
	return out
}

// Reload re-reads the selector file. On any validation failure the
// previous mapping stays installed untouched.
func (r *Registry) Reload() error {
	roles, baseURL, err := r.load()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.roles = roles
	r.baseURL = baseURL
	r.mu.Unlock()
	r.logger.Info("Selector configuration reloaded.", zap.Int("roles", len(roles)))
	return nil
}

// Watch hot-reloads the registry whenever the selector file changes on
// disk, until the context is canceled. A malformed edit is logged and
// ignored, never installed.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to watch selector file: %w", err)
	}
	if err := watcher.Add(r.path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch selector file: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				r.logger.Debug("Selector watch stopped.")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// Editors often replace the file rather than writing in
				// place, so Create counts as a change too.
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if err := r.Reload(); err != nil {
					r.logger.Warn("Selector reload rejected; keeping previous configuration.",
						zap.String("event", event.Name), zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("Selector watch error.", zap.Error(err))
			}
		}
	}()
	return nil
}
