// internal/browser/controller.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chatbridge/api/schemas"
	"github.com/xkilldash9x/chatbridge/internal/config"
	"github.com/xkilldash9x/chatbridge/internal/ratelimit"
	"github.com/xkilldash9x/chatbridge/internal/selectors"
	"github.com/xkilldash9x/chatbridge/internal/session"
)

// Controller owns the single logical browser session and serializes every
// operation against it. Admission runs strictly before the operation gate,
// so throttled callers never contend for the browser. A caller hitting the
// gate while another operation is in flight gets an immediate busy
// rejection; queueing is deliberately absent.
type Controller struct {
	cfg      *config.Config
	registry *selectors.Registry
	governor *ratelimit.Governor
	machine  *session.Machine
	driver   Driver
	extract  *Extractor
	logger   *zap.Logger

	// opMu is the single-operation gate. All operations, mutating and
	// read-only alike, serialize through it.
	opMu sync.Mutex

	started time.Time
	now     func() time.Time
}

// SendResult is the outcome of a completed chat round trip.
type SendResult struct {
	Text         string
	Conversation string
	Elapsed      time.Duration
}

// Status is a point-in-time view of the session.
type Status struct {
	State        schemas.SessionState
	LoggedIn     bool
	BrowserAlive bool
	Conversation string
	Uptime       time.Duration
}

// HealthReport is the outcome of a health probe.
type HealthReport struct {
	OK              bool
	State           schemas.SessionState
	UnresolvedRoles []string
}

// NewController wires the controller from its collaborators. Start must
// be called before any operation.
func NewController(cfg *config.Config, registry *selectors.Registry, governor *ratelimit.Governor, driver Driver, logger *zap.Logger) *Controller {
	l := logger.Named("controller")
	return &Controller{
		cfg:      cfg,
		registry: registry,
		governor: governor,
		machine:  session.NewMachine(logger),
		driver:   driver,
		extract:  NewExtractor(driver, registry, cfg.Response, logger),
		logger:   l,
		now:      time.Now,
	}
}

// Start navigates to the conversational UI and probes login status. A
// valid persisted profile lands the session in Ready immediately; without
// one the session waits in AwaitingLogin for a manual login.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.machine.Transition(schemas.StateLaunching); err != nil {
		return opError(schemas.FailTerminated, err)
	}
	c.started = c.now()

	if err := c.driver.Navigate(ctx, c.registry.BaseURL()); err != nil {
		c.machine.Transition(schemas.StateDegraded)
		return opError(schemas.FailBrowserUnreachable, err)
	}

	loggedIn := c.probeLogin(ctx)
	c.machine.SetLoggedIn(loggedIn)

	if loggedIn {
		c.logger.Info("Persisted session valid; ready.")
		return c.machine.Transition(schemas.StateReady)
	}
	c.logger.Info("No valid session; awaiting manual login.")
	return c.machine.Transition(schemas.StateAwaitingLogin)
}

// SendMessage submits text to the conversation and waits for the reply.
// With newConversation set the conversation is reset first and the
// session's conversation identifier replaced.
func (c *Controller) SendMessage(ctx context.Context, text string, newConversation bool, ceiling time.Duration) (*SendResult, error) {
	if text == "" {
		return nil, roleError(schemas.FailInvalidRequest, "")
	}

	// Admission before the gate: throttled callers never touch the browser.
	if d := c.governor.Admit(); !d.Allowed {
		c.logger.Debug("Request throttled.", zap.Duration("wait", d.Wait))
		return nil, &OpError{Class: schemas.FailRateLimited, Wait: d.Wait}
	}

	if !c.opMu.TryLock() {
		return nil, &OpError{Class: schemas.FailBusy}
	}
	defer c.opMu.Unlock()

	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}

	if err := c.machine.Begin(); err != nil {
		return nil, opError(schemas.FailBusy, err)
	}

	start := c.now()
	result, err := c.sendLocked(ctx, text, newConversation, ceiling)
	c.machine.End(isDegrading(err))

	if err != nil {
		return nil, err
	}
	result.Elapsed = c.now().Sub(start)
	return result, nil
}

// sendLocked performs the DOM interaction. Caller holds the gate and has
// moved the machine to Busy.
func (c *Controller) sendLocked(ctx context.Context, text string, newConversation bool, ceiling time.Duration) (*SendResult, error) {
	if newConversation {
		if err := c.resetLocked(ctx); err != nil {
			return nil, err
		}
	}

	inputSel, err := c.resolveLive(ctx, selectors.RoleMessageInput)
	if err != nil {
		return nil, err
	}
	if err := c.driver.Type(ctx, inputSel, text); err != nil {
		return nil, opError(schemas.FailBrowserUnreachable, err)
	}

	// Candidate fallthrough on the send button; a UI that renders neither
	// candidate still accepts Enter in the focused input.
	sendSel, found, err := c.extract.firstExisting(ctx, selectors.RoleSendButton)
	if err != nil {
		return nil, err
	}
	if found {
		if err := c.driver.Click(ctx, sendSel); err != nil {
			return nil, opError(schemas.FailBrowserUnreachable, err)
		}
	} else {
		c.logger.Warn("No send button matched; falling back to Enter.")
		if err := c.driver.PressEnter(ctx); err != nil {
			return nil, opError(schemas.FailBrowserUnreachable, err)
		}
	}
	c.logger.Info("Prompt submitted.", zap.Int("prompt_length", len(text)))

	reply, err := c.extract.AwaitCompletion(ctx, ceiling)
	if err != nil {
		var oe *OpError
		if errors.As(err, &oe) && oe.Class == schemas.FailTimeout && !c.cfg.Response.ReturnPartialOnTimeout {
			// Discarding partial text on timeout is the configured policy.
			oe.Partial = ""
		}
		return nil, err
	}

	return &SendResult{
		Text:         reply,
		Conversation: c.machine.Conversation(),
	}, nil
}

// ResetConversation drives the UI to a fresh conversation without sending
// a message. Same admission and gating as SendMessage.
func (c *Controller) ResetConversation(ctx context.Context) (string, error) {
	if d := c.governor.Admit(); !d.Allowed {
		return "", &OpError{Class: schemas.FailRateLimited, Wait: d.Wait}
	}

	if !c.opMu.TryLock() {
		return "", &OpError{Class: schemas.FailBusy}
	}
	defer c.opMu.Unlock()

	if err := c.ensureReady(ctx); err != nil {
		return "", err
	}
	if err := c.machine.Begin(); err != nil {
		return "", opError(schemas.FailBusy, err)
	}

	err := c.resetLocked(ctx)
	c.machine.End(isDegrading(err))
	if err != nil {
		return "", err
	}
	return c.machine.Conversation(), nil
}

// resetLocked performs the new-conversation interaction. The control is
// an optional role; when it is absent the fallback is re-navigating the
// base URL, which lands on a fresh conversation.
func (c *Controller) resetLocked(ctx context.Context) error {
	sel, found, err := c.extract.firstExisting(ctx, selectors.RoleNewConversation)
	if err != nil {
		var oe *OpError
		if !errors.As(err, &oe) || oe.Class != schemas.FailSelectorUnresolved {
			return err
		}
		found = false
	}

	if found {
		if err := c.driver.Click(ctx, sel); err != nil {
			return opError(schemas.FailBrowserUnreachable, err)
		}
	} else {
		if err := c.driver.Navigate(ctx, c.registry.BaseURL()); err != nil {
			return opError(schemas.FailBrowserUnreachable, err)
		}
	}

	conversation := c.machine.ResetConversation()
	c.logger.Info("Conversation reset.", zap.String("conversation", conversation))
	return nil
}

// StatusSnapshot reports the session state. When the gate is free a cheap
// DOM probe refreshes the login flag; while an operation is in flight the
// last observed values are returned instead of blocking on the browser.
func (c *Controller) StatusSnapshot(ctx context.Context) Status {
	st := Status{
		State:        c.machine.State(),
		LoggedIn:     c.machine.LoggedIn(),
		BrowserAlive: true,
		Conversation: c.machine.Conversation(),
	}
	if !c.started.IsZero() {
		st.Uptime = c.now().Sub(c.started)
	}

	if st.State == schemas.StateTerminated {
		st.BrowserAlive = false
		return st
	}

	if c.opMu.TryLock() {
		defer c.opMu.Unlock()
		st.BrowserAlive = c.driver.Alive(ctx)
		if st.BrowserAlive {
			st.LoggedIn = c.probeLogin(ctx)
			c.machine.SetLoggedIn(st.LoggedIn)
		}
	}
	return st
}

// Screenshot captures the rendered page. Permitted in every state except
// Terminated; serialized through the same gate as everything else.
func (c *Controller) Screenshot(ctx context.Context) ([]byte, error) {
	if c.machine.State() == schemas.StateTerminated {
		return nil, &OpError{Class: schemas.FailTerminated}
	}
	if !c.opMu.TryLock() {
		return nil, &OpError{Class: schemas.FailBusy}
	}
	defer c.opMu.Unlock()

	img, err := c.driver.Screenshot(ctx)
	if err != nil {
		return nil, opError(schemas.FailBrowserUnreachable, err)
	}
	return img, nil
}

// HealthProbe resolves every required selector role against the live DOM
// without interacting. A fully resolving probe recovers a Degraded
// session back to Ready.
func (c *Controller) HealthProbe(ctx context.Context) (*HealthReport, error) {
	if c.machine.State() == schemas.StateTerminated {
		return nil, &OpError{Class: schemas.FailTerminated}
	}
	if !c.opMu.TryLock() {
		return nil, &OpError{Class: schemas.FailBusy}
	}
	defer c.opMu.Unlock()

	report, err := c.healthLocked(ctx)
	if err != nil {
		return nil, err
	}
	report.State = c.machine.State()
	return report, nil
}

// healthLocked runs the probe under the gate. One automatic retry is
// allowed for a transient existence-check failure; the probe is read-only
// and idempotent.
func (c *Controller) healthLocked(ctx context.Context) (*HealthReport, error) {
	if !c.driver.Alive(ctx) {
		c.machine.Transition(schemas.StateDegraded)
		return nil, &OpError{Class: schemas.FailBrowserUnreachable}
	}

	var unresolved []string
	for _, role := range selectors.RequiredRoles() {
		if role == selectors.RoleStreamingCursor || role == selectors.RoleLoginGate {
			// Transient roles only render mid-generation or when logged
			// out; configured candidates are enough for these.
			if _, err := c.registry.Resolve(role); err != nil {
				unresolved = append(unresolved, role)
			}
			continue
		}
		found, err := c.roleMatchesLive(ctx, role)
		if err != nil {
			return nil, err
		}
		if !found {
			unresolved = append(unresolved, role)
		}
	}

	report := &HealthReport{OK: len(unresolved) == 0, UnresolvedRoles: unresolved}
	if report.OK && c.machine.State() == schemas.StateDegraded {
		c.logger.Info("Health probe passed; recovering from degraded.")
		if err := c.machine.Transition(schemas.StateReady); err != nil {
			return nil, opError(schemas.FailTerminated, err)
		}
	}
	return report, nil
}

// roleMatchesLive checks the role against the DOM with one retry.
func (c *Controller) roleMatchesLive(ctx context.Context, role string) (bool, error) {
	_, found, err := c.extract.firstExisting(ctx, role)
	if err != nil {
		var oe *OpError
		if errors.As(err, &oe) && oe.Class == schemas.FailSelectorUnresolved {
			return false, nil
		}
		_, found, err = c.extract.firstExisting(ctx, role)
		if err != nil {
			return false, err
		}
	}
	// The response block is absent on a fresh conversation; a configured
	// candidate list counts as resolved for it.
	if !found && role == selectors.RoleResponseBlock {
		return true, nil
	}
	return found, nil
}

// Shutdown terminates the session. Terminated is absorbing; all further
// operations are rejected.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.logger.Info("Controller shutting down.")
	c.machine.Transition(schemas.StateTerminated)
	if err := c.driver.Close(ctx); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// Conversation returns the current conversation identifier.
func (c *Controller) Conversation() string {
	return c.machine.Conversation()
}

// ensureReady revalidates the session against a fresh browser observation
// before allowing a mutating operation. The state machine is bookkeeping;
// the browser may have logged out or crashed between calls.
func (c *Controller) ensureReady(ctx context.Context) error {
	switch st := c.machine.State(); st {
	case schemas.StateTerminated:
		return &OpError{Class: schemas.FailTerminated}
	case schemas.StateUninitialized, schemas.StateLaunching:
		return opError(schemas.FailBrowserUnreachable, fmt.Errorf("controller not started (state %s)", st))
	case schemas.StateBusy:
		return &OpError{Class: schemas.FailBusy}
	case schemas.StateDegraded:
		// Attempt in-line recovery; a passing probe moves us to Ready.
		report, err := c.healthLocked(ctx)
		if err != nil {
			return err
		}
		if !report.OK {
			return &OpError{Class: schemas.FailSelectorUnresolved, Role: report.UnresolvedRoles[0]}
		}
	}

	if !c.driver.Alive(ctx) {
		c.machine.Transition(schemas.StateDegraded)
		return &OpError{Class: schemas.FailBrowserUnreachable}
	}

	loggedIn := c.probeLogin(ctx)
	c.machine.SetLoggedIn(loggedIn)
	if !loggedIn {
		if c.machine.State() == schemas.StateReady {
			// Logged out underneath us; Degraded until the human logs in
			// and a probe confirms it.
			c.machine.Transition(schemas.StateDegraded)
		}
		return &OpError{Class: schemas.FailNotLoggedIn}
	}

	if c.machine.State() == schemas.StateAwaitingLogin {
		if err := c.machine.Transition(schemas.StateReady); err != nil {
			return opError(schemas.FailTerminated, err)
		}
	}
	if c.machine.State() == schemas.StateDegraded {
		if err := c.machine.Transition(schemas.StateReady); err != nil {
			return opError(schemas.FailTerminated, err)
		}
	}
	return nil
}

// probeLogin derives login status from the DOM: a visible login gate
// means logged out; otherwise a visible message input means logged in.
// Read-only, so one automatic retry is permitted on probe errors.
func (c *Controller) probeLogin(ctx context.Context) bool {
	gate := c.roleExistsWithRetry(ctx, selectors.RoleLoginGate)
	if gate {
		return false
	}
	return c.roleExistsWithRetry(ctx, selectors.RoleMessageInput)
}

func (c *Controller) roleExistsWithRetry(ctx context.Context, role string) bool {
	_, found, err := c.extract.firstExisting(ctx, role)
	if err != nil {
		_, found, err = c.extract.firstExisting(ctx, role)
		if err != nil {
			c.logger.Debug("Login probe failed.", zap.String("role", role), zap.Error(err))
			return false
		}
	}
	return found
}

// resolveLive resolves a role to the first candidate matching a live
// element, failing with a drift error when nothing matches.
func (c *Controller) resolveLive(ctx context.Context, role string) (string, error) {
	sel, found, err := c.extract.firstExisting(ctx, role)
	if err != nil {
		return "", err
	}
	if !found {
		c.logger.Warn("Selector role unresolved against live DOM.", zap.String("role", role))
		return "", roleError(schemas.FailSelectorUnresolved, role)
	}
	return sel, nil
}

// isDegrading reports whether a failure should leave the session in
// Degraded rather than back in Ready. Drift and unreachable-browser
// failures are not self-recovering; timeouts and throttles are.
func isDegrading(err error) bool {
	if err == nil {
		return false
	}
	class, ok := ClassOf(err)
	if !ok {
		return false
	}
	switch class {
	case schemas.FailSelectorUnresolved, schemas.FailStructural, schemas.FailBrowserUnreachable:
		return true
	}
	return false
}
