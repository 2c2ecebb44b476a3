// api/schemas/schemas.go
package schemas

import "time"

// FailureClass identifies the category of a failed bridge operation.
// Every error that crosses the controller boundary carries exactly one of
// these, so callers can act on the outcome without parsing log output.
type FailureClass string

const (
	// FailRateLimited - admission was refused; retry after the wait hint.
	FailRateLimited FailureClass = "rate_limited"
	// FailNotLoggedIn - the login gate is present; a human must log in.
	FailNotLoggedIn FailureClass = "not_logged_in"
	// FailBusy - another operation holds the browser; retry shortly.
	FailBusy FailureClass = "busy"
	// FailSelectorUnresolved - a required UI role matched no candidate
	// locator. Signals UI drift; fix the selector configuration.
	FailSelectorUnresolved FailureClass = "selector_unresolved"
	// FailStructural - the response region never appeared during polling.
	FailStructural FailureClass = "structural_failure"
	// FailTimeout - submission succeeded but completion was never
	// confirmed within the configured ceiling.
	FailTimeout FailureClass = "timeout"
	// FailBrowserUnreachable - the Chrome process or target is gone.
	FailBrowserUnreachable FailureClass = "browser_unreachable"
	// FailCanceled - the caller abandoned the operation before it
	// finished. The session itself stays healthy.
	FailCanceled FailureClass = "canceled"
	// FailTerminated - the controller has been shut down.
	FailTerminated FailureClass = "terminated"
	// FailInvalidRequest - the caller's payload could not be processed.
	FailInvalidRequest FailureClass = "invalid_request"
)

// SessionState mirrors the controller lifecycle for status reporting.
type SessionState string

const (
	StateUninitialized SessionState = "uninitialized"
	StateLaunching     SessionState = "launching"
	StateAwaitingLogin SessionState = "awaiting_login"
	StateReady         SessionState = "ready"
	StateBusy          SessionState = "busy"
	StateDegraded      SessionState = "degraded"
	StateTerminated    SessionState = "terminated"
)

// ChatRequest is the payload for POST /v1/chat.
type ChatRequest struct {
	Message         string `json:"message"`
	NewConversation bool   `json:"new_conversation,omitempty"`
	// TimeoutMs optionally overrides the configured response ceiling.
	TimeoutMs int `json:"timeout_ms,omitempty"`
}

// ChatResponse is the result of a chat round trip.
type ChatResponse struct {
	Success        bool         `json:"success"`
	Message        string       `json:"message,omitempty"`
	Error          string       `json:"error,omitempty"`
	ErrorClass     FailureClass `json:"error_class,omitempty"`
	Partial        bool         `json:"partial,omitempty"`
	Conversation   string       `json:"conversation,omitempty"`
	ElapsedSeconds float64      `json:"elapsed_seconds"`
	PromptLength   int          `json:"prompt_length"`
	ResponseLength int          `json:"response_length,omitempty"`
}

// StatusResponse reports the bridge's view of the browser session.
type StatusResponse struct {
	Success       bool         `json:"success"`
	State         SessionState `json:"state"`
	LoggedIn      bool         `json:"logged_in"`
	BrowserAlive  bool         `json:"browser_alive"`
	Conversation  string       `json:"conversation,omitempty"`
	UptimeSeconds float64      `json:"uptime_seconds"`
}

// SessionResponse acknowledges a conversation reset.
type SessionResponse struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message,omitempty"`
	Conversation string       `json:"conversation,omitempty"`
	ErrorClass   FailureClass `json:"error_class,omitempty"`
}

// HealthResponse is returned by the liveness and health endpoints.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	// UnresolvedRoles lists selector roles the health probe could not
	// resolve. Empty when the probe passed.
	UnresolvedRoles []string `json:"unresolved_roles,omitempty"`
}

// ErrorResponse is the generic error envelope for the facade.
type ErrorResponse struct {
	Success    bool         `json:"success"`
	Error      string       `json:"error"`
	ErrorClass FailureClass `json:"error_class"`
	// RetryAfterSeconds carries the admission wait hint when the class
	// is rate_limited.
	RetryAfterSeconds float64 `json:"retry_after_seconds,omitempty"`
	// Role names the selector role that failed to resolve when the class
	// is selector_unresolved.
	Role string `json:"role,omitempty"`
}
