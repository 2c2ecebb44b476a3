// internal/api/handlers.go
package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatbridge/api/schemas"
	"github.com/xkilldash9x/chatbridge/internal/browser"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// statusClientClosedRequest is the nginx convention for a caller that
// disconnected before the response was ready.
const statusClientClosedRequest = 499

// statusForClass maps each failure classification to a distinct HTTP
// status. One generic failure code would defeat the point of classifying.
var statusForClass = map[schemas.FailureClass]int{
	schemas.FailInvalidRequest:     http.StatusBadRequest,
	schemas.FailNotLoggedIn:        http.StatusUnauthorized,
	schemas.FailBusy:               http.StatusConflict,
	schemas.FailRateLimited:        http.StatusTooManyRequests,
	schemas.FailSelectorUnresolved: http.StatusBadGateway,
	schemas.FailStructural:         http.StatusBadGateway,
	schemas.FailBrowserUnreachable: http.StatusServiceUnavailable,
	schemas.FailTerminated:         http.StatusServiceUnavailable,
	schemas.FailTimeout:            http.StatusGatewayTimeout,
	schemas.FailCanceled:           statusClientClosedRequest,
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders a classified failure. Unclassified errors should not
// reach this layer; they are reported as internal without leaking detail.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var oe *browser.OpError
	if !errors.As(err, &oe) {
		s.logger.Error("Unclassified error reached the facade.", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, schemas.ErrorResponse{
			Error: "internal error",
		})
		return
	}

	status, ok := statusForClass[oe.Class]
	if !ok {
		status = http.StatusInternalServerError
	}

	resp := schemas.ErrorResponse{
		Error:      oe.Error(),
		ErrorClass: oe.Class,
		Role:       oe.Role,
	}
	if oe.Class == schemas.FailRateLimited && oe.Wait > 0 {
		resp.RetryAfterSeconds = oe.Wait.Seconds()
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(oe.Wait.Seconds()))))
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req schemas.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, schemas.ErrorResponse{
			Error:      "malformed request body",
			ErrorClass: schemas.FailInvalidRequest,
		})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, schemas.ErrorResponse{
			Error:      "message is required",
			ErrorClass: schemas.FailInvalidRequest,
		})
		return
	}

	var ceiling time.Duration
	if req.TimeoutMs > 0 {
		ceiling = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	start := time.Now()
	result, err := s.bridge.SendMessage(r.Context(), req.Message, req.NewConversation, ceiling)
	if err != nil {
		var oe *browser.OpError
		if errors.As(err, &oe) && oe.Class == schemas.FailTimeout && oe.Partial != "" {
			// Timed out but the configuration surfaces partial text.
			writeJSON(w, http.StatusGatewayTimeout, schemas.ChatResponse{
				Message:        oe.Partial,
				Error:          oe.Error(),
				ErrorClass:     oe.Class,
				Partial:        true,
				ElapsedSeconds: time.Since(start).Seconds(),
				PromptLength:   len(req.Message),
				ResponseLength: len(oe.Partial),
			})
			return
		}
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, schemas.ChatResponse{
		Success:        true,
		Message:        result.Text,
		Conversation:   result.Conversation,
		ElapsedSeconds: result.Elapsed.Seconds(),
		PromptLength:   len(req.Message),
		ResponseLength: len(result.Text),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.bridge.StatusSnapshot(r.Context())
	writeJSON(w, http.StatusOK, schemas.StatusResponse{
		Success:       true,
		State:         st.State,
		LoggedIn:      st.LoggedIn,
		BrowserAlive:  st.BrowserAlive,
		Conversation:  st.Conversation,
		UptimeSeconds: st.Uptime.Seconds(),
	})
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	conversation, err := s.bridge.ResetConversation(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schemas.SessionResponse{
		Success:      true,
		Message:      "conversation reset",
		Conversation: conversation,
	})
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	img, err := s.bridge.Screenshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

func (s *Server) handleHealthProbe(w http.ResponseWriter, r *http.Request) {
	report, err := s.bridge.HealthProbe(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	health := "ok"
	if !report.OK {
		status = http.StatusBadGateway
		health = "degraded"
	}
	writeJSON(w, status, schemas.HealthResponse{
		Status:          health,
		Version:         s.version,
		Timestamp:       time.Now().UTC(),
		UnresolvedRoles: report.UnresolvedRoles,
	})
}

// handleLiveness answers process liveness without touching the browser.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, schemas.HealthResponse{
		Status:    "alive",
		Version:   s.version,
		Timestamp: time.Now().UTC(),
	})
}
