// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatbridge/internal/browser"
	"github.com/xkilldash9x/chatbridge/internal/config"
)

// Bridge is the controller surface the facade depends on. The concrete
// implementation is browser.Controller; tests substitute a fake.
type Bridge interface {
	SendMessage(ctx context.Context, text string, newConversation bool, ceiling time.Duration) (*browser.SendResult, error)
	ResetConversation(ctx context.Context) (string, error)
	StatusSnapshot(ctx context.Context) browser.Status
	Screenshot(ctx context.Context) ([]byte, error)
	HealthProbe(ctx context.Context) (*browser.HealthReport, error)
}

// Server is the HTTP facade over the bridge. It translates each failure
// classification into a distinct status code so callers can act on the
// outcome without parsing error strings.
type Server struct {
	cfg     config.ServerConfig
	bridge  Bridge
	logger  *zap.Logger
	version string

	router *mux.Router
	http   *http.Server
}

// NewServer wires the router and middleware around the bridge.
func NewServer(cfg config.ServerConfig, bridge Bridge, version string, logger *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		bridge:  bridge,
		logger:  logger.Named("api"),
		version: version,
	}
	s.router = s.buildRouter()
	s.http = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // chat responses can legitimately take minutes
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()

	// Process liveness, outside the versioned API and its limiter.
	r.HandleFunc("/health", s.handleLiveness).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(s.loggingMiddleware)
	v1.Use(clientLimitMiddleware(s.cfg, s.logger))

	v1.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/session", s.handleResetSession).Methods(http.MethodDelete)
	v1.HandleFunc("/screenshot", s.handleScreenshot).Methods(http.MethodGet)
	v1.HandleFunc("/health", s.handleHealthProbe).Methods(http.MethodGet)

	if s.cfg.CORS.Enabled {
		r.Use(corsMiddleware(s.cfg.CORS.Origins))
	}
	return r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks serving HTTP until the listener fails or Shutdown
// is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP facade listening.", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP facade shutting down.")
	return s.http.Shutdown(ctx)
}
