package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/supportdesk/internal/platform/timeouts"
	"github.com/louisbranch/supportdesk/internal/services/support/presence"
)

const (
	tokenCookieName = "support_token"

	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	peerSendQueueSize = 64
)

// Config defines the inputs for the support transport boundary.
//
// TokenSecret is the storefront's JWT signing secret; when empty, identify
// facts are taken from the client as-is.
type Config struct {
	HTTPAddr          string
	GRPCAddr          string
	TokenSecret       string
	HistoryLimit      int
	CloseSuperseded   bool
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the support HTTP/WebSocket process and its optional gRPC
// health endpoint.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	health          *healthServer
	hub             *supportHub
}

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type identifyPayload struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
	Locale  string `json:"locale,omitempty"`
}

type selectUserPayload struct {
	UserID string `json:"user_id"`
}

type messagePayload struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Body   string `json:"body"`
}

// NewServer builds a configured support server.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = presence.DefaultHistoryLimit
	}

	handlerConfig := handlerConfig{
		historyLimit:    config.HistoryLimit,
		closeSuperseded: config.CloseSuperseded,
	}
	if secret := strings.TrimSpace(config.TokenSecret); secret != "" {
		handlerConfig.authorizer = newTokenAuthorizer(secret)
		handlerConfig.requireAuth = true
	}

	var health *healthServer
	if grpcAddr := strings.TrimSpace(config.GRPCAddr); grpcAddr != "" {
		var err error
		health, err = newHealthServer(grpcAddr)
		if err != nil {
			return nil, fmt.Errorf("init gRPC health: %w", err)
		}
	}

	hub := newSupportHub(handlerConfig)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           hub.routes(handlerConfig),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		health:          health,
		hub:             hub,
	}, nil
}

// Run creates and serves a support server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init support server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve support: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server, and the health server when
// configured, until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("support server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	listener, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}

	healthCtx, stopHealth := context.WithCancel(context.Background())
	defer stopHealth()
	healthErr := make(chan error, 1)
	if s.health != nil {
		go func() {
			healthErr <- s.health.serve(healthCtx)
		}()
	} else {
		healthErr <- nil
	}

	serveErr := make(chan error, 1)
	log.Printf("support server listening on %s", listener.Addr())
	go func() {
		serveErr <- s.httpServer.Serve(listener)
	}()
	// Health only reports SERVING once the HTTP listener is bound.
	if s.health != nil {
		s.health.setServing(true)
	}

	select {
	case <-ctx.Done():
		if s.health != nil {
			s.health.setServing(false)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		stopHealth()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return <-healthErr
	case err := <-serveErr:
		stopHealth()
		if errors.Is(err, http.ErrServerClosed) {
			return <-healthErr
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if err := s.httpServer.Close(); err != nil {
		log.Printf("close http server: %v", err)
	}
	s.health.close()
	s.hub.close()
}
