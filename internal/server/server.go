package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/zjrosen/arbiter/internal/log"
)

// Server wraps the Handler with an http.Server for lifecycle management.
type Server struct {
	server   *http.Server
	listener net.Listener
	port     int // Actual port after binding (useful when using :0)
}

// Config configures the diagnostics server.
type Config struct {
	// Addr is the address to listen on (e.g., "127.0.0.1:7420" or ":0").
	Addr string
	HandlerConfig
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration
}

// New binds the listener and prepares the server. If Addr uses port 0 the
// OS assigns one; read it back with Port.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("server: registry is required")
	}
	handler := NewHandlerWithConfig(cfg.HandlerConfig)

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	return &Server{
		port:     port,
		listener: listener,
		server: &http.Server{
			Handler:           handler.Routes(),
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			// No WriteTimeout: /events is a long-lived stream.
		},
	}, nil
}

// Start serves until Stop is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	log.Info(log.CatServer, "Starting diagnostics server", "addr", s.listener.Addr().String())
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info(log.CatServer, "Stopping diagnostics server")
	return s.server.Shutdown(ctx)
}

// Port returns the actual port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}
