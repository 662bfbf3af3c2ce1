package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dtroode/identity-server/internal/model"
)

var _ model.Server = (*HTTPServer)(nil)

// HTTPServer serves an http.Handler on a listener from a security layer.
type HTTPServer struct {
	server *http.Server
	addr   string

	mu       sync.Mutex
	listener net.Listener
}

// NewHTTPServer creates an HTTPServer for handler on addr.
func NewHTTPServer(handler http.Handler, addr string) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		addr: addr,
	}
}

// Start blocks serving requests until Stop is called.
func (s *HTTPServer) Start(securityLayer model.SecurityLayer) error {
	listener, err := securityLayer.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop waits for in-flight requests until ctx is done.
func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Address returns the bound address once started, the configured one before.
func (s *HTTPServer) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
