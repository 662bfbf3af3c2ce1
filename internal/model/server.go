package model

import (
	"context"
	"net"
)

// SecurityLayer produces the listener the HTTP server accepts on.
type SecurityLayer interface {
	Listen(protocol, addr string) (net.Listener, error)
}

// Server is a long-running network server.
type Server interface {
	Start(securityLayer SecurityLayer) error
	Stop(ctx context.Context) error
	Address() string
}
