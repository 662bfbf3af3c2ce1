package server

import (
	"crypto/tls"
	"fmt"
	"net"
)

// TLSListener accepts TLS connections using a certificate from disk.
type TLSListener struct {
	certFileName       string
	privateKeyFileName string
}

// NewTLSListener creates a TLSListener. Files are read on Listen.
func NewTLSListener(certFileName, privateKeyFileName string) *TLSListener {
	return &TLSListener{
		certFileName:       certFileName,
		privateKeyFileName: privateKeyFileName,
	}
}

// Listen loads the key pair and listens on addr. Only TLS 1.2 and newer are
// accepted; h2 is offered through ALPN.
func (l *TLSListener) Listen(protocol, addr string) (net.Listener, error) {
	cert, err := tls.LoadX509KeyPair(l.certFileName, l.privateKeyFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	return tls.Listen(protocol, addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"h2", "http/1.1"},
	})
}

// PlainListener accepts unencrypted connections, for local development or
// when TLS terminates at a proxy.
type PlainListener struct{}

func NewPlainListener() *PlainListener {
	return &PlainListener{}
}

func (l *PlainListener) Listen(protocol, addr string) (net.Listener, error) {
	return net.Listen(protocol, addr)
}
