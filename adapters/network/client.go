package network

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// NewHTTPClient builds the client used for outbound calls. With a non-empty
// socksAddr every connection goes through that SOCKS5 proxy.
func NewHTTPClient(timeout time.Duration, socksAddr string) (*http.Client, error) {
	dial, err := NewDialer(socksAddr)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dial

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

// DialFunc opens a network connection
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// NewDialer returns a direct dialer, or a SOCKS5 one when socksAddr is set
func NewDialer(socksAddr string) (DialFunc, error) {
	if socksAddr == "" {
		d := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		return d.DialContext, nil
	}

	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer for %s: %w", socksAddr, err)
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}
