package network

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultProbeTimeout = 3 * time.Second

// Probe checks connectivity by opening a TCP connection to a well known address
type Probe struct {
	target  string
	timeout time.Duration
	dial    DialFunc
	logger  *zap.Logger
}

// NewProbe creates a probe dialing target (host:port) through the same route
// as outbound HTTP calls
func NewProbe(target string, timeout time.Duration, socksAddr string, logger *zap.Logger) (*Probe, error) {
	dial, err := NewDialer(socksAddr)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Probe{
		target:  target,
		timeout: timeout,
		dial:    dial,
		logger:  logger,
	}, nil
}

// Connected reports whether target accepted a connection within the timeout
func (p *Probe) Connected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.target)
	if err != nil {
		p.logger.Warn("Device not connected to Internet", zap.String("target", p.target), zap.Error(err))
		return false
	}
	conn.Close()
	return true
}
