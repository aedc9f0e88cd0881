// internal/network/dialer.go
package network

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DialerConfig holds TCP dialing settings for the game transport.
type DialerConfig struct {
	Timeout      time.Duration
	KeepAlive    time.Duration
	ForceNoDelay bool
}

// NewDialerConfig returns the dialer defaults.
func NewDialerConfig() *DialerConfig {
	return &DialerConfig{
		Timeout:      DefaultDialTimeout,
		KeepAlive:    DefaultKeepAliveInterval,
		ForceNoDelay: true,
	}
}

// DialTCPContext opens a TCP connection and applies keep-alive and TCP_NODELAY settings.
func DialTCPContext(ctx context.Context, network, address string, config *DialerConfig) (net.Conn, error) {
	if config == nil {
		config = NewDialerConfig()
	}

	dialer := &net.Dialer{
		Timeout:       config.Timeout,
		KeepAlive:     config.KeepAlive,
		FallbackDelay: 300 * time.Millisecond,
	}

	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("tcp dial failed: %w", err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok && config.ForceNoDelay {
		if err := tcpConn.SetNoDelay(true); err != nil {
			tcpConn.Close()
			return nil, fmt.Errorf("failed to set TCP NoDelay: %w", err)
		}
	}
	return conn, nil
}
