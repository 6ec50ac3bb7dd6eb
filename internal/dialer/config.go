package dialer

import (
	"net"
	"time"
)

type Config struct {
	// DialTimeout bounds the TCP connect to the proxy.
	DialTimeout time.Duration

	// NegotiationTimeout bounds each blocking read of the SOCKS5 handshake.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig
}
