package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/die-net/socksfwd/internal/socks5"
)

// SOCKS5ProxyDialer dials outbound TCP connections through a SOCKS5 proxy
// using CONNECT with no authentication. Every call opens its own proxy
// connection.
type SOCKS5ProxyDialer struct {
	cfg    Config
	proxy  socks5.Endpoint
	direct Dialer
}

func NewSOCKS5ProxyDialer(cfg Config, proxy socks5.Endpoint) *SOCKS5ProxyDialer {
	return &SOCKS5ProxyDialer{cfg: cfg, proxy: proxy, direct: NewDirectDialer(cfg)}
}

// Proxy returns the proxy endpoint this dialer negotiates with.
func (d *SOCKS5ProxyDialer) Proxy() socks5.Endpoint {
	return d.proxy
}

func (d *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, address)
	}

	target, err := socks5.ParseEndpoint(address)
	if err != nil {
		return nil, err
	}
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("socks5 proxy dial %s: %w", address, err)
	}

	c, err := d.direct.DialContext(ctx, "tcp", d.proxy.String())
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %w", socks5.ErrConnectToProxyTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", socks5.ErrConnectToProxy, err)
	}

	// Unblock the handshake if ctx ends first.
	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})

	conn, err := socks5.Handshake(c, target, d.cfg.NegotiationTimeout)
	if !stop() {
		_ = c.Close()
		return nil, fmt.Errorf("socks5 proxy dial %s via %s: %w", address, d.proxy, context.Cause(ctx))
	}
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("socks5 proxy dial %s via %s: %w", address, d.proxy, err)
	}
	return conn, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
