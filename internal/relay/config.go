package relay

import (
	"github.com/rs/zerolog"

	"github.com/die-net/socksfwd/internal/dialer"
	"github.com/die-net/socksfwd/internal/socks5"
)

type Config struct {
	// Target is the destination every session asks the proxy to reach.
	Target socks5.Endpoint

	Dialer dialer.Dialer

	Logger zerolog.Logger
}
