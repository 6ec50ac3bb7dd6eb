package socks5

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	txsocks5 "github.com/txthinking/socks5"
)

// maxDomainLen is the largest name a one-byte length prefix can describe.
const maxDomainLen = 255

// Endpoint is a host and port, used both for the proxy and for the target
// requested through it.
type Endpoint struct {
	Host string
	Port uint16
}

// NewEndpoint returns an Endpoint for host and port, stripping brackets from
// an IPv6 literal.
func NewEndpoint(host string, port uint16) Endpoint {
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	return Endpoint{Host: host, Port: port}
}

// ParseEndpoint parses a "host:port" address as accepted by net.SplitHostPort.
func ParseEndpoint(address string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: %w", address, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: invalid port: %w", address, err)
	}
	return NewEndpoint(host, uint16(port)), nil
}

// String returns the endpoint in net.JoinHostPort form.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// Validate reports whether e can be sent in a CONNECT request.
func (e Endpoint) Validate() error {
	if e.Host == "" {
		return errors.New("empty host")
	}
	if e.Port == 0 {
		return errors.New("port must be in 1-65535")
	}
	if _, _, err := encodeHost(e.Host); err != nil {
		return err
	}
	return nil
}

// encodeHost returns the ATYP and DST.ADDR bytes for host. Domain names are
// returned without their length prefix, which txsocks5.NewRequest adds.
func encodeHost(host string) (byte, []byte, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		if ip.Is4() {
			b := ip.As4()
			return txsocks5.ATYPIPv4, b[:], nil
		}
		// IPv4-mapped addresses stay 16 bytes; the zone has no wire form.
		b := ip.WithZone("").As16()
		return txsocks5.ATYPIPv6, b[:], nil
	}

	if len(host) > maxDomainLen {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrHostTooLong, len(host))
	}
	return txsocks5.ATYPDomain, []byte(host), nil
}

func encodePort(port uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, port)
}
