package socks5

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectToProxy is returned when the TCP connection to the proxy
	// could not be established.
	ErrConnectToProxy = errors.New("socks5: connect to proxy failed")

	// ErrConnectToProxyTimeout is returned when the TCP connection to the
	// proxy did not complete within the handshake timeout.
	ErrConnectToProxyTimeout = errors.New("socks5: connect to proxy timed out")

	// ErrAuthMethodRejected is returned when the proxy does not accept the
	// "no authentication" method.
	ErrAuthMethodRejected = errors.New("socks5: no-auth method rejected")

	// ErrInvalidVersion is returned when a reply does not carry version 5.
	ErrInvalidVersion = errors.New("socks5: invalid reply version")

	// ErrConnectRejected matches any *ConnectRejectedError under errors.Is.
	ErrConnectRejected = errors.New("socks5: connect rejected")

	ErrUnknownAddressType = errors.New("socks5: unknown address type")
	ErrHostTooLong        = errors.New("socks5: host name longer than 255 bytes")
	ErrPrematureClose     = errors.New("socks5: connection closed during handshake")
	ErrReadTimeout        = errors.New("socks5: handshake read timed out")
)

// ConnectRejectedError reports a non-zero REP field in the proxy's CONNECT
// reply. Code is kept as sent; it is not mapped onto sub-reasons.
type ConnectRejectedError struct {
	Code byte
}

func (e *ConnectRejectedError) Error() string {
	return fmt.Sprintf("socks5: connect rejected by proxy (rep=0x%02x)", e.Code)
}

func (e *ConnectRejectedError) Is(target error) bool {
	return target == ErrConnectRejected
}
