package socks5

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	txsocks5 "github.com/txthinking/socks5"
)

// readBufferSize bounds how much a handshake read may pull off the wire ahead
// of what the protocol step needs.
const readBufferSize = 512

// Handshake negotiates a CONNECT to target over conn, an established
// connection to a SOCKS5 proxy. Each blocking read must complete within
// timeout; zero disables the deadline.
//
// On success the returned conn is ready for relaying. It is conn itself
// unless the proxy sent bytes past its reply, in which case those bytes are
// served first. On failure conn is left open for the caller to close.
func Handshake(conn net.Conn, target Endpoint, timeout time.Duration) (net.Conn, error) {
	req, err := connectRequest(target)
	if err != nil {
		return nil, err
	}

	var greeting bytes.Buffer
	if _, err := txsocks5.NewNegotiationRequest([]byte{txsocks5.MethodNone}).WriteTo(&greeting); err != nil {
		return nil, fmt.Errorf("encode greeting: %w", err)
	}

	h := &handshake{conn: conn, br: bufio.NewReaderSize(conn, readBufferSize), timeout: timeout}

	if err := h.write("greeting", greeting.Bytes()); err != nil {
		return nil, err
	}
	if err := h.readMethod(); err != nil {
		return nil, err
	}
	if err := h.write("request", req); err != nil {
		return nil, err
	}
	if err := h.readReply(); err != nil {
		return nil, err
	}

	_ = conn.SetDeadline(time.Time{})

	if h.br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: h.br}, nil
	}
	return conn, nil
}

// connectRequest encodes the CONNECT frame for target.
func connectRequest(target Endpoint) ([]byte, error) {
	atyp, addr, err := encodeHost(target.Host)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, addr, encodePort(target.Port)).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return buf.Bytes(), nil
}

type handshake struct {
	conn    net.Conn
	br      *bufio.Reader
	timeout time.Duration
}

func (h *handshake) write(step string, b []byte) error {
	h.setDeadline()
	if _, err := h.conn.Write(b); err != nil {
		return fmt.Errorf("write %s: %w", step, classify(err))
	}
	return nil
}

func (h *handshake) readMethod() error {
	b := make([]byte, 2)
	if err := h.readFull("method selection", b); err != nil {
		return err
	}
	if b[0] != txsocks5.Ver || b[1] != txsocks5.MethodNone {
		return fmt.Errorf("%w: got ver=0x%02x method=0x%02x", ErrAuthMethodRejected, b[0], b[1])
	}
	return nil
}

func (h *handshake) readReply() error {
	hdr := make([]byte, 4)
	if err := h.readFull("reply", hdr); err != nil {
		return err
	}
	if hdr[0] != txsocks5.Ver {
		return fmt.Errorf("%w: 0x%02x", ErrInvalidVersion, hdr[0])
	}
	if hdr[1] != txsocks5.RepSuccess {
		return &ConnectRejectedError{Code: hdr[1]}
	}

	var n int
	switch hdr[3] {
	case txsocks5.ATYPIPv4:
		n = net.IPv4len + 2
	case txsocks5.ATYPIPv6:
		n = net.IPv6len + 2
	case txsocks5.ATYPDomain:
		l := make([]byte, 1)
		if err := h.readFull("bound address length", l); err != nil {
			return err
		}
		n = int(l[0]) + 2
	default:
		return fmt.Errorf("%w: 0x%02x", ErrUnknownAddressType, hdr[3])
	}

	h.setDeadline()
	if _, err := h.br.Discard(n); err != nil {
		return fmt.Errorf("read bound address: %w", classify(err))
	}
	return nil
}

func (h *handshake) readFull(step string, b []byte) error {
	h.setDeadline()
	if _, err := io.ReadFull(h.br, b); err != nil {
		return fmt.Errorf("read %s: %w", step, classify(err))
	}
	return nil
}

func (h *handshake) setDeadline() {
	if h.timeout > 0 {
		_ = h.conn.SetDeadline(time.Now().Add(h.timeout))
	}
}

// classify maps transport failures onto the handshake error values.
func classify(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrPrematureClose
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrReadTimeout
	}
	return err
}

// bufferedConn is a net.Conn whose reads drain bytes buffered during the
// handshake before reading from the network again.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// NetConn returns the underlying connection.
func (c *bufferedConn) NetConn() net.Conn {
	return c.Conn
}
