package testutil

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"

	gosocks5 "github.com/things-go/go-socks5"
	txsocks5 "github.com/txthinking/socks5"
)

// StartSOCKS5Server starts a complete SOCKS5 server on a loopback port. It
// stops accepting when ctx is done or the test ends.
func StartSOCKS5Server(t *testing.T, ctx context.Context) net.Listener {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	t.Cleanup(func() {
		stop()
		_ = ln.Close()
	})

	srv := gosocks5.NewServer()
	go func() { _ = srv.Serve(ln) }()

	return ln
}

// AcceptNoAuth reads a client greeting and selects "no authentication".
func AcceptNoAuth(c net.Conn) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(c)
	if err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}
	if !containsMethod(neg.Methods, txsocks5.MethodNone) {
		// RFC 1928: 0xFF indicates no acceptable methods.
		_, _ = txsocks5.NewNegotiationReply(0xff).WriteTo(c)
		return fmt.Errorf("client does not support no-auth")
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(c); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	return nil
}

// ReadRequest performs AcceptNoAuth and reads the following request.
func ReadRequest(c net.Conn) (*txsocks5.Request, error) {
	if err := AcceptNoAuth(c); err != nil {
		return nil, err
	}
	req, err := txsocks5.NewRequestFrom(c)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	return req, nil
}

// WriteReply writes a reply with the given REP code and a zero IPv4 bound
// address.
func WriteReply(c net.Conn, rep byte) error {
	if _, err := txsocks5.NewReply(rep, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}).WriteTo(c); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

// ServeSOCKS5Connect answers one CONNECT on c by dialing the requested
// address and relaying until either side closes.
func ServeSOCKS5Connect(ctx context.Context, c net.Conn) error {
	req, err := ReadRequest(c)
	if err != nil {
		return err
	}
	if req.Cmd != txsocks5.CmdConnect {
		return WriteReply(c, txsocks5.RepCommandNotSupported)
	}

	d := net.Dialer{}
	dst, err := d.DialContext(ctx, "tcp", req.Address())
	if err != nil {
		return WriteReply(c, txsocks5.RepHostUnreachable)
	}
	defer dst.Close()

	a, addr, port, err := txsocks5.ParseAddress(dst.LocalAddr().String())
	if err != nil {
		return err
	}
	if a == txsocks5.ATYPDomain {
		addr = addr[1:]
	}
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, a, addr, port).WriteTo(c); err != nil {
		return err
	}

	go func() {
		_, _ = io.Copy(dst, c)
		_ = dst.Close()
	}()
	_, _ = io.Copy(c, dst)

	return nil
}

func containsMethod(methods []byte, want byte) bool {
	for _, m := range methods {
		if m == want {
			return true
		}
	}
	return false
}
