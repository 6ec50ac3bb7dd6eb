package testutil

import (
	"context"
	"net"
	"sync"
	"testing"
)

// StartAcceptServer listens on a loopback port and runs handler in its own
// goroutine for every accepted connection, closing the connection when
// handler returns or ctx is done. The returned func closes the listener and
// waits for running handlers.
func StartAcceptServer(t *testing.T, ctx context.Context, handler func(net.Conn)) (net.Listener, func()) {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	stopListener := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	var wg sync.WaitGroup
	wg.Go(func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			wg.Go(func() {
				stop := context.AfterFunc(ctx, func() {
					_ = c.Close()
				})
				defer stop()
				defer c.Close()
				handler(c)
			})
		}
	})

	var once sync.Once
	wait := func() {
		once.Do(func() {
			stopListener()
			_ = ln.Close()
			wg.Wait()
		})
	}

	return ln, wait
}
