package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CopyBidirectional copies left to right and right to left until one
// direction ends. The first direction to finish, for any reason, closes both
// conns, which stops the other. Canceling ctx does the same. The returned
// error is the first copy failure, not counting errors caused by the close.
func CopyBidirectional(ctx context.Context, left, right net.Conn) error {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	g := errgroup.Group{}

	g.Go(func() error {
		defer closeBoth()
		return copyHalf(left, right)
	})

	g.Go(func() error {
		defer closeBoth()
		return copyHalf(right, left)
	})

	return g.Wait()
}

func copyHalf(dst io.Writer, src io.Reader) error {
	buf := copyBuffers.Get()
	defer copyBuffers.Put(buf)

	_, err := io.CopyBuffer(dst, src, *buf)
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}

// setNoDelay disables Nagle's algorithm on c, unwrapping it if needed.
func setNoDelay(c net.Conn) {
	for {
		switch t := c.(type) {
		case interface{ SetNoDelay(bool) error }:
			_ = t.SetNoDelay(true)
			return
		case interface{ NetConn() net.Conn }:
			c = t.NetConn()
		default:
			return
		}
	}
}
