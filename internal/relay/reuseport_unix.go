//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package relay

import (
	"golang.org/x/sys/unix"
)

// ReusePortSupported is true on platforms with SO_REUSEPORT.
const ReusePortSupported = true

func setReusePort(fd uintptr) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}
