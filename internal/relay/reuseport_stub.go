//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package relay

import (
	"errors"
)

const ReusePortSupported = false

func setReusePort(_ uintptr) error {
	return errors.New("SO_REUSEPORT is not supported on this platform")
}
