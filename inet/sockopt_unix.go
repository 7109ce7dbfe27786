//go:build unix

package inet

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setReuseAddress marks the socket address reusable before bind, so a
// listener can rebind a port still in TIME_WAIT.
func setReuseAddress(c syscall.RawConn) error {
	var optErr error
	err := c.Control(func(fd uintptr) {
		optErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return optErr
}
