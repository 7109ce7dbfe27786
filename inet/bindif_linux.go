//go:build linux

package inet

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setBindToDevice restricts the socket to one interface (SO_BINDTODEVICE).
func setBindToDevice(c syscall.RawConn, name string) error {
	var optErr error
	err := c.Control(func(fd uintptr) {
		optErr = unix.BindToDevice(int(fd), name)
	})
	if err != nil {
		return err
	}
	return optErr
}
