//go:build !unix

package inet

import "syscall"

// setReuseAddress is a no-op where the portable sockets API already allows
// rebinding, or offers no equivalent option.
func setReuseAddress(syscall.RawConn) error {
	return nil
}
