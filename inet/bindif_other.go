//go:build !linux

package inet

import (
	"fmt"
	"syscall"
)

func setBindToDevice(syscall.RawConn, string) error {
	return fmt.Errorf("%w: interface binding is not supported on this platform", ErrConfiguration)
}
