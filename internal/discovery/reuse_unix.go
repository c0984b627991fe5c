//go:build unix

// ABOUTME: Socket option hook for the discovery listener on unix platforms
// ABOUTME: Sets SO_REUSEADDR so several receivers on one host can bind the port
package discovery

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func reuseAddr(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
