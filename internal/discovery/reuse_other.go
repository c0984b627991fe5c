//go:build !unix

// ABOUTME: Socket option hook for the discovery listener on other platforms
// ABOUTME: Leaves the socket untouched
package discovery

import "syscall"

func reuseAddr(network, address string, c syscall.RawConn) error {
	return nil
}
