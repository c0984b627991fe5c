// ABOUTME: LAN discovery of ListenBuddy servers
// ABOUTME: Shared descriptor type reported by the UDP listener and the mDNS browser
package discovery

import (
	"net"
	"strconv"
)

// ServerDescriptor identifies a discovered stream server. Address is the
// identity: one descriptor is kept per distinct IP even if names collide.
type ServerDescriptor struct {
	Name    string
	Address string
	Port    int
}

// HostPort returns the dialable address of the server
func (d ServerDescriptor) HostPort() string {
	return net.JoinHostPort(d.Address, strconv.Itoa(d.Port))
}

// DisplayName returns the name, or the address when the name is blank
func (d ServerDescriptor) DisplayName() string {
	if d.Name == "" {
		return d.Address
	}
	return d.Name
}
