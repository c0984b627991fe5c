// ABOUTME: Network environment used by discovery
// ABOUTME: Resolves the LAN broadcast address and scopes multicast permission
package netenv

import (
	"net"
	"sync"

	"github.com/rs/zerolog/log"
)

// LimitedBroadcast is used when no interface broadcast address is found
var LimitedBroadcast = net.IPv4bcast

// Environment resolves addresses and OS permissions for discovery
type Environment interface {
	// BroadcastAddress returns the address discovery datagrams are sent to
	BroadcastAddress() net.IP

	// AcquireMulticast obtains whatever the OS needs to receive broadcasts
	AcquireMulticast() error

	// ReleaseMulticast undoes one AcquireMulticast
	ReleaseMulticast()
}

// Host inspects the machine's interfaces. Desktop platforms deliver
// broadcast traffic without an explicit grant, so the permission is only
// reference counted.
type Host struct {
	mu   sync.Mutex
	held int
}

// NewHost returns the environment of the running machine
func NewHost() *Host {
	return &Host{}
}

// BroadcastAddress returns the directed broadcast address of the first up,
// non-loopback IPv4 interface, or 255.255.255.255
func (h *Host) BroadcastAddress() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		log.Debug().Str("component", "netenv").Err(err).Msg("Failed to list interfaces")
		return LimitedBroadcast
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagBroadcast == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if bcast := DirectedBroadcast(ipnet); bcast != nil {
				return bcast
			}
		}
	}

	return LimitedBroadcast
}

// AcquireMulticast takes a reference on the permission
func (h *Host) AcquireMulticast() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.held++
	return nil
}

// ReleaseMulticast drops a reference; extra releases are ignored
func (h *Host) ReleaseMulticast() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.held > 0 {
		h.held--
	}
}

// Held returns the number of outstanding acquisitions
func (h *Host) Held() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.held
}

// DirectedBroadcast returns the broadcast address of an IPv4 network, or nil
// for IPv6 and loopback networks
func DirectedBroadcast(ipnet *net.IPNet) net.IP {
	ip := ipnet.IP.To4()
	if ip == nil || ip.IsLoopback() {
		return nil
	}

	mask := ipnet.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return nil
	}

	bcast := make(net.IP, net.IPv4len)
	for i := range bcast {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}

// Static is a fixed environment for configured broadcast targets and tests
type Static struct {
	Broadcast net.IP

	// AcquireErr, when set, is returned by AcquireMulticast
	AcquireErr error

	mu       sync.Mutex
	acquired int
	released int
}

// BroadcastAddress returns the configured address or 255.255.255.255
func (s *Static) BroadcastAddress() net.IP {
	if s.Broadcast == nil {
		return LimitedBroadcast
	}
	return s.Broadcast
}

// AcquireMulticast records the acquisition
func (s *Static) AcquireMulticast() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.AcquireErr != nil {
		return s.AcquireErr
	}
	s.acquired++
	return nil
}

// ReleaseMulticast records the release
func (s *Static) ReleaseMulticast() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.released++
}

// Counts returns how many times the permission was acquired and released
func (s *Static) Counts() (acquired, released int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.acquired, s.released
}
