// ABOUTME: Tests for the network environment
// ABOUTME: Covers broadcast address math and permission accounting
package netenv

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectedBroadcast(t *testing.T) {
	tests := []struct {
		cidr     string
		expected string
	}{
		{"192.168.1.23/24", "192.168.1.255"},
		{"10.0.0.5/8", "10.255.255.255"},
		{"172.16.4.1/20", "172.16.15.255"},
		{"192.168.1.23/32", "192.168.1.23"},
	}

	for _, tt := range tests {
		ip, ipnet, err := net.ParseCIDR(tt.cidr)
		require.NoError(t, err)
		ipnet.IP = ip

		assert.Equal(t, tt.expected, DirectedBroadcast(ipnet).String(), tt.cidr)
	}
}

func TestDirectedBroadcastIgnoresLoopbackAndIPv6(t *testing.T) {
	ip, ipnet, err := net.ParseCIDR("127.0.0.1/8")
	require.NoError(t, err)
	ipnet.IP = ip
	assert.Nil(t, DirectedBroadcast(ipnet))

	ip, ipnet, err = net.ParseCIDR("fe80::1/64")
	require.NoError(t, err)
	ipnet.IP = ip
	assert.Nil(t, DirectedBroadcast(ipnet))
}

func TestHostBroadcastAddressIsIPv4(t *testing.T) {
	addr := NewHost().BroadcastAddress()
	require.NotNil(t, addr)
	assert.NotNil(t, addr.To4())
}

func TestHostPermissionRefCount(t *testing.T) {
	h := NewHost()

	require.NoError(t, h.AcquireMulticast())
	require.NoError(t, h.AcquireMulticast())
	assert.Equal(t, 2, h.Held())

	h.ReleaseMulticast()
	h.ReleaseMulticast()
	h.ReleaseMulticast()
	assert.Equal(t, 0, h.Held())
}

func TestStatic(t *testing.T) {
	s := &Static{}
	assert.True(t, s.BroadcastAddress().Equal(net.IPv4bcast))

	s.Broadcast = net.IPv4(127, 0, 0, 1)
	assert.True(t, s.BroadcastAddress().Equal(net.IPv4(127, 0, 0, 1)))

	require.NoError(t, s.AcquireMulticast())
	s.ReleaseMulticast()
	acquired, released := s.Counts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)

	s.AcquireErr = errors.New("denied")
	assert.Error(t, s.AcquireMulticast())
}
