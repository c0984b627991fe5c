// ABOUTME: Discovery datagram encoding and parsing
// ABOUTME: Text format DISCOVER|name|port broadcast over UDP
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DiscoveryPort is the UDP port servers broadcast announcements to
	DiscoveryPort = 50000

	// StreamPort is the default TCP port for the audio stream
	StreamPort = 60000

	// DiscoveryPrefix starts every announcement
	DiscoveryPrefix = "DISCOVER"

	// MaxDatagramSize bounds the receive buffer for announcements
	MaxDatagramSize = 1024

	fieldSeparator = "|"
)

// ErrMalformedDiscovery is returned for datagrams that are not valid announcements
var ErrMalformedDiscovery = errors.New("malformed discovery datagram")

// Announcement is the payload of a discovery datagram
type Announcement struct {
	Name string
	Port int
}

// EncodeDiscovery builds the datagram advertising name on the given TCP port
func EncodeDiscovery(name string, port int) ([]byte, error) {
	if strings.Contains(name, fieldSeparator) {
		return nil, fmt.Errorf("server name %q must not contain %q", name, fieldSeparator)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid stream port: %d", port)
	}
	return []byte(DiscoveryPrefix + fieldSeparator + name + fieldSeparator + strconv.Itoa(port)), nil
}

// ParseDiscovery decodes an announcement. Anything that is not at least three
// pipe-separated fields with a numeric port yields ErrMalformedDiscovery.
func ParseDiscovery(data []byte) (Announcement, error) {
	if !bytes.HasPrefix(data, []byte(DiscoveryPrefix)) {
		return Announcement{}, ErrMalformedDiscovery
	}

	parts := strings.Split(string(data), fieldSeparator)
	if len(parts) < 3 || parts[0] != DiscoveryPrefix {
		return Announcement{}, ErrMalformedDiscovery
	}

	port, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return Announcement{}, fmt.Errorf("%w: port %q: %v", ErrMalformedDiscovery, parts[2], err)
	}
	if port <= 0 || port > 65535 {
		return Announcement{}, fmt.Errorf("%w: port %d out of range", ErrMalformedDiscovery, port)
	}

	return Announcement{Name: parts[1], Port: port}, nil
}
