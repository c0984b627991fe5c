// ABOUTME: Optional mDNS advertisement and browsing of stream servers
// ABOUTME: Complements the UDP broadcast on networks that filter broadcasts
package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog/log"
)

const (
	// MDNSService is the DNS-SD service type of a stream server
	MDNSService = "_listenbuddy._tcp"

	// MDNSProtocolTXT marks the wire protocol in the TXT record
	MDNSProtocolTXT = "proto=listenbuddy/1"

	// DefaultBrowseTimeout bounds one mDNS query round
	DefaultBrowseTimeout = 3 * time.Second
)

// MDNSAdvertiser publishes the stream server over mDNS
type MDNSAdvertiser struct {
	name string
	port int

	mu     sync.Mutex
	server *mdns.Server
}

// NewMDNSAdvertiser creates an advertiser for the given instance name and port
func NewMDNSAdvertiser(name string, port int) *MDNSAdvertiser {
	return &MDNSAdvertiser{name: name, port: port}
}

// Start begins answering mDNS queries. Calling Start while running does nothing.
func (a *MDNSAdvertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	ips, err := localIPv4s()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(a.name, MDNSService, "", "", a.port, ips, []string{MDNSProtocolTXT})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}
	a.server = server

	log.Info().
		Str("component", "mdns").
		Str("name", a.name).
		Int("port", a.port).
		Str("service", MDNSService).
		Msg("Advertising mDNS service")
	return nil
}

// Stop withdraws the advertisement. Safe to call repeatedly.
func (a *MDNSAdvertiser) Stop() error {
	a.mu.Lock()
	server := a.server
	a.server = nil
	a.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown()
}

// MDNSBrowser repeatedly queries for stream servers
type MDNSBrowser struct {
	timeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMDNSBrowser creates a browser; timeout bounds each query round
func NewMDNSBrowser(timeout time.Duration) *MDNSBrowser {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}
	return &MDNSBrowser{timeout: timeout}
}

// Start browses until Stop, reporting each server address once.
// onServerFound runs on the browser goroutine and never after Stop returns.
func (b *MDNSBrowser) Start(onServerFound func(ServerDescriptor)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})

	go b.loop(ctx, b.done, onServerFound)
	return nil
}

// Stop ends browsing and waits for the current round to finish
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (b *MDNSBrowser) loop(ctx context.Context, done chan struct{}, onServerFound func(ServerDescriptor)) {
	defer close(done)

	seen := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		collected := make(chan []ServerDescriptor, 1)

		go func() {
			var found []ServerDescriptor
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}
				found = append(found, ServerDescriptor{
					Name:    entry.Name,
					Address: entry.AddrV4.String(),
					Port:    entry.Port,
				})
			}
			collected <- found
		}()

		params := mdns.DefaultParams(MDNSService)
		params.Entries = entries
		params.Timeout = b.timeout
		params.DisableIPv6 = true

		if err := mdns.Query(params); err != nil {
			log.Debug().Str("component", "mdns").Err(err).Msg("mDNS query failed")
		}
		close(entries)

		for _, server := range <-collected {
			if ctx.Err() != nil {
				return
			}
			if _, ok := seen[server.Address]; ok {
				continue
			}
			seen[server.Address] = struct{}{}

			log.Info().
				Str("component", "mdns").
				Str("name", server.Name).
				Str("addr", server.HostPort()).
				Msg("Discovered server")

			if onServerFound != nil {
				onServerFound(server)
			}
		}

		if ctx.Err() != nil {
			return
		}
		// An empty round returns immediately on hosts without multicast
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// localIPv4s returns the addresses of up, non-loopback IPv4 interfaces
func localIPv4s() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
