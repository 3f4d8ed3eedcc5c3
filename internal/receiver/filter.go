package receiver

import (
	"fmt"
	"net"
	"strings"
)

// OriginFilter is the accept-time allow-list check.
//
// Rules are IP literals or CIDR ranges. An empty rule set allows every
// peer. The filter runs once per connection, immediately after accept and
// before any client state exists; a rejected socket is closed without
// reading a single byte and without consuming a connection id.
type OriginFilter struct {
	ips  []net.IP
	nets []*net.IPNet
}

// NewOriginFilter parses allow-list entries. Entries may mix IP literals
// ("10.0.0.5") and CIDR ranges ("10.0.0.0/24").
func NewOriginFilter(entries []string) (*OriginFilter, error) {
	filter := &OriginFilter{}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid allowed origin %q: %w", entry, err)
			}
			filter.nets = append(filter.nets, ipNet)
			continue
		}

		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid allowed origin %q: not an IP literal", entry)
		}
		filter.ips = append(filter.ips, ip)
	}

	return filter, nil
}

// Allow reports whether a peer address passes the filter.
func (f *OriginFilter) Allow(peer string) bool {
	if len(f.ips) == 0 && len(f.nets) == 0 {
		return true
	}

	ip := net.ParseIP(peer)
	if ip == nil {
		return false
	}

	for _, allowed := range f.ips {
		if allowed.Equal(ip) {
			return true
		}
	}
	for _, ipNet := range f.nets {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}
