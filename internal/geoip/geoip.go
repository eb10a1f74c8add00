// Package geoip provides pluggable source-IP country enrichment.
package geoip

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
)

// Resolver maps a source IP to a country code. Implementations must be safe
// for concurrent use.
type Resolver interface {
	Country(ip string) (string, bool)
}

// Disabled is a Resolver that never resolves. Used when no database is
// configured.
type Disabled struct{}

func (Disabled) Country(string) (string, bool) { return "", false }

type rangeEntry struct {
	prefix  netip.Prefix
	country string
}

// FileResolver resolves countries from a flat JSON feed of
// {"cidr": "...", "country": ".."} entries, loaded once at startup.
type FileResolver struct {
	ranges []rangeEntry
}

// LoadFile reads and parses a CIDR→country feed.
func LoadFile(path string) (*FileResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geoip feed: %w", err)
	}
	var entries []struct {
		CIDR    string `json:"cidr"`
		Country string `json:"country"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse geoip feed: %w", err)
	}
	r := &FileResolver{}
	for _, e := range entries {
		prefix, err := netip.ParsePrefix(e.CIDR)
		if err != nil {
			// Tolerate single addresses in the feed.
			addr, aerr := netip.ParseAddr(e.CIDR)
			if aerr != nil {
				continue
			}
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
		r.ranges = append(r.ranges, rangeEntry{prefix: prefix, country: e.Country})
	}
	return r, nil
}

// Country returns the country for the first containing range.
func (r *FileResolver) Country(ip string) (string, bool) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", false
	}
	for _, e := range r.ranges {
		if e.prefix.Contains(addr) {
			return e.country, true
		}
	}
	return "", false
}
