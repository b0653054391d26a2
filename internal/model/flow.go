package model

import (
	"time"
)

// Protocol is the coarse protocol label attached to every observed packet.
type Protocol string

const (
	ProtocolHTTP  Protocol = "HTTP"
	ProtocolHTTPS Protocol = "HTTPS"
	ProtocolSSH   Protocol = "SSH"
	ProtocolGIT   Protocol = "GIT"
	ProtocolSMB   Protocol = "SMB"
	ProtocolTCP   Protocol = "TCP"
	ProtocolDNS   Protocol = "DNS"
	ProtocolUDP   Protocol = "UDP"
	ProtocolOther Protocol = "Other"
)

// FlowRecord is the unit persisted for every observed packet. Records are
// appended once and never mutated.
type FlowRecord struct {
	Timestamp time.Time `json:"timestamp"`
	SrcIP     string    `json:"src_ip"`
	DstIP     string    `json:"dst_ip"`
	Protocol  Protocol  `json:"protocol"`
	Size      uint64    `json:"size"`
	// DstPort is only set for TCP and UDP packets.
	DstPort *uint16 `json:"dst_port,omitempty"`
}

// PlaceholderAddrs are the "unspecified" addresses that never take part in
// aggregation or host discovery.
var PlaceholderAddrs = []string{"0.0.0.0", "::"}

// IsPlaceholder reports whether addr is empty or an unspecified address.
func IsPlaceholder(addr string) bool {
	if addr == "" {
		return true
	}
	for _, p := range PlaceholderAddrs {
		if addr == p {
			return true
		}
	}
	return false
}

// Filter selects the records a query considers. The zero value applies only
// the base exclusion rule.
type Filter struct {
	// Focus restricts the result to records where this address is the source
	// or the destination.
	Focus string
}

// Match reports whether a record passes the exclusion rule and the optional
// focus address.
func (f Filter) Match(r FlowRecord) bool {
	if IsPlaceholder(r.SrcIP) || IsPlaceholder(r.DstIP) {
		return false
	}
	if f.Focus != "" && r.SrcIP != f.Focus && r.DstIP != f.Focus {
		return false
	}
	return true
}

// Uint16Ptr returns a pointer to v. Handy for building records with a port.
func Uint16Ptr(v uint16) *uint16 {
	return &v
}
