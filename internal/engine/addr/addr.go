// Package addr classifies host addresses as internal or external.
package addr

import (
	"net/netip"
	"sort"
)

// limitedBroadcast never leaves the local segment.
var limitedBroadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// IsPrivate reports whether s is a private, loopback, link-local, multicast
// or limited broadcast address. Anything that fails to parse is treated as public so a malformed
// record never aborts a query.
func IsPrivate(s string) bool {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	a = a.Unmap()
	return a.IsPrivate() ||
		a.IsLoopback() ||
		a.IsLinkLocalUnicast() ||
		a.IsLinkLocalMulticast() ||
		a.IsInterfaceLocalMulticast() ||
		a.IsMulticast() ||
		a == limitedBroadcast
}

// Depth returns the layout layer of an address: 0 for internal, 1 for external.
func Depth(s string) int {
	if IsPrivate(s) {
		return 0
	}
	return 1
}

// Less orders private addresses before public ones and compares the textual
// form within each group.
func Less(a, b string) bool {
	pa, pb := IsPrivate(a), IsPrivate(b)
	if pa != pb {
		return pa
	}
	return a < b
}

// Sort sorts addresses in place using Less.
func Sort(addrs []string) {
	sort.SliceStable(addrs, func(i, j int) bool {
		return Less(addrs[i], addrs[j])
	})
}
