package probe

import (
	"errors"
	"fmt"
	"slices"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// ErrNoInterface is returned when no interface can be captured on.
var ErrNoInterface = errors.New("no usable capture interface")

// DefaultInterface picks the interface to capture on when none is
// configured: the first one that is up, is not a loopback and has an address.
func DefaultInterface() (string, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to list interfaces: %w", err)
	}
	return pickInterface(ifaces)
}

func pickInterface(ifaces psnet.InterfaceStatList) (string, error) {
	for _, iface := range ifaces {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}
		if len(iface.Addrs) == 0 {
			continue
		}
		return iface.Name, nil
	}
	return "", ErrNoInterface
}
