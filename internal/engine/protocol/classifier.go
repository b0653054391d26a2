package protocol

import "NetSankey/internal/model"

// Family is the transport-layer family of a packet.
type Family uint8

const (
	FamilyOther Family = iota
	FamilyTCP
	FamilyUDP
)

var tcpPorts = []struct {
	port  uint16
	label model.Protocol
}{
	{80, model.ProtocolHTTP},
	{443, model.ProtocolHTTPS},
	{22, model.ProtocolSSH},
	{9418, model.ProtocolGIT},
	{445, model.ProtocolSMB},
}

// Classify maps a transport descriptor to a coarse protocol label. A
// well-known port matches when it is either the source or the destination
// port; the first match in the table wins.
func Classify(family Family, srcPort, dstPort uint16) model.Protocol {
	switch family {
	case FamilyTCP:
		for _, p := range tcpPorts {
			if srcPort == p.port || dstPort == p.port {
				return p.label
			}
		}
		return model.ProtocolTCP
	case FamilyUDP:
		if srcPort == 53 || dstPort == 53 {
			return model.ProtocolDNS
		}
		return model.ProtocolUDP
	default:
		return model.ProtocolOther
	}
}
