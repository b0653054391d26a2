package protocol

import (
	"errors"
	"time"

	"NetSankey/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrNotIP is returned for packets without an IPv4 or IPv6 layer.
var ErrNotIP = errors.New("not an IP packet")

// ParsePacket extracts a flow record from a decoded packet.
func ParsePacket(packet gopacket.Packet) (model.FlowRecord, error) {
	rec := model.FlowRecord{
		Timestamp: time.Now().UTC(), // overwritten by capture metadata when available
		Size:      uint64(len(packet.Data())),
	}

	if meta := packet.Metadata(); meta != nil {
		if !meta.Timestamp.IsZero() {
			rec.Timestamp = meta.Timestamp.UTC()
		}
		// Snaplen truncation and offloaded super-frames leave the wire
		// length above the captured one.
		if uint64(meta.Length) > rec.Size {
			rec.Size = uint64(meta.Length)
		}
	}

	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		rec.SrcIP = ip.SrcIP.String()
		rec.DstIP = ip.DstIP.String()
	case *layers.IPv6:
		rec.SrcIP = ip.SrcIP.String()
		rec.DstIP = ip.DstIP.String()
	default:
		return model.FlowRecord{}, ErrNotIP
	}

	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		rec.Protocol = Classify(FamilyTCP, uint16(tcp.SrcPort), uint16(tcp.DstPort))
		rec.DstPort = model.Uint16Ptr(uint16(tcp.DstPort))
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		rec.Protocol = Classify(FamilyUDP, uint16(udp.SrcPort), uint16(udp.DstPort))
		rec.DstPort = model.Uint16Ptr(uint16(udp.DstPort))
	} else {
		rec.Protocol = Classify(FamilyOther, 0, 0)
	}

	return rec, nil
}
