// Package testutil builds raw frames for packet-level tests.
package testutil

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb}
)

// Segment describes the frame to build.
type Segment struct {
	SrcIP   string
	DstIP   string
	SrcPort uint16
	DstPort uint16
	Payload []byte
}

// TCPFrame returns an Ethernet/IP/TCP frame. IPv6 addresses produce an IPv6
// network layer.
func TCPFrame(s Segment) []byte {
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.SrcPort),
		DstPort: layers.TCPPort(s.DstPort),
		SYN:     true,
		Window:  14600,
	}
	return frame(s, layers.IPProtocolTCP, tcp)
}

// UDPFrame returns an Ethernet/IP/UDP frame.
func UDPFrame(s Segment) []byte {
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(s.SrcPort),
		DstPort: layers.UDPPort(s.DstPort),
	}
	return frame(s, layers.IPProtocolUDP, udp)
}

// ICMPFrame returns an Ethernet/IPv4/ICMP echo request.
func ICMPFrame(s Segment) []byte {
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       1,
		Seq:      1,
	}
	return frame(s, layers.IPProtocolICMPv4, icmp)
}

// ARPFrame returns a frame without any IP layer.
func ARPFrame() []byte {
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: net.ParseIP("10.0.0.1").To4(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    net.ParseIP("10.0.0.2").To4(),
	}
	return serialize(eth, arp)
}

type transport interface {
	gopacket.SerializableLayer
}

func frame(s Segment, proto layers.IPProtocol, l4 transport) []byte {
	src, dst := net.ParseIP(s.SrcIP), net.ParseIP(s.DstIP)
	payload := gopacket.Payload(s.Payload)

	if src.To4() != nil && dst.To4() != nil {
		eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
		ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: proto, SrcIP: src.To4(), DstIP: dst.To4()}
		setChecksumLayer(l4, ip)
		return serialize(eth, ip, l4, payload)
	}

	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv6}
	ip := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: proto, SrcIP: src, DstIP: dst}
	setChecksumLayer(l4, ip)
	return serialize(eth, ip, l4, payload)
}

func setChecksumLayer(l4 transport, ip gopacket.NetworkLayer) {
	switch l := l4.(type) {
	case *layers.TCP:
		_ = l.SetNetworkLayerForChecksum(ip)
	case *layers.UDP:
		_ = l.SetNetworkLayerForChecksum(ip)
	}
}

func serialize(ls ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
