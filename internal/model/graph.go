package model

import (
	"errors"
	"fmt"
)

// GroupKey selects how flow records are grouped into directed edges.
type GroupKey int

const (
	// KeyPair groups by (source, destination) and collects the protocol and
	// port sets seen on that direction.
	KeyPair GroupKey = iota
	// KeyPairProtocol groups by (source, destination, protocol).
	KeyPairProtocol
)

func (k GroupKey) String() string {
	switch k {
	case KeyPair:
		return "pair"
	case KeyPairProtocol:
		return "pair_protocol"
	default:
		return fmt.Sprintf("GroupKey(%d)", int(k))
	}
}

// DirectedEdge is the aggregate of all records sharing a group key.
type DirectedEdge struct {
	Source      string
	Destination string
	// Protocol is only set when the edge was grouped with KeyPairProtocol.
	Protocol   Protocol
	TotalBytes uint64
	// Protocols and Ports are sorted and free of duplicates.
	Protocols []Protocol
	Ports     []uint16
}

// Mode selects how aggregated edges are rendered into a graph.
type Mode string

const (
	// ModeMerged merges all protocols of a direction into one edge and
	// consolidates reciprocal edges into one bidirectional link.
	ModeMerged Mode = "merged"
	// ModePerProtocol emits one directional link per protocol.
	ModePerProtocol Mode = "protocol"
	// ModeLayered assigns internal/external depths, drops external-to-external
	// links and keeps links directional.
	ModeLayered Mode = "layered"
)

// Detail selects what a link reports besides its byte count.
type Detail string

const (
	DetailProtocol Detail = "protocol"
	DetailPorts    Detail = "ports"
)

var (
	ErrInvalidMode   = errors.New("invalid graph mode")
	ErrInvalidDetail = errors.New("invalid link detail")
)

// ParseMode parses a mode name. The empty string selects ModeMerged.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeMerged, nil
	case ModeMerged, ModePerProtocol, ModeLayered:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// GroupKey returns the aggregation key a mode requires.
func (m Mode) GroupKey() GroupKey {
	if m == ModePerProtocol {
		return KeyPairProtocol
	}
	return KeyPair
}

// ParseDetail parses a detail name. The empty string selects DetailProtocol.
func ParseDetail(s string) (Detail, error) {
	switch Detail(s) {
	case "":
		return DetailProtocol, nil
	case DetailProtocol, DetailPorts:
		return Detail(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDetail, s)
	}
}

// Node is one host in a rendered graph.
type Node struct {
	Name string `json:"name"`
	// Depth is only reported in layered mode.
	Depth   *int   `json:"depth,omitempty"`
	Address string `json:"-"`
	Private bool   `json:"-"`
}

// Link is one edge in a rendered graph. Source and Target refer to node names.
type Link struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Value    uint64   `json:"value"`
	Protocol string   `json:"protocol,omitempty"`
	Ports    []uint16 `json:"ports,omitempty"`
}

// Graph is the payload handed to the presentation layer.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// EmptyGraph returns a graph that serializes as {"nodes": [], "links": []}.
func EmptyGraph() Graph {
	return Graph{Nodes: []Node{}, Links: []Link{}}
}
