// Package aggregator groups flow records into directed edges.
package aggregator

import (
	"sort"

	"NetSankey/internal/model"
)

type edgeKey struct {
	src   string
	dst   string
	proto model.Protocol
}

type edgeAcc struct {
	bytes     uint64
	protocols map[model.Protocol]struct{}
	ports     map[uint16]struct{}
}

// Accumulator folds flow records into directed edges. It is not safe for
// concurrent use; each query owns its own accumulator.
type Accumulator struct {
	filter model.Filter
	key    model.GroupKey
	edges  map[edgeKey]*edgeAcc
}

// NewAccumulator creates an accumulator for the given filter and group key.
func NewAccumulator(filter model.Filter, key model.GroupKey) *Accumulator {
	return &Accumulator{
		filter: filter,
		key:    key,
		edges:  make(map[edgeKey]*edgeAcc),
	}
}

// Add folds one record into its edge. It reports false when the record was
// rejected by the filter.
func (a *Accumulator) Add(rec model.FlowRecord) bool {
	if !a.filter.Match(rec) {
		return false
	}

	k := edgeKey{src: rec.SrcIP, dst: rec.DstIP}
	if a.key == model.KeyPairProtocol {
		k.proto = rec.Protocol
	}

	acc, ok := a.edges[k]
	if !ok {
		acc = &edgeAcc{
			protocols: make(map[model.Protocol]struct{}),
			ports:     make(map[uint16]struct{}),
		}
		a.edges[k] = acc
	}
	acc.bytes += rec.Size
	if rec.Protocol != "" {
		acc.protocols[rec.Protocol] = struct{}{}
	}
	if rec.DstPort != nil {
		acc.ports[*rec.DstPort] = struct{}{}
	}
	return true
}

// Edges returns the collected edges sorted by source, destination and
// protocol.
func (a *Accumulator) Edges() []model.DirectedEdge {
	out := make([]model.DirectedEdge, 0, len(a.edges))
	for k, acc := range a.edges {
		e := model.DirectedEdge{
			Source:      k.src,
			Destination: k.dst,
			Protocol:    k.proto,
			TotalBytes:  acc.bytes,
			Protocols:   make([]model.Protocol, 0, len(acc.protocols)),
			Ports:       make([]uint16, 0, len(acc.ports)),
		}
		for p := range acc.protocols {
			e.Protocols = append(e.Protocols, p)
		}
		for p := range acc.ports {
			e.Ports = append(e.Ports, p)
		}
		out = append(out, e)
	}
	return Normalize(out)
}

// Aggregate groups a record snapshot into directed edges. The result does not
// depend on the order of records.
func Aggregate(records []model.FlowRecord, filter model.Filter, key model.GroupKey) []model.DirectedEdge {
	acc := NewAccumulator(filter, key)
	for _, rec := range records {
		acc.Add(rec)
	}
	return acc.Edges()
}

// Normalize sorts the protocol and port sets of every edge, removes
// duplicates, drops edges with an invalid endpoint and sorts the edges. Edges
// computed by a store are passed through it so they compare equal to edges
// computed in-process. The input slice is left untouched.
func Normalize(edges []model.DirectedEdge) []model.DirectedEdge {
	out := make([]model.DirectedEdge, 0, len(edges))
	for _, e := range edges {
		if model.IsPlaceholder(e.Source) || model.IsPlaceholder(e.Destination) {
			continue
		}
		e.Protocols = uniqueProtocols(e.Protocols)
		e.Ports = uniquePorts(e.Ports)
		out = append(out, e)
	}
	SortEdges(out)
	return out
}

// SortEdges sorts edges by source, destination and protocol.
func SortEdges(edges []model.DirectedEdge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Destination != b.Destination {
			return a.Destination < b.Destination
		}
		return a.Protocol < b.Protocol
	})
}

func uniqueProtocols(in []model.Protocol) []model.Protocol {
	out := make([]model.Protocol, 0, len(in))
	seen := make(map[model.Protocol]struct{}, len(in))
	for _, p := range in {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func uniquePorts(in []uint16) []uint16 {
	out := make([]uint16, 0, len(in))
	seen := make(map[uint16]struct{}, len(in))
	for _, p := range in {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
