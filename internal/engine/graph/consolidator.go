// Package graph turns aggregated directed edges into the node/link payload
// rendered by the Sankey view.
package graph

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"NetSankey/internal/engine/addr"
	"NetSankey/internal/engine/aggregator"
	"NetSankey/internal/model"

	log "github.com/sirupsen/logrus"
)

const (
	serverTag = "[S] "
	clientTag = "[C] "
)

// Options controls how edges are rendered.
type Options struct {
	// Servers are addresses tagged with the server role. Node names are only
	// decorated when the set is non-empty.
	Servers []string
	// Focus drops edges that do not touch this address.
	Focus  string
	Mode   model.Mode
	Detail model.Detail
}

type pairKey struct {
	src string
	dst string
}

// Consolidate builds the graph for a set of directed edges.
func Consolidate(edges []model.DirectedEdge, opts Options) model.Graph {
	if opts.Mode == "" {
		opts.Mode = model.ModeMerged
	}
	if opts.Detail == "" {
		opts.Detail = model.DetailProtocol
	}

	b := newBuilder(opts)
	edges = b.selectEdges(edges)
	if len(edges) == 0 {
		return model.EmptyGraph()
	}

	for _, e := range edges {
		b.addNode(e.Source)
		b.addNode(e.Destination)
	}

	switch opts.Mode {
	case model.ModePerProtocol:
		b.directional(edges, false)
	case model.ModeLayered:
		b.directional(mergePairs(edges), true)
	default:
		b.consolidated(mergePairs(edges))
	}

	return b.graph()
}

type builder struct {
	opts    Options
	servers map[string]struct{}
	nodes   map[string]*model.Node
	used    map[string]struct{}
	links   []model.Link
}

func newBuilder(opts Options) *builder {
	servers := make(map[string]struct{}, len(opts.Servers))
	for _, s := range opts.Servers {
		servers[s] = struct{}{}
	}
	return &builder{
		opts:    opts,
		servers: servers,
		nodes:   make(map[string]*model.Node),
		used:    make(map[string]struct{}),
	}
}

// selectEdges drops invalid and out-of-focus edges and returns the rest in a
// stable order.
func (b *builder) selectEdges(edges []model.DirectedEdge) []model.DirectedEdge {
	out := make([]model.DirectedEdge, 0, len(edges))
	for _, e := range edges {
		if model.IsPlaceholder(e.Source) || model.IsPlaceholder(e.Destination) {
			continue
		}
		if f := b.opts.Focus; f != "" && e.Source != f && e.Destination != f {
			continue
		}
		out = append(out, e)
	}
	aggregator.SortEdges(out)
	return out
}

func (b *builder) addNode(address string) {
	if _, ok := b.nodes[address]; ok {
		return
	}
	n := &model.Node{
		Name:    address,
		Address: address,
		Private: addr.IsPrivate(address),
	}
	if len(b.servers) > 0 {
		if _, ok := b.servers[address]; ok {
			n.Name = serverTag + address
		} else {
			n.Name = clientTag + address
		}
	}
	if b.opts.Mode == model.ModeLayered {
		depth := 1
		if n.Private {
			depth = 0
		}
		n.Depth = &depth
	}
	b.nodes[address] = n
}

// consolidated merges every reciprocal pair into one link.
func (b *builder) consolidated(edges []model.DirectedEdge) {
	lookup := make(map[pairKey]*model.DirectedEdge, len(edges))
	for i := range edges {
		lookup[pairKey{edges[i].Source, edges[i].Destination}] = &edges[i]
	}

	processed := make(map[pairKey]struct{}, len(edges))
	for _, e := range edges {
		fwd := pairKey{e.Source, e.Destination}
		if _, done := processed[fwd]; done {
			continue
		}
		rk := pairKey{e.Destination, e.Source}
		rev, ok := lookup[rk]
		if !ok || rk == fwd {
			b.addLink(e.Source, e.Destination, e.TotalBytes, summary(e.Protocols), e.Ports)
			processed[fwd] = struct{}{}
			continue
		}

		proto := summary(e.Protocols)
		if !slices.Equal(e.Protocols, rev.Protocols) {
			proto = fmt.Sprintf("%s <-> %s", proto, summary(rev.Protocols))
		}
		b.addLink(e.Source, e.Destination, e.TotalBytes+rev.TotalBytes, proto, unionPorts(e.Ports, rev.Ports))
		processed[fwd] = struct{}{}
		processed[rk] = struct{}{}
	}
}

// directional emits one link per edge. In layered mode links between two
// external hosts are dropped.
func (b *builder) directional(edges []model.DirectedEdge, layered bool) {
	for _, e := range edges {
		if layered && !b.nodes[e.Source].Private && !b.nodes[e.Destination].Private {
			continue
		}
		proto := string(e.Protocol)
		if proto == "" {
			proto = summary(e.Protocols)
		}
		b.addLink(e.Source, e.Destination, e.TotalBytes, proto, e.Ports)
	}
}

func (b *builder) addLink(src, dst string, value uint64, proto string, ports []uint16) {
	sn, ok := b.nodes[src]
	dn, ok2 := b.nodes[dst]
	if !ok || !ok2 {
		log.WithFields(log.Fields{"source": src, "target": dst}).Debug("Dropping link with unknown endpoint")
		return
	}

	l := model.Link{Source: sn.Name, Target: dn.Name, Value: value}
	if b.opts.Detail == model.DetailPorts {
		l.Ports = append([]uint16{}, ports...)
	} else {
		l.Protocol = proto
	}
	b.links = append(b.links, l)
	b.used[src] = struct{}{}
	b.used[dst] = struct{}{}
}

func (b *builder) graph() model.Graph {
	g := model.EmptyGraph()

	addrs := make([]string, 0, len(b.used))
	for a := range b.used {
		addrs = append(addrs, a)
	}
	addr.Sort(addrs)
	for _, a := range addrs {
		g.Nodes = append(g.Nodes, *b.nodes[a])
	}
	if b.links != nil {
		g.Links = b.links
	}
	return g
}

// mergePairs folds edges sharing (source, destination) into one, so callers
// may pass protocol-keyed edges to the pair-based modes.
func mergePairs(edges []model.DirectedEdge) []model.DirectedEdge {
	out := make([]model.DirectedEdge, 0, len(edges))
	index := make(map[pairKey]int, len(edges))
	for _, e := range edges {
		k := pairKey{e.Source, e.Destination}
		protos := e.Protocols
		if e.Protocol != "" {
			protos = append(append([]model.Protocol{}, protos...), e.Protocol)
		}
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, model.DirectedEdge{
				Source:      e.Source,
				Destination: e.Destination,
				TotalBytes:  e.TotalBytes,
				Protocols:   protos,
				Ports:       e.Ports,
			})
			continue
		}
		out[i].TotalBytes += e.TotalBytes
		out[i].Protocols = append(append([]model.Protocol{}, out[i].Protocols...), protos...)
		out[i].Ports = append(append([]uint16{}, out[i].Ports...), e.Ports...)
	}
	return aggregator.Normalize(out)
}

func summary(protos []model.Protocol) string {
	parts := make([]string, len(protos))
	for i, p := range protos {
		parts[i] = string(p)
	}
	return strings.Join(parts, ", ")
}

func unionPorts(a, b []uint16) []uint16 {
	out := append(append([]uint16{}, a...), b...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return slices.Compact(out)
}
