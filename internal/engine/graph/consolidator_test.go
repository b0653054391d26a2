package graph

import (
	"encoding/json"
	"math/rand"
	"testing"

	"NetSankey/internal/engine/aggregator"
	"NetSankey/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edge(src, dst string, bytes uint64, protos ...model.Protocol) model.DirectedEdge {
	return model.DirectedEdge{Source: src, Destination: dst, TotalBytes: bytes, Protocols: protos}
}

func TestConsolidate_Reciprocal(t *testing.T) {
	g := Consolidate([]model.DirectedEdge{
		edge("10.0.0.1", "10.0.0.2", 100, model.ProtocolTCP),
		edge("10.0.0.2", "10.0.0.1", 50, model.ProtocolTCP),
	}, Options{})

	require.Len(t, g.Links, 1)
	assert.Equal(t, model.Link{Source: "10.0.0.1", Target: "10.0.0.2", Value: 150, Protocol: "TCP"}, g.Links[0])
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "10.0.0.1", g.Nodes[0].Name)
	assert.Nil(t, g.Nodes[0].Depth)
}

func TestConsolidate_OneWay(t *testing.T) {
	g := Consolidate([]model.DirectedEdge{edge("A", "B", 100, model.ProtocolTCP)}, Options{})

	require.Len(t, g.Links, 1)
	assert.Equal(t, model.Link{Source: "A", Target: "B", Value: 100, Protocol: "TCP"}, g.Links[0])
}

func TestConsolidate_DifferentProtocols(t *testing.T) {
	g := Consolidate([]model.DirectedEdge{
		edge("10.0.0.1", "8.8.8.8", 100, model.ProtocolDNS, model.ProtocolHTTPS),
		edge("8.8.8.8", "10.0.0.1", 40, model.ProtocolDNS),
	}, Options{})

	require.Len(t, g.Links, 1)
	assert.Equal(t, "DNS, HTTPS <-> DNS", g.Links[0].Protocol)
	assert.Equal(t, uint64(140), g.Links[0].Value)
}

func TestConsolidate_ProtocolSetsCompareAsSets(t *testing.T) {
	g := Consolidate([]model.DirectedEdge{
		edge("A", "B", 1, model.ProtocolHTTP, model.ProtocolDNS),
		edge("B", "A", 1, model.ProtocolDNS, model.ProtocolHTTP),
	}, Options{})

	require.Len(t, g.Links, 1)
	assert.Equal(t, "DNS, HTTP", g.Links[0].Protocol)
}

func TestConsolidate_ServerDecoration(t *testing.T) {
	edges := []model.DirectedEdge{edge("10.0.0.5", "10.0.0.1", 10, model.ProtocolSSH)}

	g := Consolidate(edges, Options{Servers: []string{"10.0.0.1"}})
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, "[C] 10.0.0.5", g.Nodes[1].Name)
	assert.Equal(t, "[S] 10.0.0.1", g.Nodes[0].Name)
	assert.Equal(t, "10.0.0.1", g.Nodes[0].Address)
	assert.Equal(t, "[C] 10.0.0.5", g.Links[0].Source)
	assert.Equal(t, "[S] 10.0.0.1", g.Links[0].Target)

	plain := Consolidate(edges, Options{})
	assert.Equal(t, "10.0.0.1", plain.Nodes[0].Name)
}

func TestConsolidate_Empty(t *testing.T) {
	g := Consolidate(nil, Options{})
	out, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes": [], "links": []}`, string(out))

	g = Consolidate([]model.DirectedEdge{edge("0.0.0.0", "10.0.0.1", 5)}, Options{})
	assert.Empty(t, g.Nodes)
	assert.Empty(t, g.Links)
}

func TestConsolidate_Focus(t *testing.T) {
	g := Consolidate([]model.DirectedEdge{
		edge("A", "B", 1, model.ProtocolTCP),
		edge("A", "C", 30, model.ProtocolTCP),
		edge("C", "D", 20, model.ProtocolTCP),
	}, Options{Focus: "C"})

	require.Len(t, g.Links, 2)
	assert.Equal(t, "A", g.Links[0].Source)
	assert.Equal(t, "C", g.Links[0].Target)
	assert.Equal(t, "C", g.Links[1].Source)
	assert.Equal(t, "D", g.Links[1].Target)
	assert.Len(t, g.Nodes, 3)
}

func TestConsolidate_PerProtocol(t *testing.T) {
	edges := []model.DirectedEdge{
		{Source: "A", Destination: "B", Protocol: model.ProtocolDNS, TotalBytes: 10, Protocols: []model.Protocol{model.ProtocolDNS}},
		{Source: "A", Destination: "B", Protocol: model.ProtocolHTTPS, TotalBytes: 20, Protocols: []model.Protocol{model.ProtocolHTTPS}},
		{Source: "B", Destination: "A", Protocol: model.ProtocolHTTPS, TotalBytes: 5, Protocols: []model.Protocol{model.ProtocolHTTPS}},
	}
	g := Consolidate(edges, Options{Mode: model.ModePerProtocol})

	require.Len(t, g.Links, 3)
	assert.Equal(t, model.Link{Source: "A", Target: "B", Value: 10, Protocol: "DNS"}, g.Links[0])
	assert.Equal(t, model.Link{Source: "A", Target: "B", Value: 20, Protocol: "HTTPS"}, g.Links[1])
	assert.Equal(t, model.Link{Source: "B", Target: "A", Value: 5, Protocol: "HTTPS"}, g.Links[2])

	// The same protocol-keyed edges collapse back into one link in merged mode.
	merged := Consolidate(edges, Options{})
	require.Len(t, merged.Links, 1)
	assert.Equal(t, uint64(35), merged.Links[0].Value)
	assert.Equal(t, "DNS, HTTPS <-> HTTPS", merged.Links[0].Protocol)
}

func TestConsolidate_Layered(t *testing.T) {
	g := Consolidate([]model.DirectedEdge{
		edge("10.0.0.1", "8.8.8.8", 100, model.ProtocolDNS),
		edge("8.8.8.8", "10.0.0.1", 50, model.ProtocolDNS),
		edge("1.1.1.1", "8.8.8.8", 70, model.ProtocolTCP),
		edge("10.0.0.1", "10.0.0.2", 10, model.ProtocolSMB),
	}, Options{Mode: model.ModeLayered})

	require.Len(t, g.Links, 3)
	for _, l := range g.Links {
		assert.NotEqual(t, "1.1.1.1", l.Source)
	}
	// Reciprocal edges stay directional.
	assert.Equal(t, uint64(100), g.Links[1].Value)
	assert.Equal(t, uint64(50), g.Links[2].Value)

	depths := map[string]int{}
	for _, n := range g.Nodes {
		require.NotNil(t, n.Depth)
		depths[n.Name] = *n.Depth
	}
	assert.Equal(t, map[string]int{"10.0.0.1": 0, "10.0.0.2": 0, "8.8.8.8": 1}, depths)

	out, err := json.Marshal(g.Nodes[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "10.0.0.1", "depth": 0}`, string(out))
}

func TestConsolidate_PortsDetail(t *testing.T) {
	g := Consolidate([]model.DirectedEdge{
		{Source: "A", Destination: "B", TotalBytes: 1, Protocols: []model.Protocol{"TCP"}, Ports: []uint16{443, 80}},
		{Source: "B", Destination: "A", TotalBytes: 1, Protocols: []model.Protocol{"TCP"}, Ports: []uint16{51000, 80}},
	}, Options{Detail: model.DetailPorts})

	require.Len(t, g.Links, 1)
	assert.Equal(t, []uint16{80, 443, 51000}, g.Links[0].Ports)
	assert.Empty(t, g.Links[0].Protocol)
}

func randomRecords(r *rand.Rand, n int) []model.FlowRecord {
	hosts := []string{"10.0.0.1", "10.0.0.2", "192.168.1.7", "8.8.8.8", "1.1.1.1", "0.0.0.0", "fe80::1"}
	protos := []model.Protocol{model.ProtocolTCP, model.ProtocolHTTPS, model.ProtocolDNS, model.ProtocolOther}
	out := make([]model.FlowRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.FlowRecord{
			SrcIP:    hosts[r.Intn(len(hosts))],
			DstIP:    hosts[r.Intn(len(hosts))],
			Protocol: protos[r.Intn(len(protos))],
			Size:     uint64(r.Intn(1500) + 1),
			DstPort:  model.Uint16Ptr(uint16(r.Intn(4) + 1)),
		})
	}
	return out
}

func TestConsolidate_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	records := randomRecords(r, 2000)
	edges := aggregator.Aggregate(records, model.Filter{}, model.KeyPair)

	byPair := map[[2]string]uint64{}
	for _, e := range edges {
		byPair[[2]string{e.Source, e.Destination}] = e.TotalBytes
	}

	g := Consolidate(edges, Options{})

	t.Run("no duplicate links", func(t *testing.T) {
		seen := map[[2]string]bool{}
		for _, l := range g.Links {
			a, b := l.Source, l.Target
			if b < a {
				a, b = b, a
			}
			assert.False(t, seen[[2]string{a, b}], "duplicate link %s-%s", a, b)
			seen[[2]string{a, b}] = true
		}
	})

	t.Run("symmetry", func(t *testing.T) {
		for _, l := range g.Links {
			fwd, okF := byPair[[2]string{l.Source, l.Target}]
			rev, okR := byPair[[2]string{l.Target, l.Source}]
			require.True(t, okF)
			if okR && l.Source != l.Target {
				assert.Equal(t, fwd+rev, l.Value)
			} else {
				assert.Equal(t, fwd, l.Value)
			}
		}
	})

	t.Run("closure", func(t *testing.T) {
		names := map[string]int{}
		for _, n := range g.Nodes {
			names[n.Name]++
		}
		for name, count := range names {
			assert.Equal(t, 1, count, name)
		}
		linked := map[string]bool{}
		for _, l := range g.Links {
			linked[l.Source] = true
			linked[l.Target] = true
			assert.Contains(t, names, l.Source)
			assert.Contains(t, names, l.Target)
		}
		assert.Len(t, names, len(linked))
		assert.NotContains(t, names, "0.0.0.0")
	})

	t.Run("idempotent", func(t *testing.T) {
		first, err := json.Marshal(g)
		require.NoError(t, err)
		again, err := json.Marshal(Consolidate(aggregator.Aggregate(records, model.Filter{}, model.KeyPair), Options{}))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	})

	t.Run("layered depth filter", func(t *testing.T) {
		layered := Consolidate(edges, Options{Mode: model.ModeLayered})
		depth := map[string]int{}
		for _, n := range layered.Nodes {
			depth[n.Name] = *n.Depth
		}
		for _, l := range layered.Links {
			assert.False(t, depth[l.Source] == 1 && depth[l.Target] == 1, "%s -> %s", l.Source, l.Target)
		}
	})
}
