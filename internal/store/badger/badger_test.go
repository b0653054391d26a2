package badger

import (
	"context"
	"testing"
	"time"

	"NetSankey/internal/config"
	"NetSankey/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertScanOrdered(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Insert(ctx, []model.FlowRecord{
		{Timestamp: base.Add(2 * time.Second), SrcIP: "10.0.0.2", DstIP: "10.0.0.1", Protocol: model.ProtocolTCP, Size: 50, DstPort: model.Uint16Ptr(0)},
		{Timestamp: base, SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Protocol: model.ProtocolHTTP, Size: 100, DstPort: model.Uint16Ptr(80)},
		{Timestamp: base.Add(time.Second), SrcIP: "0.0.0.0", DstIP: "10.0.0.2", Protocol: model.ProtocolUDP, Size: 10},
	}))

	var got []model.FlowRecord
	err := s.Scan(ctx, model.Filter{}, func(rec model.FlowRecord) error {
		got = append(got, rec)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "10.0.0.1", got[0].SrcIP)
	assert.Equal(t, uint16(80), *got[0].DstPort)
	assert.Equal(t, uint16(0), *got[1].DstPort)
	assert.True(t, got[0].Timestamp.Equal(base))
}

func TestScanFocus(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, []model.FlowRecord{
		{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Protocol: model.ProtocolTCP, Size: 1},
		{SrcIP: "10.0.0.3", DstIP: "10.0.0.4", Protocol: model.ProtocolTCP, Size: 1},
		{SrcIP: "10.0.0.4", DstIP: "10.0.0.1", Protocol: model.ProtocolTCP, Size: 1},
	}))

	n := 0
	err := s.Scan(ctx, model.Filter{Focus: "10.0.0.1"}, func(model.FlowRecord) error {
		n++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHostsSkipsPlaceholders(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, []model.FlowRecord{
		{SrcIP: "10.0.0.1", DstIP: "8.8.8.8", Protocol: model.ProtocolDNS, Size: 60},
		{SrcIP: "0.0.0.0", DstIP: "255.255.255.255", Protocol: model.ProtocolUDP, Size: 300},
		{SrcIP: "8.8.8.8", DstIP: "10.0.0.1", Protocol: model.ProtocolDNS, Size: 90},
	}))

	hosts, err := s.Hosts(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"10.0.0.1", "8.8.8.8"}, hosts)
}

func TestPingAfterClose(t *testing.T) {
	s, err := Open(config.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	assert.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}
