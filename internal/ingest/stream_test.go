package ingest

import (
	"context"
	"testing"

	"NetSankey/internal/config"
	"NetSankey/internal/model"
	"NetSankey/internal/probe"
	"NetSankey/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	records []model.FlowRecord
	closed  bool
}

func (s *fakeSource) Start(handler probe.RecordHandler) error {
	for _, rec := range s.records {
		handler(rec)
	}
	return nil
}

func (s *fakeSource) Close() { s.closed = true }

func TestStreamIngester(t *testing.T) {
	src := &fakeSource{records: []model.FlowRecord{
		{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Protocol: model.ProtocolHTTP, Size: 100},
		{SrcIP: "10.0.0.2", DstIP: "10.0.0.1", Protocol: model.ProtocolHTTP, Size: 50},
	}}
	st := memory.New()
	cfg := config.Default().Ingest

	si := NewStreamIngester(src, st, cfg, nil)
	require.NoError(t, si.Start())
	si.Stop()

	assert.True(t, src.closed)
	assert.Equal(t, 2, st.Len())

	hosts, err := st.Hosts(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2"}, hosts)
}
