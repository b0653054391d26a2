package codec

import (
	"testing"
	"time"

	"NetSankey/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestRoundTrip(t *testing.T) {
	rec := model.FlowRecord{
		Timestamp: time.Date(2024, 5, 1, 10, 30, 0, 123456789, time.UTC),
		SrcIP:     "10.0.0.1",
		DstIP:     "2001:4860:4860::8888",
		Protocol:  model.ProtocolHTTPS,
		Size:      1514,
		DstPort:   model.Uint16Ptr(443),
	}

	got, err := Unmarshal(Marshal(nil, rec))
	require.NoError(t, err)
	assert.True(t, rec.Timestamp.Equal(got.Timestamp))
	got.Timestamp = rec.Timestamp
	assert.Equal(t, rec, got)

	// Port 0 is a real port and must survive.
	rec.DstPort = model.Uint16Ptr(0)
	got, err = Unmarshal(Marshal(nil, rec))
	require.NoError(t, err)
	require.NotNil(t, got.DstPort)
	assert.Equal(t, uint16(0), *got.DstPort)

	rec.DstPort = nil
	got, err = Unmarshal(Marshal(nil, rec))
	require.NoError(t, err)
	assert.Nil(t, got.DstPort)
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	b := protowire.AppendTag(nil, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future")
	b = Marshal(b, model.FlowRecord{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Size: 60})

	got, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", got.DstIP)
	assert.Equal(t, uint64(60), got.Size)
}

func TestUnmarshal_Truncated(t *testing.T) {
	b := Marshal(nil, model.FlowRecord{SrcIP: "10.0.0.1", DstIP: "10.0.0.2"})
	_, err := Unmarshal(b[:len(b)-3])
	assert.Error(t, err)
}
