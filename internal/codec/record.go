// Package codec encodes flow records in the protobuf wire format. The layout
// is equivalent to:
//
//	message FlowRecord {
//	  sfixed64 timestamp_unix_nano = 1;
//	  string   src_ip              = 2;
//	  string   dst_ip              = 3;
//	  string   protocol            = 4;
//	  uint64   size                = 5;
//	  optional uint32 dst_port     = 6;
//	}
package codec

import (
	"fmt"
	"math"
	"time"

	"NetSankey/internal/model"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldTimestamp protowire.Number = 1
	fieldSrcIP     protowire.Number = 2
	fieldDstIP     protowire.Number = 3
	fieldProtocol  protowire.Number = 4
	fieldSize      protowire.Number = 5
	fieldDstPort   protowire.Number = 6
)

// Marshal appends the wire encoding of rec to b.
func Marshal(b []byte, rec model.FlowRecord) []byte {
	if !rec.Timestamp.IsZero() {
		b = protowire.AppendTag(b, fieldTimestamp, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, uint64(rec.Timestamp.UnixNano()))
	}
	b = appendString(b, fieldSrcIP, rec.SrcIP)
	b = appendString(b, fieldDstIP, rec.DstIP)
	b = appendString(b, fieldProtocol, string(rec.Protocol))
	if rec.Size != 0 {
		b = protowire.AppendTag(b, fieldSize, protowire.VarintType)
		b = protowire.AppendVarint(b, rec.Size)
	}
	if rec.DstPort != nil {
		b = protowire.AppendTag(b, fieldDstPort, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*rec.DstPort))
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// Unmarshal decodes a record. Unknown fields are skipped.
func Unmarshal(b []byte) (model.FlowRecord, error) {
	var rec model.FlowRecord
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return model.FlowRecord{}, fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldTimestamp && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return model.FlowRecord{}, fmt.Errorf("invalid timestamp: %w", protowire.ParseError(n))
			}
			rec.Timestamp = time.Unix(0, int64(v)).UTC()
			b = b[n:]
		case (num == fieldSrcIP || num == fieldDstIP || num == fieldProtocol) && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return model.FlowRecord{}, fmt.Errorf("invalid string field %d: %w", num, protowire.ParseError(n))
			}
			switch num {
			case fieldSrcIP:
				rec.SrcIP = v
			case fieldDstIP:
				rec.DstIP = v
			default:
				rec.Protocol = model.Protocol(v)
			}
			b = b[n:]
		case num == fieldSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return model.FlowRecord{}, fmt.Errorf("invalid size: %w", protowire.ParseError(n))
			}
			rec.Size = v
			b = b[n:]
		case num == fieldDstPort && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return model.FlowRecord{}, fmt.Errorf("invalid dst port: %w", protowire.ParseError(n))
			}
			if v > math.MaxUint16 {
				return model.FlowRecord{}, fmt.Errorf("dst port %d out of range", v)
			}
			rec.DstPort = model.Uint16Ptr(uint16(v))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return model.FlowRecord{}, fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return rec, nil
}
