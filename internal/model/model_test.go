package model

import (
	"errors"
	"testing"
)

func TestFilterMatch(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		rec    FlowRecord
		want   bool
	}{
		{"plain", Filter{}, FlowRecord{SrcIP: "10.0.0.1", DstIP: "8.8.8.8"}, true},
		{"placeholder source", Filter{}, FlowRecord{SrcIP: "0.0.0.0", DstIP: "8.8.8.8"}, false},
		{"placeholder destination", Filter{}, FlowRecord{SrcIP: "10.0.0.1", DstIP: "0.0.0.0"}, false},
		{"ipv6 unspecified", Filter{}, FlowRecord{SrcIP: "::", DstIP: "fe80::1"}, false},
		{"empty", Filter{}, FlowRecord{SrcIP: "", DstIP: "8.8.8.8"}, false},
		{"focus source", Filter{Focus: "10.0.0.1"}, FlowRecord{SrcIP: "10.0.0.1", DstIP: "8.8.8.8"}, true},
		{"focus destination", Filter{Focus: "8.8.8.8"}, FlowRecord{SrcIP: "10.0.0.1", DstIP: "8.8.8.8"}, true},
		{"focus miss", Filter{Focus: "1.1.1.1"}, FlowRecord{SrcIP: "10.0.0.1", DstIP: "8.8.8.8"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(tt.rec); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	if err != nil || m != ModeMerged {
		t.Fatalf("ParseMode(\"\") = %q, %v", m, err)
	}
	if m, _ := ParseMode("layered"); m.GroupKey() != KeyPair {
		t.Errorf("layered mode should group by pair")
	}
	if m, _ := ParseMode("protocol"); m.GroupKey() != KeyPairProtocol {
		t.Errorf("protocol mode should group by pair and protocol")
	}
	if _, err := ParseMode("sideways"); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
	if _, err := ParseDetail("bits"); !errors.Is(err, ErrInvalidDetail) {
		t.Errorf("expected ErrInvalidDetail, got %v", err)
	}
}
