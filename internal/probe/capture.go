package probe

import (
	"context"
	"errors"
	"fmt"

	"NetSankey/internal/engine/protocol"
	"NetSankey/internal/metrics"
	"NetSankey/internal/model"
	"NetSankey/internal/probe/persistent"

	"github.com/google/gopacket"
	log "github.com/sirupsen/logrus"
)

// Sink accepts parsed records.
type Sink interface {
	Enqueue(rec model.FlowRecord) bool
}

// Waiter enqueues a record, waiting for queue space until ctx is done.
type Waiter interface {
	EnqueueWait(ctx context.Context, rec model.FlowRecord) bool
}

// BlockingSink returns a Sink that waits on w instead of dropping records.
// File replays use it since they have no real-time constraint.
func BlockingSink(ctx context.Context, w Waiter) Sink {
	return blockingSink{ctx: ctx, w: w}
}

type blockingSink struct {
	ctx context.Context
	w   Waiter
}

func (s blockingSink) Enqueue(rec model.FlowRecord) bool {
	return s.w.EnqueueWait(s.ctx, rec)
}

// Capture turns decoded packets into flow records and hands them to a sink.
type Capture struct {
	sink    Sink
	journal *persistent.Journal
	metrics *metrics.Metrics

	captured uint64
}

// NewCapture creates a capture loop. journal may be nil.
func NewCapture(sink Sink, journal *persistent.Journal, m *metrics.Metrics) *Capture {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Capture{sink: sink, journal: journal, metrics: m}
}

// Handle processes one packet. It reports whether a record was produced.
func (c *Capture) Handle(packet gopacket.Packet) bool {
	rec, err := protocol.ParsePacket(packet)
	if err != nil {
		if !errors.Is(err, protocol.ErrNotIP) {
			log.WithError(err).Debug("Error parsing packet")
		}
		c.metrics.PacketsSkipped.Inc()
		return false
	}

	if c.journal != nil {
		if err := c.journal.Write(packet); err != nil {
			log.WithError(err).Warn("Failed to journal packet")
		}
	}

	c.metrics.PacketsCaptured.Inc()
	c.captured++
	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("Logged: %s | %s -> %s%s (%s) [%d bytes]",
			rec.Timestamp.Format("2006-01-02 15:04:05.000000"), rec.SrcIP, rec.DstIP, portSuffix(rec), rec.Protocol, rec.Size)
	}
	if c.captured%1000 == 0 {
		log.Infof("%d packets captured...", c.captured)
	}

	c.sink.Enqueue(rec)
	return true
}

// Run handles packets until the channel is closed or ctx is done.
func (c *Capture) Run(ctx context.Context, packets <-chan gopacket.Packet) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet, ok := <-packets:
			if !ok {
				return nil
			}
			c.Handle(packet)
		}
	}
}

// Captured returns the number of records produced so far.
func (c *Capture) Captured() uint64 {
	return c.captured
}

func portSuffix(rec model.FlowRecord) string {
	if rec.DstPort == nil {
		return ""
	}
	return fmt.Sprintf(":%d", *rec.DstPort)
}
