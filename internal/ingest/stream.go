// Package ingest moves flow records published by probes into a store.
package ingest

import (
	"fmt"

	"NetSankey/internal/config"
	"NetSankey/internal/metrics"
	"NetSankey/internal/model"
	"NetSankey/internal/probe"
	"NetSankey/internal/probe/persistent"

	log "github.com/sirupsen/logrus"
)

// Source delivers records to a handler until it is closed.
type Source interface {
	Start(handler probe.RecordHandler) error
	Close()
}

// StreamIngester consumes records from a source and writes them to a store
// through a persistent worker.
type StreamIngester struct {
	source Source
	worker *persistent.Worker
}

// NewStreamIngester creates an ingester. The worker starts immediately; no
// record is consumed before Start.
func NewStreamIngester(source Source, writer model.RecordWriter, cfg config.IngestConfig, m *metrics.Metrics) *StreamIngester {
	return &StreamIngester{
		source: source,
		worker: persistent.NewWorker(writer, persistent.OptionsFrom(cfg), m),
	}
}

// NewNATSIngester subscribes to the probe subject of cfg.
func NewNATSIngester(cfg *config.Config, writer model.RecordWriter, m *metrics.Metrics) (*StreamIngester, error) {
	sub, err := probe.NewSubscriber(cfg.Probe)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewStreamIngester(sub, writer, cfg.Ingest, m), nil
}

// Start begins consuming records.
func (si *StreamIngester) Start() error {
	log.Info("StreamIngester starting...")
	return si.source.Start(func(rec model.FlowRecord) {
		si.worker.Enqueue(rec)
	})
}

// Stop closes the source first, then drains the queue into the store.
func (si *StreamIngester) Stop() {
	log.Info("StreamIngester stopping...")
	si.source.Close()
	si.worker.Stop()
	log.Info("StreamIngester stopped.")
}
