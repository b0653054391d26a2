package probe

import (
	"context"
	"fmt"

	"NetSankey/internal/codec"
	"NetSankey/internal/config"
	"NetSankey/internal/model"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Publisher publishes flow records to a NATS subject. It implements
// model.RecordWriter so it can sit behind the persistent worker.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.ProbeConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("ns-probe"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	log.Infof("Connected to NATS server at %s", cfg.NATSURL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Insert publishes a batch of records, one message per record.
func (p *Publisher) Insert(ctx context.Context, records []model.FlowRecord) error {
	buf := make([]byte, 0, 64)
	for _, rec := range records {
		buf = codec.Marshal(buf[:0], rec)
		// nats copies the payload into its write buffer.
		if err := p.nc.Publish(p.subject, buf); err != nil {
			return fmt.Errorf("failed to publish record: %w", err)
		}
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Info("NATS connection drained and closed.")
	}
}
