// Package persistent moves flow records from the capture or subscription path
// to a record writer without ever blocking the producer.
package persistent

import (
	"context"
	"sync"
	"time"

	"NetSankey/internal/config"
	"NetSankey/internal/metrics"
	"NetSankey/internal/model"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// Options sizes the queue and the batching of a Worker.
type Options struct {
	QueueSize     int
	NumWorkers    int
	BatchSize     int
	FlushInterval time.Duration
	MaxRetries    uint64
	// RetryInterval is the first backoff interval of a failed write.
	RetryInterval time.Duration
}

// OptionsFrom converts the ingest configuration.
func OptionsFrom(cfg config.IngestConfig) Options {
	return Options{
		QueueSize:     cfg.QueueSize,
		NumWorkers:    cfg.NumWorkers,
		BatchSize:     cfg.BatchSize,
		FlushInterval: config.Duration(cfg.FlushInterval),
		MaxRetries:    cfg.MaxRetries,
	}
}

// Worker manages a pool of goroutines that batch queued records and hand
// them to a writer. A full queue drops records instead of blocking.
type Worker struct {
	writer  model.RecordWriter
	opts    Options
	metrics *metrics.Metrics

	queue chan model.FlowRecord
	wg    sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewWorker creates and starts a new worker pool.
func NewWorker(writer model.RecordWriter, opts Options, m *metrics.Metrics) *Worker {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 10000
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 100 * time.Millisecond
	}
	if m == nil {
		m = metrics.New(nil)
	}

	w := &Worker{
		writer:  writer,
		opts:    opts,
		metrics: m,
		queue:   make(chan model.FlowRecord, opts.QueueSize),
	}

	w.wg.Add(opts.NumWorkers)
	for i := 0; i < opts.NumWorkers; i++ {
		go func() {
			defer w.wg.Done()
			w.run()
		}()
	}

	log.Infof("Persistent worker started with %d goroutines, queue size %d, batch size %d", opts.NumWorkers, opts.QueueSize, opts.BatchSize)
	return w
}

// Enqueue queues a record for writing. It reports false when the record was
// dropped because the queue is full or the worker has stopped.
func (w *Worker) Enqueue(rec model.FlowRecord) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		w.metrics.RecordsDropped.WithLabelValues(metrics.ReasonStopped).Inc()
		return false
	}

	select {
	case w.queue <- rec:
		w.metrics.QueueLength.Set(float64(len(w.queue)))
		return true
	default:
		w.metrics.RecordsDropped.WithLabelValues(metrics.ReasonQueueFull).Inc()
		log.Debug("PersistentWorker: Channel is full, dropping record.")
		return false
	}
}

// EnqueueWait queues a record, waiting for queue space until ctx is done.
// Offline replays use it where dropping records would skew the result.
func (w *Worker) EnqueueWait(ctx context.Context, rec model.FlowRecord) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		w.metrics.RecordsDropped.WithLabelValues(metrics.ReasonStopped).Inc()
		return false
	}

	select {
	case w.queue <- rec:
		w.metrics.QueueLength.Set(float64(len(w.queue)))
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop stops accepting records, writes everything still queued and waits
// for the goroutines to exit.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
	w.metrics.QueueLength.Set(0)
	log.Info("Persistent worker stopped.")
}

func (w *Worker) run() {
	batch := make([]model.FlowRecord, 0, w.opts.BatchSize)
	ticker := time.NewTicker(w.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.write(batch)
		batch = make([]model.FlowRecord, 0, w.opts.BatchSize)
	}

	for {
		select {
		case rec, ok := <-w.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= w.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
		w.metrics.QueueLength.Set(float64(len(w.queue)))
	}
}

func (w *Worker) write(batch []model.FlowRecord) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.opts.RetryInterval
	policy := backoff.WithMaxRetries(b, w.opts.MaxRetries)

	err := backoff.RetryNotify(func() error {
		return w.writer.Insert(context.Background(), batch)
	}, policy, func(err error, d time.Duration) {
		w.metrics.WriteErrors.Inc()
		log.WithError(err).Warnf("PersistentWorker: Batch of %d records failed, retrying in %s", len(batch), d)
	})
	if err != nil {
		w.metrics.WriteErrors.Inc()
		w.metrics.RecordsDropped.WithLabelValues(metrics.ReasonWriteFailed).Add(float64(len(batch)))
		log.WithError(err).Errorf("PersistentWorker: Dropping batch of %d records", len(batch))
		return
	}
	w.metrics.RecordsWritten.Add(float64(len(batch)))
}
