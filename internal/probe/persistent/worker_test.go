package persistent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"NetSankey/internal/metrics"
	"NetSankey/internal/model"
	"NetSankey/internal/testutil"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu      sync.Mutex
	batches [][]model.FlowRecord
	fail    int
	calls   int
	block   chan struct{}
}

func (w *recordingWriter) Insert(ctx context.Context, records []model.FlowRecord) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.calls <= w.fail {
		return errors.New("store unavailable")
	}
	w.batches = append(w.batches, append([]model.FlowRecord(nil), records...))
	return nil
}

func (w *recordingWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func rec(i int) model.FlowRecord {
	return model.FlowRecord{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Protocol: model.ProtocolTCP, Size: uint64(i)}
}

func TestWorkerBatchesAndDrainsOnStop(t *testing.T) {
	w := &recordingWriter{}
	m := metrics.New(nil)
	worker := NewWorker(w, Options{QueueSize: 100, NumWorkers: 1, BatchSize: 10, FlushInterval: time.Hour}, m)

	for i := 0; i < 25; i++ {
		require.True(t, worker.Enqueue(rec(i)))
	}
	worker.Stop()

	assert.Equal(t, 25, w.total())
	require.Len(t, w.batches, 3)
	assert.Len(t, w.batches[0], 10)
	assert.Len(t, w.batches[2], 5)
	assert.Equal(t, 25.0, promtest.ToFloat64(m.RecordsWritten))
}

func TestWorkerFlushesOnInterval(t *testing.T) {
	w := &recordingWriter{}
	worker := NewWorker(w, Options{QueueSize: 10, BatchSize: 100, FlushInterval: 10 * time.Millisecond}, nil)
	defer worker.Stop()

	worker.Enqueue(rec(1))
	assert.Eventually(t, func() bool { return w.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWorkerDropsWhenFull(t *testing.T) {
	w := &recordingWriter{block: make(chan struct{})}
	m := metrics.New(nil)
	worker := NewWorker(w, Options{QueueSize: 2, BatchSize: 1, FlushInterval: time.Hour}, m)

	// The first record is taken by the blocked writer, two more fill the queue.
	accepted := 0
	for i := 0; i < 10; i++ {
		if worker.Enqueue(rec(i)) {
			accepted++
		}
		time.Sleep(time.Millisecond)
	}
	assert.Less(t, accepted, 10)
	assert.Equal(t, float64(10-accepted), promtest.ToFloat64(m.RecordsDropped.WithLabelValues(metrics.ReasonQueueFull)))

	close(w.block)
	worker.Stop()
	assert.Equal(t, accepted, w.total())
}

func TestWorkerRetriesFailedWrites(t *testing.T) {
	w := &recordingWriter{fail: 2}
	m := metrics.New(nil)
	worker := NewWorker(w, Options{BatchSize: 1, MaxRetries: 3, RetryInterval: time.Millisecond}, m)
	worker.Enqueue(rec(1))
	worker.Stop()

	assert.Equal(t, 1, w.total())
	assert.Equal(t, 2.0, promtest.ToFloat64(m.WriteErrors))
}

func TestWorkerDropsAfterRetries(t *testing.T) {
	w := &recordingWriter{fail: 100}
	m := metrics.New(nil)
	worker := NewWorker(w, Options{BatchSize: 2, MaxRetries: 1, RetryInterval: time.Millisecond}, m)
	worker.Enqueue(rec(1))
	worker.Enqueue(rec(2))
	worker.Stop()

	assert.Equal(t, 0, w.total())
	assert.Equal(t, 2.0, promtest.ToFloat64(m.RecordsDropped.WithLabelValues(metrics.ReasonWriteFailed)))
}

func TestEnqueueWaitNeverDrops(t *testing.T) {
	w := &recordingWriter{}
	worker := NewWorker(w, Options{QueueSize: 1, BatchSize: 3, FlushInterval: time.Hour}, nil)
	for i := 0; i < 50; i++ {
		require.True(t, worker.EnqueueWait(context.Background(), rec(i)))
	}
	worker.Stop()
	assert.Equal(t, 50, w.total())
	assert.False(t, worker.EnqueueWait(context.Background(), rec(0)))
}

func TestEnqueueAfterStop(t *testing.T) {
	worker := NewWorker(&recordingWriter{}, Options{}, nil)
	worker.Stop()
	worker.Stop()
	assert.False(t, worker.Enqueue(rec(1)))
}

func TestJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.pcap")
	j, err := NewJournal(path, 1600, layers.LinkTypeEthernet)
	require.NoError(t, err)

	frame := testutil.TCPFrame(testutil.Segment{SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 40000, DstPort: 443, Payload: []byte("hello")})
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	require.NoError(t, j.Write(packet))
	require.NoError(t, j.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	data, _, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, frame, data)
}
