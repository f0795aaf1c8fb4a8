package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/quotamon/ports"
)

// BufferedSink queues metric datums and writes them to a batch-capable
// sink in chunks. It keeps remote sink latency (CloudWatch PutMetricData
// is a network round trip) off the call-recording path.
type BufferedSink struct {
	sink          ports.BatchSink
	buffer        []ports.Datum
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once
	logger        zerolog.Logger
}

// NewBufferedSink creates a buffered sink in front of the given batch sink.
func NewBufferedSink(sink ports.BatchSink, batchSize int, flushInterval time.Duration, logger zerolog.Logger) *BufferedSink {
	if batchSize <= 0 {
		batchSize = 20
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}

	b := &BufferedSink{
		sink:          sink,
		buffer:        make([]ports.Datum, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
		logger:        logger,
	}

	b.wg.Add(1)
	go b.flushLoop()

	return b
}

// Publish queues a datum for delivery. It never blocks on the underlying
// sink and never returns an error; delivery failures are logged by the
// background flush.
func (b *BufferedSink) Publish(ctx context.Context, d ports.Datum) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffer = append(b.buffer, d)

	if len(b.buffer) >= b.batchSize {
		b.flushLocked()
	}
	return nil
}

// Flush forces immediate delivery of queued datums.
func (b *BufferedSink) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
	return nil
}

func (b *BufferedSink) flushLocked() {
	if len(b.buffer) == 0 {
		return
	}

	datums := make([]ports.Datum, len(b.buffer))
	copy(datums, b.buffer)
	b.buffer = b.buffer[:0]

	// Write in background to not block
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := b.sink.PublishBatch(ctx, datums); err != nil {
			b.logger.Warn().Err(err).Int("datums", len(datums)).Msg("metric batch delivery failed")
		}
	}()
}

func (b *BufferedSink) flushLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Flush(context.Background())
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and delivers remaining datums synchronously.
func (b *BufferedSink) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stopCh)
		b.wg.Wait()

		// Final flush with timeout
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		b.mu.Lock()
		defer b.mu.Unlock()

		if len(b.buffer) > 0 {
			err = b.sink.PublishBatch(ctx, b.buffer)
			b.buffer = b.buffer[:0]
		}
	})
	return err
}

// Ensure interface compliance.
var _ ports.MetricSink = (*BufferedSink)(nil)
