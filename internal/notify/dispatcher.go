package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/governor/internal/telemetry"
)

// DispatcherConfig controls queueing and batching.
type DispatcherConfig struct {
	// QueueSize bounds the number of notifications waiting to be batched.
	// Publish drops notifications once the queue is full.
	// Default: 1024
	QueueSize int

	// MaxBatchSize is the number of notifications sent to a sink at once.
	// Default: 50
	MaxBatchSize int

	// FlushInterval is how long a partial batch waits before it is sent.
	// Default: 500ms
	FlushInterval time.Duration

	// MaxSendAttempts bounds retries of a failed sink delivery.
	// Default: 3
	MaxSendAttempts uint
}

// Validate checks if the configuration is valid.
func (c *DispatcherConfig) Validate() error {
	if c.QueueSize < 0 {
		return fmt.Errorf("QueueSize must be non-negative, got %d", c.QueueSize)
	}
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("MaxBatchSize must be non-negative, got %d", c.MaxBatchSize)
	}
	if c.FlushInterval < 0 {
		return fmt.Errorf("FlushInterval must be non-negative, got %s", c.FlushInterval)
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *DispatcherConfig) ApplyDefaults() {
	if c.QueueSize == 0 {
		c.QueueSize = 1024
	}
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = 50
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 500 * time.Millisecond
	}
	if c.MaxSendAttempts == 0 {
		c.MaxSendAttempts = 3
	}
}

// Dispatcher queues notifications and delivers them in batches to every
// sink from a single background goroutine.
type Dispatcher struct {
	queue chan Notification
	sinks []Sink

	// Configuration
	flushInterval   time.Duration
	maxBatchSize    int
	maxSendAttempts uint

	// Buffering state, owned by the run goroutine
	buffer     []Notification
	flushTimer *time.Timer

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewDispatcher starts a dispatcher delivering to the given sinks.
func NewDispatcher(cfg DispatcherConfig, sinks ...Sink) (*Dispatcher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatcher configuration: %w", err)
	}

	d := &Dispatcher{
		queue:           make(chan Notification, cfg.QueueSize),
		sinks:           sinks,
		flushInterval:   cfg.FlushInterval,
		maxBatchSize:    cfg.MaxBatchSize,
		maxSendAttempts: cfg.MaxSendAttempts,
		buffer:          make([]Notification, 0, cfg.MaxBatchSize),
		flushTimer:      time.NewTimer(cfg.FlushInterval),
		stopCh:          make(chan struct{}),
		done:            make(chan struct{}),
	}
	d.flushTimer.Stop()

	go d.run()

	return d, nil
}

// Publish enqueues a notification. It never blocks: when the queue is full
// or the dispatcher is stopped the notification is dropped and counted.
func (d *Dispatcher) Publish(ctx context.Context, n Notification) {
	select {
	case <-d.stopCh:
		d.drop(ctx, n, "stopped")
		return
	default:
	}

	select {
	case d.queue <- n:
	default:
		d.drop(ctx, n, "queue_full")
	}
}

func (d *Dispatcher) drop(ctx context.Context, n Notification, reason string) {
	telemetry.GetMetrics().NotificationsDroppedTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
	log.Warn().
		Str("notification_id", n.ID.String()).
		Str("kind", string(n.Kind)).
		Str("reason", reason).
		Msg("Dropped notification")
}

// Stop flushes queued notifications and waits for the last batch to be
// delivered or ctx to end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for {
		select {
		case n := <-d.queue:
			d.add(n)
		case <-d.flushTimer.C:
			d.flush("timer")
		case <-d.stopCh:
			d.drain()
			d.flushTimer.Stop()
			d.flush("shutdown")
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case n := <-d.queue:
			d.add(n)
		default:
			return
		}
	}
}

func (d *Dispatcher) add(n Notification) {
	if len(d.buffer) == 0 {
		d.flushTimer.Reset(d.flushInterval)
	}

	d.buffer = append(d.buffer, n)

	if len(d.buffer) >= d.maxBatchSize {
		d.flushTimer.Stop()
		d.flush("max_batch_size")
	}
}

// flush delivers the buffered batch to every sink.
func (d *Dispatcher) flush(reason string) {
	if len(d.buffer) == 0 {
		return
	}

	batch := d.buffer
	d.buffer = make([]Notification, 0, d.maxBatchSize)

	log.Debug().
		Int("item_count", len(batch)).
		Str("reason", reason).
		Msg("Flushing notification batch")

	ctx := context.Background()
	metrics := telemetry.GetMetrics()

	for _, sink := range d.sinks {
		started := time.Now()
		err := d.send(ctx, sink, batch)
		attrs := metric.WithAttributes(attribute.String("sink", sink.Name()))
		metrics.SinkBatchDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

		if err != nil {
			metrics.SinkErrorsTotal.Add(ctx, 1, attrs)
			metrics.NotificationsDroppedTotal.Add(ctx, int64(len(batch)),
				metric.WithAttributes(attribute.String("reason", "sink_error"), attribute.String("sink", sink.Name())))
			log.Error().Err(err).Str("sink", sink.Name()).Int("item_count", len(batch)).Msg("Failed to deliver notifications")
			continue
		}

		metrics.NotificationsPublishedTotal.Add(ctx, int64(len(batch)), attrs)
	}
}

func (d *Dispatcher) send(ctx context.Context, sink Sink, batch []Notification) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := sink.Send(ctx, batch)
		if errors.Is(err, ErrPermanent) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(d.maxSendAttempts))

	return err
}

// ErrPermanent marks sink errors that retrying cannot fix.
var ErrPermanent = errors.New("permanent sink error")
