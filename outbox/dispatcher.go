package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DispatcherStore is the slice of the repository the relay needs.
type DispatcherStore interface {
	Pending(ctx context.Context, limit int) ([]PendingEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Writer abstracts the Kafka writer for testability.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DispatcherConfig tunes the relay loop.
type DispatcherConfig struct {
	BatchSize  int
	Interval   time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// Dispatcher drains committed outbox rows and forwards them to Kafka.
// Delivery is at least once: a row is marked sent only after the broker
// acknowledged the write, so a crash in between replays the event.
type Dispatcher struct {
	logger *zap.Logger
	store  DispatcherStore
	writer Writer
	cfg    DispatcherConfig
}

// NewDispatcher constructs a relay publishing to the given brokers.
func NewDispatcher(logger *zap.Logger, store DispatcherStore, brokers []string, cfg DispatcherConfig) *Dispatcher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Dispatcher{logger: logger, store: store, writer: writer, cfg: cfg}
}

// NewDispatcherWithWriter is NewDispatcher with an injected writer, used by
// tests.
func NewDispatcherWithWriter(logger *zap.Logger, store DispatcherStore, writer Writer, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{logger: logger, store: store, writer: writer, cfg: cfg}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("outbox dispatcher starting",
		zap.Int("batch_size", d.cfg.BatchSize),
		zap.Duration("interval", d.cfg.Interval),
	)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopping")
			return nil
		case <-ticker.C:
			if err := d.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("outbox batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessBatch relays one batch of pending events. Individual event failures
// are recorded and do not stop the rest of the batch.
func (d *Dispatcher) ProcessBatch(ctx context.Context) error {
	events, err := d.store.Pending(ctx, d.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("outbox: fetch pending: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	d.logger.Debug("relaying outbox batch", zap.Int("count", len(events)))

	for _, event := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := d.relay(ctx, event); err != nil {
			d.logger.Error("outbox relay failed",
				zap.Error(err),
				zap.String("event_id", event.ID.String()),
				zap.String("topic", event.Topic()),
			)
		}
	}
	return nil
}

func (d *Dispatcher) relay(ctx context.Context, event PendingEvent) error {
	msg := kafka.Message{
		Topic: event.Topic(),
		Key:   []byte(event.EntityID),
		Value: event.Payload,
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxRetries; attempt++ {
		if err := d.writer.WriteMessages(ctx, msg); err == nil {
			return d.store.MarkSent(ctx, event.ID)
		} else {
			lastErr = err
		}

		if attempt < d.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.cfg.Backoff * time.Duration(attempt)):
			}
		}
	}

	reason := fmt.Sprintf("failed after %d attempts: %v", d.cfg.MaxRetries, lastErr)
	if err := d.store.MarkFailed(ctx, event.ID, reason); err != nil {
		return err
	}
	return fmt.Errorf("outbox: relay %s: %w", event.ID, lastErr)
}

// Close releases the Kafka writer.
func (d *Dispatcher) Close() error {
	return d.writer.Close()
}
