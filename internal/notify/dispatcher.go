// Package notify delivers post-commit import notifications off the import path.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/tally/internal/telemetry"
	"github.com/google/uuid"
)

// EventImportCompleted is emitted once per committed import.
const EventImportCompleted = "import.completed"

// Event is the message handed to sinks.
type Event struct {
	OccurredAt    time.Time `json:"occurredAt"`
	TotalRevenue  *float64  `json:"totalRevenue"`
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	ImportID      string    `json:"importId"`
	SourceID      string    `json:"sourceId"`
	RecordCount   int       `json:"recordCount"`
	TotalSessions int64     `json:"totalSessions"`
}

// NewImportCompleted builds an import.completed event with a fresh id.
func NewImportCompleted(importID, sourceID string, recordCount int, totalSessions int64, totalRevenue *float64, at time.Time) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          EventImportCompleted,
		ImportID:      importID,
		SourceID:      sourceID,
		RecordCount:   recordCount,
		TotalSessions: totalSessions,
		TotalRevenue:  totalRevenue,
		OccurredAt:    at,
	}
}

// Sink receives events. Deliver may block up to the context deadline.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// Config tunes a Dispatcher.
type Config struct {
	Logger          *slog.Logger
	Metrics         *telemetry.Metrics
	BufferSize      int
	DeliveryTimeout time.Duration
}

// Dispatcher fans events out to sinks from a single worker goroutine.
// Publish never blocks; when the buffer is full the event is dropped.
type Dispatcher struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics
	events  chan Event
	sinks   []Sink
	timeout time.Duration
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

// NewDispatcher starts the worker. Call Shutdown to drain and stop it.
func NewDispatcher(cfg Config, sinks ...Sink) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Dispatcher{
		logger:  cfg.Logger.With("component", "notify"),
		metrics: cfg.Metrics,
		events:  make(chan Event, cfg.BufferSize),
		sinks:   sinks,
		timeout: cfg.DeliveryTimeout,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Publish queues an event and reports whether it was accepted.
func (d *Dispatcher) Publish(event Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.events <- event:
		return true
	default:
		d.metrics.ObserveNotification("dropped")
		d.logger.Warn("notification buffer full, dropping event",
			"event_id", event.ID,
			"import_id", event.ImportID)
		return false
	}
}

// Shutdown stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for event := range d.events {
		for _, sink := range d.sinks {
			d.deliver(sink, event)
		}
	}
}

func (d *Dispatcher) deliver(sink Sink, event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := sink.Deliver(ctx, event); err != nil {
		d.metrics.ObserveNotification("failed")
		d.logger.Error("notification delivery failed",
			"sink", sink.Name(),
			"event_id", event.ID,
			"import_id", event.ImportID,
			"error", err)
		return
	}
	d.metrics.ObserveNotification("delivered")
}
