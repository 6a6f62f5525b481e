package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// DefaultEventBufferSize bounds how many events wait for slow sinks
const DefaultEventBufferSize = 1024

var (
	ErrEventDropped     = errors.New("security event buffer full")
	ErrDispatcherClosed = errors.New("security event dispatcher closed")
)

// EventDispatcherConfig controls buffering of security events
type EventDispatcherConfig struct {
	BufferSize  int
	SinkTimeout time.Duration
}

// EventDispatcher hands events to its sinks from a background goroutine so a
// stalled broker or mail API never holds up an authentication step.
// Events that do not fit in the buffer are dropped and counted.
type EventDispatcher struct {
	sinks     []SecurityEventSink
	timeout   time.Duration
	logger    *slog.Logger
	ch        chan *models.SecurityEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewEventDispatcher(cfg EventDispatcherConfig, logger *slog.Logger, sinks ...SecurityEventSink) *EventDispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultEventBufferSize
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}

	d := &EventDispatcher{
		sinks:   sinks,
		timeout: cfg.SinkTimeout,
		logger:  logger,
		ch:      make(chan *models.SecurityEvent, cfg.BufferSize),
		done:    make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *EventDispatcher) Name() string { return "dispatcher" }

// Publish queues the event without waiting for any sink
func (d *EventDispatcher) Publish(_ context.Context, event *models.SecurityEvent) error {
	if d.closed.Load() {
		return ErrDispatcherClosed
	}

	select {
	case d.ch <- event:
		return nil
	case <-d.done:
		return ErrDispatcherClosed
	default:
		d.dropped.Add(1)
		return ErrEventDropped
	}
}

func (d *EventDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *EventDispatcher) deliver(event *models.SecurityEvent) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := sink.Publish(ctx, event)
		cancel()

		if err != nil {
			d.logger.Error("failed to publish security event",
				slog.String("sink", sink.Name()),
				slog.String("kind", string(event.Kind)),
				slog.String("event_id", event.ID.String()),
				slog.Any("error", err),
			)
		}
	}
}

// Close stops accepting events and waits until the queued ones are delivered
func (d *EventDispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns how many events were discarded because the buffer was full
func (d *EventDispatcher) Dropped() uint64 {
	return d.dropped.Load()
}
