// Package events fans committed booking transitions out to external sinks.
// Delivery is best effort: a failing sink is retried with backoff and then
// logged, it never fails the booking operation that produced the event.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/parking/internal/entity"
	"github.com/ds124wfegd/parking/pkg/retry"
)

type Sink interface {
	Name() string
	Publish(ctx context.Context, event *entity.BookingEvent) error
}

// DeadLetters receives events a sink gave up on.
type DeadLetters interface {
	Add(ctx context.Context, failed *entity.FailedEvent) error
}

const deadLetterTimeout = 5 * time.Second

type Dispatcher struct {
	sinks       []Sink
	retry       *retry.Manager
	deadLetters DeadLetters

	mu     sync.RWMutex
	closed bool
	queue  chan *entity.BookingEvent
	wg     sync.WaitGroup
}

func NewDispatcher(buffer int, retryManager *retry.Manager, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Dispatcher{
		sinks: sinks,
		retry: retryManager,
		queue: make(chan *entity.BookingEvent, buffer),
	}
}

// WithDeadLetters must be called before Start.
func (d *Dispatcher) WithDeadLetters(deadLetters DeadLetters) *Dispatcher {
	d.deadLetters = deadLetters
	return d
}

// Start runs the delivery loop until Close is called. ctx bounds every
// delivery attempt.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for event := range d.queue {
			d.deliver(ctx, event)
		}
	}()
}

// Publish enqueues the event without blocking. When the buffer is full the
// event is dropped and logged.
func (d *Dispatcher) Publish(_ context.Context, event entity.BookingEvent) {
	if len(d.sinks) == 0 {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- &event:
	default:
		logrus.WithFields(logrus.Fields{
			"event":      event.Type,
			"booking_id": event.BookingID,
		}).Warn("Event buffer full, dropping booking event")
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()

	for _, sink := range d.sinks {
		if closer, ok := sink.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logrus.WithError(err).WithField("sink", sink.Name()).Warn("Failed to close event sink")
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event *entity.BookingEvent) {
	for _, sink := range d.sinks {
		err := d.retry.Do(ctx, func(ctx context.Context) error {
			return sink.Publish(ctx, event)
		})
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"sink":       sink.Name(),
				"event":      event.Type,
				"booking_id": event.BookingID,
			}).Error("Failed to deliver booking event")
			d.park(sink.Name(), event, err)
			continue
		}
		logrus.WithFields(logrus.Fields{
			"sink":       sink.Name(),
			"event":      event.Type,
			"booking_id": event.BookingID,
		}).Debug("Booking event delivered")
	}
}

func (d *Dispatcher) park(sink string, event *entity.BookingEvent, cause error) {
	if d.deadLetters == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deadLetterTimeout)
	defer cancel()

	err := d.deadLetters.Add(ctx, &entity.FailedEvent{
		Event:    event,
		Sink:     sink,
		Error:    cause.Error(),
		FailedAt: time.Now(),
	})
	if err != nil {
		logrus.WithError(err).WithField("event_id", event.ID).Error("Failed to store event in dead letter queue")
	}
}
