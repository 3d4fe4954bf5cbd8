package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/parking/internal/entity"
	"github.com/ds124wfegd/parking/pkg/retry"
)

type recordingSink struct {
	mu       sync.Mutex
	events   []*entity.BookingEvent
	failures int
	calls    int
	closed   bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Publish(_ context.Context, event *entity.BookingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("sink down")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) snapshot() ([]*entity.BookingEvent, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*entity.BookingEvent(nil), s.events...), s.calls, s.closed
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(16, retry.NewManager(0, time.Millisecond), sink)
	d.Start(context.Background())

	for i := int64(1); i <= 3; i++ {
		d.Publish(context.Background(), entity.BookingEvent{Type: entity.BookingEventCreated, BookingID: i})
	}
	d.Close()

	events, _, closed := sink.snapshot()
	require.Len(t, events, 3)
	for i, event := range events {
		assert.Equal(t, int64(i+1), event.BookingID)
		assert.NotEmpty(t, event.ID)
	}
	assert.True(t, closed)
}

func TestDispatcherRetriesFailingSink(t *testing.T) {
	sink := &recordingSink{failures: 2}
	d := NewDispatcher(4, retry.NewManager(3, time.Millisecond), sink)
	d.Start(context.Background())

	d.Publish(context.Background(), entity.BookingEvent{Type: entity.BookingEventCancelled, BookingID: 9})
	d.Close()

	events, calls, _ := sink.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, 3, calls)
}

func TestDispatcherGivesUpAndContinues(t *testing.T) {
	failing := &recordingSink{failures: 100}
	healthy := &recordingSink{}
	d := NewDispatcher(4, retry.NewManager(1, time.Millisecond), failing, healthy)
	d.Start(context.Background())

	d.Publish(context.Background(), entity.BookingEvent{Type: entity.BookingEventCompleted, BookingID: 1})
	d.Close()

	_, calls, _ := failing.snapshot()
	assert.Equal(t, 2, calls)
	events, _, _ := healthy.snapshot()
	assert.Len(t, events, 1)
}

type memoryDeadLetters struct {
	mu     sync.Mutex
	failed []*entity.FailedEvent
}

func (m *memoryDeadLetters) Add(_ context.Context, failed *entity.FailedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, failed)
	return nil
}

func TestDispatcherParksUndeliverableEvents(t *testing.T) {
	failing := &recordingSink{failures: 100}
	dlq := &memoryDeadLetters{}
	d := NewDispatcher(4, retry.NewManager(0, time.Millisecond), failing).WithDeadLetters(dlq)
	d.Start(context.Background())

	d.Publish(context.Background(), entity.BookingEvent{Type: entity.BookingEventCreated, BookingID: 3})
	d.Close()

	require.Len(t, dlq.failed, 1)
	assert.Equal(t, "recording", dlq.failed[0].Sink)
	assert.Equal(t, int64(3), dlq.failed[0].Event.BookingID)
	assert.Equal(t, "sink down", dlq.failed[0].Error)
}

func TestDispatcherIgnoresPublishAfterClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(4, retry.NewManager(0, time.Millisecond), sink)
	d.Start(context.Background())
	d.Close()

	assert.NotPanics(t, func() {
		d.Publish(context.Background(), entity.BookingEvent{BookingID: 1})
	})
	events, _, _ := sink.snapshot()
	assert.Empty(t, events)
}

type fakeMessenger struct {
	chatID, text string
}

func (m *fakeMessenger) SendMessage(_ context.Context, chatID, text string) error {
	m.chatID, m.text = chatID, text
	return nil
}

func TestTelegramSink(t *testing.T) {
	bot := &fakeMessenger{}
	sink := &TelegramSink{bot: bot, chatID: "ops"}

	err := sink.Publish(context.Background(), &entity.BookingEvent{
		Type:      entity.BookingEventCancelled,
		BookingID: 5,
		SlotID:    2,
		Reason:    "fraud",
	})
	require.NoError(t, err)
	assert.Equal(t, "ops", bot.chatID)
	assert.Equal(t, "Booking #5 cancelled, slot 2 is free: fraud", bot.text)
}

func TestFormatMessage(t *testing.T) {
	end := time.Date(2026, 3, 1, 13, 30, 0, 0, time.UTC)
	msg := FormatMessage(&entity.BookingEvent{
		Type: entity.BookingEventExtended, BookingID: 1, Hours: 4, Amount: 80, EndTime: end,
	})
	assert.Equal(t, "Booking #1 extended to 4h (80.00), until 2026-03-01 13:30", msg)
}
