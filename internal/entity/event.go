package entity

import "time"

type BookingEventType string

const (
	BookingEventCreated   BookingEventType = "booking.created"
	BookingEventExtended  BookingEventType = "booking.extended"
	BookingEventCancelled BookingEventType = "booking.cancelled"
	BookingEventCompleted BookingEventType = "booking.completed"
)

// BookingEvent is emitted after every committed booking transition.
type BookingEvent struct {
	ID         string           `json:"id"`
	Type       BookingEventType `json:"type"`
	BookingID  int64            `json:"bookingId"`
	UserID     int64            `json:"userId"`
	SlotID     int64            `json:"slotId"`
	Status     BookingStatus    `json:"status"`
	Hours      int              `json:"hours"`
	Amount     float64          `json:"amount"`
	EndTime    time.Time        `json:"endTime"`
	Reason     string           `json:"reason,omitempty"`
	OccurredAt time.Time        `json:"occurredAt"`
}

// FailedEvent is a booking event a sink could not accept after all retries.
type FailedEvent struct {
	Event    *BookingEvent `json:"event"`
	Sink     string        `json:"sink"`
	Error    string        `json:"error"`
	FailedAt time.Time     `json:"failedAt"`
}
