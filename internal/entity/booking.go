package entity

import (
	"strings"
	"time"
)

type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "BOOKED"
	BookingStatusExtended  BookingStatus = "EXTENDED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// ActiveBookingStatuses hold the slot and count against the user's single
// active booking.
var ActiveBookingStatuses = []BookingStatus{BookingStatusBooked, BookingStatusExtended}

func (s BookingStatus) IsActive() bool {
	return s == BookingStatusBooked || s == BookingStatusExtended
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	switch BookingStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case BookingStatusBooked:
		return BookingStatusBooked, nil
	case BookingStatusExtended:
		return BookingStatusExtended, nil
	case BookingStatusCompleted:
		return BookingStatusCompleted, nil
	case BookingStatusCancelled:
		return BookingStatusCancelled, nil
	default:
		return "", Validation("invalid booking status: %s", s)
	}
}

type PaymentMethod string

const (
	PaymentMethodUPI  PaymentMethod = "UPI"
	PaymentMethodCard PaymentMethod = "CARD"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToUpper(strings.TrimSpace(s))) {
	case PaymentMethodUPI:
		return PaymentMethodUPI, nil
	case PaymentMethodCard:
		return PaymentMethodCard, nil
	default:
		return "", Validation("unsupported payment method: %q", s)
	}
}

type Booking struct {
	ID            int64         `json:"id" db:"id"`
	UserID        int64         `json:"userId" db:"user_id"`
	SlotID        int64         `json:"slotId" db:"slot_id"`
	Hours         int           `json:"hours" db:"hours"`
	Amount        float64       `json:"amount" db:"amount"`
	StartTime     time.Time     `json:"startTime" db:"start_time"`
	EndTime       time.Time     `json:"endTime" db:"end_time"`
	PaymentMethod PaymentMethod `json:"paymentMethod" db:"payment_method"`
	Status        BookingStatus `json:"status" db:"status"`
	CancelReason  string        `json:"cancelReason,omitempty" db:"cancel_reason"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time     `json:"updatedAt" db:"updated_at"`
}

// BillableHours is the requested duration rounded up to whole hours.
func BillableHours(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	hours := d / time.Hour
	if d%time.Hour != 0 {
		hours++
	}
	return int(hours)
}

// Price fixes hours and amount from the slot's current hourly rate.
func (b *Booking) Price(slot *Slot) {
	b.Hours = BillableHours(b.StartTime, b.EndTime)
	b.Amount = float64(b.Hours) * slot.PricePerHour
}

// Extend adds whole hours to an active booking. pricePerHour is the rate
// charged for the extra time.
func (b *Booking) Extend(extraHours int, pricePerHour float64) {
	b.Hours += extraHours
	b.Amount += float64(extraHours) * pricePerHour
	b.EndTime = b.EndTime.Add(time.Duration(extraHours) * time.Hour)
	b.Status = BookingStatusExtended
}

// HourlyRate is the rate the booking was priced at. Used when the slot has
// been deleted since creation.
func (b *Booking) HourlyRate() float64 {
	if b.Hours == 0 {
		return 0
	}
	return b.Amount / float64(b.Hours)
}

// Release describes a transition of an active booking into a terminal state.
// When ExpiredBy is set the transition only applies if the booking ended at or
// before that instant.
type Release struct {
	To        BookingStatus
	Reason    string
	ExpiredBy time.Time
}

// BookingView is a booking joined with its slot and owner. Slot is nil when the
// slot was deleted after the booking ended.
type BookingView struct {
	*Booking
	Slot      *Slot  `json:"slot"`
	UserEmail string `json:"userEmail"`
	UserRole  Role   `json:"userRole"`
}

type BookingFilter struct {
	UserID      int64
	SlotID      int64
	City        string
	Area        string
	Status      BookingStatus
	MinAmount   *float64
	StartFrom   *time.Time
	StartTo     *time.Time
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

type PaymentResult struct {
	Status    string        `json:"status"`
	Mock      bool          `json:"mock"`
	Reference string        `json:"reference"`
	Method    PaymentMethod `json:"method"`
	Amount    float64       `json:"amount"`
}

type BookingReceipt struct {
	Booking *Booking      `json:"booking"`
	Payment PaymentResult `json:"payment"`
}
