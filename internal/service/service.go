package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ds124wfegd/parking/internal/entity"
	"github.com/ds124wfegd/parking/pkg/lock"
)

type InventoryService interface {
	CreateCity(ctx context.Context, name string) (*entity.City, error)
	ListCities(ctx context.Context) ([]*entity.City, error)
	DeleteCity(ctx context.Context, name string) error

	CreateArea(ctx context.Context, req *CreateAreaRequest) (*entity.Area, error)
	ListAreas(ctx context.Context, city string) ([]*entity.Area, error)
	DeleteArea(ctx context.Context, city, name string) error

	CreateSlot(ctx context.Context, req *CreateSlotRequest) (*entity.Slot, error)
	GetSlot(ctx context.Context, id int64) (*entity.Slot, error)
	ListSlots(ctx context.Context, filter entity.SlotFilter) ([]*entity.SlotView, error)
	ToggleSlot(ctx context.Context, id int64) (*entity.Slot, error)
	SetSlotStatus(ctx context.Context, id int64, status string) (*entity.Slot, error)
	DeleteSlot(ctx context.Context, id int64) error
}

type BookingService interface {
	CreateBooking(ctx context.Context, caller entity.Identity, req *CreateBookingRequest) (*entity.BookingReceipt, error)
	ExtendBooking(ctx context.Context, caller entity.Identity, bookingID int64, extraHours int) (*entity.Booking, error)
	// CancelBooking is the user path: only the owner may cancel, reason is optional.
	CancelBooking(ctx context.Context, caller entity.Identity, bookingID int64, reason string) (*entity.Booking, error)
	// AdminCancelBooking cancels any active booking and requires a reason.
	AdminCancelBooking(ctx context.Context, caller entity.Identity, bookingID int64, reason string) (*entity.Booking, error)
	GetUserBookings(ctx context.Context, userID int64) ([]*entity.BookingView, error)
	// GetActiveBooking returns the user's BOOKED or EXTENDED booking, if any.
	GetActiveBooking(ctx context.Context, userID int64) (*entity.Booking, error)
	ListBookings(ctx context.Context, filter entity.BookingFilter) ([]*entity.BookingView, error)

	// Expiration operations
	GetExpiredBookings(ctx context.Context, now time.Time) ([]*entity.Booking, error)
	CompleteBooking(ctx context.Context, bookingID int64, now time.Time) (*entity.Booking, error)
}

type ReportService interface {
	GetReport(ctx context.Context, req *ReportRequest) (*entity.Report, error)
	ExportCSV(ctx context.Context, req *ReportRequest, w io.Writer) error
	GetMonthlyReport(ctx context.Context) (*entity.MonthlyReport, error)
}

type AuthService interface {
	Register(ctx context.Context, req *RegisterRequest) (*entity.User, error)
	Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error)
	// Verify turns a bearer token into the caller's identity.
	Verify(token string) (entity.Identity, error)
	// EnsureAdmin creates the bootstrap admin if no user has that email yet.
	EnsureAdmin(ctx context.Context, email, password string) error
}

// EventPublisher receives booking events after the transition is committed.
// Implementations must not block.
type EventPublisher interface {
	Publish(ctx context.Context, event entity.BookingEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, entity.BookingEvent) {}

// NopPublisher discards every event.
var NopPublisher EventPublisher = nopPublisher{}

type CreateAreaRequest struct {
	City string `json:"city" binding:"required"`
	Name string `json:"name" binding:"required"`
}

type CreateSlotRequest struct {
	City         string   `json:"city"`
	Area         string   `json:"area"`
	SlotNo       string   `json:"slotNo"`
	PricePerHour *float64 `json:"pricePerHour"`
	Status       string   `json:"status"`
}

type CreateBookingRequest struct {
	SlotID        int64           `json:"slotId"`
	FromTime      entity.FlexTime `json:"fromTime"`
	ToTime        entity.FlexTime `json:"toTime"`
	PaymentMethod string          `json:"paymentMethod"`
}

type ExtendBookingRequest struct {
	ExtraHours int `json:"extraHours"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

type ReportRequest struct {
	From    *time.Time
	To      *time.Time
	SlotID  int64
	Segment entity.SegmentBy
}

type RegisterRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Phone     string `json:"phone"`
	VehicleNo string `json:"vehicleNo"`
	CarType   string `json:"carType"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	Role  entity.Role `json:"role"`
}

// Services groups everything the transport layer needs.
type Services struct {
	Inventory InventoryService
	Bookings  BookingService
	Reports   ReportService
	Auth      AuthService
}

func userLockKey(id int64) string { return fmt.Sprintf("user:%d", id) }
func slotLockKey(id int64) string { return fmt.Sprintf("slot:%d", id) }

// acquire takes the keys in order (always user before slot) and turns a lock
// timeout into entity.ErrResourceBusy.
func acquire(ctx context.Context, locker lock.Locker, keys ...string) (func(), error) {
	release, err := lock.AcquireAll(ctx, locker, keys...)
	if errors.Is(err, lock.ErrTimeout) {
		return nil, entity.ErrResourceBusy
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return release, nil
}
