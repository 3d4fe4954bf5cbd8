package database

import (
	"context"
	"time"

	"github.com/ds124wfegd/parking/internal/entity"
)

type CityRepository interface {
	Create(ctx context.Context, city *entity.City) error
	GetAll(ctx context.Context) ([]*entity.City, error)
	// Delete removes the city with its areas and slots in one transaction.
	// It fails with ErrSlotOccupied if any of those slots is booked.
	Delete(ctx context.Context, name string) error
}

type AreaRepository interface {
	Create(ctx context.Context, area *entity.Area) error
	GetAll(ctx context.Context, city string) ([]*entity.Area, error)
	// Delete removes the area and its slots in one transaction.
	Delete(ctx context.Context, city, name string) error
}

type SlotRepository interface {
	// Create checks that the city and area exist and that (city, area, slotNo)
	// is unique.
	Create(ctx context.Context, slot *entity.Slot) error
	GetByID(ctx context.Context, id int64) (*entity.Slot, error)
	GetAll(ctx context.Context, filter entity.SlotFilter) ([]*entity.Slot, error)
	// Update runs mutate against the current row while holding a row lock and
	// persists the result. Only administrative fields are written back.
	Update(ctx context.Context, id int64, mutate func(slot *entity.Slot) error) (*entity.Slot, error)
	// Delete refuses to remove a slot that is currently booked.
	Delete(ctx context.Context, id int64) error
}

type BookingRepository interface {
	// Create atomically re-checks that the user has no active booking and
	// that the slot is bookable, prices the booking from the slot, inserts it
	// and marks the slot booked.
	Create(ctx context.Context, booking *entity.Booking) error
	GetByID(ctx context.Context, id int64) (*entity.Booking, error)
	// GetActiveByUser fails with ErrBookingNotFound when the user holds no
	// active booking.
	GetActiveByUser(ctx context.Context, userID int64) (*entity.Booking, error)
	// Extend adds hours to an active booking, charged at the slot's current
	// rate (or the booking's own rate if the slot is gone).
	Extend(ctx context.Context, id int64, extraHours int) (*entity.Booking, error)
	// Release moves an active booking to a terminal status and frees its
	// slot in the same transaction. A booking that is no longer active is left
	// untouched and ErrBookingNotActive is returned, so the slot is never
	// released twice.
	Release(ctx context.Context, id int64, release entity.Release) (*entity.Booking, error)
	GetExpired(ctx context.Context, now time.Time) ([]*entity.Booking, error)
	List(ctx context.Context, filter entity.BookingFilter) ([]*entity.BookingView, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
}

// ReportCache stores computed monthly aggregates.
// Invalidate bumps the generation. Reads and writes carry the generation
// observed before the report was computed, so a report built from rows
// that a later write invalidated is never served.
type ReportCache interface {
	Generation(ctx context.Context) (int64, error)
	GetMonthly(ctx context.Context, generation int64, month string) (*entity.MonthlyReport, bool, error)
	SetMonthly(ctx context.Context, generation int64, report *entity.MonthlyReport) error
	Invalidate(ctx context.Context) error
}

// Repositories groups one storage backend.
type Repositories struct {
	Cities   CityRepository
	Areas    AreaRepository
	Slots    SlotRepository
	Bookings BookingRepository
	Users    UserRepository
}
