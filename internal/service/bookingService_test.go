package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/parking/internal/database"
	"github.com/ds124wfegd/parking/internal/database/memory"
	"github.com/ds124wfegd/parking/internal/entity"
	"github.com/ds124wfegd/parking/pkg/lock"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.BookingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event entity.BookingEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []entity.BookingEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]entity.BookingEventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

type fixture struct {
	clock     *clock
	repos     *database.Repositories
	inventory InventoryService
	bookings  BookingService
	events    *recordingPublisher
	slot      *entity.Slot
}

var (
	driver = entity.Identity{UserID: 1, Role: entity.RoleUser}
	other  = entity.Identity{UserID: 2, Role: entity.RoleUser}
	admin  = entity.Identity{UserID: 99, Role: entity.RoleAdmin}

	day = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

func at(hour, minute int) entity.FlexTime {
	return entity.FlexTime{Time: day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	c := &clock{now: day.Add(9 * time.Hour)}
	repos := memory.NewStore(c.Now).Repositories()
	locker := lock.NewKeyedMutex(time.Second)
	events := &recordingPublisher{}

	f := &fixture{
		clock:     c,
		repos:     repos,
		inventory: NewInventoryService(repos, locker),
		bookings:  NewBookingService(repos, nil, locker, events, c.Now),
		events:    events,
	}

	_, err := f.inventory.CreateCity(ctx, "Pune")
	require.NoError(t, err)
	_, err = f.inventory.CreateArea(ctx, &CreateAreaRequest{City: "Pune", Name: "Kothrud"})
	require.NoError(t, err)
	price := 20.0
	f.slot, err = f.inventory.CreateSlot(ctx, &CreateSlotRequest{City: "Pune", Area: "Kothrud", SlotNo: "A1", PricePerHour: &price})
	require.NoError(t, err)
	return f
}

func (f *fixture) book(t *testing.T, caller entity.Identity) *entity.Booking {
	t.Helper()
	receipt, err := f.bookings.CreateBooking(context.Background(), caller, &CreateBookingRequest{
		SlotID:        f.slot.ID,
		FromTime:      at(10, 0),
		ToTime:        at(12, 30),
		PaymentMethod: "UPI",
	})
	require.NoError(t, err)
	return receipt.Booking
}

func (f *fixture) slotState(t *testing.T) *entity.Slot {
	t.Helper()
	slot, err := f.repos.Slots.GetByID(context.Background(), f.slot.ID)
	require.NoError(t, err)
	return slot
}

func TestCreateBookingScenario(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.bookings.CreateBooking(context.Background(), driver, &CreateBookingRequest{
		SlotID:        f.slot.ID,
		FromTime:      at(10, 0),
		ToTime:        at(12, 30),
		PaymentMethod: "upi",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, receipt.Booking.Hours)
	assert.Equal(t, 60.0, receipt.Booking.Amount)
	assert.Equal(t, entity.BookingStatusBooked, receipt.Booking.Status)
	assert.Equal(t, entity.PaymentMethodUPI, receipt.Booking.PaymentMethod)
	assert.True(t, receipt.Payment.Mock)
	assert.Equal(t, "SUCCESS", receipt.Payment.Status)
	assert.True(t, strings.HasPrefix(receipt.Payment.Reference, "PAY-"))
	assert.Equal(t, 60.0, receipt.Payment.Amount)

	assert.True(t, f.slotState(t).IsBooked)
	assert.Equal(t, []entity.BookingEventType{entity.BookingEventCreated}, f.events.types())
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  CreateBookingRequest
		want error
	}{
		{"missing slot", CreateBookingRequest{FromTime: at(10, 0), ToTime: at(11, 0), PaymentMethod: "UPI"}, entity.ErrValidation},
		{"missing times", CreateBookingRequest{SlotID: f.slot.ID, PaymentMethod: "UPI"}, entity.ErrValidation},
		{"end before start", CreateBookingRequest{SlotID: f.slot.ID, FromTime: at(12, 0), ToTime: at(11, 0), PaymentMethod: "UPI"}, entity.ErrInvalidTimeRange},
		{"empty range", CreateBookingRequest{SlotID: f.slot.ID, FromTime: at(12, 0), ToTime: at(12, 0), PaymentMethod: "UPI"}, entity.ErrInvalidTimeRange},
		{"unknown payment", CreateBookingRequest{SlotID: f.slot.ID, FromTime: at(10, 0), ToTime: at(11, 0), PaymentMethod: "CASH"}, entity.ErrValidation},
		{"unknown slot", CreateBookingRequest{SlotID: 404, FromTime: at(10, 0), ToTime: at(11, 0), PaymentMethod: "CARD"}, entity.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := f.bookings.CreateBooking(context.Background(), driver, &req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.False(t, f.slotState(t).IsBooked)
}

func TestSecondBookingBySameUserConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, driver)

	price := 10.0
	second, err := f.inventory.CreateSlot(ctx, &CreateSlotRequest{City: "Pune", Area: "Kothrud", SlotNo: "A2", PricePerHour: &price})
	require.NoError(t, err)

	_, err = f.bookings.CreateBooking(ctx, driver, &CreateBookingRequest{
		SlotID: second.ID, FromTime: at(10, 0), ToTime: at(11, 0), PaymentMethod: "CARD",
	})
	assert.ErrorIs(t, err, entity.ErrActiveBookingExists)
	assert.ErrorIs(t, err, entity.ErrConflict)
}

func TestBookingUnbookableSlot(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture) error
	}{
		{"disabled", func(f *fixture) error {
			_, err := f.inventory.ToggleSlot(context.Background(), f.slot.ID)
			return err
		}},
		{"busy", func(f *fixture) error {
			_, err := f.inventory.SetSlotStatus(context.Background(), f.slot.ID, "BUSY")
			return err
		}},
		{"booked", func(f *fixture) error {
			_, err := f.bookings.CreateBooking(context.Background(), other, &CreateBookingRequest{
				SlotID: f.slot.ID, FromTime: at(10, 0), ToTime: at(11, 0), PaymentMethod: "UPI",
			})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, tt.mutate(f))

			_, err := f.bookings.CreateBooking(context.Background(), driver, &CreateBookingRequest{
				SlotID: f.slot.ID, FromTime: at(10, 0), ToTime: at(11, 0), PaymentMethod: "UPI",
			})
			assert.ErrorIs(t, err, entity.ErrSlotUnavailable)
		})
	}
}

func TestConcurrentBookingsForSameSlot(t *testing.T) {
	f := newFixture(t)
	const callers = 20

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := f.bookings.CreateBooking(context.Background(), entity.Identity{UserID: userID, Role: entity.RoleUser}, &CreateBookingRequest{
				SlotID: f.slot.ID, FromTime: at(10, 0), ToTime: at(11, 0), PaymentMethod: "UPI",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, entity.ErrConflict):
				conflicts++
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)

	active, err := f.repos.Bookings.List(context.Background(), entity.BookingFilter{SlotID: f.slot.ID})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestConcurrentBookingsBySameUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price := 10.0
	slots := []int64{f.slot.ID}
	for _, no := range []string{"A2", "A3", "A4", "A5"} {
		slot, err := f.inventory.CreateSlot(ctx, &CreateSlotRequest{City: "Pune", Area: "Kothrud", SlotNo: no, PricePerHour: &price})
		require.NoError(t, err)
		slots = append(slots, slot.ID)
	}

	var wg sync.WaitGroup
	for _, slotID := range slots {
		wg.Add(1)
		go func(slotID int64) {
			defer wg.Done()
			_, _ = f.bookings.CreateBooking(ctx, driver, &CreateBookingRequest{
				SlotID: slotID, FromTime: at(10, 0), ToTime: at(11, 0), PaymentMethod: "UPI",
			})
		}(slotID)
	}
	wg.Wait()

	mine, err := f.bookings.GetUserBookings(ctx, driver.UserID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := f.inventory.ListSlots(ctx, entity.SlotFilter{})
	require.NoError(t, err)
	booked := 0
	for _, s := range all {
		if s.IsBooked {
			booked++
		}
	}
	assert.Equal(t, 1, booked)
}

func TestExtendBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.book(t, driver)

	extended, err := f.bookings.ExtendBooking(ctx, driver, booking.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, extended.Hours)
	assert.Equal(t, 80.0, extended.Amount)
	assert.Equal(t, day.Add(13*time.Hour+30*time.Minute), extended.EndTime)
	assert.Equal(t, entity.BookingStatusExtended, extended.Status)
	assert.True(t, f.slotState(t).IsBooked)

	// Extended bookings stay extendable.
	again, err := f.bookings.ExtendBooking(ctx, driver, booking.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, again.Hours)
	assert.Equal(t, 120.0, again.Amount)
}

func TestExtendBookingRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.book(t, driver)

	_, err := f.bookings.ExtendBooking(ctx, driver, booking.ID, 0)
	assert.ErrorIs(t, err, entity.ErrInvalidExtraHours)
	_, err = f.bookings.ExtendBooking(ctx, driver, booking.ID, 25)
	assert.ErrorIs(t, err, entity.ErrInvalidExtraHours)

	_, err = f.bookings.ExtendBooking(ctx, other, booking.ID, 1)
	assert.ErrorIs(t, err, entity.ErrForbidden)

	_, err = f.bookings.ExtendBooking(ctx, driver, 404, 1)
	assert.ErrorIs(t, err, entity.ErrBookingNotFound)

	_, err = f.bookings.CancelBooking(ctx, driver, booking.ID, "")
	require.NoError(t, err)
	_, err = f.bookings.ExtendBooking(ctx, driver, booking.ID, 1)
	assert.ErrorIs(t, err, entity.ErrInvalidState)
}

func TestCancelBookingFreesSlotOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.book(t, driver)

	_, err := f.bookings.CancelBooking(ctx, other, booking.ID, "")
	assert.ErrorIs(t, err, entity.ErrNotBookingOwner)

	cancelled, err := f.bookings.CancelBooking(ctx, driver, booking.ID, " changed plans ")
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, "changed plans", cancelled.CancelReason)
	assert.False(t, f.slotState(t).IsBooked)

	_, err = f.bookings.CancelBooking(ctx, driver, booking.ID, "")
	assert.ErrorIs(t, err, entity.ErrInvalidState)
	assert.False(t, f.slotState(t).IsBooked)

	// The user may book again right away.
	f.book(t, driver)
	assert.Equal(t,
		[]entity.BookingEventType{entity.BookingEventCreated, entity.BookingEventCancelled, entity.BookingEventCreated},
		f.events.types())
}

func TestGetActiveBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.bookings.GetActiveBooking(ctx, driver.UserID)
	assert.ErrorIs(t, err, entity.ErrBookingNotFound)

	booking := f.book(t, driver)
	active, err := f.bookings.GetActiveBooking(ctx, driver.UserID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, active.ID)

	_, err = f.bookings.ExtendBooking(ctx, driver, booking.ID, 1)
	require.NoError(t, err)
	active, err = f.bookings.GetActiveBooking(ctx, driver.UserID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusExtended, active.Status)

	_, err = f.bookings.GetActiveBooking(ctx, other.UserID)
	assert.ErrorIs(t, err, entity.ErrBookingNotFound)

	_, err = f.bookings.CancelBooking(ctx, driver, booking.ID, "")
	require.NoError(t, err)
	_, err = f.bookings.GetActiveBooking(ctx, driver.UserID)
	assert.ErrorIs(t, err, entity.ErrBookingNotFound)
}

func TestCancelExtendedBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.book(t, driver)

	_, err := f.bookings.ExtendBooking(ctx, driver, booking.ID, 1)
	require.NoError(t, err)

	cancelled, err := f.bookings.CancelBooking(ctx, driver, booking.ID, "")
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCancelled, cancelled.Status)
	assert.False(t, f.slotState(t).IsBooked)
}

func TestAdminCancelBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.book(t, driver)

	_, err := f.bookings.AdminCancelBooking(ctx, driver, booking.ID, "nope")
	assert.ErrorIs(t, err, entity.ErrForbidden)

	_, err = f.bookings.AdminCancelBooking(ctx, admin, booking.ID, "   ")
	assert.ErrorIs(t, err, entity.ErrReasonRequired)

	_, err = f.bookings.AdminCancelBooking(ctx, admin, booking.ID, strings.Repeat("x", MaxCancelReason+1))
	assert.ErrorIs(t, err, entity.ErrValidation)

	cancelled, err := f.bookings.AdminCancelBooking(ctx, admin, booking.ID, "vehicle towed")
	require.NoError(t, err)
	assert.Equal(t, "vehicle towed", cancelled.CancelReason)
	assert.False(t, f.slotState(t).IsBooked)
}

func TestAdminStatusOverrideKeepsBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.book(t, driver)

	slot, err := f.inventory.SetSlotStatus(ctx, f.slot.ID, "UNDER_CONSTRUCTION")
	require.NoError(t, err)
	assert.False(t, slot.IsEnabled)
	assert.Equal(t, entity.SlotStatusUnderConstruction, slot.Status)
	assert.True(t, slot.IsBooked)

	stored, err := f.repos.Bookings.GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusBooked, stored.Status)
}

func TestCompleteBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.book(t, driver)

	_, err := f.bookings.CompleteBooking(ctx, booking.ID, booking.EndTime.Add(-time.Minute))
	assert.ErrorIs(t, err, entity.ErrBookingNotExpired)
	assert.True(t, IsSkippable(err))

	completed, err := f.bookings.CompleteBooking(ctx, booking.ID, booking.EndTime)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCompleted, completed.Status)
	assert.False(t, f.slotState(t).IsBooked)

	_, err = f.bookings.CompleteBooking(ctx, booking.ID, booking.EndTime)
	assert.True(t, IsSkippable(err))
}

func TestAmountFollowsPriceAtCreation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := f.book(t, driver)

	_, err := f.repos.Slots.Update(ctx, f.slot.ID, func(s *entity.Slot) error {
		s.PricePerHour = 100
		return nil
	})
	require.NoError(t, err)

	stored, err := f.repos.Bookings.GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, stored.Amount)
}

func TestListBookingsRejectsNegativePaging(t *testing.T) {
	f := newFixture(t)
	_, err := f.bookings.ListBookings(context.Background(), entity.BookingFilter{Limit: -1})
	assert.ErrorIs(t, err, entity.ErrValidation)
}
