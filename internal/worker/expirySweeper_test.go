package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/parking/internal/database/memory"
	"github.com/ds124wfegd/parking/internal/entity"
	"github.com/ds124wfegd/parking/internal/service"
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

var day = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type env struct {
	clock     *clock
	inventory service.InventoryService
	bookings  service.BookingService
	sweeper   *ExpirySweeper
}

func newEnv(t *testing.T) *env {
	t.Helper()
	c := &clock{now: day.Add(8 * time.Hour)}
	repos := memory.NewStore(c.Now).Repositories()
	locker := lock.NewKeyedMutex(time.Second)

	e := &env{
		clock:     c,
		inventory: service.NewInventoryService(repos, locker),
		bookings:  service.NewBookingService(repos, nil, locker, nil, c.Now),
	}
	e.sweeper = NewExpirySweeper(e.bookings, time.Hour, c.Now)

	ctx := context.Background()
	_, err := e.inventory.CreateCity(ctx, "Pune")
	require.NoError(t, err)
	_, err = e.inventory.CreateArea(ctx, &service.CreateAreaRequest{City: "Pune", Name: "Baner"})
	require.NoError(t, err)
	return e
}

func (e *env) slot(t *testing.T, no string) *entity.Slot {
	t.Helper()
	price := 40.0
	slot, err := e.inventory.CreateSlot(context.Background(), &service.CreateSlotRequest{
		City: "Pune", Area: "Baner", SlotNo: no, PricePerHour: &price,
	})
	require.NoError(t, err)
	return slot
}

func (e *env) book(t *testing.T, userID int64, slotID int64, fromHour, toHour int) *entity.Booking {
	t.Helper()
	receipt, err := e.bookings.CreateBooking(context.Background(),
		entity.Identity{UserID: userID, Role: entity.RoleUser},
		&service.CreateBookingRequest{
			SlotID:        slotID,
			FromTime:      entity.FlexTime{Time: day.Add(time.Duration(fromHour) * time.Hour)},
			ToTime:        entity.FlexTime{Time: day.Add(time.Duration(toHour) * time.Hour)},
			PaymentMethod: "CARD",
		})
	require.NoError(t, err)
	return receipt.Booking
}

func TestExpirySweeper_CompletesExpiredBookings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a1 := e.slot(t, "A1")
	a2 := e.slot(t, "A2")
	expired := e.book(t, 1, a1.ID, 9, 10)
	live := e.book(t, 2, a2.ID, 9, 12)

	e.clock.Set(day.Add(11 * time.Hour))
	result := e.sweeper.RunOnce(ctx)
	assert.Equal(t, SweepResult{Found: 1, Completed: 1}, result)

	bookings, err := e.bookings.GetUserBookings(ctx, 1)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, expired.ID, bookings[0].ID)
	assert.Equal(t, entity.BookingStatusCompleted, bookings[0].Status)

	slot, err := e.inventory.GetSlot(ctx, a1.ID)
	require.NoError(t, err)
	assert.False(t, slot.IsBooked)

	bookings, err = e.bookings.GetUserBookings(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, live.ID, bookings[0].ID)
	assert.Equal(t, entity.BookingStatusBooked, bookings[0].Status)

	slot, err = e.inventory.GetSlot(ctx, a2.ID)
	require.NoError(t, err)
	assert.True(t, slot.IsBooked)
}

func TestExpirySweeper_SecondRunIsNoop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a1 := e.slot(t, "A1")
	e.book(t, 1, a1.ID, 9, 10)

	e.clock.Set(day.Add(10 * time.Hour))
	assert.Equal(t, 1, e.sweeper.RunOnce(ctx).Completed)
	assert.Equal(t, SweepResult{}, e.sweeper.RunOnce(ctx))
}

func TestExpirySweeper_CompletesExtendedBooking(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a1 := e.slot(t, "A1")
	b := e.book(t, 1, a1.ID, 9, 10)
	_, err := e.bookings.ExtendBooking(ctx, entity.Identity{UserID: 1, Role: entity.RoleUser}, b.ID, 2)
	require.NoError(t, err)

	e.clock.Set(day.Add(11 * time.Hour))
	assert.Equal(t, SweepResult{}, e.sweeper.RunOnce(ctx))

	e.clock.Set(day.Add(12 * time.Hour))
	assert.Equal(t, SweepResult{Found: 1, Completed: 1}, e.sweeper.RunOnce(ctx))
}

// flakyBookings returns a fixed expired list and fails selected completions.
type flakyBookings struct {
	service.BookingService

	expired []*entity.Booking
	errs    map[int64]error

	mu        sync.Mutex
	completed []int64
}

func (f *flakyBookings) GetExpiredBookings(context.Context, time.Time) ([]*entity.Booking, error) {
	return f.expired, nil
}

func (f *flakyBookings) CompleteBooking(_ context.Context, id int64, _ time.Time) (*entity.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	f.completed = append(f.completed, id)
	return &entity.Booking{ID: id, Status: entity.BookingStatusCompleted}, nil
}

func TestExpirySweeper_IsolatesFailures(t *testing.T) {
	bookings := &flakyBookings{
		expired: []*entity.Booking{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}},
		errs: map[int64]error{
			2: errors.New("connection reset"),
			3: entity.ErrBookingNotActive,
		},
	}
	sweeper := NewExpirySweeper(bookings, time.Hour, func() time.Time { return day })

	result := sweeper.RunOnce(context.Background())

	assert.Equal(t, SweepResult{Found: 4, Completed: 2, Skipped: 1, Failed: 1}, result)
	assert.Equal(t, []int64{1, 4}, bookings.completed)
}

func TestExpirySweeper_StopsOnCancelledContext(t *testing.T) {
	bookings := &flakyBookings{expired: []*entity.Booking{{ID: 1}, {ID: 2}}}
	sweeper := NewExpirySweeper(bookings, time.Hour, func() time.Time { return day })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := sweeper.RunOnce(ctx)
	assert.Equal(t, 2, result.Found)
	assert.Zero(t, result.Completed)
	assert.Empty(t, bookings.completed)
}

func TestExpirySweeper_StartStop(t *testing.T) {
	bookings := &flakyBookings{expired: []*entity.Booking{{ID: 7}}}
	sweeper := NewExpirySweeper(bookings, 10*time.Millisecond, func() time.Time { return day })

	sweeper.Start(context.Background())
	sweeper.Start(context.Background())

	assert.Eventually(t, func() bool {
		bookings.mu.Lock()
		defer bookings.mu.Unlock()
		return len(bookings.completed) > 0
	}, time.Second, 5*time.Millisecond)

	sweeper.Stop()
	sweeper.Stop()
}
