// Package memory keeps every collection in process memory behind one mutex.
// It is used for local development (storage.driver: memory) and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ds124wfegd/parking/internal/database"
	"github.com/ds124wfegd/parking/internal/entity"
)

type areaKey struct {
	city string
	name string
}

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	cities   map[string]*entity.City
	areas    map[areaKey]*entity.Area
	slots    map[int64]*entity.Slot
	bookings map[int64]*entity.Booking
	users    map[int64]*entity.User

	nextSlotID    int64
	nextBookingID int64
	nextUserID    int64
}

func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:      now,
		cities:   make(map[string]*entity.City),
		areas:    make(map[areaKey]*entity.Area),
		slots:    make(map[int64]*entity.Slot),
		bookings: make(map[int64]*entity.Booking),
		users:    make(map[int64]*entity.User),
	}
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() *database.Repositories {
	return &database.Repositories{
		Cities:   &cityRepository{s},
		Areas:    &areaRepository{s},
		Slots:    &slotRepository{s},
		Bookings: &bookingRepository{s},
		Users:    &userRepository{s},
	}
}

func copySlot(s *entity.Slot) *entity.Slot {
	c := *s
	return &c
}

func copyBooking(b *entity.Booking) *entity.Booking {
	c := *b
	return &c
}

// ---------- cities ----------

type cityRepository struct{ s *Store }

func (r *cityRepository) Create(_ context.Context, city *entity.City) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.cities[city.Name]; ok {
		return entity.ErrCityExists
	}
	city.CreatedAt = r.s.now()
	c := *city
	r.s.cities[city.Name] = &c
	return nil
}

func (r *cityRepository) GetAll(_ context.Context) ([]*entity.City, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cities := make([]*entity.City, 0, len(r.s.cities))
	for _, c := range r.s.cities {
		cc := *c
		cities = append(cities, &cc)
	}
	sort.Slice(cities, func(i, j int) bool { return cities[i].Name < cities[j].Name })
	return cities, nil
}

func (r *cityRepository) Delete(_ context.Context, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.cities[name]; !ok {
		return entity.ErrCityNotFound
	}
	if r.s.occupiedLocked(func(slot *entity.Slot) bool { return slot.City == name }) {
		return entity.ErrSlotOccupied
	}

	delete(r.s.cities, name)
	for key := range r.s.areas {
		if key.city == name {
			delete(r.s.areas, key)
		}
	}
	for id, slot := range r.s.slots {
		if slot.City == name {
			delete(r.s.slots, id)
		}
	}
	return nil
}

func (s *Store) occupiedLocked(match func(*entity.Slot) bool) bool {
	for _, slot := range s.slots {
		if match(slot) && slot.IsBooked {
			return true
		}
	}
	return false
}

// ---------- areas ----------

type areaRepository struct{ s *Store }

func (r *areaRepository) Create(_ context.Context, area *entity.Area) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.cities[area.City]; !ok {
		return entity.ErrUnknownCity
	}
	key := areaKey{area.City, area.Name}
	if _, ok := r.s.areas[key]; ok {
		return entity.ErrAreaExists
	}
	area.CreatedAt = r.s.now()
	a := *area
	r.s.areas[key] = &a
	return nil
}

func (r *areaRepository) GetAll(_ context.Context, city string) ([]*entity.Area, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	areas := make([]*entity.Area, 0, len(r.s.areas))
	for _, a := range r.s.areas {
		if city != "" && a.City != city {
			continue
		}
		aa := *a
		areas = append(areas, &aa)
	}
	sort.Slice(areas, func(i, j int) bool {
		if areas[i].City != areas[j].City {
			return areas[i].City < areas[j].City
		}
		return areas[i].Name < areas[j].Name
	})
	return areas, nil
}

func (r *areaRepository) Delete(_ context.Context, city, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := areaKey{city, name}
	if _, ok := r.s.areas[key]; !ok {
		return entity.ErrAreaNotFound
	}
	inArea := func(slot *entity.Slot) bool { return slot.City == city && slot.Area == name }
	if r.s.occupiedLocked(inArea) {
		return entity.ErrSlotOccupied
	}

	delete(r.s.areas, key)
	for id, slot := range r.s.slots {
		if inArea(slot) {
			delete(r.s.slots, id)
		}
	}
	return nil
}

// ---------- slots ----------

type slotRepository struct{ s *Store }

func (r *slotRepository) Create(_ context.Context, slot *entity.Slot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.cities[slot.City]; !ok {
		return entity.ErrUnknownCity
	}
	if _, ok := r.s.areas[areaKey{slot.City, slot.Area}]; !ok {
		return entity.ErrUnknownArea
	}
	for _, existing := range r.s.slots {
		if existing.City == slot.City && existing.Area == slot.Area && existing.SlotNo == slot.SlotNo {
			return entity.ErrSlotExists
		}
	}

	r.s.nextSlotID++
	now := r.s.now()
	slot.ID = r.s.nextSlotID
	slot.CreatedAt = now
	slot.UpdatedAt = now
	r.s.slots[slot.ID] = copySlot(slot)
	return nil
}

func (r *slotRepository) GetByID(_ context.Context, id int64) (*entity.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	slot, ok := r.s.slots[id]
	if !ok {
		return nil, entity.ErrSlotNotFound
	}
	return copySlot(slot), nil
}

func (r *slotRepository) GetAll(_ context.Context, filter entity.SlotFilter) ([]*entity.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	slots := make([]*entity.Slot, 0, len(r.s.slots))
	for _, slot := range r.s.slots {
		if filter.City != "" && slot.City != filter.City {
			continue
		}
		if filter.Area != "" && slot.Area != filter.Area {
			continue
		}
		slots = append(slots, copySlot(slot))
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].ID < slots[j].ID })
	return slots, nil
}

func (r *slotRepository) Update(_ context.Context, id int64, mutate func(slot *entity.Slot) error) (*entity.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.slots[id]
	if !ok {
		return nil, entity.ErrSlotNotFound
	}
	working := copySlot(current)
	if err := mutate(working); err != nil {
		return nil, err
	}

	current.IsEnabled = working.IsEnabled
	current.Status = working.Status
	current.PricePerHour = working.PricePerHour
	current.UpdatedAt = r.s.now()
	return copySlot(current), nil
}

func (r *slotRepository) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	slot, ok := r.s.slots[id]
	if !ok {
		return entity.ErrSlotNotFound
	}
	if slot.IsBooked {
		return entity.ErrSlotOccupied
	}
	delete(r.s.slots, id)
	return nil
}

// ---------- bookings ----------

type bookingRepository struct{ s *Store }

func (r *bookingRepository) Create(_ context.Context, booking *entity.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, b := range r.s.bookings {
		if b.UserID == booking.UserID && b.Status.IsActive() {
			return entity.ErrActiveBookingExists
		}
	}

	slot, ok := r.s.slots[booking.SlotID]
	if !ok {
		return entity.ErrSlotNotFound
	}
	if !slot.Bookable() {
		return entity.ErrSlotUnavailable
	}

	booking.Price(slot)
	booking.Status = entity.BookingStatusBooked

	r.s.nextBookingID++
	now := r.s.now()
	booking.ID = r.s.nextBookingID
	booking.CreatedAt = now
	booking.UpdatedAt = now
	r.s.bookings[booking.ID] = copyBooking(booking)

	slot.IsBooked = true
	slot.UpdatedAt = now
	return nil
}

func (r *bookingRepository) GetByID(_ context.Context, id int64) (*entity.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, entity.ErrBookingNotFound
	}
	return copyBooking(b), nil
}

func (r *bookingRepository) GetActiveByUser(_ context.Context, userID int64) (*entity.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, b := range r.s.bookings {
		if b.UserID == userID && b.Status.IsActive() {
			return copyBooking(b), nil
		}
	}
	return nil, entity.ErrBookingNotFound
}

func (r *bookingRepository) Extend(_ context.Context, id int64, extraHours int) (*entity.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, entity.ErrBookingNotFound
	}
	if !b.Status.IsActive() {
		return nil, entity.ErrBookingNotActive
	}

	rate := b.HourlyRate()
	if slot, ok := r.s.slots[b.SlotID]; ok {
		rate = slot.PricePerHour
	}
	b.Extend(extraHours, rate)
	b.UpdatedAt = r.s.now()
	return copyBooking(b), nil
}

func (r *bookingRepository) Release(_ context.Context, id int64, release entity.Release) (*entity.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, entity.ErrBookingNotFound
	}
	if !b.Status.IsActive() {
		return nil, entity.ErrBookingNotActive
	}
	if !release.ExpiredBy.IsZero() && b.EndTime.After(release.ExpiredBy) {
		return nil, entity.ErrBookingNotExpired
	}

	now := r.s.now()
	b.Status = release.To
	b.CancelReason = release.Reason
	b.UpdatedAt = now

	if slot, ok := r.s.slots[b.SlotID]; ok {
		slot.IsBooked = false
		slot.UpdatedAt = now
	}
	return copyBooking(b), nil
}

func (r *bookingRepository) GetExpired(_ context.Context, now time.Time) ([]*entity.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var expired []*entity.Booking
	for _, b := range r.s.bookings {
		if b.Status.IsActive() && !b.EndTime.After(now) {
			expired = append(expired, copyBooking(b))
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].EndTime.Before(expired[j].EndTime) })
	return expired, nil
}

func (r *bookingRepository) List(_ context.Context, filter entity.BookingFilter) ([]*entity.BookingView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	views := make([]*entity.BookingView, 0)
	for _, b := range r.s.bookings {
		view := &entity.BookingView{Booking: copyBooking(b)}
		if slot, ok := r.s.slots[b.SlotID]; ok {
			view.Slot = copySlot(slot)
		}
		if user, ok := r.s.users[b.UserID]; ok {
			view.UserEmail = user.Email
			view.UserRole = user.Role
		}
		if matches(filter, view) {
			views = append(views, view)
		}
	}

	sort.Slice(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return views[i].ID > views[j].ID
	})
	return paginate(views, filter.Limit, filter.Offset), nil
}

func matches(f entity.BookingFilter, v *entity.BookingView) bool {
	switch {
	case f.UserID != 0 && v.UserID != f.UserID:
		return false
	case f.SlotID != 0 && v.SlotID != f.SlotID:
		return false
	case f.Status != "" && v.Status != f.Status:
		return false
	case f.City != "" && (v.Slot == nil || v.Slot.City != f.City):
		return false
	case f.Area != "" && (v.Slot == nil || v.Slot.Area != f.Area):
		return false
	case f.MinAmount != nil && v.Amount < *f.MinAmount:
		return false
	case f.StartFrom != nil && v.StartTime.Before(*f.StartFrom):
		return false
	case f.StartTo != nil && v.StartTime.After(*f.StartTo):
		return false
	case f.CreatedFrom != nil && v.CreatedAt.Before(*f.CreatedFrom):
		return false
	case f.CreatedTo != nil && v.CreatedAt.After(*f.CreatedTo):
		return false
	}
	return true
}

func paginate(views []*entity.BookingView, limit, offset int) []*entity.BookingView {
	if offset > 0 {
		if offset >= len(views) {
			return []*entity.BookingView{}
		}
		views = views[offset:]
	}
	if limit > 0 && limit < len(views) {
		views = views[:limit]
	}
	return views
}

// ---------- users ----------

type userRepository struct{ s *Store }

func (r *userRepository) Create(_ context.Context, user *entity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return entity.ErrUserAlreadyExists
		}
	}
	r.s.nextUserID++
	user.ID = r.s.nextUserID
	user.CreatedAt = r.s.now()
	u := *user
	r.s.users[user.ID] = &u
	return nil
}

func (r *userRepository) GetByID(_ context.Context, id int64) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, entity.ErrUserNotFound
	}
	uu := *u
	return &uu, nil
}

func (r *userRepository) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			uu := *u
			return &uu, nil
		}
	}
	return nil, entity.ErrUserNotFound
}

// ---------- report cache ----------

type cachedReport struct {
	report  entity.MonthlyReport
	expires time.Time
}

// ReportCache is the in-process database.ReportCache used when redis is off.
type ReportCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	now        func() time.Time
	generation int64
	reports    map[string]cachedReport
}

func NewReportCache(ttl time.Duration, now func() time.Time) *ReportCache {
	if now == nil {
		now = time.Now
	}
	return &ReportCache{ttl: ttl, now: now, reports: make(map[string]cachedReport)}
}

var _ database.ReportCache = (*ReportCache)(nil)

func (c *ReportCache) Generation(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation, nil
}

func (c *ReportCache) GetMonthly(_ context.Context, generation int64, month string) (*entity.MonthlyReport, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return nil, false, nil
	}
	cached, ok := c.reports[month]
	if !ok || !c.now().Before(cached.expires) {
		delete(c.reports, month)
		return nil, false, nil
	}
	report := cached.report
	return &report, true, nil
}

// SetMonthly drops reports computed under an older generation.
func (c *ReportCache) SetMonthly(_ context.Context, generation int64, report *entity.MonthlyReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return nil
	}
	c.reports[report.Month] = cachedReport{report: *report, expires: c.now().Add(c.ttl)}
	return nil
}

func (c *ReportCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.reports = make(map[string]cachedReport)
	return nil
}
