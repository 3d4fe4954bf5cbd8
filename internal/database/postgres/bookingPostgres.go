package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ds124wfegd/parking/internal/database"
	"github.com/ds124wfegd/parking/internal/entity"
)

type bookingRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewBookingRepository(db *sql.DB, now func() time.Time) database.BookingRepository {
	return &bookingRepository{db: db, now: now}
}

const bookingColumns = `id, user_id, slot_id, hours, amount, start_time, end_time,
	payment_method, status, cancel_reason, created_at, updated_at`

const activeStatuses = `('BOOKED', 'EXTENDED')`

func scanBooking(row rowScanner) (*entity.Booking, error) {
	var booking entity.Booking
	err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.SlotID,
		&booking.Hours,
		&booking.Amount,
		&booking.StartTime,
		&booking.EndTime,
		&booking.PaymentMethod,
		&booking.Status,
		&booking.CancelReason,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// Create re-checks both booking preconditions inside one transaction. The
// per-user advisory lock serializes concurrent requests from the same user,
// the slot row lock serializes requests for the same slot, and the partial
// unique indexes back both up.
func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, booking.UserID); err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}

	// Check if user already has an active booking
	var active bool
	query := `SELECT EXISTS(SELECT 1 FROM bookings WHERE user_id = $1 AND status IN ` + activeStatuses + `)`
	if err := tx.QueryRowContext(ctx, query, booking.UserID).Scan(&active); err != nil {
		return fmt.Errorf("failed to check active bookings: %w", err)
	}
	if active {
		return entity.ErrActiveBookingExists
	}

	// Lock the slot row and validate it is bookable
	slot, err := scanSlot(tx.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, booking.SlotID))
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrSlotNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock slot: %w", err)
	}
	if !slot.Bookable() {
		return entity.ErrSlotUnavailable
	}

	// Create booking
	booking.Price(slot)
	booking.Status = entity.BookingStatusBooked
	now := r.now()

	query = `
		INSERT INTO bookings (
			user_id, slot_id, hours, amount, start_time, end_time,
			payment_method, status, cancel_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', $9, $10)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, query,
		booking.UserID,
		booking.SlotID,
		booking.Hours,
		booking.Amount,
		booking.StartTime,
		booking.EndTime,
		booking.PaymentMethod,
		booking.Status,
		now,
		now,
	).Scan(&booking.ID)
	if err != nil {
		if mapped := mapUniqueViolation(err, entity.ErrSlotUnavailable); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	// Mark the slot as occupied
	if _, err := tx.ExecContext(ctx, `UPDATE slots SET is_booked = TRUE, updated_at = $1 WHERE id = $2`, now, slot.ID); err != nil {
		return fmt.Errorf("failed to occupy slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	booking.CreatedAt = now
	booking.UpdatedAt = now
	return nil
}

// GetByID retrieves a booking by its ID
func (r *bookingRepository) GetByID(ctx context.Context, id int64) (*entity.Booking, error) {
	booking, err := scanBooking(r.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// GetActiveByUser retrieves the BOOKED or EXTENDED booking of a user
func (r *bookingRepository) GetActiveByUser(ctx context.Context, userID int64) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 AND status IN ` + activeStatuses + ` LIMIT 1`

	booking, err := scanBooking(r.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active booking: %w", err)
	}
	return booking, nil
}

// getWithLock reads a booking with a row lock inside tx.
func getWithLock(ctx context.Context, tx *sql.Tx, id int64) (*entity.Booking, error) {
	booking, err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return booking, nil
}

func (r *bookingRepository) Extend(ctx context.Context, id int64, extraHours int) (*entity.Booking, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	booking, err := getWithLock(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !booking.Status.IsActive() {
		return nil, entity.ErrBookingNotActive
	}

	// Extra hours are charged at the current slot price; a deleted slot keeps the booked rate
	rate := booking.HourlyRate()
	err = tx.QueryRowContext(ctx, `SELECT price_per_hour FROM slots WHERE id = $1`, booking.SlotID).Scan(&rate)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get slot rate: %w", err)
	}

	booking.Extend(extraHours, rate)
	booking.UpdatedAt = r.now()

	query := `
		UPDATE bookings
		SET hours = $1, amount = $2, end_time = $3, status = $4, updated_at = $5
		WHERE id = $6
	`
	_, err = tx.ExecContext(ctx, query,
		booking.Hours,
		booking.Amount,
		booking.EndTime,
		booking.Status,
		booking.UpdatedAt,
		booking.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to extend booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return booking, nil
}

func (r *bookingRepository) Release(ctx context.Context, id int64, release entity.Release) (*entity.Booking, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	booking, err := getWithLock(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !booking.Status.IsActive() {
		return nil, entity.ErrBookingNotActive
	}
	// An expiry must not complete a booking extended since the scan
	if !release.ExpiredBy.IsZero() && booking.EndTime.After(release.ExpiredBy) {
		return nil, entity.ErrBookingNotExpired
	}

	booking.Status = release.To
	booking.CancelReason = release.Reason
	booking.UpdatedAt = r.now()

	// Update the status
	query := `UPDATE bookings SET status = $1, cancel_reason = $2, updated_at = $3 WHERE id = $4`
	if _, err := tx.ExecContext(ctx, query, booking.Status, booking.CancelReason, booking.UpdatedAt, booking.ID); err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	// The slot may have been deleted; zero affected rows is fine.
	query = `UPDATE slots SET is_booked = FALSE, updated_at = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, booking.UpdatedAt, booking.SlotID); err != nil {
		return nil, fmt.Errorf("failed to release slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return booking, nil
}

// GetExpired retrieves active bookings that ended at or before now
func (r *bookingRepository) GetExpired(ctx context.Context, now time.Time) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status IN ` + activeStatuses + ` AND end_time <= $1
		ORDER BY end_time
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	return bookings, rows.Err()
}

func (r *bookingRepository) List(ctx context.Context, filter entity.BookingFilter) ([]*entity.BookingView, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.UserID != 0 {
		add("b.user_id = $%d", filter.UserID)
	}
	if filter.SlotID != 0 {
		add("b.slot_id = $%d", filter.SlotID)
	}
	if filter.Status != "" {
		add("b.status = $%d", filter.Status)
	}
	if filter.City != "" {
		add("s.city = $%d", filter.City)
	}
	if filter.Area != "" {
		add("s.area = $%d", filter.Area)
	}
	if filter.MinAmount != nil {
		add("b.amount >= $%d", *filter.MinAmount)
	}
	if filter.StartFrom != nil {
		add("b.start_time >= $%d", *filter.StartFrom)
	}
	if filter.StartTo != nil {
		add("b.start_time <= $%d", *filter.StartTo)
	}
	if filter.CreatedFrom != nil {
		add("b.created_at >= $%d", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		add("b.created_at <= $%d", *filter.CreatedTo)
	}

	query := `
		SELECT
			b.id, b.user_id, b.slot_id, b.hours, b.amount, b.start_time, b.end_time,
			b.payment_method, b.status, b.cancel_reason, b.created_at, b.updated_at,
			s.id, s.city, s.area, s.slot_no, s.price_per_hour, s.is_enabled,
			s.is_booked, s.status, s.created_at, s.updated_at,
			COALESCE(u.email, ''), COALESCE(u.role, '')
		FROM bookings b
		LEFT JOIN slots s ON s.id = b.slot_id
		LEFT JOIN users u ON u.id = b.user_id
	`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY b.created_at DESC, b.id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	views := make([]*entity.BookingView, 0)
	for rows.Next() {
		var (
			b    entity.Booking
			s    nullSlot
			view entity.BookingView
		)
		err := rows.Scan(
			&b.ID, &b.UserID, &b.SlotID, &b.Hours, &b.Amount, &b.StartTime, &b.EndTime,
			&b.PaymentMethod, &b.Status, &b.CancelReason, &b.CreatedAt, &b.UpdatedAt,
			&s.ID, &s.City, &s.Area, &s.SlotNo, &s.PricePerHour, &s.IsEnabled,
			&s.IsBooked, &s.Status, &s.CreatedAt, &s.UpdatedAt,
			&view.UserEmail, &view.UserRole,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		view.Booking = &b
		view.Slot = s.slot()
		views = append(views, &view)
	}
	return views, rows.Err()
}

// nullSlot receives the LEFT JOINed slot columns of a booking whose slot may
// have been deleted.
type nullSlot struct {
	ID           sql.NullInt64
	City         sql.NullString
	Area         sql.NullString
	SlotNo       sql.NullString
	PricePerHour sql.NullFloat64
	IsEnabled    sql.NullBool
	IsBooked     sql.NullBool
	Status       sql.NullString
	CreatedAt    sql.NullTime
	UpdatedAt    sql.NullTime
}

func (n nullSlot) slot() *entity.Slot {
	if !n.ID.Valid {
		return nil
	}
	return &entity.Slot{
		ID:           n.ID.Int64,
		City:         n.City.String,
		Area:         n.Area.String,
		SlotNo:       n.SlotNo.String,
		PricePerHour: n.PricePerHour.Float64,
		IsEnabled:    n.IsEnabled.Bool,
		IsBooked:     n.IsBooked.Bool,
		Status:       entity.SlotStatus(n.Status.String),
		CreatedAt:    n.CreatedAt.Time,
		UpdatedAt:    n.UpdatedAt.Time,
	}
}
