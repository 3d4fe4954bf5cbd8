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

type cityRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewCityRepository(db *sql.DB, now func() time.Time) database.CityRepository {
	return &cityRepository{db: db, now: now}
}

func (r *cityRepository) Create(ctx context.Context, city *entity.City) error {
	query := `INSERT INTO cities (name, created_at) VALUES ($1, $2)`

	city.CreatedAt = r.now()
	if _, err := r.db.ExecContext(ctx, query, city.Name, city.CreatedAt); err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return entity.ErrCityExists
		}
		return fmt.Errorf("failed to create city: %w", err)
	}
	return nil
}

func (r *cityRepository) GetAll(ctx context.Context) ([]*entity.City, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, created_at FROM cities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cities: %w", err)
	}
	defer rows.Close()

	cities := make([]*entity.City, 0)
	for rows.Next() {
		var city entity.City
		if err := rows.Scan(&city.Name, &city.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan city: %w", err)
		}
		cities = append(cities, &city)
	}
	return cities, rows.Err()
}

// Delete locks every slot of the city before checking occupancy, so a booking
// cannot land on a slot between the check and the cascade.
func (r *cityRepository) Delete(ctx context.Context, name string) error {
	return deleteScope(ctx, r.db, "city = $1", []any{name},
		`DELETE FROM cities WHERE name = $1`, entity.ErrCityNotFound)
}

type areaRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAreaRepository(db *sql.DB, now func() time.Time) database.AreaRepository {
	return &areaRepository{db: db, now: now}
}

func (r *areaRepository) Create(ctx context.Context, area *entity.Area) error {
	query := `
		INSERT INTO areas (city, name, created_at)
		SELECT $1, $2, $3
		WHERE EXISTS (SELECT 1 FROM cities WHERE name = $1)
	`

	area.CreatedAt = r.now()
	res, err := r.db.ExecContext(ctx, query, area.City, area.Name, area.CreatedAt)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return entity.ErrAreaExists
		}
		return fmt.Errorf("failed to create area: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entity.ErrUnknownCity
	}
	return nil
}

func (r *areaRepository) GetAll(ctx context.Context, city string) ([]*entity.Area, error) {
	query := `SELECT city, name, created_at FROM areas`
	var args []any
	if city != "" {
		query += ` WHERE city = $1`
		args = append(args, city)
	}
	query += ` ORDER BY city, name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query areas: %w", err)
	}
	defer rows.Close()

	areas := make([]*entity.Area, 0)
	for rows.Next() {
		var area entity.Area
		if err := rows.Scan(&area.City, &area.Name, &area.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan area: %w", err)
		}
		areas = append(areas, &area)
	}
	return areas, rows.Err()
}

func (r *areaRepository) Delete(ctx context.Context, city, name string) error {
	return deleteScope(ctx, r.db, "city = $1 AND area = $2", []any{city, name},
		`DELETE FROM areas WHERE city = $1 AND name = $2`, entity.ErrAreaNotFound)
}

// deleteScope removes a city or an area together with its slots (through the
// ON DELETE CASCADE keys) unless one of those slots is booked.
func deleteScope(ctx context.Context, db *sql.DB, slotCond string, args []any, deleteQuery string, notFound error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT is_booked FROM slots WHERE `+slotCond+` FOR UPDATE`, args...)
	if err != nil {
		return fmt.Errorf("failed to lock slots: %w", err)
	}
	occupied := false
	for rows.Next() {
		var booked bool
		if err := rows.Scan(&booked); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan slot: %w", err)
		}
		occupied = occupied || booked
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if occupied {
		return entity.ErrSlotOccupied
	}

	res, err := tx.ExecContext(ctx, deleteQuery, args...)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type slotRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSlotRepository(db *sql.DB, now func() time.Time) database.SlotRepository {
	return &slotRepository{db: db, now: now}
}

const slotColumns = `id, city, area, slot_no, price_per_hour, is_enabled, is_booked, status, created_at, updated_at`

func scanSlot(row rowScanner) (*entity.Slot, error) {
	var slot entity.Slot
	err := row.Scan(
		&slot.ID,
		&slot.City,
		&slot.Area,
		&slot.SlotNo,
		&slot.PricePerHour,
		&slot.IsEnabled,
		&slot.IsBooked,
		&slot.Status,
		&slot.CreatedAt,
		&slot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *slotRepository) Create(ctx context.Context, slot *entity.Slot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var cityExists, areaExists bool
	err = tx.QueryRowContext(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM cities WHERE name = $1),
			EXISTS(SELECT 1 FROM areas WHERE city = $1 AND name = $2)
	`, slot.City, slot.Area).Scan(&cityExists, &areaExists)
	if err != nil {
		return fmt.Errorf("failed to check slot location: %w", err)
	}
	if !cityExists {
		return entity.ErrUnknownCity
	}
	if !areaExists {
		return entity.ErrUnknownArea
	}

	query := `
		INSERT INTO slots (
			city, area, slot_no, price_per_hour, is_enabled,
			is_booked, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	now := r.now()
	err = tx.QueryRowContext(ctx, query,
		slot.City,
		slot.Area,
		slot.SlotNo,
		slot.PricePerHour,
		slot.IsEnabled,
		slot.IsBooked,
		slot.Status,
		now,
		now,
	).Scan(&slot.ID)
	if err != nil {
		if mapped := mapUniqueViolation(err, entity.ErrSlotExists); mapped != err {
			return mapped
		}
		return fmt.Errorf("failed to create slot: %w", err)
	}
	slot.CreatedAt = now
	slot.UpdatedAt = now

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *slotRepository) GetByID(ctx context.Context, id int64) (*entity.Slot, error) {
	slot, err := scanSlot(r.db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return slot, nil
}

func (r *slotRepository) GetAll(ctx context.Context, filter entity.SlotFilter) ([]*entity.Slot, error) {
	var (
		conds []string
		args  []any
	)
	if filter.City != "" {
		args = append(args, filter.City)
		conds = append(conds, fmt.Sprintf("city = $%d", len(args)))
	}
	if filter.Area != "" {
		args = append(args, filter.Area)
		conds = append(conds, fmt.Sprintf("area = $%d", len(args)))
	}

	query := `SELECT ` + slotColumns + ` FROM slots`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()

	slots := make([]*entity.Slot, 0)
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func (r *slotRepository) Update(ctx context.Context, id int64, mutate func(slot *entity.Slot) error) (*entity.Slot, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	slot, err := scanSlot(tx.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock slot: %w", err)
	}

	booked := slot.IsBooked
	if err := mutate(slot); err != nil {
		return nil, err
	}
	slot.IsBooked = booked
	slot.UpdatedAt = r.now()

	query := `
		UPDATE slots
		SET is_enabled = $1, status = $2, price_per_hour = $3, updated_at = $4
		WHERE id = $5
	`
	if _, err := tx.ExecContext(ctx, query, slot.IsEnabled, slot.Status, slot.PricePerHour, slot.UpdatedAt, id); err != nil {
		return nil, fmt.Errorf("failed to update slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return slot, nil
}

func (r *slotRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var booked bool
	err = tx.QueryRowContext(ctx, `SELECT is_booked FROM slots WHERE id = $1 FOR UPDATE`, id).Scan(&booked)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ErrSlotNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock slot: %w", err)
	}
	if booked {
		return entity.ErrSlotOccupied
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
