package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/ds124wfegd/parking/internal/database"
	"github.com/ds124wfegd/parking/internal/entity"
	pkgpostgres "github.com/ds124wfegd/parking/pkg/postgres"
)

const uniqueViolation = "23505"

// NewRepositories builds every postgres repository around one *sql.DB.
// now stamps created/updated columns so that tests can pin the clock.
func NewRepositories(db *sql.DB, now func() time.Time) *database.Repositories {
	if now == nil {
		now = time.Now
	}
	return &database.Repositories{
		Cities:   NewCityRepository(db, now),
		Areas:    NewAreaRepository(db, now),
		Slots:    NewSlotRepository(db, now),
		Bookings: NewBookingRepository(db, now),
		Users:    NewUserRepository(db, now),
	}
}

// uniqueConstraint returns the violated constraint name if err is a unique
// violation.
func uniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

// mapUniqueViolation translates unique violations raised by the partial
// indexes and unique keys into domain errors. Other errors pass through.
func mapUniqueViolation(err error, fallback error) error {
	constraint, ok := uniqueConstraint(err)
	if !ok {
		return err
	}
	switch constraint {
	case pkgpostgres.ConstraintActiveBookingPerUser:
		return entity.ErrActiveBookingExists
	case pkgpostgres.ConstraintActiveBookingPerSlot:
		return entity.ErrSlotUnavailable
	case pkgpostgres.ConstraintSlotNumber:
		return entity.ErrSlotExists
	case pkgpostgres.ConstraintUserEmail:
		return entity.ErrUserAlreadyExists
	}
	return fallback
}

type rowScanner interface {
	Scan(dest ...any) error
}
