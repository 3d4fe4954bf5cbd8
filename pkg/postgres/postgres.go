package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ds124wfegd/parking/config"
	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Successfully connected to PostgreSQL")
	return db, nil
}

// Constraint names are matched by the repositories when translating unique
// violations into domain errors.
const (
	ConstraintActiveBookingPerUser = "idx_bookings_active_user"
	ConstraintActiveBookingPerSlot = "idx_bookings_active_slot"
	ConstraintSlotNumber           = "slots_city_area_slot_no_key"
	ConstraintUserEmail            = "idx_users_email"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS cities (
		name VARCHAR(255) PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS areas (
		city VARCHAR(255) NOT NULL REFERENCES cities(name) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (city, name)
	)`,

	`CREATE TABLE IF NOT EXISTS slots (
		id BIGSERIAL PRIMARY KEY,
		city VARCHAR(255) NOT NULL,
		area VARCHAR(255) NOT NULL,
		slot_no VARCHAR(64) NOT NULL,
		price_per_hour DOUBLE PRECISION NOT NULL CHECK (price_per_hour >= 0),
		is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		is_booked BOOLEAN NOT NULL DEFAULT FALSE,
		status VARCHAR(32) NOT NULL DEFAULT 'WORKING',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT slots_city_area_slot_no_key UNIQUE (city, area, slot_no),
		FOREIGN KEY (city, area) REFERENCES areas(city, name) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		phone VARCHAR(32) NOT NULL DEFAULT '',
		vehicle_no VARCHAR(32) NOT NULL DEFAULT '',
		car_type VARCHAR(64) NOT NULL DEFAULT '',
		role VARCHAR(16) NOT NULL DEFAULT 'USER',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// No foreign key on slot_id: bookings outlive the slots they reference.
	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		slot_id BIGINT NOT NULL,
		hours INTEGER NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		payment_method VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'BOOKED',
		cancel_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (end_time > start_time)
	)`,

	// Indexes
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (LOWER(email))`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_user ON bookings(user_id) WHERE status IN ('BOOKED', 'EXTENDED')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_slot ON bookings(slot_id) WHERE status IN ('BOOKED', 'EXTENDED')`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_status_end ON bookings(status, end_time)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_created_at ON bookings(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_slots_city_area ON slots(city, area)`,
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}
