package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/parking/internal/database"
	"github.com/ds124wfegd/parking/internal/entity"
)

type userRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewUserRepository(db *sql.DB, now func() time.Time) database.UserRepository {
	return &userRepository{db: db, now: now}
}

const userColumns = `id, name, email, password_hash, phone, vehicle_no, car_type, role, created_at`

func (r *userRepository) Create(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, phone, vehicle_no, car_type, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	user.CreatedAt = r.now()
	err := r.db.QueryRowContext(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Phone,
		user.VehicleNo,
		user.CarType,
		user.Role,
		user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return entity.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) get(ctx context.Context, where string, arg any) (*entity.User, error) {
	var user entity.User
	err := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Phone,
		&user.VehicleNo,
		&user.CarType,
		&user.Role,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.get(ctx, "LOWER(email) = LOWER($1)", email)
}
