package entity

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Phone        string    `json:"phone,omitempty" db:"phone"`
	VehicleNo    string    `json:"vehicleNo,omitempty" db:"vehicle_no"`
	CarType      string    `json:"carType,omitempty" db:"car_type"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Identity is the authenticated caller as seen by the services.
type Identity struct {
	UserID int64 `json:"userId"`
	Role   Role  `json:"role"`
}

func (i Identity) HasRole(role Role) bool {
	return i.Role == role
}

func (i Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}
