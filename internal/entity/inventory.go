package entity

import (
	"strings"
	"time"
)

type City struct {
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Area names are unique per city; the same name may exist in several cities.
type Area struct {
	City      string    `json:"city" db:"city"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

func NormalizeName(s string) string {
	return strings.TrimSpace(s)
}
