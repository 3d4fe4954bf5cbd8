package entity

import (
	"strings"
	"time"
)

type SlotStatus string

const (
	SlotStatusWorking           SlotStatus = "WORKING"
	SlotStatusBusy              SlotStatus = "BUSY"
	SlotStatusUnderConstruction SlotStatus = "UNDER_CONSTRUCTION"
)

func ParseSlotStatus(s string) (SlotStatus, error) {
	switch SlotStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case SlotStatusWorking:
		return SlotStatusWorking, nil
	case SlotStatusBusy:
		return SlotStatusBusy, nil
	case SlotStatusUnderConstruction:
		return SlotStatusUnderConstruction, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Slot is a single parking space. IsEnabled and Status are administrative;
// IsBooked (occupancy) is owned by the booking lifecycle and never changed by
// admin operations.
type Slot struct {
	ID           int64      `json:"id" db:"id"`
	City         string     `json:"city" db:"city"`
	Area         string     `json:"area" db:"area"`
	SlotNo       string     `json:"slotNo" db:"slot_no"`
	PricePerHour float64    `json:"pricePerHour" db:"price_per_hour"`
	IsEnabled    bool       `json:"isEnabled" db:"is_enabled"`
	IsBooked     bool       `json:"isBooked" db:"is_booked"`
	Status       SlotStatus `json:"status" db:"status"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

// NewSlot returns a slot with the server side defaults applied.
func NewSlot(city, area, slotNo string, pricePerHour float64) *Slot {
	return &Slot{
		City:         NormalizeName(city),
		Area:         NormalizeName(area),
		SlotNo:       NormalizeName(slotNo),
		PricePerHour: pricePerHour,
		IsEnabled:    true,
		IsBooked:     false,
		Status:       SlotStatusWorking,
	}
}

// Bookable reports whether a user may reserve the slot right now.
func (s *Slot) Bookable() bool {
	return s.IsEnabled && !s.IsBooked && s.Status == SlotStatusWorking
}

// Toggle flips enablement. Disabling forces UNDER_CONSTRUCTION; enabling a slot
// that is under construction brings it back to WORKING, any other status
// (e.g. BUSY) is kept.
func (s *Slot) Toggle() {
	s.IsEnabled = !s.IsEnabled

	if !s.IsEnabled {
		s.Status = SlotStatusUnderConstruction
		return
	}
	if s.Status == SlotStatusUnderConstruction {
		s.Status = SlotStatusWorking
	}
}

// ApplyStatus is the admin override: the status is taken as given and
// enablement follows from it.
func (s *Slot) ApplyStatus(status SlotStatus) {
	s.Status = status

	switch status {
	case SlotStatusUnderConstruction:
		s.IsEnabled = false
	case SlotStatusWorking, SlotStatusBusy:
		s.IsEnabled = true
	}
}

// SlotView is what users see when listing slots.
type SlotView struct {
	*Slot
	Bookable bool `json:"bookable"`
}

type SlotFilter struct {
	City string
	Area string
}
