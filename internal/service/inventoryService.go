package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/parking/internal/database"
	"github.com/ds124wfegd/parking/internal/entity"
	"github.com/ds124wfegd/parking/pkg/lock"
)

type inventoryService struct {
	cityRepo database.CityRepository
	areaRepo database.AreaRepository
	slotRepo database.SlotRepository
	locker   lock.Locker
}

func NewInventoryService(repos *database.Repositories, locker lock.Locker) InventoryService {
	return &inventoryService{
		cityRepo: repos.Cities,
		areaRepo: repos.Areas,
		slotRepo: repos.Slots,
		locker:   locker,
	}
}

func (s *inventoryService) CreateCity(ctx context.Context, name string) (*entity.City, error) {
	city := &entity.City{Name: entity.NormalizeName(name)}
	if city.Name == "" {
		return nil, entity.Validation("city name is required")
	}

	if err := s.cityRepo.Create(ctx, city); err != nil {
		return nil, fmt.Errorf("failed to create city: %w", err)
	}

	logrus.WithField("city", city.Name).Info("City created")
	return city, nil
}

func (s *inventoryService) ListCities(ctx context.Context) ([]*entity.City, error) {
	return s.cityRepo.GetAll(ctx)
}

func (s *inventoryService) DeleteCity(ctx context.Context, name string) error {
	name = entity.NormalizeName(name)
	if err := s.cityRepo.Delete(ctx, name); err != nil {
		return fmt.Errorf("failed to delete city: %w", err)
	}

	logrus.WithField("city", name).Info("City deleted with its areas and slots")
	return nil
}

func (s *inventoryService) CreateArea(ctx context.Context, req *CreateAreaRequest) (*entity.Area, error) {
	area := &entity.Area{
		City: entity.NormalizeName(req.City),
		Name: entity.NormalizeName(req.Name),
	}
	if area.City == "" || area.Name == "" {
		return nil, entity.Validation("city and area name are required")
	}

	if err := s.areaRepo.Create(ctx, area); err != nil {
		return nil, fmt.Errorf("failed to create area: %w", err)
	}

	logrus.WithFields(logrus.Fields{"city": area.City, "area": area.Name}).Info("Area created")
	return area, nil
}

func (s *inventoryService) ListAreas(ctx context.Context, city string) ([]*entity.Area, error) {
	return s.areaRepo.GetAll(ctx, entity.NormalizeName(city))
}

func (s *inventoryService) DeleteArea(ctx context.Context, city, name string) error {
	city, name = entity.NormalizeName(city), entity.NormalizeName(name)
	if err := s.areaRepo.Delete(ctx, city, name); err != nil {
		return fmt.Errorf("failed to delete area: %w", err)
	}

	logrus.WithFields(logrus.Fields{"city": city, "area": name}).Info("Area deleted with its slots")
	return nil
}

func (s *inventoryService) CreateSlot(ctx context.Context, req *CreateSlotRequest) (*entity.Slot, error) {
	if req.PricePerHour == nil {
		return nil, entity.ErrMissingSlotData
	}
	if *req.PricePerHour < 0 {
		return nil, entity.Validation("price per hour must not be negative")
	}

	slot := entity.NewSlot(req.City, req.Area, req.SlotNo, *req.PricePerHour)
	if slot.City == "" || slot.Area == "" || slot.SlotNo == "" {
		return nil, entity.ErrMissingSlotData
	}
	if req.Status != "" {
		status, err := entity.ParseSlotStatus(req.Status)
		if err != nil {
			return nil, err
		}
		slot.ApplyStatus(status)
	}

	if err := s.slotRepo.Create(ctx, slot); err != nil {
		return nil, fmt.Errorf("failed to create slot: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"slot_id": slot.ID,
		"city":    slot.City,
		"area":    slot.Area,
		"slot_no": slot.SlotNo,
	}).Info("Slot created")
	return slot, nil
}

func (s *inventoryService) GetSlot(ctx context.Context, id int64) (*entity.Slot, error) {
	return s.slotRepo.GetByID(ctx, id)
}

func (s *inventoryService) ListSlots(ctx context.Context, filter entity.SlotFilter) ([]*entity.SlotView, error) {
	filter.City = entity.NormalizeName(filter.City)
	filter.Area = entity.NormalizeName(filter.Area)

	slots, err := s.slotRepo.GetAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}

	views := make([]*entity.SlotView, 0, len(slots))
	for _, slot := range slots {
		views = append(views, &entity.SlotView{Slot: slot, Bookable: slot.Bookable()})
	}
	return views, nil
}

func (s *inventoryService) ToggleSlot(ctx context.Context, id int64) (*entity.Slot, error) {
	return s.updateSlot(ctx, id, "toggle", func(slot *entity.Slot) error {
		slot.Toggle()
		return nil
	})
}

func (s *inventoryService) SetSlotStatus(ctx context.Context, id int64, status string) (*entity.Slot, error) {
	parsed, err := entity.ParseSlotStatus(status)
	if err != nil {
		return nil, err
	}
	return s.updateSlot(ctx, id, "set_status", func(slot *entity.Slot) error {
		slot.ApplyStatus(parsed)
		return nil
	})
}

// updateSlot runs an admin mutation under the slot lock, the same lock booking
// creation takes, so the two never interleave.
func (s *inventoryService) updateSlot(ctx context.Context, id int64, op string, mutate func(*entity.Slot) error) (*entity.Slot, error) {
	release, err := acquire(ctx, s.locker, slotLockKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	slot, err := s.slotRepo.Update(ctx, id, mutate)
	if err != nil {
		return nil, fmt.Errorf("failed to update slot: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"slot_id":    slot.ID,
		"op":         op,
		"status":     slot.Status,
		"is_enabled": slot.IsEnabled,
		"is_booked":  slot.IsBooked,
	}).Info("Slot updated")
	return slot, nil
}

func (s *inventoryService) DeleteSlot(ctx context.Context, id int64) error {
	release, err := acquire(ctx, s.locker, slotLockKey(id))
	if err != nil {
		return err
	}
	defer release()

	if err := s.slotRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}

	logrus.WithField("slot_id", id).Info("Slot deleted")
	return nil
}
