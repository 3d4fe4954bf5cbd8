package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/parking/internal/database"
	"github.com/ds124wfegd/parking/internal/entity"
	"github.com/ds124wfegd/parking/pkg/lock"
)

const (
	MaxExtraHours     = 24
	MaxCancelReason   = 500
	paymentStatusPaid = "SUCCESS"
)

type bookingService struct {
	bookingRepo database.BookingRepository
	reportCache database.ReportCache
	locker      lock.Locker
	events      EventPublisher
	now         func() time.Time
}

// NewBookingService wires the lifecycle engine. reportCache may be nil.
func NewBookingService(
	repos *database.Repositories,
	reportCache database.ReportCache,
	locker lock.Locker,
	events EventPublisher,
	now func() time.Time,
) BookingService {
	if events == nil {
		events = NopPublisher
	}
	if now == nil {
		now = time.Now
	}
	return &bookingService{
		bookingRepo: repos.Bookings,
		reportCache: reportCache,
		locker:      locker,
		events:      events,
		now:         now,
	}
}

// CreateBooking reserves a slot for the caller. Both preconditions (no other
// active booking for the user, slot bookable) are re-checked by the repository
// in the same transaction that occupies the slot.
func (s *bookingService) CreateBooking(ctx context.Context, caller entity.Identity, req *CreateBookingRequest) (*entity.BookingReceipt, error) {
	// Валидация запроса
	if req.SlotID <= 0 || req.FromTime.IsZero() || req.ToTime.IsZero() || strings.TrimSpace(req.PaymentMethod) == "" {
		return nil, entity.Validation("slotId, fromTime, toTime and paymentMethod are required")
	}
	if !req.ToTime.After(req.FromTime.Time) {
		return nil, entity.ErrInvalidTimeRange
	}
	method, err := entity.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	// Блокируем пользователя и место, порядок ключей всегда один
	release, err := acquire(ctx, s.locker, userLockKey(caller.UserID), slotLockKey(req.SlotID))
	if err != nil {
		return nil, err
	}
	defer release()

	// Создание бронирования, сумма считается в репозитории по цене места
	booking := &entity.Booking{
		UserID:        caller.UserID,
		SlotID:        req.SlotID,
		StartTime:     req.FromTime.Time,
		EndTime:       req.ToTime.Time,
		PaymentMethod: method,
	}
	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	// Оплата имитируется и всегда проходит
	receipt := &entity.BookingReceipt{
		Booking: booking,
		Payment: entity.PaymentResult{
			Status:    paymentStatusPaid,
			Mock:      true,
			Reference: "PAY-" + uuid.NewString(),
			Method:    method,
			Amount:    booking.Amount,
		},
	}

	logrus.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"slot_id":    booking.SlotID,
		"user_id":    booking.UserID,
		"hours":      booking.Hours,
		"amount":     booking.Amount,
	}).Info("Booking created")

	s.afterWrite(ctx, entity.BookingEventCreated, booking)
	return receipt, nil
}

func (s *bookingService) ExtendBooking(ctx context.Context, caller entity.Identity, bookingID int64, extraHours int) (*entity.Booking, error) {
	if extraHours < 1 || extraHours > MaxExtraHours {
		return nil, entity.ErrInvalidExtraHours
	}

	// Проверка владельца бронирования
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != caller.UserID && !caller.IsAdmin() {
		return nil, entity.ErrNotBookingOwner
	}

	release, err := acquire(ctx, s.locker, userLockKey(booking.UserID), slotLockKey(booking.SlotID))
	if err != nil {
		return nil, err
	}
	defer release()

	// Статус и пересечения проверяются повторно внутри транзакции
	booking, err = s.bookingRepo.Extend(ctx, bookingID, extraHours)
	if err != nil {
		return nil, fmt.Errorf("failed to extend booking: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"slot_id":     booking.SlotID,
		"user_id":     booking.UserID,
		"extra_hours": extraHours,
		"end_time":    booking.EndTime,
	}).Info("Booking extended")

	s.afterWrite(ctx, entity.BookingEventExtended, booking)
	return booking, nil
}

// CancelBooking отменяет бронирование владельца
func (s *bookingService) CancelBooking(ctx context.Context, caller entity.Identity, bookingID int64, reason string) (*entity.Booking, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > MaxCancelReason {
		return nil, entity.Validation("reason must be at most %d characters", MaxCancelReason)
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != caller.UserID {
		return nil, entity.ErrNotBookingOwner
	}
	return s.cancel(ctx, booking, reason, caller)
}

// AdminCancelBooking отменяет любое бронирование, причина обязательна
func (s *bookingService) AdminCancelBooking(ctx context.Context, caller entity.Identity, bookingID int64, reason string) (*entity.Booking, error) {
	if !caller.IsAdmin() {
		return nil, entity.ErrAdminOnly
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, entity.ErrReasonRequired
	}
	if utf8.RuneCountInString(reason) > MaxCancelReason {
		return nil, entity.Validation("reason must be at most %d characters", MaxCancelReason)
	}

	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, booking, reason, caller)
}

// cancel переводит бронирование в CANCELLED и освобождает место
func (s *bookingService) cancel(ctx context.Context, booking *entity.Booking, reason string, caller entity.Identity) (*entity.Booking, error) {
	cancelled, err := s.release(ctx, booking, entity.Release{
		To:     entity.BookingStatusCancelled,
		Reason: reason,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"booking_id": cancelled.ID,
		"slot_id":    cancelled.SlotID,
		"user_id":    cancelled.UserID,
		"by":         caller.UserID,
		"role":       caller.Role,
	}).Info("Booking cancelled")

	s.afterWrite(ctx, entity.BookingEventCancelled, cancelled)
	return cancelled, nil
}

// release is the single path that moves an active booking to a terminal
// status and frees its slot. Cancellation and expiry both go through it.
func (s *bookingService) release(ctx context.Context, booking *entity.Booking, rel entity.Release) (*entity.Booking, error) {
	unlock, err := acquire(ctx, s.locker, userLockKey(booking.UserID), slotLockKey(booking.SlotID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.bookingRepo.Release(ctx, booking.ID, rel)
}

// GetUserBookings возвращает все бронирования пользователя
func (s *bookingService) GetUserBookings(ctx context.Context, userID int64) ([]*entity.BookingView, error) {
	return s.bookingRepo.List(ctx, entity.BookingFilter{UserID: userID})
}

// GetActiveBooking возвращает текущее бронирование пользователя
func (s *bookingService) GetActiveBooking(ctx context.Context, userID int64) (*entity.Booking, error) {
	return s.bookingRepo.GetActiveByUser(ctx, userID)
}

func (s *bookingService) ListBookings(ctx context.Context, filter entity.BookingFilter) ([]*entity.BookingView, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, entity.Validation("limit and offset must not be negative")
	}
	return s.bookingRepo.List(ctx, filter)
}

// GetExpiredBookings возвращает список истекших бронирований
func (s *bookingService) GetExpiredBookings(ctx context.Context, now time.Time) ([]*entity.Booking, error) {
	return s.bookingRepo.GetExpired(ctx, now)
}

// CompleteBooking marks a booking that ended at or before now as completed.
// A booking that was cancelled, completed or extended past now in the
// meantime is reported with an InvalidState error and left untouched.
func (s *bookingService) CompleteBooking(ctx context.Context, bookingID int64, now time.Time) (*entity.Booking, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	completed, err := s.release(ctx, booking, entity.Release{
		To:        entity.BookingStatusCompleted,
		ExpiredBy: now,
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"booking_id": completed.ID,
		"slot_id":    completed.SlotID,
		"user_id":    completed.UserID,
	}).Info("Booking completed")

	s.afterWrite(ctx, entity.BookingEventCompleted, completed)
	return completed, nil
}

// afterWrite runs the side effects of a committed transition. None of them
// can fail the transition itself.
func (s *bookingService) afterWrite(ctx context.Context, eventType entity.BookingEventType, booking *entity.Booking) {
	// Сбрасываем кэш отчетов
	if s.reportCache != nil {
		if err := s.reportCache.Invalidate(ctx); err != nil {
			logrus.WithError(err).Warn("Failed to invalidate report cache")
		}
	}

	// Публикуем событие для уведомлений
	s.events.Publish(ctx, entity.BookingEvent{
		Type:       eventType,
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		SlotID:     booking.SlotID,
		Status:     booking.Status,
		Hours:      booking.Hours,
		Amount:     booking.Amount,
		EndTime:    booking.EndTime,
		Reason:     booking.CancelReason,
		OccurredAt: s.now(),
	})
}

// IsSkippable reports whether a sweeper failure only means another writer
// got to the booking first.
func IsSkippable(err error) bool {
	return errors.Is(err, entity.ErrInvalidState) || errors.Is(err, entity.ErrNotFound)
}
