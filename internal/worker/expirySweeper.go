package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/parking/internal/service"
)

// SweepResult counts what one sweep did.
type SweepResult struct {
	Found     int
	Completed int
	Skipped   int
	Failed    int
}

// ExpirySweeper periodically completes bookings whose end time has passed and
// frees their slots through the booking service's release path.
type ExpirySweeper struct {
	bookingService service.BookingService
	interval       time.Duration
	now            func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running sync.Mutex
}

func NewExpirySweeper(bookingService service.BookingService, interval time.Duration, now func() time.Time) *ExpirySweeper {
	if now == nil {
		now = time.Now
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{
		bookingService: bookingService,
		interval:       interval,
		now:            now,
	}
}

// Start launches the sweep loop in the background. A second call while the
// loop is running does nothing.
func (w *ExpirySweeper) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.loop(ctx, w.done)
}

// loop запускает очистку по тикеру до отмены контекста
func (w *ExpirySweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.WithField("interval", w.interval.String()).Info("Expiry sweeper started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Expiry sweeper stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (w *ExpirySweeper) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	logrus.Info("Expiry sweeper stopping...")
	cancel()
	<-done
}

// RunOnce performs a single sweep. Sweeps never overlap. A failure on one
// booking is logged and does not stop the others; bookings another writer
// already finished or extended are counted as skipped.
func (w *ExpirySweeper) RunOnce(ctx context.Context) SweepResult {
	w.running.Lock()
	defer w.running.Unlock()

	var result SweepResult
	// Получаем текущее время для фильтрации
	now := w.now()

	// Получаем список истекших бронирований
	expired, err := w.bookingService.GetExpiredBookings(ctx, now)
	if err != nil {
		logrus.WithError(err).Error("Failed to get expired bookings")
		return result
	}
	result.Found = len(expired)
	if result.Found == 0 {
		logrus.Debug("No expired bookings found")
		return result
	}

	// Обрабатываем каждое истекшее бронирование
	for _, booking := range expired {
		// Проверяем, не был ли контекст отменен во время обработки
		if ctx.Err() != nil {
			logrus.Info("Sweep interrupted by context cancellation")
			break
		}

		_, err := w.bookingService.CompleteBooking(ctx, booking.ID, now)
		switch {
		case err == nil:
			result.Completed++
		case service.IsSkippable(err):
			// Бронирование уже завершено, отменено или продлено
			logrus.WithFields(logrus.Fields{
				"booking_id": booking.ID,
				"reason":     err.Error(),
			}).Debug("Skipping booking changed since scan")
			result.Skipped++
		default:
			logrus.WithError(err).WithFields(logrus.Fields{
				"booking_id": booking.ID,
				"slot_id":    booking.SlotID,
			}).Error("Failed to complete expired booking")
			result.Failed++
		}
	}

	// Логируем результаты очистки
	logrus.WithFields(logrus.Fields{
		"found":     result.Found,
		"completed": result.Completed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}).Info("Expired bookings sweep completed")

	// Если есть неудачные попытки, логируем предупреждение
	if result.Failed > 0 {
		logrus.Warnf("%d bookings failed to complete during sweep", result.Failed)
	}
	return result
}
