package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/parking/internal/database"
	"github.com/ds124wfegd/parking/internal/entity"
	"github.com/ds124wfegd/parking/internal/report"
)

const monthLayout = "2006-01"

type reportService struct {
	bookingRepo database.BookingRepository
	cache       database.ReportCache
	now         func() time.Time
}

// NewReportService builds the reporting service. cache may be nil.
func NewReportService(bookingRepo database.BookingRepository, cache database.ReportCache, now func() time.Time) ReportService {
	if now == nil {
		now = time.Now
	}
	return &reportService{bookingRepo: bookingRepo, cache: cache, now: now}
}

// bookings selects the report rows by creation time and slot.
func (s *reportService) bookings(ctx context.Context, req *ReportRequest) ([]*entity.BookingView, error) {
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		return nil, entity.Validation("'to' must not be before 'from'")
	}

	views, err := s.bookingRepo.List(ctx, entity.BookingFilter{
		SlotID:      req.SlotID,
		CreatedFrom: req.From,
		CreatedTo:   req.To,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}
	return views, nil
}

func (s *reportService) GetReport(ctx context.Context, req *ReportRequest) (*entity.Report, error) {
	views, err := s.bookings(ctx, req)
	if err != nil {
		return nil, err
	}
	return report.Build(views, req.Segment), nil
}

func (s *reportService) ExportCSV(ctx context.Context, req *ReportRequest, w io.Writer) error {
	views, err := s.bookings(ctx, req)
	if err != nil {
		return err
	}
	return report.WriteCSV(w, views)
}

// GetMonthlyReport aggregates bookings that start in the current month.
func (s *reportService) GetMonthlyReport(ctx context.Context) (*entity.MonthlyReport, error) {
	now := s.now()
	month := now.Format(monthLayout)

	cache := s.cache
	var generation int64
	if cache != nil {
		gen, err := cache.Generation(ctx)
		if err != nil {
			logrus.WithError(err).Warn("Failed to read report cache generation")
			cache = nil
		}
		generation = gen
	}

	if cache != nil {
		cached, ok, err := cache.GetMonthly(ctx, generation, month)
		if err != nil {
			logrus.WithError(err).Warn("Failed to read monthly report from cache")
		} else if ok {
			return cached, nil
		}
	}

	start, end := report.MonthBounds(now)
	last := end.Add(-time.Nanosecond)
	views, err := s.bookingRepo.List(ctx, entity.BookingFilter{StartFrom: &start, StartTo: &last})
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}

	monthly := report.Monthly(month, views)
	if cache != nil {
		if err := cache.SetMonthly(ctx, generation, monthly); err != nil {
			logrus.WithError(err).Warn("Failed to cache monthly report")
		}
	}
	return monthly, nil
}
