// Package report computes read-only rollups over booking history.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/ds124wfegd/parking/internal/entity"
)

// Summarize aggregates bookings. Peak hour is the most frequent start hour,
// ties going to the smallest hour; with no bookings it is entity.NoPeakHour.
func Summarize(bookings []*entity.BookingView) entity.ReportSummary {
	summary := entity.ReportSummary{
		TotalBookings: len(bookings),
		PeakHour:      entity.NoPeakHour,
	}
	if len(bookings) == 0 {
		return summary
	}

	var hourCounts [24]int
	for _, b := range bookings {
		summary.TotalHours += b.Hours
		summary.Revenue += b.Amount
		hourCounts[b.StartTime.Hour()]++
	}

	summary.AvgDuration = round2(float64(summary.TotalHours) / float64(len(bookings)))
	summary.Revenue = round2(summary.Revenue)

	peak := 0
	for h := 1; h < 24; h++ {
		if hourCounts[h] > hourCounts[peak] {
			peak = h
		}
	}
	summary.PeakHour = strconv.Itoa(peak)
	return summary
}

// Segment counts bookings by creation day, by week of the month ("Week 1" is
// days 1-7) or by the owner's role.
func Segment(bookings []*entity.BookingView, by entity.SegmentBy) map[string]int {
	data := make(map[string]int)
	if by == entity.SegmentNone {
		return data
	}

	for _, b := range bookings {
		var key string
		switch by {
		case entity.SegmentDay:
			key = b.CreatedAt.Format(time.DateOnly)
		case entity.SegmentWeek:
			key = fmt.Sprintf("Week %d", (b.CreatedAt.Day()+6)/7)
		case entity.SegmentUser:
			key = string(b.UserRole)
			if key == "" {
				key = "UNKNOWN"
			}
		}
		data[key]++
	}
	return data
}

// Build assembles the full report response.
func Build(bookings []*entity.BookingView, by entity.SegmentBy) *entity.Report {
	return &entity.Report{
		Summary:     Summarize(bookings),
		SegmentData: Segment(bookings, by),
		Bookings:    bookings,
	}
}

// MonthBounds returns [first instant of month, first instant of next month).
func MonthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// Monthly rolls up bookings that started in the given month. Bookings whose
// slot no longer exists count toward totals but not toward city/area.
func Monthly(month string, bookings []*entity.BookingView) *entity.MonthlyReport {
	report := &entity.MonthlyReport{
		Month:  month,
		ByCity: make(map[string]int),
		ByArea: make(map[string]int),
	}

	for _, b := range bookings {
		report.TotalBookings++
		report.TotalRevenue += b.Amount
		if b.Slot != nil {
			report.ByCity[b.Slot.City]++
			report.ByArea[b.Slot.Area]++
		}
	}
	report.TotalRevenue = round2(report.TotalRevenue)
	return report
}

var csvHeader = []string{"User", "Role", "Slot", "City", "Area", "Hours", "Amount", "Payment", "Status", "Date"}

// WriteCSV writes one row per booking. Slot columns are empty for deleted slots.
func WriteCSV(w io.Writer, bookings []*entity.BookingView) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, b := range bookings {
		var slotNo, city, area string
		if b.Slot != nil {
			slotNo, city, area = b.Slot.SlotNo, b.Slot.City, b.Slot.Area
		}
		record := []string{
			b.UserEmail,
			string(b.UserRole),
			slotNo,
			city,
			area,
			strconv.Itoa(b.Hours),
			strconv.FormatFloat(b.Amount, 'f', -1, 64),
			string(b.PaymentMethod),
			string(b.Status),
			b.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
