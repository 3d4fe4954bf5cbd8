package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/parking/internal/entity"
)

func view(start time.Time, hours int, amount float64, role entity.Role, slot *entity.Slot) *entity.BookingView {
	return &entity.BookingView{
		Booking: &entity.Booking{
			UserID:        1,
			Hours:         hours,
			Amount:        amount,
			StartTime:     start,
			EndTime:       start.Add(time.Duration(hours) * time.Hour),
			PaymentMethod: entity.PaymentMethodUPI,
			Status:        entity.BookingStatusCompleted,
			CreatedAt:     start,
		},
		Slot:      slot,
		UserEmail: "driver@x.io",
		UserRole:  role,
	}
}

func at(day, hour int) time.Time {
	return time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC)
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	assert.Equal(t, 0, summary.TotalBookings)
	assert.Equal(t, 0.0, summary.AvgDuration)
	assert.Equal(t, entity.NoPeakHour, summary.PeakHour)
	assert.Equal(t, 0.0, summary.Revenue)
}

func TestSummarize(t *testing.T) {
	bookings := []*entity.BookingView{
		view(at(1, 10), 3, 60, entity.RoleUser, nil),
		view(at(2, 9), 1, 20, entity.RoleUser, nil),
		view(at(3, 10), 2, 40, entity.RoleAdmin, nil),
	}

	summary := Summarize(bookings)
	assert.Equal(t, 3, summary.TotalBookings)
	assert.Equal(t, 6, summary.TotalHours)
	assert.Equal(t, 2.0, summary.AvgDuration)
	assert.Equal(t, "10", summary.PeakHour)
	assert.Equal(t, 120.0, summary.Revenue)
}

func TestSummarizePeakHourTieGoesToSmallest(t *testing.T) {
	bookings := []*entity.BookingView{
		view(at(1, 18), 1, 10, entity.RoleUser, nil),
		view(at(1, 7), 1, 10, entity.RoleUser, nil),
		view(at(2, 18), 1, 10, entity.RoleUser, nil),
		view(at(2, 7), 1, 10, entity.RoleUser, nil),
	}
	assert.Equal(t, "7", Summarize(bookings).PeakHour)

	assert.Equal(t, 1.0, Summarize(bookings).AvgDuration)
}

func TestSegment(t *testing.T) {
	bookings := []*entity.BookingView{
		view(at(1, 10), 1, 10, entity.RoleUser, nil),
		view(at(7, 10), 1, 10, entity.RoleUser, nil),
		view(at(8, 10), 1, 10, entity.RoleAdmin, nil),
		view(at(29, 10), 1, 10, "", nil),
	}

	tests := []struct {
		by   entity.SegmentBy
		want map[string]int
	}{
		{entity.SegmentNone, map[string]int{}},
		{entity.SegmentDay, map[string]int{"2026-03-01": 1, "2026-03-07": 1, "2026-03-08": 1, "2026-03-29": 1}},
		{entity.SegmentWeek, map[string]int{"Week 1": 2, "Week 2": 1, "Week 5": 1}},
		{entity.SegmentUser, map[string]int{"USER": 2, "ADMIN": 1, "UNKNOWN": 1}},
	}

	for _, tt := range tests {
		t.Run(string(tt.by), func(t *testing.T) {
			assert.Equal(t, tt.want, Segment(bookings, tt.by))
		})
	}
}

func TestMonthly(t *testing.T) {
	pune := &entity.Slot{City: "Pune", Area: "Kothrud", SlotNo: "A1"}
	delhi := &entity.Slot{City: "Delhi", Area: "Saket", SlotNo: "B1"}
	bookings := []*entity.BookingView{
		view(at(1, 10), 3, 60, entity.RoleUser, pune),
		view(at(2, 10), 1, 20.5, entity.RoleUser, pune),
		view(at(3, 10), 2, 100, entity.RoleUser, delhi),
		view(at(4, 10), 1, 10, entity.RoleUser, nil),
	}

	report := Monthly("2026-03", bookings)
	assert.Equal(t, "2026-03", report.Month)
	assert.Equal(t, 4, report.TotalBookings)
	assert.Equal(t, 190.5, report.TotalRevenue)
	assert.Equal(t, map[string]int{"Pune": 2, "Delhi": 1}, report.ByCity)
	assert.Equal(t, map[string]int{"Kothrud": 2, "Saket": 1}, report.ByArea)
}

func TestMonthBounds(t *testing.T) {
	start, end := MonthBounds(time.Date(2026, 12, 15, 8, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestWriteCSV(t *testing.T) {
	slot := &entity.Slot{City: "Pune", Area: "Kothrud, West", SlotNo: "A1"}
	bookings := []*entity.BookingView{
		view(at(1, 10), 3, 60, entity.RoleUser, slot),
		view(at(2, 11), 1, 20, entity.RoleAdmin, nil),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, bookings))

	want := "User,Role,Slot,City,Area,Hours,Amount,Payment,Status,Date\n" +
		"driver@x.io,USER,A1,Pune,\"Kothrud, West\",3,60,UPI,COMPLETED,2026-03-01T10:00:00Z\n" +
		"driver@x.io,ADMIN,,,,1,20,UPI,COMPLETED,2026-03-02T11:00:00Z\n"
	assert.Equal(t, want, buf.String())
}
