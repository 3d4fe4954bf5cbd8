package entity

// NoPeakHour is reported when there is nothing to aggregate.
const NoPeakHour = "none"

type SegmentBy string

const (
	SegmentNone SegmentBy = ""
	SegmentDay  SegmentBy = "day"
	SegmentWeek SegmentBy = "week"
	SegmentUser SegmentBy = "user"
)

func ParseSegment(s string) (SegmentBy, error) {
	switch SegmentBy(s) {
	case SegmentNone, SegmentDay, SegmentWeek, SegmentUser:
		return SegmentBy(s), nil
	default:
		return "", Validation("segment must be one of day, week, user")
	}
}

type ReportSummary struct {
	TotalBookings int     `json:"totalBookings"`
	TotalHours    int     `json:"totalHours"`
	AvgDuration   float64 `json:"avgDuration"`
	PeakHour      string  `json:"peakHour"`
	Revenue       float64 `json:"revenue"`
}

type Report struct {
	Summary     ReportSummary  `json:"summary"`
	SegmentData map[string]int `json:"segmentData"`
	Bookings    []*BookingView `json:"bookings"`
}

type MonthlyReport struct {
	Month         string         `json:"month"`
	TotalBookings int            `json:"totalBookings"`
	TotalRevenue  float64        `json:"totalRevenue"`
	ByCity        map[string]int `json:"byCity"`
	ByArea        map[string]int `json:"byArea"`
}
