package entity

import (
	"bytes"
	"fmt"
	"time"
)

// FlexTime accepts RFC 3339 timestamps as well as the datetime-local form
// ("2006-01-02T15:04") produced by browser date pickers. The latter is read in
// the server's local time zone.
type FlexTime struct {
	time.Time
}

const dateTimeLocalLayout = "2006-01-02T15:04"

var flexLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", dateTimeLocalLayout}

func ParseFlexTime(s string) (time.Time, error) {
	for _, layout := range flexLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, Validation("invalid time %q", s)
}

func (ft *FlexTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("time must be a string")
	}
	t, err := ParseFlexTime(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

func (ft FlexTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ft.Format(time.RFC3339) + `"`), nil
}
