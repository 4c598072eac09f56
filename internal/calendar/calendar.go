// Package calendar implements trading-session detection and date
// normalisation (spec §4.B). Holidays beyond weekend exclusion are not
// modelled; callers that need to know "did anything trade today" treat an
// empty result as silently uninteresting rather than an error.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// morningOpen/morningClose/afternoonOpen/afternoonClose are the two daily
// trading windows, local time, Mon-Fri (spec glossary: "Trading session").
var (
	morningOpen    = clock{9, 30}
	morningClose   = clock{11, 30}
	afternoonOpen  = clock{13, 0}
	afternoonClose = clock{15, 0}
)

type clock struct {
	hour, minute int
}

func (c clock) before(t time.Time) bool {
	h, m, _ := t.Clock()
	return h < c.hour || (h == c.hour && m < c.minute)
}

func (c clock) after(t time.Time) bool {
	h, m, _ := t.Clock()
	return h > c.hour || (h == c.hour && m > c.minute)
}

// IsTradingDay reports whether t falls on a weekday. Public holidays are not
// modelled (spec §4.B) — the fetch fabric tolerates empty days silently.
func IsTradingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// IsTradingTime reports whether t falls within 09:30-11:30 or 13:00-15:00
// local time on a trading day.
func IsTradingTime(t time.Time) bool {
	if !IsTradingDay(t) {
		return false
	}
	inMorning := !morningOpen.before(t) && !morningClose.after(t)
	inAfternoon := !afternoonOpen.before(t) && !afternoonClose.after(t)
	return inMorning || inAfternoon
}

// IsForceUpdateDay reports whether t is a Saturday, on which full bar
// refresh is unconditionally eligible regardless of trading-day gating.
func IsForceUpdateDay(t time.Time) bool {
	return t.Weekday() == time.Saturday
}

// NormaliseDate accepts YYYYMMDD, YYYY-MM-DD, or an RFC3339 timestamp and
// returns the canonical YYYY-MM-DD form. An unparsable input returns an
// error; callers on the ingest path treat that as a dropped row (spec §4.C).
func NormaliseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("calendar: empty date")
	}

	layouts := []string{"20060102", "2006-01-02", time.RFC3339, "2006-01-02T15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("calendar: unrecognised date format %q", s)
}

// ParseDate is NormaliseDate followed by a time.Time parse of the canonical
// form, used by callers that need to compare dates rather than just store
// them (e.g. the K-line store's monotonicity check).
func ParseDate(s string) (time.Time, error) {
	canonical, err := NormaliseDate(s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse("2006-01-02", canonical)
}
