package store

import (
	"fmt"
	"math"
	"time"
)

const (
	dayLayout    = "2006-01-02"
	maxRangeDays = 3660
	oneDay       = 24 * time.Hour
)

func dayOf(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(dayLayout)
}

func parseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dayLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidQueryRange, s)
	}
	return t, nil
}

// dayRange is an inclusive range of UTC calendar days.
type dayRange struct {
	first time.Time
	last  time.Time
}

// parseRange parses an inclusive [startDate, endDate] range. ok is false for an
// inverted range, which callers answer with an empty result.
func parseRange(startDate, endDate string) (r dayRange, ok bool, err error) {
	first, err := parseDay(startDate)
	if err != nil {
		return dayRange{}, false, err
	}
	last, err := parseDay(endDate)
	if err != nil {
		return dayRange{}, false, err
	}
	if last.Before(first) {
		return dayRange{}, false, nil
	}
	if last.Sub(first) > maxRangeDays*oneDay {
		return dayRange{}, false, fmt.Errorf("%w: %s..%s spans more than %d days", ErrInvalidQueryRange, startDate, endDate, maxRangeDays)
	}
	return dayRange{first: first, last: last}, true, nil
}

// millis returns the half-open millisecond window [first 00:00, last+1 00:00).
func (r dayRange) millis() (from, to int64) {
	return r.first.UnixMilli(), r.last.Add(oneDay).UnixMilli()
}

func (r dayRange) days() []string {
	n := int(r.last.Sub(r.first)/oneDay) + 1
	out := make([]string, 0, n)
	for d := r.first; !d.After(r.last); d = d.Add(oneDay) {
		out = append(out, d.Format(dayLayout))
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// percent returns part/whole as a percentage, 0 when whole is 0.
func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
