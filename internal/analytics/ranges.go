package analytics

import (
	"strings"
	"time"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
	hourLayout  = "15:04"
)

type Bucket string

const (
	BucketHour  Bucket = "hour"
	BucketDay   Bucket = "day"
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

type Range string

const (
	Range1D Range = "1D"
	Range7D Range = "7D"
	Range1M Range = "1M"
	Range3M Range = "3M"
	Range6M Range = "6M"
	Range1Y Range = "1Y"
)

type rangeDef struct {
	bucket Bucket
	units  int
}

var rangeDefs = map[Range]rangeDef{
	Range1D: {BucketHour, 24},
	Range7D: {BucketDay, 7},
	Range1M: {BucketDay, 30},
	Range3M: {BucketWeek, 13},
	Range6M: {BucketMonth, 6},
	Range1Y: {BucketMonth, 12},
}

// ParseRange accepts the named ranges case-insensitively. Empty means 7D.
func ParseRange(raw string) (Range, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return Range7D, nil
	}
	r := Range(raw)
	if _, ok := rangeDefs[r]; !ok {
		return "", domain.Validationf("range must be one of 1D, 7D, 1M, 3M, 6M, 1Y")
	}
	return r, nil
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

type Plan struct {
	Range    Range
	Bucket   Bucket
	Units    int
	Current  Window
	Previous Window
}

// BucketFor maps a named range to its bucket size and to the current window
// ending with the unit containing now, plus the equally long window right
// before it. Weeks start Monday, months on the 1st.
func BucketFor(r Range, now time.Time) (Plan, error) {
	def, ok := rangeDefs[r]
	if !ok {
		return Plan{}, domain.Validationf("unknown range %q", r)
	}
	var currentEnd time.Time
	if def.bucket == BucketHour {
		// hourly ranges cover today rather than the trailing 24 hours
		currentEnd = StartOfDay(now).AddDate(0, 0, 1)
	} else {
		currentEnd = step(def.bucket, truncate(def.bucket, now), 1)
	}
	currentStart := step(def.bucket, currentEnd, -def.units)
	previousStart := step(def.bucket, currentStart, -def.units)
	return Plan{
		Range:    r,
		Bucket:   def.bucket,
		Units:    def.units,
		Current:  Window{Start: currentStart, End: currentEnd},
		Previous: Window{Start: previousStart, End: currentStart},
	}, nil
}

func truncate(b Bucket, t time.Time) time.Time {
	switch b {
	case BucketHour:
		local := t.In(Location)
		return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, Location)
	case BucketWeek:
		return StartOfWeek(t)
	case BucketMonth:
		return StartOfMonth(t)
	default:
		return StartOfDay(t)
	}
}

func step(b Bucket, t time.Time, n int) time.Time {
	switch b {
	case BucketHour:
		return t.Add(time.Duration(n) * time.Hour)
	case BucketWeek:
		return t.AddDate(0, 0, 7*n)
	case BucketMonth:
		return t.AddDate(0, n, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}

// Label names the unit that starts at t.
func Label(b Bucket, t time.Time) string {
	local := t.In(Location)
	switch b {
	case BucketHour:
		return local.Format(hourLayout)
	case BucketMonth:
		return local.Format(monthLayout)
	default:
		return local.Format(dateLayout)
	}
}
