package analytics

import (
	"time"
	_ "time/tzdata"
)

// Location is the business timezone every bucket is anchored to, regardless
// of the server locale.
var Location = loadLocation()

func loadLocation() *time.Location {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		return time.FixedZone("EAT", 3*60*60)
	}
	return loc
}

// BusinessDate formats t as the YYYY-MM-DD calendar day in Location.
func BusinessDate(t time.Time) string {
	return t.In(Location).Format(dateLayout)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Location)
}

// StartOfWeek returns the Monday of the week containing t.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.In(Location).Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, Location)
}
