package analytics

import (
	"time"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

// MaxDateSeriesDays bounds BuildDateSeries.
const MaxDateSeriesDays = 366

// Row is one value attributed to an instant.
type Row struct {
	At    time.Time
	Value float64
}

// BuildSeries returns one point per unit of window, zero-filled. Rows outside
// the window are ignored. The hour bucket always yields the 24 labels
// 00:00..23:00 keyed by local hour.
func BuildSeries(b Bucket, w Window, rows []Row) []domain.SeriesPoint {
	if b == BucketHour {
		return buildHourSeries(w, rows)
	}

	points := []domain.SeriesPoint{}
	index := map[string]int{}
	for t := truncate(b, w.Start); t.Before(w.End); t = step(b, t, 1) {
		label := Label(b, t)
		index[label] = len(points)
		points = append(points, domain.SeriesPoint{Label: label})
	}
	for _, row := range rows {
		if !w.Contains(row.At) {
			continue
		}
		if i, ok := index[Label(b, truncate(b, row.At))]; ok {
			points[i].Value += row.Value
		}
	}
	return points
}

func buildHourSeries(w Window, rows []Row) []domain.SeriesPoint {
	points := make([]domain.SeriesPoint, 24)
	for h := range points {
		points[h].Label = time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC).Format(hourLayout)
	}
	for _, row := range rows {
		if !w.Contains(row.At) {
			continue
		}
		points[row.At.In(Location).Hour()].Value += row.Value
	}
	return points
}

// BuildDateSeries lists every calendar day from start to end inclusive.
func BuildDateSeries(start, end string) ([]string, error) {
	from, err := time.ParseInLocation(dateLayout, start, Location)
	if err != nil {
		return nil, domain.Validationf("start must be YYYY-MM-DD")
	}
	to, err := time.ParseInLocation(dateLayout, end, Location)
	if err != nil {
		return nil, domain.Validationf("end must be YYYY-MM-DD")
	}
	if to.Before(from) {
		return nil, domain.Validationf("end must not be before start")
	}

	days := []string{}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if len(days) == MaxDateSeriesDays {
			return nil, domain.Validationf("date series is limited to %d days", MaxDateSeriesDays)
		}
		days = append(days, d.Format(dateLayout))
	}
	return days, nil
}
