package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

func labels(points []domain.SeriesPoint) []string {
	out := make([]string, 0, len(points))
	for _, p := range points {
		out = append(out, p.Label)
	}
	return out
}

func TestBuildSeriesDayZeroFills(t *testing.T) {
	w := Window{Start: nairobi(2026, 1, 29, 0, 0), End: nairobi(2026, 2, 5, 0, 0)}
	rows := []Row{
		{At: nairobi(2026, 2, 4, 10, 0), Value: 100},
		{At: nairobi(2026, 2, 4, 23, 30), Value: 50},
		{At: time.Date(2026, 2, 3, 21, 30, 0, 0, time.UTC), Value: 25},
		{At: nairobi(2026, 1, 28, 12, 0), Value: 999},
	}
	points := BuildSeries(BucketDay, w, rows)

	assert.Equal(t, []string{
		"2026-01-29", "2026-01-30", "2026-01-31", "2026-02-01", "2026-02-02", "2026-02-03", "2026-02-04",
	}, labels(points))
	assert.Equal(t, 175.0, points[6].Value)
	for _, p := range points[:6] {
		assert.Zero(t, p.Value, p.Label)
	}
}

func TestBuildSeriesHourUsesLocalHour(t *testing.T) {
	w := Window{Start: nairobi(2026, 2, 4, 0, 0), End: nairobi(2026, 2, 5, 0, 0)}
	rows := []Row{
		{At: time.Date(2026, 2, 4, 7, 15, 0, 0, time.UTC), Value: 40},
		{At: nairobi(2026, 2, 4, 10, 59), Value: 2},
		{At: nairobi(2026, 2, 3, 10, 0), Value: 500},
	}
	points := BuildSeries(BucketHour, w, rows)

	require.Len(t, points, 24)
	assert.Equal(t, "00:00", points[0].Label)
	assert.Equal(t, "23:00", points[23].Label)
	assert.Equal(t, "10:00", points[10].Label)
	assert.Equal(t, 42.0, points[10].Value)
	assert.Equal(t, 42.0, Total(points))
}

func TestBuildSeriesWeekAndMonthLabels(t *testing.T) {
	weeks := BuildSeries(BucketWeek, Window{Start: nairobi(2026, 1, 19, 0, 0), End: nairobi(2026, 2, 9, 0, 0)}, []Row{
		{At: nairobi(2026, 2, 8, 18, 0), Value: 7},
	})
	assert.Equal(t, []string{"2026-01-19", "2026-01-26", "2026-02-02"}, labels(weeks))
	assert.Equal(t, 7.0, weeks[2].Value)

	months := BuildSeries(BucketMonth, Window{Start: nairobi(2025, 12, 1, 0, 0), End: nairobi(2026, 3, 1, 0, 0)}, nil)
	assert.Equal(t, []string{"2025-12", "2026-01", "2026-02"}, labels(months))
}

func TestBuildDateSeries(t *testing.T) {
	days, err := BuildDateSeries("2026-02-01", "2026-02-03")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02-01", "2026-02-02", "2026-02-03"}, days)

	days, err = BuildDateSeries("2026-02-28", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02-28", "2026-03-01"}, days)

	days, err = BuildDateSeries("2026-02-01", "2026-02-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-02-01"}, days)
}

func TestBuildDateSeriesRejectsBadInput(t *testing.T) {
	for _, tc := range [][2]string{
		{"2026-02-03", "2026-02-01"},
		{"01/02/2026", "2026-02-03"},
		{"2026-02-01", ""},
		{"2025-01-01", "2026-12-31"},
	} {
		_, err := BuildDateSeries(tc[0], tc[1])
		assert.True(t, errors.Is(err, domain.ErrValidation), "%v", tc)
	}
}
