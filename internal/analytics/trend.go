package analytics

import (
	"math"

	"github.com/Emmanuelombaye/POS-System-sub000/internal/domain"
)

const (
	TrendGrowing   = "Growing"
	TrendDeclining = "Declining"
	TrendStable    = "Stable"
)

// Slope is the ordinary least-squares slope of value against point index.
func Slope(series []domain.SeriesPoint) float64 {
	n := float64(len(series))
	if n < 2 {
		return 0
	}
	var meanX, meanY float64
	for i, p := range series {
		meanX += float64(i)
		meanY += p.Value
	}
	meanX /= n
	meanY /= n

	var num, den float64
	for i, p := range series {
		dx := float64(i) - meanX
		num += dx * (p.Value - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// TrendThreshold is max(avg*2%, 1); the floor keeps quiet series from being
// classified on noise.
func TrendThreshold(avg float64) float64 {
	return math.Max(avg*2/100, 1)
}

// TrendLabel classifies the series by its regression slope. The threshold
// itself counts as Stable.
func TrendLabel(series []domain.SeriesPoint) string {
	if len(series) < 2 {
		return TrendStable
	}
	slope := Slope(series)
	threshold := TrendThreshold(Average(series))
	switch {
	case slope > threshold:
		return TrendGrowing
	case slope < -threshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func Total(series []domain.SeriesPoint) float64 {
	var sum float64
	for _, p := range series {
		sum += p.Value
	}
	return sum
}

// Average is 0 for an empty series.
func Average(series []domain.SeriesPoint) float64 {
	if len(series) == 0 {
		return 0
	}
	return Total(series) / float64(len(series))
}

// ChangePct is (current-previous)/previous*100, or 0 without a positive baseline.
func ChangePct(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// Summarize compares the current series against the previous one. BestLabel
// is the first unit holding the highest value, empty when nothing sold.
func Summarize(current, previous []domain.SeriesPoint) domain.AnalyticsSummary {
	summary := domain.AnalyticsSummary{
		CurrentTotal:  Total(current),
		PreviousTotal: Total(previous),
		Avg:           Average(current),
		Trend:         TrendLabel(current),
	}
	summary.ChangePct = ChangePct(summary.CurrentTotal, summary.PreviousTotal)

	best := 0.0
	for _, p := range current {
		if p.Value > best {
			best = p.Value
			summary.BestLabel = p.Label
		}
	}
	return summary
}
