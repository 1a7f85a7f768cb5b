package statistics

import (
	"context"
	"strings"
	"time"

	"github.com/nemscan/backend/domain"
	"github.com/nemscan/backend/pkg/stats"
	"github.com/nemscan/backend/pkg/timewindow"
)

const (
	heatmapDefaultDays = 7
	rollingWindowDays  = 7
	rollingWeightStep  = 0.1
	dateLayout         = "2006-01-02"
)

// Weekdays and periods in heatmap order.
var (
	heatmapDays = []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
		time.Friday, time.Saturday, time.Sunday,
	}
	heatmapPeriods = []string{"Morning", "Late Morning", "Afternoon", "Evening"}
)

// PeriodOfDay maps a local hour onto a heatmap period.
func PeriodOfDay(hour int) string {
	switch {
	case hour >= 7 && hour < 10:
		return "Morning"
	case hour >= 10 && hour < 13:
		return "Late Morning"
	case hour >= 13 && hour < 18:
		return "Afternoon"
	default:
		return "Evening"
	}
}

// GetScanActivity returns the heatmap of the current week for "week" and the
// month-to-date rolling-average trend for anything else.
func (uc *UseCase) GetScanActivity(ctx context.Context, periodType string) (domain.ActivityReport, error) {
	if strings.EqualFold(strings.TrimSpace(periodType), domain.PeriodWeek) {
		scans, err := uc.scans.QueryScans(ctx, scanFilter(uc.windows.Week()))
		if err != nil {
			return domain.ActivityReport{}, err
		}
		return domain.ActivityReport{
			PeriodType: domain.PeriodWeek,
			Heatmap:    buildHeatmap(scans, uc.windows.Location()),
		}, nil
	}

	window := uc.windows.MonthToDate()
	scans, err := uc.scans.QueryScans(ctx, scanFilter(window))
	if err != nil {
		return domain.ActivityReport{}, err
	}
	return domain.ActivityReport{
		PeriodType: domain.PeriodMonth,
		Trend:      buildTrend(scans, window, uc.windows.Location()),
	}, nil
}

// GetWeeklyScanHeatmap builds the heatmap over an arbitrary window, defaulting
// to the trailing seven days.
func (uc *UseCase) GetWeeklyScanHeatmap(ctx context.Context, from, to *time.Time) ([]domain.HeatmapCell, error) {
	window, err := uc.windows.Bounded(from, to, uc.windows.Trailing(heatmapDefaultDays))
	if err != nil {
		return nil, err
	}
	scans, err := uc.scans.QueryScans(ctx, scanFilter(window))
	if err != nil {
		return nil, err
	}
	return buildHeatmap(scans, uc.windows.Location()), nil
}

type heatmapKey struct {
	day    time.Weekday
	period string
}

func buildHeatmap(scans []domain.ScanEvent, loc *time.Location) []domain.HeatmapCell {
	counts := make(map[heatmapKey]int)
	for i := range scans {
		local := scans[i].Timestamp.In(loc)
		counts[heatmapKey{local.Weekday(), PeriodOfDay(local.Hour())}]++
	}

	cells := make([]domain.HeatmapCell, 0, len(heatmapDays)*len(heatmapPeriods))
	for _, day := range heatmapDays {
		for _, period := range heatmapPeriods {
			cells = append(cells, domain.HeatmapCell{
				Day:    day.String(),
				Period: period,
				Count:  counts[heatmapKey{day, period}],
			})
		}
	}
	return cells
}

func buildTrend(scans []domain.ScanEvent, window timewindow.Window, loc *time.Location) []domain.TrendPoint {
	daily := make(map[string]int)
	for i := range scans {
		daily[scans[i].Timestamp.In(loc).Format(dateLayout)]++
	}

	var points []domain.TrendPoint
	last := timewindow.DayStart(window.To.In(loc))
	for day := timewindow.DayStart(window.From.In(loc)); !day.After(last); day = day.AddDate(0, 0, 1) {
		key := day.Format(dateLayout)
		points = append(points, domain.TrendPoint{Date: key, Count: daily[key]})
	}

	counts := make([]int, len(points))
	for i := range points {
		counts[i] = points[i].Count
	}
	for i := range points {
		start := i - rollingWindowDays + 1
		if start < 0 {
			start = 0
		}
		points[i].RollingAverage = stats.Round1(RollingAverage(counts[start : i+1]))
	}
	return points
}

// RollingAverage is the recency-weighted mean of counts, ordered oldest first.
// The j-th entry weighs 1+0.1*j; a single entry is returned unweighted.
func RollingAverage(counts []int) float64 {
	switch len(counts) {
	case 0:
		return 0
	case 1:
		return float64(counts[0])
	}
	var sum, weights float64
	for j, c := range counts {
		w := 1 + rollingWeightStep*float64(j)
		sum += float64(c) * w
		weights += w
	}
	return sum / weights
}
