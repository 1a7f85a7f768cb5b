// Package stats holds the rounding, percentage and ordering rules shared by
// the statistics and report aggregates.
package stats

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Round1 rounds v to one decimal place, half away from zero, using the
// shortest decimal representation of v so 0.05 steps round as written.
func Round1(v float64) float64 {
	return decimal.NewFromFloat(v).Round(1).InexactFloat64()
}

// Ratio returns part/total*100 without rounding, or 0 when total is 0.
func Ratio(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// Percentage returns part/total*100 rounded to one decimal, or 0 when total is 0.
func Percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(1).
		InexactFloat64()
}

// Apportion converts counts into one-decimal percentages that add up to
// exactly 100 using the largest-remainder method. Each share stays within 0.1
// of its exact value; leftover tenths go to the largest remainders, earlier
// entries first on ties. All zeros are returned when the counts sum to 0.
func Apportion(counts []int) []float64 {
	out := make([]float64, len(counts))
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return out
	}

	const units = 1000 // tenths of a percent
	tenths := make([]int, len(counts))
	remainders := make([]int, len(counts))
	assigned := 0
	for i, c := range counts {
		tenths[i] = c * units / total
		remainders[i] = c * units % total
		assigned += tenths[i]
	}

	order := make([]int, len(counts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for _, i := range order[:units-assigned] {
		tenths[i]++
	}

	for i, t := range tenths {
		out[i] = float64(t) / 10
	}
	return out
}

// RelativeChange returns (current-previous)/previous*100, or 0 when previous is 0.
func RelativeChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// ErrorRateChange is RelativeChange except that a zero previous rate yields
// the current rate, so new errors still register as growth.
func ErrorRateChange(current, previous float64) float64 {
	if previous == 0 {
		return current
	}
	return (current - previous) / previous * 100
}

// Counted is a labelled count used for descending ordering.
type Counted struct {
	Key   string
	Count int
}

// CountKeys flattens counts into a slice ordered by count descending, then key ascending.
func CountKeys(counts map[string]int) []Counted {
	out := make([]Counted, 0, len(counts))
	for k, c := range counts {
		out = append(out, Counted{Key: k, Count: c})
	}
	SortCounted(out)
	return out
}

// SortCounted orders by count descending, then key ascending.
func SortCounted(items []Counted) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Key < items[j].Key
	})
}

// Top returns at most n leading items; n <= 0 means no limit.
func Top[T any](items []T, n int) []T {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[:n]
}
