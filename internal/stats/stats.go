// Package stats recomputes rolling price aggregates for one destination
// from its sample history. All functions are pure; persistence of the
// resulting row is the caller's concern.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Sample is a single observed price point.
type Sample struct {
	Price     decimal.Decimal
	SampledAt time.Time
}

// Windows sets the rolling average horizons.
type Windows struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// WindowsFromDays builds Windows from day counts.
func WindowsFromDays(short, medium, long int) Windows {
	day := 24 * time.Hour
	return Windows{
		Short:  time.Duration(short) * day,
		Medium: time.Duration(medium) * day,
		Long:   time.Duration(long) * day,
	}
}

// Statistics is the derived aggregate row for one destination.
// It is a cache: always re-derivable from the sample history.
type Statistics struct {
	AvgShort     decimal.Decimal
	AvgMedium    decimal.Decimal
	AvgLong      decimal.Decimal
	P25          decimal.Decimal
	P50          decimal.Decimal
	P75          decimal.Decimal
	StdDev       decimal.Decimal
	AllTimeLow   decimal.Decimal
	AllTimeHigh  decimal.Decimal
	TotalSamples int
	CalculatedAt time.Time
}

// Compute derives Statistics from the full sample history.
// TotalSamples reports the honest count; callers decide whether a small
// history is enough to act on.
func Compute(samples []Sample, now time.Time, w Windows) Statistics {
	s := Statistics{CalculatedAt: now.UTC(), TotalSamples: len(samples)}
	if len(samples) == 0 {
		return s
	}

	prices := make([]decimal.Decimal, 0, len(samples))
	for _, sample := range samples {
		prices = append(prices, sample.Price)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	s.AllTimeLow = prices[0]
	s.AllTimeHigh = prices[len(prices)-1]

	s.AvgShort = windowAverage(samples, now, w.Short)
	s.AvgMedium = windowAverage(samples, now, w.Medium)
	s.AvgLong = windowAverage(samples, now, w.Long)

	s.P25 = Percentile(prices, 25)
	s.P50 = Percentile(prices, 50)
	s.P75 = Percentile(prices, 75)

	s.StdDev = stdDev(prices)

	return s
}

// windowAverage averages samples observed within the window ending at now.
// Falls back to the full history when the window holds no samples, so a
// freshly tracked destination still reports a usable medium average.
func windowAverage(samples []Sample, now time.Time, window time.Duration) decimal.Decimal {
	cutoff := now.Add(-window)
	sum := decimal.Zero
	count := 0
	for _, sample := range samples {
		if sample.SampledAt.Before(cutoff) {
			continue
		}
		sum = sum.Add(sample.Price)
		count++
	}
	if count == 0 {
		for _, sample := range samples {
			sum = sum.Add(sample.Price)
			count++
		}
	}
	if count == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(count)))
}

// Percentile computes the p-th percentile of sorted prices using linear
// interpolation between closest ranks: rank = p/100 * (n-1).
func Percentile(sorted []decimal.Decimal, p int) decimal.Decimal {
	n := len(sorted)
	if n == 0 {
		return decimal.Zero
	}
	if n == 1 {
		return sorted[0]
	}

	rank := float64(p) / 100 * float64(n-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	frac := decimal.NewFromFloat(rank - float64(lower))
	return sorted[lower].Add(sorted[upper].Sub(sorted[lower]).Mul(frac))
}

// stdDev returns the population standard deviation.
func stdDev(prices []decimal.Decimal) decimal.Decimal {
	n := len(prices)
	if n < 2 {
		return decimal.Zero
	}

	sum := decimal.Zero
	for _, p := range prices {
		sum = sum.Add(p)
	}
	mean := sum.Div(decimal.NewFromInt(int64(n)))

	variance := decimal.Zero
	for _, p := range prices {
		diff := p.Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(decimal.NewFromInt(int64(n)))

	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
}
