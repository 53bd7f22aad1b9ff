// Package deal classifies a sampled price against the destination's
// historical distribution. Classification is a pure function of the
// price and a statistics snapshot.
package deal

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"farewatch/internal/stats"
)

// Quality is the ordinal deal tier.
type Quality int

const (
	QualityUnknown Quality = iota
	QualityPoor
	QualityFair
	QualityGood
	QualityGreat
	QualityExcellent
	QualityExceptional
)

var qualityNames = map[Quality]string{
	QualityUnknown:     "unknown",
	QualityPoor:        "poor",
	QualityFair:        "fair",
	QualityGood:        "good",
	QualityGreat:       "great",
	QualityExcellent:   "excellent",
	QualityExceptional: "exceptional",
}

func (q Quality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return "unknown"
}

// ParseQuality maps a stored tier name back to its ordinal value.
func ParseQuality(name string) (Quality, error) {
	for q, n := range qualityNames {
		if n == strings.ToLower(strings.TrimSpace(name)) {
			return q, nil
		}
	}
	return QualityUnknown, fmt.Errorf("unknown quality tier %q", name)
}

// Urgency buckets tiers for notification prominence.
type Urgency string

const (
	UrgencyHigh     Urgency = "high"
	UrgencyModerate Urgency = "moderate"
	UrgencyLow      Urgency = "low"
)

// Bucket is the coarse percentile position of a price.
type Bucket string

const (
	BucketLow  Bucket = "low"
	BucketMid  Bucket = "mid"
	BucketHigh Bucket = "high"
)

// MinHistory is the sample-count floor below which classification is
// withheld and the sample is non-alertable.
const MinHistory = 3

// outlierZScore marks samples deviating unusually far below the medium
// average. Informational only; never blocks alerting.
var outlierZScore = decimal.NewFromInt(2)

var (
	pct40 = decimal.NewFromInt(40)
	pct30 = decimal.NewFromInt(30)
	pct20 = decimal.NewFromInt(20)
	pct10 = decimal.NewFromInt(10)
)

// Classification is the gate-facing verdict for one sample.
type Classification struct {
	Quality        Quality
	Urgency        Urgency
	Bucket         Bucket
	SavingsPercent decimal.Decimal
	Rationale      string
	Outlier        bool
}

// SavingsPercent computes (avg - price) / avg * 100. Zero when avg is
// not positive.
func SavingsPercent(price, avg decimal.Decimal) decimal.Decimal {
	if !avg.IsPositive() {
		return decimal.Zero
	}
	return avg.Sub(price).Div(avg).Mul(decimal.NewFromInt(100))
}

// Classify grades price against the statistics snapshot. Below MinHistory
// samples the quality is unknown and the caller must not gate the sample.
func Classify(price decimal.Decimal, s stats.Statistics) Classification {
	if s.TotalSamples < MinHistory {
		return Classification{
			Quality:   QualityUnknown,
			Urgency:   UrgencyLow,
			Bucket:    BucketMid,
			Rationale: fmt.Sprintf("only %d samples on record, need %d", s.TotalSamples, MinHistory),
		}
	}

	savings := SavingsPercent(price, s.AvgMedium)
	atOrBelowLow := s.AllTimeLow.IsPositive() && price.LessThanOrEqual(s.AllTimeLow)

	quality := gradeQuality(savings, atOrBelowLow)

	c := Classification{
		Quality:        quality,
		Urgency:        urgencyFor(quality),
		Bucket:         percentileBucket(price, s),
		SavingsPercent: savings,
		Outlier:        isOutlier(price, s),
	}
	c.Rationale = rationale(c, price, s, atOrBelowLow)
	return c
}

// gradeQuality assigns the tier ladder top-down, first match wins.
func gradeQuality(savings decimal.Decimal, atOrBelowLow bool) Quality {
	switch {
	case atOrBelowLow || savings.GreaterThanOrEqual(pct40):
		return QualityExceptional
	case savings.GreaterThanOrEqual(pct30):
		return QualityExcellent
	case savings.GreaterThanOrEqual(pct20):
		return QualityGreat
	case savings.GreaterThanOrEqual(pct10):
		return QualityGood
	case savings.GreaterThanOrEqual(decimal.Zero):
		return QualityFair
	default:
		return QualityPoor
	}
}

func urgencyFor(q Quality) Urgency {
	switch q {
	case QualityExceptional, QualityExcellent:
		return UrgencyHigh
	case QualityGreat, QualityGood:
		return UrgencyModerate
	default:
		return UrgencyLow
	}
}

// percentileBucket places the price into a coarse 3-bucket position.
// Deliberately not a true percentile rank.
func percentileBucket(price decimal.Decimal, s stats.Statistics) Bucket {
	switch {
	case price.LessThanOrEqual(s.P25):
		return BucketLow
	case price.GreaterThanOrEqual(s.P75):
		return BucketHigh
	default:
		return BucketMid
	}
}

// isOutlier flags prices more than outlierZScore standard deviations
// below the medium average.
func isOutlier(price decimal.Decimal, s stats.Statistics) bool {
	if !s.StdDev.IsPositive() || !price.LessThan(s.AvgMedium) {
		return false
	}
	z := s.AvgMedium.Sub(price).Div(s.StdDev)
	return z.GreaterThan(outlierZScore)
}

func rationale(c Classification, price decimal.Decimal, s stats.Statistics, atOrBelowLow bool) string {
	b := strings.Builder{}
	if atOrBelowLow {
		b.WriteString(fmt.Sprintf("price %s at or below all-time low %s", price.StringFixed(2), s.AllTimeLow.StringFixed(2)))
	} else {
		b.WriteString(fmt.Sprintf("%s%% below the rolling average of %s", c.SavingsPercent.StringFixed(1), s.AvgMedium.StringFixed(2)))
	}
	if c.Outlier {
		b.WriteString("; statistical outlier, verify before booking")
	}
	return b.String()
}
