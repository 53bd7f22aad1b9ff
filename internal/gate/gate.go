// Package gate decides, per subscription, whether a classified sample
// produces an alert. Evaluation is a pure ordered predicate chain over
// explicit snapshots; the failing predicate is reported as the
// suppression reason.
package gate

import (
	"time"

	"github.com/shopspring/decimal"

	"farewatch/internal/deal"
)

// Reason identifies the predicate that suppressed an alert.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonUnknownQuality Reason = "unknown_quality"
	ReasonThreshold      Reason = "threshold"
	ReasonQualityFloor   Reason = "quality_floor"
	ReasonCooldown       Reason = "cooldown"
	ReasonMinDrop        Reason = "min_drop"
	ReasonWeeklyCap      Reason = "weekly_cap"
)

// Subscription is the per (subscriber, destination) gating snapshot.
// LastAlertAt/LastAlertPrice are mutated only by a successful pass.
type Subscription struct {
	ID             int64
	SubscriberID   int64
	DestinationID  int64
	Threshold      decimal.Decimal
	MinQuality     deal.Quality
	CooldownDays   int
	MinDropPct     *decimal.Decimal // nil means deployment default
	LastAlertAt    *time.Time
	LastAlertPrice *decimal.Decimal
	// MaxAlertsPerWeek comes from subscriber preferences; 0 means the
	// deployment default.
	MaxAlertsPerWeek int
	Active           bool
}

// Defaults are deployment-wide fallbacks for unset preferences.
type Defaults struct {
	MinDropPct       decimal.Decimal
	MaxAlertsPerWeek int
}

// Decision is the gate verdict for one subscription and sample.
type Decision struct {
	Pass   bool
	Reason Reason
}

func pass() Decision         { return Decision{Pass: true} }
func fail(r Reason) Decision { return Decision{Reason: r} }

// Evaluate runs the predicate chain. weeklyAlerts is the count of alert
// records for this subscriber in the trailing seven days.
func Evaluate(sub Subscription, c deal.Classification, price decimal.Decimal, weeklyAlerts int, d Defaults, now time.Time) Decision {
	if c.Quality == deal.QualityUnknown {
		return fail(ReasonUnknownQuality)
	}

	if price.GreaterThan(sub.Threshold) {
		return fail(ReasonThreshold)
	}

	if c.Quality < sub.MinQuality {
		return fail(ReasonQualityFloor)
	}

	// Exceptional deals bypass cooldown, marginal improvement, and the
	// weekly cap.
	exceptional := c.Quality == deal.QualityExceptional

	if !exceptional && sub.LastAlertAt != nil {
		cooldown := time.Duration(sub.CooldownDays) * 24 * time.Hour
		if now.Sub(*sub.LastAlertAt) < cooldown {
			return fail(ReasonCooldown)
		}
	}

	if !exceptional && sub.LastAlertAt != nil && sub.LastAlertPrice != nil && sub.LastAlertPrice.IsPositive() {
		required := d.MinDropPct
		if sub.MinDropPct != nil {
			required = *sub.MinDropPct
		}
		drop := sub.LastAlertPrice.Sub(price).Div(*sub.LastAlertPrice).Mul(decimal.NewFromInt(100))
		if drop.LessThan(required) {
			return fail(ReasonMinDrop)
		}
	}

	if !exceptional {
		limit := sub.MaxAlertsPerWeek
		if limit <= 0 {
			limit = d.MaxAlertsPerWeek
		}
		if weeklyAlerts >= limit {
			return fail(ReasonWeeklyCap)
		}
	}

	return pass()
}
