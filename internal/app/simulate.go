package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"farewatch/internal/deal"
	"farewatch/internal/gate"
)

// SimulateAlert classifies a synthetic price against a destination's
// stored statistics and previews every subscription's gate decision.
// Nothing is persisted.
func (a *App) SimulateAlert(ctx context.Context, destinationCode string, price decimal.Decimal) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	dest, err := store.GetDestinationByCode(ctx, destinationCode)
	if err != nil {
		return err
	}

	st, err := store.GetStatistics(ctx, dest.ID)
	if err != nil {
		return fmt.Errorf("no statistics for %s yet: %w", destinationCode, err)
	}

	c := deal.Classify(price, st)
	fmt.Fprintf(os.Stdout, "quality: %s\nurgency: %s\nbucket: %s\nsavings: %s%%\nrationale: %s\noutlier: %t\n\n",
		c.Quality, c.Urgency, c.Bucket, c.SavingsPercent.StringFixed(1), c.Rationale, c.Outlier)

	subs, err := store.ListActiveSubscriptions(ctx, dest.ID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		fmt.Fprintln(os.Stdout, "no active subscriptions on this destination")
		return nil
	}

	now := time.Now().UTC()
	defaults := a.gateDefaults()

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Subscription\tSubscriber\tThreshold\tDecision\tReason")
	for _, sub := range subs {
		weekly, countErr := store.CountAlertsSince(ctx, sub.SubscriberID, now.Add(-7*24*time.Hour))
		if countErr != nil {
			return countErr
		}

		decision := gate.Evaluate(sub, c, price, weekly, defaults, now)
		verdict := "suppress"
		if decision.Pass {
			verdict = "pass"
		}
		fmt.Fprintf(writer, "%d\t%d\t%s\t%s\t%s\n",
			sub.ID, sub.SubscriberID, sub.Threshold.StringFixed(2), verdict, decision.Reason)
	}
	return writer.Flush()
}
