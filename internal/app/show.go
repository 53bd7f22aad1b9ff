package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"farewatch/internal/storage"
)

type sampleViewer interface {
	GetDestinationByCode(ctx context.Context, code string) (storage.Destination, error)
	ListRecentSamples(ctx context.Context, destinationID int64, limit int) ([]storage.PriceSample, error)
}

type alertViewer interface {
	ListRecentAlerts(ctx context.Context, limit int) ([]storage.AlertRecord, error)
}

type jobViewer interface {
	ListJobsByStatus(ctx context.Context, status string, limit int) ([]storage.NotificationJob, error)
}

// Show prints recent samples, alerts, or failed jobs.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	switch {
	case opts.FailedJobs:
		return a.showFailedJobs(ctx, store, opts.Limit)
	case opts.Alerts:
		return a.showAlerts(ctx, store, opts.Limit)
	default:
		return a.showSamples(ctx, store, opts)
	}
}

func (a *App) showSamples(ctx context.Context, store sampleViewer, opts ShowOptions) error {
	if opts.Destination == "" {
		return fmt.Errorf("--destination is required when showing samples")
	}

	dest, err := store.GetDestinationByCode(ctx, opts.Destination)
	if err != nil {
		return err
	}

	samples, err := store.ListRecentSamples(ctx, dest.ID, opts.Limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sampled (UTC)\tPrice\tCurrency\tDepart\tReturn")
	for _, sample := range samples {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			sample.SampledAt.UTC().Format(time.RFC3339),
			formatDecimal(sample.Price, 2),
			sample.Currency,
			sample.DepartDate.Format("2006-01-02"),
			sample.ReturnDate.Format("2006-01-02"),
		)
	}
	return writer.Flush()
}

func (a *App) showAlerts(ctx context.Context, store alertViewer, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Fired (UTC)\tSubscriber\tDestination\tPrice\tQuality\tThreshold")
	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%d\t%s\t%s\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.SubscriberID,
			alert.DestinationID,
			formatDecimal(alert.Price, 2),
			alert.Quality,
			formatDecimal(alert.Threshold, 2),
		)
	}
	return writer.Flush()
}

func (a *App) showFailedJobs(ctx context.Context, store jobViewer, limit int) error {
	jobs, err := store.ListJobsByStatus(ctx, storage.JobStatusFailed, limit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(os.Stdout, "no failed jobs")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Created (UTC)\tJob\tSubscriber\tRetries\tError")
	for _, job := range jobs {
		errMsg := ""
		if job.Error != nil {
			errMsg = sanitizeInline(*job.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%d/%d\t%s\n",
			job.CreatedAt.UTC().Format(time.RFC3339),
			job.ID,
			job.SubscriberID,
			job.RetryCount,
			job.MaxRetries,
			errMsg,
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
