// Package dispatcher drains due notification jobs and delivers them
// through the configured channel.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"farewatch/internal/notify"
	"farewatch/internal/storage"
)

// Store is the persistence surface one dispatcher sweep needs.
type Store interface {
	storage.JobStore
	storage.ContactStore
}

// Options tune sweep behaviour.
type Options struct {
	BatchSize   int
	Backoff     time.Duration
	SendTimeout time.Duration
	Lease       time.Duration
}

// SweepResult reports one sweep's outcome.
type SweepResult struct {
	Claimed     int `json:"claimed"`
	Sent        int `json:"sent"`
	Rescheduled int `json:"rescheduled"`
	Failed      int `json:"failed"`
}

// Dispatcher delivers pending notification jobs. Delivery is
// at-least-once: a send that succeeds before the status update commits
// may be re-sent on a later sweep, so the job id travels to the channel
// as an idempotency key.
type Dispatcher struct {
	store   Store
	channel notify.Channel
	logger  zerolog.Logger
	opts    Options
	now     func() time.Time
}

// New constructs a Dispatcher.
func New(store Store, channel notify.Channel, opts Options, logger zerolog.Logger) *Dispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Minute
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.Lease <= 0 {
		opts.Lease = 5 * time.Minute
	}

	return &Dispatcher{
		store:   store,
		channel: channel,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Sweep claims a bounded batch of due jobs and processes each one.
// Cancellation stops picking up further jobs from the batch; the claim
// lease returns unprocessed ones to the queue.
func (d *Dispatcher) Sweep(ctx context.Context) (SweepResult, error) {
	now := d.now()
	jobs, err := d.store.ClaimDueJobs(ctx, now, d.opts.BatchSize, d.opts.Lease)
	if err != nil {
		return SweepResult{}, fmt.Errorf("claim due jobs: %w", err)
	}

	result := SweepResult{Claimed: len(jobs)}
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		d.processJob(ctx, job, &result)
	}

	if result.Claimed > 0 {
		d.logger.Info().
			Int("claimed", result.Claimed).
			Int("sent", result.Sent).
			Int("rescheduled", result.Rescheduled).
			Int("failed", result.Failed).
			Msg("dispatch sweep complete")
	}
	return result, nil
}

func (d *Dispatcher) processJob(ctx context.Context, job storage.NotificationJob, result *SweepResult) {
	logger := d.logger.With().Str("job_id", job.ID.String()).Logger()

	var payload notify.Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		// A malformed payload can never succeed; fail it terminally.
		logger.Error().Err(err).Msg("job payload is malformed")
		if markErr := d.store.MarkJobFailed(ctx, job.ID, job.RetryCount, fmt.Sprintf("malformed payload: %s", err)); markErr != nil {
			logger.Error().Err(markErr).Msg("failed to mark job failed")
		}
		result.Failed++
		return
	}

	contact, err := d.store.GetSubscriberContact(ctx, job.SubscriberID)
	if err != nil {
		d.handleFailure(ctx, job, fmt.Sprintf("resolve recipient: %s", err), result, logger)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	deliveryID, err := d.channel.Send(sendCtx, contact.Email, payload.Render(), job.ID.String())
	cancel()
	if err != nil {
		d.handleFailure(ctx, job, err.Error(), result, logger)
		return
	}

	if err := d.store.MarkJobSent(ctx, job.ID, d.now()); err != nil {
		// The send went out; on the next sweep the idempotency key lets
		// the channel deduplicate the redelivery.
		logger.Error().Err(err).Msg("sent but failed to update job status")
		return
	}

	logger.Info().Str("delivery_id", deliveryID).Msg("notification sent")
	result.Sent++
}

func (d *Dispatcher) handleFailure(ctx context.Context, job storage.NotificationJob, errMsg string, result *SweepResult, logger zerolog.Logger) {
	retries := job.RetryCount + 1

	if retries >= job.MaxRetries {
		if err := d.store.MarkJobFailed(ctx, job.ID, retries, errMsg); err != nil {
			logger.Error().Err(err).Msg("failed to mark job failed")
			return
		}
		logger.Error().Str("error", errMsg).Int("retries", retries).Msg("job permanently failed; needs operator review")
		result.Failed++
		return
	}

	nextAt := d.now().Add(backoffDelay(d.opts.Backoff, retries))
	if err := d.store.RescheduleJob(ctx, job.ID, retries, errMsg, nextAt); err != nil {
		logger.Error().Err(err).Msg("failed to reschedule job")
		return
	}
	logger.Warn().Str("error", errMsg).Int("retries", retries).Time("next_at", nextAt).Msg("delivery failed; rescheduled")
	result.Rescheduled++
}

// backoffDelay doubles the base delay per attempt: base, 2*base, 4*base...
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}
