// Package sampler orchestrates one price monitoring pass: fare lookup,
// history append, statistics refresh, classification, and gate
// evaluation per subscription.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"farewatch/internal/deal"
	"farewatch/internal/gate"
	"farewatch/internal/notify"
	"farewatch/internal/pricesource"
	"farewatch/internal/stats"
	"farewatch/internal/storage"
)

// Store is the persistence surface one sampling pass needs.
type Store interface {
	storage.DestinationStore
	storage.SampleStore
	storage.StatsStore
	storage.SubscriptionStore
	storage.AlertStore
	storage.PassRecorder
}

// Options parameterise a sampling pass.
type Options struct {
	Origin         string
	Currency       string
	LeadDays       int
	TripDays       int
	Windows        stats.Windows
	Defaults       gate.Defaults
	MaxRetries     int
	MaxConcurrency int
	RatePerSecond  float64
	LockKey        int64
}

// DestinationResult is one entry of the run summary.
type DestinationResult struct {
	Destination    string `json:"destination"`
	Price          string `json:"price,omitempty"`
	Error          string `json:"error,omitempty"`
	Quality        string `json:"quality,omitempty"`
	SavingsPercent string `json:"savings_percent,omitempty"`
	Alerts         int    `json:"alerts,omitempty"`
}

// RunSummary reports the outcome of one sampling pass.
type RunSummary struct {
	DestinationsChecked int                 `json:"destinations_checked"`
	AlertsTriggered     int                 `json:"alerts_triggered"`
	Results             []DestinationResult `json:"results"`
}

// Sampler runs price monitoring passes over active destinations.
type Sampler struct {
	source  pricesource.Source
	store   Store
	locker  storage.AdvisoryLocker
	limiter *rate.Limiter
	logger  zerolog.Logger
	opts    Options
	now     func() time.Time
}

// New constructs a Sampler. locker may be nil when run exclusivity is
// handled elsewhere.
func New(source pricesource.Source, store Store, locker storage.AdvisoryLocker, opts Options, logger zerolog.Logger) *Sampler {
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}

	return &Sampler{
		source:  source,
		store:   store,
		locker:  locker,
		limiter: limiter,
		logger:  logger.With().Str("component", "sampler").Logger(),
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source for tests.
func (s *Sampler) WithClock(now func() time.Time) *Sampler {
	s.now = now
	return s
}

// Run executes one pass over the destination subset selected by mode.
// Per-destination failures are isolated into the summary; only a
// store-level failure aborts the run.
func (s *Sampler) Run(ctx context.Context, mode storage.Mode) (RunSummary, error) {
	if s.locker != nil && s.opts.LockKey != 0 {
		unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
		if err != nil {
			return RunSummary{}, fmt.Errorf("acquire advisory lock: %w", err)
		}
		if !acquired {
			s.logger.Info().Msg("skip sampling pass: advisory lock held elsewhere")
			return RunSummary{}, nil
		}
		defer unlock()
	}

	destinations, err := s.store.ListDestinations(ctx, mode)
	if err != nil {
		return RunSummary{}, fmt.Errorf("list destinations: %w", err)
	}

	summary := RunSummary{
		DestinationsChecked: len(destinations),
		Results:             make([]DestinationResult, len(destinations)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrency)

	for i, dest := range destinations {
		i, dest := i, dest
		// Cancellation stops picking up new destinations; in-flight
		// ones finish or fail cleanly.
		if gctx.Err() != nil {
			mu.Lock()
			summary.Results[i] = DestinationResult{Destination: dest.Code, Error: gctx.Err().Error()}
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			result, alerts := s.processDestination(gctx, dest)
			mu.Lock()
			summary.Results[i] = result
			summary.AlertsTriggered += alerts
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	s.logger.Info().
		Int("destinations", summary.DestinationsChecked).
		Int("alerts", summary.AlertsTriggered).
		Str("mode", string(mode)).
		Msg("sampling pass complete")

	return summary, nil
}

func (s *Sampler) processDestination(ctx context.Context, dest storage.Destination) (DestinationResult, int) {
	result := DestinationResult{Destination: dest.Code}
	logger := s.logger.With().Str("destination", dest.Code).Logger()

	now := s.now()
	depart, ret := pricesource.TripDates(now, s.opts.LeadDays, s.opts.TripDays)

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			result.Error = err.Error()
			return result, 0
		}
	}

	quote, err := s.source.Lookup(ctx, pricesource.Query{
		Origin:      s.opts.Origin,
		Destination: dest.Code,
		DepartDate:  depart,
		ReturnDate:  ret,
	})
	if err != nil {
		if errors.Is(err, pricesource.ErrNoOffers) {
			logger.Info().Msg("no offers for route")
			result.Error = "no offers"
			return result, 0
		}
		logger.Error().Err(err).Msg("fare lookup failed")
		result.Error = err.Error()
		return result, 0
	}
	result.Price = quote.Price.StringFixed(2)

	sample := storage.PriceSample{
		DestinationID: dest.ID,
		Price:         quote.Price,
		Currency:      quote.Currency,
		DepartDate:    depart,
		ReturnDate:    ret,
		SampledAt:     now,
	}
	if err := s.store.InsertPriceSample(ctx, sample); err != nil {
		logger.Error().Err(err).Msg("failed to append price sample")
		result.Error = err.Error()
		return result, 0
	}

	st, err := s.refreshStatistics(ctx, dest.ID, now)
	if err != nil {
		// Without fresh aggregates the sample must not be gated
		// against stale or partial statistics.
		logger.Error().Err(err).Msg("statistics refresh failed; skipping classification")
		result.Error = fmt.Sprintf("statistics unavailable: %s", err)
		return result, 0
	}

	c := deal.Classify(quote.Price, st)
	result.Quality = c.Quality.String()
	if c.Quality != deal.QualityUnknown {
		result.SavingsPercent = c.SavingsPercent.StringFixed(1)
	}

	if c.Outlier {
		logger.Warn().
			Str("price", quote.Price.String()).
			Str("avg_medium", st.AvgMedium.String()).
			Str("std_dev", st.StdDev.String()).
			Msg("sample flagged as statistical outlier")
	}

	if c.Quality == deal.QualityUnknown {
		logger.Info().Int("total_samples", st.TotalSamples).Msg("insufficient history; sample not alertable")
		return result, 0
	}

	alerts := s.evaluateSubscriptions(ctx, dest, quote, c, depart, ret, now, logger)
	result.Alerts = alerts
	return result, alerts
}

func (s *Sampler) refreshStatistics(ctx context.Context, destinationID int64, now time.Time) (stats.Statistics, error) {
	since := now.Add(-s.opts.Windows.Long)
	samples, err := s.store.ListSamplesSince(ctx, destinationID, since)
	if err != nil {
		return stats.Statistics{}, fmt.Errorf("load sample history: %w", err)
	}

	st := stats.Compute(samples, now, s.opts.Windows)
	if err := s.store.UpsertStatistics(ctx, destinationID, st); err != nil {
		return stats.Statistics{}, fmt.Errorf("store statistics: %w", err)
	}
	return st, nil
}

func (s *Sampler) evaluateSubscriptions(ctx context.Context, dest storage.Destination, quote pricesource.Quote, c deal.Classification, depart, ret, now time.Time, logger zerolog.Logger) int {
	subs, err := s.store.ListActiveSubscriptions(ctx, dest.ID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list subscriptions")
		return 0
	}

	alerts := 0
	for _, sub := range subs {
		fired, err := s.evaluateOne(ctx, dest, sub, quote, c, depart, ret, now)
		if err != nil {
			// One subscription's failure must not starve the rest.
			logger.Error().Err(err).Int64("subscription_id", sub.ID).Msg("subscription evaluation failed")
			continue
		}
		if fired {
			alerts++
		}
	}
	return alerts
}

func (s *Sampler) evaluateOne(ctx context.Context, dest storage.Destination, sub gate.Subscription, quote pricesource.Quote, c deal.Classification, depart, ret, now time.Time) (bool, error) {
	weekly, err := s.store.CountAlertsSince(ctx, sub.SubscriberID, now.Add(-7*24*time.Hour))
	if err != nil {
		return false, fmt.Errorf("count weekly alerts: %w", err)
	}

	decision := gate.Evaluate(sub, c, quote.Price, weekly, s.opts.Defaults, now)
	if !decision.Pass {
		s.logger.Debug().
			Int64("subscription_id", sub.ID).
			Str("destination", dest.Code).
			Str("reason", string(decision.Reason)).
			Msg("alert suppressed")
		return false, nil
	}

	payload := notify.BuildPayload(s.opts.Origin, dest.Code, quote.Price, quote.Currency, c, sub.Threshold, depart, ret)
	raw, err := payload.Marshal()
	if err != nil {
		return false, err
	}

	pass := storage.AlertPass{
		SubscriptionID: sub.ID,
		SubscriberID:   sub.SubscriberID,
		DestinationID:  dest.ID,
		Price:          quote.Price,
		Quality:        c.Quality,
		Threshold:      sub.Threshold,
		PrevLastAlert:  sub.LastAlertAt,
		Payload:        raw,
		MaxRetries:     s.opts.MaxRetries,
		Now:            now,
	}
	if _, err := s.store.RecordAlertPass(ctx, pass); err != nil {
		if errors.Is(err, storage.ErrStaleSubscription) {
			s.logger.Info().Int64("subscription_id", sub.ID).Msg("concurrent pass already alerted this subscription")
			return false, nil
		}
		return false, fmt.Errorf("record alert pass: %w", err)
	}

	s.logger.Info().
		Int64("subscription_id", sub.ID).
		Str("destination", dest.Code).
		Str("quality", c.Quality.String()).
		Str("price", quote.Price.String()).
		Msg("alert recorded")
	return true, nil
}
