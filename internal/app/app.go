package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"farewatch/internal/config"
	"farewatch/internal/dispatcher"
	"farewatch/internal/gate"
	"farewatch/internal/notify"
	"farewatch/internal/pricesource"
	"farewatch/internal/sampler"
	"farewatch/internal/scheduler"
	"farewatch/internal/stats"
	"farewatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newSource() pricesource.Source {
	return pricesource.NewClient(pricesource.Options{
		BaseURL:   a.Config.FareSource.BaseURL,
		Currency:  a.Config.FareSource.Currency,
		UserAgent: a.Config.FareSource.UserAgent,
		Timeout:   a.Config.FareSource.RequestTimeout,
	}, a.Logger)
}

func (a *App) newChannel() notify.Channel {
	if a.Config.Alerting.Webhook.Enabled {
		cfg := a.Config.Alerting.Webhook
		return notify.NewWebhookChannel(cfg.URL, cfg.AuthToken, cfg.RequestTimeout, a.Logger)
	}
	return notify.NewLogChannel(a.Logger)
}

func (a *App) samplerOptions() sampler.Options {
	return sampler.Options{
		Origin:         a.Config.FareSource.Origin,
		Currency:       a.Config.FareSource.Currency,
		LeadDays:       a.Config.FareSource.LeadDays,
		TripDays:       a.Config.FareSource.TripDays,
		Windows:        stats.WindowsFromDays(a.Config.Stats.ShortWindowDays, a.Config.Stats.MediumWindowDays, a.Config.Stats.LongWindowDays),
		Defaults:       a.gateDefaults(),
		MaxRetries:     a.Config.Alerting.MaxRetries,
		MaxConcurrency: a.Config.FareSource.MaxConcurrency,
		RatePerSecond:  a.Config.FareSource.RatePerSecond,
		LockKey:        a.Config.Scheduler.AdvisoryLockKey,
	}
}

func (a *App) gateDefaults() gate.Defaults {
	return gate.Defaults{
		MinDropPct:       decimal.NewFromFloat(a.Config.Alerting.DefaultMinDropPct),
		MaxAlertsPerWeek: a.Config.Alerting.DefaultMaxAlertsPerWeek,
	}
}

func (a *App) newSampler(store *storage.Store, source pricesource.Source) *sampler.Sampler {
	return sampler.New(source, store, store, a.samplerOptions(), a.Logger)
}

func (a *App) newDispatcher(store *storage.Store, channel notify.Channel) *dispatcher.Dispatcher {
	return dispatcher.New(store, channel, dispatcher.Options{
		BatchSize:   a.Config.Alerting.BatchSize,
		Backoff:     a.Config.Alerting.RetryBackoff,
		SendTimeout: a.Config.Alerting.Webhook.RequestTimeout,
	}, a.Logger)
}

// Run executes the long-running monitoring service: the sampler loop and
// the dispatcher loop on independent schedules.
func (a *App) Run(ctx context.Context, mode storage.Mode) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	source := a.newSource()
	channel := a.newChannel()
	smp := a.newSampler(store, source)
	dsp := a.newDispatcher(store, channel)

	samplerSched := scheduler.New(scheduler.Options{
		Name:         "sampler_scheduler",
		Interval:     a.Config.Scheduler.SamplerInterval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	dispatcherSched := scheduler.New(scheduler.Options{
		Name:         "dispatcher_scheduler",
		Interval:     a.Config.Scheduler.DispatcherInterval,
		AlignToStart: false,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Msg("starting monitoring service")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return samplerSched.Run(gctx, func(tickCtx context.Context, _ time.Time) error {
			_, runErr := smp.Run(tickCtx, mode)
			return runErr
		})
	})
	g.Go(func() error {
		return dispatcherSched.Run(gctx, func(tickCtx context.Context, _ time.Time) error {
			_, sweepErr := dsp.Sweep(tickCtx)
			return sweepErr
		})
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// Migrate applies the database schema.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	a.Logger.Info().Msg("schema applied")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Destination string
	Limit       int
	Alerts      bool
	FailedJobs  bool
}

// ExportOptions hold parameters for exporting fare history.
type ExportOptions struct {
	Destination string
	From        *time.Time
	To          *time.Time
	PNGPath     string
	CSVPath     string
	MaxPoints   int
}
