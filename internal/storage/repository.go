package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"farewatch/internal/deal"
	"farewatch/internal/gate"
	"farewatch/internal/stats"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrStaleSubscription indicates the optimistic last_alert check
	// failed: a concurrent pass already advanced the subscription.
	ErrStaleSubscription = errors.New("storage: subscription alert state changed concurrently")
	// ErrNotFound indicates a missing row.
	ErrNotFound = errors.New("storage: not found")
)

// Mode selects the destination subset for a sampling run.
type Mode string

const (
	ModeAll       Mode = "all"
	ModeTracked   Mode = "tracked"
	ModeUntracked Mode = "untracked"
)

const (
	listDestinationsSQL = `SELECT id, code, city, active
    FROM destinations
    WHERE active
    ORDER BY code;`

	listTrackedDestinationsSQL = `SELECT d.id, d.code, d.city, d.active
    FROM destinations d
    WHERE d.active
      AND EXISTS (
        SELECT 1 FROM subscriptions s
        WHERE s.destination_id = d.id AND s.active
      )
    ORDER BY d.code;`

	listUntrackedDestinationsSQL = `SELECT d.id, d.code, d.city, d.active
    FROM destinations d
    WHERE d.active
      AND NOT EXISTS (
        SELECT 1 FROM subscriptions s
        WHERE s.destination_id = d.id AND s.active
      )
    ORDER BY d.code;`

	getDestinationByCodeSQL = `SELECT id, code, city, active
    FROM destinations
    WHERE code = $1;`

	insertPriceSampleSQL = `INSERT INTO price_samples (
        destination_id,
        price,
        currency,
        depart_date,
        return_date,
        sampled_at
    ) VALUES ($1,$2,$3,$4,$5,$6);`

	listSamplesSinceSQL = `SELECT price, sampled_at
    FROM price_samples
    WHERE destination_id = $1
      AND sampled_at >= $2
    ORDER BY sampled_at;`

	listRecentSamplesSQL = `SELECT id, destination_id, price, currency, depart_date, return_date, sampled_at
    FROM price_samples
    WHERE destination_id = $1
    ORDER BY sampled_at DESC
    LIMIT $2;`

	listSamplesBetweenSQL = `SELECT id, destination_id, price, currency, depart_date, return_date, sampled_at
    FROM price_samples
    WHERE destination_id = $1
      AND sampled_at >= $2
      AND sampled_at < $3
    ORDER BY sampled_at;`

	upsertStatisticsSQL = `INSERT INTO price_statistics (
        destination_id,
        avg_short,
        avg_medium,
        avg_long,
        p25,
        p50,
        p75,
        std_dev,
        all_time_low,
        all_time_high,
        total_samples,
        calculated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    ON CONFLICT (destination_id) DO UPDATE
    SET
        avg_short     = EXCLUDED.avg_short,
        avg_medium    = EXCLUDED.avg_medium,
        avg_long      = EXCLUDED.avg_long,
        p25           = EXCLUDED.p25,
        p50           = EXCLUDED.p50,
        p75           = EXCLUDED.p75,
        std_dev       = EXCLUDED.std_dev,
        all_time_low  = EXCLUDED.all_time_low,
        all_time_high = EXCLUDED.all_time_high,
        total_samples = EXCLUDED.total_samples,
        calculated_at = EXCLUDED.calculated_at;`

	getStatisticsSQL = `SELECT
        avg_short, avg_medium, avg_long,
        p25, p50, p75,
        std_dev, all_time_low, all_time_high,
        total_samples, calculated_at
    FROM price_statistics
    WHERE destination_id = $1;`

	listActiveSubscriptionsSQL = `SELECT
        s.id,
        s.subscriber_id,
        s.destination_id,
        s.threshold,
        s.min_quality,
        s.cooldown_days,
        s.min_drop_pct,
        s.last_alert_at,
        s.last_alert_price,
        COALESCE(u.max_alerts_per_week, 0)
    FROM subscriptions s
    JOIN subscribers u ON u.id = s.subscriber_id
    WHERE s.destination_id = $1
      AND s.active
    ORDER BY s.id;`

	countAlertsSinceSQL = `SELECT COUNT(*)
    FROM alert_records
    WHERE subscriber_id = $1
      AND created_at >= $2;`

	listRecentAlertsSQL = `SELECT
        id, subscription_id, subscriber_id, destination_id,
        price, quality, threshold, created_at
    FROM alert_records
    ORDER BY created_at DESC
    LIMIT $1;`

	advanceSubscriptionSQL = `UPDATE subscriptions
    SET last_alert_at = $2, last_alert_price = $3
    WHERE id = $1
      AND last_alert_at IS NOT DISTINCT FROM $4
      AND ($4 IS NULL OR $2 > $4);`

	insertAlertRecordSQL = `INSERT INTO alert_records (
        subscription_id,
        subscriber_id,
        destination_id,
        price,
        quality,
        threshold,
        created_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7)
    RETURNING id, created_at;`

	insertJobSQL = `INSERT INTO notification_jobs (
        id,
        subscriber_id,
        payload,
        scheduled_for,
        status,
        retry_count,
        max_retries,
        created_at
    ) VALUES ($1,$2,$3,$4,'pending',0,$5,$6);`

	claimDueJobsSQL = `UPDATE notification_jobs
    SET scheduled_for = $2
    WHERE id IN (
        SELECT id FROM notification_jobs
        WHERE status = 'pending'
          AND scheduled_for <= $1
        ORDER BY scheduled_for
        LIMIT $3
        FOR UPDATE SKIP LOCKED
    )
    RETURNING id, subscriber_id, payload, scheduled_for, status, retry_count, max_retries, error, sent_at, created_at;`

	markJobSentSQL = `UPDATE notification_jobs
    SET status = 'sent', sent_at = $2, error = NULL
    WHERE id = $1;`

	rescheduleJobSQL = `UPDATE notification_jobs
    SET retry_count = $2, error = $3, scheduled_for = $4
    WHERE id = $1;`

	markJobFailedSQL = `UPDATE notification_jobs
    SET status = 'failed', retry_count = $2, error = $3
    WHERE id = $1;`

	listJobsByStatusSQL = `SELECT
        id, subscriber_id, payload, scheduled_for, status, retry_count, max_retries, error, sent_at, created_at
    FROM notification_jobs
    WHERE status = $1
    ORDER BY created_at DESC
    LIMIT $2;`

	getSubscriberContactSQL = `SELECT id, email, COALESCE(max_alerts_per_week, 0)
    FROM subscribers
    WHERE id = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// DestinationStore lists route targets for a sampling run.
type DestinationStore interface {
	ListDestinations(ctx context.Context, mode Mode) ([]Destination, error)
}

// SampleStore defines operations for the append-only fare ledger.
type SampleStore interface {
	InsertPriceSample(ctx context.Context, sample PriceSample) error
	ListSamplesSince(ctx context.Context, destinationID int64, since time.Time) ([]stats.Sample, error)
	ListRecentSamples(ctx context.Context, destinationID int64, limit int) ([]PriceSample, error)
}

// StatsStore persists the derived statistics cache.
type StatsStore interface {
	UpsertStatistics(ctx context.Context, destinationID int64, s stats.Statistics) error
	GetStatistics(ctx context.Context, destinationID int64) (stats.Statistics, error)
}

// SubscriptionStore reads gating snapshots.
type SubscriptionStore interface {
	ListActiveSubscriptions(ctx context.Context, destinationID int64) ([]gate.Subscription, error)
}

// AlertStore defines operations for the alert audit trail.
type AlertStore interface {
	CountAlertsSince(ctx context.Context, subscriberID int64, since time.Time) (int, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// AlertPass captures everything a successful gate pass must persist.
type AlertPass struct {
	SubscriptionID int64
	SubscriberID   int64
	DestinationID  int64
	Price          decimal.Decimal
	Quality        deal.Quality
	Threshold      decimal.Decimal
	PrevLastAlert  *time.Time
	Payload        json.RawMessage
	MaxRetries     int
	Now            time.Time
}

// PassRecorder applies the alert record, subscription advance, and job
// enqueue as one transaction.
type PassRecorder interface {
	RecordAlertPass(ctx context.Context, pass AlertPass) (AlertRecord, error)
}

// JobStore defines dispatcher-side queue operations.
type JobStore interface {
	ClaimDueJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]NotificationJob, error)
	MarkJobSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	RescheduleJob(ctx context.Context, id uuid.UUID, retryCount int, errMsg string, nextAt time.Time) error
	MarkJobFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error
	ListJobsByStatus(ctx context.Context, status string, limit int) ([]NotificationJob, error)
}

// ContactStore resolves subscriber delivery addresses and preferences.
type ContactStore interface {
	GetSubscriberContact(ctx context.Context, subscriberID int64) (SubscriberContact, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to all pipeline tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort: the lock also releases when the session ends.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// ListDestinations returns active destinations for the given mode.
func (s *Store) ListDestinations(ctx context.Context, mode Mode) ([]Destination, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	query := listDestinationsSQL
	switch mode {
	case ModeAll, "":
	case ModeTracked:
		query = listTrackedDestinationsSQL
	case ModeUntracked:
		query = listUntrackedDestinationsSQL
	default:
		return nil, fmt.Errorf("unknown destination mode %q", mode)
	}

	rows, queryErr := pool.Query(ctx, query)
	if queryErr != nil {
		return nil, fmt.Errorf("list destinations: %w", queryErr)
	}
	defer rows.Close()

	destinations := make([]Destination, 0)
	for rows.Next() {
		var d Destination
		if err := rows.Scan(&d.ID, &d.Code, &d.City, &d.Active); err != nil {
			return nil, err
		}
		destinations = append(destinations, d)
	}
	return destinations, rows.Err()
}

// GetDestinationByCode resolves a destination by its route code.
func (s *Store) GetDestinationByCode(ctx context.Context, code string) (Destination, error) {
	pool, err := s.getPool()
	if err != nil {
		return Destination{}, err
	}

	var d Destination
	row := pool.QueryRow(ctx, getDestinationByCodeSQL, code)
	if scanErr := row.Scan(&d.ID, &d.Code, &d.City, &d.Active); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Destination{}, ErrNotFound
		}
		return Destination{}, fmt.Errorf("get destination by code: %w", scanErr)
	}
	return d, nil
}

// ListSamplesBetween lists samples within a time window for display and export.
func (s *Store) ListSamplesBetween(ctx context.Context, destinationID int64, from, to time.Time) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, destinationID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]PriceSample, 0)
	for rows.Next() {
		sample, scanErr := scanPriceSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// InsertPriceSample appends one fare observation.
func (s *Store) InsertPriceSample(ctx context.Context, sample PriceSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertPriceSampleSQL,
		sample.DestinationID,
		sample.Price.String(),
		sample.Currency,
		sample.DepartDate,
		sample.ReturnDate,
		sample.SampledAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert price sample: %w", execErr)
	}
	return nil
}

// ListSamplesSince returns statistics-engine inputs for a destination.
func (s *Store) ListSamplesSince(ctx context.Context, destinationID int64, since time.Time) ([]stats.Sample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesSinceSQL, destinationID, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples since: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]stats.Sample, 0)
	for rows.Next() {
		var priceStr string
		var sampledAt time.Time
		if err := rows.Scan(&priceStr, &sampledAt); err != nil {
			return nil, err
		}
		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse sample price: %w", convErr)
		}
		samples = append(samples, stats.Sample{Price: price, SampledAt: sampledAt})
	}
	return samples, rows.Err()
}

// ListRecentSamples lists the most recent samples for display.
func (s *Store) ListRecentSamples(ctx context.Context, destinationID int64, limit int) ([]PriceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, destinationID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]PriceSample, 0, limit)
	for rows.Next() {
		sample, scanErr := scanPriceSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// UpsertStatistics stores the recomputed aggregate row.
func (s *Store) UpsertStatistics(ctx context.Context, destinationID int64, st stats.Statistics) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertStatisticsSQL,
		destinationID,
		st.AvgShort.String(),
		st.AvgMedium.String(),
		st.AvgLong.String(),
		st.P25.String(),
		st.P50.String(),
		st.P75.String(),
		st.StdDev.String(),
		st.AllTimeLow.String(),
		st.AllTimeHigh.String(),
		st.TotalSamples,
		st.CalculatedAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert statistics: %w", execErr)
	}
	return nil
}

// GetStatistics loads the cached aggregates for a destination.
func (s *Store) GetStatistics(ctx context.Context, destinationID int64) (stats.Statistics, error) {
	pool, err := s.getPool()
	if err != nil {
		return stats.Statistics{}, err
	}

	var (
		st      stats.Statistics
		numeric [9]string
	)
	row := pool.QueryRow(ctx, getStatisticsSQL, destinationID)
	if scanErr := row.Scan(
		&numeric[0], &numeric[1], &numeric[2],
		&numeric[3], &numeric[4], &numeric[5],
		&numeric[6], &numeric[7], &numeric[8],
		&st.TotalSamples, &st.CalculatedAt,
	); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return stats.Statistics{}, ErrNotFound
		}
		return stats.Statistics{}, fmt.Errorf("get statistics: %w", scanErr)
	}

	fields := []*decimal.Decimal{
		&st.AvgShort, &st.AvgMedium, &st.AvgLong,
		&st.P25, &st.P50, &st.P75,
		&st.StdDev, &st.AllTimeLow, &st.AllTimeHigh,
	}
	for i, target := range fields {
		value, convErr := decimal.NewFromString(numeric[i])
		if convErr != nil {
			return stats.Statistics{}, fmt.Errorf("parse statistics value: %w", convErr)
		}
		*target = value
	}
	return st, nil
}

// ListActiveSubscriptions loads gating snapshots for a destination.
func (s *Store) ListActiveSubscriptions(ctx context.Context, destinationID int64) ([]gate.Subscription, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveSubscriptionsSQL, destinationID)
	if queryErr != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", queryErr)
	}
	defer rows.Close()

	subs := make([]gate.Subscription, 0)
	for rows.Next() {
		sub, scanErr := scanSubscription(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CountAlertsSince counts alert records for a subscriber after a cutoff.
func (s *Store) CountAlertsSince(ctx context.Context, subscriberID int64, since time.Time) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var count int
	if scanErr := pool.QueryRow(ctx, countAlertsSinceSQL, subscriberID, since).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count alerts since: %w", scanErr)
	}
	return count, nil
}

// ListRecentAlerts lists most recent alert records.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlertRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

// RecordAlertPass persists a gate pass atomically: advance the
// subscription under an optimistic last_alert check, append the alert
// record, and enqueue exactly one notification job. A crash between the
// steps rolls the whole pass back.
func (s *Store) RecordAlertPass(ctx context.Context, pass AlertPass) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("begin alert pass: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, execErr := tx.Exec(ctx, advanceSubscriptionSQL,
		pass.SubscriptionID,
		pass.Now,
		pass.Price.String(),
		pass.PrevLastAlert,
	)
	if execErr != nil {
		return AlertRecord{}, fmt.Errorf("advance subscription: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return AlertRecord{}, ErrStaleSubscription
	}

	rec := AlertRecord{
		SubscriptionID: pass.SubscriptionID,
		SubscriberID:   pass.SubscriberID,
		DestinationID:  pass.DestinationID,
		Price:          pass.Price,
		Quality:        pass.Quality.String(),
		Threshold:      pass.Threshold,
	}
	row := tx.QueryRow(ctx, insertAlertRecordSQL,
		pass.SubscriptionID,
		pass.SubscriberID,
		pass.DestinationID,
		pass.Price.String(),
		rec.Quality,
		pass.Threshold.String(),
		pass.Now,
	)
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert record: %w", scanErr)
	}

	jobID := uuid.New()
	if _, execErr := tx.Exec(ctx, insertJobSQL,
		jobID,
		pass.SubscriberID,
		pass.Payload,
		pass.Now,
		pass.MaxRetries,
		pass.Now,
	); execErr != nil {
		return AlertRecord{}, fmt.Errorf("enqueue notification job: %w", execErr)
	}

	if err := tx.Commit(ctx); err != nil {
		return AlertRecord{}, fmt.Errorf("commit alert pass: %w", err)
	}
	return rec, nil
}

// ClaimDueJobs leases a bounded batch of due pending jobs. The lease
// pushes scheduled_for into the future so a crashed dispatcher's batch
// becomes claimable again; status stays pending until sent or failed.
func (s *Store) ClaimDueJobs(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]NotificationJob, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, claimDueJobsSQL, now, now.Add(lease), limit)
	if queryErr != nil {
		return nil, fmt.Errorf("claim due jobs: %w", queryErr)
	}
	defer rows.Close()

	jobs := make([]NotificationJob, 0, limit)
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkJobSent finalises a delivered job.
func (s *Store) MarkJobSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	return s.execJobUpdate(ctx, markJobSentSQL, id, sentAt)
}

// RescheduleJob records a failed attempt and pushes the next one out.
func (s *Store) RescheduleJob(ctx context.Context, id uuid.UUID, retryCount int, errMsg string, nextAt time.Time) error {
	return s.execJobUpdate(ctx, rescheduleJobSQL, id, retryCount, errMsg, nextAt)
}

// MarkJobFailed terminally fails a job for operator review.
func (s *Store) MarkJobFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error {
	return s.execJobUpdate(ctx, markJobFailedSQL, id, retryCount, errMsg)
}

func (s *Store) execJobUpdate(ctx context.Context, query string, id uuid.UUID, args ...interface{}) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	params := append([]interface{}{id}, args...)
	tag, execErr := pool.Exec(ctx, query, params...)
	if execErr != nil {
		return fmt.Errorf("update notification job: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListJobsByStatus lists jobs for display, newest first.
func (s *Store) ListJobsByStatus(ctx context.Context, status string, limit int) ([]NotificationJob, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listJobsByStatusSQL, status, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list jobs by status: %w", queryErr)
	}
	defer rows.Close()

	jobs := make([]NotificationJob, 0, limit)
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetSubscriberContact resolves the delivery address and weekly cap.
func (s *Store) GetSubscriberContact(ctx context.Context, subscriberID int64) (SubscriberContact, error) {
	pool, err := s.getPool()
	if err != nil {
		return SubscriberContact{}, err
	}

	var contact SubscriberContact
	row := pool.QueryRow(ctx, getSubscriberContactSQL, subscriberID)
	if scanErr := row.Scan(&contact.SubscriberID, &contact.Email, &contact.MaxAlertsPerWeek); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return SubscriberContact{}, ErrNotFound
		}
		return SubscriberContact{}, fmt.Errorf("get subscriber contact: %w", scanErr)
	}
	return contact, nil
}

func scanPriceSample(rows pgx.Rows) (PriceSample, error) {
	var (
		sample   PriceSample
		priceStr string
	)
	if err := rows.Scan(
		&sample.ID,
		&sample.DestinationID,
		&priceStr,
		&sample.Currency,
		&sample.DepartDate,
		&sample.ReturnDate,
		&sample.SampledAt,
	); err != nil {
		return PriceSample{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceSample{}, fmt.Errorf("parse sample price: %w", err)
	}
	sample.Price = price
	return sample, nil
}

func scanSubscription(rows pgx.Rows) (gate.Subscription, error) {
	var (
		sub          gate.Subscription
		thresholdStr string
		minQuality   string
		minDropStr   *string
		lastPriceStr *string
	)
	if err := rows.Scan(
		&sub.ID,
		&sub.SubscriberID,
		&sub.DestinationID,
		&thresholdStr,
		&minQuality,
		&sub.CooldownDays,
		&minDropStr,
		&sub.LastAlertAt,
		&lastPriceStr,
		&sub.MaxAlertsPerWeek,
	); err != nil {
		return gate.Subscription{}, err
	}
	sub.Active = true

	threshold, err := decimal.NewFromString(thresholdStr)
	if err != nil {
		return gate.Subscription{}, fmt.Errorf("parse subscription threshold: %w", err)
	}
	sub.Threshold = threshold

	quality, err := deal.ParseQuality(minQuality)
	if err != nil {
		return gate.Subscription{}, fmt.Errorf("parse min quality: %w", err)
	}
	sub.MinQuality = quality

	if minDropStr != nil {
		minDrop, convErr := decimal.NewFromString(*minDropStr)
		if convErr != nil {
			return gate.Subscription{}, fmt.Errorf("parse min drop pct: %w", convErr)
		}
		sub.MinDropPct = &minDrop
	}
	if lastPriceStr != nil {
		lastPrice, convErr := decimal.NewFromString(*lastPriceStr)
		if convErr != nil {
			return gate.Subscription{}, fmt.Errorf("parse last alert price: %w", convErr)
		}
		sub.LastAlertPrice = &lastPrice
	}
	return sub, nil
}

func scanAlertRecord(rows pgx.Rows) (AlertRecord, error) {
	var (
		rec          AlertRecord
		priceStr     string
		thresholdStr string
	)
	if err := rows.Scan(
		&rec.ID,
		&rec.SubscriptionID,
		&rec.SubscriberID,
		&rec.DestinationID,
		&priceStr,
		&rec.Quality,
		&thresholdStr,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("parse alert price: %w", err)
	}
	rec.Price = price

	threshold, err := decimal.NewFromString(thresholdStr)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("parse alert threshold: %w", err)
	}
	rec.Threshold = threshold
	return rec, nil
}

func scanJob(rows pgx.Rows) (NotificationJob, error) {
	var (
		job     NotificationJob
		payload json.RawMessage
	)
	if err := rows.Scan(
		&job.ID,
		&job.SubscriberID,
		&payload,
		&job.ScheduledFor,
		&job.Status,
		&job.RetryCount,
		&job.MaxRetries,
		&job.Error,
		&job.SentAt,
		&job.CreatedAt,
	); err != nil {
		return NotificationJob{}, err
	}
	job.Payload = payload
	return job, nil
}
