package storage

import (
	"context"
	"fmt"
)

// Schema contains the complete DDL for the farewatch tables.
const Schema = `
CREATE TABLE IF NOT EXISTS destinations (
    id      BIGSERIAL PRIMARY KEY,
    code    TEXT NOT NULL UNIQUE,
    city    TEXT NOT NULL,
    active  BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS price_samples (
    id              BIGSERIAL PRIMARY KEY,
    destination_id  BIGINT NOT NULL REFERENCES destinations(id),
    price           NUMERIC(12,2) NOT NULL,
    currency        TEXT NOT NULL,
    depart_date     DATE NOT NULL,
    return_date     DATE NOT NULL,
    sampled_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_samples_dest_time ON price_samples(destination_id, sampled_at);

CREATE TABLE IF NOT EXISTS price_statistics (
    destination_id  BIGINT PRIMARY KEY REFERENCES destinations(id),
    avg_short       NUMERIC(12,2) NOT NULL,
    avg_medium      NUMERIC(12,2) NOT NULL,
    avg_long        NUMERIC(12,2) NOT NULL,
    p25             NUMERIC(12,2) NOT NULL,
    p50             NUMERIC(12,2) NOT NULL,
    p75             NUMERIC(12,2) NOT NULL,
    std_dev         NUMERIC(12,4) NOT NULL,
    all_time_low    NUMERIC(12,2) NOT NULL,
    all_time_high   NUMERIC(12,2) NOT NULL,
    total_samples   INTEGER NOT NULL,
    calculated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS subscribers (
    id                  BIGSERIAL PRIMARY KEY,
    email               TEXT NOT NULL UNIQUE,
    max_alerts_per_week INTEGER
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id               BIGSERIAL PRIMARY KEY,
    subscriber_id    BIGINT NOT NULL REFERENCES subscribers(id),
    destination_id   BIGINT NOT NULL REFERENCES destinations(id),
    threshold        NUMERIC(12,2) NOT NULL,
    min_quality      TEXT NOT NULL DEFAULT 'good',
    cooldown_days    INTEGER NOT NULL DEFAULT 0,
    min_drop_pct     NUMERIC(6,2),
    last_alert_at    TIMESTAMPTZ,
    last_alert_price NUMERIC(12,2),
    active           BOOLEAN NOT NULL DEFAULT TRUE,
    UNIQUE(subscriber_id, destination_id)
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_dest ON subscriptions(destination_id) WHERE active;

CREATE TABLE IF NOT EXISTS alert_records (
    id              BIGSERIAL PRIMARY KEY,
    subscription_id BIGINT NOT NULL REFERENCES subscriptions(id),
    subscriber_id   BIGINT NOT NULL REFERENCES subscribers(id),
    destination_id  BIGINT NOT NULL REFERENCES destinations(id),
    price           NUMERIC(12,2) NOT NULL,
    quality         TEXT NOT NULL,
    threshold       NUMERIC(12,2) NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_subscriber_time ON alert_records(subscriber_id, created_at);

CREATE TABLE IF NOT EXISTS notification_jobs (
    id             UUID PRIMARY KEY,
    subscriber_id  BIGINT NOT NULL REFERENCES subscribers(id),
    payload        JSONB NOT NULL,
    scheduled_for  TIMESTAMPTZ NOT NULL,
    status         TEXT NOT NULL DEFAULT 'pending',
    retry_count    INTEGER NOT NULL DEFAULT 0,
    max_retries    INTEGER NOT NULL DEFAULT 3,
    error          TEXT,
    sent_at        TIMESTAMPTZ,
    created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_due ON notification_jobs(scheduled_for) WHERE status = 'pending';
`

// EnsureSchema applies the DDL. All statements are idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
