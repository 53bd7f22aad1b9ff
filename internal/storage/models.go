package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Destination is a tracked travel route target. Rows are managed by
// external admin tooling; this core only reads them.
type Destination struct {
	ID     int64
	Code   string
	City   string
	Active bool
}

// PriceSample is one append-only fare observation.
type PriceSample struct {
	ID            int64
	DestinationID int64
	Price         decimal.Decimal
	Currency      string
	DepartDate    time.Time
	ReturnDate    time.Time
	SampledAt     time.Time
}

// AlertRecord is the immutable fact that an alert fired.
type AlertRecord struct {
	ID             int64
	SubscriptionID int64
	SubscriberID   int64
	DestinationID  int64
	Price          decimal.Decimal
	Quality        string
	Threshold      decimal.Decimal
	CreatedAt      time.Time
}

// Job statuses.
const (
	JobStatusPending = "pending"
	JobStatusSent    = "sent"
	JobStatusFailed  = "failed"
)

// NotificationJob is a durable unit of pending outbound delivery work.
// Created by the alert pass transaction; mutated only by the dispatcher.
type NotificationJob struct {
	ID           uuid.UUID
	SubscriberID int64
	Payload      json.RawMessage
	ScheduledFor time.Time
	Status       string
	RetryCount   int
	MaxRetries   int
	Error        *string
	SentAt       *time.Time
	CreatedAt    time.Time
}

// SubscriberContact is the delivery address plus the per-subscriber
// weekly cap preference (0 when unset).
type SubscriberContact struct {
	SubscriberID     int64
	Email            string
	MaxAlertsPerWeek int
}
