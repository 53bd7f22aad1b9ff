// Package notify renders alert payloads and delivers them through a
// pluggable channel.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"farewatch/internal/deal"
)

// Payload carries rendered-content inputs for one notification, not
// rendered HTML. Stored verbatim on the job row.
type Payload struct {
	Destination    string          `json:"destination"`
	Origin         string          `json:"origin"`
	Price          decimal.Decimal `json:"price"`
	Currency       string          `json:"currency"`
	Quality        string          `json:"quality"`
	Urgency        string          `json:"urgency"`
	SavingsPercent decimal.Decimal `json:"savings_percent"`
	Rationale      string          `json:"rationale"`
	Threshold      decimal.Decimal `json:"threshold"`
	DepartDate     time.Time       `json:"depart_date"`
	ReturnDate     time.Time       `json:"return_date"`
}

// BuildPayload assembles the job payload from the classification and the
// subscription threshold at firing time.
func BuildPayload(origin, destination string, price decimal.Decimal, currency string, c deal.Classification, threshold decimal.Decimal, depart, ret time.Time) Payload {
	return Payload{
		Destination:    destination,
		Origin:         origin,
		Price:          price,
		Currency:       currency,
		Quality:        c.Quality.String(),
		Urgency:        string(c.Urgency),
		SavingsPercent: c.SavingsPercent,
		Rationale:      c.Rationale,
		Threshold:      threshold,
		DepartDate:     depart,
		ReturnDate:     ret,
	}
}

// Marshal encodes the payload for storage on the job row.
func (p Payload) Marshal() (json.RawMessage, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal notification payload: %w", err)
	}
	return raw, nil
}

// Render produces the plain-text message body.
func (p Payload) Render() string {
	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("[Fare Alert] %s-%s\n", p.Origin, p.Destination))
	b.WriteString(fmt.Sprintf("Price: %s %s (your threshold %s)\n", p.Price.StringFixed(2), p.Currency, p.Threshold.StringFixed(2)))
	b.WriteString(fmt.Sprintf("Deal quality: %s (%s urgency)\n", p.Quality, p.Urgency))
	if !p.SavingsPercent.IsZero() {
		b.WriteString(fmt.Sprintf("Savings: %s%% vs recent average\n", p.SavingsPercent.StringFixed(1)))
	}
	b.WriteString(fmt.Sprintf("Dates: %s to %s\n", p.DepartDate.Format("2006-01-02"), p.ReturnDate.Format("2006-01-02")))
	if p.Rationale != "" {
		b.WriteString(p.Rationale)
	}
	return b.String()
}

// Channel delivers a rendered message to a recipient address. The
// idempotency key lets dedup-capable channels drop repeated sends of the
// same job.
type Channel interface {
	Send(ctx context.Context, recipient, message, idempotencyKey string) (deliveryID string, err error)
}
