// Package pricesource wraps the external fare quote API for one route
// and travel-date pair.
package pricesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const searchPath = "/v1/fares/search"

// ErrNoOffers signals the upstream returned an empty result set for the
// route. Distinct from transport or API failures: a timeout is never
// evidence of price absence.
var ErrNoOffers = errors.New("pricesource: no offers for route")

// Query identifies one fare lookup.
type Query struct {
	Origin      string
	Destination string
	DepartDate  time.Time
	ReturnDate  time.Time
}

// Quote is the cheapest available fare in the normalised currency.
type Quote struct {
	Price    decimal.Decimal
	Currency string
}

// Source retrieves the cheapest fare for a route, or ErrNoOffers.
type Source interface {
	Lookup(ctx context.Context, q Query) (Quote, error)
}

// Options parameterise the HTTP fare client.
type Options struct {
	BaseURL   string
	Currency  string
	UserAgent string
	Timeout   time.Duration
}

// Client fetches fare quotes over HTTP.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a fare source client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "fare_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Lookup returns the cheapest offer for the query.
func (c *Client) Lookup(ctx context.Context, q Query) (Quote, error) {
	if c.baseURL == "" {
		return Quote{}, errors.New("fare source base url not configured")
	}
	if q.Origin == "" || q.Destination == "" {
		return Quote{}, errors.New("origin and destination codes required")
	}

	params := url.Values{}
	params.Set("origin", q.Origin)
	params.Set("destination", q.Destination)
	params.Set("depart_date", q.DepartDate.Format("2006-01-02"))
	params.Set("return_date", q.ReturnDate.Format("2006-01-02"))
	if c.opts.Currency != "" {
		params.Set("currency", c.opts.Currency)
	}

	endpoint := c.baseURL + searchPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "farewatch/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("fare search request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return Quote{}, ErrNoOffers
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, parseHTTPError(resp.StatusCode, payload)
	}

	var res searchResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return Quote{}, fmt.Errorf("decode fare response: %w", err)
	}
	if len(res.Offers) == 0 {
		return Quote{}, ErrNoOffers
	}

	cheapest, err := cheapestOffer(res.Offers)
	if err != nil {
		return Quote{}, err
	}

	currency := cheapest.Currency
	if currency == "" {
		currency = c.opts.Currency
	}

	price, err := decimal.NewFromString(cheapest.Price)
	if err != nil {
		return Quote{}, fmt.Errorf("parse offer price: %w", err)
	}
	if !price.IsPositive() {
		return Quote{}, fmt.Errorf("offer price must be positive, got %s", cheapest.Price)
	}

	return Quote{Price: price, Currency: currency}, nil
}

// TripDates derives the sampling window: departure at a fixed lead time,
// return after a fixed trip length.
func TripDates(now time.Time, leadDays, tripDays int) (depart, ret time.Time) {
	depart = now.UTC().AddDate(0, 0, leadDays)
	ret = depart.AddDate(0, 0, tripDays)
	return depart, ret
}

type offer struct {
	Price    string `json:"price"`
	Currency string `json:"currency"`
	Carrier  string `json:"carrier"`
}

type searchResponse struct {
	Offers []offer `json:"offers"`
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func cheapestOffer(offers []offer) (offer, error) {
	best := offers[0]
	bestPrice, err := decimal.NewFromString(best.Price)
	if err != nil {
		return offer{}, fmt.Errorf("parse offer price: %w", err)
	}
	for _, o := range offers[1:] {
		p, err := decimal.NewFromString(o.Price)
		if err != nil {
			return offer{}, fmt.Errorf("parse offer price: %w", err)
		}
		if p.LessThan(bestPrice) {
			best = o
			bestPrice = p
		}
	}
	return best, nil
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("fare api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("fare api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("fare api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("fare api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("fare api error (%d)", status)
}

var _ Source = (*Client)(nil)
