package pricesource

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testQuery() Query {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	depart, ret := TripDates(now, 30, 7)
	return Query{Origin: "PEK", Destination: "NRT", DepartDate: depart, ReturnDate: ret}
}

func TestLookupMissingConfig(t *testing.T) {
	c := NewClient(Options{}, noopLogger())
	if _, err := c.Lookup(context.Background(), testQuery()); err == nil {
		t.Fatal("未配置 base url 时应报错")
	}

	c = NewClient(Options{BaseURL: "http://localhost"}, noopLogger())
	if _, err := c.Lookup(context.Background(), Query{Origin: "PEK"}); err == nil {
		t.Fatal("缺少目的地代码应报错")
	}
}

func TestLookupPicksCheapestOffer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("origin") != "PEK" || r.URL.Query().Get("destination") != "NRT" {
			t.Fatalf("查询参数不正确: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"offers": []map[string]string{
				{"price": "3200.00", "currency": "CNY", "carrier": "CA"},
				{"price": "2850.50", "currency": "CNY", "carrier": "MU"},
				{"price": "2999.99", "currency": "CNY", "carrier": "NH"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Currency: "CNY", Timeout: time.Second}, noopLogger())
	quote, err := c.Lookup(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if !quote.Price.Equal(decimal.RequireFromString("2850.50")) {
		t.Fatalf("应返回最低报价, 实际 %s", quote.Price)
	}
	if quote.Currency != "CNY" {
		t.Fatalf("币种不正确: %s", quote.Currency)
	}
}

func TestLookupNoOffers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"offers": []any{}})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := c.Lookup(context.Background(), testQuery()); !errors.Is(err, ErrNoOffers) {
		t.Fatalf("空报价应返回 ErrNoOffers, 实际 %v", err)
	}
}

func TestLookupNotFoundMeansNoOffers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := c.Lookup(context.Background(), testQuery()); !errors.Is(err, ErrNoOffers) {
		t.Fatalf("404 应视为无报价, 实际 %v", err)
	}
}

func TestLookupHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"errorType": "bad_request"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := c.Lookup(context.Background(), testQuery())
	if err == nil {
		t.Fatal("HTTP 400 应返回错误")
	}
	if errors.Is(err, ErrNoOffers) {
		t.Fatal("API 错误不应与无报价混淆")
	}
}

func TestLookupRejectsNonPositivePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"offers": []map[string]string{{"price": "0", "currency": "CNY"}},
		})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := c.Lookup(context.Background(), testQuery()); err == nil {
		t.Fatal("非正价格应报错")
	}
}

func TestTripDates(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	depart, ret := TripDates(now, 30, 7)

	if depart.Format("2006-01-02") != "2026-08-31" {
		t.Fatalf("出发日期不正确: %s", depart)
	}
	if ret.Format("2006-01-02") != "2026-09-07" {
		t.Fatalf("返程日期不正确: %s", ret)
	}
}
