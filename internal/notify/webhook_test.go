package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"farewatch/internal/deal"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestWebhookSendSuccess(t *testing.T) {
	var gotKey, gotAuth string
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"delivery_id": "d-123"})
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, "secret", time.Second, testLogger())
	id, err := ch.Send(context.Background(), "user@example.com", "hello", "job-1")
	if err != nil {
		t.Fatalf("发送应成功: %v", err)
	}
	if id != "d-123" {
		t.Fatalf("应返回响应中的 delivery_id, 实际 %s", id)
	}
	if gotKey != "job-1" {
		t.Fatalf("幂等键应随请求头发送, 实际 %q", gotKey)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("鉴权头不正确: %q", gotAuth)
	}
	if received["recipient"] != "user@example.com" || received["message"] != "hello" {
		t.Fatalf("请求体不正确: %#v", received)
	}
}

func TestWebhookSendFallbackDeliveryID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, "", time.Second, testLogger())
	id, err := ch.Send(context.Background(), "user@example.com", "hello", "job-2")
	if err != nil {
		t.Fatalf("2xx 无响应体也应成功: %v", err)
	}
	if id != "job-2" {
		t.Fatalf("缺少 delivery_id 时应回退为幂等键, 实际 %s", id)
	}
}

func TestWebhookSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, "", time.Second, testLogger())
	if _, err := ch.Send(context.Background(), "user@example.com", "hello", "job-3"); err == nil {
		t.Fatal("HTTP 502 应报错")
	}
}

func TestPayloadRender(t *testing.T) {
	c := deal.Classification{
		Quality:        deal.QualityGreat,
		Urgency:        deal.UrgencyModerate,
		SavingsPercent: decimal.RequireFromString("22.5"),
		Rationale:      "22.5% below the rolling average of 1000.00",
	}
	depart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	ret := depart.AddDate(0, 0, 7)

	p := BuildPayload("PEK", "NRT", decimal.RequireFromString("775.00"), "CNY", c, decimal.RequireFromString("800"), depart, ret)
	text := p.Render()

	for _, want := range []string{"PEK-NRT", "775.00 CNY", "great", "22.5%", "2026-09-01", "2026-09-08"} {
		if !strings.Contains(text, want) {
			t.Fatalf("渲染文本应包含 %q:\n%s", want, text)
		}
	}
}

func TestPayloadMarshalRoundTrip(t *testing.T) {
	p := BuildPayload("PEK", "NRT", decimal.RequireFromString("775.00"), "CNY",
		deal.Classification{Quality: deal.QualityGood, Urgency: deal.UrgencyModerate},
		decimal.RequireFromString("800"), time.Now().UTC(), time.Now().UTC())

	raw, err := p.Marshal()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}

	var back Payload
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	if back.Destination != "NRT" || back.Quality != "good" {
		t.Fatalf("往返后字段不一致: %#v", back)
	}
}
