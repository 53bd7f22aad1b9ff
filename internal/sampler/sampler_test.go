package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"farewatch/internal/gate"
	"farewatch/internal/pricesource"
	"farewatch/internal/stats"
	"farewatch/internal/storage"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fakeSource struct {
	quotes map[string]pricesource.Quote
	errs   map[string]error
}

func (f *fakeSource) Lookup(ctx context.Context, q pricesource.Query) (pricesource.Quote, error) {
	if err, ok := f.errs[q.Destination]; ok {
		return pricesource.Quote{}, err
	}
	quote, ok := f.quotes[q.Destination]
	if !ok {
		return pricesource.Quote{}, pricesource.ErrNoOffers
	}
	return quote, nil
}

type fakeStore struct {
	destinations []storage.Destination
	history      map[int64][]stats.Sample
	subs         map[int64][]gate.Subscription
	weeklyAlerts map[int64]int

	listErr     error
	recordErr   error
	upsertErr   error
	inserted    []storage.PriceSample
	recorded    []storage.AlertPass
	upsertCount int
}

func (f *fakeStore) ListDestinations(ctx context.Context, mode storage.Mode) ([]storage.Destination, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.destinations, nil
}

func (f *fakeStore) InsertPriceSample(ctx context.Context, sample storage.PriceSample) error {
	f.inserted = append(f.inserted, sample)
	f.history[sample.DestinationID] = append(f.history[sample.DestinationID], stats.Sample{Price: sample.Price, SampledAt: sample.SampledAt})
	return nil
}

func (f *fakeStore) ListSamplesSince(ctx context.Context, destinationID int64, since time.Time) ([]stats.Sample, error) {
	return f.history[destinationID], nil
}

func (f *fakeStore) ListRecentSamples(ctx context.Context, destinationID int64, limit int) ([]storage.PriceSample, error) {
	return nil, nil
}

func (f *fakeStore) UpsertStatistics(ctx context.Context, destinationID int64, s stats.Statistics) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upsertCount++
	return nil
}

func (f *fakeStore) GetStatistics(ctx context.Context, destinationID int64) (stats.Statistics, error) {
	return stats.Statistics{}, storage.ErrNotFound
}

func (f *fakeStore) ListActiveSubscriptions(ctx context.Context, destinationID int64) ([]gate.Subscription, error) {
	return f.subs[destinationID], nil
}

func (f *fakeStore) CountAlertsSince(ctx context.Context, subscriberID int64, since time.Time) (int, error) {
	return f.weeklyAlerts[subscriberID], nil
}

func (f *fakeStore) ListRecentAlerts(ctx context.Context, limit int) ([]storage.AlertRecord, error) {
	return nil, nil
}

func (f *fakeStore) RecordAlertPass(ctx context.Context, pass storage.AlertPass) (storage.AlertRecord, error) {
	if f.recordErr != nil {
		return storage.AlertRecord{}, f.recordErr
	}
	f.recorded = append(f.recorded, pass)
	return storage.AlertRecord{ID: int64(len(f.recorded))}, nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		history:      make(map[int64][]stats.Sample),
		subs:         make(map[int64][]gate.Subscription),
		weeklyAlerts: make(map[int64]int),
	}
}

func testOptions() Options {
	return Options{
		Origin:         "PEK",
		Currency:       "CNY",
		LeadDays:       30,
		TripDays:       7,
		Windows:        stats.WindowsFromDays(7, 90, 365),
		Defaults:       gate.Defaults{MinDropPct: d("5"), MaxAlertsPerWeek: 3},
		MaxRetries:     3,
		MaxConcurrency: 2,
	}
}

// seedHistory appends prior samples so classification has enough history.
func seedHistory(store *fakeStore, destinationID int64, now time.Time, prices ...string) {
	for i, p := range prices {
		store.history[destinationID] = append(store.history[destinationID], stats.Sample{
			Price:     d(p),
			SampledAt: now.AddDate(0, 0, -(len(prices) - i)),
		})
	}
}

func newTestSampler(source pricesource.Source, store *fakeStore, now time.Time) *Sampler {
	return New(source, store, nil, testOptions(), zerolog.Nop()).WithClock(func() time.Time { return now })
}

func TestRunRecordsAlert(t *testing.T) {
	now := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.destinations = []storage.Destination{{ID: 1, Code: "NRT", Active: true}}
	seedHistory(store, 1, now, "1000", "1050", "950")
	store.subs[1] = []gate.Subscription{{
		ID:           11,
		SubscriberID: 21,
		Threshold:    d("800"),
		MinQuality:   0, // unknown 作为下限, 等于不设下限
		Active:       true,
	}}

	source := &fakeSource{quotes: map[string]pricesource.Quote{
		"NRT": {Price: d("700"), Currency: "CNY"},
	}}

	summary, err := newTestSampler(source, store, now).Run(context.Background(), storage.ModeAll)
	if err != nil {
		t.Fatalf("Run 不应报错: %v", err)
	}
	if summary.AlertsTriggered != 1 {
		t.Fatalf("应触发 1 条提醒, 实际 %d", summary.AlertsTriggered)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("应落库 1 条样本, 实际 %d", len(store.inserted))
	}
	if store.upsertCount != 1 {
		t.Fatalf("应刷新 1 次统计, 实际 %d", store.upsertCount)
	}
	if len(store.recorded) != 1 || store.recorded[0].SubscriptionID != 11 {
		t.Fatalf("提醒事务记录不正确: %#v", store.recorded)
	}
	if len(store.recorded[0].Payload) == 0 {
		t.Fatal("任务载荷应随事务写入")
	}
}

func TestRunIsolatesDestinationFailures(t *testing.T) {
	now := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.destinations = []storage.Destination{
		{ID: 1, Code: "NRT", Active: true},
		{ID: 2, Code: "BKK", Active: true},
	}
	seedHistory(store, 2, now, "2000", "2100", "1900")

	source := &fakeSource{
		quotes: map[string]pricesource.Quote{"BKK": {Price: d("1800"), Currency: "CNY"}},
		errs:   map[string]error{"NRT": errors.New("上游超时")},
	}

	summary, err := newTestSampler(source, store, now).Run(context.Background(), storage.ModeAll)
	if err != nil {
		t.Fatalf("单个目的地失败不应中止整轮: %v", err)
	}
	if summary.DestinationsChecked != 2 {
		t.Fatalf("应检查 2 个目的地, 实际 %d", summary.DestinationsChecked)
	}

	byCode := make(map[string]DestinationResult)
	for _, r := range summary.Results {
		byCode[r.Destination] = r
	}
	if byCode["NRT"].Error == "" {
		t.Fatal("失败的目的地应在摘要中带错误")
	}
	if byCode["BKK"].Error != "" || byCode["BKK"].Price == "" {
		t.Fatalf("健康的目的地应正常处理: %+v", byCode["BKK"])
	}
}

func TestRunNoOffersIsNotAFailure(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore()
	store.destinations = []storage.Destination{{ID: 1, Code: "NRT", Active: true}}

	source := &fakeSource{quotes: map[string]pricesource.Quote{}}

	summary, err := newTestSampler(source, store, now).Run(context.Background(), storage.ModeAll)
	if err != nil {
		t.Fatalf("无报价不应报错: %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatal("无报价时不应落库样本")
	}
	if summary.Results[0].Error != "no offers" {
		t.Fatalf("摘要应说明无报价, 实际 %+v", summary.Results[0])
	}
}

func TestRunInsufficientHistorySkipsGating(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore()
	store.destinations = []storage.Destination{{ID: 1, Code: "NRT", Active: true}}
	// 只有一条历史, 加上本轮样本仍低于分级下限。
	seedHistory(store, 1, now, "1000")
	store.subs[1] = []gate.Subscription{{ID: 11, SubscriberID: 21, Threshold: d("9999"), Active: true}}

	source := &fakeSource{quotes: map[string]pricesource.Quote{
		"NRT": {Price: d("100"), Currency: "CNY"},
	}}

	summary, err := newTestSampler(source, store, now).Run(context.Background(), storage.ModeAll)
	if err != nil {
		t.Fatalf("Run 不应报错: %v", err)
	}
	if summary.AlertsTriggered != 0 {
		t.Fatal("历史不足的样本不应触发提醒")
	}
	if summary.Results[0].Quality != "unknown" {
		t.Fatalf("档位应为 unknown, 实际 %s", summary.Results[0].Quality)
	}
	if len(store.inserted) != 1 {
		t.Fatal("历史不足时样本本身仍应落库")
	}
}

func TestRunStatisticsFailureSkipsClassification(t *testing.T) {
	now := time.Now().UTC()
	store := newFakeStore()
	store.destinations = []storage.Destination{{ID: 1, Code: "NRT", Active: true}}
	seedHistory(store, 1, now, "1000", "1050", "950")
	store.upsertErr = errors.New("写库失败")

	source := &fakeSource{quotes: map[string]pricesource.Quote{
		"NRT": {Price: d("700"), Currency: "CNY"},
	}}

	summary, err := newTestSampler(source, store, now).Run(context.Background(), storage.ModeAll)
	if err != nil {
		t.Fatalf("统计失败不应中止整轮: %v", err)
	}
	if summary.AlertsTriggered != 0 {
		t.Fatal("统计不可用时不应评估订阅")
	}
	if summary.Results[0].Error == "" {
		t.Fatal("统计失败应体现在摘要中")
	}
}

func TestRunStaleSubscriptionNotCounted(t *testing.T) {
	now := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.destinations = []storage.Destination{{ID: 1, Code: "NRT", Active: true}}
	seedHistory(store, 1, now, "1000", "1050", "950")
	store.subs[1] = []gate.Subscription{{ID: 11, SubscriberID: 21, Threshold: d("800"), Active: true}}
	store.recordErr = storage.ErrStaleSubscription

	source := &fakeSource{quotes: map[string]pricesource.Quote{
		"NRT": {Price: d("700"), Currency: "CNY"},
	}}

	summary, err := newTestSampler(source, store, now).Run(context.Background(), storage.ModeAll)
	if err != nil {
		t.Fatalf("并发抢先不应报错: %v", err)
	}
	if summary.AlertsTriggered != 0 {
		t.Fatal("被并发抢先的订阅不应计入提醒数")
	}
}

func TestRunListDestinationsFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("连接中断")

	source := &fakeSource{}
	if _, err := newTestSampler(source, store, time.Now().UTC()).Run(context.Background(), storage.ModeAll); err == nil {
		t.Fatal("目的地清单不可用应中止本轮")
	}
}
