package gate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"farewatch/internal/deal"
)

func d(v string) decimal.Decimal {
	out, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return out
}

func testDefaults() Defaults {
	return Defaults{MinDropPct: d("5"), MaxAlertsPerWeek: 3}
}

func testSub() Subscription {
	return Subscription{
		ID:            1,
		SubscriberID:  10,
		DestinationID: 100,
		Threshold:     d("800"),
		MinQuality:    deal.QualityGood,
		CooldownDays:  3,
		Active:        true,
	}
}

func classification(q deal.Quality) deal.Classification {
	return deal.Classification{Quality: q, SavingsPercent: d("15")}
}

func TestEvaluateUnknownNeverPasses(t *testing.T) {
	dec := Evaluate(testSub(), classification(deal.QualityUnknown), d("100"), 0, testDefaults(), time.Now())
	if dec.Pass {
		t.Fatal("unknown 档位不应触发提醒")
	}
	if dec.Reason != ReasonUnknownQuality {
		t.Fatalf("原因应为 unknown_quality, 实际 %s", dec.Reason)
	}
}

func TestEvaluateThreshold(t *testing.T) {
	now := time.Now()

	// 档位达标但价格高于阈值, 不触发。
	dec := Evaluate(testSub(), classification(deal.QualityGreat), d("820"), 0, testDefaults(), now)
	if dec.Pass || dec.Reason != ReasonThreshold {
		t.Fatalf("高于阈值应被拦截, 实际 %+v", dec)
	}

	// 等于阈值算达标。
	dec = Evaluate(testSub(), classification(deal.QualityGreat), d("800"), 0, testDefaults(), now)
	if !dec.Pass {
		t.Fatalf("等于阈值应通过, 实际 %+v", dec)
	}
}

func TestEvaluateQualityFloor(t *testing.T) {
	// 价格达标但档位低于订阅下限, 不触发。
	dec := Evaluate(testSub(), classification(deal.QualityFair), d("700"), 0, testDefaults(), time.Now())
	if dec.Pass || dec.Reason != ReasonQualityFloor {
		t.Fatalf("档位不足应被拦截, 实际 %+v", dec)
	}
}

func TestEvaluateCooldown(t *testing.T) {
	now := time.Now()
	sub := testSub()
	last := now.Add(-24 * time.Hour)
	lastPrice := d("700")
	sub.LastAlertAt = &last
	sub.LastAlertPrice = &lastPrice

	// 价格比上次更优也不能绕过冷却期。
	dec := Evaluate(sub, classification(deal.QualityGreat), d("600"), 0, testDefaults(), now)
	if dec.Pass || dec.Reason != ReasonCooldown {
		t.Fatalf("冷却期内应被拦截, 实际 %+v", dec)
	}

	// 冷却期过后放行。
	last = now.Add(-4 * 24 * time.Hour)
	sub.LastAlertAt = &last
	dec = Evaluate(sub, classification(deal.QualityGreat), d("600"), 0, testDefaults(), now)
	if !dec.Pass {
		t.Fatalf("冷却期结束应通过, 实际 %+v", dec)
	}
}

func TestEvaluateMinDrop(t *testing.T) {
	now := time.Now()
	sub := testSub()
	last := now.Add(-10 * 24 * time.Hour)
	lastPrice := d("700")
	sub.LastAlertAt = &last
	sub.LastAlertPrice = &lastPrice

	// 相比上次提醒只降 2%, 低于默认 5% 的门槛。
	dec := Evaluate(sub, classification(deal.QualityGreat), d("686"), 0, testDefaults(), now)
	if dec.Pass || dec.Reason != ReasonMinDrop {
		t.Fatalf("降幅不足应被拦截, 实际 %+v", dec)
	}

	// 订阅自定义门槛优先于默认值。
	custom := d("1")
	sub.MinDropPct = &custom
	dec = Evaluate(sub, classification(deal.QualityGreat), d("686"), 0, testDefaults(), now)
	if !dec.Pass {
		t.Fatalf("满足自定义降幅应通过, 实际 %+v", dec)
	}
}

func TestEvaluateWeeklyCap(t *testing.T) {
	now := time.Now()

	dec := Evaluate(testSub(), classification(deal.QualityGreat), d("600"), 3, testDefaults(), now)
	if dec.Pass || dec.Reason != ReasonWeeklyCap {
		t.Fatalf("达到周上限应被拦截, 实际 %+v", dec)
	}

	// 订阅者个人上限覆盖默认值。
	sub := testSub()
	sub.MaxAlertsPerWeek = 5
	dec = Evaluate(sub, classification(deal.QualityGreat), d("600"), 3, testDefaults(), now)
	if !dec.Pass {
		t.Fatalf("未达个人上限应通过, 实际 %+v", dec)
	}
}

func TestEvaluateExceptionalBypass(t *testing.T) {
	now := time.Now()
	sub := testSub()
	last := now.Add(-1 * time.Hour)
	lastPrice := d("600")
	sub.LastAlertAt = &last
	sub.LastAlertPrice = &lastPrice

	// exceptional 绕过冷却期, 降幅门槛和周上限, 但不绕过阈值。
	dec := Evaluate(sub, classification(deal.QualityExceptional), d("599"), 10, testDefaults(), now)
	if !dec.Pass {
		t.Fatalf("exceptional 应绕过后置谓词, 实际 %+v", dec)
	}

	dec = Evaluate(sub, classification(deal.QualityExceptional), d("900"), 0, testDefaults(), now)
	if dec.Pass || dec.Reason != ReasonThreshold {
		t.Fatalf("exceptional 也不能绕过阈值, 实际 %+v", dec)
	}
}

func TestEvaluateFirstAlertSkipsHistoryPredicates(t *testing.T) {
	// 从未提醒过的订阅没有冷却期和降幅比较。
	dec := Evaluate(testSub(), classification(deal.QualityGood), d("700"), 0, testDefaults(), time.Now())
	if !dec.Pass {
		t.Fatalf("首次提醒应通过, 实际 %+v", dec)
	}
}

func TestEvaluateIdempotentAfterAdvance(t *testing.T) {
	now := time.Now()
	sub := testSub()

	dec := Evaluate(sub, classification(deal.QualityGood), d("700"), 0, testDefaults(), now)
	if !dec.Pass {
		t.Fatalf("首次评估应通过, 实际 %+v", dec)
	}

	// 通过后订阅状态前移, 同一样本再评估会落在冷却期内。
	price := d("700")
	sub.LastAlertAt = &now
	sub.LastAlertPrice = &price
	dec = Evaluate(sub, classification(deal.QualityGood), d("700"), 1, testDefaults(), now)
	if dec.Pass || dec.Reason != ReasonCooldown {
		t.Fatalf("状态前移后重复评估应被拦截, 实际 %+v", dec)
	}
}
