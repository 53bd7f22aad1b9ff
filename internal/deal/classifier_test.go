package deal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"farewatch/internal/stats"
)

func d(v string) decimal.Decimal {
	out, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return out
}

func baseStats() stats.Statistics {
	return stats.Statistics{
		AvgShort:     d("950"),
		AvgMedium:    d("1000"),
		AvgLong:      d("1050"),
		P25:          d("800"),
		P50:          d("950"),
		P75:          d("1100"),
		StdDev:       d("100"),
		AllTimeLow:   d("500"),
		AllTimeHigh:  d("1300"),
		TotalSamples: 30,
		CalculatedAt: time.Now().UTC(),
	}
}

func TestClassifyInsufficientHistory(t *testing.T) {
	s := baseStats()
	s.TotalSamples = 2

	c := Classify(d("100"), s)
	if c.Quality != QualityUnknown {
		t.Fatalf("样本不足时应为 unknown, 实际 %s", c.Quality)
	}
	if c.Rationale == "" {
		t.Fatal("unknown 也应给出理由")
	}
}

func TestClassifyAllTimeLowIsExceptional(t *testing.T) {
	s := baseStats()

	// 等于历史最低价即为 exceptional, 哪怕节省比例不到 40%。
	c := Classify(d("500"), s)
	if c.Quality != QualityExceptional {
		t.Fatalf("触及历史最低应为 exceptional, 实际 %s", c.Quality)
	}
	if c.Urgency != UrgencyHigh {
		t.Fatalf("exceptional 应为高紧急度, 实际 %s", c.Urgency)
	}
}

func TestClassifyTierLadder(t *testing.T) {
	s := baseStats()
	cases := []struct {
		price string
		want  Quality
	}{
		{"700", QualityExcellent}, // 节省 30%
		{"750", QualityGreat},     // 节省 25%
		{"850", QualityGood},      // 节省 15%
		{"980", QualityFair},      // 节省 2%
		{"1100", QualityPoor},     // 高于均值
	}

	for _, tc := range cases {
		c := Classify(d(tc.price), s)
		if c.Quality != tc.want {
			t.Fatalf("价格 %s 应为 %s, 实际 %s", tc.price, tc.want, c.Quality)
		}
	}
}

func TestClassifyTierMonotonic(t *testing.T) {
	s := baseStats()

	prev := QualityExceptional
	for _, price := range []string{"550", "690", "790", "890", "990", "1090"} {
		c := Classify(d(price), s)
		if c.Quality > prev {
			t.Fatalf("价格上升时档位不应上升: %s 得到 %s, 之前 %s", price, c.Quality, prev)
		}
		prev = c.Quality
	}
}

func TestClassifyBucket(t *testing.T) {
	s := baseStats()

	if c := Classify(d("780"), s); c.Bucket != BucketLow {
		t.Fatalf("低于 P25 应为 low, 实际 %s", c.Bucket)
	}
	if c := Classify(d("950"), s); c.Bucket != BucketMid {
		t.Fatalf("四分位之间应为 mid, 实际 %s", c.Bucket)
	}
	if c := Classify(d("1200"), s); c.Bucket != BucketHigh {
		t.Fatalf("高于 P75 应为 high, 实际 %s", c.Bucket)
	}
}

func TestClassifyOutlierFlag(t *testing.T) {
	s := baseStats()

	// z = (1000-700)/100 = 3 > 2
	c := Classify(d("700"), s)
	if !c.Outlier {
		t.Fatal("偏离超过两个标准差应标记 outlier")
	}
	// outlier 只作提示, 不降低档位。
	if c.Quality != QualityExcellent {
		t.Fatalf("outlier 不应影响档位, 实际 %s", c.Quality)
	}

	if c := Classify(d("900"), s); c.Outlier {
		t.Fatal("一个标准差以内不应标记 outlier")
	}
}

func TestClassifyOutlierNeedsPositiveStdDev(t *testing.T) {
	s := baseStats()
	s.StdDev = decimal.Zero

	if c := Classify(d("600"), s); c.Outlier {
		t.Fatal("标准差为 0 时不应标记 outlier")
	}
}

func TestSavingsPercent(t *testing.T) {
	if got := SavingsPercent(d("700"), d("1000")); !got.Equal(d("30")) {
		t.Fatalf("节省比例应为 30, 实际 %s", got)
	}
	if got := SavingsPercent(d("700"), decimal.Zero); !got.IsZero() {
		t.Fatalf("均值非正时应返回 0, 实际 %s", got)
	}
	if got := SavingsPercent(d("1100"), d("1000")); !got.IsNegative() {
		t.Fatalf("高于均值时应为负数, 实际 %s", got)
	}
}

func TestParseQualityRoundTrip(t *testing.T) {
	for _, q := range []Quality{QualityPoor, QualityFair, QualityGood, QualityGreat, QualityExcellent, QualityExceptional} {
		parsed, err := ParseQuality(q.String())
		if err != nil {
			t.Fatalf("解析 %s 失败: %v", q, err)
		}
		if parsed != q {
			t.Fatalf("解析 %s 得到 %s", q, parsed)
		}
	}

	if _, err := ParseQuality("amazing"); err == nil {
		t.Fatal("未知档位名应报错")
	}
}
