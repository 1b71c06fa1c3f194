package market

import (
	"testing"

	"github.com/July-Jio/ritmex-bot/internal/domain"
)

func levels(qtys ...float64) []domain.PriceLevel {
	out := make([]domain.PriceLevel, len(qtys))
	price := 100.0
	for i, q := range qtys {
		out[i] = domain.PriceLevel{Price: price, Qty: q}
		price -= 0.5
	}
	return out
}

func TestTracker_ImbalanceClassification(t *testing.T) {
	tests := []struct {
		name     string
		buy      []domain.PriceLevel
		sell     []domain.PriceLevel
		want     domain.Imbalance
	}{
		{"buy dominant", levels(10, 10), levels(5, 5), domain.ImbalanceBuyDominant},
		{"sell dominant", levels(5, 5), levels(10, 10), domain.ImbalanceSellDominant},
		{"balanced", levels(10, 10), levels(9, 9), domain.ImbalanceBalanced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(Config{ImbalanceRatio: 1.5})
			tr.ApplyDepth(tt.buy, tt.sell)
			if got := tr.View().Imbalance; got != tt.want {
				t.Errorf("imbalance = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTracker_ImbalanceStreak(t *testing.T) {
	tr := NewTracker(Config{ImbalanceRatio: 1.5})

	for i := 1; i <= 3; i++ {
		tr.ApplyDepth(levels(20, 20), levels(5, 5))
		if got := tr.View().ImbalanceStreak; got != i {
			t.Fatalf("streak after %d dominant updates = %d, want %d", i, got, i)
		}
	}

	// A balanced book resets the streak.
	tr.ApplyDepth(levels(10, 10), levels(10, 10))
	if got := tr.View().ImbalanceStreak; got != 0 {
		t.Errorf("streak after balanced update = %d, want 0", got)
	}

	// Flipping the dominant side restarts at 1.
	tr.ApplyDepth(levels(20, 20), levels(5, 5))
	tr.ApplyDepth(levels(5, 5), levels(20, 20))
	if got := tr.View().ImbalanceStreak; got != 1 {
		t.Errorf("streak after side flip = %d, want 1", got)
	}
}

func TestTracker_DepthSumTop10(t *testing.T) {
	tr := NewTracker(Config{DepthLevels: 10})

	// 12 levels of 1 each; only the top 10 count.
	tr.ApplyDepth(levels(1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1), levels(2, 2))
	v := tr.View()
	if v.BuyDepth10 != 10 {
		t.Errorf("buy depth = %v, want 10", v.BuyDepth10)
	}
	if v.SellDepth10 != 4 {
		t.Errorf("sell depth = %v, want 4", v.SellDepth10)
	}
}

func TestTracker_SMATrend(t *testing.T) {
	tr := NewTracker(Config{SMAWindow: 5, TrendMargin: 0.001})

	// Window not full yet: no trend, not ready.
	for i := 0; i < 4; i++ {
		tr.ApplyKline(100)
	}
	if v := tr.View(); v.Trend != domain.TrendFlat || v.Ready {
		t.Fatal("tracker must stay flat and not ready before the window fills")
	}

	tr.ApplyKline(100) // window full, SMA = 100
	if v := tr.View(); v.SMA != 100 || v.Trend != domain.TrendFlat {
		t.Fatalf("SMA = %v trend = %s, want 100/flat", v.SMA, v.Trend)
	}

	tr.ApplyTicker(101) // 1% above SMA
	if got := tr.View().Trend; got != domain.TrendUp {
		t.Errorf("trend = %s, want up", got)
	}

	tr.ApplyTicker(99)
	if got := tr.View().Trend; got != domain.TrendDown {
		t.Errorf("trend = %s, want down", got)
	}

	// Windows roll: five closes at 200 move the SMA to 200.
	for i := 0; i < 5; i++ {
		tr.ApplyKline(200)
	}
	if got := tr.View().SMA; got != 200 {
		t.Errorf("rolled SMA = %v, want 200", got)
	}
}

func TestTracker_ReadyNeedsBook(t *testing.T) {
	tr := NewTracker(Config{SMAWindow: 2})
	tr.ApplyKline(100)
	tr.ApplyKline(100)
	if tr.View().Ready {
		t.Error("tracker must not be ready without a book")
	}
	tr.ApplyDepth(levels(1), levels(1))
	if !tr.View().Ready {
		t.Error("tracker should be ready with SMA and book populated")
	}
}
