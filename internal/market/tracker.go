// Package market maintains per-symbol market state: best bid/ask,
// cumulative depth over the top levels, and an SMA-based trend
// classification. Updates are applied synchronously on receipt of a
// market-data event; strategy code only reads.
package market

import (
	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/pkg/safe"
)

// Config bounds the tracker's classifications.
type Config struct {
	DepthLevels    int     // levels summed per side
	SMAWindow      int     // closes in the moving average
	TrendMargin    float64 // fractional distance from SMA before a trend is called
	ImbalanceRatio float64 // depth ratio before a side dominates
}

// Tracker is owned by one engine goroutine; it is not safe for concurrent
// use and does not need to be.
type Tracker struct {
	cfg Config

	bestBid   float64
	bestAsk   float64
	buyDepth  float64
	sellDepth float64
	lastPrice float64

	// SMA ring buffer with a running sum.
	closes []float64
	head   int
	count  int
	sum    float64

	imbalance       domain.Imbalance
	imbalanceStreak int
}

// View is the immutable per-tick reading handed to strategies and folded
// into the snapshot.
type View struct {
	BestBid   float64
	BestAsk   float64
	Spread    float64
	LastPrice float64

	BuyDepth10  float64
	SellDepth10 float64
	Imbalance   domain.Imbalance
	// ImbalanceStreak counts consecutive depth updates with the same
	// dominant side; balanced resets it.
	ImbalanceStreak int

	SMA   float64
	Trend domain.Trend
	Ready bool
}

// NewTracker creates a tracker. Zero config fields get the standard values.
func NewTracker(cfg Config) *Tracker {
	if cfg.DepthLevels <= 0 {
		cfg.DepthLevels = 10
	}
	if cfg.SMAWindow <= 0 {
		cfg.SMAWindow = 30
	}
	if cfg.ImbalanceRatio <= 1 {
		cfg.ImbalanceRatio = 1.5
	}
	return &Tracker{
		cfg:       cfg,
		closes:    make([]float64, cfg.SMAWindow),
		imbalance: domain.ImbalanceBalanced,
	}
}

// ApplyDepth ingests a depth snapshot and reclassifies imbalance.
func (t *Tracker) ApplyDepth(bids, asks []domain.PriceLevel) {
	if len(bids) > 0 && safe.ValidPrice(bids[0].Price) {
		t.bestBid = bids[0].Price
	}
	if len(asks) > 0 && safe.ValidPrice(asks[0].Price) {
		t.bestAsk = asks[0].Price
	}

	t.buyDepth = sumDepth(bids, t.cfg.DepthLevels)
	t.sellDepth = sumDepth(asks, t.cfg.DepthLevels)

	prev := t.imbalance
	t.imbalance = t.classifyImbalance()
	switch {
	case t.imbalance == domain.ImbalanceBalanced:
		t.imbalanceStreak = 0
	case t.imbalance == prev:
		t.imbalanceStreak++
	default:
		t.imbalanceStreak = 1
	}
}

// ApplyKline ingests a closed candle into the SMA window.
func (t *Tracker) ApplyKline(close float64) {
	if !safe.ValidPrice(close) {
		return
	}
	if t.count == len(t.closes) {
		t.sum -= t.closes[t.head]
	} else {
		t.count++
	}
	t.closes[t.head] = close
	t.sum += close
	t.head = (t.head + 1) % len(t.closes)

	t.lastPrice = close
}

// ApplyTicker ingests a last-trade price.
func (t *Tracker) ApplyTicker(last float64) {
	if safe.ValidPrice(last) {
		t.lastPrice = last
	}
}

// View returns the current reading as a value.
func (t *Tracker) View() View {
	sma, ok := t.sma()
	v := View{
		BestBid:         t.bestBid,
		BestAsk:         t.bestAsk,
		LastPrice:       t.lastPrice,
		BuyDepth10:      t.buyDepth,
		SellDepth10:     t.sellDepth,
		Imbalance:       t.imbalance,
		ImbalanceStreak: t.imbalanceStreak,
		SMA:             sma,
		Trend:           t.trend(sma, ok),
		Ready:           ok && t.bestBid > 0 && t.bestAsk > 0,
	}
	if v.BestBid > 0 && v.BestAsk > 0 {
		v.Spread = v.BestAsk - v.BestBid
	}
	return v
}

func (t *Tracker) sma() (float64, bool) {
	if t.count < len(t.closes) {
		return 0, false
	}
	return t.sum / float64(t.count), true
}

func (t *Tracker) trend(sma float64, ok bool) domain.Trend {
	if !ok || t.lastPrice <= 0 {
		return domain.TrendFlat
	}
	switch {
	case t.lastPrice > sma*(1+t.cfg.TrendMargin):
		return domain.TrendUp
	case t.lastPrice < sma*(1-t.cfg.TrendMargin):
		return domain.TrendDown
	default:
		return domain.TrendFlat
	}
}

func (t *Tracker) classifyImbalance() domain.Imbalance {
	if t.buyDepth <= 0 || t.sellDepth <= 0 {
		return domain.ImbalanceBalanced
	}
	ratio := t.buyDepth / t.sellDepth
	switch {
	case ratio >= t.cfg.ImbalanceRatio:
		return domain.ImbalanceBuyDominant
	case ratio <= 1/t.cfg.ImbalanceRatio:
		return domain.ImbalanceSellDominant
	default:
		return domain.ImbalanceBalanced
	}
}

func sumDepth(levels []domain.PriceLevel, n int) float64 {
	if len(levels) < n {
		n = len(levels)
	}
	var sum float64
	for _, lvl := range levels[:n] {
		if safe.Finite(lvl.Qty) && lvl.Qty > 0 {
			sum += lvl.Qty
		}
	}
	return sum
}
