// Package strategy turns one tick's market view and account state into a
// desired order set. Strategies are pure with respect to their inputs: they
// query the risk, throttle, and close collaborators but never mutate
// position, orders, or risk state themselves.
package strategy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/July-Jio/ritmex-bot/internal/closer"
	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/internal/market"
	"github.com/July-Jio/ritmex-bot/internal/metrics"
	"github.com/July-Jio/ritmex-bot/internal/risk"
	"github.com/July-Jio/ritmex-bot/internal/throttle"
	"github.com/July-Jio/ritmex-bot/pkg/safe"
)

// Config holds the strategy tunables.
type Config struct {
	TradeAmount          float64
	LossLimit            float64 // stop distance as a fraction of entry price
	ProfitLockTriggerUSD float64
	ProfitLockOffsetUSD  float64

	BidOffset           float64
	AskOffset           float64
	SkipBuySide         bool
	SkipSellSide        bool
	ImbalanceSkipStreak int
}

// Input is everything a strategy may read for one decision.
type Input struct {
	Time          time.Time
	Market        market.View
	Position      domain.Position
	HoldTime      time.Duration
	UnrealizedPnL float64
}

// Deps are the decision collaborators shared by both variants.
type Deps struct {
	Cfg      Config
	Risk     *risk.Manager
	Throttle *throttle.Controller
	Closer   *closer.Closer
}

// Strategy computes the desired order set for one tick.
type Strategy interface {
	Name() string
	Decide(in Input) []domain.DesiredOrder
}

// New is the closed dispatch over the known variants.
func New(name string, deps Deps) (Strategy, error) {
	switch name {
	case "trend":
		return &Trend{deps: deps}, nil
	case "maker":
		return &Maker{deps: deps}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// admitOpen runs the shared opening gates: risk sizing, the risk state
// machine, and the velocity controller. It returns the admitted size, zero
// when the open is suppressed. refPrice converts size to notional for the
// throttle; the suggestion shrinks the size to exactly fit the window.
func (d *Deps) admitOpen(refPrice float64) float64 {
	size := d.Risk.SuggestedTradeSize(d.Cfg.TradeAmount)
	if !safe.ValidQty(size) || !safe.ValidPrice(refPrice) {
		return 0
	}

	if dec := d.Risk.CanOpenPosition(size); !dec.Allow {
		slog.Debug("open suppressed", slog.String("reason", dec.Reason))
		metrics.RiskRejections.WithLabelValues(dec.Reason).Inc()
		return 0
	}

	adm := d.Throttle.CanExecuteTrade(size * refPrice)
	if !adm.Allow {
		if adm.SuggestedVolume <= 0 {
			slog.Debug("open suppressed", slog.String("reason", adm.Reason))
			metrics.ThrottleRejections.WithLabelValues(adm.Reason).Inc()
			return 0
		}
		size = adm.SuggestedVolume / refPrice
		if !safe.ValidQty(size) {
			return 0
		}
	}
	return size
}

// closeOrder prices a full-size reduce-only exit through the close
// strategy. A timeout fallback that still cannot fill profitably crosses
// the spread as a taker.
func (d *Deps) closeOrder(pos domain.Position, bestBid, bestAsk float64) domain.DesiredOrder {
	side := pos.CloseSide()
	size := pos.Size()

	quote := d.Closer.ClosePrice(side, pos.EntryPrice, size, bestBid, bestAsk)
	if quote.Fallback && d.Closer.ShouldUseMarketClose(side, pos.EntryPrice, size, bestBid, bestAsk) {
		return domain.DesiredOrder{Side: side, Type: domain.TypeMarket, Amount: size, ReduceOnly: true}
	}
	return domain.DesiredOrder{
		Side:       side,
		Type:       domain.TypeLimit,
		Price:      quote.Price,
		Amount:     size,
		ReduceOnly: true,
	}
}

// marketClose is the forced full-size exit.
func marketClose(pos domain.Position) domain.DesiredOrder {
	return domain.DesiredOrder{
		Side:       pos.CloseSide(),
		Type:       domain.TypeMarket,
		Amount:     pos.Size(),
		ReduceOnly: true,
	}
}
