// Package closer computes a close price that is profitable net of entry and
// exit fees, with a bounded timeout fallback. The engine starts the state
// machine when a position opens and resets it when the position is gone.
package closer

import (
	"log/slog"
	"time"

	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/internal/infra"
)

// Phase of the close state machine: Idle → Active → {Timeout, Closed}.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhaseTimeout
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseTimeout:
		return "timeout"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config tunes the close strategy.
type Config struct {
	MinProfitMargin float64 // extra margin on top of fees, fraction of notional
	Timeout         time.Duration
	// FallbackToOriginal returns the current best price after timeout
	// instead of holding out for profit. Explicitly not profit-guaranteed;
	// it trades monetary certainty for exit latency.
	FallbackToOriginal bool
}

// Quote is a computed close price.
type Quote struct {
	Price             float64
	MinProfitRequired float64
	Fallback          bool // true when the timeout fallback produced the price
}

// Closer holds the per-position close state. Driven by one engine
// goroutine.
type Closer struct {
	cfg   Config
	fees  domain.FeeSchedule
	clock infra.Clock

	phase     Phase
	startTime time.Time
}

// New creates an idle closer.
func New(cfg Config, fees domain.FeeSchedule, clock infra.Clock) *Closer {
	return &Closer{cfg: cfg, fees: fees, clock: clock}
}

// Phase returns the current state.
func (c *Closer) Phase() Phase { return c.phase }

// Start transitions Idle → Active and stamps the start time. Calling it
// while already active is a no-op so repeated ticks don't reset the clock.
func (c *Closer) Start() {
	if c.phase == PhaseActive {
		return
	}
	c.phase = PhaseActive
	c.startTime = c.clock.Now()
	slog.Debug("close strategy started")
}

// MarkClosed records that the position was fully closed.
func (c *Closer) MarkClosed() {
	if c.phase != PhaseIdle {
		c.phase = PhaseClosed
	}
}

// Reset returns to Idle for the next position.
func (c *Closer) Reset() {
	c.phase = PhaseIdle
	c.startTime = time.Time{}
}

// MinProfitRequired is the minimum monetary profit a close must clear:
// entry fee + exit fee + configured margin, all on the entry notional.
func (c *Closer) MinProfitRequired(entryNotional float64) float64 {
	return c.fees.RoundTrip(entryNotional) + entryNotional*c.cfg.MinProfitMargin
}

// ClosePrice computes the close price for the given exit side. SELL closes
// never price above the current bid, BUY closes never below the current
// ask: the result is always postable at or inside the touch.
func (c *Closer) ClosePrice(side domain.Side, entryPrice, amount, bestBid, bestAsk float64) Quote {
	c.checkTimeout()

	if c.phase == PhaseTimeout && c.cfg.FallbackToOriginal {
		// Deliberate tradeoff: surrender the profit guarantee to get out.
		price := bestBid
		if side == domain.SideBuy {
			price = bestAsk
		}
		return Quote{Price: price, MinProfitRequired: 0, Fallback: true}
	}

	required := c.MinProfitRequired(entryPrice * amount)

	var price float64
	if side == domain.SideSell {
		price = entryPrice + required/amount
		if bestBid < price {
			price = bestBid
		}
	} else {
		price = entryPrice - required/amount
		if bestAsk > price {
			price = bestAsk
		}
	}
	return Quote{Price: price, MinProfitRequired: required}
}

// ShouldUseMarketClose reports whether a passive limit close cannot
// realistically fill profitably: the profit achievable at the current best
// price is below the fee-covering minimum, so the caller should cross the
// spread with a taker order instead.
func (c *Closer) ShouldUseMarketClose(side domain.Side, entryPrice, amount, bestBid, bestAsk float64) bool {
	required := c.MinProfitRequired(entryPrice * amount)

	var achievable float64
	if side == domain.SideSell {
		achievable = (bestBid - entryPrice) * amount
	} else {
		achievable = (entryPrice - bestAsk) * amount
	}
	return achievable < required
}

// Elapsed reports how long the close has been active.
func (c *Closer) Elapsed() time.Duration {
	if c.startTime.IsZero() {
		return 0
	}
	return c.clock.Now().Sub(c.startTime)
}

func (c *Closer) checkTimeout() {
	if c.phase != PhaseActive || c.cfg.Timeout <= 0 {
		return
	}
	if c.clock.Now().Sub(c.startTime) > c.cfg.Timeout {
		c.phase = PhaseTimeout
		slog.Warn("close strategy timed out",
			slog.Duration("after", c.cfg.Timeout),
			slog.Bool("fallback", c.cfg.FallbackToOriginal))
	}
}
