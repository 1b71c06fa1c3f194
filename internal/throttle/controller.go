// Package throttle is the trade-velocity admission controller: it caps
// trade frequency and rolling-window notional volume, and forces early
// exits on time, PnL and per-trade drawdown triggers.
package throttle

import (
	"time"

	"github.com/July-Jio/ritmex-bot/internal/infra"
)

// Config holds the admission limits.
type Config struct {
	MinTradeInterval    time.Duration
	MaxVolumePerMinute  float64
	QuickCloseThreshold float64
	MaxPositionHoldTime time.Duration
	MaxDrawdownPerTrade float64
}

// Admission reasons.
const (
	ReasonTooSoon      = "min_trade_interval"
	ReasonVolumeWindow = "volume_window"
)

// Quick-close reasons.
const (
	QuickClosePnL      = "pnl_threshold"
	QuickCloseHoldTime = "max_hold_time"
	QuickCloseDrawdown = "per_trade_drawdown"
)

// Admission is the structured outcome of a trade admission check. When the
// rolling window is the blocker, SuggestedVolume is the largest volume that
// would still fit.
type Admission struct {
	Allow           bool
	Reason          string
	SuggestedVolume float64
}

type stamp struct {
	at     time.Time
	volume float64
}

// Controller tracks recent trade volume in a bounded window. Entries older
// than the rolling window are evicted on every touch, so memory stays flat
// over long sessions. Single engine goroutine; no locking.
type Controller struct {
	cfg    Config
	clock  infra.Clock
	window time.Duration

	recent    []stamp
	lastTrade time.Time
	hasTraded bool
}

// NewController creates an admission controller.
func NewController(cfg Config, clock infra.Clock) *Controller {
	return &Controller{
		cfg:    cfg,
		clock:  clock,
		window: time.Minute,
	}
}

// CanExecuteTrade admits or rejects a proposed trade volume.
func (c *Controller) CanExecuteTrade(proposedVolume float64) Admission {
	now := c.clock.Now()

	if c.hasTraded && c.cfg.MinTradeInterval > 0 && now.Sub(c.lastTrade) < c.cfg.MinTradeInterval {
		return Admission{Reason: ReasonTooSoon}
	}

	used := c.windowVolume(now)
	if c.cfg.MaxVolumePerMinute > 0 && used+proposedVolume > c.cfg.MaxVolumePerMinute {
		fit := c.cfg.MaxVolumePerMinute - used
		if fit < 0 {
			fit = 0
		}
		return Admission{Reason: ReasonVolumeWindow, SuggestedVolume: fit}
	}

	return Admission{Allow: true}
}

// RecordTrade adds executed volume to the rolling window.
func (c *Controller) RecordTrade(volume float64) {
	now := c.clock.Now()
	c.evict(now)
	c.recent = append(c.recent, stamp{at: now, volume: volume})
	c.lastTrade = now
	c.hasTraded = true
}

// ShouldQuickClose forces an exit when the open trade has moved too far in
// either direction, overstayed, or breached its per-trade drawdown.
func (c *Controller) ShouldQuickClose(pnl float64, holdTime time.Duration) (bool, string) {
	abs := pnl
	if abs < 0 {
		abs = -abs
	}
	if c.cfg.QuickCloseThreshold > 0 && abs >= c.cfg.QuickCloseThreshold {
		return true, QuickClosePnL
	}
	if c.cfg.MaxPositionHoldTime > 0 && holdTime >= c.cfg.MaxPositionHoldTime {
		return true, QuickCloseHoldTime
	}
	if c.cfg.MaxDrawdownPerTrade > 0 && pnl <= -c.cfg.MaxDrawdownPerTrade {
		return true, QuickCloseDrawdown
	}
	return false, ""
}

// WindowVolume reports the notional executed inside the rolling window.
func (c *Controller) WindowVolume() float64 {
	return c.windowVolume(c.clock.Now())
}

func (c *Controller) windowVolume(now time.Time) float64 {
	c.evict(now)
	var sum float64
	for _, s := range c.recent {
		sum += s.volume
	}
	return sum
}

func (c *Controller) evict(now time.Time) {
	cutoff := now.Add(-c.window)
	i := 0
	for i < len(c.recent) && !c.recent[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		c.recent = append(c.recent[:0], c.recent[i:]...)
	}
}
