// Package risk gates every position-opening decision against drawdown,
// loss-streak, daily-loss and emergency-stop limits, and ingests realized
// trade outcomes.
package risk

import (
	"log/slog"
	"time"

	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/internal/infra"
	"github.com/July-Jio/ritmex-bot/pkg/safe"
)

// Config holds the hard limits for one account.
type Config struct {
	MaxPositionSize      float64
	MaxConsecutiveLosses int
	MaxDailyLoss         float64
	MaxDrawdown          float64
	EmergencyStopLoss    float64
	CooldownPeriod       time.Duration
}

// Rejection reasons, in gate priority order.
const (
	ReasonEmergencyStop = "emergency_stop"
	ReasonCooldown      = "cooldown"
	ReasonPositionSize  = "position_size"
	ReasonLossStreak    = "loss_streak"
	ReasonDailyLoss     = "daily_loss"
	ReasonDrawdown      = "drawdown"
)

// Decision is the structured result of a gate check. A rejection is not an
// error; strategies consume it to suppress an action.
type Decision struct {
	Allow  bool
	Reason string
}

var allowed = Decision{Allow: true}

// Manager owns the per-account risk state machine. It is driven from a
// single engine goroutine and is not synchronized.
type Manager struct {
	cfg   Config
	clock infra.Clock

	state domain.RiskState

	// realized-PnL prefix tracking for drawdown
	cumPnL  float64
	peakPnL float64

	day time.Time // UTC day the daily counters belong to
}

// NewManager creates a risk manager with zeroed state.
func NewManager(cfg Config, clock infra.Clock) *Manager {
	m := &Manager{cfg: cfg, clock: clock}
	m.day = dayOf(clock.Now())
	return m
}

// State returns a copy of the current risk posture.
func (m *Manager) State() domain.RiskState {
	m.rollDay()
	return m.state
}

// CanOpenPosition evaluates the gates in fixed priority order and returns
// the first failing reason.
func (m *Manager) CanOpenPosition(proposedSize float64) Decision {
	m.rollDay()

	if m.state.EmergencyStopTriggered {
		return Decision{Reason: ReasonEmergencyStop}
	}
	if m.cooldownActive() {
		return Decision{Reason: ReasonCooldown}
	}
	if proposedSize > m.cfg.MaxPositionSize {
		return Decision{Reason: ReasonPositionSize}
	}
	if m.cfg.MaxConsecutiveLosses > 0 && m.state.ConsecutiveLosses >= m.cfg.MaxConsecutiveLosses {
		return Decision{Reason: ReasonLossStreak}
	}
	if m.cfg.MaxDailyLoss > 0 && m.state.DailyLoss >= m.cfg.MaxDailyLoss {
		return Decision{Reason: ReasonDailyLoss}
	}
	if m.cfg.MaxDrawdown > 0 && m.state.CurrentDrawdown >= m.cfg.MaxDrawdown {
		return Decision{Reason: ReasonDrawdown}
	}
	return allowed
}

// RecordTrade ingests one realized trade outcome.
func (m *Manager) RecordTrade(pnl float64) {
	m.rollDay()

	now := m.clock.Now()
	m.state.LastTradeTime = now

	if pnl < 0 {
		m.state.ConsecutiveLosses++
		m.state.DailyLoss += -pnl
	} else {
		m.state.ConsecutiveLosses = 0
	}

	// Drawdown over the realized-PnL prefix sums: max(peak - running sum).
	m.cumPnL += pnl
	if m.cumPnL > m.peakPnL {
		m.peakPnL = m.cumPnL
	}
	if dd := m.peakPnL - m.cumPnL; dd > m.state.CurrentDrawdown {
		m.state.CurrentDrawdown = dd
	}

	if m.cfg.EmergencyStopLoss > 0 && m.state.CurrentDrawdown >= m.cfg.EmergencyStopLoss && !m.state.EmergencyStopTriggered {
		m.state.EmergencyStopTriggered = true
		slog.Error("emergency stop latched",
			slog.Float64("drawdown", m.state.CurrentDrawdown),
			slog.Float64("limit", m.cfg.EmergencyStopLoss))
	}

	if m.cfg.MaxConsecutiveLosses > 0 && m.state.ConsecutiveLosses >= m.cfg.MaxConsecutiveLosses {
		if !m.state.IsInCooldown {
			slog.Warn("loss streak reached, cooldown opened",
				slog.Int("losses", m.state.ConsecutiveLosses),
				slog.Duration("period", m.cfg.CooldownPeriod))
		}
		m.state.IsInCooldown = true
	}
}

// ResetEmergencyStop clears the emergency latch. This is the only way out
// once it is set.
func (m *Manager) ResetEmergencyStop() {
	m.state.EmergencyStopTriggered = false
	slog.Warn("emergency stop manually reset")
}

// SuggestedTradeSize scales base by a multiplicative risk factor as limits
// are approached; the combined factor never drops below 0.1.
func (m *Manager) SuggestedTradeSize(base float64) float64 {
	factor := 1.0
	if m.cfg.MaxDrawdown > 0 && m.state.CurrentDrawdown > m.cfg.MaxDrawdown/2 {
		factor *= 0.5
	}
	if m.cfg.MaxConsecutiveLosses > 0 && float64(m.state.ConsecutiveLosses) > float64(m.cfg.MaxConsecutiveLosses)/2 {
		factor *= 0.3
	}
	if m.cfg.MaxDailyLoss > 0 && m.state.DailyLoss > m.cfg.MaxDailyLoss/2 {
		factor *= 0.5
	}
	return base * safe.Clamp(factor, 0.1, 1.0)
}

// NearLimit reports whether any limit has passed its halfway point. The
// maker strategy uses it to stop adding exposure early.
func (m *Manager) NearLimit() bool {
	if m.cfg.MaxDrawdown > 0 && m.state.CurrentDrawdown > m.cfg.MaxDrawdown/2 {
		return true
	}
	if m.cfg.MaxConsecutiveLosses > 0 && float64(m.state.ConsecutiveLosses) > float64(m.cfg.MaxConsecutiveLosses)/2 {
		return true
	}
	if m.cfg.MaxDailyLoss > 0 && m.state.DailyLoss > m.cfg.MaxDailyLoss/2 {
		return true
	}
	return false
}

func (m *Manager) cooldownActive() bool {
	if !m.state.IsInCooldown {
		return false
	}
	if m.clock.Now().Sub(m.state.LastTradeTime) >= m.cfg.CooldownPeriod {
		m.state.IsInCooldown = false
		return false
	}
	return true
}

// rollDay resets the daily-loss counter when the UTC day changes. Other
// fields (drawdown, emergency latch) survive the rollover.
func (m *Manager) rollDay() {
	today := dayOf(m.clock.Now())
	if !today.Equal(m.day) {
		m.day = today
		m.state.DailyLoss = 0
	}
}

func dayOf(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
