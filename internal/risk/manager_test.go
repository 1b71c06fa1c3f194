package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/July-Jio/ritmex-bot/internal/infra"
)

func testConfig() Config {
	return Config{
		MaxPositionSize:      1.0,
		MaxConsecutiveLosses: 3,
		MaxDailyLoss:         50,
		MaxDrawdown:          100,
		EmergencyStopLoss:    200,
		CooldownPeriod:       5 * time.Minute,
	}
}

func TestDrawdownTracksPeakMinusRunningSum(t *testing.T) {
	clock := infra.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	m := NewManager(testConfig(), clock)

	// cum: 10, 30, 10, -10, 20 → peak 30, max drawdown 40.
	for _, pnl := range []float64{10, 20, -20, -20, 30} {
		m.RecordTrade(pnl)
	}
	require.InDelta(t, 40, m.State().CurrentDrawdown, 1e-9)

	// Drawdown is the historical max; recovering does not shrink it.
	m.RecordTrade(100)
	require.InDelta(t, 40, m.State().CurrentDrawdown, 1e-9)
}

func TestEmergencyStopLatches(t *testing.T) {
	clock := infra.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	cfg := testConfig()
	cfg.EmergencyStopLoss = 50
	m := NewManager(cfg, clock)

	m.RecordTrade(-50)
	require.True(t, m.State().EmergencyStopTriggered)

	d := m.CanOpenPosition(0.1)
	require.False(t, d.Allow)
	require.Equal(t, ReasonEmergencyStop, d.Reason)

	// Recovery alone does not clear the latch.
	m.RecordTrade(500)
	require.True(t, m.State().EmergencyStopTriggered)

	m.ResetEmergencyStop()
	require.False(t, m.State().EmergencyStopTriggered)
}

func TestGatePriorityCooldownBeforeDailyLoss(t *testing.T) {
	clock := infra.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	m := NewManager(testConfig(), clock)

	// Violate both the loss-streak/cooldown and the daily-loss limit.
	for i := 0; i < 3; i++ {
		m.RecordTrade(-20) // dailyLoss 60 > 50, streak 3 → cooldown
	}

	d := m.CanOpenPosition(0.1)
	require.False(t, d.Allow)
	require.Equal(t, ReasonCooldown, d.Reason, "cooldown outranks daily loss")
}

func TestLossStreakOpensCooldown(t *testing.T) {
	clock := infra.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	cfg := testConfig()
	cfg.MaxDailyLoss = 1000 // keep other gates out of the way
	m := NewManager(cfg, clock)

	for i := 0; i < 3; i++ {
		m.RecordTrade(-1)
	}
	require.True(t, m.State().IsInCooldown)

	d := m.CanOpenPosition(0.1)
	require.False(t, d.Allow)
	require.Equal(t, ReasonCooldown, d.Reason)

	// After the cooldown window the loss-streak gate still blocks.
	clock.Advance(6 * time.Minute)
	d = m.CanOpenPosition(0.1)
	require.False(t, d.Allow)
	require.Equal(t, ReasonLossStreak, d.Reason)

	// A winning trade resets the streak and opening is allowed again.
	m.RecordTrade(5)
	require.True(t, m.CanOpenPosition(0.1).Allow)
}

func TestPositionSizeGate(t *testing.T) {
	clock := infra.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	m := NewManager(testConfig(), clock)

	d := m.CanOpenPosition(1.5)
	require.False(t, d.Allow)
	require.Equal(t, ReasonPositionSize, d.Reason)
	require.True(t, m.CanOpenPosition(1.0).Allow)
}

func TestDailyLossResetsAtUTCMidnight(t *testing.T) {
	clock := infra.NewFakeClock(time.Date(2026, 8, 1, 23, 50, 0, 0, time.UTC))
	cfg := testConfig()
	cfg.MaxConsecutiveLosses = 100 // isolate the daily-loss gate
	m := NewManager(cfg, clock)

	m.RecordTrade(-60)
	d := m.CanOpenPosition(0.1)
	require.Equal(t, ReasonDailyLoss, d.Reason)

	clock.Advance(20 * time.Minute) // crosses midnight
	require.Zero(t, m.State().DailyLoss)
	require.True(t, m.CanOpenPosition(0.1).Allow)
}

func TestSuggestedTradeSize(t *testing.T) {
	clock := infra.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	cfg := testConfig()
	cfg.MaxDailyLoss = 200
	cfg.EmergencyStopLoss = 1000
	m := NewManager(cfg, clock)

	require.InDelta(t, 1.0, m.SuggestedTradeSize(1.0), 1e-9)

	// Drawdown past half its limit (60 > 50) halves the size.
	m.RecordTrade(-60)
	require.InDelta(t, 0.5, m.SuggestedTradeSize(1.0), 1e-9)
	require.True(t, m.NearLimit())

	// Loss streak past half its limit (2 > 1.5) applies a further x0.3.
	m.RecordTrade(-1)
	require.InDelta(t, 0.15, m.SuggestedTradeSize(1.0), 1e-9)

	// Daily loss past half its limit (111 > 100) applies a further x0.5;
	// 0.5*0.3*0.5 = 0.075 is floored at 0.1.
	m.RecordTrade(-50)
	require.InDelta(t, 0.1, m.SuggestedTradeSize(1.0), 1e-9)
}
