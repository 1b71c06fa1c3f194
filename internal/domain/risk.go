package domain

import "time"

// RiskState is the risk manager's account posture. It is mutated only by
// the risk manager in response to realized trades; strategy logic reads it
// but never writes it.
type RiskState struct {
	CurrentDrawdown        float64
	ConsecutiveLosses      int
	DailyLoss              float64
	LastTradeTime          time.Time
	IsInCooldown           bool
	EmergencyStopTriggered bool
}
