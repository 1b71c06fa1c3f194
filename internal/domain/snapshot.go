package domain

import "time"

// EngineSnapshot is the read-only aggregate published once per tick.
// Consumers must treat it as a value: it is either the prior complete
// snapshot or the next complete one, never a partial update.
type EngineSnapshot struct {
	Account string
	Symbol  string
	Time    time.Time

	Position   Position
	OpenOrders []Order
	Risk       RiskState

	LastPrice float64
	BestBid   float64
	BestAsk   float64
	Spread    float64

	BuyDepth10  float64
	SellDepth10 float64
	Imbalance   Imbalance
	SMA         float64
	Trend       Trend

	UnrealizedPnL float64
	RealizedPnL   float64
	TradeCount    int

	// WindowVolume is the notional executed inside the throttle's rolling
	// window; CloseElapsed is how long the close strategy has been working
	// the open position.
	WindowVolume float64
	CloseElapsed time.Duration

	// Advice is the last strategy decision in operator-readable form,
	// e.g. "quote both sides", "hold long, stop 42100.0".
	Advice string
}
