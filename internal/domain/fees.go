package domain

// FeeSchedule is a pure lookup of fee rate by order type and liquidity role.
// Every monetary figure in the engine derives from it.
type FeeSchedule struct {
	MakerRate float64
	TakerRate float64
}

// Rate returns the fee rate for an order. Market orders always pay taker;
// limit orders pay by the liquidity role reported with the fill.
func (f FeeSchedule) Rate(orderType OrderType, isMaker bool) float64 {
	if orderType == TypeMarket || orderType == TypeStopMarket {
		return f.TakerRate
	}
	if isMaker {
		return f.MakerRate
	}
	return f.TakerRate
}

// RoundTrip returns the combined maker-entry plus taker-exit fee on a
// notional, the worst realistic cost of opening and closing.
func (f FeeSchedule) RoundTrip(notional float64) float64 {
	return notional*f.MakerRate + notional*f.TakerRate
}
