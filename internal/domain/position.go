package domain

// Position is the authoritative account position for one symbol. It is
// owned by a single engine and replaced wholesale on each account-state
// event, never partially mutated.
type Position struct {
	Symbol      string
	PositionAmt float64 // signed: >0 long, <0 short, 0 flat
	EntryPrice  float64
}

// IsLong reports whether the position is long.
func (p *Position) IsLong() bool { return p.PositionAmt > 0 }

// IsShort reports whether the position is short.
func (p *Position) IsShort() bool { return p.PositionAmt < 0 }

// IsFlat reports whether there is no exposure.
func (p *Position) IsFlat() bool { return p.PositionAmt == 0 }

// Direction returns +1 for long, -1 for short, 0 for flat.
func (p *Position) Direction() float64 {
	switch {
	case p.PositionAmt > 0:
		return 1
	case p.PositionAmt < 0:
		return -1
	default:
		return 0
	}
}

// Size returns the absolute exposure.
func (p *Position) Size() float64 {
	if p.PositionAmt < 0 {
		return -p.PositionAmt
	}
	return p.PositionAmt
}

// UnrealizedPnL returns the gross profit of the open position at markPrice,
// signed by direction. Fees are not included.
func (p *Position) UnrealizedPnL(markPrice float64) float64 {
	return (markPrice - p.EntryPrice) * p.Size() * p.Direction()
}

// CloseSide returns the order side that reduces this position.
func (p *Position) CloseSide() Side {
	if p.IsLong() {
		return SideSell
	}
	return SideBuy
}
