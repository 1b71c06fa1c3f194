// Package ledger maintains the current position and an append-only trade
// history, and computes PnL and aggregate statistics over it.
package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/internal/infra"
)

// Stats are aggregate trade statistics computed on demand over the retained
// trade list.
type Stats struct {
	TradeCount  int
	MakerCount  int
	TakerCount  int
	LimitCount  int
	MarketCount int

	TotalNotional float64
	TotalFees     float64
	AvgFeeRate    float64

	RealizedPnL float64
	WinCount    int
	LossCount   int
	WinRate     float64
}

// Ledger is owned by one engine goroutine. The trade list is append-only
// and ordered by timestamp; entries older than the retention window are
// evicted on append, so a long session does not grow without bound.
// Realized-PnL aggregates survive eviction.
type Ledger struct {
	clock     infra.Clock
	fees      domain.FeeSchedule
	retention time.Duration

	position domain.Position
	trades   []domain.TradeRecord

	realizedPnL float64
	wins        int
	losses      int
}

// New creates an empty ledger for one symbol.
func New(fees domain.FeeSchedule, retention time.Duration, clock infra.Clock) *Ledger {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Ledger{clock: clock, fees: fees, retention: retention}
}

// Position returns the current authoritative position.
func (l *Ledger) Position() domain.Position { return l.position }

// SetPosition replaces the position wholesale from an account-state event.
func (l *Ledger) SetPosition(p domain.Position) { l.position = p }

// ApplyFill appends a trade record for one fill and returns the record and
// the realized PnL it produced (zero for fills that only add exposure).
// Realized PnL is net of the fill's fee and is measured against the entry
// price held before the account event that will replace the position.
func (l *Ledger) ApplyFill(f domain.Fill) (domain.TradeRecord, float64) {
	feeRate := l.fees.Rate(f.OrderType, f.IsMaker)
	notional := f.Price * f.Qty

	fee := notional * feeRate
	if f.CommissionSet {
		// Prefer the venue-reported commission over the schedule.
		fee = f.Commission
	}

	rec := domain.TradeRecord{
		ID:        uuid.NewString(),
		Timestamp: f.Time,
		Symbol:    f.Symbol,
		Side:      f.Side,
		Price:     f.Price,
		Amount:    f.Qty,
		Notional:  notional,
		IsMaker:   f.IsMaker,
		OrderType: f.OrderType,
		Fee:       fee,
		FeeRate:   feeRate,
		FeeAsset:  f.FeeAsset,
		OrderID:   f.OrderID,
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.clock.Now()
	}

	l.evict()
	l.trades = append(l.trades, rec)

	pnl := l.realize(f, fee)
	return rec, pnl
}

// realize computes the realized PnL of a fill that reduces the current
// position. Fills in the position's direction open or add exposure and
// realize nothing.
func (l *Ledger) realize(f domain.Fill, fee float64) float64 {
	if l.position.IsFlat() {
		return 0
	}
	reducing := (l.position.IsLong() && f.Side == domain.SideSell) ||
		(l.position.IsShort() && f.Side == domain.SideBuy)
	if !reducing {
		return 0
	}

	qty := f.Qty
	if held := l.position.Size(); qty > held {
		qty = held
	}
	gross := (f.Price - l.position.EntryPrice) * qty * l.position.Direction()
	pnl := gross - fee

	l.realizedPnL += pnl
	if pnl >= 0 {
		l.wins++
	} else {
		l.losses++
	}
	return pnl
}

// GrossPnL is the open position's profit at markPrice before fees.
func (l *Ledger) GrossPnL(markPrice float64) float64 {
	return l.position.UnrealizedPnL(markPrice)
}

// NetPnL subtracts a caller-supplied total-fees figure from the gross.
func (l *Ledger) NetPnL(markPrice, totalFees float64) float64 {
	return l.GrossPnL(markPrice) - totalFees
}

// RealizedPnL is the cumulative realized profit, net of fees.
func (l *Ledger) RealizedPnL() float64 { return l.realizedPnL }

// Trades returns the retained records, oldest first.
func (l *Ledger) Trades() []domain.TradeRecord {
	out := make([]domain.TradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}

// Stats computes the aggregates over the retained trade list. Expected
// per-session trade counts keep the full scan cheap.
func (l *Ledger) Stats() Stats {
	var s Stats
	s.TradeCount = len(l.trades)
	s.RealizedPnL = l.realizedPnL
	s.WinCount = l.wins
	s.LossCount = l.losses
	if closed := l.wins + l.losses; closed > 0 {
		s.WinRate = float64(l.wins) / float64(closed)
	}

	var weightedRate float64
	for _, t := range l.trades {
		if t.IsMaker {
			s.MakerCount++
		} else {
			s.TakerCount++
		}
		if t.OrderType == domain.TypeLimit {
			s.LimitCount++
		} else {
			s.MarketCount++
		}
		s.TotalNotional += t.Notional
		s.TotalFees += t.Fee
		weightedRate += t.FeeRate * t.Notional
	}
	if s.TotalNotional > 0 {
		s.AvgFeeRate = weightedRate / s.TotalNotional
	}
	return s
}

func (l *Ledger) evict() {
	cutoff := l.clock.Now().Add(-l.retention)
	i := 0
	for i < len(l.trades) && l.trades[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		l.trades = append(l.trades[:0], l.trades[i:]...)
	}
}
