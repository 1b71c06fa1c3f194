package strategy

import (
	"log/slog"

	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/pkg/safe"
)

// Trend opens a directional position on an SMA trend signal and exits
// through a protective stop, a profit-locking stop raise, and a fee-aware
// take-profit limit.
type Trend struct {
	deps Deps
}

func (s *Trend) Name() string { return "trend" }

func (s *Trend) Decide(in Input) []domain.DesiredOrder {
	if in.Position.IsFlat() {
		return s.entry(in)
	}
	return s.exits(in)
}

func (s *Trend) entry(in Input) []domain.DesiredOrder {
	v := in.Market
	if !v.Ready {
		return nil
	}

	var side domain.Side
	var ref float64
	switch v.Trend {
	case domain.TrendUp:
		side, ref = domain.SideBuy, v.BestAsk
	case domain.TrendDown:
		side, ref = domain.SideSell, v.BestBid
	default:
		return nil
	}

	size := s.deps.admitOpen(ref)
	if size <= 0 {
		return nil
	}

	slog.Debug("trend entry",
		slog.String("side", string(side)),
		slog.Float64("size", size),
		slog.String("trend", string(v.Trend)))
	return []domain.DesiredOrder{{Side: side, Type: domain.TypeMarket, Amount: size}}
}

func (s *Trend) exits(in Input) []domain.DesiredOrder {
	pos := in.Position
	v := in.Market

	if forced, reason := s.deps.Throttle.ShouldQuickClose(in.UnrealizedPnL, in.HoldTime); forced {
		slog.Warn("quick close",
			slog.String("reason", reason),
			slog.Float64("pnl", in.UnrealizedPnL))
		return []domain.DesiredOrder{marketClose(pos)}
	}

	stop := s.stopPrice(in)
	orders := make([]domain.DesiredOrder, 0, 2)
	if safe.ValidPrice(stop) {
		orders = append(orders, domain.DesiredOrder{
			Side:       pos.CloseSide(),
			Type:       domain.TypeStopMarket,
			Price:      stop,
			Amount:     pos.Size(),
			ReduceOnly: true,
		})
	}

	if v.BestBid > 0 && v.BestAsk > 0 {
		if take := s.deps.closeOrder(pos, v.BestBid, v.BestAsk); safe.ValidPrice(take.Price) || take.Type == domain.TypeMarket {
			orders = append(orders, take)
		}
	}
	return orders
}

// stopPrice is the protective stop at entry*(1±lossLimit), raised to lock
// in ProfitLockOffsetUSD once unrealized profit crosses the trigger.
func (s *Trend) stopPrice(in Input) float64 {
	pos := in.Position
	cfg := s.deps.Cfg

	var stop float64
	if pos.IsLong() {
		stop = pos.EntryPrice * (1 - cfg.LossLimit)
	} else {
		stop = pos.EntryPrice * (1 + cfg.LossLimit)
	}

	if cfg.ProfitLockTriggerUSD <= 0 || in.UnrealizedPnL < cfg.ProfitLockTriggerUSD {
		return stop
	}

	lockDistance := cfg.ProfitLockOffsetUSD / pos.Size()
	if pos.IsLong() {
		if locked := pos.EntryPrice + lockDistance; locked > stop {
			stop = locked
		}
	} else {
		if locked := pos.EntryPrice - lockDistance; locked < stop {
			stop = locked
		}
	}
	return stop
}
