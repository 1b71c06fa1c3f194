package strategy

import (
	"log/slog"

	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/pkg/safe"
)

// Maker quotes both sides of the book at configured offsets from the touch.
// A side is withheld while book imbalance persists against it or risk is
// near a limit. Any held position always carries one reduce-only close
// priced by the close strategy, sized to the full exposure.
type Maker struct {
	deps Deps
}

func (s *Maker) Name() string { return "maker" }

func (s *Maker) Decide(in Input) []domain.DesiredOrder {
	v := in.Market
	if v.BestBid <= 0 || v.BestAsk <= 0 {
		return nil
	}

	orders := make([]domain.DesiredOrder, 0, 2)

	if !in.Position.IsFlat() {
		if forced, reason := s.deps.Throttle.ShouldQuickClose(in.UnrealizedPnL, in.HoldTime); forced {
			slog.Warn("quick close",
				slog.String("reason", reason),
				slog.Float64("pnl", in.UnrealizedPnL))
			return []domain.DesiredOrder{marketClose(in.Position)}
		}
		orders = append(orders, s.deps.closeOrder(in.Position, v.BestBid, v.BestAsk))
	}

	// Quote only sides that would not reduce the held position; reduction
	// belongs to the close order alone.
	if s.quoteSide(domain.SideBuy, in) {
		if q, ok := s.quote(domain.SideBuy, v.BestBid-s.deps.Cfg.BidOffset); ok {
			orders = append(orders, q)
		}
	}
	if s.quoteSide(domain.SideSell, in) {
		if q, ok := s.quote(domain.SideSell, v.BestAsk+s.deps.Cfg.AskOffset); ok {
			orders = append(orders, q)
		}
	}
	return orders
}

// quoteSide decides whether to keep a quote up on side this tick.
func (s *Maker) quoteSide(side domain.Side, in Input) bool {
	cfg := s.deps.Cfg
	v := in.Market

	if side == domain.SideBuy && (cfg.SkipBuySide || in.Position.IsShort()) {
		return false
	}
	if side == domain.SideSell && (cfg.SkipSellSide || in.Position.IsLong()) {
		return false
	}
	if s.deps.Risk.NearLimit() {
		return false
	}

	// Persistent pressure against a side means resting there is adverse
	// selection; sell-dominant books skip the bid, buy-dominant the ask.
	if cfg.ImbalanceSkipStreak > 0 && v.ImbalanceStreak >= cfg.ImbalanceSkipStreak {
		if side == domain.SideBuy && v.Imbalance == domain.ImbalanceSellDominant {
			return false
		}
		if side == domain.SideSell && v.Imbalance == domain.ImbalanceBuyDominant {
			return false
		}
	}
	return true
}

func (s *Maker) quote(side domain.Side, price float64) (domain.DesiredOrder, bool) {
	if !safe.ValidPrice(price) {
		return domain.DesiredOrder{}, false
	}
	size := s.deps.admitOpen(price)
	if size <= 0 {
		return domain.DesiredOrder{}, false
	}
	return domain.DesiredOrder{
		Side:   side,
		Type:   domain.TypeLimit,
		Price:  price,
		Amount: size,
	}, true
}
