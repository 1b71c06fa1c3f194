package engine

import (
	"context"
	"testing"
	"time"

	"github.com/July-Jio/ritmex-bot/internal/closer"
	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/internal/event"
	"github.com/July-Jio/ritmex-bot/internal/infra"
	"github.com/July-Jio/ritmex-bot/internal/ledger"
	"github.com/July-Jio/ritmex-bot/internal/market"
	"github.com/July-Jio/ritmex-bot/internal/risk"
	"github.com/July-Jio/ritmex-bot/internal/strategy"
	"github.com/July-Jio/ritmex-bot/internal/throttle"
)

// stubStrategy returns a fixed desired set.
type stubStrategy struct {
	desired []domain.DesiredOrder
}

func (s *stubStrategy) Name() string                                { return "stub" }
func (s *stubStrategy) Decide(in strategy.Input) []domain.DesiredOrder { return s.desired }

func newTestEngine(t *testing.T, adapter *fakeAdapter, strat strategy.Strategy) (*Engine, *infra.FakeClock) {
	t.Helper()
	clock := infra.NewFakeClock(time.Unix(1700000000, 0))
	fees := domain.FeeSchedule{MakerRate: 0.0002, TakerRate: 0.00055}
	retry := infra.DefaultRetryConfig()
	retry.MaxRetries = 0

	e := New(Options{
		Account:  "acct",
		Symbol:   "BTCUSDT",
		Adapter:  adapter,
		Strategy: strat,
		Tracker:  market.NewTracker(market.Config{SMAWindow: 3}),
		Risk: risk.NewManager(risk.Config{
			MaxPositionSize:      10,
			MaxConsecutiveLosses: 3,
			MaxDailyLoss:         1000,
			MaxDrawdown:          1000,
			EmergencyStopLoss:    5000,
			CooldownPeriod:       5 * time.Minute,
		}, clock),
		Throttle: throttle.NewController(throttle.Config{
			MinTradeInterval:    time.Second,
			MaxVolumePerMinute:  100000,
			QuickCloseThreshold: 50,
			MaxPositionHoldTime: time.Hour,
			MaxDrawdownPerTrade: 25,
		}, clock),
		Closer:              closer.New(closer.Config{MinProfitMargin: 0.0001, Timeout: time.Minute}, fees, clock),
		Ledger:              ledger.New(fees, 24*time.Hour, clock),
		Clock:               clock,
		Retry:               retry,
		TickInterval:        500 * time.Millisecond,
		PriceChaseThreshold: 0.5,
		PriceDecimals:       1,
		QtyDecimals:         3,
	})
	return e, clock
}

func seedMarket(e *Engine) {
	for _, c := range []float64{100, 100, 100} {
		e.apply(event.Kline{Close: c})
	}
	e.apply(event.Depth{
		Bids: []domain.PriceLevel{{Price: 100.0, Qty: 5}},
		Asks: []domain.PriceLevel{{Price: 100.1, Qty: 5}},
	})
	e.apply(event.Ticker{Last: 100.05})
}

func TestEnginePositionLifecycleDrivesCloser(t *testing.T) {
	e, _ := newTestEngine(t, &fakeAdapter{}, &stubStrategy{})

	if got := e.opts.Closer.Phase(); got != closer.PhaseIdle {
		t.Fatalf("initial phase = %v, want idle", got)
	}

	e.apply(event.PositionUpdate{
		Position: domain.Position{Symbol: "BTCUSDT", PositionAmt: 1, EntryPrice: 100},
	})
	if got := e.opts.Closer.Phase(); got != closer.PhaseActive {
		t.Fatalf("phase after open = %v, want active", got)
	}
	if e.positionOpenedAt.IsZero() {
		t.Fatal("positionOpenedAt not stamped on open")
	}

	e.apply(event.PositionUpdate{Position: domain.Position{Symbol: "BTCUSDT"}})
	if got := e.opts.Closer.Phase(); got != closer.PhaseIdle {
		t.Fatalf("phase after close = %v, want idle for next position", got)
	}
	if !e.positionOpenedAt.IsZero() {
		t.Fatal("positionOpenedAt not cleared on close")
	}
}

func TestEngineFillFeedsRiskAndThrottle(t *testing.T) {
	e, _ := newTestEngine(t, &fakeAdapter{}, &stubStrategy{})

	e.apply(event.PositionUpdate{
		Position: domain.Position{Symbol: "BTCUSDT", PositionAmt: 1, EntryPrice: 100},
	})
	// Reducing fill at a loss: sell 1 at 95 against entry 100.
	e.apply(event.Fill{Fill: domain.Fill{
		Symbol:     "BTCUSDT",
		Side:       domain.SideSell,
		OrderType:  domain.TypeMarket,
		Price:      95,
		Qty:        1,
		ReduceOnly: true,
	}})

	state := e.opts.Risk.State()
	if state.ConsecutiveLosses != 1 {
		t.Fatalf("consecutive losses = %d, want 1", state.ConsecutiveLosses)
	}
	if state.DailyLoss == 0 {
		t.Fatal("daily loss not recorded")
	}
	if got := e.opts.Throttle.WindowVolume(); got != 95 {
		t.Fatalf("window volume = %v, want 95", got)
	}
	if e.opts.Ledger.RealizedPnL() >= -5 {
		t.Fatalf("realized pnl = %v, want below -5 (loss plus fee)", e.opts.Ledger.RealizedPnL())
	}
}

func TestEngineAdditiveFillRealizesNothing(t *testing.T) {
	e, _ := newTestEngine(t, &fakeAdapter{}, &stubStrategy{})

	e.apply(event.Fill{Fill: domain.Fill{
		Symbol:    "BTCUSDT",
		Side:      domain.SideBuy,
		OrderType: domain.TypeLimit,
		Price:     100,
		Qty:       1,
		IsMaker:   true,
	}})

	if got := e.opts.Risk.State().ConsecutiveLosses; got != 0 {
		t.Fatalf("opening fill counted as trade outcome, losses = %d", got)
	}
	if got := e.opts.Ledger.RealizedPnL(); got != 0 {
		t.Fatalf("realized pnl = %v on opening fill, want 0", got)
	}
}

func TestEngineOrderCacheFollowsAuthoritativeEvents(t *testing.T) {
	e, _ := newTestEngine(t, &fakeAdapter{}, &stubStrategy{})

	open := domain.Order{
		ClientOrderID: "o1",
		Side:          domain.SideBuy,
		Type:          domain.TypeLimit,
		Price:         99.5,
		Status:        domain.StatusNew,
	}
	e.apply(event.OrderUpdate{Order: open})
	if len(e.openOrders) != 1 {
		t.Fatalf("open orders = %d, want 1", len(e.openOrders))
	}

	open.Status = domain.StatusFilled
	e.apply(event.OrderUpdate{Order: open})
	if len(e.openOrders) != 0 {
		t.Fatalf("open orders = %d after fill event, want 0", len(e.openOrders))
	}
}

func TestEngineStepPublishesCompleteSnapshot(t *testing.T) {
	e, clock := newTestEngine(t, &fakeAdapter{}, &stubStrategy{})
	seedMarket(e)

	e.apply(event.PositionUpdate{
		Position: domain.Position{Symbol: "BTCUSDT", PositionAmt: 1, EntryPrice: 100},
	})
	e.opts.Throttle.RecordTrade(100)
	clock.Advance(2 * time.Second)

	snaps, cancel := e.Subscribe()
	defer cancel()

	e.step(context.Background())

	select {
	case snap := <-snaps:
		if snap.Account != "acct" || snap.Symbol != "BTCUSDT" {
			t.Fatalf("snapshot identity = %s/%s", snap.Account, snap.Symbol)
		}
		if snap.BestBid != 100.0 || snap.BestAsk != 100.1 {
			t.Fatalf("snapshot book = %v/%v", snap.BestBid, snap.BestAsk)
		}
		if snap.LastPrice != 100.05 {
			t.Fatalf("snapshot last = %v", snap.LastPrice)
		}
		if snap.Advice == "" {
			t.Fatal("snapshot missing advice")
		}
		if snap.WindowVolume != 100 {
			t.Fatalf("snapshot window volume = %v, want 100", snap.WindowVolume)
		}
		if snap.CloseElapsed != 2*time.Second {
			t.Fatalf("snapshot close elapsed = %v, want 2s", snap.CloseElapsed)
		}
	default:
		t.Fatal("no snapshot published")
	}
}

func TestEngineUnsubscribeStopsDelivery(t *testing.T) {
	e, _ := newTestEngine(t, &fakeAdapter{}, &stubStrategy{})
	seedMarket(e)

	snaps, cancel := e.Subscribe()
	cancel()
	cancel() // second cancel is a no-op

	e.step(context.Background())
	select {
	case <-snaps:
		t.Fatal("snapshot delivered after unsubscribe")
	default:
	}
}

func TestEngineValidateDropsMalformedOrders(t *testing.T) {
	e, _ := newTestEngine(t, &fakeAdapter{}, &stubStrategy{})

	nan := 0.0
	nan = nan / nan

	in := []domain.DesiredOrder{
		{Side: domain.SideBuy, Type: domain.TypeLimit, Price: nan, Amount: 1},
		{Side: domain.SideBuy, Type: domain.TypeLimit, Price: 99.5, Amount: 0},
		{Side: domain.SideSell, Type: domain.TypeLimit, Price: 100.5, Amount: 1},
		{Side: domain.SideSell, Type: domain.TypeMarket, Amount: 1},
	}
	out := e.validate(in)
	if len(out) != 2 {
		t.Fatalf("validated orders = %d, want 2", len(out))
	}
	for _, d := range out {
		if d.Side != domain.SideSell {
			t.Fatalf("kept malformed order: %+v", d)
		}
	}
}

func TestEngineValidateRoundsToVenuePrecision(t *testing.T) {
	e, _ := newTestEngine(t, &fakeAdapter{}, &stubStrategy{})

	in := []domain.DesiredOrder{
		// entry*(1-lossLimit) style arithmetic carries full float64
		// precision; the venue filter accepts one price decimal and
		// three quantity decimals here.
		{Side: domain.SideSell, Type: domain.TypeStopMarket, Price: 99.00000000000001, Amount: 1, ReduceOnly: true},
		{Side: domain.SideBuy, Type: domain.TypeLimit, Price: 100.0475, Amount: 0.16666666666666666},
		{Side: domain.SideSell, Type: domain.TypeMarket, Amount: 0.0001},
	}
	out := e.validate(in)
	if len(out) != 2 {
		t.Fatalf("validated orders = %d, want 2 (dust quantity rounds to zero)", len(out))
	}
	if out[0].Price != 99.0 {
		t.Errorf("stop price = %v, want 99.0", out[0].Price)
	}
	if out[1].Price != 100.0 {
		t.Errorf("limit price = %v, want 100.0", out[1].Price)
	}
	if out[1].Amount != 0.167 {
		t.Errorf("limit amount = %v, want 0.167", out[1].Amount)
	}
}

func TestEngineAccountEventsStepImmediately(t *testing.T) {
	e, _ := newTestEngine(t, &fakeAdapter{}, &stubStrategy{})
	seedMarket(e)

	snaps, cancel := e.Subscribe()
	defer cancel()

	// Market data waits for the tick.
	e.onEvent(context.Background(), event.Ticker{Last: 100.06})
	select {
	case <-snaps:
		t.Fatal("market data triggered a decision cycle")
	default:
	}

	// A position change must not wait out the rest of the tick.
	e.onEvent(context.Background(), event.PositionUpdate{
		Position: domain.Position{Symbol: "BTCUSDT", PositionAmt: 1, EntryPrice: 100},
	})
	select {
	case snap := <-snaps:
		if snap.Position.PositionAmt != 1 {
			t.Fatalf("snapshot position = %v, want 1", snap.Position.PositionAmt)
		}
	default:
		t.Fatal("no decision cycle after position update")
	}
}

func TestEngineWarmupSeedsState(t *testing.T) {
	e, _ := newTestEngine(t, &fakeAdapter{}, &stubStrategy{})

	if err := e.warmup(context.Background()); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	view := e.opts.Tracker.View()
	if !view.Ready {
		t.Fatal("tracker not ready after warmup")
	}
	if view.BestBid != 100.0 || view.BestAsk != 100.1 {
		t.Fatalf("warmup book = %v/%v", view.BestBid, view.BestAsk)
	}
}
