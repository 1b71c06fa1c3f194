// Package engine runs one trading loop per account. Every mutation of
// position, risk state, the open-order cache, and the published snapshot
// happens on the loop goroutine: market data, account events, command
// completions, and timer ticks are serialized into one inbox and applied
// one at a time, so strategy, reconciliation, and risk updates never race.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/July-Jio/ritmex-bot/internal/closer"
	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/internal/event"
	"github.com/July-Jio/ritmex-bot/internal/exchange"
	"github.com/July-Jio/ritmex-bot/internal/infra"
	"github.com/July-Jio/ritmex-bot/internal/ledger"
	"github.com/July-Jio/ritmex-bot/internal/market"
	"github.com/July-Jio/ritmex-bot/internal/metrics"
	"github.com/July-Jio/ritmex-bot/internal/risk"
	"github.com/July-Jio/ritmex-bot/internal/strategy"
	"github.com/July-Jio/ritmex-bot/internal/throttle"
	"github.com/July-Jio/ritmex-bot/pkg/safe"
)

// Options wires one engine.
type Options struct {
	Account string
	Symbol  string

	Adapter  exchange.Adapter
	Strategy strategy.Strategy
	Tracker  *market.Tracker
	Risk     *risk.Manager
	Throttle *throttle.Controller
	Closer   *closer.Closer
	Ledger   *ledger.Ledger

	Clock        infra.Clock
	Retry        infra.RetryConfig
	TickInterval time.Duration
	InboxSize    int
	SnapshotBuf  int

	// PriceChaseThreshold bounds how far a working order may drift from
	// its desired price before reconciliation replaces it.
	PriceChaseThreshold float64

	// Venue filter precision. Prices and quantities are rounded to this
	// many decimals before submission; zero disables rounding.
	PriceDecimals int
	QtyDecimals   int
}

// Engine is the per-account trading loop.
type Engine struct {
	opts  Options
	inbox chan event.Event
	recon *reconciler

	// Loop-owned state. Only the Run goroutine touches these.
	openOrders       map[string]domain.Order
	positionOpenedAt time.Time
	lastAdvice       string

	subMu  sync.Mutex
	subs   map[int]chan domain.EngineSnapshot
	nextID int
}

// New creates an engine. Run starts it.
func New(opts Options) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 500 * time.Millisecond
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 1024
	}
	if opts.SnapshotBuf <= 0 {
		opts.SnapshotBuf = 8
	}

	inbox := make(chan event.Event, opts.InboxSize)
	return &Engine{
		opts:  opts,
		inbox: inbox,
		recon: newReconciler(opts.Account, opts.Symbol, opts.Adapter, opts.Retry,
			opts.Clock, inbox, opts.PriceChaseThreshold),
		openOrders: make(map[string]domain.Order),
		subs:       make(map[int]chan domain.EngineSnapshot),
	}
}

// Subscribe registers a snapshot observer. The returned cancel must be
// called to release the subscription; it is safe to call more than once.
func (e *Engine) Subscribe() (<-chan domain.EngineSnapshot, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := e.nextID
	e.nextID++
	ch := make(chan domain.EngineSnapshot, e.opts.SnapshotBuf)
	e.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subs, id)
			e.subMu.Unlock()
		})
	}
	return ch, cancel
}

// Run executes the loop until ctx is cancelled. It returns only on
// cancellation or a fatal startup failure.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.warmup(ctx); err != nil {
		return fmt.Errorf("engine %s warmup: %w", e.opts.Account, err)
	}
	if err := e.opts.Adapter.Stream(ctx, e.opts.Symbol, e.inbox); err != nil {
		return fmt.Errorf("engine %s stream: %w", e.opts.Account, err)
	}

	slog.Info("engine started",
		slog.String("account", e.opts.Account),
		slog.String("symbol", e.opts.Symbol),
		slog.String("strategy", e.opts.Strategy.Name()))

	tick := e.opts.Clock.After(e.opts.TickInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped", slog.String("account", e.opts.Account))
			return nil
		case ev := <-e.inbox:
			e.onEvent(ctx, ev)
		case at := <-tick:
			e.apply(event.Tick{Base: event.Base{At: at}})
			e.step(ctx)
			tick = e.opts.Clock.After(e.opts.TickInterval)
		}
	}
}

// warmup seeds market state, position, and open orders from snapshots so
// the first tick decides on real data.
func (e *Engine) warmup(ctx context.Context) error {
	o := &e.opts

	closes, err := infra.Call(ctx, o.Clock, o.Retry, "warmup_klines",
		func(ctx context.Context) ([]float64, error) {
			return o.Adapter.FetchKlineCloses(ctx, o.Symbol, "1m", 50)
		})
	if err != nil {
		return err
	}
	for _, c := range closes {
		o.Tracker.ApplyKline(c)
	}

	book, err := infra.Call(ctx, o.Clock, o.Retry, "warmup_book",
		func(ctx context.Context) (domain.Book, error) {
			return o.Adapter.FetchBook(ctx, o.Symbol, 20)
		})
	if err != nil {
		return err
	}
	o.Tracker.ApplyDepth(book.Bids, book.Asks)

	pos, err := infra.Call(ctx, o.Clock, o.Retry, "warmup_position",
		func(ctx context.Context) (domain.Position, error) {
			return o.Adapter.FetchPosition(ctx, o.Symbol)
		})
	if err != nil {
		return err
	}
	e.setPosition(pos)

	orders, err := infra.Call(ctx, o.Clock, o.Retry, "warmup_orders",
		func(ctx context.Context) ([]domain.Order, error) {
			return o.Adapter.FetchOpenOrders(ctx, o.Symbol)
		})
	if err != nil {
		return err
	}
	for _, ord := range orders {
		if ord.IsOpen() {
			e.openOrders[ord.ClientOrderID] = ord
		}
	}
	return nil
}

// onEvent folds one event in and, for authoritative account events, re-runs
// the decision cycle immediately so stops and quick-closes do not wait out
// the remainder of a tick. Market data is high frequency and stays
// tick-paced; so do command completions, which keeps a failing order from
// being re-dispatched in a tight loop.
func (e *Engine) onEvent(ctx context.Context, ev event.Event) {
	e.apply(ev)
	switch ev.(type) {
	case event.OrderUpdate, event.PositionUpdate, event.Fill:
		e.step(ctx)
	}
}

// apply folds one event into loop state. No decisions are made here.
func (e *Engine) apply(ev event.Event) {
	switch v := ev.(type) {
	case event.Depth:
		e.opts.Tracker.ApplyDepth(v.Bids, v.Asks)
	case event.Kline:
		e.opts.Tracker.ApplyKline(v.Close)
	case event.Ticker:
		e.opts.Tracker.ApplyTicker(v.Last)
	case event.OrderUpdate:
		e.applyOrder(v.Order)
	case event.PositionUpdate:
		e.setPosition(v.Position)
		e.recon.clearMarketHold()
	case event.Fill:
		e.applyFill(v.Fill)
	case event.CommandResult:
		e.recon.onCommandResult(v)
	case event.Tick:
		// Decisions happen in step after the tick is folded in.
	}
}

func (e *Engine) applyOrder(o domain.Order) {
	if o.IsOpen() {
		e.openOrders[o.ClientOrderID] = o
		return
	}
	delete(e.openOrders, o.ClientOrderID)
}

// setPosition replaces the position wholesale and drives the close
// strategy's lifecycle on flat transitions.
func (e *Engine) setPosition(p domain.Position) {
	prev := e.opts.Ledger.Position()
	e.opts.Ledger.SetPosition(p)

	switch {
	case prev.IsFlat() && !p.IsFlat():
		e.positionOpenedAt = e.opts.Clock.Now()
		e.opts.Closer.Reset()
		e.opts.Closer.Start()
		slog.Info("position opened",
			slog.String("account", e.opts.Account),
			slog.Float64("amount", p.PositionAmt),
			slog.Float64("entry", p.EntryPrice))
	case !prev.IsFlat() && p.IsFlat():
		e.positionOpenedAt = time.Time{}
		e.opts.Closer.MarkClosed()
		e.opts.Closer.Reset()
		slog.Info("position closed",
			slog.String("account", e.opts.Account),
			slog.Float64("realized_pnl", e.opts.Ledger.RealizedPnL()))
	}
}

// applyFill records the fill and feeds the realized outcome to the risk and
// throttle state machines. The fill arrives before the account event that
// replaces the position, so realization sees the pre-fill entry price.
func (e *Engine) applyFill(f domain.Fill) {
	rec, pnl := e.opts.Ledger.ApplyFill(f)
	e.opts.Throttle.RecordTrade(rec.Notional)
	e.recon.clearMarketHold()

	reducing := f.ReduceOnly || pnl != 0
	if reducing {
		e.opts.Risk.RecordTrade(pnl)
		result := "win"
		if pnl < 0 {
			result = "loss"
		}
		metrics.TradesRealized.WithLabelValues(e.opts.Account, result).Inc()
		metrics.RealizedPnL.WithLabelValues(e.opts.Account).Set(e.opts.Ledger.RealizedPnL())
	}

	slog.Info("fill",
		slog.String("account", e.opts.Account),
		slog.String("side", string(f.Side)),
		slog.Float64("price", f.Price),
		slog.Float64("qty", f.Qty),
		slog.Bool("maker", f.IsMaker),
		slog.Float64("realized_pnl", pnl))
}

// step runs one decision cycle: read the market view, compute the desired
// order set, converge the venue toward it, publish a snapshot.
func (e *Engine) step(ctx context.Context) {
	now := e.opts.Clock.Now()
	view := e.opts.Tracker.View()
	pos := e.opts.Ledger.Position()

	mark := view.LastPrice
	if mark == 0 && view.BestBid > 0 && view.BestAsk > 0 {
		mark = (view.BestBid + view.BestAsk) / 2
	}

	var holdTime time.Duration
	if !pos.IsFlat() && !e.positionOpenedAt.IsZero() {
		holdTime = now.Sub(e.positionOpenedAt)
	}

	in := strategy.Input{
		Time:          now,
		Market:        view,
		Position:      pos,
		HoldTime:      holdTime,
		UnrealizedPnL: pos.UnrealizedPnL(mark),
	}

	desired := e.validate(e.opts.Strategy.Decide(in))
	e.lastAdvice = advice(pos, desired)
	e.recon.reconcile(ctx, desired, e.openOrders)

	metrics.EngineTicks.WithLabelValues(e.opts.Account).Inc()
	e.publish(now, view, pos, in.UnrealizedPnL)
}

// validate rounds prices and quantities to venue precision and drops any
// desired order left with a non-finite or non-positive value. Malformed
// orders are never submitted; the tick is skipped for that slot and logged
// at error level.
func (e *Engine) validate(desired []domain.DesiredOrder) []domain.DesiredOrder {
	out := desired[:0]
	for _, d := range desired {
		if e.opts.QtyDecimals > 0 {
			d.Amount = safe.Round(d.Amount, e.opts.QtyDecimals)
		}
		if e.opts.PriceDecimals > 0 && d.Type != domain.TypeMarket {
			d.Price = safe.Round(d.Price, e.opts.PriceDecimals)
		}
		if !safe.ValidQty(d.Amount) {
			slog.Error("dropping order with invalid quantity",
				slog.String("account", e.opts.Account),
				slog.Float64("amount", d.Amount))
			continue
		}
		if d.Type != domain.TypeMarket && !safe.ValidPrice(d.Price) {
			slog.Error("dropping order with invalid price",
				slog.String("account", e.opts.Account),
				slog.Float64("price", d.Price))
			continue
		}
		out = append(out, d)
	}
	return out
}

func (e *Engine) publish(now time.Time, view market.View, pos domain.Position, upnl float64) {
	open := make([]domain.Order, 0, len(e.openOrders))
	for _, o := range e.openOrders {
		open = append(open, o)
	}
	stats := e.opts.Ledger.Stats()

	snap := domain.EngineSnapshot{
		Account:       e.opts.Account,
		Symbol:        e.opts.Symbol,
		Time:          now,
		Position:      pos,
		OpenOrders:    open,
		Risk:          e.opts.Risk.State(),
		LastPrice:     view.LastPrice,
		BestBid:       view.BestBid,
		BestAsk:       view.BestAsk,
		Spread:        view.Spread,
		BuyDepth10:    view.BuyDepth10,
		SellDepth10:   view.SellDepth10,
		Imbalance:     view.Imbalance,
		SMA:           view.SMA,
		Trend:         view.Trend,
		UnrealizedPnL: upnl,
		RealizedPnL:   stats.RealizedPnL,
		TradeCount:    stats.TradeCount,
		WindowVolume:  e.opts.Throttle.WindowVolume(),
		CloseElapsed:  e.opts.Closer.Elapsed(),
		Advice:        e.lastAdvice,
	}

	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		// Copy-on-publish; a slow consumer misses ticks, never sees a
		// partial snapshot.
		select {
		case ch <- snap:
		default:
		}
	}
}

func advice(pos domain.Position, desired []domain.DesiredOrder) string {
	if len(desired) == 0 {
		if pos.IsFlat() {
			return "idle"
		}
		return "hold"
	}
	for _, d := range desired {
		if d.Type == domain.TypeMarket && d.ReduceOnly {
			return "force close"
		}
	}
	if pos.IsFlat() {
		if len(desired) == 2 {
			return "quote both sides"
		}
		return fmt.Sprintf("open %s", desired[0].Side)
	}
	return fmt.Sprintf("manage %s exposure", pos.CloseSide().Opposite())
}
