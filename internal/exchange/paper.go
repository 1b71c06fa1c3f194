package exchange

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/internal/event"
	"github.com/July-Jio/ritmex-bot/internal/infra"
)

// Paper wraps a real adapter for market data and simulates the account
// side. Orders rest in memory and fill against the live book: a limit
// fills as maker when the opposite touch crosses it, a stop triggers and
// fills as taker, a market order fills immediately at the touch. Fills,
// order updates, and position updates flow into the engine inbox exactly
// like venue events.
type Paper struct {
	inner upstream
	clock infra.Clock

	mu       sync.Mutex
	symbol   string
	inbox    chan<- event.Event
	position domain.Position
	open     map[string]domain.Order // by client order ID
	nextID   int64
	bestBid  float64
	bestAsk  float64
}

// upstream is the slice of Adapter the paper layer delegates to.
type upstream interface {
	Name() string
	FetchBook(ctx context.Context, symbol string, limit int) (domain.Book, error)
	FetchKlineCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error)
	Stream(ctx context.Context, symbol string, inbox chan<- event.Event) error
	Close() error
}

// NewPaper wraps inner. The inner adapter must stream market data only.
func NewPaper(inner Adapter, clock infra.Clock) *Paper {
	return &Paper{
		inner: inner,
		clock: clock,
		open:  make(map[string]domain.Order),
	}
}

func (p *Paper) Name() string { return "paper:" + p.inner.Name() }

func (p *Paper) FetchBook(ctx context.Context, symbol string, limit int) (domain.Book, error) {
	return p.inner.FetchBook(ctx, symbol, limit)
}

func (p *Paper) FetchKlineCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	return p.inner.FetchKlineCloses(ctx, symbol, interval, limit)
}

func (p *Paper) FetchPosition(ctx context.Context, symbol string) (domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.position
	pos.Symbol = symbol
	return pos, nil
}

func (p *Paper) FetchOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	orders := make([]domain.Order, 0, len(p.open))
	for _, o := range p.open {
		orders = append(orders, o)
	}
	return orders, nil
}

// PlaceOrder accepts the order and matches it against the last seen book.
func (p *Paper) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Type == domain.TypeMarket && p.bestBid == 0 && p.bestAsk == 0 {
		return domain.Order{}, fmt.Errorf("paper: no book yet for market order")
	}

	p.nextID++
	order := domain.Order{
		OrderID:       p.nextID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		OrigQty:       req.Quantity,
		Status:        domain.StatusNew,
		ReduceOnly:    req.ReduceOnly,
		UpdateTime:    p.clock.Now().UnixMilli(),
	}
	p.open[order.ClientOrderID] = order
	p.emit(event.OrderUpdate{Base: event.Base{At: p.clock.Now()}, Order: order})

	p.match()
	if live, ok := p.open[order.ClientOrderID]; ok {
		return live, nil
	}
	order.Status = domain.StatusFilled
	order.ExecutedQty = order.OrigQty
	return order, nil
}

// CancelOrder removes a resting order. A cancel for an order already
// filled or cancelled reports ErrOrderGone, matching venue behavior.
func (p *Paper) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.open[clientOrderID]
	if !ok {
		return ErrOrderGone
	}
	delete(p.open, clientOrderID)
	order.Status = domain.StatusCanceled
	order.UpdateTime = p.clock.Now().UnixMilli()
	p.emit(event.OrderUpdate{Base: event.Base{At: p.clock.Now()}, Order: order})
	return nil
}

// Stream intercepts the inner market feed: every event is forwarded, and
// depth updates additionally drive the matching pass.
func (p *Paper) Stream(ctx context.Context, symbol string, inbox chan<- event.Event) error {
	p.mu.Lock()
	p.symbol = symbol
	p.inbox = inbox
	p.mu.Unlock()

	feed := make(chan event.Event, 256)
	if err := p.inner.Stream(ctx, symbol, feed); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-feed:
				if d, ok := ev.(event.Depth); ok {
					p.onDepth(d)
				}
				select {
				case inbox <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return nil
}

func (p *Paper) Close() error { return p.inner.Close() }

func (p *Paper) onDepth(d event.Depth) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(d.Bids) > 0 {
		p.bestBid = d.Bids[0].Price
	}
	if len(d.Asks) > 0 {
		p.bestAsk = d.Asks[0].Price
	}
	p.match()
}

// match fills every resting order the current touch crosses. Caller holds
// the lock.
func (p *Paper) match() {
	if p.bestBid == 0 || p.bestAsk == 0 {
		return
	}
	for id, o := range p.open {
		price, maker, fills := p.crossPrice(o)
		if !fills {
			continue
		}
		delete(p.open, id)
		p.fill(o, price, maker)
	}
}

// crossPrice returns the execution price for an order against the current
// touch, whether it executes as maker, and whether it executes at all.
func (p *Paper) crossPrice(o domain.Order) (price float64, maker, fills bool) {
	switch o.Type {
	case domain.TypeMarket:
		if o.Side == domain.SideBuy {
			return p.bestAsk, false, true
		}
		return p.bestBid, false, true

	case domain.TypeLimit:
		if o.Side == domain.SideBuy && p.bestAsk <= o.Price {
			return o.Price, true, true
		}
		if o.Side == domain.SideSell && p.bestBid >= o.Price {
			return o.Price, true, true
		}

	case domain.TypeStopMarket:
		if o.Side == domain.SideBuy && p.bestAsk >= o.Price {
			return p.bestAsk, false, true
		}
		if o.Side == domain.SideSell && p.bestBid <= o.Price {
			return p.bestBid, false, true
		}
	}
	return 0, false, false
}

// fill executes o completely at price and publishes the resulting order,
// fill, and position events. Caller holds the lock.
func (p *Paper) fill(o domain.Order, price float64, maker bool) {
	qty := o.OrigQty
	if o.ReduceOnly {
		held := math.Abs(p.position.PositionAmt)
		if qty > held {
			qty = held
		}
		if qty == 0 {
			o.Status = domain.StatusExpired
			o.UpdateTime = p.clock.Now().UnixMilli()
			p.emit(event.OrderUpdate{Base: event.Base{At: p.clock.Now()}, Order: o})
			return
		}
	}

	p.applyToPosition(o.Side, price, qty)
	now := p.clock.Now()

	o.Status = domain.StatusFilled
	o.ExecutedQty = qty
	o.UpdateTime = now.UnixMilli()
	p.emit(event.OrderUpdate{Base: event.Base{At: now}, Order: o})
	p.emit(event.Fill{
		Base: event.Base{At: now},
		Fill: domain.Fill{
			OrderID:       o.OrderID,
			ClientOrderID: o.ClientOrderID,
			Symbol:        o.Symbol,
			Side:          o.Side,
			OrderType:     o.Type,
			Price:         price,
			Qty:           qty,
			IsMaker:       maker,
			ReduceOnly:    o.ReduceOnly,
			Time:          now,
		},
	})
	pos := p.position
	pos.Symbol = p.symbol
	p.emit(event.PositionUpdate{Base: event.Base{At: now}, Position: pos})
}

// applyToPosition folds one execution into the simulated position with
// weighted-average entry on adds and a fresh entry on a flip.
func (p *Paper) applyToPosition(side domain.Side, price, qty float64) {
	signed := qty
	if side == domain.SideSell {
		signed = -qty
	}
	cur := p.position.PositionAmt
	next := cur + signed

	switch {
	case cur == 0 || (cur > 0) == (signed > 0):
		notional := p.position.EntryPrice*math.Abs(cur) + price*qty
		p.position.EntryPrice = notional / math.Abs(next)
	case next == 0:
		p.position.EntryPrice = 0
	case (next > 0) != (cur > 0):
		p.position.EntryPrice = price
	}
	p.position.PositionAmt = next
}

// emit blocks rather than drop: simulated order and account events are as
// authoritative as venue ones.
func (p *Paper) emit(ev event.Event) {
	if p.inbox == nil {
		return
	}
	p.inbox <- ev
}
