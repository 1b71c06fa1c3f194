package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/internal/event"
	"github.com/July-Jio/ritmex-bot/internal/infra"
)

// Stream starts the market-data and user-data feeds for symbol. Events are
// pushed into inbox; a full inbox drops market data (the next update
// supersedes it) but never order or fill events.
func (c *Client) Stream(ctx context.Context, symbol string, inbox chan<- event.Event) error {
	market := &marketStream{
		wsURL:  c.cfg.WSURL,
		symbol: strings.ToLower(symbol),
		inbox:  inbox,
		clock:  c.clock,
	}
	mw := infra.NewWSWorker(market, infra.DefaultRetryConfig(), c.clock)
	mw.Start(ctx)
	c.streams = append(c.streams, mw)

	if c.cfg.MarketOnly {
		return nil
	}

	listenKey, err := c.createListenKey(ctx)
	if err != nil {
		mw.Stop()
		return fmt.Errorf("create listen key: %w", err)
	}

	user := &userStream{
		wsURL:     c.cfg.WSURL,
		listenKey: listenKey,
		symbol:    symbol,
		inbox:     inbox,
		clock:     c.clock,
	}
	uw := infra.NewWSWorker(user, infra.DefaultRetryConfig(), c.clock)
	uw.Start(ctx)
	c.streams = append(c.streams, uw)

	go c.keepAliveLoop(ctx)
	return nil
}

// keepAliveLoop refreshes the listen key; the venue expires idle sessions
// after 60 minutes.
func (c *Client) keepAliveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(30 * time.Minute):
			if err := c.keepAliveListenKey(ctx); err != nil {
				slog.Warn("listen key keepalive failed", slog.Any("error", err))
			}
		}
	}
}

// marketStream handles the combined depth/kline/bookTicker stream.
type marketStream struct {
	wsURL  string
	symbol string
	inbox  chan<- event.Event
	clock  infra.Clock
}

func (m *marketStream) ID() string { return "binance-market-" + m.symbol }

func (m *marketStream) URL() string {
	streams := strings.Join([]string{
		m.symbol + "@depth10@100ms",
		m.symbol + "@kline_1m",
		m.symbol + "@bookTicker",
	}, "/")
	return m.wsURL + "/stream?streams=" + streams
}

func (m *marketStream) OnConnect(ctx context.Context, conn *websocket.Conn) error { return nil }

func (m *marketStream) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(5*time.Second))
}

func (m *marketStream) OnMessage(ctx context.Context, msg []byte) {
	var wrapper combinedStreamMsg
	if err := json.Unmarshal(msg, &wrapper); err != nil {
		return
	}

	now := m.clock.Now()
	switch {
	case strings.Contains(wrapper.Stream, "@depth"):
		var d depthStreamMsg
		if err := json.Unmarshal(wrapper.Data, &d); err != nil {
			return
		}
		m.push(event.Depth{
			Base: event.Base{At: now},
			Bids: toLevels(d.Bids),
			Asks: toLevels(d.Asks),
		})

	case strings.Contains(wrapper.Stream, "@kline"):
		var k klineStreamMsg
		if err := json.Unmarshal(wrapper.Data, &k); err != nil {
			return
		}
		if !k.Kline.Closed {
			return
		}
		m.push(event.Kline{Base: event.Base{At: now}, Close: toFloat(k.Kline.Close)})

	case strings.Contains(wrapper.Stream, "@bookTicker"):
		var bt bookTickerStreamMsg
		if err := json.Unmarshal(wrapper.Data, &bt); err != nil {
			return
		}
		mid := (toFloat(bt.BidPrice) + toFloat(bt.AskPrice)) / 2
		m.push(event.Ticker{Base: event.Base{At: now}, Last: mid})
	}
}

// push drops market data when the inbox is full; a newer update is always
// on the way.
func (m *marketStream) push(ev event.Event) {
	select {
	case m.inbox <- ev:
	default:
	}
}

// userStream handles ORDER_TRADE_UPDATE and ACCOUNT_UPDATE events.
type userStream struct {
	wsURL     string
	listenKey string
	symbol    string
	inbox     chan<- event.Event
	clock     infra.Clock
}

func (u *userStream) ID() string  { return "binance-user" }
func (u *userStream) URL() string { return u.wsURL + "/ws/" + u.listenKey }

func (u *userStream) OnConnect(ctx context.Context, conn *websocket.Conn) error { return nil }

func (u *userStream) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(5*time.Second))
}

func (u *userStream) OnMessage(ctx context.Context, msg []byte) {
	var ev userDataMsg
	if err := json.Unmarshal(msg, &ev); err != nil {
		return
	}
	now := u.clock.Now()

	switch ev.EventType {
	case "ORDER_TRADE_UPDATE":
		o := ev.Order
		if o.Symbol != u.symbol {
			return
		}
		price := toFloat(o.Price)
		if price == 0 {
			price = toFloat(o.StopPrice)
		}
		u.send(event.OrderUpdate{
			Base: event.Base{At: now},
			Order: domain.Order{
				OrderID:       o.OrderID,
				ClientOrderID: o.ClientOrderID,
				Symbol:        o.Symbol,
				Side:          domain.Side(o.Side),
				Type:          domain.OrderType(o.Type),
				Price:         price,
				OrigQty:       toFloat(o.OrigQty),
				ExecutedQty:   toFloat(o.FilledQty),
				Status:        domain.OrderStatus(o.Status),
				ReduceOnly:    o.ReduceOnly,
				UpdateTime:    o.TradeTime,
			},
		})

		if o.ExecType == "TRADE" {
			u.send(event.Fill{
				Base: event.Base{At: now},
				Fill: domain.Fill{
					OrderID:       o.OrderID,
					ClientOrderID: o.ClientOrderID,
					Symbol:        o.Symbol,
					Side:          domain.Side(o.Side),
					OrderType:     domain.OrderType(o.Type),
					Price:         toFloat(o.LastFillPrice),
					Qty:           toFloat(o.LastFillQty),
					IsMaker:       o.IsMaker,
					ReduceOnly:    o.ReduceOnly,
					Commission:    toFloat(o.Commission),
					CommissionSet: o.Commission != "",
					FeeAsset:      o.CommissionAst,
					Time:          time.UnixMilli(o.TradeTime),
				},
			})
		}

	case "ACCOUNT_UPDATE":
		for _, p := range ev.Account.Positions {
			if p.Symbol != u.symbol {
				continue
			}
			u.send(event.PositionUpdate{
				Base: event.Base{At: now},
				Position: domain.Position{
					Symbol:      p.Symbol,
					PositionAmt: toFloat(p.PositionAmt),
					EntryPrice:  toFloat(p.EntryPrice),
				},
			})
		}
	}
}

// send blocks rather than drop: order and account events are authoritative
// state the engine must not miss.
func (u *userStream) send(ev event.Event) {
	u.inbox <- ev
}
