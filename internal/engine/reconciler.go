package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/internal/event"
	"github.com/July-Jio/ritmex-bot/internal/exchange"
	"github.com/July-Jio/ritmex-bot/internal/infra"
	"github.com/July-Jio/ritmex-bot/internal/metrics"
)

// marketHoldWindow caps how long a dispatched market order suppresses
// re-entry for its role when the confirming fill event is slow to arrive.
const marketHoldWindow = 5 * time.Second

// reconciler converges the venue's open orders toward the desired set.
// Matching is keyed by order role (side, type, reduceOnly), never by raw
// price, so a quote refresh is a cancel this tick and a place the next.
// Commands are dispatched asynchronously; their completions fold back into
// the engine inbox as CommandResult events, and any divergence left behind
// is repaired on a later tick.
type reconciler struct {
	account string
	symbol  string
	adapter exchange.Adapter
	retry   infra.RetryConfig
	clock   infra.Clock
	inbox   chan<- event.Event

	// Price drift beyond this cancels a working order for re-placement.
	priceChaseThreshold float64

	pendingPlace  map[domain.OrderRole]string // role -> client order ID
	pendingCancel map[string]bool             // client order ID
	marketHold    map[domain.OrderRole]time.Time
}

func newReconciler(account, symbol string, adapter exchange.Adapter, retry infra.RetryConfig, clock infra.Clock, inbox chan<- event.Event, priceChaseThreshold float64) *reconciler {
	return &reconciler{
		account:             account,
		symbol:              symbol,
		adapter:             adapter,
		retry:               retry,
		clock:               clock,
		inbox:               inbox,
		priceChaseThreshold: priceChaseThreshold,
		pendingPlace:        make(map[domain.OrderRole]string),
		pendingCancel:       make(map[string]bool),
		marketHold:          make(map[domain.OrderRole]time.Time),
	}
}

// reconcile runs one convergence pass. It never blocks on order outcomes.
func (r *reconciler) reconcile(ctx context.Context, desired []domain.DesiredOrder, open map[string]domain.Order) {
	wanted := make(map[domain.OrderRole]domain.DesiredOrder, len(desired))
	for _, d := range desired {
		wanted[d.Role()] = d
	}

	// Cancel pass: open orders whose role vanished from the desired set or
	// whose price drifted past the chase threshold.
	live := make(map[domain.OrderRole]bool, len(open))
	for id, o := range open {
		if r.pendingCancel[id] {
			continue
		}
		role := domain.RoleOf(o)
		d, ok := wanted[role]
		if ok && !r.drifted(o.Price, d.Price) {
			live[role] = true
			continue
		}
		r.dispatchCancel(ctx, id, ok)
	}

	// Place pass: desired roles with no live order and nothing in flight.
	// A role cancelled this tick is placed on the next, keeping a single
	// working order per role.
	now := r.clock.Now()
	for role, d := range wanted {
		if live[role] {
			continue
		}
		if _, inflight := r.pendingPlace[role]; inflight {
			continue
		}
		if d.Type == domain.TypeMarket {
			if held, ok := r.marketHold[role]; ok && now.Sub(held) < marketHoldWindow {
				continue
			}
		}
		r.dispatchPlace(ctx, d)
	}
}

// drifted reports whether a working limit price has moved beyond the chase
// threshold from the desired price. Market orders never drift.
func (r *reconciler) drifted(openPrice, desiredPrice float64) bool {
	if desiredPrice == 0 || r.priceChaseThreshold <= 0 {
		return false
	}
	return math.Abs(openPrice-desiredPrice) > r.priceChaseThreshold
}

func (r *reconciler) dispatchPlace(ctx context.Context, d domain.DesiredOrder) {
	role := d.Role()
	clientID := "rb-" + uuid.NewString()
	r.pendingPlace[role] = clientID
	if d.Type == domain.TypeMarket {
		r.marketHold[role] = r.clock.Now()
	}

	req := exchange.PlaceOrderRequest{
		Symbol:        r.symbol,
		Side:          d.Side,
		Type:          d.Type,
		Price:         d.Price,
		Quantity:      d.Amount,
		ReduceOnly:    d.ReduceOnly,
		ClientOrderID: clientID,
	}

	metrics.OrdersPlaced.WithLabelValues(r.account, string(d.Side), string(d.Type)).Inc()
	go func() {
		// Venue deduplication on the client order ID makes the retried
		// place idempotent.
		order, err := infra.Call(ctx, r.clock, r.retry, "place_order",
			func(ctx context.Context) (domain.Order, error) {
				return r.adapter.PlaceOrder(ctx, req)
			})
		if err == nil && order.IsOpen() {
			r.send(ctx, event.OrderUpdate{Base: event.Base{At: r.clock.Now()}, Order: order})
		}
		r.send(ctx, event.CommandResult{
			Base:          event.Base{At: r.clock.Now()},
			Action:        "place",
			ClientOrderID: clientID,
			Err:           err,
		})
	}()
}

func (r *reconciler) dispatchCancel(ctx context.Context, clientID string, replacing bool) {
	r.pendingCancel[clientID] = true
	metrics.OrdersCancelled.WithLabelValues(r.account).Inc()

	if replacing {
		slog.Debug("chasing price, cancel for replace", slog.String("client_id", clientID))
	}
	go func() {
		// A cancel that finds the order already filled or cancelled is
		// reconciliation input, not a failure to retry.
		err := infra.CallErr(ctx, r.clock, r.retry, "cancel_order",
			func(ctx context.Context) error {
				err := r.adapter.CancelOrder(ctx, r.symbol, clientID)
				if errors.Is(err, exchange.ErrOrderGone) {
					slog.Debug("cancel target already gone", slog.String("client_id", clientID))
					return nil
				}
				return err
			})
		r.send(ctx, event.CommandResult{
			Base:          event.Base{At: r.clock.Now()},
			Action:        "cancel",
			ClientOrderID: clientID,
			Err:           err,
		})
	}()
}

// onCommandResult clears in-flight bookkeeping for a completed command.
func (r *reconciler) onCommandResult(res event.CommandResult) {
	switch res.Action {
	case "place":
		for role, id := range r.pendingPlace {
			if id == res.ClientOrderID {
				delete(r.pendingPlace, role)
				break
			}
		}
	case "cancel":
		delete(r.pendingCancel, res.ClientOrderID)
	}

	if res.Err != nil {
		metrics.OrderErrors.WithLabelValues(r.account, res.Action).Inc()
		slog.Warn("order command failed",
			slog.String("action", res.Action),
			slog.String("client_id", res.ClientOrderID),
			slog.Any("error", res.Err))
	}
}

// clearMarketHold releases held market roles once a fill or account event
// confirms the venue acted.
func (r *reconciler) clearMarketHold() {
	for role := range r.marketHold {
		delete(r.marketHold, role)
	}
}

func (r *reconciler) send(ctx context.Context, ev event.Event) {
	select {
	case r.inbox <- ev:
	case <-ctx.Done():
	}
}
