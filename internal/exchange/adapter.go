// Package exchange defines the capability interface the engine depends on.
// The core never sees wire formats, signing, or transport details; adapters
// own those.
package exchange

import (
	"context"
	"errors"

	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/internal/event"
)

// ErrOrderGone marks a benign rejection: the order a cancel targeted is
// already filled, cancelled, or unknown. Reconciliation treats it as
// success, never as a failure to retry.
var ErrOrderGone = errors.New("order already gone")

// PlaceOrderRequest is the venue-neutral order submission.
type PlaceOrderRequest struct {
	Symbol        string
	Side          domain.Side
	Type          domain.OrderType
	Price         float64 // limit/stop price; ignored for MARKET
	Quantity      float64
	ReduceOnly    bool
	ClientOrderID string
}

// Adapter is the full capability set the engine consumes.
type Adapter interface {
	Name() string

	// Snapshot fetches for warmup and tick-level repair.
	FetchBook(ctx context.Context, symbol string, limit int) (domain.Book, error)
	FetchKlineCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error)
	FetchPosition(ctx context.Context, symbol string) (domain.Position, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error)

	// Order actions. Both are idempotent at the client-order-id level.
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.Order, error)
	CancelOrder(ctx context.Context, symbol, clientOrderID string) error

	// Stream starts the market-data and account/order event feeds, pushing
	// events into inbox until ctx is cancelled.
	Stream(ctx context.Context, symbol string, inbox chan<- event.Event) error

	Close() error
}
