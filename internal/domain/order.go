package domain

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is the execution style of an order.
type OrderType string

const (
	TypeLimit      OrderType = "LIMIT"
	TypeMarket     OrderType = "MARKET"
	TypeStopMarket OrderType = "STOP_MARKET"
)

// OrderStatus mirrors the venue-side lifecycle states.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// Order mirrors venue-side truth. The local copy is a cache and is always
// superseded by the next authoritative order event.
type Order struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	Price         float64
	OrigQty       float64
	ExecutedQty   float64
	Status        OrderStatus
	ReduceOnly    bool
	UpdateTime    int64 // unix milliseconds, venue clock
}

// IsOpen reports whether the order is still working on the book.
func (o *Order) IsOpen() bool {
	return o.Status == StatusNew || o.Status == StatusPartiallyFilled
}

// DesiredOrder is a strategy's intent for one working order. It is
// recomputed every tick and never persisted.
type DesiredOrder struct {
	Side       Side
	Type       OrderType
	Price      float64 // ignored for MARKET
	Amount     float64
	ReduceOnly bool
}

// OrderRole identifies the slot an order occupies in the desired set.
// Reconciliation matches open orders to desired orders by role, never by
// raw price, so a quote refresh is a cancel+replace.
type OrderRole struct {
	Side       Side
	Type       OrderType
	ReduceOnly bool
}

// Role returns the reconciliation key for a desired order.
func (d DesiredOrder) Role() OrderRole {
	return OrderRole{Side: d.Side, Type: d.Type, ReduceOnly: d.ReduceOnly}
}

// RoleOf returns the reconciliation key for an open order.
func RoleOf(o Order) OrderRole {
	return OrderRole{Side: o.Side, Type: o.Type, ReduceOnly: o.ReduceOnly}
}
