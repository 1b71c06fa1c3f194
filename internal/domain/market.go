package domain

// PriceLevel is one resting level of the order book.
type PriceLevel struct {
	Price float64
	Qty   float64
}

// Book is a depth snapshot, best price first on each side.
type Book struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

// Trend classifies recent price action against the close SMA.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// Imbalance classifies order-book pressure from cumulative resting volume.
type Imbalance string

const (
	ImbalanceBuyDominant  Imbalance = "buy_dominant"
	ImbalanceSellDominant Imbalance = "sell_dominant"
	ImbalanceBalanced     Imbalance = "balanced"
)
