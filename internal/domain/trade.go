package domain

import "time"

// TradeRecord is one realized fill. Records are immutable once appended and
// the ledger keeps them ordered by timestamp.
type TradeRecord struct {
	ID        string
	Timestamp time.Time
	Symbol    string
	Side      Side
	Price     float64
	Amount    float64
	Notional  float64
	IsMaker   bool
	OrderType OrderType
	Fee       float64
	FeeRate   float64
	FeeAsset  string
	OrderID   int64
}

// Fill is the boundary representation of an execution report before the
// ledger turns it into a TradeRecord.
type Fill struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          Side
	OrderType     OrderType
	Price         float64
	Qty           float64
	IsMaker       bool
	ReduceOnly    bool
	Commission    float64 // 0 when the venue did not report one
	CommissionSet bool
	FeeAsset      string
	Time          time.Time
}
