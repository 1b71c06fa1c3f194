package binance

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/July-Jio/ritmex-bot/internal/domain"
)

// toFloat parses a venue decimal string without intermediate float parsing
// artifacts. Empty and malformed strings yield 0; validation happens at the
// domain boundary.
func toFloat(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// apiError is the venue's error envelope.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Venue error codes treated as benign during reconciliation.
const (
	codeUnknownOrder = -2011 // cancel on filled/cancelled order
	codeNoSuchOrder  = -2013
)

// depthResponse is GET /fapi/v1/depth.
type depthResponse struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

func (r depthResponse) toBook() domain.Book {
	return domain.Book{Bids: toLevels(r.Bids), Asks: toLevels(r.Asks)}
}

func toLevels(raw [][2]string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		out = append(out, domain.PriceLevel{Price: toFloat(lvl[0]), Qty: toFloat(lvl[1])})
	}
	return out
}

// orderResponse is the order object shape shared by POST /fapi/v1/order and
// GET /fapi/v1/openOrders.
type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Price         string `json:"price"`
	StopPrice     string `json:"stopPrice"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
	ReduceOnly    bool   `json:"reduceOnly"`
	UpdateTime    int64  `json:"updateTime"`
}

func (r orderResponse) toOrder() domain.Order {
	price := toFloat(r.Price)
	if price == 0 {
		price = toFloat(r.StopPrice)
	}
	return domain.Order{
		OrderID:       r.OrderID,
		ClientOrderID: r.ClientOrderID,
		Symbol:        r.Symbol,
		Side:          domain.Side(r.Side),
		Type:          domain.OrderType(r.Type),
		Price:         price,
		OrigQty:       toFloat(r.OrigQty),
		ExecutedQty:   toFloat(r.ExecutedQty),
		Status:        domain.OrderStatus(r.Status),
		ReduceOnly:    r.ReduceOnly,
		UpdateTime:    r.UpdateTime,
	}
}

// positionResponse is one entry of GET /fapi/v2/positionRisk.
type positionResponse struct {
	Symbol      string `json:"symbol"`
	PositionAmt string `json:"positionAmt"`
	EntryPrice  string `json:"entryPrice"`
}

// listenKeyResponse is POST /fapi/v1/listenKey.
type listenKeyResponse struct {
	ListenKey string `json:"listenKey"`
}

// combinedStreamMsg wraps every combined-stream payload.
type combinedStreamMsg struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// depthStreamMsg is a partial book depth stream payload.
type depthStreamMsg struct {
	Bids [][2]string `json:"b"`
	Asks [][2]string `json:"a"`
}

// klineStreamMsg is a kline stream payload.
type klineStreamMsg struct {
	Kline struct {
		Close  string `json:"c"`
		Closed bool   `json:"x"`
	} `json:"k"`
}

// bookTickerStreamMsg is a bookTicker stream payload.
type bookTickerStreamMsg struct {
	BidPrice string `json:"b"`
	AskPrice string `json:"a"`
}

// userDataMsg is the envelope of user-data stream events.
type userDataMsg struct {
	EventType string `json:"e"`

	// ORDER_TRADE_UPDATE
	Order struct {
		Symbol        string `json:"s"`
		ClientOrderID string `json:"c"`
		Side          string `json:"S"`
		Type          string `json:"o"`
		Price         string `json:"p"`
		StopPrice     string `json:"sp"`
		OrigQty       string `json:"q"`
		ExecType      string `json:"x"`
		Status        string `json:"X"`
		OrderID       int64  `json:"i"`
		FilledQty     string `json:"z"`
		LastFillPrice string `json:"L"`
		LastFillQty   string `json:"l"`
		Commission    string `json:"n"`
		CommissionAst string `json:"N"`
		TradeTime     int64  `json:"T"`
		IsMaker       bool   `json:"m"`
		ReduceOnly    bool   `json:"R"`
	} `json:"o"`

	// ACCOUNT_UPDATE
	Account struct {
		Positions []struct {
			Symbol      string `json:"s"`
			PositionAmt string `json:"pa"`
			EntryPrice  string `json:"ep"`
		} `json:"P"`
	} `json:"a"`
}
