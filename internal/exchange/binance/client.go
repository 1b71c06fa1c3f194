// Package binance implements the exchange adapter against Binance USDⓈ-M
// futures. REST calls go through a per-class rate limiter and a circuit
// breaker; callers add the retry wrapper.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/internal/exchange"
	"github.com/July-Jio/ritmex-bot/internal/infra"
)

// Config carries the adapter endpoints and credentials.
type Config struct {
	RestURL    string
	WSURL      string
	APIKey     string
	APISecret  string
	RecvWindow time.Duration

	// MarketOnly skips the user-data stream. Paper trading uses real
	// market data but simulates its own order and account events.
	MarketOnly bool
}

// Client is the REST side of the adapter. One Client serves one account.
type Client struct {
	cfg    Config
	signer *Signer
	httpc  *http.Client
	clock  infra.Clock

	breaker       *infra.CircuitBreaker
	marketLimiter *infra.RateLimiter
	orderLimiter  *infra.RateLimiter
	acctLimiter   *infra.RateLimiter

	streams []*infra.WSWorker
}

// NewClient creates an adapter client.
func NewClient(cfg Config, clock infra.Clock) *Client {
	return &Client{
		cfg:    cfg,
		signer: NewSigner(cfg.APIKey, cfg.APISecret),
		httpc:  &http.Client{Timeout: 15 * time.Second},
		clock:  clock,
		breaker: infra.NewCircuitBreaker("binance", clock, 5, 2, 30*time.Second),
		// Conservative limits to stay clear of venue bans.
		marketLimiter: infra.NewRateLimiter(clock, 10, 20),
		orderLimiter:  infra.NewRateLimiter(clock, 5, 10),
		acctLimiter:   infra.NewRateLimiter(clock, 5, 10),
	}
}

func (c *Client) Name() string { return "binance-futures" }

// FetchBook returns a depth snapshot.
func (c *Client) FetchBook(ctx context.Context, symbol string, limit int) (domain.Book, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("limit", strconv.Itoa(limit))

	var resp depthResponse
	if err := c.do(ctx, c.marketLimiter, http.MethodGet, "/fapi/v1/depth", q, false, &resp); err != nil {
		return domain.Book{}, err
	}
	return resp.toBook(), nil
}

// FetchKlineCloses returns the close prices of the most recent candles,
// oldest first.
func (c *Client) FetchKlineCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	// Klines come back as positional arrays; index 4 is the close.
	var raw [][]json.RawMessage
	if err := c.do(ctx, c.marketLimiter, http.MethodGet, "/fapi/v1/klines", q, false, &raw); err != nil {
		return nil, err
	}

	closes := make([]float64, 0, len(raw))
	for _, k := range raw {
		if len(k) < 5 {
			continue
		}
		var s string
		if err := json.Unmarshal(k[4], &s); err != nil {
			continue
		}
		closes = append(closes, toFloat(s))
	}
	return closes, nil
}

// FetchPosition returns the account position for symbol, flat if none.
func (c *Client) FetchPosition(ctx context.Context, symbol string) (domain.Position, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	var resp []positionResponse
	if err := c.do(ctx, c.acctLimiter, http.MethodGet, "/fapi/v2/positionRisk", q, true, &resp); err != nil {
		return domain.Position{}, err
	}
	for _, p := range resp {
		if p.Symbol == symbol {
			return domain.Position{
				Symbol:      p.Symbol,
				PositionAmt: toFloat(p.PositionAmt),
				EntryPrice:  toFloat(p.EntryPrice),
			}, nil
		}
	}
	return domain.Position{Symbol: symbol}, nil
}

// FetchOpenOrders returns the working orders for symbol.
func (c *Client) FetchOpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	var resp []orderResponse
	if err := c.do(ctx, c.acctLimiter, http.MethodGet, "/fapi/v1/openOrders", q, true, &resp); err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(resp))
	for _, o := range resp {
		orders = append(orders, o.toOrder())
	}
	return orders, nil
}

// PlaceOrder submits one order.
func (c *Client) PlaceOrder(ctx context.Context, req exchange.PlaceOrderRequest) (domain.Order, error) {
	q := url.Values{}
	q.Set("symbol", req.Symbol)
	q.Set("side", string(req.Side))
	q.Set("type", string(req.Type))
	q.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	q.Set("newClientOrderId", req.ClientOrderID)
	if req.ReduceOnly {
		q.Set("reduceOnly", "true")
	}
	switch req.Type {
	case domain.TypeLimit:
		q.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
		// Entry quotes must rest (post-only); reduce-only closes are
		// priced at or through the touch and must be free to take.
		if req.ReduceOnly {
			q.Set("timeInForce", "GTC")
		} else {
			q.Set("timeInForce", "GTX")
		}
	case domain.TypeStopMarket:
		q.Set("stopPrice", strconv.FormatFloat(req.Price, 'f', -1, 64))
	}

	var resp orderResponse
	if err := c.do(ctx, c.orderLimiter, http.MethodPost, "/fapi/v1/order", q, true, &resp); err != nil {
		return domain.Order{}, err
	}
	return resp.toOrder(), nil
}

// CancelOrder cancels by client order ID. A cancel that finds the order
// already filled or cancelled reports ErrOrderGone.
func (c *Client) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("origClientOrderId", clientOrderID)

	err := c.do(ctx, c.orderLimiter, http.MethodDelete, "/fapi/v1/order", q, true, nil)
	return err
}

// Close stops streams and wipes credentials.
func (c *Client) Close() error {
	for _, w := range c.streams {
		w.Stop()
	}
	c.signer.Wipe()
	return nil
}

// do performs one HTTP request. Venue errors surface as *infra.StatusError
// so the retry layer can classify transience; benign order-gone codes map
// to exchange.ErrOrderGone.
func (c *Client) do(ctx context.Context, limiter *infra.RateLimiter, method, path string, q url.Values, signed bool, out any) error {
	if !c.breaker.Allow() {
		return fmt.Errorf("binance: circuit open")
	}
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	if signed {
		q.Set("timestamp", strconv.FormatInt(c.clock.Now().UnixMilli(), 10))
		q.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow.Milliseconds(), 10))
		q.Set("signature", c.signer.Sign(q.Encode()))
	}

	reqURL := c.cfg.RestURL + path
	if enc := q.Encode(); enc != "" {
		reqURL += "?" + enc
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.signer.APIKey())
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil {
			if ae.Code == codeUnknownOrder || ae.Code == codeNoSuchOrder {
				// Not a venue failure; do not trip the breaker.
				c.breaker.RecordSuccess()
				return exchange.ErrOrderGone
			}
		}
		c.breaker.RecordFailure()
		return &infra.StatusError{Code: resp.StatusCode, Msg: string(body)}
	}

	c.breaker.RecordSuccess()
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// createListenKey opens a user-data stream session.
func (c *Client) createListenKey(ctx context.Context) (string, error) {
	if err := c.acctLimiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RestURL+"/fapi/v1/listenKey", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-MBX-APIKEY", c.signer.APIKey())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &infra.StatusError{Code: resp.StatusCode, Msg: string(body)}
	}

	var lk listenKeyResponse
	if err := json.Unmarshal(body, &lk); err != nil {
		return "", err
	}
	return lk.ListenKey, nil
}

// keepAliveListenKey extends the user-data stream session.
func (c *Client) keepAliveListenKey(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.cfg.RestURL+"/fapi/v1/listenKey", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", c.signer.APIKey())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &infra.StatusError{Code: resp.StatusCode, Msg: "listen key keepalive"}
	}
	return nil
}
