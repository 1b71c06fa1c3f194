package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/internal/exchange"
	"github.com/July-Jio/ritmex-bot/internal/infra"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		RestURL:   srv.URL,
		APIKey:    "key",
		APISecret: "secret",
	}, infra.RealClock{})
}

func TestPlaceOrderTimeInForce(t *testing.T) {
	cases := []struct {
		name string
		req  exchange.PlaceOrderRequest
		want string
	}{
		{
			name: "entry quote rests post-only",
			req: exchange.PlaceOrderRequest{
				Symbol:        "BTCUSDT",
				Side:          domain.SideBuy,
				Type:          domain.TypeLimit,
				Price:         42000.5,
				Quantity:      0.01,
				ClientOrderID: "rb-entry",
			},
			want: "GTX",
		},
		{
			// A reduce-only close is priced at or inside the touch; a
			// post-only flag would make the venue expire it on arrival.
			name: "reduce-only close may take",
			req: exchange.PlaceOrderRequest{
				Symbol:        "BTCUSDT",
				Side:          domain.SideSell,
				Type:          domain.TypeLimit,
				Price:         42010.0,
				Quantity:      0.01,
				ReduceOnly:    true,
				ClientOrderID: "rb-close",
			},
			want: "GTC",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got url.Values
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				got = r.URL.Query()
				w.Write([]byte(`{"clientOrderId":"x","status":"NEW","price":"42000.5","origQty":"0.01"}`))
			})

			if _, err := c.PlaceOrder(context.Background(), tc.req); err != nil {
				t.Fatalf("PlaceOrder: %v", err)
			}
			if tif := got.Get("timeInForce"); tif != tc.want {
				t.Errorf("timeInForce = %q, want %q", tif, tc.want)
			}
		})
	}
}

func TestPlaceOrderStopMarketOmitsTimeInForce(t *testing.T) {
	var got url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Write([]byte(`{"clientOrderId":"x","status":"NEW","stopPrice":"41000"}`))
	})

	_, err := c.PlaceOrder(context.Background(), exchange.PlaceOrderRequest{
		Symbol:        "BTCUSDT",
		Side:          domain.SideSell,
		Type:          domain.TypeStopMarket,
		Price:         41000,
		Quantity:      0.01,
		ReduceOnly:    true,
		ClientOrderID: "rb-stop",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if got.Has("timeInForce") {
		t.Errorf("stop-market order carries timeInForce %q", got.Get("timeInForce"))
	}
	if got.Get("stopPrice") != "41000" {
		t.Errorf("stopPrice = %q, want 41000", got.Get("stopPrice"))
	}
}
