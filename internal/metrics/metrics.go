// Package metrics exposes Prometheus instrumentation for the trading
// engines on an operator HTTP port.
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_placed_total",
			Help: "Orders submitted to the venue.",
		},
		[]string{"account", "side", "type"},
	)

	OrdersCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_cancelled_total",
			Help: "Cancel requests issued, including benign already-gone cancels.",
		},
		[]string{"account"},
	)

	OrderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_order_errors_total",
			Help: "Place or cancel commands that failed after retries.",
		},
		[]string{"account", "action"},
	)

	RiskRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_risk_rejections_total",
			Help: "Position opens suppressed by a risk gate, by reason.",
		},
		[]string{"reason"},
	)

	ThrottleRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_throttle_rejections_total",
			Help: "Trades suppressed by the velocity controller, by reason.",
		},
		[]string{"reason"},
	)

	TradesRealized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_trades_realized_total",
			Help: "Closed trades by outcome.",
		},
		[]string{"account", "result"},
	)

	RealizedPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_realized_pnl",
			Help: "Cumulative realized PnL net of fees.",
		},
		[]string{"account"},
	)

	EngineTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_engine_ticks_total",
			Help: "Completed engine decision ticks.",
		},
		[]string{"account"},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersPlaced,
		OrdersCancelled,
		OrderErrors,
		RiskRejections,
		ThrottleRejections,
		TradesRealized,
		RealizedPnL,
		EngineTicks,
	)
}

// Serve exposes /metrics on addr. It returns the server so the caller can
// shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	return srv
}
