// Package app wires configuration, accounts, adapters, and engines into a
// running process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/July-Jio/ritmex-bot/internal/account"
	"github.com/July-Jio/ritmex-bot/internal/closer"
	"github.com/July-Jio/ritmex-bot/internal/domain"
	"github.com/July-Jio/ritmex-bot/internal/engine"
	"github.com/July-Jio/ritmex-bot/internal/exchange"
	"github.com/July-Jio/ritmex-bot/internal/exchange/binance"
	"github.com/July-Jio/ritmex-bot/internal/infra"
	"github.com/July-Jio/ritmex-bot/internal/ledger"
	"github.com/July-Jio/ritmex-bot/internal/market"
	"github.com/July-Jio/ritmex-bot/internal/metrics"
	"github.com/July-Jio/ritmex-bot/internal/risk"
	"github.com/July-Jio/ritmex-bot/internal/strategy"
	"github.com/July-Jio/ritmex-bot/internal/throttle"
)

// Run builds every per-account engine from configuration and runs them
// until ctx is cancelled. It returns the first engine failure, if any.
func Run(ctx context.Context, configPath, envPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(infra.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	accounts, err := account.Load(envPath)
	if err != nil {
		return fmt.Errorf("resolve accounts: %w", err)
	}
	banner(cfg.Trading.Mode, cfg.Trading.Strategy, len(accounts))

	clock := infra.RealClock{}
	engines := make([]*engine.Engine, 0, len(accounts))
	adapters := make([]exchange.Adapter, 0, len(accounts))
	for _, acct := range accounts {
		eng, adapter, err := buildEngine(cfg, acct, clock)
		if err != nil {
			return fmt.Errorf("account %s: %w", acct.Name, err)
		}
		engines = append(engines, eng)
		adapters = append(adapters, adapter)
	}

	if cfg.Metrics.ListenAddr != "" {
		srv := metrics.Serve(cfg.Metrics.ListenAddr)
		slog.Info("metrics listening", slog.String("addr", cfg.Metrics.ListenAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	for _, eng := range engines {
		go observe(ctx, eng)
	}

	runners := make([]runner, 0, len(engines))
	for i, eng := range engines {
		runners = append(runners, runner{name: accounts[i].Name, run: eng.Run})
	}
	err = runGroup(ctx, runners)

	for _, adapter := range adapters {
		_ = adapter.Close()
	}
	return err
}

// runner is one named unit of concurrent work.
type runner struct {
	name string
	run  func(context.Context) error
}

// runGroup runs every runner concurrently and waits for all of them. The
// first failure is logged immediately, cancels the remaining runners, and
// becomes the returned error. A funded account must never stop trading
// silently.
func runGroup(ctx context.Context, runners []runner) error {
	gctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(runners))
	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r runner) {
			defer wg.Done()
			err := r.run(gctx)
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			slog.Error("engine failed",
				slog.String("account", r.name),
				slog.Any("error", err))
			errCh <- err
			cancel()
		}(r)
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// buildEngine assembles the full dependency graph for one account.
func buildEngine(cfg *infra.Config, acct account.Account, clock infra.Clock) (*engine.Engine, exchange.Adapter, error) {
	paper := cfg.Trading.Mode == "paper"

	client := binance.NewClient(binance.Config{
		RestURL:    cfg.Exchange.RestURL,
		WSURL:      cfg.Exchange.WSURL,
		APIKey:     acct.APIKey,
		APISecret:  acct.APISecret,
		RecvWindow: time.Duration(cfg.Exchange.RecvWindowMS) * time.Millisecond,
		MarketOnly: paper,
	}, clock)

	var adapter exchange.Adapter = client
	if paper {
		adapter = exchange.NewPaper(client, clock)
	}

	fees := domain.FeeSchedule{
		MakerRate: cfg.Fees.MakerRate,
		TakerRate: cfg.Fees.TakerRate,
	}

	riskMgr := risk.NewManager(risk.Config{
		MaxPositionSize:      cfg.Risk.MaxPositionSize,
		MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
		MaxDailyLoss:         cfg.Risk.MaxDailyLoss,
		MaxDrawdown:          cfg.Risk.MaxDrawdown,
		EmergencyStopLoss:    cfg.Risk.EmergencyStopLoss,
		CooldownPeriod:       time.Duration(cfg.Risk.CooldownSec) * time.Second,
	}, clock)

	throttleCtl := throttle.NewController(throttle.Config{
		MinTradeInterval:    time.Duration(cfg.Throttle.MinTradeIntervalMS) * time.Millisecond,
		MaxVolumePerMinute:  cfg.Throttle.MaxVolumePerMinute,
		QuickCloseThreshold: cfg.Throttle.QuickCloseThreshold,
		MaxPositionHoldTime: time.Duration(cfg.Throttle.MaxPositionHoldTimeSec) * time.Second,
		MaxDrawdownPerTrade: cfg.Throttle.MaxDrawdownPerTrade,
	}, clock)

	closeStrat := closer.New(closer.Config{
		MinProfitMargin:    cfg.Close.MinProfitMargin,
		Timeout:            time.Duration(cfg.Close.TimeoutMS) * time.Millisecond,
		FallbackToOriginal: cfg.Close.FallbackToOriginal,
	}, fees, clock)

	strat, err := strategy.New(cfg.Trading.Strategy, strategy.Deps{
		Cfg: strategy.Config{
			TradeAmount:          cfg.Strategy.TradeAmount,
			LossLimit:            cfg.Strategy.LossLimit,
			ProfitLockTriggerUSD: cfg.Strategy.ProfitLockTriggerUSD,
			ProfitLockOffsetUSD:  cfg.Strategy.ProfitLockOffsetUSD,
			BidOffset:            cfg.Strategy.BidOffset,
			AskOffset:            cfg.Strategy.AskOffset,
			SkipBuySide:          cfg.Strategy.SkipBuySide,
			SkipSellSide:         cfg.Strategy.SkipSellSide,
			ImbalanceSkipStreak:  cfg.Strategy.ImbalanceSkipStreak,
		},
		Risk:     riskMgr,
		Throttle: throttleCtl,
		Closer:   closeStrat,
	})
	if err != nil {
		return nil, nil, err
	}

	eng := engine.New(engine.Options{
		Account:  acct.Name,
		Symbol:   acct.Symbol,
		Adapter:  adapter,
		Strategy: strat,
		Tracker: market.NewTracker(market.Config{
			DepthLevels:    cfg.Market.DepthLevels,
			SMAWindow:      cfg.Market.SMAWindow,
			TrendMargin:    cfg.Market.TrendMargin,
			ImbalanceRatio: cfg.Market.ImbalanceRatio,
		}),
		Risk:                riskMgr,
		Throttle:            throttleCtl,
		Closer:              closeStrat,
		Ledger:              ledger.New(fees, time.Duration(cfg.Ledger.RetentionHours)*time.Hour, clock),
		Clock:               clock,
		Retry:               cfg.RetryConfig(),
		TickInterval:        cfg.TickInterval(),
		InboxSize:           cfg.Engine.InboxSize,
		SnapshotBuf:         cfg.Engine.SnapshotBuffer,
		PriceChaseThreshold: cfg.Strategy.PriceChaseThreshold,
		PriceDecimals:       cfg.Exchange.PriceDecimals,
		QtyDecimals:         cfg.Exchange.QtyDecimals,
	})
	return eng, adapter, nil
}

// observe logs each engine's published snapshots at a low cadence.
func observe(ctx context.Context, eng *engine.Engine) {
	snaps, cancel := eng.Subscribe()
	defer cancel()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if time.Since(last) < 10*time.Second {
				continue
			}
			last = time.Now()
			slog.Info("snapshot",
				slog.String("account", snap.Account),
				slog.String("symbol", snap.Symbol),
				slog.Float64("last", snap.LastPrice),
				slog.String("trend", string(snap.Trend)),
				slog.Float64("position", snap.Position.PositionAmt),
				slog.Float64("unrealized", snap.UnrealizedPnL),
				slog.Float64("realized", snap.RealizedPnL),
				slog.Int("open_orders", len(snap.OpenOrders)),
				slog.String("advice", snap.Advice))
		}
	}
}

func banner(mode, strat string, accounts int) {
	if mode == "live" {
		slog.Warn("LIVE trading enabled, real funds at risk",
			slog.String("strategy", strat),
			slog.Int("accounts", accounts))
		return
	}
	slog.Info("paper trading mode, orders are simulated",
		slog.String("strategy", strat),
		slog.Int("accounts", accounts))
}
