package infra

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every tunable the engine reads. The core never consults
// ambient global state for these values; everything flows from here.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode     string `yaml:"mode"`     // "live" or "paper"
		Strategy string `yaml:"strategy"` // "trend" or "maker"
	} `yaml:"trading"`

	Engine struct {
		TickIntervalMS int `yaml:"tick_interval_ms"`
		InboxSize      int `yaml:"inbox_size"`
		SnapshotBuffer int `yaml:"snapshot_buffer"`
	} `yaml:"engine"`

	Market struct {
		DepthLevels    int     `yaml:"depth_levels"`
		SMAWindow      int     `yaml:"sma_window"`
		TrendMargin    float64 `yaml:"trend_margin"`
		ImbalanceRatio float64 `yaml:"imbalance_ratio"`
	} `yaml:"market"`

	Strategy struct {
		TradeAmount          float64 `yaml:"trade_amount"`
		LossLimit            float64 `yaml:"loss_limit"`
		ProfitLockTriggerUSD float64 `yaml:"profit_lock_trigger_usd"`
		ProfitLockOffsetUSD  float64 `yaml:"profit_lock_offset_usd"`
		BidOffset            float64 `yaml:"bid_offset"`
		AskOffset            float64 `yaml:"ask_offset"`
		SkipBuySide          bool    `yaml:"skip_buy_side"`
		SkipSellSide         bool    `yaml:"skip_sell_side"`
		ImbalanceSkipStreak  int     `yaml:"imbalance_skip_streak"`
		PriceChaseThreshold  float64 `yaml:"price_chase_threshold"`
	} `yaml:"strategy"`

	Close struct {
		MinProfitMargin    float64 `yaml:"min_profit_margin"`
		TimeoutMS          int     `yaml:"timeout_ms"`
		FallbackToOriginal bool    `yaml:"fallback_to_original"`
	} `yaml:"close"`

	Fees struct {
		MakerRate float64 `yaml:"maker_rate"`
		TakerRate float64 `yaml:"taker_rate"`
	} `yaml:"fees"`

	Risk struct {
		MaxPositionSize      float64 `yaml:"max_position_size"`
		MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
		MaxDailyLoss         float64 `yaml:"max_daily_loss"`
		MaxDrawdown          float64 `yaml:"max_drawdown"`
		EmergencyStopLoss    float64 `yaml:"emergency_stop_loss"`
		CooldownSec          int     `yaml:"cooldown_sec"`
	} `yaml:"risk"`

	Throttle struct {
		MinTradeIntervalMS     int     `yaml:"min_trade_interval_ms"`
		MaxVolumePerMinute     float64 `yaml:"max_volume_per_minute"`
		QuickCloseThreshold    float64 `yaml:"quick_close_threshold"`
		MaxPositionHoldTimeSec int     `yaml:"max_position_hold_time_sec"`
		MaxDrawdownPerTrade    float64 `yaml:"max_drawdown_per_trade"`
	} `yaml:"throttle"`

	Retry struct {
		MaxRetries      int   `yaml:"max_retries"`
		BaseDelayMS     int   `yaml:"base_delay_ms"`
		MaxDelayMS      int   `yaml:"max_delay_ms"`
		TimeoutMS       int   `yaml:"timeout_ms"`
		RetryableStatus []int `yaml:"retryable_status"`
	} `yaml:"retry"`

	Exchange struct {
		RestURL      string `yaml:"rest_url"`
		WSURL        string `yaml:"ws_url"`
		RecvWindowMS int    `yaml:"recv_window_ms"`
		// Venue filter precision for the traded symbol. Prices and
		// quantities are rounded to this many decimals before
		// submission; zero disables rounding.
		PriceDecimals int `yaml:"price_decimals"`
		QtyDecimals   int `yaml:"qty_decimals"`
	} `yaml:"exchange"`

	Ledger struct {
		RetentionHours int `yaml:"retention_hours"`
	} `yaml:"ledger"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// LoadConfig reads and validates the YAML config at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Trading.Mode = "paper"
	cfg.Trading.Strategy = "maker"
	cfg.Engine.TickIntervalMS = 500
	cfg.Engine.InboxSize = 1024
	cfg.Engine.SnapshotBuffer = 8
	cfg.Market.DepthLevels = 10
	cfg.Market.SMAWindow = 30
	cfg.Market.TrendMargin = 0.001
	cfg.Market.ImbalanceRatio = 1.5
	cfg.Strategy.ImbalanceSkipStreak = 3
	cfg.Close.TimeoutMS = 60000
	cfg.Fees.MakerRate = 0.0002
	cfg.Fees.TakerRate = 0.00055
	cfg.Risk.MaxConsecutiveLosses = 3
	cfg.Risk.CooldownSec = 300
	cfg.Throttle.MinTradeIntervalMS = 1000
	cfg.Retry.MaxRetries = 3
	cfg.Retry.BaseDelayMS = 500
	cfg.Retry.MaxDelayMS = 10000
	cfg.Retry.TimeoutMS = 5000
	cfg.Retry.RetryableStatus = []int{418, 429, 500, 502, 503, 504}
	cfg.Exchange.RestURL = "https://fapi.binance.com"
	cfg.Exchange.WSURL = "wss://fstream.binance.com"
	cfg.Exchange.RecvWindowMS = 5000
	cfg.Exchange.PriceDecimals = 1
	cfg.Exchange.QtyDecimals = 3
	cfg.Ledger.RetentionHours = 24
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

// Validate fails fast on configuration that cannot run safely.
func (c *Config) Validate() error {
	switch c.Trading.Mode {
	case "live", "paper":
	default:
		return fmt.Errorf("trading.mode must be live or paper, got %q", c.Trading.Mode)
	}
	switch c.Trading.Strategy {
	case "trend", "maker":
	default:
		return fmt.Errorf("trading.strategy must be trend or maker, got %q", c.Trading.Strategy)
	}
	if c.Strategy.TradeAmount <= 0 {
		return fmt.Errorf("strategy.trade_amount must be positive")
	}
	if c.Fees.MakerRate < 0 || c.Fees.TakerRate < 0 {
		return fmt.Errorf("fee rates must be non-negative")
	}
	if c.Close.MinProfitMargin < 0 {
		return fmt.Errorf("close.min_profit_margin must be non-negative")
	}
	if c.Risk.MaxPositionSize <= 0 {
		return fmt.Errorf("risk.max_position_size must be positive")
	}
	if c.Risk.MaxDailyLoss <= 0 || c.Risk.MaxDrawdown <= 0 || c.Risk.EmergencyStopLoss <= 0 {
		return fmt.Errorf("risk loss limits must be positive")
	}
	if c.Market.SMAWindow <= 0 {
		return fmt.Errorf("market.sma_window must be positive")
	}
	if c.Market.ImbalanceRatio <= 1 {
		return fmt.Errorf("market.imbalance_ratio must be greater than 1")
	}
	if c.Engine.TickIntervalMS <= 0 {
		return fmt.Errorf("engine.tick_interval_ms must be positive")
	}
	if c.Throttle.MaxVolumePerMinute <= 0 {
		return fmt.Errorf("throttle.max_volume_per_minute must be positive")
	}
	return nil
}

// TickInterval returns the engine timer cadence.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Engine.TickIntervalMS) * time.Millisecond
}

// RetryConfig materializes the resilient-request limits.
func (c *Config) RetryConfig() RetryConfig {
	statuses := make(map[int]bool, len(c.Retry.RetryableStatus))
	for _, s := range c.Retry.RetryableStatus {
		statuses[s] = true
	}
	return RetryConfig{
		MaxRetries:      c.Retry.MaxRetries,
		BaseDelay:       time.Duration(c.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:        time.Duration(c.Retry.MaxDelayMS) * time.Millisecond,
		Timeout:         time.Duration(c.Retry.TimeoutMS) * time.Millisecond,
		RetryableStatus: statuses,
	}
}
