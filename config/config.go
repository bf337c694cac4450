package config

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"signalengine/internal/indicator"
	"signalengine/internal/strategy"
)

// ErrTimeframeBelowBase is returned when the strategy timeframe is shorter
// than the base kline interval.
var ErrTimeframeBelowBase = errors.New("config: timeframe below base interval")

// Config holds all application configuration.
type Config struct {
	Symbol string `yaml:"symbol" default:"BTCUSDT" validate:"required,uppercase"`

	Market struct {
		BaseInterval time.Duration `yaml:"base_interval" default:"1m" validate:"gt=0"`
		Timeframe    time.Duration `yaml:"timeframe" default:"15m" validate:"gt=0"`
		BackfillBars int           `yaml:"backfill_bars" default:"100" validate:"gte=0"`
		Source       string        `yaml:"source" default:"live" validate:"oneof=live replay"`
		StreamURL    string        `yaml:"stream_url" default:"wss://stream.binance.com:9443" validate:"required,url"`
		RESTURL      string        `yaml:"rest_url" default:"https://api.binance.com" validate:"required,url"`
		DepthLevels  int           `yaml:"depth_levels" default:"20" validate:"oneof=5 10 20"`
		ReplaySpeed  float64       `yaml:"replay_speed" default:"0" validate:"gte=0"`
		ReplayFromMs int64         `yaml:"replay_from_ms" validate:"gte=0"`
	} `yaml:"market"`

	History struct {
		WarmupBuffer   int `yaml:"warmup_buffer" default:"5" validate:"gte=0"`
		CapacityBuffer int `yaml:"capacity_buffer" default:"60" validate:"gte=0"`
		ChartBars      int `yaml:"chart_bars" default:"100" validate:"gt=0"`
	} `yaml:"history"`

	Indicators struct {
		RSIPeriod         int     `yaml:"rsi_period" default:"14" validate:"gt=1"`
		MACDFast          int     `yaml:"macd_fast" default:"12" validate:"gt=0"`
		MACDSlow          int     `yaml:"macd_slow" default:"26" validate:"gtfield=MACDFast"`
		MACDSignal        int     `yaml:"macd_signal" default:"9" validate:"gt=0"`
		SupertrendPeriod  int     `yaml:"supertrend_period" default:"10" validate:"gt=0"`
		SupertrendMult    float64 `yaml:"supertrend_multiplier" default:"3" validate:"gt=0"`
		KDJN              int     `yaml:"kdj_n" default:"9" validate:"gt=0"`
		KDJM1             int     `yaml:"kdj_m1" default:"3" validate:"gt=0"`
		KDJM2             int     `yaml:"kdj_m2" default:"3" validate:"gt=0"`
		SARInitialAF      float64 `yaml:"sar_initial_af" default:"0.02" validate:"gt=0"`
		SARMaxAF          float64 `yaml:"sar_max_af" default:"0.2" validate:"gtfield=SARInitialAF"`
		SARStep           float64 `yaml:"sar_step" default:"0.02" validate:"gt=0"`
		FractalWindow     int     `yaml:"fractal_window" default:"5" validate:"gte=3"`
		MomentumPeriod    int     `yaml:"momentum_period" default:"10" validate:"gt=0"`
		ATRPeriod         int     `yaml:"atr_period" default:"14" validate:"gt=0"`
		VolumePeriod      int     `yaml:"volume_period" default:"20" validate:"gt=0"`
		FibOrder          int     `yaml:"fib_order" default:"3" validate:"gt=0"`
		FibMinBars        int     `yaml:"fib_min_bars" default:"15" validate:"gt=0"`
		VolumeProfileBins int     `yaml:"volume_profile_bins" default:"24" validate:"gt=0"`
	} `yaml:"indicators"`

	Thresholds struct {
		RSIOverbought   float64  `yaml:"rsi_overbought" default:"70" validate:"lte=100"`
		RSIOversold     float64  `yaml:"rsi_oversold" default:"30" validate:"gte=0"`
		RSIBullish      float64  `yaml:"rsi_bullish" default:"55"`
		RSIBearish      float64  `yaml:"rsi_bearish" default:"45"`
		MACDStrengthPct float64  `yaml:"macd_strength_pct" default:"0.0005" validate:"gte=0"`
		KDJOverbought   float64  `yaml:"kdj_overbought" default:"100"`
		KDJOversold     float64  `yaml:"kdj_oversold" default:"0"`
		VolumeHigh      float64  `yaml:"volume_high" default:"1.5" validate:"gt=0"`
		VolumeLow       float64  `yaml:"volume_low" default:"0.5" validate:"gte=0"`
		Proximity       float64  `yaml:"proximity" default:"0.002" validate:"gt=0,lt=1"`
		SROrder         []string `yaml:"sr_order" default:"[\"pivot\",\"fibonacci\",\"liquidity\"]" validate:"min=1,dive,oneof=pivot fibonacci liquidity"`
		LiquidityTopN   int      `yaml:"liquidity_top_n" default:"3" validate:"gt=0"`
		LiquidityMinQty float64  `yaml:"liquidity_min_qty" default:"10" validate:"gte=0"`
		LivePreview     bool     `yaml:"live_preview"`
	} `yaml:"thresholds"`

	Weights struct {
		Trend   float64 `yaml:"trend" default:"2" validate:"gte=0"`
		MACD    float64 `yaml:"macd" default:"2" validate:"gte=0"`
		RSI     float64 `yaml:"rsi" default:"1" validate:"gte=0"`
		KDJ     float64 `yaml:"kdj" default:"1" validate:"gte=0"`
		SR      float64 `yaml:"support_resistance" default:"2" validate:"gte=0"`
		Fractal float64 `yaml:"fractal" default:"1" validate:"gte=0"`
		Volume  float64 `yaml:"volume" default:"2" validate:"gte=0"`
	} `yaml:"weights"`

	Risk struct {
		ATRTPMult     float64 `yaml:"atr_tp_multiplier" default:"2" validate:"gt=0"`
		ATRSLMult     float64 `yaml:"atr_sl_multiplier" default:"1.5" validate:"gt=0"`
		SLBarBuffer   float64 `yaml:"sl_bar_buffer" default:"0.1" validate:"gte=0"`
		MinTPPct      float64 `yaml:"min_tp_pct" default:"0.005" validate:"gte=0,lt=1"`
		MinSLPct      float64 `yaml:"min_sl_pct" default:"0.005" validate:"gte=0,lt=1"`
		FallbackTPPct float64 `yaml:"fallback_tp_pct" default:"0.01" validate:"gt=0,lt=1"`
		FallbackSLPct float64 `yaml:"fallback_sl_pct" default:"0.01" validate:"gt=0,lt=1"`
		MinRewardRisk float64 `yaml:"min_reward_risk" default:"1.2" validate:"gt=0"`
	} `yaml:"risk"`

	Storage struct {
		SQLitePath    string        `yaml:"sqlite_path" default:"data/klines.db" validate:"required"`
		BatchSize     int           `yaml:"batch_size" default:"100" validate:"gt=0"`
		FlushInterval time.Duration `yaml:"flush_interval" default:"1s" validate:"gt=0"`
		RedisEnabled  bool          `yaml:"redis_enabled"`
		RedisAddr     string        `yaml:"redis_addr" default:"localhost:6379"`
		RedisPassword string        `yaml:"redis_password"`
		RedisDB       int           `yaml:"redis_db" validate:"gte=0"`
		StreamMaxLen  int64         `yaml:"stream_max_len" default:"10000" validate:"gt=0"`
	} `yaml:"storage"`

	HTTP struct {
		DashboardAddr string `yaml:"dashboard_addr" default:":8080" validate:"required"`
		MetricsAddr   string `yaml:"metrics_addr" default:":9090" validate:"required"`
	} `yaml:"http"`

	Notify struct {
		WebhookURL       string `yaml:"webhook_url" validate:"omitempty,url"`
		TelegramBotToken string `yaml:"telegram_bot_token"`
		TelegramChatID   string `yaml:"telegram_chat_id"`
		LogAlerts        bool   `yaml:"log_alerts" default:"true"`
	} `yaml:"notify"`

	Log struct {
		Level string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	} `yaml:"log"`
}

var validate = validator.New()

// Load builds the configuration from defaults, the optional YAML file at path
// and environment overrides, then validates it.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// applyEnv overrides operational fields from the environment.
func (c *Config) applyEnv() error {
	c.Symbol = strings.ToUpper(getEnv("SYMBOL", c.Symbol))
	c.Market.Source = getEnv("SOURCE", c.Market.Source)
	c.Storage.RedisAddr = getEnv("REDIS_ADDR", c.Storage.RedisAddr)
	c.Storage.RedisPassword = getEnv("REDIS_PASSWORD", c.Storage.RedisPassword)
	c.Storage.SQLitePath = getEnv("SQLITE_PATH", c.Storage.SQLitePath)
	c.HTTP.DashboardAddr = getEnv("DASHBOARD_ADDR", c.HTTP.DashboardAddr)
	c.HTTP.MetricsAddr = getEnv("METRICS_ADDR", c.HTTP.MetricsAddr)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Notify.WebhookURL = getEnv("WEBHOOK_URL", c.Notify.WebhookURL)
	c.Notify.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.Notify.TelegramBotToken)
	c.Notify.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.Notify.TelegramChatID)

	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: REDIS_ENABLED: %w", err)
		}
		c.Storage.RedisEnabled = b
	}
	if v := os.Getenv("TIMEFRAME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: TIMEFRAME: %w", err)
		}
		c.Market.Timeframe = d
	}
	if v := os.Getenv("BASE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: BASE_INTERVAL: %w", err)
		}
		c.Market.BaseInterval = d
	}
	return nil
}

// Validate checks struct tags and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	base, tf := c.Market.BaseInterval, c.Market.Timeframe
	if tf < base {
		return fmt.Errorf("%w: timeframe %s < base %s", ErrTimeframeBelowBase, tf, base)
	}
	if tf%base != 0 {
		return fmt.Errorf("config: timeframe %s is not a multiple of base interval %s", tf, base)
	}
	if base%time.Second != 0 || tf%time.Second != 0 {
		return fmt.Errorf("config: intervals must be whole seconds")
	}
	if _, err := c.BinanceInterval(); err != nil {
		return err
	}

	th := c.Thresholds
	if !(th.RSIOversold < th.RSIBearish && th.RSIBearish < th.RSIBullish && th.RSIBullish < th.RSIOverbought) {
		return fmt.Errorf("config: rsi thresholds must satisfy oversold < bearish < bullish < overbought")
	}
	if th.VolumeLow >= th.VolumeHigh {
		return fmt.Errorf("config: volume_low must be below volume_high")
	}
	if th.KDJOversold >= th.KDJOverbought {
		return fmt.Errorf("config: kdj_oversold must be below kdj_overbought")
	}
	if c.StrategyWeights().Total() <= 0 {
		return fmt.Errorf("config: weights must have a positive total")
	}
	return nil
}

// TimeframeSec returns the strategy timeframe in seconds.
func (c *Config) TimeframeSec() int64 {
	return int64(c.Market.Timeframe / time.Second)
}

// MinBars returns the longest indicator lookback plus the warm-up buffer.
func (c *Config) MinBars() int {
	return c.IndicatorParams().Lookback() + c.History.WarmupBuffer
}

// HistoryCapacity returns the rolling-history length.
func (c *Config) HistoryCapacity() int {
	return c.MinBars() + c.History.CapacityBuffer
}

var binanceIntervals = map[time.Duration]string{
	time.Second:      "1s",
	time.Minute:      "1m",
	3 * time.Minute:  "3m",
	5 * time.Minute:  "5m",
	15 * time.Minute: "15m",
	30 * time.Minute: "30m",
	time.Hour:        "1h",
	2 * time.Hour:    "2h",
	4 * time.Hour:    "4h",
	6 * time.Hour:    "6h",
	8 * time.Hour:    "8h",
	12 * time.Hour:   "12h",
	24 * time.Hour:   "1d",
}

// BinanceInterval maps the base interval to the exchange kline interval.
func (c *Config) BinanceInterval() (string, error) {
	s, ok := binanceIntervals[c.Market.BaseInterval]
	if !ok {
		return "", fmt.Errorf("config: base interval %s has no exchange kline interval", c.Market.BaseInterval)
	}
	return s, nil
}

// BackfillFromMs returns the open time, in ms, where historical backfill
// starts: backfill bars of the timeframe plus ten base intervals.
func (c *Config) BackfillFromMs(now time.Time) int64 {
	span := time.Duration(c.Market.BackfillBars)*c.Market.Timeframe + 10*c.Market.BaseInterval
	return now.Add(-span).UnixMilli()
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// IndicatorParams converts the indicator section.
func (c *Config) IndicatorParams() indicator.Params {
	in := c.Indicators
	return indicator.Params{
		RSIPeriod:         in.RSIPeriod,
		MACDFast:          in.MACDFast,
		MACDSlow:          in.MACDSlow,
		MACDSignal:        in.MACDSignal,
		SupertrendPeriod:  in.SupertrendPeriod,
		SupertrendMult:    in.SupertrendMult,
		KDJN:              in.KDJN,
		KDJM1:             in.KDJM1,
		KDJM2:             in.KDJM2,
		SARInitialAF:      in.SARInitialAF,
		SARMaxAF:          in.SARMaxAF,
		SARStep:           in.SARStep,
		FractalWindow:     in.FractalWindow,
		MomentumPeriod:    in.MomentumPeriod,
		ATRPeriod:         in.ATRPeriod,
		VolumePeriod:      in.VolumePeriod,
		FibOrder:          in.FibOrder,
		FibMinBars:        in.FibMinBars,
		VolumeProfileBins: in.VolumeProfileBins,
		LiquidityMinQty:   c.Thresholds.LiquidityMinQty,
		LiquidityTopN:     c.Thresholds.LiquidityTopN,
	}
}

// StrategyThresholds converts the thresholds section.
func (c *Config) StrategyThresholds() strategy.Thresholds {
	th := c.Thresholds
	order := make([]strategy.SRSource, len(th.SROrder))
	for i, s := range th.SROrder {
		order[i] = strategy.SRSource(s)
	}
	return strategy.Thresholds{
		RSIOverbought:   th.RSIOverbought,
		RSIOversold:     th.RSIOversold,
		RSIBullish:      th.RSIBullish,
		RSIBearish:      th.RSIBearish,
		MACDStrengthPct: th.MACDStrengthPct,
		KDJOverbought:   th.KDJOverbought,
		KDJOversold:     th.KDJOversold,
		VolumeHigh:      th.VolumeHigh,
		VolumeLow:       th.VolumeLow,
		Proximity:       th.Proximity,
		SROrder:         order,
		LiquidityTopN:   th.LiquidityTopN,
	}
}

// StrategyWeights converts the weights section.
func (c *Config) StrategyWeights() strategy.Weights {
	w := c.Weights
	return strategy.Weights{
		Trend:   w.Trend,
		MACD:    w.MACD,
		RSI:     w.RSI,
		KDJ:     w.KDJ,
		SR:      w.SR,
		Fractal: w.Fractal,
		Volume:  w.Volume,
	}
}

// RiskParams converts the risk section.
func (c *Config) RiskParams() strategy.RiskParams {
	r := c.Risk
	return strategy.RiskParams{
		ATRTPMult:     r.ATRTPMult,
		ATRSLMult:     r.ATRSLMult,
		SLBarBuffer:   r.SLBarBuffer,
		MinTPPct:      r.MinTPPct,
		MinSLPct:      r.MinSLPct,
		FallbackTPPct: r.FallbackTPPct,
		FallbackSLPct: r.FallbackSLPct,
		MinRewardRisk: r.MinRewardRisk,
	}
}

// LogSummary prints the resolved settings once at startup.
func (c *Config) LogSummary() {
	iv, _ := c.BinanceInterval()
	log.Printf("[config] symbol=%s base=%s (%s) timeframe=%s min_bars=%d capacity=%d source=%s",
		c.Symbol, c.Market.BaseInterval, iv, c.Market.Timeframe, c.MinBars(), c.HistoryCapacity(), c.Market.Source)
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
