// Package model defines the JSON-shaped records stored in Redis and passed
// between components: Symbol, Bar, Series, Quote and Signal (spec §3).
// These are plain structs, not provider DTOs — provider-specific field
// names are translated to these shapes inside each adapter and never leak
// past it.
package model

import "time"

// Market classifies a Symbol's listing venue.
type Market string

const (
	MarketSH  Market = "SH"
	MarketSZ  Market = "SZ"
	MarketBJ  Market = "BJ"
	MarketETF Market = "ETF"
)

// Board further classifies stock symbols by listing segment.
type Board string

const (
	BoardMain    Board = "main"
	BoardGEM     Board = "gem"    // 创业板
	BoardSTAR    Board = "star"   // 科创板
	BoardUnknown Board = "unknown"
)

// ETFTier tags an ETF as T+0 (same-day settlement, cross-border/commodity
// funds) or T+1 (domestic equity funds), per spec §4.F.
type ETFTier string

const (
	ETFTierT0 ETFTier = "T+0"
	ETFTierT1 ETFTier = "T+1"
)

// Symbol is one entry in the registry's master list (spec §3).
type Symbol struct {
	TSCode   string  `json:"ts_code"`
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Market   Market  `json:"market"`
	Industry string  `json:"industry,omitempty"`
	Area     string  `json:"area,omitempty"`
	ListDate string  `json:"list_date,omitempty"`
	Board    Board   `json:"board,omitempty"`
	ETFTier  ETFTier `json:"etf_tier,omitempty"`
}

// IsETF reports whether the symbol belongs to the ETF namespace.
func (s Symbol) IsETF() bool { return s.Market == MarketETF }

// Bar is a single OHLCV record for one trading day (spec §3).
type Bar struct {
	TradeDate      string  `json:"trade_date"`
	Open           float64 `json:"open"`
	High           float64 `json:"high"`
	Low            float64 `json:"low"`
	Close          float64 `json:"close"`
	Vol            float64 `json:"vol"`
	Amount         float64 `json:"amount"`
	PctChg         float64 `json:"pct_chg,omitempty"`
	Change         float64 `json:"change,omitempty"`
	LastUpdateType string  `json:"last_update_type,omitempty"`
}

// Source identifies where a K-line series was last populated from.
type Source string

const (
	SourceTushare        Source = "tushare"
	SourceAKShare        Source = "akshare"
	SourceRealtimeMerged Source = "realtime-merged"
)

// Series is the per-symbol bar sequence stored under stock_trend:<ts_code>
// (spec §3). Data is date-ascending and length-bounded by retention.
type Series struct {
	TSCode         string    `json:"ts_code"`
	Data           []Bar     `json:"data"`
	UpdatedAt      time.Time `json:"updated_at"`
	DataCount      int       `json:"data_count"`
	Source         Source    `json:"source"`
	LastUpdateType string    `json:"last_update_type,omitempty"`
}

// Quote is a realtime snapshot of price/volume for one symbol (spec §3).
// Fields are provider-normalised to English keys; units are fixed: volume
// in shares, amount in yuan.
type Quote struct {
	Code           string    `json:"code"`
	Name           string    `json:"name,omitempty"`
	Price          float64   `json:"price"`
	Change         float64   `json:"change"`
	ChangePercent  float64   `json:"change_percent"`
	Open           float64   `json:"open,omitempty"`
	High           float64   `json:"high,omitempty"`
	Low            float64   `json:"low,omitempty"`
	PreClose       float64   `json:"pre_close,omitempty"`
	Volume         float64   `json:"volume"`
	Amount         float64   `json:"amount"`
	TurnoverRate   float64   `json:"turnover_rate,omitempty"`
	UpdateTime     time.Time `json:"update_time"`
}

// SignalType is the directional verdict a strategy emits.
type SignalType string

const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
)

// Signal is a strategy's verdict at a given bar (spec §3). Stored in the
// buy_signals hash keyed by symbol or symbol:strategy.
type Signal struct {
	Code            string     `json:"code"`
	Name            string     `json:"name,omitempty"`
	Market          Market     `json:"market,omitempty"`
	Strategy        string     `json:"strategy"`
	SignalType      SignalType `json:"signal_type"`
	Price           float64    `json:"price"`
	ChangePercent   float64    `json:"change_percent,omitempty"`
	Volume          float64    `json:"volume,omitempty"`
	SignalDate      string     `json:"signal_date"`
	CalculatedTime  time.Time  `json:"calculated_time"`
	StopLoss        *float64   `json:"stop_loss,omitempty"`
	TakeProfit      *float64   `json:"take_profit,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	Index           int        `json:"index"`
}
