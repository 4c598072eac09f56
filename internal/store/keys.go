// Package store implements the Redis keyspace & codec (spec §4.A): a
// uniform Get/Set/SetEx/HGet/HSet/Delete/Scan facade over github.com/redis/go-redis/v9,
// with every value JSON-encoded and UTF-8 clean (the Go equivalent of
// Python's ensure_ascii=false — encoding/json never escapes valid UTF-8
// runes above U+007F in the way ASCII-only encoders do, so no extra flag is
// needed here).
package store

import (
	"fmt"
	"time"
)

// TTL table (spec §4.A). The symbol registry is stored without expiry;
// K-line series use a sliding window (renewed on every write);
// realtime/signal/chart/log/flag keys use fixed TTLs.
const (
	TTLRealtimeSnapshot = 5 * time.Minute
	TTLSignalSet        = 1 * time.Hour
	TTLChartCache       = 1 * time.Minute
	TTLExecutionLog     = 7 * 24 * time.Hour
	TTLMigrationFlag    = 24 * time.Hour
	TTLKlineSeries      = 30 * 24 * time.Hour
	TTLValidationReport = 1 * time.Hour
	TTLWeeklyKline      = 1 * time.Hour
	TTLMonthlyKline     = 6 * time.Hour
)

// Key vocabulary (spec §4.A). Centralised here so every component builds
// keys the same way; the vocabulary is a durable external contract and must
// not change shape across reimplementations.
const (
	KeyStockCodesAll = "stocks:codes:all"
	KeyStockList     = "stock_list" // hash: symbol -> Symbol JSON
	KeyStockRealtime = "stock:realtime"
	KeyBuySignals    = "buy_signals" // hash: symbol[:strategy] -> Signal JSON
	KeyNewsLatest    = "news:latest"
	KeyETFCodesAll   = "etf:codes:all"

	// KeyValidationReport is the market-wide data-freshness report cache
	// slot (spec §3 glossary: "Cache slot... validation report").
	KeyValidationReport = "validation_report"
)

// KlineKey returns the per-symbol K-line series key.
func KlineKey(tsCode string) string {
	return fmt.Sprintf("stock_trend:%s", tsCode)
}

// ETFKlineKey returns the per-ETF K-line series key (parallel namespace).
func ETFKlineKey(tsCode string) string {
	return fmt.Sprintf("etf_trend:%s", tsCode)
}

// ChartCacheKey returns the cache-slot key for a rendered chart.
func ChartCacheKey(symbol, strategy string) string {
	return fmt.Sprintf("chart_data:%s:%s", symbol, strategy)
}

// ExecutionLogKey returns the execution-log entry key for one job run.
func ExecutionLogKey(job, runID string) string {
	return fmt.Sprintf("job:log:%s:%s", job, runID)
}

// MigrationFlagKey returns the one-shot migration/init flag key for name.
func MigrationFlagKey(name string) string {
	return fmt.Sprintf("migration:flag:%s", name)
}

// PeriodKlineCacheKey returns the cache-slot key for a resampled (weekly,
// monthly) K-line series. Resampled series are a derived artifact (spec §3:
// "Cache slot... lives under a prefixed key with a bounded TTL"), not the
// durable stock_trend:<ts_code> namespace, which is daily bars only.
func PeriodKlineCacheKey(tsCode, period string) string {
	return fmt.Sprintf("chart_data:period:%s:%s", tsCode, period)
}
