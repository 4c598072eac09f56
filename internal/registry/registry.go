// Package registry implements the symbol registry (spec §4.F): the stock +
// ETF master list, classification by board/market, and the completeness
// gate that other components consult before running.
package registry

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/aristath/marketwatch/internal/model"
	"github.com/aristath/marketwatch/internal/store"
	"github.com/rs/zerolog"
)

// MinStockRecords and MinETFRecords are the completeness-gate thresholds
// (spec §4.F): the registry must hold at least this many records before
// strategy/realtime jobs are allowed to run.
const (
	MinStockRecords = 5000
	MinETFRecords   = 1
)

// SourceFunc fetches the master list from an upstream provider; wired to
// providers.Provider.SymbolMaster by the caller to avoid an import cycle.
type SourceFunc func(ctx context.Context) ([]model.Symbol, error)

// Registry holds the in-memory view of symbol_list plus the Redis-backed
// persistence of it. Reads are served from memory; Refresh repopulates
// both memory and Redis.
type Registry struct {
	redis  *store.Client
	source SourceFunc
	log    zerolog.Logger

	mu       sync.RWMutex
	stocks   []model.Symbol
	etfs     []model.Symbol
	byCode   map[string]model.Symbol
	byBare   map[string]string
}

// New builds a Registry. source may be nil for tests that only exercise
// classification helpers.
func New(redisClient *store.Client, source SourceFunc, log zerolog.Logger) *Registry {
	return &Registry{
		redis:  redisClient,
		source: source,
		log:    log.With().Str("component", "symbol_registry").Logger(),
		byCode: make(map[string]model.Symbol),
		byBare: make(map[string]string),
	}
}

// Load returns the in-memory master list (stocks only; see Stocks/ETFs for
// namespace-specific access).
func (r *Registry) Load() []model.Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Symbol, len(r.stocks))
	copy(out, r.stocks)
	return out
}

// Stocks returns the stock-namespace symbols.
func (r *Registry) Stocks() []model.Symbol { return r.Load() }

// ETFs returns the ETF-namespace symbols.
func (r *Registry) ETFs() []model.Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Symbol, len(r.etfs))
	copy(out, r.etfs)
	return out
}

// Lookup returns the symbol record for a ts_code, if known.
func (r *Registry) Lookup(tsCode string) (model.Symbol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sym, ok := r.byCode[tsCode]
	return sym, ok
}

// LookupBySymbol resolves a bare exchange code (e.g. as carried on a
// realtime quote) to its canonical ts_code. Used by the quote service's
// fan-out to know which K-line series a quote belongs to.
func (r *Registry) LookupBySymbol(code string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tsCode, ok := r.byBare[code]
	return tsCode, ok
}

// BareCodes returns every bare exchange code (stocks + ETFs) currently
// known, for providers whose feed is request-scoped rather than
// "all symbols" (spec §4.C: Sina's hq.sinajs.cn list=... endpoint).
func (r *Registry) BareCodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byBare))
	for code := range r.byBare {
		out = append(out, code)
	}
	return out
}

// Complete reports whether the registry satisfies the completeness gate
// (spec §4.F): ≥5000 stock records and ≥1 ETF record.
func (r *Registry) Complete() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stocks) >= MinStockRecords && len(r.etfs) >= MinETFRecords
}

var lofPattern = regexp.MustCompile(`(?i)LOF`)

// t0Keywords are the name fragments that mark an ETF as T+0 settlement
// (spec §4.F): cross-border, commodity, bond, currency funds.
var t0Keywords = []string{
	"跨境", "QDII", "海外", "全球", "国际", "港股", "恒生", "香港", "美股",
	"纳", "标普", "道琼", "日经", "欧洲", "德国", "英国", "法国", "新兴",
	"亚太", "债", "黄金", "货币", "白银", "原油",
}

// Classify assigns Board/ETFTier to a symbol in place, following the rules
// in spec §4.F. ETF records bypass board classification entirely.
func Classify(sym model.Symbol) model.Symbol {
	if sym.Market == model.MarketETF {
		sym.ETFTier = model.ETFTierT1
		for _, kw := range t0Keywords {
			if strings.Contains(sym.Name, kw) {
				sym.ETFTier = model.ETFTierT0
				break
			}
		}
		return sym
	}

	code := sym.Symbol
	switch {
	case strings.HasPrefix(code, "6"):
		sym.Market = model.MarketSH
		sym.Board = model.BoardMain
		if strings.HasPrefix(code, "688") || strings.HasPrefix(code, "689") {
			sym.Board = model.BoardSTAR
		}
	case strings.HasPrefix(code, "0"):
		sym.Market = model.MarketSZ
		sym.Board = model.BoardMain
	case strings.HasPrefix(code, "3"):
		sym.Market = model.MarketSZ
		sym.Board = model.BoardGEM
	case strings.HasPrefix(code, "43"), strings.HasPrefix(code, "83"),
		strings.HasPrefix(code, "87"), strings.HasPrefix(code, "88"):
		sym.Market = model.MarketBJ
		sym.Board = model.BoardMain
	default:
		sym.Board = model.BoardUnknown
	}
	return sym
}

// IsLOF reports whether a symbol name marks it as an LOF fund, excluded by
// default from the registry (spec §4.F).
func IsLOF(sym model.Symbol) bool {
	return lofPattern.MatchString(sym.Name)
}

// Refresh pulls the master list from source, classifies every record, and
// writes stocks:codes:all / stock_list plus the parallel ETF namespace to
// Redis (spec §4.F). LOF funds are excluded by default.
func (r *Registry) Refresh(ctx context.Context) error {
	raw, err := r.source(ctx)
	if err != nil {
		return err
	}

	var stocks, etfs []model.Symbol
	byCode := make(map[string]model.Symbol, len(raw))
	byBare := make(map[string]string, len(raw))
	for _, sym := range raw {
		if IsLOF(sym) {
			continue
		}
		classified := Classify(sym)
		byCode[classified.TSCode] = classified
		byBare[classified.Symbol] = classified.TSCode
		if classified.IsETF() {
			etfs = append(etfs, classified)
		} else {
			stocks = append(stocks, classified)
		}
	}

	r.mu.Lock()
	r.stocks = stocks
	r.etfs = etfs
	r.byCode = byCode
	r.byBare = byBare
	r.mu.Unlock()

	if r.redis == nil {
		return nil
	}

	codes := make([]string, 0, len(stocks))
	for _, s := range stocks {
		codes = append(codes, s.TSCode)
		if err := r.redis.HSet(ctx, store.KeyStockList, s.Symbol, s); err != nil {
			return err
		}
	}
	if err := r.redis.Set(ctx, store.KeyStockCodesAll, codes); err != nil {
		return err
	}

	etfCodes := make([]string, 0, len(etfs))
	for _, e := range etfs {
		etfCodes = append(etfCodes, e.TSCode)
	}
	if err := r.redis.Set(ctx, store.KeyETFCodesAll, etfCodes); err != nil {
		return err
	}

	r.log.Info().Int("stocks", len(stocks)).Int("etfs", len(etfs)).Msg("symbol registry refreshed")
	return nil
}
