// Package quotes implements the realtime quote service (spec §4.G):
// multi-provider snapshot acquisition with fail-over, caching, and the
// worker-pool fan-out that merges quotes into the K-line store's last bar.
package quotes

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/aristath/marketwatch/internal/calendar"
	"github.com/aristath/marketwatch/internal/fetch"
	"github.com/aristath/marketwatch/internal/model"
	"github.com/aristath/marketwatch/internal/providers"
	"github.com/aristath/marketwatch/internal/store"
	"github.com/rs/zerolog"
)

// FanoutQueueSize bounds the realtime-merge worker queue (spec §5:
// "when the ... fan-out queue ... exceeds its bounded size, excess symbols
// in that cycle are dropped"). The Redis stock:realtime snapshot still
// reflects the full cycle regardless.
const FanoutQueueSize = 2000

// MergeWorkers is the size of the bounded worker pool that calls
// kline.Store.MergeRealtime per quote.
const MergeWorkers = 8

// KlineMerger is the subset of kline.Store.MergeRealtime this service
// depends on, kept as an interface to avoid an import cycle and to make
// the fan-out step trivially mockable in tests.
type KlineMerger interface {
	MergeRealtime(ctx context.Context, tsCode string, quote model.Quote) error
}

// Options selects provider preference and universe scope for a snapshot.
type Options struct {
	IncludeETF        bool
	PreferredProvider providers.Name
}

// Result is the outcome of one snapshot cycle.
type Result struct {
	Quotes    []model.Quote
	Source    providers.Name
	FetchedAt time.Time
	Stats     map[providers.Name]fetch.Stats
}

// SymbolResolver maps a quote's bare code to its canonical ts_code, letting
// the merge fan-out know which series to update. Backed by
// registry.Registry.LookupBySymbol in production.
type SymbolResolver func(code string) (tsCode string, known bool)

// UniverseFunc returns the bare 6-digit codes of every symbol the realtime
// cycle should poll. Backed by registry.Registry's stock+ETF code lists in
// production.
type UniverseFunc func() []string

// universeSetter is implemented by providers whose feed is request-scoped
// rather than "all symbols" (Sina's hq.sinajs.cn list=... endpoint —
// internal/providers/sina.go), so the quote service must push the current
// universe before dispatching each cycle.
type universeSetter interface {
	SetUniverse(symbols []string)
}

// Service is the realtime quote service.
type Service struct {
	fabric     *fetch.Fabric
	kline      KlineMerger
	redis      *store.Client
	resolve    SymbolResolver
	universe   UniverseFunc
	log        zerolog.Logger
	autoSwitch bool
	candidates []providers.Name

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	quote     model.Quote
	expiresAt time.Time
}

// New builds the realtime quote service.
func New(fabric *fetch.Fabric, klineMerger KlineMerger, redisClient *store.Client, resolve SymbolResolver, universe UniverseFunc, candidates []providers.Name, autoSwitch bool, log zerolog.Logger) *Service {
	return &Service{
		fabric:     fabric,
		kline:      klineMerger,
		redis:      redisClient,
		resolve:    resolve,
		universe:   universe,
		log:        log.With().Str("component", "quote_service").Logger(),
		autoSwitch: autoSwitch,
		candidates: candidates,
		cache:      make(map[string]cacheEntry),
	}
}

// syncUniverse pushes the current registry universe to every registered
// provider that is request-scoped rather than "all symbols" (spec §4.G:
// "populated by the quote service from the registry before each cycle").
func (s *Service) syncUniverse() {
	if s.universe == nil {
		return
	}
	codes := s.universe()
	for _, name := range s.candidates {
		p, ok := s.fabric.Provider(name)
		if !ok {
			continue
		}
		if setter, ok := p.(universeSetter); ok {
			setter.SetUniverse(codes)
		}
	}
}

// SnapshotAll dispatches through the fetch fabric to one or more adapters
// per the auto-switch rules, writes stock:realtime, and — during a trading
// session only — fans out MergeRealtime calls for every quote whose
// ts_code is known (spec §4.G).
func (s *Service) SnapshotAll(ctx context.Context, opts Options) (Result, error) {
	s.syncUniverse()

	order := s.candidates
	if opts.PreferredProvider != "" {
		order = reorder(s.candidates, opts.PreferredProvider)
	} else if s.autoSwitch {
		order = s.fabric.AutoOrder(s.candidates)
	}
	if len(order) == 0 {
		return Result{}, apperr.New(apperr.ProviderEmpty, "quotes.SnapshotAll", "no providers configured")
	}

	var quotes []model.Quote
	winner, err := s.fabric.CallWithFailover(ctx, order[0], order[1:], func(p providers.Provider) error {
		var e error
		if opts.IncludeETF {
			quotes, e = p.SnapshotAllETFs(ctx)
		} else {
			quotes, e = p.SnapshotAllStocks(ctx)
		}
		return e
	})
	if err != nil {
		// Failure model (spec §4.G): a cycle that errors from all
		// providers is logged and skipped; the previous snapshot remains
		// readable until its TTL expires, and fan-out does not run.
		s.log.Warn().Err(err).Msg("snapshot cycle failed on all providers, skipping")
		return Result{}, err
	}
	if len(quotes) == 0 {
		s.log.Warn().Msg("snapshot cycle returned no quotes, skipping")
		return Result{}, apperr.New(apperr.ProviderEmpty, "quotes.SnapshotAll", "empty snapshot")
	}

	now := time.Now()
	result := Result{Quotes: quotes, Source: winner, FetchedAt: now, Stats: s.statsSnapshot()}

	if s.redis != nil {
		if err := s.redis.SetEx(ctx, store.KeyStockRealtime, map[string]any{
			"count":      len(quotes),
			"quotes":     quotes,
			"source":     winner,
			"fetched_at": now,
		}, store.TTLRealtimeSnapshot); err != nil {
			s.log.Error().Err(err).Msg("failed to persist realtime snapshot")
		}
	}

	s.refreshCache(quotes)

	if calendar.IsTradingTime(now) {
		s.fanOutMerge(ctx, quotes)
	}

	return result, nil
}

// SnapshotOne serves one symbol from the ≤5min cache populated by
// SnapshotAll, per spec §4.G ("implemented as a filtered SnapshotAll hit —
// batch is cheaper than per-symbol upstream calls").
func (s *Service) SnapshotOne(symbol string) (model.Quote, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	entry, ok := s.cache[symbol]
	if !ok || time.Now().After(entry.expiresAt) {
		return model.Quote{}, false
	}
	return entry.quote, true
}

func (s *Service) refreshCache(quotes []model.Quote) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	expiry := time.Now().Add(store.TTLRealtimeSnapshot)
	for _, q := range quotes {
		s.cache[q.Code] = cacheEntry{quote: q, expiresAt: expiry}
	}
}

func (s *Service) statsSnapshot() map[providers.Name]fetch.Stats {
	out := make(map[providers.Name]fetch.Stats, len(s.candidates))
	for _, name := range s.candidates {
		out[name] = s.fabric.Stats(name)
	}
	return out
}

// fanOutMerge drives a bounded worker pool calling kline merge for every
// quote with a known ts_code; symbols beyond FanoutQueueSize in one cycle
// are dropped (spec §5 back-pressure policy).
func (s *Service) fanOutMerge(ctx context.Context, quotes []model.Quote) {
	if s.kline == nil || s.resolve == nil {
		return
	}

	jobs := make(chan model.Quote, FanoutQueueSize)
	var wg sync.WaitGroup
	for i := 0; i < MergeWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for q := range jobs {
				tsCode, known := s.resolve(q.Code)
				if !known {
					continue
				}
				if err := s.kline.MergeRealtime(ctx, tsCode, q); err != nil {
					s.log.Warn().Err(err).Str("ts_code", tsCode).Msg("realtime merge failed")
				}
			}
		}()
	}

	dropped := 0
	for i, q := range quotes {
		if i >= FanoutQueueSize {
			dropped++
			continue
		}
		select {
		case jobs <- q:
		default:
			dropped++
		}
	}
	close(jobs)
	wg.Wait()

	if dropped > 0 {
		s.log.Warn().Int("dropped", dropped).Msg("realtime merge fan-out queue saturated, dropping excess symbols")
	}
}

func reorder(candidates []providers.Name, preferred providers.Name) []providers.Name {
	out := []providers.Name{preferred}
	for _, c := range candidates {
		if c != preferred {
			out = append(out, c)
		}
	}
	return out
}
