// Package kline implements the K-line store (spec §4.E): per-symbol bar
// series held in Redis under stock_trend:<ts_code>, with bulk import,
// incremental append, and realtime last-bar overwrite. The store is the
// exclusive owner of series mutation — the realtime quote service may only
// submit a candidate bar through MergeRealtime.
package kline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/aristath/marketwatch/internal/calendar"
	"github.com/aristath/marketwatch/internal/model"
	"github.com/aristath/marketwatch/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// RetentionBars bounds series length (spec §3: "≈ 180 bars").
const RetentionBars = 180

// MinBarsForNewSeries is the floor below which Put refuses to create a
// brand-new series (spec §4.E): "rejects if len(bars) < 20 and the symbol
// previously had no series".
const MinBarsForNewSeries = 20

// BackfillFunc fetches bar history for a symbol, used by BackfillFromProvider.
// The kline package depends on this function type rather than the fetch/
// providers packages directly, avoiding an import cycle (internal/app
// wires the concrete implementation in).
type BackfillFunc func(ctx context.Context, tsCode string, days int) ([]model.Bar, error)

// Store is the K-line store. Per-key write serialisation (spec §5: "writes
// to stock_trend:<ts_code> are serialised") is provided by keyLocks; reads
// never block behind it except for the instant a write holds the lock.
type Store struct {
	redis    *store.Client
	log      zerolog.Logger
	keyLocks keyedMutex
	backfill singleflight.Group
	fetchFn  BackfillFunc
}

// New builds a Store. fetchFn may be nil if back-fill is not needed (e.g.
// in tests exercising Put/Append/MergeRealtime directly).
func New(redisClient *store.Client, fetchFn BackfillFunc, log zerolog.Logger) *Store {
	return &Store{
		redis:   redisClient,
		log:     log.With().Str("component", "kline_store").Logger(),
		fetchFn: fetchFn,
	}
}

// keyedMutex is a sharded-by-key lock: each ts_code gets its own *sync.Mutex,
// created lazily. This realises spec §9's "disciplined concurrent map"
// guidance for per-key serialisation without a single global lock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lockFor(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}

func seriesKey(tsCode string) string {
	return store.KlineKey(tsCode)
}

// validateBars enforces OHLC sanity (spec §4.E, §8 property 2): dropping
// (not erroring on) bars that fail the check, so a single bad upstream row
// never blocks the rest of a bulk load.
func validateBars(bars []model.Bar, log zerolog.Logger) []model.Bar {
	out := make([]model.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Close <= 0 {
			log.Warn().Str("trade_date", b.TradeDate).Msg("dropping bar: close <= 0")
			continue
		}
		if b.Vol < 0 {
			log.Warn().Str("trade_date", b.TradeDate).Msg("dropping bar: negative volume")
			continue
		}
		hi := b.High
		lo := b.Low
		maxOC := b.Open
		if b.Close > maxOC {
			maxOC = b.Close
		}
		minOC := b.Open
		if b.Close < minOC {
			minOC = b.Close
		}
		if !(lo <= minOC && minOC <= maxOC && maxOC <= hi) {
			log.Warn().Str("trade_date", b.TradeDate).Msg("dropping bar: OHLC sanity violated")
			continue
		}
		out = append(out, b)
	}
	return out
}

func sortByDate(bars []model.Bar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].TradeDate < bars[j].TradeDate })
}

func trimRetention(bars []model.Bar) []model.Bar {
	if len(bars) <= RetentionBars {
		return bars
	}
	return bars[len(bars)-RetentionBars:]
}

// Get returns the stored series for tsCode.
func (s *Store) Get(ctx context.Context, tsCode string) (model.Series, error) {
	var series model.Series
	if err := s.redis.Get(ctx, seriesKey(tsCode), &series); err != nil {
		return model.Series{}, err
	}
	return series, nil
}

// Exists reports whether a series is stored for tsCode.
func (s *Store) Exists(ctx context.Context, tsCode string) (bool, error) {
	return s.redis.Exists(ctx, seriesKey(tsCode))
}

// GetETF returns the stored series for an ETF tsCode from the parallel
// etf_trend namespace (spec §4.A).
func (s *Store) GetETF(ctx context.Context, tsCode string) (model.Series, error) {
	var series model.Series
	if err := s.redis.Get(ctx, store.ETFKlineKey(tsCode), &series); err != nil {
		return model.Series{}, err
	}
	return series, nil
}

// Put overwrites the series for tsCode with bars. It rejects the write (by
// returning an error, not panicking — "the reject is returned, not raised
// upstream of a bulk job") if bars is shorter than MinBarsForNewSeries and
// no series previously existed.
func (s *Store) Put(ctx context.Context, tsCode string, bars []model.Bar, source model.Source) error {
	lock := s.keyLocks.lockFor(tsCode)
	lock.Lock()
	defer lock.Unlock()

	clean := validateBars(bars, s.log)
	sortByDate(clean)
	clean = trimRetention(clean)

	if len(clean) < MinBarsForNewSeries {
		existed, err := s.redis.Exists(ctx, seriesKey(tsCode))
		if err != nil {
			return err
		}
		if !existed {
			return apperr.New(apperr.BadInput, "kline.Put",
				"refusing to create a new series with fewer than 20 bars")
		}
	}

	series := model.Series{
		TSCode:    tsCode,
		Data:      clean,
		UpdatedAt: time.Now(),
		DataCount: len(clean),
		Source:    source,
	}
	return s.redis.SetEx(ctx, seriesKey(tsCode), series, store.TTLKlineSeries)
}

// Append merges incoming bars into the stored series by trade_date: the
// newest incoming bar replaces the stored last bar iff same date, else is
// appended, then the front is trimmed to RetentionBars.
func (s *Store) Append(ctx context.Context, tsCode string, incoming []model.Bar, lastUpdateType string) error {
	lock := s.keyLocks.lockFor(tsCode)
	lock.Lock()
	defer lock.Unlock()

	clean := validateBars(incoming, s.log)
	if len(clean) == 0 {
		return nil
	}
	sortByDate(clean)

	var series model.Series
	err := s.redis.Get(ctx, seriesKey(tsCode), &series)
	if err != nil && apperr.KindOf(err) != apperr.NotFound {
		return err
	}
	if apperr.KindOf(err) == apperr.NotFound {
		series = model.Series{TSCode: tsCode}
	}

	byDate := make(map[string]int, len(series.Data))
	for i, b := range series.Data {
		byDate[b.TradeDate] = i
	}

	for _, b := range clean {
		if idx, ok := byDate[b.TradeDate]; ok {
			series.Data[idx] = b
		} else {
			series.Data = append(series.Data, b)
			byDate[b.TradeDate] = len(series.Data) - 1
		}
	}

	sortByDate(series.Data)
	series.Data = trimRetention(series.Data)
	series.DataCount = len(series.Data)
	series.UpdatedAt = time.Now()
	series.LastUpdateType = lastUpdateType
	if series.Source == "" {
		series.Source = model.SourceAKShare
	}

	return s.redis.SetEx(ctx, seriesKey(tsCode), series, store.TTLKlineSeries)
}

// MergeRealtime constructs a synthetic bar from a realtime quote (treating
// quote.Price as close) and applies it through Append with
// last_update_type "realtime". Callers are expected to only invoke this
// during a trading session (spec §4.E); the store itself does not gate on
// the calendar so it stays testable without a clock dependency.
func (s *Store) MergeRealtime(ctx context.Context, tsCode string, quote model.Quote) error {
	tradeDate, err := calendar.NormaliseDate(quote.UpdateTime.Format("2006-01-02"))
	if err != nil {
		return apperr.Wrap(apperr.BadInput, "kline.MergeRealtime", err)
	}

	bar := model.Bar{
		TradeDate:      tradeDate,
		Open:           quote.Open,
		High:           quote.High,
		Low:            quote.Low,
		Close:          quote.Price,
		Vol:            quote.Volume,
		Amount:         quote.Amount,
		LastUpdateType: "realtime",
	}
	// Realtime quotes sometimes omit OHLC and only carry price; widen the
	// synthetic bar's range so it never violates OHLC sanity (spec §4.E
	// invariant) while still reflecting the latest trade.
	if bar.High < bar.Close {
		bar.High = bar.Close
	}
	if bar.Low == 0 || bar.Low > bar.Close {
		bar.Low = bar.Close
	}
	if bar.Open == 0 {
		bar.Open = bar.Close
	}
	if bar.High < bar.Open {
		bar.High = bar.Open
	}
	if bar.Low > bar.Open {
		bar.Low = bar.Open
	}

	return s.Append(ctx, tsCode, []model.Bar{bar}, "realtime")
}

// BackfillFromProvider fetches `days` of history via fetchFn and Puts it.
// Concurrent callers for the same tsCode coalesce into a single upstream
// fetch (spec §4.E, §8 property 4) via singleflight.
func (s *Store) BackfillFromProvider(ctx context.Context, tsCode string, days int) error {
	if s.fetchFn == nil {
		return apperr.New(apperr.NotReady, "kline.BackfillFromProvider", "no backfill source configured")
	}

	_, err, _ := s.backfill.Do(tsCode, func() (interface{}, error) {
		bars, ferr := s.fetchFn(ctx, tsCode, days)
		if ferr != nil {
			return nil, ferr
		}
		if len(bars) < MinBarsForNewSeries {
			return nil, apperr.New(apperr.NotFound, "kline.BackfillFromProvider", "历史数据不足")
		}
		return nil, s.Put(ctx, tsCode, bars, model.SourceTushare)
	})
	return err
}
