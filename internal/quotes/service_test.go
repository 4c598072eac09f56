package quotes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aristath/marketwatch/internal/calendar"
	"github.com/aristath/marketwatch/internal/fetch"
	"github.com/aristath/marketwatch/internal/model"
	"github.com/aristath/marketwatch/internal/providers"
	"github.com/aristath/marketwatch/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name     providers.Name
	quotes   []model.Quote
	err      error
	calls    int
	mu       sync.Mutex
	universe []string
}

func (s *stubProvider) Name() providers.Name { return s.name }

func (s *stubProvider) SnapshotAllStocks(ctx context.Context) ([]model.Quote, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.quotes, nil
}

func (s *stubProvider) SnapshotAllETFs(ctx context.Context) ([]model.Quote, error) {
	return s.SnapshotAllStocks(ctx)
}

func (s *stubProvider) DailyBars(ctx context.Context, tsCode, from, to string) ([]model.Bar, error) {
	return nil, errors.New("unsupported")
}

func (s *stubProvider) SymbolMaster(ctx context.Context) ([]model.Symbol, error) {
	return nil, errors.New("unsupported")
}

// SetUniverse makes stubProvider satisfy the service's internal
// universeSetter interface, mirroring providers.SinaAdapter.
func (s *stubProvider) SetUniverse(symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.universe = symbols
}

type recordingMerger struct {
	mu     sync.Mutex
	merged []string
}

func (m *recordingMerger) MergeRealtime(ctx context.Context, tsCode string, quote model.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merged = append(m.merged, tsCode)
	return nil
}

func newTestRedis(t *testing.T) *store.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return store.NewFromRedis(rdb, zerolog.Nop())
}

func staticResolver(known map[string]string) SymbolResolver {
	return func(code string) (string, bool) {
		ts, ok := known[code]
		return ts, ok
	}
}

func TestSnapshotAllPersistsAndFansOutDuringTradingHours(t *testing.T) {
	now := time.Now()
	quote := model.Quote{Code: "600519", Price: 1700, UpdateTime: now}

	good := &stubProvider{name: providers.Eastmoney, quotes: []model.Quote{quote}}
	fabric := fetch.New(fetch.Options{MinInterval: time.Millisecond, AutoSwitch: true}, zerolog.Nop())
	fabric.Register(good)

	merger := &recordingMerger{}
	redisClient := newTestRedis(t)
	resolve := staticResolver(map[string]string{"600519": "600519.SH"})

	svc := New(fabric, merger, redisClient, resolve, nil, []providers.Name{providers.Eastmoney}, false, zerolog.Nop())

	result, err := svc.SnapshotAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, providers.Eastmoney, result.Source)
	assert.Len(t, result.Quotes, 1)

	cached, ok := svc.SnapshotOne("600519")
	require.True(t, ok)
	assert.Equal(t, 1700.0, cached.Price)

	var raw map[string]any
	require.NoError(t, redisClient.Get(context.Background(), store.KeyStockRealtime, &raw))
	assert.Equal(t, float64(1), raw["count"])

	merger.mu.Lock()
	defer merger.mu.Unlock()
	if calendar.IsTradingTime(result.FetchedAt) {
		assert.Equal(t, []string{"600519.SH"}, merger.merged)
	} else {
		assert.Empty(t, merger.merged)
	}
}

func TestSnapshotAllFailoverToSecondProvider(t *testing.T) {
	bad := &stubProvider{name: providers.Eastmoney, err: errors.New("http 500")}
	good := &stubProvider{name: providers.Sina, quotes: []model.Quote{{Code: "600519", Price: 10, UpdateTime: time.Now()}}}

	fabric := fetch.New(fetch.Options{MinInterval: time.Millisecond, RetryTimes: 1, AutoSwitch: true}, zerolog.Nop())
	fabric.Register(bad)
	fabric.Register(good)

	svc := New(fabric, nil, nil, nil, nil, []providers.Name{providers.Eastmoney, providers.Sina}, false, zerolog.Nop())

	result, err := svc.SnapshotAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, providers.Sina, result.Source)
	assert.Equal(t, int64(1), result.Stats[providers.Sina].Success)
	assert.GreaterOrEqual(t, result.Stats[providers.Eastmoney].Fail, int64(1))
}

func TestSnapshotAllSkipsCycleWhenAllProvidersFail(t *testing.T) {
	p1 := &stubProvider{name: providers.Eastmoney, err: errors.New("boom")}
	p2 := &stubProvider{name: providers.Sina, err: errors.New("boom")}
	fabric := fetch.New(fetch.Options{MinInterval: time.Millisecond, RetryTimes: 0, AutoSwitch: true}, zerolog.Nop())
	fabric.Register(p1)
	fabric.Register(p2)

	svc := New(fabric, nil, nil, nil, nil, []providers.Name{providers.Eastmoney, providers.Sina}, false, zerolog.Nop())

	_, err := svc.SnapshotAll(context.Background(), Options{})
	require.Error(t, err)

	_, ok := svc.SnapshotOne("600519")
	assert.False(t, ok)
}

func TestSnapshotAllDropsUnknownSymbolsFromFanout(t *testing.T) {
	quote := model.Quote{Code: "999999", Price: 1, UpdateTime: time.Now()}
	good := &stubProvider{name: providers.Eastmoney, quotes: []model.Quote{quote}}
	fabric := fetch.New(fetch.Options{MinInterval: time.Millisecond}, zerolog.Nop())
	fabric.Register(good)

	merger := &recordingMerger{}
	resolve := staticResolver(map[string]string{}) // nothing known

	svc := New(fabric, merger, nil, resolve, nil, []providers.Name{providers.Eastmoney}, false, zerolog.Nop())
	_, err := svc.SnapshotAll(context.Background(), Options{})
	require.NoError(t, err)

	merger.mu.Lock()
	defer merger.mu.Unlock()
	assert.Empty(t, merger.merged)
}

func TestSnapshotAllPushesUniverseToRequestScopedProviders(t *testing.T) {
	sina := &stubProvider{name: providers.Sina, quotes: []model.Quote{{Code: "600519", Price: 10, UpdateTime: time.Now()}}}
	fabric := fetch.New(fetch.Options{MinInterval: time.Millisecond}, zerolog.Nop())
	fabric.Register(sina)

	universe := func() []string { return []string{"600519", "000001"} }
	svc := New(fabric, nil, nil, nil, universe, []providers.Name{providers.Sina}, false, zerolog.Nop())

	_, err := svc.SnapshotAll(context.Background(), Options{})
	require.NoError(t, err)

	sina.mu.Lock()
	defer sina.mu.Unlock()
	assert.Equal(t, []string{"600519", "000001"}, sina.universe)
}
