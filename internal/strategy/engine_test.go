package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/aristath/marketwatch/internal/model"
	"github.com/aristath/marketwatch/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSeriesReader struct {
	bySymbol map[string]model.Series
}

func (f *fakeSeriesReader) Get(ctx context.Context, tsCode string) (model.Series, error) {
	s, ok := f.bySymbol[tsCode]
	if !ok {
		return model.Series{}, apperr.New(apperr.NotFound, "fake.Get", tsCode)
	}
	return s, nil
}

func (f *fakeSeriesReader) GetETF(ctx context.Context, tsCode string) (model.Series, error) {
	return f.Get(ctx, tsCode)
}

func newTestRedis(t *testing.T) *store.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return store.NewFromRedis(rdb, zerolog.Nop())
}

func TestRecomputeAllWritesSignalsAndSkipsMissingSeries(t *testing.T) {
	redisClient := newTestRedis(t)
	reader := &fakeSeriesReader{bySymbol: map[string]model.Series{
		"600519.SH": {TSCode: "600519.SH", Data: syntheticBars(120, 60)},
	}}
	e := New(redisClient, reader, zerolog.Nop())

	universe := []model.Symbol{
		{TSCode: "600519.SH", Symbol: "600519", Name: "贵州茅台"},
		{TSCode: "000001.SZ", Symbol: "000001", Name: "no series"},
	}

	ctx := context.Background()
	require.NoError(t, e.RecomputeAll(ctx, universe, []string{"volume_wave"}, Options{ClearExisting: true}))

	raw, err := redisClient.HGetAll(ctx, store.KeyBuySignals)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	for field := range raw {
		assert.Contains(t, field, "600519")
	}
}

func TestRecomputeAllPreservesOtherUniverseWhenNotClearing(t *testing.T) {
	redisClient := newTestRedis(t)
	ctx := context.Background()
	require.NoError(t, redisClient.HSet(ctx, store.KeyBuySignals, "000001:trend_continuation", model.Signal{
		Code: "000001", Strategy: "trend_continuation", SignalType: model.SignalBuy, SignalDate: "2026-01-01",
	}))

	reader := &fakeSeriesReader{bySymbol: map[string]model.Series{
		"600519.SH": {TSCode: "600519.SH", Data: syntheticBars(120, 60)},
	}}
	e := New(redisClient, reader, zerolog.Nop())
	universe := []model.Symbol{{TSCode: "600519.SH", Symbol: "600519"}}

	require.NoError(t, e.RecomputeAll(ctx, universe, []string{"volume_wave"}, Options{ClearExisting: false}))

	raw, err := redisClient.HGetAll(ctx, store.KeyBuySignals)
	require.NoError(t, err)
	_, stillThere := raw["000001:trend_continuation"]
	assert.True(t, stillThere)
}

func TestRunMigrationCheckEvictsUnknownStrategy(t *testing.T) {
	redisClient := newTestRedis(t)
	ctx := context.Background()
	require.NoError(t, redisClient.HSet(ctx, store.KeyBuySignals, "600519:defunct_strategy", model.Signal{
		Code: "600519", Strategy: "defunct_strategy", SignalType: model.SignalBuy, CalculatedTime: time.Now(),
	}))
	require.NoError(t, redisClient.HSet(ctx, store.KeyBuySignals, "600519:volume_wave", model.Signal{
		Code: "600519", Strategy: "volume_wave", SignalType: model.SignalBuy, CalculatedTime: time.Now(),
	}))

	e := New(redisClient, &fakeSeriesReader{bySymbol: map[string]model.Series{}}, zerolog.Nop())
	require.NoError(t, e.RunMigrationCheck(ctx))

	raw, err := redisClient.HGetAll(ctx, store.KeyBuySignals)
	require.NoError(t, err)
	_, stale := raw["600519:defunct_strategy"]
	_, kept := raw["600519:volume_wave"]
	assert.False(t, stale)
	assert.True(t, kept)

	// second run is a no-op (guarded by the 24h flag)
	require.NoError(t, redisClient.HSet(ctx, store.KeyBuySignals, "600519:defunct_strategy", model.Signal{
		Code: "600519", Strategy: "defunct_strategy",
	}))
	require.NoError(t, e.RunMigrationCheck(ctx))
	raw, _ = redisClient.HGetAll(ctx, store.KeyBuySignals)
	_, stillThere := raw["600519:defunct_strategy"]
	assert.True(t, stillThere)
}
