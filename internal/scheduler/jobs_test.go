package scheduler

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/aristath/marketwatch/internal/kline"
	"github.com/aristath/marketwatch/internal/model"
	"github.com/aristath/marketwatch/internal/registry"
	"github.com/aristath/marketwatch/internal/store"
	"github.com/aristath/marketwatch/internal/validation"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJobTestRedis(t *testing.T) *store.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return store.NewFromRedis(rdb, zerolog.Nop())
}

func emptyRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	return registry.New(newJobTestRedis(t), func(ctx context.Context) ([]model.Symbol, error) {
		return nil, nil
	}, zerolog.Nop())
}

func TestRefreshSymbolListJobRefreshesRegistry(t *testing.T) {
	redisClient := newJobTestRedis(t)
	source := func(ctx context.Context) ([]model.Symbol, error) {
		out := make([]model.Symbol, 0, 5001)
		for i := 0; i < 5000; i++ {
			out = append(out, model.Symbol{TSCode: "STK", Symbol: "600000", Name: "stock"})
		}
		out = append(out, model.Symbol{TSCode: "ETF1.SH", Symbol: "510300", Name: "ETF", Market: model.MarketETF})
		return out, nil
	}
	reg := registry.New(redisClient, source, zerolog.Nop())
	job := NewRefreshSymbolListJob(reg)

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Greater(t, result.RowsTouched, 0)
	assert.True(t, reg.Complete())
}

func TestComputeSignalsJobSkipsWhenRegistryIncomplete(t *testing.T) {
	reg := emptyRegistry(t)
	job := NewComputeSignalsJob(reg, nil, []string{"volume_wave"})

	_, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.NotReady, apperr.KindOf(err))
}

func TestRealtimeSnapshotJobSkipsWhenRegistryIncomplete(t *testing.T) {
	reg := emptyRegistry(t)
	job := NewRealtimeSnapshotJob(reg, nil)

	_, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.NotReady, apperr.KindOf(err))
}

func TestNewsCrawlJobWritesCacheSlot(t *testing.T) {
	redisClient := newJobTestRedis(t)
	job := NewNewsCrawlJob(redisClient)

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowsTouched)

	exists, err := redisClient.Exists(context.Background(), store.KeyNewsLatest)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestValidationReportJobSkipsWhenRegistryIncomplete(t *testing.T) {
	reg := emptyRegistry(t)
	job := NewValidationReportJob(reg, nil, nil)

	_, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.NotReady, apperr.KindOf(err))
}

func TestValidationReportJobPersistsReport(t *testing.T) {
	redisClient := newJobTestRedis(t)
	source := func(ctx context.Context) ([]model.Symbol, error) {
		out := make([]model.Symbol, 0, 5001)
		for i := 0; i < 5000; i++ {
			out = append(out, model.Symbol{TSCode: "STK", Symbol: "600000", Name: "stock"})
		}
		out = append(out, model.Symbol{TSCode: "ETF1.SH", Symbol: "510300", Name: "ETF", Market: model.MarketETF})
		return out, nil
	}
	reg := registry.New(redisClient, source, zerolog.Nop())
	require.NoError(t, reg.Refresh(context.Background()))
	kstore := kline.New(redisClient, nil, zerolog.Nop())

	job := NewValidationReportJob(reg, kstore, redisClient)
	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5001, result.RowsTouched)

	var report validation.Report
	require.NoError(t, redisClient.Get(context.Background(), store.KeyValidationReport, &report))
	assert.Equal(t, 5001, report.NoData)
}

func TestCleanupChartsJobFlushesNamespace(t *testing.T) {
	redisClient := newJobTestRedis(t)
	require.NoError(t, redisClient.Set(context.Background(), "chart_data:600519.SH", "x"))

	job := NewCleanupChartsJob(redisClient)
	_, err := job.Run(context.Background())
	require.NoError(t, err)

	exists, err := redisClient.Exists(context.Background(), "chart_data:600519.SH")
	require.NoError(t, err)
	assert.False(t, exists)
}
