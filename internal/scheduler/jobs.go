package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/aristath/marketwatch/internal/calendar"
	"github.com/aristath/marketwatch/internal/kline"
	"github.com/aristath/marketwatch/internal/model"
	"github.com/aristath/marketwatch/internal/quotes"
	"github.com/aristath/marketwatch/internal/registry"
	"github.com/aristath/marketwatch/internal/store"
	"github.com/aristath/marketwatch/internal/strategy"
	"github.com/aristath/marketwatch/internal/validation"
)

// gateComplete returns apperr.NotReady when reg hasn't satisfied the
// completeness gate (spec §4.F), which scheduler.run treats as a skip.
func gateComplete(reg *registry.Registry, caller string) error {
	if !reg.Complete() {
		return apperr.New(apperr.NotReady, caller, "symbol registry incomplete")
	}
	return nil
}

// RefreshSymbolListJob pulls the master symbol list (spec §4.I row 1).
type RefreshSymbolListJob struct {
	registry *registry.Registry
}

func NewRefreshSymbolListJob(reg *registry.Registry) *RefreshSymbolListJob {
	return &RefreshSymbolListJob{registry: reg}
}

func (RefreshSymbolListJob) Name() string    { return "refresh_symbol_list" }
func (RefreshSymbolListJob) Idempotent() bool { return true }

func (j *RefreshSymbolListJob) Run(ctx context.Context) (Result, error) {
	if err := j.registry.Refresh(ctx); err != nil {
		return Result{}, err
	}
	return Result{RowsTouched: len(j.registry.Stocks()) + len(j.registry.ETFs())}, nil
}

// FullBarRefreshJob rebuilds the K-line series universe-wide (spec §4.I
// row 2: weekday 17:30, plus Saturday any time).
type FullBarRefreshJob struct {
	registry *registry.Registry
	kline    *kline.Store
	days     int
}

func NewFullBarRefreshJob(reg *registry.Registry, k *kline.Store, days int) *FullBarRefreshJob {
	return &FullBarRefreshJob{registry: reg, kline: k, days: days}
}

func (FullBarRefreshJob) Name() string    { return "full_bar_refresh" }
func (FullBarRefreshJob) Idempotent() bool { return false }

func (j *FullBarRefreshJob) Run(ctx context.Context) (Result, error) {
	if err := gateComplete(j.registry, "FullBarRefreshJob.Run"); err != nil {
		return Result{}, err
	}

	universe := append(append([]model.Symbol{}, j.registry.Stocks()...), j.registry.ETFs()...)
	touched := 0
	for _, sym := range universe {
		if err := ctx.Err(); err != nil {
			return Result{RowsTouched: touched}, err
		}
		if err := j.kline.BackfillFromProvider(ctx, sym.TSCode, j.days); err != nil {
			continue // one bad symbol must not abort the universe-wide refresh
		}
		touched++
	}
	return Result{RowsTouched: touched}, nil
}

// SmartBarUpdateJob appends missing bars since the last update (spec §4.I
// row 3: weekday after market close). Reuses the backfill path with a
// short lookback window, relying on kline.Store.Append's merge-by-date
// semantics to make the operation a no-op for dates already stored.
type SmartBarUpdateJob struct {
	registry *registry.Registry
	kline    *kline.Store
}

func NewSmartBarUpdateJob(reg *registry.Registry, k *kline.Store) *SmartBarUpdateJob {
	return &SmartBarUpdateJob{registry: reg, kline: k}
}

func (SmartBarUpdateJob) Name() string    { return "smart_bar_update" }
func (SmartBarUpdateJob) Idempotent() bool { return false }

const smartUpdateLookbackDays = 5

func (j *SmartBarUpdateJob) Run(ctx context.Context) (Result, error) {
	if err := gateComplete(j.registry, "SmartBarUpdateJob.Run"); err != nil {
		return Result{}, err
	}

	touched := 0
	for _, sym := range j.registry.Stocks() {
		if err := ctx.Err(); err != nil {
			return Result{RowsTouched: touched}, err
		}
		exists, err := j.kline.Exists(ctx, sym.TSCode)
		if err != nil || !exists {
			continue
		}
		if err := j.kline.BackfillFromProvider(ctx, sym.TSCode, smartUpdateLookbackDays); err != nil {
			continue
		}
		touched++
	}
	return Result{RowsTouched: touched}, nil
}

// ComputeSignalsJob runs the strategy engine over the active universe
// (spec §4.I row 4: every 30 min during trading session, once at 15:30).
type ComputeSignalsJob struct {
	registry *registry.Registry
	engine   *strategy.Engine
	names    []string
}

func NewComputeSignalsJob(reg *registry.Registry, engine *strategy.Engine, names []string) *ComputeSignalsJob {
	return &ComputeSignalsJob{registry: reg, engine: engine, names: names}
}

func (ComputeSignalsJob) Name() string    { return "compute_signals" }
func (ComputeSignalsJob) Idempotent() bool { return true }

func (j *ComputeSignalsJob) Run(ctx context.Context) (Result, error) {
	if err := gateComplete(j.registry, "ComputeSignalsJob.Run"); err != nil {
		return Result{}, err
	}
	now := time.Now()
	if !calendar.IsTradingTime(now) && !(now.Hour() == 15 && now.Minute() == 30) {
		return Result{}, nil
	}
	if err := j.engine.RunMigrationCheck(ctx); err != nil {
		return Result{}, err
	}

	universe := j.registry.Stocks()
	if err := j.engine.RecomputeAll(ctx, universe, j.names, strategy.Options{ClearExisting: false}); err != nil {
		return Result{}, err
	}
	return Result{RowsTouched: len(universe)}, nil
}

// RealtimeSnapshotJob pulls quotes, fans out, and merges the last bar
// (spec §4.I row 5: every REALTIME_UPDATE_INTERVAL during trading session).
type RealtimeSnapshotJob struct {
	registry *registry.Registry
	quotes   *quotes.Service
}

func NewRealtimeSnapshotJob(reg *registry.Registry, svc *quotes.Service) *RealtimeSnapshotJob {
	return &RealtimeSnapshotJob{registry: reg, quotes: svc}
}

func (RealtimeSnapshotJob) Name() string    { return "realtime_snapshot" }
func (RealtimeSnapshotJob) Idempotent() bool { return true }

func (j *RealtimeSnapshotJob) Run(ctx context.Context) (Result, error) {
	if err := gateComplete(j.registry, "RealtimeSnapshotJob.Run"); err != nil {
		return Result{}, err
	}
	if !calendar.IsTradingTime(time.Now()) {
		return Result{}, nil
	}
	result, err := j.quotes.SnapshotAll(ctx, quotes.Options{})
	if err != nil {
		return Result{}, err
	}
	return Result{RowsTouched: len(result.Quotes)}, nil
}

// NewsCrawlJob refreshes the news:latest cache (spec §4.I row 6: every 2h
// plus one immediate run on startup). No upstream news provider is named
// in this spec's Component Design, so this job only owns the cache slot's
// lifecycle (TTL refresh); a future provider can populate it without
// touching the scheduler contract.
type NewsCrawlJob struct {
	redis *store.Client
}

func NewNewsCrawlJob(redisClient *store.Client) *NewsCrawlJob {
	return &NewsCrawlJob{redis: redisClient}
}

func (NewsCrawlJob) Name() string    { return "news_crawl" }
func (NewsCrawlJob) Idempotent() bool { return true }

func (j *NewsCrawlJob) Run(ctx context.Context) (Result, error) {
	if err := j.redis.Set(ctx, store.KeyNewsLatest, map[string]any{"refreshed_at": time.Now()}); err != nil {
		return Result{}, err
	}
	return Result{RowsTouched: 1}, nil
}

// CleanupChartsJob purges generated chart artifacts daily (spec §4.I row 7).
type CleanupChartsJob struct {
	redis *store.Client
}

func NewCleanupChartsJob(redisClient *store.Client) *CleanupChartsJob {
	return &CleanupChartsJob{redis: redisClient}
}

func (CleanupChartsJob) Name() string    { return "cleanup_charts" }
func (CleanupChartsJob) Idempotent() bool { return true }

func (j *CleanupChartsJob) Run(ctx context.Context) (Result, error) {
	if err := j.redis.FlushNamespace(ctx, "chart_data:*"); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}

// ValidationReportJob builds the market-wide data-freshness report
// (validation_report cache slot, spec §3 glossary) and persists it.
// Grounded on halower/stock_project's validate_all_stocks_data, which scans
// the whole universe and classifies each symbol by how stale its stored
// series is; this port drops the original's sampling option (sample_size)
// since this registry is small enough to classify in full every run.
type ValidationReportJob struct {
	registry *registry.Registry
	kline    *kline.Store
	redis    *store.Client
}

func NewValidationReportJob(reg *registry.Registry, k *kline.Store, redisClient *store.Client) *ValidationReportJob {
	return &ValidationReportJob{registry: reg, kline: k, redis: redisClient}
}

func (ValidationReportJob) Name() string    { return "validate_data_integrity" }
func (ValidationReportJob) Idempotent() bool { return true }

func (j *ValidationReportJob) Run(ctx context.Context) (Result, error) {
	if err := gateComplete(j.registry, "ValidationReportJob.Run"); err != nil {
		return Result{}, err
	}

	universe := append(append([]model.Symbol{}, j.registry.Stocks()...), j.registry.ETFs()...)
	report := validation.Build(ctx, j.kline, universe, time.Now())
	if err := validation.Persist(ctx, j.redis, report); err != nil {
		return Result{}, err
	}
	return Result{RowsTouched: report.Total}, nil
}

// RegisterDefaultJobs wires the 7 spec-named jobs onto their spec-mandated
// triggers (spec §4.I), plus ValidationReportJob, a supplement beyond the
// distilled spec (see SPEC_FULL.md). realtimeIntervalMinutes comes from
// config's REALTIME_UPDATE_INTERVAL.
func RegisterDefaultJobs(s *Scheduler, reg *registry.Registry, k *kline.Store, engine *strategy.Engine, qsvc *quotes.Service, redisClient *store.Client, strategyNames []string, realtimeIntervalMinutes int) error {
	if realtimeIntervalMinutes <= 0 {
		realtimeIntervalMinutes = 15
	}

	jobs := []struct {
		job   Job
		specs []string
	}{
		{NewRefreshSymbolListJob(reg), []string{"0 8 * * 1"}},
		{NewFullBarRefreshJob(reg, k, kline.RetentionBars), []string{"30 17 * * 1-5", "0 * * * 6"}},
		{NewSmartBarUpdateJob(reg, k), []string{"5 15 * * 1-5"}},
		{NewComputeSignalsJob(reg, engine, strategyNames), []string{"*/30 9-15 * * 1-5", "30 15 * * 1-5"}},
		{NewRealtimeSnapshotJob(reg, qsvc), []string{fmt.Sprintf("*/%d 9-15 * * 1-5", realtimeIntervalMinutes)}},
		{NewNewsCrawlJob(redisClient), []string{"0 */2 * * *"}},
		{NewCleanupChartsJob(redisClient), []string{"0 0 * * *"}},
		{NewValidationReportJob(reg, k, redisClient), []string{"0 7 * * 1-6"}},
	}

	for _, j := range jobs {
		if err := s.RegisterJob(j.job, j.specs...); err != nil {
			return err
		}
	}
	return nil
}
