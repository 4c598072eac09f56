// Package app wires every component (spec §4.A-§4.J) into one running
// process: config/logger/store first, then the domain stack in dependency
// order, then the scheduler and HTTP/WebSocket surfaces last. This replaces
// the teacher's DI-container wiring (internal/di) with a single explicit
// constructor call graph.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/marketwatch/internal/config"
	"github.com/aristath/marketwatch/internal/fetch"
	"github.com/aristath/marketwatch/internal/kline"
	"github.com/aristath/marketwatch/internal/model"
	"github.com/aristath/marketwatch/internal/providers"
	"github.com/aristath/marketwatch/internal/quotes"
	"github.com/aristath/marketwatch/internal/registry"
	"github.com/aristath/marketwatch/internal/scheduler"
	"github.com/aristath/marketwatch/internal/server"
	"github.com/aristath/marketwatch/internal/store"
	"github.com/aristath/marketwatch/internal/strategy"
	"github.com/aristath/marketwatch/internal/ws"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StrategyNames lists every registered strategy the scheduler's
// compute_signals job and the WebSocket hub's strategy subscriptions
// recognise (spec §4.H).
var StrategyNames = []string{
	"volume_wave",
	"volume_wave_enhanced",
	"volatility_conservation",
	"trend_continuation",
}

// backfillDays is the retention window plus a ten-day margin (spec §3:
// "≈ 180 bars" retention). FullBarRefreshJob does not read it:
// scheduler.RegisterDefaultJobs gives that job kline.RetentionBars days.
const backfillDays = kline.RetentionBars + 10

// App owns every wired component and the process lifecycle.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	redis    *store.Client
	fabric   *fetch.Fabric
	registry *registry.Registry
	kline    *kline.Store
	quotes   *quotes.Service
	engine   *strategy.Engine
	sched    *scheduler.Scheduler
	hub      *ws.Hub
	http     *server.Server
}

// New constructs every component and wires them together. Nothing is
// started yet; call Run to begin serving.
func New(cfg *config.Config, log zerolog.Logger) *App {
	redisClient := store.New(store.Config{
		Addr:         redisAddr(cfg),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     cfg.RedisMaxConnections,
		DialTimeout:  cfg.RedisDialTimeout,
		ReadTimeout:  cfg.RedisReadTimeout,
		WriteTimeout: cfg.RedisWriteTimeout,
	}, log)

	tushare := providers.NewTushareAdapter(cfg.TushareToken, log)
	eastmoney := providers.NewEastmoneyAdapter(log)
	sina := providers.NewSinaAdapter(log)

	fabric := fetch.New(fetch.Options{AutoSwitch: cfg.RealtimeAutoSwitch}, log)
	fabric.Register(tushare)
	fabric.Register(eastmoney)
	fabric.Register(sina)

	// Only Tushare serves the registry master list and daily bar history
	// (spec §4.C: "only one implements DailyBars/SymbolMaster").
	reg := registry.New(redisClient, tushare.SymbolMaster, log)

	klineStore := kline.New(redisClient, backfillFunc(fabric), log)

	engine := strategy.New(redisClient, klineStore, log)

	resolve := func(code string) (string, bool) { return reg.LookupBySymbol(code) }
	universe := func() []string { return reg.BareCodes() }
	quoteSvc := quotes.New(fabric, klineStore, redisClient, resolve, universe, realtimeCandidates(cfg), cfg.RealtimeAutoSwitch, log)

	sched := scheduler.New(redisClient, log)
	if err := scheduler.RegisterDefaultJobs(sched, reg, klineStore, engine, quoteSvc, redisClient, StrategyNames, int(cfg.RealtimeUpdateInterval/time.Minute)); err != nil {
		log.Fatal().Err(err).Msg("failed to register scheduler jobs")
	}

	hub := ws.New(quoteSvc, engine, false, log)

	httpSrv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.LogLevel == "debug",
		Scheduler: &schedulerAdapter{sched: sched},
		WSHandler: hub,
	})

	return &App{
		cfg:      cfg,
		log:      log,
		redis:    redisClient,
		fabric:   fabric,
		registry: reg,
		kline:    klineStore,
		quotes:   quoteSvc,
		engine:   engine,
		sched:    sched,
		hub:      hub,
		http:     httpSrv,
	}
}

// Run starts the scheduler, the WebSocket janitor and the HTTP server, and
// blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.sched.Start(ctx, a.cfg.StartupMode)
	defer a.sched.Stop()

	janitorCtx, cancelJanitor := context.WithCancel(ctx)
	defer cancelJanitor()
	go a.hub.Janitor(janitorCtx, 30*time.Second)

	return a.http.Start(ctx)
}

// backfillFunc adapts the fetch fabric into a kline.BackfillFunc, always
// preferring Tushare since it is the only provider that serves history.
func backfillFunc(fabric *fetch.Fabric) kline.BackfillFunc {
	return func(ctx context.Context, tsCode string, days int) ([]model.Bar, error) {
		now := time.Now()
		from := now.AddDate(0, 0, -days).Format("20060102")
		to := now.Format("20060102")

		var bars []model.Bar
		_, err := fabric.CallWithFailover(ctx, providers.Tushare, nil, func(p providers.Provider) error {
			var callErr error
			bars, callErr = p.DailyBars(ctx, tsCode, from, to)
			return callErr
		})
		return bars, err
	}
}

// realtimeCandidates orders the providers the realtime quote service may
// dispatch to, honouring the operator's preferred provider first when it
// isn't "auto" (spec §6: REALTIME_DATA_PROVIDER).
func realtimeCandidates(cfg *config.Config) []providers.Name {
	all := []providers.Name{providers.Eastmoney, providers.Sina}
	switch cfg.RealtimeDataProvider {
	case config.ProviderEastmoney:
		return []providers.Name{providers.Eastmoney, providers.Sina}
	case config.ProviderSina:
		return []providers.Name{providers.Sina, providers.Eastmoney}
	default:
		return all
	}
}

// redisAddr resolves the host:port go-redis's Options.Addr expects. REDIS_URL
// (spec §6) carries a redis://... URI, not a bare host:port, so it must go
// through redis.ParseURL rather than being passed through verbatim.
func redisAddr(cfg *config.Config) string {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err == nil {
			return opts.Addr
		}
	}
	return fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort)
}

// schedulerAdapter satisfies server.SchedulerStatus, converting the
// scheduler's typed execution log into the map[string]any the HTTP layer's
// JSON envelope expects without the server package importing the scheduler's
// cron/uuid/gopsutil dependency chain.
type schedulerAdapter struct {
	sched *scheduler.Scheduler
}

func (a *schedulerAdapter) Status() map[string]any {
	out := make(map[string]any, 8)
	for name, entry := range a.sched.Status() {
		out[name] = entry
	}
	return out
}

func (a *schedulerAdapter) Mode() config.StartupMode { return a.sched.Mode() }

func (a *schedulerAdapter) TriggerManual(ctx context.Context, name string) error {
	return a.sched.TriggerManual(ctx, name)
}
