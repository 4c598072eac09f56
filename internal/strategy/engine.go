package strategy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/aristath/marketwatch/internal/model"
	"github.com/aristath/marketwatch/internal/store"
	"github.com/rs/zerolog"
)

// SeriesReader is the subset of kline.Store this engine depends on,
// covering both the stock and ETF series namespaces.
type SeriesReader interface {
	Get(ctx context.Context, tsCode string) (model.Series, error)
	GetETF(ctx context.Context, tsCode string) (model.Series, error)
}

// Options controls one RecomputeAll run.
type Options struct {
	ETFOnly       bool
	ClearExisting bool
}

// Engine is the signal computation engine (spec §4.H).
type Engine struct {
	redis *store.Client
	kline SeriesReader
	log   zerolog.Logger
}

// New builds an Engine.
func New(redisClient *store.Client, kline SeriesReader, log zerolog.Logger) *Engine {
	return &Engine{redis: redisClient, kline: kline, log: log.With().Str("component", "strategy_engine").Logger()}
}

const pendingSignalsKey = store.KeyBuySignals + ":pending"

// RecomputeAll iterates strategies × universe, building the full next
// signal set off to the side and swapping it in with a single Rename so
// readers never observe a partial update (spec §4.H).
func (e *Engine) RecomputeAll(ctx context.Context, universe []model.Symbol, strategyNames []string, opts Options) error {
	if err := e.redis.Delete(ctx, pendingSignalsKey); err != nil {
		return err
	}
	if !opts.ClearExisting {
		existing, err := e.redis.HGetAll(ctx, store.KeyBuySignals)
		if err != nil {
			return err
		}
		for field, payload := range existing {
			var sig model.Signal
			if err := json.Unmarshal(payload, &sig); err != nil {
				continue
			}
			if err := e.redis.HSet(ctx, pendingSignalsKey, field, sig); err != nil {
				return err
			}
		}
	}

	total := 0
	for _, sym := range universe {
		var series model.Series
		var err error
		if opts.ETFOnly || sym.IsETF() {
			series, err = e.kline.GetETF(ctx, sym.TSCode)
		} else {
			series, err = e.kline.Get(ctx, sym.TSCode)
		}
		if err != nil {
			if apperr.KindOf(err) == apperr.NotFound {
				continue
			}
			return err
		}

		for _, name := range strategyNames {
			strat, ok := Get(name)
			if !ok {
				e.log.Warn().Str("strategy", name).Msg("unknown strategy requested, skipping")
				continue
			}
			_, signals := strat.Apply(sym, series.Data)
			for _, sig := range signals {
				field := fmt.Sprintf("%s:%s", sig.Code, sig.Strategy)
				if err := e.redis.HSet(ctx, pendingSignalsKey, field, sig); err != nil {
					return err
				}
				total++
			}
		}
	}

	pendingExists, err := e.redis.Exists(ctx, pendingSignalsKey)
	if err != nil {
		return err
	}
	if !pendingExists {
		// Nothing carried over and nothing new: an empty set is the
		// correct final state, and Redis RENAME on a missing source key
		// would error, so clear buy_signals directly instead.
		if err := e.redis.Delete(ctx, store.KeyBuySignals); err != nil {
			return err
		}
		return nil
	}
	// RENAME atomically replaces buy_signals in one step; readers never
	// observe it missing or partially populated (spec §5).
	if err := e.redis.Rename(ctx, pendingSignalsKey, store.KeyBuySignals); err != nil {
		return err
	}

	e.log.Info().Int("signals", total).Int("symbols", len(universe)).Msg("signal recompute complete")
	return nil
}

// SignalsByStrategy returns the current buy_signals entries for one
// strategy, for the WebSocket hub's PublishStrategyPrices (spec §4.J).
func (e *Engine) SignalsByStrategy(ctx context.Context, strategyName string) ([]model.Signal, error) {
	raw, err := e.redis.HGetAll(ctx, store.KeyBuySignals)
	if err != nil {
		return nil, err
	}
	out := make([]model.Signal, 0, len(raw))
	for _, payload := range raw {
		var sig model.Signal
		if err := json.Unmarshal(payload, &sig); err != nil {
			continue
		}
		if sig.Strategy == strategyName {
			out = append(out, sig)
		}
	}
	return out, nil
}

// RunMigrationCheck evicts signals belonging to strategies no longer
// registered, guarded by a 24h flag so it runs at most once per day (spec
// §4.H: "a one-shot migration check at first read ... evicts any unknown
// strategy's signals").
func (e *Engine) RunMigrationCheck(ctx context.Context) error {
	flagKey := store.MigrationFlagKey("strategy_names_check")
	done, err := e.redis.Exists(ctx, flagKey)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	known := make(map[string]bool)
	for _, n := range Names() {
		known[n] = true
	}

	raw, err := e.redis.HGetAll(ctx, store.KeyBuySignals)
	if err != nil {
		return err
	}

	var stale []string
	for field, payload := range raw {
		var sig model.Signal
		if err := json.Unmarshal(payload, &sig); err != nil {
			continue
		}
		if !known[sig.Strategy] {
			stale = append(stale, field)
		}
	}
	if len(stale) > 0 {
		if err := e.redis.HDel(ctx, store.KeyBuySignals, stale...); err != nil {
			return err
		}
		e.log.Info().Int("evicted", len(stale)).Msg("evicted signals for unregistered strategies")
	}

	return e.redis.SetEx(ctx, flagKey, true, store.TTLMigrationFlag)
}
