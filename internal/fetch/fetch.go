// Package fetch implements the rate-limited fetch fabric (spec §4.D): a
// minimum inter-call spacing per provider with jitter, retry with geometric
// back-off, per-provider success/fail counters, and "auto" provider
// selection with fail-over.
package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/aristath/marketwatch/internal/providers"
	"github.com/rs/zerolog"
)

// Stats tracks one provider's recent call history.
type Stats struct {
	Success       int64
	Fail          int64
	LastSuccessAt time.Time
}

// Options configures spacing/retry behaviour. Zero values fall back to the
// spec-mandated defaults.
type Options struct {
	MinInterval    time.Duration // default 1s, spec range 1-3s
	MaxJitter      time.Duration // default 0.5s
	RetryTimes     int           // default 3
	BackoffMin     time.Duration // default 1.5s
	BackoffMax     time.Duration // default 3.0s
	AutoSwitch     bool
}

func (o Options) withDefaults() Options {
	if o.MinInterval <= 0 {
		o.MinInterval = 1 * time.Second
	}
	if o.MaxJitter <= 0 {
		o.MaxJitter = 500 * time.Millisecond
	}
	if o.RetryTimes <= 0 {
		o.RetryTimes = 3
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 1500 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 3000 * time.Millisecond
	}
	return o
}

type providerState struct {
	mu       sync.Mutex
	lastCall time.Time
	stats    Stats
}

// Fabric wraps a set of providers.Provider adapters with spacing, retry and
// failover. One Fabric instance is shared across the process; per-provider
// state is guarded by its own mutex so concurrent callers targeting
// different providers never block each other (spec §5: "Per-provider
// rate-limit state and stats: guarded by a mutex").
type Fabric struct {
	opts      Options
	log       zerolog.Logger
	mu        sync.RWMutex
	providers map[providers.Name]providers.Provider
	state     map[providers.Name]*providerState
	rnd       *rand.Rand
	rndMu     sync.Mutex
}

// New builds a Fabric with no providers registered; call Register for each
// adapter the fetch fabric should be able to reach.
func New(opts Options, log zerolog.Logger) *Fabric {
	return &Fabric{
		opts:      opts.withDefaults(),
		log:       log.With().Str("component", "fetch_fabric").Logger(),
		providers: make(map[providers.Name]providers.Provider),
		state:     make(map[providers.Name]*providerState),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Register adds an adapter under its own Name.
func (f *Fabric) Register(p providers.Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[p.Name()] = p
	f.state[p.Name()] = &providerState{}
}

// Provider returns the registered adapter for name, for callers that need
// to reach a provider-specific method (e.g. Sina's SetUniverse) beyond the
// common Provider interface.
func (f *Fabric) Provider(name providers.Name) (providers.Provider, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.providers[name]
	return p, ok
}

// Stats returns a snapshot of one provider's counters.
func (f *Fabric) Stats(name providers.Name) Stats {
	f.mu.RLock()
	st, ok := f.state[name]
	f.mu.RUnlock()
	if !ok {
		return Stats{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.stats
}

func (f *Fabric) jitter() time.Duration {
	f.rndMu.Lock()
	defer f.rndMu.Unlock()
	return time.Duration(f.rnd.Int63n(int64(f.opts.MaxJitter) + 1))
}

func (f *Fabric) backoff(attempt int) time.Duration {
	f.rndMu.Lock()
	span := f.opts.BackoffMax - f.opts.BackoffMin
	d := f.opts.BackoffMin
	if span > 0 {
		d += time.Duration(f.rnd.Int63n(int64(span) + 1))
	}
	f.rndMu.Unlock()
	// geometric widening per retry attempt
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * 1.5)
	}
	return d
}

// waitTurn blocks until minInterval has elapsed since the provider's last
// call, plus jitter, then records the call start. This is the "pre-wait"
// step of spec §4.D.
func (ps *providerState) waitTurn(ctx context.Context, minInterval, jitter time.Duration) error {
	ps.mu.Lock()
	elapsed := time.Since(ps.lastCall)
	wait := minInterval - elapsed
	if wait < 0 {
		wait = 0
	}
	wait += jitter
	ps.lastCall = time.Now().Add(wait)
	ps.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return apperr.Wrap(apperr.Cancelled, "fetch.waitTurn", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (ps *providerState) recordResult(err error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if err == nil {
		ps.stats.Success++
		ps.stats.LastSuccessAt = time.Now()
	} else {
		ps.stats.Fail++
	}
}

// call runs fn against one named provider, honouring spacing and retrying
// up to RetryTimes with geometric back-off before giving up. The provider's
// stats record one success or one failure per call, not per attempt.
func (f *Fabric) call(ctx context.Context, name providers.Name, fn func(providers.Provider) error) error {
	f.mu.RLock()
	p, okP := f.providers[name]
	st, okS := f.state[name]
	f.mu.RUnlock()
	if !okP || !okS {
		return apperr.New(apperr.ProviderEmpty, "fetch.call", "provider not registered: "+string(name))
	}

	var lastErr error
	for attempt := 0; attempt <= f.opts.RetryTimes; attempt++ {
		if attempt > 0 {
			d := f.backoff(attempt - 1)
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return apperr.Wrap(apperr.Cancelled, "fetch.call", ctx.Err())
			case <-timer.C:
			}
		}

		if err := st.waitTurn(ctx, f.opts.MinInterval, f.jitter()); err != nil {
			return err
		}

		err := fn(p)
		if err == nil {
			st.recordResult(nil)
			return nil
		}
		lastErr = err
		if !apperr.LocalRecovery(apperr.KindOf(err)) {
			st.recordResult(err)
			return err
		}
		f.log.Warn().Err(err).Str("provider", string(name)).Int("attempt", attempt).Msg("provider call failed, retrying")
	}
	st.recordResult(lastErr)
	return apperr.WrapMsg(apperr.RateLimitExhausted, "fetch.call", "exhausted retries for "+string(name), lastErr)
}

// CallWithFailover runs fn against preferred; if preferred fails (with any
// error, once call's own retries are spent) and autoSwitch is enabled, it
// falls through fallbacks in order before surfacing the final error (spec
// §4.D / §8 property 9).
func (f *Fabric) CallWithFailover(ctx context.Context, preferred providers.Name, fallbacks []providers.Name, fn func(providers.Provider) error) (providers.Name, error) {
	order := append([]providers.Name{preferred}, fallbacks...)
	var lastErr error
	for i, name := range order {
		err := f.call(ctx, name, fn)
		if err == nil {
			return name, nil
		}
		lastErr = err
		if i == len(order)-1 || !f.opts.AutoSwitch {
			break
		}
		f.log.Warn().Err(err).Str("provider", string(name)).Msg("falling over to next provider")
	}
	return "", lastErr
}

// AutoOrder ranks candidates by recent success for "auto" provider mode,
// most successful first.
func (f *Fabric) AutoOrder(candidates []providers.Name) []providers.Name {
	ordered := make([]providers.Name, len(candidates))
	copy(ordered, candidates)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0; j-- {
			si := f.Stats(ordered[j])
			sj := f.Stats(ordered[j-1])
			if si.Success-si.Fail > sj.Success-sj.Fail {
				ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
			} else {
				break
			}
		}
	}
	return ordered
}
