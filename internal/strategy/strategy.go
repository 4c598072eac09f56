package strategy

import (
	"github.com/aristath/marketwatch/internal/model"
)

// EnrichedBar pairs a bar with the named indicator values computed for it,
// the "bars_with_indicators" output named in spec §4.H.
type EnrichedBar struct {
	model.Bar
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// Strategy is the operation every named strategy exposes. Implementations
// never mutate the store; they operate over an in-memory tabular view of
// the series and are read by RecomputeAll.
type Strategy interface {
	Name() string
	Apply(symbol model.Symbol, bars []model.Bar) ([]EnrichedBar, []model.Signal)
}

// registry is the compile-time strategy registry (spec §9 redesign flag:
// "replace runtime reflection with a compile-time registry; each strategy
// registers itself into a map via an init hook").
var registry = map[string]Strategy{}

func register(s Strategy) {
	registry[s.Name()] = s
}

// Get returns the named strategy, if registered.
func Get(name string) (Strategy, bool) {
	s, ok := registry[name]
	return s, ok
}

// Names returns every registered strategy name.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

func init() {
	register(&VolumeWave{})
	register(&VolumeWaveEnhanced{})
	register(&VolatilityConservation{})
	register(&TrendContinuation{})
}
