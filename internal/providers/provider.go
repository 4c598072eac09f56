// Package providers implements the uniform adapter interface over
// Tushare/Eastmoney/Sina (spec §4.C). Each adapter translates
// provider-specific, Chinese-keyed payloads into the normalised model
// types; no Chinese field name or provider quirk is visible outside this
// package.
package providers

import (
	"context"

	"github.com/aristath/marketwatch/internal/model"
)

// Name identifies a provider for stats, config and failover ordering.
type Name string

const (
	Tushare   Name = "tushare"
	Eastmoney Name = "eastmoney"
	Sina      Name = "sina"
)

// Provider is the operation set every adapter exposes. Not every provider
// implements every operation (e.g. only one implements SymbolMaster); an
// adapter that doesn't support an operation returns apperr.ProviderEmpty
// wrapped with a clear reason rather than a panic.
type Provider interface {
	Name() Name
	SnapshotAllStocks(ctx context.Context) ([]model.Quote, error)
	SnapshotAllETFs(ctx context.Context) ([]model.Quote, error)
	DailyBars(ctx context.Context, tsCode, from, to string) ([]model.Bar, error)
	SymbolMaster(ctx context.Context) ([]model.Symbol, error)
}
