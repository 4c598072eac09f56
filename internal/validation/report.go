// Package validation implements the data-freshness report that spec.md §3's
// glossary names as a cache slot ("chart JSON, validation report, AI
// report") but the distillation never describes how to build: every known
// symbol's stored K-line series is classified by how stale it is relative
// to the most recent trading close, the boundary logic grounded on
// halower/stock_project's
// app/services/data/data_validation_service.py
// (check_stock_data_integrity_by_updated_at / validate_all_stocks_data).
package validation

import (
	"context"
	"time"

	"github.com/aristath/marketwatch/internal/model"
	"github.com/aristath/marketwatch/internal/store"
)

// Status classifies one symbol's data freshness.
type Status string

const (
	StatusUpToDate        Status = "up_to_date"
	StatusNeedIncremental Status = "need_incremental"
	StatusNeedFullUpdate  Status = "need_full_update"
	StatusNoData          Status = "no_data"
)

// SymbolReport is one symbol's entry in a Report.
type SymbolReport struct {
	TSCode        string    `json:"ts_code"`
	Status        Status    `json:"status"`
	LastUpdatedAt time.Time `json:"last_updated_at,omitempty"`
}

// Report is the market-wide data-freshness snapshot persisted to the
// validation_report cache slot.
type Report struct {
	GeneratedAt     time.Time      `json:"generated_at"`
	Total           int            `json:"total"`
	UpToDate        int            `json:"up_to_date"`
	NeedIncremental int            `json:"need_incremental"`
	NeedFullUpdate  int            `json:"need_full_update"`
	NoData          int            `json:"no_data"`
	Symbols         []SymbolReport `json:"symbols"`
}

// SeriesSource is the subset of kline.Store this report depends on, kept as
// an interface to avoid a dependency cycle (kline already depends on
// store, not the other way around).
type SeriesSource interface {
	Get(ctx context.Context, tsCode string) (model.Series, error)
	GetETF(ctx context.Context, tsCode string) (model.Series, error)
}

// classify applies the original's three-way boundary: updated at or after
// today's 15:00 close needs nothing; updated between yesterday's and
// today's 15:00 close needs an incremental catch-up; anything older needs a
// full refresh.
func classify(now, updatedAt time.Time) Status {
	today15 := time.Date(now.Year(), now.Month(), now.Day(), 15, 0, 0, 0, now.Location())
	yesterday15 := today15.AddDate(0, 0, -1)
	switch {
	case !updatedAt.Before(today15):
		return StatusUpToDate
	case !updatedAt.Before(yesterday15):
		return StatusNeedIncremental
	default:
		return StatusNeedFullUpdate
	}
}

// Build classifies every symbol in universe against kline and returns the
// aggregate report as of now.
func Build(ctx context.Context, kline SeriesSource, universe []model.Symbol, now time.Time) Report {
	report := Report{GeneratedAt: now, Symbols: make([]SymbolReport, 0, len(universe))}

	for _, sym := range universe {
		var (
			series model.Series
			err    error
		)
		if sym.IsETF() {
			series, err = kline.GetETF(ctx, sym.TSCode)
		} else {
			series, err = kline.Get(ctx, sym.TSCode)
		}

		sr := SymbolReport{TSCode: sym.TSCode}
		if err != nil || series.UpdatedAt.IsZero() {
			sr.Status = StatusNoData
			report.NoData++
		} else {
			sr.Status = classify(now, series.UpdatedAt)
			sr.LastUpdatedAt = series.UpdatedAt
			switch sr.Status {
			case StatusUpToDate:
				report.UpToDate++
			case StatusNeedIncremental:
				report.NeedIncremental++
			case StatusNeedFullUpdate:
				report.NeedFullUpdate++
			}
		}

		report.Total++
		report.Symbols = append(report.Symbols, sr)
	}

	return report
}

// Persist writes report to the validation_report cache slot with its
// bounded TTL (spec §3: no derivation is stored without one).
func Persist(ctx context.Context, redis *store.Client, report Report) error {
	return redis.SetEx(ctx, store.KeyValidationReport, report, store.TTLValidationReport)
}
