package kline

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/aristath/marketwatch/internal/model"
	"github.com/aristath/marketwatch/internal/store"
)

// Period identifies a resampling granularity derived from the stored daily
// series. Supplements spec.md §4.E with the original implementation's
// multi-period K-line feature (halower/stock_project
// app/services/stock/multi_period_kline_service.py), restricted to periods
// that can be derived from the daily bars this store already holds; the
// original's 15min/60min intraday periods need a separate intraday feed
// (AKShare minute bars) this module has no provider for and are out of
// scope (see DESIGN.md).
type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

func (p Period) ttl() time.Duration {
	if p == PeriodMonthly {
		return store.TTLMonthlyKline
	}
	return store.TTLWeeklyKline
}

// Resampled returns tsCode's daily series aggregated to period, served from
// the chart_data:period:<ts_code>:<period> cache slot when present (spec §3:
// derived artifacts live under a prefixed key with a bounded TTL, never
// stored without one).
func (s *Store) Resampled(ctx context.Context, tsCode string, period Period) (model.Series, error) {
	cacheKey := store.PeriodKlineCacheKey(tsCode, string(period))

	var cached model.Series
	err := s.redis.Get(ctx, cacheKey, &cached)
	if err == nil {
		return cached, nil
	}
	if apperr.KindOf(err) != apperr.NotFound {
		return model.Series{}, err
	}

	daily, err := s.Get(ctx, tsCode)
	if err != nil {
		return model.Series{}, err
	}

	resampled := resample(daily, period)
	if err := s.redis.SetEx(ctx, cacheKey, resampled, period.ttl()); err != nil {
		return model.Series{}, err
	}
	return resampled, nil
}

// resample aggregates consecutive daily bars sharing a bucket key (ISO week
// for PeriodWeekly, calendar month for PeriodMonthly) into one OHLCV bar per
// bucket: open from the bucket's first bar, high/low the bucket extremes,
// close from the bucket's last bar, vol/amount summed.
func resample(daily model.Series, period Period) model.Series {
	order := make([]string, 0)
	byBucket := make(map[string][]model.Bar)
	for _, b := range daily.Data {
		key := bucketKey(b.TradeDate, period)
		if _, ok := byBucket[key]; !ok {
			order = append(order, key)
		}
		byBucket[key] = append(byBucket[key], b)
	}

	out := make([]model.Bar, 0, len(order))
	for _, key := range order {
		bars := byBucket[key]
		agg := bars[0]
		for _, b := range bars[1:] {
			if b.High > agg.High {
				agg.High = b.High
			}
			if b.Low < agg.Low {
				agg.Low = b.Low
			}
			agg.Vol += b.Vol
			agg.Amount += b.Amount
			agg.Close = b.Close
		}
		agg.TradeDate = bars[len(bars)-1].TradeDate
		out = append(out, agg)
	}

	return model.Series{
		TSCode:         daily.TSCode,
		Data:           out,
		UpdatedAt:      time.Now(),
		DataCount:      len(out),
		Source:         daily.Source,
		LastUpdateType: string(period),
	}
}

func bucketKey(tradeDate string, period Period) string {
	t, err := time.Parse("2006-01-02", tradeDate)
	if err != nil {
		return tradeDate
	}
	if period == PeriodMonthly {
		return t.Format("2006-01")
	}
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
