package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/aristath/marketwatch/internal/model"
	"github.com/rs/zerolog"
)

const eastmoneyQuoteURL = "https://push2.eastmoney.com/api/qt/clist/get"

// EastmoneyAdapter wraps Eastmoney's public quote-list endpoint, the one
// AKShare itself wraps for Chinese equities/ETF realtime snapshots. Rows
// arrive as a flat array keyed by Eastmoney's f-field codes; eastmoneyFields
// maps the subset this adapter needs onto normalised English names.
type EastmoneyAdapter struct {
	httpClient *http.Client
	log        zerolog.Logger
}

func NewEastmoneyAdapter(log zerolog.Logger) *EastmoneyAdapter {
	return &EastmoneyAdapter{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log.With().Str("component", "provider_eastmoney").Logger(),
	}
}

func (a *EastmoneyAdapter) Name() Name { return Eastmoney }

// eastmoneyRow is the subset of Eastmoney's f-field payload this adapter
// consumes. f12=code, f14=name, f2=price, f4=change, f3=change_percent,
// f15=high, f16=low, f17=open, f18=pre_close, f5=volume(hands), f6=amount,
// f8=turnover_rate.
type eastmoneyRow struct {
	F2  json.Number `json:"f2"`
	F3  json.Number `json:"f3"`
	F4  json.Number `json:"f4"`
	F5  json.Number `json:"f5"`
	F6  json.Number `json:"f6"`
	F8  json.Number `json:"f8"`
	F12 string      `json:"f12"`
	F14 string      `json:"f14"`
	F15 json.Number `json:"f15"`
	F16 json.Number `json:"f16"`
	F17 json.Number `json:"f17"`
	F18 json.Number `json:"f18"`
}

type eastmoneyResponse struct {
	Data struct {
		Total int            `json:"total"`
		Diff  []eastmoneyRow `json:"diff"`
	} `json:"data"`
}

// fetch pulls one page (fs selects the market filter: stocks vs ETFs) and
// returns the raw Eastmoney rows.
func (a *EastmoneyAdapter) fetch(ctx context.Context, fs string) ([]eastmoneyRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, eastmoneyQuoteURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "eastmoney.fetch", err)
	}
	q := req.URL.Query()
	q.Set("pn", "1")
	q.Set("pz", "10000")
	q.Set("fs", fs)
	q.Set("fields", "f2,f3,f4,f5,f6,f8,f12,f14,f15,f16,f17,f18")
	req.URL.RawQuery = q.Encode()

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderHTTP, "eastmoney.fetch", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.ProviderHTTP, "eastmoney.fetch", fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	var out eastmoneyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(apperr.ProviderParse, "eastmoney.fetch", err)
	}
	if len(out.Data.Diff) == 0 {
		return nil, apperr.New(apperr.ProviderEmpty, "eastmoney.fetch", "empty snapshot")
	}
	return out.Data.Diff, nil
}

func numOr(n json.Number, fallback float64) float64 {
	f, err := n.Float64()
	if err != nil {
		return fallback
	}
	return f
}

func (a *EastmoneyAdapter) toQuotes(rows []eastmoneyRow, now time.Time) []model.Quote {
	quotes := make([]model.Quote, 0, len(rows))
	for _, r := range rows {
		price := numOr(r.F2, 0)
		if price <= 0 || r.F12 == "" {
			a.log.Warn().Str("code", r.F12).Msg("dropping row: non-positive price")
			continue
		}
		quotes = append(quotes, model.Quote{
			Code:          r.F12,
			Name:          r.F14,
			Price:         price,
			Change:        numOr(r.F4, 0),
			ChangePercent: numOr(r.F3, 0),
			Open:          numOr(r.F17, 0),
			High:          numOr(r.F15, 0),
			Low:           numOr(r.F16, 0),
			PreClose:      numOr(r.F18, 0),
			Volume:        numOr(r.F5, 0) * 100, // hands -> shares
			Amount:        numOr(r.F6, 0),
			TurnoverRate:  numOr(r.F8, 0),
			UpdateTime:    now,
		})
	}
	return quotes
}

// SnapshotAllStocks pulls every A-share listed on SH/SZ/BJ, including the
// GEM and STAR boards.
func (a *EastmoneyAdapter) SnapshotAllStocks(ctx context.Context) ([]model.Quote, error) {
	rows, err := a.fetch(ctx, "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23,m:0+t:81+s:2048")
	if err != nil {
		return nil, err
	}
	return a.toQuotes(rows, time.Now()), nil
}

// SnapshotAllETFs pulls the ETF market filter.
func (a *EastmoneyAdapter) SnapshotAllETFs(ctx context.Context) ([]model.Quote, error) {
	rows, err := a.fetch(ctx, "b:MK0021,b:MK0022,b:MK0023,b:MK0024")
	if err != nil {
		return nil, err
	}
	return a.toQuotes(rows, time.Now()), nil
}

// DailyBars is not offered by this endpoint; Eastmoney's history API is out
// of this adapter's configured scope, so the fetch fabric falls over to
// Tushare for bar history.
func (a *EastmoneyAdapter) DailyBars(ctx context.Context, tsCode, from, to string) ([]model.Bar, error) {
	return nil, apperr.New(apperr.ProviderEmpty, "eastmoney.DailyBars", "eastmoney history endpoint not wired")
}

// SymbolMaster is not implemented by this adapter (Tushare is the
// registry's master-list source, per spec §4.C "implemented by at least
// one").
func (a *EastmoneyAdapter) SymbolMaster(ctx context.Context) ([]model.Symbol, error) {
	return nil, apperr.New(apperr.ProviderEmpty, "eastmoney.SymbolMaster", "eastmoney does not serve the registry master list")
}
