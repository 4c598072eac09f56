package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/aristath/marketwatch/internal/calendar"
	"github.com/aristath/marketwatch/internal/model"
	"github.com/rs/zerolog"
)

const tushareAPIURL = "https://api.tushare.pro"

// TushareAdapter calls Tushare's pro_api JSON-RPC style endpoint. It
// implements DailyBars and SymbolMaster; it has no realtime snapshot
// endpoint in this spec's scope so SnapshotAllStocks/SnapshotAllETFs return
// apperr.ProviderEmpty (not a panic — the fetch fabric treats that as a
// reason to fail over, per spec §4.D).
type TushareAdapter struct {
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewTushareAdapter builds a Tushare adapter. An empty token is allowed at
// construction time; every call then fails with apperr.ConfigInvalid.
func NewTushareAdapter(token string, log zerolog.Logger) *TushareAdapter {
	return &TushareAdapter{
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log.With().Str("component", "provider_tushare").Logger(),
	}
}

func (a *TushareAdapter) Name() Name { return Tushare }

type tushareRequest struct {
	APIName string         `json:"api_name"`
	Token   string         `json:"token"`
	Params  map[string]any `json:"params"`
	Fields  string         `json:"fields"`
}

type tushareResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Fields []string        `json:"fields"`
		Items  [][]interface{} `json:"items"`
	} `json:"data"`
}

func (a *TushareAdapter) call(ctx context.Context, apiName string, params map[string]any, fields string) (*tushareResponse, error) {
	if a.token == "" {
		return nil, apperr.New(apperr.ConfigInvalid, "tushare.call", "TUSHARE_TOKEN not configured")
	}

	reqBody := tushareRequest{APIName: apiName, Token: a.token, Params: params, Fields: fields}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "tushare.call", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tushareAPIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "tushare.call", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderHTTP, "tushare.call", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.ProviderHTTP, "tushare.call", fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	var out tushareResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(apperr.ProviderParse, "tushare.call", err)
	}
	if out.Code != 0 {
		return nil, apperr.New(apperr.ProviderHTTP, "tushare.call", out.Msg)
	}
	return &out, nil
}

// field indexes by name, returning -1 if absent.
func fieldIndex(fields []string, name string) int {
	for i, f := range fields {
		if f == name {
			return i
		}
	}
	return -1
}

func rowString(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	return fmt.Sprintf("%v", row[idx])
}

// DailyBars fetches daily bars via the `daily` API and normalises units:
// vol is in hands (×100 to shares), amount is in thousands of yuan (×1000).
func (a *TushareAdapter) DailyBars(ctx context.Context, tsCode, from, to string) ([]model.Bar, error) {
	resp, err := a.call(ctx, "daily", map[string]any{
		"ts_code":    tsCode,
		"start_date": from,
		"end_date":   to,
	}, "trade_date,open,high,low,close,vol,amount,pct_chg,change")
	if err != nil {
		return nil, err
	}

	fields := resp.Data.Fields
	iDate := fieldIndex(fields, "trade_date")
	iOpen := fieldIndex(fields, "open")
	iHigh := fieldIndex(fields, "high")
	iLow := fieldIndex(fields, "low")
	iClose := fieldIndex(fields, "close")
	iVol := fieldIndex(fields, "vol")
	iAmount := fieldIndex(fields, "amount")
	iPct := fieldIndex(fields, "pct_chg")
	iChg := fieldIndex(fields, "change")

	bars := make([]model.Bar, 0, len(resp.Data.Items))
	for _, row := range resp.Data.Items {
		date, err := calendar.NormaliseDate(rowString(row, iDate))
		if err != nil {
			a.log.Warn().Err(err).Msg("dropping row: unparsable trade_date")
			continue
		}
		closeV, ok := parseFloat(rowString(row, iClose))
		if !ok || closeV <= 0 {
			a.log.Warn().Str("trade_date", date).Msg("dropping row: non-positive or unparsable close")
			continue
		}
		openV, _ := parseFloat(rowString(row, iOpen))
		highV, _ := parseFloat(rowString(row, iHigh))
		lowV, _ := parseFloat(rowString(row, iLow))
		vol, _ := parseFloat(rowString(row, iVol))
		amount, _ := parseFloat(rowString(row, iAmount))
		pct, _ := parseFloat(rowString(row, iPct))
		chg, _ := parseFloat(rowString(row, iChg))

		bars = append(bars, model.Bar{
			TradeDate: date,
			Open:      openV,
			High:      highV,
			Low:       lowV,
			Close:     closeV,
			Vol:       vol * 100,    // hands -> shares
			Amount:    amount * 1000, // thousand yuan -> yuan
			PctChg:    pct,
			Change:    chg,
		})
	}
	return bars, nil
}

// SymbolMaster fetches the stock and fund basic lists and merges them into
// the registry's Symbol shape.
func (a *TushareAdapter) SymbolMaster(ctx context.Context) ([]model.Symbol, error) {
	resp, err := a.call(ctx, "stock_basic", map[string]any{"list_status": "L"},
		"ts_code,symbol,name,area,industry,market,list_date")
	if err != nil {
		return nil, err
	}

	fields := resp.Data.Fields
	iTS := fieldIndex(fields, "ts_code")
	iSym := fieldIndex(fields, "symbol")
	iName := fieldIndex(fields, "name")
	iArea := fieldIndex(fields, "area")
	iIndustry := fieldIndex(fields, "industry")
	iListDate := fieldIndex(fields, "list_date")

	symbols := make([]model.Symbol, 0, len(resp.Data.Items))
	for _, row := range resp.Data.Items {
		tsCode := rowString(row, iTS)
		symbol := rowString(row, iSym)
		if tsCode == "" || symbol == "" {
			continue
		}
		symbols = append(symbols, model.Symbol{
			TSCode:   tsCode,
			Symbol:   symbol,
			Name:     rowString(row, iName),
			Area:     rowString(row, iArea),
			Industry: rowString(row, iIndustry),
			ListDate: rowString(row, iListDate),
		})
	}

	funds, err := a.call(ctx, "fund_basic", map[string]any{"market": "E", "status": "L"}, "ts_code,name,list_date")
	if err != nil {
		return nil, err
	}
	fTS, fName, fListDate := fieldIndex(funds.Data.Fields, "ts_code"), fieldIndex(funds.Data.Fields, "name"), fieldIndex(funds.Data.Fields, "list_date")
	for _, row := range funds.Data.Items {
		if tsCode := rowString(row, fTS); len(tsCode) >= 6 {
			symbols = append(symbols, model.Symbol{
				TSCode: tsCode, Symbol: tsCode[:6], Name: rowString(row, fName),
				Market: model.MarketETF, ListDate: rowString(row, fListDate),
			})
		}
	}
	return symbols, nil
}

// SnapshotAllStocks is not offered by the Tushare pro_api surface used
// here; the fetch fabric is expected to fail over to Eastmoney/Sina.
func (a *TushareAdapter) SnapshotAllStocks(ctx context.Context) ([]model.Quote, error) {
	return nil, apperr.New(apperr.ProviderEmpty, "tushare.SnapshotAllStocks", "tushare has no realtime snapshot endpoint in scope")
}

// SnapshotAllETFs has the same limitation as SnapshotAllStocks.
func (a *TushareAdapter) SnapshotAllETFs(ctx context.Context) ([]model.Quote, error) {
	return nil, apperr.New(apperr.ProviderEmpty, "tushare.SnapshotAllETFs", "tushare has no realtime snapshot endpoint in scope")
}
