package providers

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/aristath/marketwatch/internal/model"
	"github.com/rs/zerolog"
)

const sinaQuoteURL = "https://hq.sinajs.cn/list="

// SinaAdapter calls Sina's jsonp quote feed, which replies with
// `var hq_str_sh600519="贵州茅台,...";` lines — one per requested code.
// Codes carry an sh/sz/bj prefix that must be stripped and validated as a
// 6-digit symbol (spec §4.C).
type SinaAdapter struct {
	httpClient *http.Client
	log        zerolog.Logger
	// universe is the set of bare 6-digit symbols this adapter polls;
	// populated by the quote service from the registry before each cycle.
	universe []string
}

func NewSinaAdapter(log zerolog.Logger) *SinaAdapter {
	return &SinaAdapter{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log.With().Str("component", "provider_sina").Logger(),
	}
}

func (a *SinaAdapter) Name() Name { return Sina }

// SetUniverse configures which symbols SnapshotAllStocks/SnapshotAllETFs
// poll. Sina's feed is request-scoped (no "all stocks" endpoint), so the
// realtime quote service must supply the universe explicitly.
func (a *SinaAdapter) SetUniverse(symbols []string) {
	a.universe = symbols
}

func (a *SinaAdapter) fetch(ctx context.Context, codes []string) ([]model.Quote, error) {
	if len(codes) == 0 {
		return nil, apperr.New(apperr.ProviderEmpty, "sina.fetch", "no symbols configured")
	}

	prefixed := make([]string, 0, len(codes))
	for _, c := range codes {
		prefixed = append(prefixed, sinaPrefix(c)+c)
	}

	url := sinaQuoteURL + strings.Join(prefixed, ",")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "sina.fetch", err)
	}
	req.Header.Set("Referer", "https://finance.sina.com.cn")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderHTTP, "sina.fetch", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.ProviderHTTP, "sina.fetch", fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	now := time.Now()
	var quotes []model.Quote
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		q, ok := parseSinaLine(scanner.Text(), now)
		if !ok {
			continue
		}
		quotes = append(quotes, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ProviderParse, "sina.fetch", err)
	}
	if len(quotes) == 0 {
		return nil, apperr.New(apperr.ProviderEmpty, "sina.fetch", "no rows parsed")
	}
	return quotes, nil
}

func sinaPrefix(symbol string) string {
	switch exchangeSuffix(symbol) {
	case "SH":
		return "sh"
	case "SZ":
		return "sz"
	case "BJ":
		return "bj"
	default:
		return "sh"
	}
}

// parseSinaLine parses one `var hq_str_sh600000="...";` response line into
// a Quote. Sina's CSV fields (for A-shares) are, in order: name, open,
// pre_close, price, high, low, bid, ask, volume(shares), amount(yuan), ...
func parseSinaLine(line string, now time.Time) (model.Quote, bool) {
	eq := strings.Index(line, "=")
	if eq < 0 {
		return model.Quote{}, false
	}
	varName := line[:eq]
	start := strings.Index(line, "\"")
	end := strings.LastIndex(line, "\"")
	if start < 0 || end <= start {
		return model.Quote{}, false
	}
	body := line[start+1 : end]
	if body == "" {
		return model.Quote{}, false
	}

	rawCode := strings.TrimPrefix(strings.TrimSpace(varName), "var hq_str_")
	symbol, ok := stripExchangePrefix(rawCode)
	if !ok {
		return model.Quote{}, false
	}

	fields := strings.Split(body, ",")
	if len(fields) < 10 {
		return model.Quote{}, false
	}

	price, ok := parseFloat(fields[3])
	if !ok || price <= 0 {
		return model.Quote{}, false
	}
	openV, _ := parseFloat(fields[1])
	preClose, _ := parseFloat(fields[2])
	high, _ := parseFloat(fields[4])
	low, _ := parseFloat(fields[5])
	volume, _ := parseFloat(fields[8])
	amount, _ := parseFloat(fields[9])

	change := price - preClose
	var changePct float64
	if preClose > 0 {
		changePct = change / preClose * 100
	}

	return model.Quote{
		Code:          symbol,
		Name:          fields[0],
		Price:         price,
		Change:        change,
		ChangePercent: changePct,
		Open:          openV,
		High:          high,
		Low:           low,
		PreClose:      preClose,
		Volume:        volume,
		Amount:        amount,
		UpdateTime:    now,
	}, true
}

// SnapshotAllStocks polls the configured universe (see SetUniverse).
func (a *SinaAdapter) SnapshotAllStocks(ctx context.Context) ([]model.Quote, error) {
	return a.fetch(ctx, a.universe)
}

// SnapshotAllETFs polls the same configured universe; ETF vs stock
// filtering happens one layer up in the registry, not in this adapter.
func (a *SinaAdapter) SnapshotAllETFs(ctx context.Context) ([]model.Quote, error) {
	return a.fetch(ctx, a.universe)
}

func (a *SinaAdapter) DailyBars(ctx context.Context, tsCode, from, to string) ([]model.Bar, error) {
	return nil, apperr.New(apperr.ProviderEmpty, "sina.DailyBars", "sina adapter is realtime-only")
}

func (a *SinaAdapter) SymbolMaster(ctx context.Context) ([]model.Symbol, error) {
	return nil, apperr.New(apperr.ProviderEmpty, "sina.SymbolMaster", "sina does not serve the registry master list")
}
