package registry

import (
	"context"
	"testing"

	"github.com/aristath/marketwatch/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyBoards(t *testing.T) {
	cases := []struct {
		symbol string
		market model.Market
		board  model.Board
	}{
		{"600519", model.MarketSH, model.BoardMain},
		{"688981", model.MarketSH, model.BoardSTAR},
		{"000001", model.MarketSZ, model.BoardMain},
		{"300750", model.MarketSZ, model.BoardGEM},
		{"430047", model.MarketBJ, model.BoardMain},
	}
	for _, c := range cases {
		got := Classify(model.Symbol{Symbol: c.symbol})
		assert.Equal(t, c.market, got.Market, c.symbol)
		assert.Equal(t, c.board, got.Board, c.symbol)
	}
}

func TestClassifyETFTier(t *testing.T) {
	t0 := Classify(model.Symbol{Market: model.MarketETF, Name: "纳斯达克100ETF"})
	assert.Equal(t, model.ETFTierT0, t0.ETFTier)

	t1 := Classify(model.Symbol{Market: model.MarketETF, Name: "沪深300ETF"})
	assert.Equal(t, model.ETFTierT1, t1.ETFTier)
}

func TestIsLOF(t *testing.T) {
	assert.True(t, IsLOF(model.Symbol{Name: "黄金LOF"}))
	assert.False(t, IsLOF(model.Symbol{Name: "沪深300ETF"}))
}

func TestCompletenessGate(t *testing.T) {
	r := New(nil, nil, zerolog.Nop())
	assert.False(t, r.Complete())

	stocks := make([]model.Symbol, MinStockRecords)
	for i := range stocks {
		stocks[i] = model.Symbol{TSCode: "x", Symbol: "600000", Name: "x"}
	}
	r.mu.Lock()
	r.stocks = stocks
	r.etfs = []model.Symbol{{TSCode: "y"}}
	r.mu.Unlock()
	assert.True(t, r.Complete())
}

func TestRefreshClassifiesAndExcludesLOF(t *testing.T) {
	source := func(ctx context.Context) ([]model.Symbol, error) {
		return []model.Symbol{
			{TSCode: "600519.SH", Symbol: "600519", Name: "贵州茅台"},
			{TSCode: "LOF1.SZ", Symbol: "160216", Name: "黄金LOF"},
			{TSCode: "510300.ETF", Symbol: "510300", Name: "沪深300ETF", Market: model.MarketETF},
		}, nil
	}
	r := New(nil, source, zerolog.Nop())
	require.NoError(t, r.Refresh(context.Background()))

	assert.Len(t, r.Stocks(), 1)
	assert.Len(t, r.ETFs(), 1)
}
