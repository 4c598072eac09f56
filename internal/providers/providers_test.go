package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStripExchangePrefix(t *testing.T) {
	cases := map[string]struct {
		symbol string
		ok     bool
	}{
		"sh600000": {"600000", true},
		"sz000001": {"000001", true},
		"bj430047": {"430047", true},
		"600000":   {"600000", true},
		"sh60000":  {"", false},
		"shabcdef": {"", false},
	}
	for input, want := range cases {
		symbol, ok := stripExchangePrefix(input)
		assert.Equal(t, want.ok, ok, input)
		if want.ok {
			assert.Equal(t, want.symbol, symbol, input)
		}
	}
}

func TestExchangeSuffix(t *testing.T) {
	assert.Equal(t, "SH", exchangeSuffix("600519"))
	assert.Equal(t, "SH", exchangeSuffix("688981"))
	assert.Equal(t, "SZ", exchangeSuffix("000001"))
	assert.Equal(t, "SZ", exchangeSuffix("300750"))
	assert.Equal(t, "BJ", exchangeSuffix("430047"))
}

func TestParseSinaLine(t *testing.T) {
	now := time.Now()
	line := `var hq_str_sh600519="贵州茅台,1680.00,1675.00,1690.50,1695.00,1672.00,1690.00,1690.50,1234567,2087654321.00,100,1690.00,200,1690.50,0,0,0,0,0,0,2026-07-31,15:00:00,00,";`
	q, ok := parseSinaLine(line, now)
	assert.True(t, ok)
	assert.Equal(t, "600519", q.Code)
	assert.Equal(t, "贵州茅台", q.Name)
	assert.Equal(t, 1690.50, q.Price)
	assert.InDelta(t, 1690.50-1675.00, q.Change, 1e-9)
	assert.Equal(t, 1234567.0, q.Volume)
}

func TestParseSinaLineDropsInvalidPrefix(t *testing.T) {
	_, ok := parseSinaLine(`var hq_str_xx12345="a,1,1,1,1,1,1,1,1,1";`, time.Now())
	assert.False(t, ok)
}

func TestParseSinaLineDropsNonPositivePrice(t *testing.T) {
	_, ok := parseSinaLine(`var hq_str_sh600519="贵州茅台,0,0,0,0,0,0,0,0,0";`, time.Now())
	assert.False(t, ok)
}
