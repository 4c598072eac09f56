package providers

import (
	"strconv"
	"strings"
)

// parseFloat parses s as a float64, tolerating thousands separators and a
// stray "%" suffix that some provider fields carry (e.g. turnover rate).
// Returns ok=false rather than an error so callers can drop the row with a
// single warning log (spec §4.C: "any row failing numeric parse ... is
// dropped with a warning and the bulk operation continues").
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "--" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// stripExchangePrefix removes Sina's sh/sz/bj prefix from a code string and
// validates the remainder is a 6-digit numeric symbol.
func stripExchangePrefix(code string) (symbol string, ok bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, prefix := range []string{"sh", "sz", "bj"} {
		if strings.HasPrefix(code, prefix) {
			code = strings.TrimPrefix(code, prefix)
			break
		}
	}
	if len(code) != 6 {
		return "", false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return code, true
}

// exchangeSuffix derives the ts_code exchange suffix from a 6-digit symbol,
// following the classification rules in spec §4.F.
func exchangeSuffix(symbol string) string {
	if len(symbol) == 0 {
		return ""
	}
	switch {
	case strings.HasPrefix(symbol, "6"):
		return "SH"
	case strings.HasPrefix(symbol, "688"), strings.HasPrefix(symbol, "689"):
		return "SH"
	case strings.HasPrefix(symbol, "0"), strings.HasPrefix(symbol, "3"):
		return "SZ"
	case strings.HasPrefix(symbol, "43"), strings.HasPrefix(symbol, "83"),
		strings.HasPrefix(symbol, "87"), strings.HasPrefix(symbol, "88"):
		return "BJ"
	default:
		return "SH"
	}
}

// tsCodeFromSymbol builds the canonical ts_code (e.g. 600000.SH) from a
// bare 6-digit symbol.
func tsCodeFromSymbol(symbol string) string {
	return symbol + "." + exchangeSuffix(symbol)
}
