package models

import "strings"

// DefaultQuoteCurrency is appended to crypto symbols that lack a quote suffix.
const DefaultQuoteCurrency = "USD"

// CryptoAliases are the bare coin codes treated as coins without a quote
// suffix. Other bare codes collide with equity tickers (SUI, ATOM, LINK)
// and must carry a "-USD" style suffix to be read as crypto.
var CryptoAliases = map[string]bool{"BTC": true, "ETH": true, "SOL": true}

// cryptoQuotes are quote currencies that mark a "BASE-QUOTE" crypto pair.
var cryptoQuotes = map[string]bool{"USD": true, "USDT": true, "USDC": true, "TWD": true}

// fiat symbols are priced at 1 in their own currency.
var fiat = map[string]bool{"USD": true, "TWD": true, "USD-USD": true}

// IsFiat reports whether sym is a cash balance priced at 1.
func IsFiat(sym string) bool {
	return fiat[strings.ToUpper(strings.TrimSpace(sym))]
}

// IsTaiwanSymbol reports whether sym carries a Taiwan exchange suffix.
func IsTaiwanSymbol(sym string) bool {
	s := strings.ToUpper(sym)
	return strings.HasSuffix(s, ".TW") || strings.HasSuffix(s, ".TWO")
}

// IsCryptoSymbol reports whether sym looks like a coin code or a coin pair.
func IsCryptoSymbol(sym string) bool {
	s := strings.ToUpper(strings.TrimSpace(sym))
	if s == "" || IsFiat(s) {
		return false
	}
	base, quote, paired := strings.Cut(s, "-")
	if CryptoAliases[base] {
		return true
	}
	return paired && cryptoQuotes[quote]
}

// NormalizeMarket maps free-form market spellings onto the three market
// tokens. ok is false for blank or unrecognised input.
func NormalizeMarket(s string) (m Market, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TW", "TWSE", "TPEX", "OTC", "TAIWAN", "台股":
		return MarketTW, true
	case "US", "USA", "NASDAQ", "NYSE", "AMEX", "美股":
		return MarketUS, true
	case "CRYPTO", "CRYPTOCURRENCY", "COIN", "加密貨幣":
		return MarketCrypto, true
	}
	return "", false
}

// NormalizeAssetType maps free-form asset type spellings onto the known types.
func NormalizeAssetType(s string) (t AssetType, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stock", "stocks", "equity", "etf", "股票":
		return AssetStock, true
	case "crypto", "cryptocurrency", "coin":
		return AssetCrypto, true
	case "other", "cash", "fiat":
		return AssetOther, true
	}
	return "", false
}

// InferMarket guesses the market of a symbol with no usable market cell.
func InferMarket(sym string) Market {
	switch {
	case IsTaiwanSymbol(sym), strings.EqualFold(strings.TrimSpace(sym), "TWD"):
		return MarketTW
	case IsCryptoSymbol(sym):
		return MarketCrypto
	default:
		return MarketUS
	}
}

// fiatMarket pins cash balances to the market of their currency, whatever
// the market cell says: TWD is TW, USD is US.
func fiatMarket(sym string) (Market, bool) {
	if !IsFiat(sym) {
		return "", false
	}
	if strings.EqualFold(strings.TrimSpace(sym), "TWD") {
		return MarketTW, true
	}
	return MarketUS, true
}

// InferAssetType derives the asset type from the market.
func InferAssetType(m Market) AssetType {
	if m == MarketCrypto {
		return AssetCrypto
	}
	return AssetStock
}

// NormalizeSymbol upper-cases sym and enforces the market suffix rules:
// crypto symbols carry a quote currency, Taiwan symbols a .TW/.TWO suffix.
// Fiat cash symbols are left untouched.
func NormalizeSymbol(sym string, m Market) string {
	s := strings.ToUpper(strings.TrimSpace(sym))
	if s == "" || IsFiat(s) {
		return s
	}
	switch m {
	case MarketCrypto:
		if !strings.Contains(s, "-") {
			s += "-" + DefaultQuoteCurrency
		}
	case MarketTW:
		if !IsTaiwanSymbol(s) {
			s += ".TW"
		}
	}
	return s
}

// Normalize fills in market and asset type when missing and enforces the
// symbol suffix rules on h.
func (h *Holding) Normalize() {
	if m, ok := fiatMarket(h.Symbol); ok {
		h.Market = m
	} else if m, ok := NormalizeMarket(string(h.Market)); ok {
		h.Market = m
	} else {
		h.Market = InferMarket(h.Symbol)
	}
	if t, ok := NormalizeAssetType(string(h.AssetType)); ok {
		h.AssetType = t
	} else if IsFiat(h.Symbol) {
		h.AssetType = AssetOther
	} else {
		h.AssetType = InferAssetType(h.Market)
	}
	h.Symbol = NormalizeSymbol(h.Symbol, h.Market)
	if h.Source == "" {
		h.Source = SourceManual
	}
}
