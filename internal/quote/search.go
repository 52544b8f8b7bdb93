package quote

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"unicode"

	"asset-tracker-go/internal/models"
	"asset-tracker-go/internal/relay"
	"github.com/PaesslerAG/jsonpath"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"
)

// unrankedLimit caps the result list when no candidate matches the query
// closely enough to be ranked.
const unrankedLimit = 10

// searchQuoteTypes are the upstream instrument kinds offered as holdings.
var searchQuoteTypes = map[string]bool{"EQUITY": true, "ETF": true, "CRYPTOCURRENCY": true}

// SearchResult is one instrument matching a symbol search.
type SearchResult struct {
	Symbol string           `json:"symbol"`
	Name   string           `json:"name"`
	Market models.Market    `json:"market"`
	Type   models.AssetType `json:"type"`
}

// Search looks up instruments by code or name. Taiwan searches combine the
// exchange's own code lookup with the general search feed; other markets use
// the general feed only. Results are de-duplicated by symbol and ordered by
// how closely symbol or name matches query. A failing source contributes no
// results and is not an error.
func (c *Client) Search(ctx context.Context, query string, market models.Market) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	m, ok := models.NormalizeMarket(string(market))
	if !ok {
		return nil, fmt.Errorf("unknown market %q", market)
	}

	var results []SearchResult
	if m == models.MarketTW {
		var twse, yahoo []SearchResult
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			twse = c.searchTwse(ctx, query)
		}()
		go func() {
			defer wg.Done()
			yahoo = c.searchYahoo(ctx, query)
		}()
		wg.Wait()
		results = append(twse, yahoo...)
	} else {
		results = c.searchYahoo(ctx, query)
	}

	return rankResults(query, dedupe(results)), nil
}

func (c *Client) searchTwse(ctx context.Context, query string) []SearchResult {
	u := c.twseSearchURL + "/zh/api/codeQuery?query=" + url.QueryEscape(query)
	results, err := relay.Get(ctx, c.chain, relay.Request{URL: u}, ParseTwseSuggestions)
	if err != nil {
		c.logger.Debug("Exchange code search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	return results
}

func (c *Client) searchYahoo(ctx context.Context, query string) []SearchResult {
	q := url.Values{}
	q.Set("q", query)
	q.Set("quotesCount", "15")
	q.Set("newsCount", "0")
	results, err := relay.Get(ctx, c.chain, relay.Request{URL: c.yahooBaseURL + "/v1/finance/search?" + q.Encode()}, ParseYahooSearch)
	if err != nil {
		c.logger.Debug("Search feed failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	return results
}

// ParseYahooSearch extracts equities, funds and coins from a search feed
// body. The market follows the symbol suffix and quote type.
func ParseYahooSearch(body []byte) ([]SearchResult, bool) {
	doc, ok := decode(body)
	if !ok {
		return nil, false
	}
	v, err := jsonpath.Get("$.quotes", doc)
	if err != nil {
		return nil, false
	}
	quotes, ok := v.([]interface{})
	if !ok {
		return nil, false
	}

	results := make([]SearchResult, 0, len(quotes))
	for _, item := range quotes {
		q, _ := item.(map[string]interface{})
		symbol, _ := q["symbol"].(string)
		quoteType, _ := q["quoteType"].(string)
		if symbol == "" || !searchQuoteTypes[quoteType] {
			continue
		}

		r := SearchResult{Symbol: symbol, Type: models.AssetStock, Market: models.MarketUS}
		switch {
		case models.IsTaiwanSymbol(symbol):
			r.Market = models.MarketTW
		case quoteType == "CRYPTOCURRENCY":
			r.Market, r.Type = models.MarketCrypto, models.AssetCrypto
		}
		for _, key := range []string{"shortname", "longname"} {
			if name, _ := q[key].(string); name != "" {
				r.Name = name
				break
			}
		}
		if r.Name == "" {
			r.Name = symbol
		}
		results = append(results, r)
	}
	return results, true
}

// ParseTwseSuggestions reads the exchange code lookup. Suggestions are
// "<code> <name>" strings, or groups {data: [...], type: ...} where an OTC
// group type marks .TWO codes. The no-match placeholder is skipped.
func ParseTwseSuggestions(body []byte) ([]SearchResult, bool) {
	doc, ok := decode(body)
	if !ok {
		return nil, false
	}
	v, err := jsonpath.Get("$.suggestions", doc)
	if err != nil {
		return nil, false
	}
	suggestions, ok := v.([]interface{})
	if !ok {
		return nil, false
	}

	var results []SearchResult
	add := func(s string, otc bool) {
		if r, ok := parseSuggestion(s, otc); ok {
			results = append(results, r)
		}
	}
	for _, item := range suggestions {
		switch s := item.(type) {
		case string:
			add(s, false)
		case map[string]interface{}:
			kind, _ := s["type"].(string)
			otc := strings.Contains(kind, "上櫃")
			data, _ := s["data"].([]interface{})
			for _, d := range data {
				if str, ok := d.(string); ok {
					add(str, otc)
				}
			}
		}
	}
	return results, true
}

func parseSuggestion(s string, otc bool) (SearchResult, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 || !isCode(fields[0]) {
		return SearchResult{}, false
	}
	code, rest := fields[0], fields[1:]
	if n := len(rest); n > 0 && rest[n-1] == code {
		rest = rest[:n-1]
	}

	suffix := ".TW"
	if otc {
		suffix = ".TWO"
	}
	name := strings.Join(rest, " ")
	if name == "" {
		name = code
	}
	return SearchResult{Symbol: code + suffix, Name: name, Market: models.MarketTW, Type: models.AssetStock}, true
}

func isCode(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsDigit(r) || unicode.IsLetter(r)) {
			return false
		}
	}
	return s != ""
}

func dedupe(results []SearchResult) []SearchResult {
	seen := make(map[string]bool, len(results))
	out := results[:0]
	for _, r := range results {
		key := strings.ToUpper(r.Symbol)
		if !seen[key] {
			seen[key] = true
			out = append(out, r)
		}
	}
	return out
}

// rankResults keeps the results whose symbol or name fuzzily contains query,
// closest first. When nothing matches, the first unrankedLimit results are
// returned in source order.
func rankResults(query string, results []SearchResult) []SearchResult {
	type scored struct {
		SearchResult
		distance int
	}
	var matched []scored
	for _, r := range results {
		best := -1
		for _, target := range []string{r.Symbol, r.Name} {
			if d := fuzzy.RankMatchNormalizedFold(query, target); d >= 0 && (best < 0 || d < best) {
				best = d
			}
		}
		if best >= 0 {
			matched = append(matched, scored{r, best})
		}
	}

	if len(matched) == 0 {
		return results[:min(len(results), unrankedLimit)]
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].distance < matched[j].distance })
	out := make([]SearchResult, len(matched))
	for i, m := range matched {
		out[i] = m.SearchResult
	}
	return out
}
