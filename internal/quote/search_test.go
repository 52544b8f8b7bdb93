package quote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"asset-tracker-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYahooSearch(t *testing.T) {
	body := `{"quotes":[
		{"symbol":"BTC-USD","quoteType":"CRYPTOCURRENCY","shortname":"","longname":"Bitcoin USD"},
		{"symbol":"2330.TW","quoteType":"EQUITY","shortname":"TAIWAN SEMICONDUCTOR MANUFACTURING"},
		{"symbol":"VOO","quoteType":"ETF"},
		{"symbol":"VFIAX","quoteType":"MUTUALFUND","shortname":"Vanguard 500 Index Admiral"},
		{"quoteType":"EQUITY","shortname":"No symbol"}
	]}`

	results, ok := ParseYahooSearch([]byte(body))

	require.True(t, ok)
	assert.Equal(t, []SearchResult{
		{Symbol: "BTC-USD", Name: "Bitcoin USD", Market: models.MarketCrypto, Type: models.AssetCrypto},
		{Symbol: "2330.TW", Name: "TAIWAN SEMICONDUCTOR MANUFACTURING", Market: models.MarketTW, Type: models.AssetStock},
		{Symbol: "VOO", Name: "VOO", Market: models.MarketUS, Type: models.AssetStock},
	}, results)

	results, ok = ParseYahooSearch([]byte(`{"quotes":[]}`))
	assert.True(t, ok)
	assert.Empty(t, results)

	_, ok = ParseYahooSearch([]byte(`{"finance":{"error":"bad"}}`))
	assert.False(t, ok)
	_, ok = ParseYahooSearch([]byte(`<html>`))
	assert.False(t, ok)
}

func TestParseTwseSuggestions(t *testing.T) {
	body := `{"query":"23","suggestions":[
		"2330 台積電",
		"2303\t聯電\t2303",
		{"data":["3293 鈊象\t3293"],"type":"上櫃公司"},
		"(無符合之代碼或名稱)"
	]}`

	results, ok := ParseTwseSuggestions([]byte(body))

	require.True(t, ok)
	assert.Equal(t, []SearchResult{
		{Symbol: "2330.TW", Name: "台積電", Market: models.MarketTW, Type: models.AssetStock},
		{Symbol: "2303.TW", Name: "聯電", Market: models.MarketTW, Type: models.AssetStock},
		{Symbol: "3293.TWO", Name: "鈊象", Market: models.MarketTW, Type: models.AssetStock},
	}, results)

	_, ok = ParseTwseSuggestions([]byte(`{"query":"x"}`))
	assert.False(t, ok)
}

func TestSearch_TaiwanMergesBothSources(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/zh/api/codeQuery":
			assert.Equal(t, "2330", r.URL.Query().Get("query"))
			_, _ = w.Write([]byte(`{"suggestions":["2330 台積電"]}`))
		case "/v1/finance/search":
			assert.Equal(t, "2330", r.URL.Query().Get("q"))
			_, _ = w.Write([]byte(`{"quotes":[
				{"symbol":"2330.TW","quoteType":"EQUITY","shortname":"TAIWAN SEMICONDUCTOR MFG"},
				{"symbol":"TSM","quoteType":"EQUITY","shortname":"Taiwan Semiconductor"}
			]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	results, err := client.Search(context.Background(), " 2330 ", models.MarketTW)

	require.NoError(t, err)
	assert.Equal(t, []SearchResult{
		{Symbol: "2330.TW", Name: "台積電", Market: models.MarketTW, Type: models.AssetStock},
	}, results)
}

func TestSearch_RanksClosestMatchFirst(t *testing.T) {
	var exchangeHits int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/zh/api/codeQuery":
			atomic.AddInt32(&exchangeHits, 1)
			w.WriteHeader(http.StatusNotFound)
		case "/v1/finance/search":
			_, _ = w.Write([]byte(`{"quotes":[
				{"symbol":"APLE","quoteType":"EQUITY","shortname":"Apple Hospitality REIT, Inc."},
				{"symbol":"AAPL240119C00150000","quoteType":"OPTION","shortname":"AAPL Jan 2024 150 call"},
				{"symbol":"AAPL","quoteType":"EQUITY","shortname":"Apple Inc."}
			]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	results, err := client.Search(context.Background(), "apple", models.MarketUS)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "AAPL", results[0].Symbol)
	assert.Equal(t, "APLE", results[1].Symbol)
	assert.Zero(t, atomic.LoadInt32(&exchangeHits))
}

func TestSearch_UnrankedFallbackIsCapped(t *testing.T) {
	quotes := make([]string, 12)
	for i := range quotes {
		quotes[i] = fmt.Sprintf(`{"symbol":"S%d","quoteType":"EQUITY","shortname":"Name %d"}`, i, i)
	}
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"quotes":[` + strings.Join(quotes, ",") + `]}`))
	}))

	results, err := client.Search(context.Background(), "qqq", models.MarketUS)

	require.NoError(t, err)
	require.Len(t, results, unrankedLimit)
	assert.Equal(t, "S0", results[0].Symbol)
	assert.Equal(t, "S9", results[9].Symbol)
}

func TestSearch_FailingSourceIsSkipped(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/zh/api/codeQuery" {
			_, _ = w.Write([]byte(`{"suggestions":["2317 鴻海"]}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))

	results, err := client.Search(context.Background(), "鴻海", models.MarketTW)

	require.NoError(t, err)
	assert.Equal(t, []SearchResult{
		{Symbol: "2317.TW", Name: "鴻海", Market: models.MarketTW, Type: models.AssetStock},
	}, results)
}

func TestSearch_BlankQueryAndUnknownMarket(t *testing.T) {
	var hits int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))

	results, err := client.Search(context.Background(), "   ", models.MarketTW)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = client.Search(context.Background(), "aapl", models.Market("Mars"))
	assert.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&hits))
}
