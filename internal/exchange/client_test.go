package exchange

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"asset-tracker-go/internal/config"
	"asset-tracker-go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.UnixMilli(1700000000000)

func setupTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewClient(&config.Exchange{
		PionexBaseURL:  server.URL,
		BitoproBaseURL: server.URL + "/v3",
		Proxies:        []config.Proxy{{Name: "direct", Kind: "direct"}},
		Timeout:        time.Second,
		RateLimit:      1000,
		RateLimitBurst: 100,
	}, zap.NewNop())
	require.NoError(t, err)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestAggregate(t *testing.T) {
	balances := []Balance{
		{Code: "btc", Amount: decimal.RequireFromString("0.1")},
		{Code: "ETH", Amount: decimal.Zero},
		{Code: "BTC", Amount: decimal.RequireFromString("0.05")},
		{Code: "USDT", Amount: decimal.RequireFromString("12.5")},
		{Code: "ETH", Amount: decimal.Zero},
	}

	holdings := Aggregate(VenuePionex, balances, 42)

	require.Len(t, holdings, 2)
	assert.Equal(t, "pionex-btc", holdings[0].RecordID)
	assert.Equal(t, "BTC-USD", holdings[0].Symbol)
	assert.Equal(t, 0.15, holdings[0].Quantity)
	assert.Equal(t, models.MarketCrypto, holdings[0].Market)
	assert.Equal(t, models.AssetCrypto, holdings[0].AssetType)
	assert.Equal(t, VenuePionex, holdings[0].Source)
	assert.Equal(t, int64(42), holdings[0].LastUpdated)
	assert.Equal(t, "USDT-USD", holdings[1].Symbol)
}

func TestAggregate_FiatGoesToDomesticBucket(t *testing.T) {
	holdings := Aggregate(VenueBitopro, []Balance{{Code: "TWD", Amount: decimal.NewFromInt(5000)}}, 0)

	require.Len(t, holdings, 1)
	assert.Equal(t, "TWD", holdings[0].Symbol)
	assert.Equal(t, models.MarketTW, holdings[0].Market)
	assert.Equal(t, models.AssetOther, holdings[0].AssetType)
	assert.Equal(t, "bitopro-twd", holdings[0].RecordID)
}

func TestFetchBalances_Pionex(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		c := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/account/balances", r.URL.Path)
			assert.Equal(t, "1700000000000", r.URL.Query().Get("timestamp"))
			assert.Equal(t, "key", r.Header.Get("PIONEX-KEY"))
			expected := signSHA256("secret", "GET/api/v1/account/balances?timestamp=1700000000000")
			assert.Equal(t, expected, r.Header.Get("PIONEX-SIGNATURE"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"result":true,"data":{"balances":[
				{"coin":"BTC","free":"0.1","frozen":"0.05"},
				{"coin":"DOGE","free":"0","frozen":"0"}
			]}}`))
		}))

		holdings, err := c.FetchBalances(context.Background(), models.ExchangeCredential{ExchangeName: "Pionex", ApiKey: "key", ApiSecret: "secret"})

		require.NoError(t, err)
		require.Len(t, holdings, 1)
		assert.Equal(t, 0.15, holdings[0].Quantity)
		assert.Equal(t, "pionex", holdings[0].Source)
		assert.Equal(t, fixedNow.UnixMilli(), holdings[0].LastUpdated)
	})

	t.Run("Rejected", func(t *testing.T) {
		c := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"result":false,"code":"INVALID_SIGNATURE","message":"signature mismatch"}`))
		}))

		_, err := c.FetchBalances(context.Background(), models.ExchangeCredential{ExchangeName: "pionex"})

		assert.ErrorIs(t, err, ErrVenueRejected)
		assert.Contains(t, err.Error(), "signature mismatch")
	})
}

func TestFetchBalances_Bitopro(t *testing.T) {
	c := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/accounts/balance", r.URL.Path)
		payload := r.Header.Get("X-BITOPRO-PAYLOAD")
		decoded, err := base64.StdEncoding.DecodeString(payload)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"nonce":1700000000000}`, string(decoded))
		assert.Equal(t, signSHA384("secret", payload), r.Header.Get("X-BITOPRO-SIGNATURE"))
		assert.Equal(t, "key", r.Header.Get("X-BITOPRO-APIKEY"))

		_, _ = w.Write([]byte(`{"data":[
			{"currency":"twd","amount":"1000","available":"1000","stake":"0"},
			{"currency":"eth","amount":"0.5","available":"0.5","stake":"0"},
			{"currency":"btc","amount":"0","available":"0","stake":"0"}
		]}`))
	}))

	holdings, err := c.FetchBalances(context.Background(), models.ExchangeCredential{ExchangeName: "BitoPro", ApiKey: "key", ApiSecret: "secret"})

	require.NoError(t, err)
	require.Len(t, holdings, 2)
	assert.Equal(t, "TWD", holdings[0].Symbol)
	assert.Equal(t, 1000.0, holdings[0].Quantity)
	assert.Equal(t, "ETH-USD", holdings[1].Symbol)
}

func TestFetchBalances_Errors(t *testing.T) {
	c := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v3/accounts/balance" {
			_, _ = w.Write([]byte(`{"error":"Invalid API key"}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.FetchBalances(context.Background(), models.ExchangeCredential{ExchangeName: "binance"})
	assert.ErrorIs(t, err, ErrUnsupportedVenue)

	_, err = c.FetchBalances(context.Background(), models.ExchangeCredential{ExchangeName: "bitopro"})
	assert.ErrorIs(t, err, ErrVenueRejected)

	_, err = c.FetchBalances(context.Background(), models.ExchangeCredential{ExchangeName: "pionex"})
	assert.Error(t, err)
}

func TestVenueNames(t *testing.T) {
	assert.Equal(t, "bitopro", NormalizeVenue("  BitoPro "))
	legacy, ok := LegacySource("pionex")
	assert.True(t, ok)
	assert.Equal(t, "Pionex", legacy)
	assert.True(t, IsSupported("BITOPRO"))
	assert.False(t, IsSupported("kraken"))
}

func TestSign(t *testing.T) {
	// Reference vectors from RFC 4231 test case 2.
	assert.Equal(t,
		"5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		signSHA256("Jefe", "what do ya want for nothing?"))
	assert.Equal(t,
		"af45d2e376484031617f78d2b58a6b1b9c7ef464f5a01b47e42ec3736322445e8e2240ca5e69e2c78b3239ecfab21649",
		signSHA384("Jefe", "what do ya want for nothing?"))
}
