package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"asset-tracker-go/internal/config"
	"asset-tracker-go/internal/database"
	"asset-tracker-go/internal/exchange"
	"asset-tracker-go/internal/models"
	"asset-tracker-go/internal/quote"
	"asset-tracker-go/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockPriceSource is a mock implementation of PriceSource.
type MockPriceSource struct {
	mock.Mock
}

func (m *MockPriceSource) GetSpotPrices(ctx context.Context, symbols []string) []quote.PriceResult {
	args := m.Called(ctx, symbols)
	return args.Get(0).([]quote.PriceResult)
}

func (m *MockPriceSource) ExchangeRate(ctx context.Context, base, quoteCcy string) (float64, error) {
	args := m.Called(ctx, base, quoteCcy)
	return args.Get(0).(float64), args.Error(1)
}

// MockBalanceSource is a mock implementation of BalanceSource.
type MockBalanceSource struct {
	mock.Mock
}

func (m *MockBalanceSource) FetchBalances(ctx context.Context, cred models.ExchangeCredential) ([]models.Holding, error) {
	args := m.Called(ctx, cred.ExchangeName)
	holdings, _ := args.Get(0).([]models.Holding)
	return holdings, args.Error(1)
}

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)

// setupTest creates a service over a fresh in-memory database.
func setupTest(t *testing.T) (*Service, *repository.Store, *MockPriceSource, *MockBalanceSource) {
	t.Helper()
	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)
	store := repository.NewStore(db)

	prices := new(MockPriceSource)
	balances := new(MockBalanceSource)
	svc := NewService(store, prices, balances, &config.Tracker{
		BaseCurrency:    "TWD",
		RefreshInterval: time.Minute,
		Snapshot:        true,
	}, 32.5, zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc, store, prices, balances
}

func ptr[T any](v T) *T { return &v }

func TestAddHolding(t *testing.T) {
	svc, _, _, _ := setupTest(t)
	ctx := context.Background()

	h, err := svc.AddHolding(ctx, models.Holding{Symbol: "eth", Quantity: 2, CostBasis: 2000})

	require.NoError(t, err)
	assert.NotZero(t, h.ID)
	assert.NotEmpty(t, h.RecordID)
	assert.Equal(t, "ETH-USD", h.Symbol)
	assert.Equal(t, models.MarketCrypto, h.Market)
	assert.Equal(t, models.AssetCrypto, h.AssetType)
	assert.Equal(t, models.SourceManual, h.Source)
	assert.Equal(t, testNow.UnixMilli(), h.LastUpdated)

	second, err := svc.AddHolding(ctx, models.Holding{Symbol: "2330", Market: "tw"})
	require.NoError(t, err)
	assert.Equal(t, "2330.TW", second.Symbol)
	assert.NotEqual(t, h.RecordID, second.RecordID)

	_, err = svc.AddHolding(ctx, models.Holding{Symbol: "  "})
	assert.Error(t, err)
}

func TestUpdateHolding(t *testing.T) {
	svc, store, _, _ := setupTest(t)
	ctx := context.Background()

	manual, err := svc.AddHolding(ctx, models.Holding{Symbol: "AAPL", Quantity: 1, CostBasis: 100})
	require.NoError(t, err)
	synced := models.Holding{RecordID: "pionex-btc", Symbol: "BTC-USD", Market: models.MarketCrypto, Quantity: 0.5, Source: "pionex"}
	require.NoError(t, store.Holdings.Insert(ctx, &synced))

	t.Run("ManualQuantityEditable", func(t *testing.T) {
		require.NoError(t, svc.UpdateHolding(ctx, manual.ID, HoldingPatch{Quantity: ptr(3.0), CostBasis: ptr(120.0)}))
		got, err := store.Holdings.Get(ctx, manual.ID)
		require.NoError(t, err)
		assert.Equal(t, 3.0, got.Quantity)
		assert.Equal(t, 120.0, got.CostBasis)
	})

	t.Run("ExchangeQuantityImmutable", func(t *testing.T) {
		err := svc.UpdateHolding(ctx, synced.ID, HoldingPatch{Quantity: ptr(9.0)})
		assert.ErrorIs(t, err, ErrQuantityImmutable)
	})

	t.Run("ExchangeCostEditable", func(t *testing.T) {
		require.NoError(t, svc.UpdateHolding(ctx, synced.ID, HoldingPatch{Quantity: ptr(0.5), CostBasis: ptr(42000.0)}))
		got, err := store.Holdings.Get(ctx, synced.ID)
		require.NoError(t, err)
		assert.Equal(t, 42000.0, got.CostBasis)
		assert.Equal(t, 0.5, got.Quantity)
	})

	t.Run("Missing", func(t *testing.T) {
		err := svc.UpdateHolding(ctx, 999, HoldingPatch{Name: ptr("x")})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestExchangeLifecycle(t *testing.T) {
	svc, store, _, _ := setupTest(t)
	ctx := context.Background()

	_, err := svc.AddExchange(ctx, "kraken", "k", "s")
	assert.ErrorIs(t, err, exchange.ErrUnsupportedVenue)

	cred, err := svc.AddExchange(ctx, "BitoPro", "k", "s")
	require.NoError(t, err)
	assert.Equal(t, "bitopro", cred.ExchangeName)

	require.NoError(t, store.Holdings.BulkInsert(ctx, []models.Holding{
		{RecordID: "bitopro-btc", Symbol: "BTC-USD", Source: "bitopro"},
		{RecordID: "legacy-eth", Symbol: "ETH-USD", Source: "BitoPro"},
		{RecordID: "pionex-sol", Symbol: "SOL-USD", Source: "pionex"},
		{RecordID: "manual-aapl", Symbol: "AAPL", Source: models.SourceManual},
	}))

	removed, err := svc.DeleteExchange(ctx, cred.ID)

	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	left, err := store.Holdings.All(ctx)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "pionex", left[0].Source)
	assert.Equal(t, models.SourceManual, left[1].Source)

	creds, err := svc.Exchanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestRefreshPrices(t *testing.T) {
	svc, store, prices, _ := setupTest(t)
	ctx := context.Background()

	require.NoError(t, store.Holdings.BulkInsert(ctx, []models.Holding{
		{RecordID: "a", Symbol: "AAPL", Market: models.MarketUS, Quantity: 1},
		{RecordID: "b", Symbol: "2330.TW", Market: models.MarketTW, Quantity: 1000},
		{RecordID: "c", Symbol: "AAPL", Market: models.MarketUS, Quantity: 2},
		{RecordID: "d", Symbol: "GONE", Market: models.MarketUS, Quantity: 5, CurrentPrice: ptr(7.0)},
	}))
	prices.On("GetSpotPrices", mock.Anything, []string{"AAPL", "2330.TW", "GONE"}).
		Return([]quote.PriceResult{{Symbol: "AAPL", Price: 190}, {Symbol: "2330.TW", Price: 610}})

	res, err := svc.RefreshPrices(ctx)

	require.NoError(t, err)
	assert.Equal(t, 3, res.Symbols)
	assert.Equal(t, 3, res.Updated)
	assert.Equal(t, []string{"GONE"}, res.Missing)
	prices.AssertExpectations(t)

	holdings, err := store.Holdings.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 190.0, *holdings[0].CurrentPrice)
	assert.Equal(t, 610.0, *holdings[1].CurrentPrice)
	assert.Equal(t, testNow.UnixMilli(), holdings[2].LastUpdated)
	assert.Equal(t, 7.0, *holdings[3].CurrentPrice, "missing symbol keeps its last price")

	last, err := store.LastSyncLog(ctx)
	require.NoError(t, err)
	assert.Contains(t, last.Message, "missing GONE")
}

func TestSyncExchangeBalances(t *testing.T) {
	svc, store, _, balances := setupTest(t)
	ctx := context.Background()

	require.NoError(t, store.Credentials.BulkInsert(ctx, []models.ExchangeCredential{
		{ExchangeName: "Pionex", ApiKey: "k1", ApiSecret: "s1"},
		{ExchangeName: "bitopro", ApiKey: "k2", ApiSecret: "s2"},
	}))
	require.NoError(t, store.Holdings.BulkInsert(ctx, []models.Holding{
		{RecordID: "old-btc", Symbol: "BTC-USD", Market: models.MarketCrypto, Quantity: 0.1, CostBasis: 30000, Source: "Pionex"},
		{RecordID: "pionex-doge", Symbol: "DOGE-USD", Market: models.MarketCrypto, Quantity: 100, CostBasis: 0.1, Source: "pionex"},
		{RecordID: "bitopro-eth", Symbol: "ETH-USD", Market: models.MarketCrypto, Quantity: 1, CostBasis: 2000, Source: "bitopro"},
	}))

	balances.On("FetchBalances", mock.Anything, "Pionex").Return([]models.Holding{
		{RecordID: "pionex-btc", Symbol: "BTC-USD", Market: models.MarketCrypto, AssetType: models.AssetCrypto, Quantity: 0.15, Source: "pionex"},
	}, nil)
	balances.On("FetchBalances", mock.Anything, "bitopro").Return(nil, errors.New("bitopro: signature mismatch"))

	res, err := svc.SyncExchangeBalances(ctx)

	require.NoError(t, err)
	require.Len(t, res.Venues, 2)
	assert.Equal(t, VenueResult{Exchange: "pionex", Assets: 1}, res.Venues[0])
	assert.Equal(t, "bitopro", res.Venues[1].Exchange)
	assert.Contains(t, res.Venues[1].Error, "signature mismatch")
	assert.Equal(t, 1, res.Failed())

	pionex, err := store.Holdings.QueryByField(ctx, "source", "pionex")
	require.NoError(t, err)
	require.Len(t, pionex, 1)
	assert.Equal(t, 0.15, pionex[0].Quantity, "quantity replaced")
	assert.Equal(t, 30000.0, pionex[0].CostBasis, "cost carried forward")

	legacy, err := store.Holdings.QueryByField(ctx, "source", "Pionex")
	require.NoError(t, err)
	assert.Empty(t, legacy)

	bitopro, err := store.Holdings.QueryByField(ctx, "source", "bitopro")
	require.NoError(t, err)
	require.Len(t, bitopro, 1, "failed venue keeps its holdings")

	creds, err := store.Credentials.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pionex", creds[0].ExchangeName)
	assert.Equal(t, testNow.UnixMilli(), creds[0].LastSynced)
	assert.Zero(t, creds[1].LastSynced)

	last, err := store.LastSyncLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SyncSuccess, last.Status)
}

func TestSyncExchangeBalances_AllFail(t *testing.T) {
	svc, store, _, balances := setupTest(t)
	ctx := context.Background()
	require.NoError(t, store.Credentials.Insert(ctx, &models.ExchangeCredential{ExchangeName: "pionex", ApiKey: "k", ApiSecret: "s"}))
	balances.On("FetchBalances", mock.Anything, "pionex").Return(nil, errors.New("timeout"))

	res, err := svc.SyncExchangeBalances(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed())
	last, err := store.LastSyncLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SyncFailed, last.Status)

	assert.Error(t, ExchangeSyncTask{Service: svc}.Run(ctx))
}
