package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"asset-tracker-go/internal/database"
	"asset-tracker-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)
	return NewStore(db)
}

func TestTable_CRUD(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	// Insert
	h := models.Holding{RecordID: "r1", Symbol: "AAPL", Market: models.MarketUS, Quantity: 10, Source: models.SourceManual}
	require.NoError(t, store.Holdings.Insert(ctx, &h))
	assert.NotZero(t, h.ID)

	// BulkInsert
	batch := []models.Holding{
		{RecordID: "r2", Symbol: "BTC-USD", Market: models.MarketCrypto, Quantity: 0.5, Source: "pionex"},
		{RecordID: "r3", Symbol: "ETH-USD", Market: models.MarketCrypto, Quantity: 2, Source: "pionex"},
	}
	require.NoError(t, store.Holdings.BulkInsert(ctx, batch))
	assert.NotZero(t, batch[0].ID)
	assert.NotZero(t, batch[1].ID)

	// QueryByField
	fromPionex, err := store.Holdings.QueryByField(ctx, "source", "pionex")
	require.NoError(t, err)
	assert.Len(t, fromPionex, 2)

	// Update
	require.NoError(t, store.Holdings.Update(ctx, h.ID, map[string]interface{}{"quantity": 12.5}))
	got, err := store.Holdings.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 12.5, got.Quantity)

	assert.ErrorIs(t, store.Holdings.Update(ctx, 9999, map[string]interface{}{"quantity": 1}), ErrNotFound)

	// Delete
	require.NoError(t, store.Holdings.Delete(ctx, h.ID))
	_, err = store.Holdings.Get(ctx, h.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := store.Holdings.DeleteByField(ctx, "source", "pionex")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := store.Holdings.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_RunAtomic_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	require.NoError(t, store.Holdings.Insert(ctx, &models.Holding{RecordID: "keep", Symbol: "AAPL"}))
	require.NoError(t, store.History.Insert(ctx, &models.HistorySnapshot{Date: "2024-01-01", TotalValue: 1}))

	boom := errors.New("boom")
	err := store.RunAtomic(ctx, func(tx *Store) error {
		require.NoError(t, tx.Holdings.Clear(ctx))
		require.NoError(t, tx.History.Clear(ctx))
		require.NoError(t, tx.Holdings.Insert(ctx, &models.Holding{RecordID: "new", Symbol: "MSFT"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	holdings, err := store.Holdings.All(ctx)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "keep", holdings[0].RecordID)

	history, err := store.History.All(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestStore_RunAtomic_Nested(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	err := store.RunAtomic(ctx, func(tx *Store) error {
		return tx.RunAtomic(ctx, func(inner *Store) error {
			return inner.Holdings.Insert(ctx, &models.Holding{RecordID: "n1", Symbol: "AAPL"})
		})
	})
	require.NoError(t, err)

	n, err := store.Holdings.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_RunAtomic_SerializesWriters(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.RunAtomic(ctx, func(tx *Store) error {
				return tx.SyncLogs.Insert(ctx, &models.SyncLogEntry{Timestamp: int64(i), Status: models.SyncSuccess})
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	n, err := store.SyncLogs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
}

func TestStore_Settings(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	_, ok, err := store.GetSetting(ctx, "spreadsheet_id")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.PutSetting(ctx, "spreadsheet_id", "a"))
	require.NoError(t, store.PutSetting(ctx, "spreadsheet_id", "b"))

	v, ok, err := store.GetSetting(ctx, "spreadsheet_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	require.NoError(t, store.DeleteSetting(ctx, "spreadsheet_id"))
	_, ok, err = store.GetSetting(ctx, "spreadsheet_id")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_HistoryQueries(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.History.BulkInsert(ctx, []models.HistorySnapshot{
		{Date: "2024-01-03", TotalValue: 3},
		{Date: "2024-01-01", TotalValue: 1},
	}))

	rec, err := store.HistoryByDate(ctx, "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rec.TotalValue)

	_, err = store.HistoryByDate(ctx, "2024-01-02")
	assert.ErrorIs(t, err, ErrNotFound)

	sorted, err := store.SortedHistory(ctx)
	require.NoError(t, err)
	require.Len(t, sorted, 2)
	assert.Equal(t, "2024-01-01", sorted[0].Date)
}

func TestStore_LastSyncLog(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	_, err := store.LastSyncLog(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.AppendSyncLog(ctx, models.SyncFailed, "first"))
	require.NoError(t, store.AppendSyncLog(ctx, models.SyncSuccess, "second"))

	last, err := store.LastSyncLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", last.Message)
}
