package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"asset-tracker-go/internal/models"
	"asset-tracker-go/internal/repository"
	"asset-tracker-go/internal/sheets"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrEmptyRemote is returned by Download when the remote Portfolio table
	// has no rows at all.
	ErrEmptyRemote = errors.New("remote portfolio is empty")
	// ErrNoValidHoldings is returned by Download when the remote Portfolio
	// table has rows but none parses into a holding.
	ErrNoValidHoldings = errors.New("remote portfolio has no valid holdings")
	// ErrSyncInProgress is returned when another Upload or Download is running.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// recordIDNamespace seeds the name-based ids given to legacy holdings.
var recordIDNamespace = uuid.MustParse("6f1d3b52-4a0e-4f1c-9f57-2f7f0d5c8a11")

// Remote is the tabular backup store.
type Remote interface {
	ResolveStore(ctx context.Context, token string) (string, error)
	ReadTable(ctx context.Context, token, storeID, table string) ([][]string, error)
	WriteTable(ctx context.Context, token, storeID, table string, rows [][]string) error
	ClearAllTables(ctx context.Context, token, storeID string) error
	HistoryTable() string
}

var _ Remote = (*sheets.Client)(nil)

// Result summarises one sync pass.
type Result struct {
	StoreID     string `json:"storeId"`
	Holdings    int    `json:"holdings"`
	Credentials int    `json:"credentials"`
	History     int    `json:"history"`
}

func (r Result) String() string {
	return fmt.Sprintf("%d holdings, %d exchanges, %d history rows", r.Holdings, r.Credentials, r.History)
}

// Orchestrator moves the local ledger to and from the remote store.
type Orchestrator struct {
	store  *repository.Store
	remote Remote
	parser Parser
	logger *zap.Logger
	mu     sync.Mutex
}

// NewOrchestrator creates an Orchestrator over store and remote.
func NewOrchestrator(store *repository.Store, remote Remote, parser Parser, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:  store,
		remote: remote,
		parser: parser,
		logger: logger.Named("syncer"),
	}
}

// LegacyRecordID derives a stable record id for a holding stored before
// record ids existed.
func LegacyRecordID(h models.Holding) string {
	return uuid.NewSHA1(recordIDNamespace, []byte(fmt.Sprintf("%d|%s", h.ID, h.Symbol))).String()
}

// Upload overwrites the remote store with the local ledger.
func (o *Orchestrator) Upload(ctx context.Context, token string) (*Result, error) {
	if !o.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer o.mu.Unlock()

	res, err := o.upload(ctx, token)
	if err != nil {
		o.logFailure(ctx, "upload", err)
		return nil, err
	}

	msg := "Uploaded " + res.String()
	if err := o.store.AppendSyncLog(ctx, models.SyncSuccess, msg); err != nil {
		o.logger.Error("Failed to append sync log", zap.Error(err))
	}
	o.logger.Info("Upload complete", zap.String("store_id", res.StoreID), zap.Int("holdings", res.Holdings))
	return res, nil
}

func (o *Orchestrator) upload(ctx context.Context, token string) (*Result, error) {
	var (
		holdings []models.Holding
		creds    []models.ExchangeCredential
		history  []models.HistorySnapshot
	)
	err := o.store.RunAtomic(ctx, func(tx *repository.Store) error {
		var err error
		if holdings, err = tx.Holdings.All(ctx); err != nil {
			return err
		}
		for i := range holdings {
			if holdings[i].RecordID != "" {
				continue
			}
			holdings[i].RecordID = LegacyRecordID(holdings[i])
			if err := tx.Holdings.Update(ctx, holdings[i].ID, map[string]interface{}{"record_id": holdings[i].RecordID}); err != nil {
				return err
			}
		}
		if creds, err = tx.Credentials.All(ctx); err != nil {
			return err
		}
		history, err = tx.SortedHistory(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load local ledger: %w", err)
	}

	storeID, err := o.remote.ResolveStore(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := o.remote.ClearAllTables(ctx, token, storeID); err != nil {
		return nil, err
	}

	tables := []struct {
		name string
		rows [][]string
	}{
		{sheets.PortfolioTable, HoldingRows(holdings)},
		{sheets.ExchangeTable, CredentialRows(creds)},
		{o.remote.HistoryTable(), HistoryRows(history)},
	}
	for _, t := range tables {
		if err := o.remote.WriteTable(ctx, token, storeID, t.name, t.rows); err != nil {
			return nil, err
		}
	}

	return &Result{StoreID: storeID, Holdings: len(holdings), Credentials: len(creds), History: len(history)}, nil
}

// Download replaces the local ledger with the remote one, merging history.
// Nothing local changes unless the whole pass succeeds.
func (o *Orchestrator) Download(ctx context.Context, token string) (*Result, error) {
	if !o.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer o.mu.Unlock()

	res, err := o.download(ctx, token)
	if err != nil {
		o.logFailure(ctx, "download", err)
		return nil, err
	}
	o.logger.Info("Download complete", zap.String("store_id", res.StoreID), zap.Int("holdings", res.Holdings))
	return res, nil
}

func (o *Orchestrator) download(ctx context.Context, token string) (*Result, error) {
	storeID, err := o.remote.ResolveStore(ctx, token)
	if err != nil {
		return nil, err
	}

	portfolio, err := o.remote.ReadTable(ctx, token, storeID, sheets.PortfolioTable)
	if err != nil {
		return nil, err
	}
	exchanges, err := o.remote.ReadTable(ctx, token, storeID, sheets.ExchangeTable)
	if err != nil {
		return nil, err
	}
	remoteHistory, err := o.remote.ReadTable(ctx, token, storeID, o.remote.HistoryTable())
	if err != nil {
		return nil, err
	}

	if len(portfolio) == 0 {
		return nil, ErrEmptyRemote
	}
	holdings := o.parser.ParseHoldings(portfolio)
	if len(holdings) == 0 {
		return nil, fmt.Errorf("%w (%d rows)", ErrNoValidHoldings, len(portfolio))
	}
	creds := o.parser.ParseCredentials(exchanges)
	parsedHistory := o.parser.ParseHistory(remoteHistory)

	res := &Result{StoreID: storeID, Holdings: len(holdings), Credentials: len(creds)}
	err = o.store.RunAtomic(ctx, func(tx *repository.Store) error {
		local, err := tx.Holdings.All(ctx)
		if err != nil {
			return err
		}
		carryPrices(holdings, local)

		localHistory, err := tx.SortedHistory(ctx)
		if err != nil {
			return err
		}
		history := MergeHistory(localHistory, parsedHistory)
		res.History = len(history)

		if err := tx.Holdings.Clear(ctx); err != nil {
			return err
		}
		if err := tx.Credentials.Clear(ctx); err != nil {
			return err
		}
		if err := tx.History.Clear(ctx); err != nil {
			return err
		}
		if err := tx.Holdings.BulkInsert(ctx, holdings); err != nil {
			return err
		}
		if err := tx.Credentials.BulkInsert(ctx, creds); err != nil {
			return err
		}
		if err := tx.History.BulkInsert(ctx, history); err != nil {
			return err
		}
		return tx.AppendSyncLog(ctx, models.SyncSuccess, "Downloaded "+res.String())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit downloaded ledger: %w", err)
	}
	return res, nil
}

// carryPrices copies the last known price of each holding from the local
// ledger, matched by record id. Prices are not part of the remote table.
func carryPrices(holdings, local []models.Holding) {
	prices := make(map[string]*float64, len(local))
	for _, h := range local {
		if h.RecordID != "" && h.CurrentPrice != nil {
			p := *h.CurrentPrice
			prices[h.RecordID] = &p
		}
	}
	for i := range holdings {
		if p, ok := prices[holdings[i].RecordID]; ok {
			holdings[i].CurrentPrice = p
		}
	}
}

func (o *Orchestrator) logFailure(ctx context.Context, op string, err error) {
	o.logger.Error("Sync failed", zap.String("operation", op), zap.Error(err))
	if logErr := o.store.AppendSyncLog(ctx, models.SyncFailed, op+": "+err.Error()); logErr != nil {
		o.logger.Error("Failed to append sync log", zap.Error(logErr))
	}
}
