package tracker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"asset-tracker-go/internal/exchange"
	"asset-tracker-go/internal/models"
	"asset-tracker-go/internal/repository"
	"go.uber.org/zap"
)

// RefreshResult reports a price refresh.
type RefreshResult struct {
	Symbols int      `json:"symbols"`
	Updated int      `json:"updated"`
	Missing []string `json:"missing,omitempty"`
}

// RefreshPrices fetches the spot price of every distinct held symbol and
// stores it on each matching holding. Symbols without a price keep their
// previous one and are reported as missing.
func (s *Service) RefreshPrices(ctx context.Context) (*RefreshResult, error) {
	holdings, err := s.store.Holdings.All(ctx)
	if err != nil {
		return nil, err
	}

	var symbols []string
	seen := make(map[string]bool)
	for _, h := range holdings {
		if !seen[h.Symbol] {
			seen[h.Symbol] = true
			symbols = append(symbols, h.Symbol)
		}
	}

	res := &RefreshResult{Symbols: len(symbols)}
	if len(symbols) == 0 {
		return res, nil
	}

	prices := make(map[string]float64, len(symbols))
	for _, p := range s.prices.GetSpotPrices(ctx, symbols) {
		prices[p.Symbol] = p.Price
	}
	for _, sym := range symbols {
		if _, ok := prices[sym]; !ok {
			res.Missing = append(res.Missing, sym)
		}
	}

	nowMs := s.now().UnixMilli()
	err = s.store.RunAtomic(ctx, func(tx *repository.Store) error {
		for _, h := range holdings {
			price, ok := prices[h.Symbol]
			if !ok {
				continue
			}
			err := tx.Holdings.Update(ctx, h.ID, map[string]interface{}{
				"current_price": price,
				"last_updated":  nowMs,
			})
			if err != nil {
				return err
			}
			res.Updated++
		}
		msg := fmt.Sprintf("Refreshed %d/%d symbols", len(symbols)-len(res.Missing), len(symbols))
		if len(res.Missing) > 0 {
			msg += ", missing " + strings.Join(res.Missing, ", ")
		}
		return tx.AppendSyncLog(ctx, models.SyncSuccess, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store prices: %w", err)
	}

	s.logger.Info("Prices refreshed",
		zap.Int("symbols", res.Symbols),
		zap.Int("holdings_updated", res.Updated),
		zap.Strings("missing", res.Missing),
	)
	return res, nil
}

// VenueResult is the outcome of syncing one exchange credential.
type VenueResult struct {
	Exchange string `json:"exchange"`
	Assets   int    `json:"assets"`
	Error    string `json:"error,omitempty"`
}

// ExchangeSyncResult reports an exchange balance sync across all venues.
type ExchangeSyncResult struct {
	Venues []VenueResult `json:"venues"`
}

// Failed returns the number of venues that could not be synced.
func (r *ExchangeSyncResult) Failed() int {
	n := 0
	for _, v := range r.Venues {
		if v.Error != "" {
			n++
		}
	}
	return n
}

type fetched struct {
	cred     models.ExchangeCredential
	holdings []models.Holding
	err      error
}

// SyncExchangeBalances replaces the holdings of every configured venue with
// its current balances. Venues are fetched concurrently and fail
// independently; a failed venue keeps its previous holdings. Cost basis is
// carried forward from the previous holding with the same symbol.
func (s *Service) SyncExchangeBalances(ctx context.Context) (*ExchangeSyncResult, error) {
	creds, err := s.store.Credentials.All(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]fetched, len(creds))
	sem := make(chan struct{}, max(s.venueConcurrency, 1))
	var wg sync.WaitGroup
	for i, cred := range creds {
		wg.Add(1)
		go func(i int, cred models.ExchangeCredential) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			holdings, err := s.balances.FetchBalances(ctx, cred)
			results[i] = fetched{cred: cred, holdings: holdings, err: err}
		}(i, cred)
	}
	wg.Wait()

	out := &ExchangeSyncResult{Venues: make([]VenueResult, 0, len(results))}
	for _, r := range results {
		vr := VenueResult{Exchange: exchange.NormalizeVenue(r.cred.ExchangeName)}
		if r.err == nil {
			r.err = s.replaceVenueHoldings(ctx, r.cred, r.holdings)
		}
		if r.err != nil {
			vr.Error = r.err.Error()
			s.logger.Warn("Exchange sync failed", zap.String("exchange", vr.Exchange), zap.Error(r.err))
		} else {
			vr.Assets = len(r.holdings)
		}
		out.Venues = append(out.Venues, vr)
	}

	status := models.SyncSuccess
	if len(out.Venues) > 0 && out.Failed() == len(out.Venues) {
		status = models.SyncFailed
	}
	if err := s.store.AppendSyncLog(ctx, status, out.summary()); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ExchangeSyncResult) summary() string {
	parts := make([]string, 0, len(r.Venues))
	for _, v := range r.Venues {
		if v.Error != "" {
			parts = append(parts, fmt.Sprintf("%s failed: %s", v.Exchange, v.Error))
		} else {
			parts = append(parts, fmt.Sprintf("%s %d assets", v.Exchange, v.Assets))
		}
	}
	if len(parts) == 0 {
		return "No exchanges configured"
	}
	return "Exchange sync: " + strings.Join(parts, "; ")
}

// replaceVenueHoldings swaps the holdings of one venue for fresh ones and
// stamps the credential, in a single transaction.
func (s *Service) replaceVenueHoldings(ctx context.Context, cred models.ExchangeCredential, fresh []models.Holding) error {
	sources := venueSources(cred.ExchangeName)

	return s.store.RunAtomic(ctx, func(tx *repository.Store) error {
		costs := make(map[string]float64)
		for _, source := range sources {
			previous, err := tx.Holdings.QueryByField(ctx, "source", source)
			if err != nil {
				return err
			}
			for _, h := range previous {
				costs[strings.ToUpper(h.Symbol)] = h.CostBasis
			}
		}

		for i := range fresh {
			if cost, ok := costs[strings.ToUpper(fresh[i].Symbol)]; ok {
				fresh[i].CostBasis = cost
			}
		}

		for _, source := range sources {
			if _, err := tx.Holdings.DeleteByField(ctx, "source", source); err != nil {
				return err
			}
		}
		if err := tx.Holdings.BulkInsert(ctx, fresh); err != nil {
			return err
		}
		return tx.Credentials.Update(ctx, cred.ID, map[string]interface{}{
			"last_synced":   s.now().UnixMilli(),
			"exchange_name": exchange.NormalizeVenue(cred.ExchangeName),
		})
	})
}
