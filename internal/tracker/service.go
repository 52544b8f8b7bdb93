package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"asset-tracker-go/internal/config"
	"asset-tracker-go/internal/exchange"
	"asset-tracker-go/internal/models"
	"asset-tracker-go/internal/quote"
	"asset-tracker-go/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrQuantityImmutable is returned when editing the quantity of a holding
// owned by an exchange adapter.
var ErrQuantityImmutable = errors.New("quantity of exchange-synced holding cannot be edited")

// PriceSource resolves spot prices and FX rates.
type PriceSource interface {
	GetSpotPrices(ctx context.Context, symbols []string) []quote.PriceResult
	ExchangeRate(ctx context.Context, base, quote string) (float64, error)
}

// BalanceSource fetches holding candidates from an exchange account.
type BalanceSource interface {
	FetchBalances(ctx context.Context, cred models.ExchangeCredential) ([]models.Holding, error)
}

var (
	_ PriceSource   = (*quote.Client)(nil)
	_ BalanceSource = (*exchange.Client)(nil)
)

// Service implements the ledger operations: holding and exchange management,
// price refresh, exchange balance sync, valuation and daily snapshots.
type Service struct {
	store    *repository.Store
	prices   PriceSource
	balances BalanceSource
	cfg      config.Tracker
	fallback float64
	logger   *zap.Logger
	now      func() time.Time

	// venueConcurrency bounds parallel exchange fetches.
	venueConcurrency int
}

// NewService creates a Service. fallbackRate is the USD/TWD rate used when
// no live rate can be fetched.
func NewService(store *repository.Store, prices PriceSource, balances BalanceSource, cfg *config.Tracker, fallbackRate float64, logger *zap.Logger) *Service {
	return &Service{
		store:            store,
		prices:           prices,
		balances:         balances,
		cfg:              *cfg,
		fallback:         fallbackRate,
		logger:           logger.Named("tracker"),
		now:              time.Now,
		venueConcurrency: 3,
	}
}

// Holdings returns every holding in insertion order.
func (s *Service) Holdings(ctx context.Context) ([]models.Holding, error) {
	return s.store.Holdings.All(ctx)
}

// AddHolding stores a manually entered holding. The record id, market, type
// and symbol suffix are filled in when missing.
func (s *Service) AddHolding(ctx context.Context, h models.Holding) (*models.Holding, error) {
	h.ID = 0
	if strings.TrimSpace(h.Symbol) == "" {
		return nil, errors.New("symbol is required")
	}
	if h.RecordID == "" {
		h.RecordID = uuid.NewString()
	}
	if h.Source == "" {
		h.Source = models.SourceManual
	}
	h.Normalize()
	if h.Name == "" {
		h.Name = h.Symbol
	}
	h.LastUpdated = s.now().UnixMilli()

	if err := s.store.Holdings.Insert(ctx, &h); err != nil {
		return nil, fmt.Errorf("failed to add holding %s: %w", h.Symbol, err)
	}
	s.logger.Info("Added holding", zap.String("symbol", h.Symbol), zap.String("record_id", h.RecordID))
	return &h, nil
}

// HoldingPatch lists the user-editable fields of a holding. Nil fields are
// left unchanged.
type HoldingPatch struct {
	Name      *string
	Quantity  *float64
	CostBasis *float64
}

// UpdateHolding applies patch to the holding with the given id.
func (s *Service) UpdateHolding(ctx context.Context, id uint, patch HoldingPatch) error {
	return s.store.RunAtomic(ctx, func(tx *repository.Store) error {
		h, err := tx.Holdings.Get(ctx, id)
		if err != nil {
			return err
		}

		changes := map[string]interface{}{}
		if patch.Quantity != nil && *patch.Quantity != h.Quantity {
			if h.IsExchangeSourced() {
				return fmt.Errorf("%w: %s from %s", ErrQuantityImmutable, h.Symbol, h.Source)
			}
			changes["quantity"] = *patch.Quantity
		}
		if patch.CostBasis != nil {
			changes["cost_basis"] = *patch.CostBasis
		}
		if patch.Name != nil {
			changes["name"] = *patch.Name
		}
		if len(changes) == 0 {
			return nil
		}
		changes["last_updated"] = s.now().UnixMilli()
		return tx.Holdings.Update(ctx, id, changes)
	})
}

// DeleteHolding removes the holding with the given id.
func (s *Service) DeleteHolding(ctx context.Context, id uint) error {
	return s.store.Holdings.Delete(ctx, id)
}

// Exchanges returns the configured exchange credentials.
func (s *Service) Exchanges(ctx context.Context) ([]models.ExchangeCredential, error) {
	return s.store.Credentials.All(ctx)
}

// AddExchange stores a credential for a supported venue.
func (s *Service) AddExchange(ctx context.Context, name, apiKey, apiSecret string) (*models.ExchangeCredential, error) {
	if !exchange.IsSupported(name) {
		return nil, fmt.Errorf("%w: %q", exchange.ErrUnsupportedVenue, name)
	}
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New("api key and secret are required")
	}

	cred := models.ExchangeCredential{
		ExchangeName: exchange.NormalizeVenue(name),
		ApiKey:       apiKey,
		ApiSecret:    apiSecret,
	}
	if err := s.store.Credentials.Insert(ctx, &cred); err != nil {
		return nil, fmt.Errorf("failed to add exchange: %w", err)
	}
	return &cred, nil
}

// DeleteExchange removes a credential and every holding its venue owns,
// including holdings tagged with the legacy capitalised venue name.
func (s *Service) DeleteExchange(ctx context.Context, id uint) (int64, error) {
	var removed int64
	err := s.store.RunAtomic(ctx, func(tx *repository.Store) error {
		cred, err := tx.Credentials.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Credentials.Delete(ctx, id); err != nil {
			return err
		}
		for _, source := range venueSources(cred.ExchangeName) {
			n, err := tx.Holdings.DeleteByField(ctx, "source", source)
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("Deleted exchange", zap.Uint("id", id), zap.Int64("holdings_removed", removed))
	return removed, nil
}

// venueSources lists every source tag holdings of a venue may carry.
func venueSources(name string) []string {
	venue := exchange.NormalizeVenue(name)
	candidates := []string{venue, strings.TrimSpace(name)}
	if legacy, ok := exchange.LegacySource(venue); ok {
		candidates = append(candidates, legacy)
	}

	seen := make(map[string]bool, len(candidates))
	sources := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != "" && !seen[c] {
			seen[c] = true
			sources = append(sources, c)
		}
	}
	return sources
}
