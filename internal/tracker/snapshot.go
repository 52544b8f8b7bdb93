package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"asset-tracker-go/internal/models"
	"asset-tracker-go/internal/repository"
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnknownCurrency is returned for a currency code that is not ISO 4217.
var ErrUnknownCurrency = errors.New("unknown currency")

// homeCurrency is the currency Taiwan market holdings are priced in. Every
// other market is priced in USD.
const homeCurrency = "TWD"

func currencyCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if money.GetCurrency(code) == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return code, nil
}

func pricingCurrency(m models.Market) string {
	if m == models.MarketTW {
		return homeCurrency
	}
	return models.DefaultQuoteCurrency
}

// RecordSnapshot stores today's total value. A second call on the same day
// overwrites value and currency of the existing row and keeps its note.
func (s *Service) RecordSnapshot(ctx context.Context, totalValue float64, currency string) (*models.HistorySnapshot, error) {
	code, err := currencyCode(currency)
	if err != nil {
		return nil, err
	}
	date := s.now().Format(models.DateLayout)

	var snap *models.HistorySnapshot
	err = s.store.RunAtomic(ctx, func(tx *repository.Store) error {
		existing, err := tx.HistoryByDate(ctx, date)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			snap = &models.HistorySnapshot{Date: date, TotalValue: totalValue, Currency: code}
			return tx.History.Insert(ctx, snap)
		case err != nil:
			return err
		}

		existing.TotalValue = totalValue
		existing.Currency = code
		snap = existing
		return tx.History.Update(ctx, existing.ID, map[string]interface{}{
			"total_value": totalValue,
			"currency":    code,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record snapshot: %w", err)
	}

	s.logger.Info("Recorded snapshot",
		zap.String("date", date),
		zap.Float64("total_value", totalValue),
		zap.String("currency", code),
	)
	return snap, nil
}

// History returns every snapshot ordered by date.
func (s *Service) History(ctx context.Context) ([]models.HistorySnapshot, error) {
	return s.store.SortedHistory(ctx)
}

// UpdateNote sets the note of the snapshot on date (YYYY-MM-DD).
func (s *Service) UpdateNote(ctx context.Context, date, note string) error {
	return s.store.RunAtomic(ctx, func(tx *repository.Store) error {
		snap, err := tx.HistoryByDate(ctx, date)
		if err != nil {
			return err
		}
		return tx.History.Update(ctx, snap.ID, map[string]interface{}{"note": note})
	})
}

// Valuation is the portfolio value in one currency.
type Valuation struct {
	Currency string                    `json:"currency"`
	Total    float64                   `json:"total"`
	ByMarket map[models.Market]float64 `json:"byMarket"`
	// Rates holds the conversion rate applied to each pricing currency.
	Rates map[string]float64 `json:"rates"`
	// Estimated is set when a configured fallback rate replaced a live one.
	Estimated bool `json:"estimated"`
}

// TotalValue values every holding at its current price, or its cost when it
// has none, converted into currency.
func (s *Service) TotalValue(ctx context.Context, currency string) (*Valuation, error) {
	target, err := currencyCode(currency)
	if err != nil {
		return nil, err
	}
	holdings, err := s.store.Holdings.All(ctx)
	if err != nil {
		return nil, err
	}

	v := &Valuation{
		Currency: target,
		ByMarket: make(map[models.Market]float64),
		Rates:    make(map[string]float64),
	}
	for _, h := range holdings {
		from := pricingCurrency(h.Market)
		rate, ok := v.Rates[from]
		if !ok {
			var estimated bool
			if rate, estimated, err = s.rate(ctx, from, target); err != nil {
				return nil, err
			}
			v.Rates[from] = rate
			v.Estimated = v.Estimated || estimated
		}
		value := h.Value() * rate
		v.ByMarket[h.Market] += value
		v.Total += value
	}

	v.Total = round(v.Total, target)
	for m, total := range v.ByMarket {
		v.ByMarket[m] = round(total, target)
	}
	return v, nil
}

// rate returns the from/to conversion rate. A failed USD/TWD lookup falls
// back to the configured rate.
func (s *Service) rate(ctx context.Context, from, to string) (float64, bool, error) {
	if from == to {
		return 1, false, nil
	}
	r, err := s.prices.ExchangeRate(ctx, from, to)
	if err == nil {
		return r, false, nil
	}
	if s.fallback > 0 {
		switch {
		case from == "USD" && to == homeCurrency:
			s.logger.Warn("Using fallback exchange rate", zap.Float64("rate", s.fallback), zap.Error(err))
			return s.fallback, true, nil
		case from == homeCurrency && to == "USD":
			s.logger.Warn("Using fallback exchange rate", zap.Float64("rate", 1/s.fallback), zap.Error(err))
			return 1 / s.fallback, true, nil
		}
	}
	return 0, false, fmt.Errorf("no %s/%s rate: %w", from, to, err)
}

// round rounds amount to the minor unit of currency.
func round(amount float64, currency string) float64 {
	places := int32(2)
	if c := money.GetCurrency(currency); c != nil {
		places = int32(c.Fraction)
	}
	return decimal.NewFromFloat(amount).Round(places).InexactFloat64()
}

// FormatAmount renders amount with the symbol and grouping of currency,
// e.g. "NT$1,234.00".
func FormatAmount(amount float64, currency string) string {
	code := strings.ToUpper(currency)
	c := money.GetCurrency(code)
	if c == nil {
		return fmt.Sprintf("%.2f %s", amount, code)
	}
	minor := decimal.NewFromFloat(amount).Shift(int32(c.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}

// SnapshotNow values the portfolio in the base currency and records it.
func (s *Service) SnapshotNow(ctx context.Context) (*models.HistorySnapshot, error) {
	v, err := s.TotalValue(ctx, s.cfg.BaseCurrency)
	if err != nil {
		return nil, err
	}
	return s.RecordSnapshot(ctx, v.Total, v.Currency)
}
