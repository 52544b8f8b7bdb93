package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"asset-tracker-go/internal/config"
	"asset-tracker-go/internal/models"
	"asset-tracker-go/internal/relay"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Supported venue identifiers. They double as the Source tag of the
// holdings each venue owns.
const (
	VenuePionex  = "pionex"
	VenueBitopro = "bitopro"
)

var (
	// ErrUnsupportedVenue is returned for a credential naming an unknown venue.
	ErrUnsupportedVenue = errors.New("unsupported exchange")
	// ErrVenueRejected is returned when a venue answers but reports a failure,
	// e.g. an invalid key or signature.
	ErrVenueRejected = errors.New("exchange rejected request")
)

// legacySources maps a venue to the capitalised source tag older data used.
var legacySources = map[string]string{
	VenuePionex:  "Pionex",
	VenueBitopro: "BitoPro",
}

// Balance is one sub-balance reported by a venue. A coin may appear several
// times, e.g. once for its free and once for its frozen amount.
type Balance struct {
	Code   string
	Amount decimal.Decimal
}

// venue fetches the raw balances of one account. Key material is only used
// for signing inside the implementation.
type venue interface {
	balances(ctx context.Context, apiKey, apiSecret string) ([]Balance, error)
}

// Client turns a stored credential into holding candidates.
type Client struct {
	venues map[string]venue
	logger *zap.Logger
	now    func() time.Time
}

// NewClient creates an exchange client from configuration. Both venues share
// one relay chain and limiter.
func NewClient(cfg *config.Exchange, logger *zap.Logger) (*Client, error) {
	paths, err := relay.PathsFromConfig(cfg.Proxies)
	if err != nil {
		return nil, err
	}

	logger = logger.Named("exchange")
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)
	chain := relay.NewChain(resty.New(), paths, cfg.Timeout, limiter, logger)

	c := &Client{logger: logger, now: time.Now}
	c.venues = map[string]venue{
		VenuePionex:  &pionex{chain: chain, baseURL: strings.TrimRight(cfg.PionexBaseURL, "/"), now: c.clock},
		VenueBitopro: &bitopro{chain: chain, baseURL: strings.TrimRight(cfg.BitoproBaseURL, "/"), now: c.clock},
	}
	return c, nil
}

func (c *Client) clock() time.Time { return c.now() }

// NormalizeVenue returns the canonical lower-case identifier of name.
func NormalizeVenue(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// LegacySource returns the capitalised source tag older records of venue may
// carry, if any.
func LegacySource(venue string) (string, bool) {
	s, ok := legacySources[NormalizeVenue(venue)]
	return s, ok
}

// IsSupported reports whether name identifies a known venue.
func IsSupported(name string) bool {
	_, ok := legacySources[NormalizeVenue(name)]
	return ok
}

// FetchBalances queries the credential's venue and returns one holding per
// asset with a non-zero total. The returned holdings have no ID.
func (c *Client) FetchBalances(ctx context.Context, cred models.ExchangeCredential) ([]models.Holding, error) {
	name := NormalizeVenue(cred.ExchangeName)
	v, ok := c.venues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVenue, cred.ExchangeName)
	}

	raw, err := v.balances(ctx, cred.ApiKey, cred.ApiSecret)
	if err != nil {
		return nil, fmt.Errorf("fetch %s balances: %w", name, err)
	}

	holdings := Aggregate(name, raw, c.now().UnixMilli())
	c.logger.Info("Fetched exchange balances",
		zap.String("exchange", name),
		zap.Int("entries", len(raw)),
		zap.Int("assets", len(holdings)),
	)
	return holdings, nil
}

// Aggregate sums the sub-balances of each asset code and emits one holding
// per code with a positive total, in order of first appearance.
func Aggregate(venueName string, balances []Balance, nowMs int64) []models.Holding {
	totals := make(map[string]decimal.Decimal)
	var order []string
	for _, b := range balances {
		code := strings.ToUpper(strings.TrimSpace(b.Code))
		if code == "" {
			continue
		}
		if _, seen := totals[code]; !seen {
			order = append(order, code)
			totals[code] = decimal.Zero
		}
		totals[code] = totals[code].Add(b.Amount)
	}

	holdings := make([]models.Holding, 0, len(order))
	for _, code := range order {
		total := totals[code]
		if !total.IsPositive() {
			continue
		}
		holdings = append(holdings, candidate(venueName, code, total, nowMs))
	}
	return holdings
}

func candidate(venueName, code string, total decimal.Decimal, nowMs int64) models.Holding {
	h := models.Holding{
		RecordID:    venueName + "-" + strings.ToLower(code),
		Name:        code,
		Quantity:    total.InexactFloat64(),
		LastUpdated: nowMs,
		Source:      venueName,
	}
	if code == "TWD" {
		// Fiat cash sits in the domestic bucket and is priced at 1.
		h.Symbol = code
		h.Market = models.MarketTW
		h.AssetType = models.AssetOther
		return h
	}
	h.Symbol = code
	if !strings.Contains(code, "-") {
		h.Symbol = code + "-" + models.DefaultQuoteCurrency
	}
	h.Market = models.MarketCrypto
	h.AssetType = models.AssetCrypto
	return h
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
