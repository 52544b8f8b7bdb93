package quote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"asset-tracker-go/internal/config"
	"asset-tracker-go/internal/models"
	"asset-tracker-go/internal/relay"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNoData is returned when no network path produced a usable series or rate.
var ErrNoData = errors.New("no quote data")

// ErrInvalidRange is returned for a history range or interval the upstream
// does not understand.
var ErrInvalidRange = errors.New("invalid history range or interval")

var (
	validRanges    = map[string]bool{"1d": true, "5d": true, "1mo": true, "3mo": true, "6mo": true, "1y": true, "2y": true, "5y": true, "10y": true, "ytd": true, "max": true}
	validIntervals = map[string]bool{"1m": true, "2m": true, "5m": true, "15m": true, "30m": true, "60m": true, "90m": true, "1h": true, "1d": true, "5d": true, "1wk": true, "1mo": true, "3mo": true}
)

// PriceResult is the spot price of one requested symbol.
type PriceResult struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// Client resolves spot prices, history series, FX rates and symbol
// searches. Every upstream
// call goes through the relay chain: direct first, then each relay.
type Client struct {
	chain         *relay.Chain
	yahooBaseURL  string
	twseBaseURL   string
	fxBaseURL     string
	twseSearchURL string
	batchSize     int
	logger        *zap.Logger
	now           func() time.Time
}

// NewClient creates a quote client from configuration.
func NewClient(cfg *config.Quote, logger *zap.Logger) (*Client, error) {
	paths, err := relay.PathsFromConfig(cfg.Proxies)
	if err != nil {
		return nil, err
	}

	client := resty.New().
		SetHeader("Accept", "application/json, text/plain, */*")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	logger = logger.Named("quote")
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		chain:         relay.NewChain(client, paths, cfg.Timeout, limiter, logger),
		yahooBaseURL:  strings.TrimRight(cfg.YahooBaseURL, "/"),
		twseBaseURL:   strings.TrimRight(cfg.TwseBaseURL, "/"),
		fxBaseURL:     strings.TrimRight(cfg.FxBaseURL, "/"),
		twseSearchURL: strings.TrimRight(cfg.TwseSearchBaseURL, "/"),
		batchSize:     max(cfg.BatchSize, 1),
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Sanitize trims raw and keeps its first whitespace-delimited token, which
// guards against symbols with trailing notes pasted into them.
func Sanitize(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// UpstreamSymbol maps the bare BTC, ETH and SOL codes to the quote-suffixed
// identifier the chart endpoint expects. Any other bare code is looked up as
// an equity ticker.
func UpstreamSymbol(sym string) string {
	if models.CryptoAliases[sym] {
		return sym + "-" + models.DefaultQuoteCurrency
	}
	return sym
}

// GetSpotPrices resolves the current price of every distinct symbol.
// Symbols are fetched concurrently in groups of batchSize. A symbol with no
// price on any path is left out of the result; per-symbol failures are never
// returned as errors.
func (c *Client) GetSpotPrices(ctx context.Context, symbols []string) []PriceResult {
	uniq := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if !seen[s] {
			seen[s] = true
			uniq = append(uniq, s)
		}
	}

	found := make([]*PriceResult, len(uniq))
	for start := 0; start < len(uniq); start += c.batchSize {
		end := min(start+c.batchSize, len(uniq))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if price, ok := c.spotPrice(ctx, uniq[i]); ok {
					found[i] = &PriceResult{Symbol: uniq[i], Price: price}
				}
			}(i)
		}
		wg.Wait()
	}

	results := make([]PriceResult, 0, len(uniq))
	for i, r := range found {
		if r == nil {
			c.logger.Warn("No price found for symbol", zap.String("symbol", uniq[i]))
			continue
		}
		results = append(results, *r)
	}
	return results
}

func (c *Client) spotPrice(ctx context.Context, raw string) (float64, bool) {
	sym := Sanitize(raw)
	if sym == "" {
		return 0, false
	}
	if models.IsFiat(sym) {
		return 1, true
	}
	if models.IsTaiwanSymbol(sym) {
		return c.twsePrice(ctx, sym)
	}

	price, err := relay.Get(ctx, c.chain, relay.Request{URL: c.chartURL(UpstreamSymbol(sym), "1d", "1m")}, ParseChartPrice)
	if err != nil {
		c.logger.Debug("Chart quote failed", zap.String("symbol", sym), zap.Error(err))
		return 0, false
	}
	return price, true
}

// twsePrice queries the listed-market endpoint, then the OTC one, or the
// reverse for .TWO symbols.
func (c *Client) twsePrice(ctx context.Context, sym string) (float64, bool) {
	code, otc := strings.CutSuffix(sym, ".TWO")
	if !otc {
		code = strings.TrimSuffix(sym, ".TW")
	}
	channels := []string{"tse", "otc"}
	if otc {
		channels = []string{"otc", "tse"}
	}

	for _, ch := range channels {
		price, err := relay.Get(ctx, c.chain, relay.Request{URL: c.twseURL(ch, code)}, ParseTwsePrice)
		if err == nil {
			return price, true
		}
		c.logger.Debug("Taiwan exchange quote failed",
			zap.String("symbol", sym),
			zap.String("channel", ch),
			zap.Error(err),
		)
	}
	return 0, false
}

// GetHistory returns the OHLC series of symbol for the given range and
// interval, e.g. ("1mo", "1d").
func (c *Client) GetHistory(ctx context.Context, symbol, rng, interval string) ([]Candle, error) {
	if !validRanges[rng] || !validIntervals[interval] {
		return nil, fmt.Errorf("%w: range=%q interval=%q", ErrInvalidRange, rng, interval)
	}
	sym := Sanitize(symbol)
	if sym == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrNoData)
	}

	candles, err := relay.Get(ctx, c.chain, relay.Request{URL: c.chartURL(UpstreamSymbol(sym), rng, interval)}, ParseCandles)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrNoData, sym, err)
	}
	return candles, nil
}

// ExchangeRate returns how many units of quote one unit of base buys,
// from the chart feed first and the exchange-rate API second.
func (c *Client) ExchangeRate(ctx context.Context, base, quote string) (float64, error) {
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)
	if base == quote {
		return 1, nil
	}

	rate, err := relay.Get(ctx, c.chain, relay.Request{URL: c.chartURL(base+quote+"=X", "1d", "1m")}, ParseChartPrice)
	if err == nil {
		return rate, nil
	}
	c.logger.Debug("Chart FX rate failed, trying rate API", zap.String("pair", base+quote), zap.Error(err))

	rate, err = relay.Get(ctx, c.chain, relay.Request{URL: c.fxBaseURL + "/v6/latest/" + url.PathEscape(base)}, func(b []byte) (float64, bool) {
		return ParseFxRate(b, quote)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s/%s: %v", ErrNoData, base, quote, err)
	}
	return rate, nil
}

func (c *Client) chartURL(sym, rng, interval string) string {
	q := url.Values{}
	q.Set("interval", interval)
	q.Set("range", rng)
	q.Set("_", strconv.FormatInt(c.now().UnixMilli(), 10))
	return c.yahooBaseURL + "/v8/finance/chart/" + url.PathEscape(sym) + "?" + q.Encode()
}

func (c *Client) twseURL(channel, code string) string {
	q := url.Values{}
	q.Set("ex_ch", channel+"_"+strings.ToLower(code)+".tw")
	q.Set("json", "1")
	q.Set("delay", "0")
	q.Set("_", strconv.FormatInt(c.now().UnixMilli(), 10))
	return c.twseBaseURL + "/stock/api/getStockInfo.jsp?" + q.Encode()
}
