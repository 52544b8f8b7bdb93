package syncer

import (
	"strconv"
	"strings"
	"time"

	"asset-tracker-go/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// blankTokens are cell values that mean "no value".
var blankTokens = map[string]bool{
	"":          true,
	"-":         true,
	"--":        true,
	"n/a":       true,
	"na":        true,
	"null":      true,
	"nil":       true,
	"none":      true,
	"undefined": true,
	"nan":       true,
}

func isBlank(s string) bool {
	return blankTokens[strings.ToLower(strings.TrimSpace(s))]
}

// Parser turns remote rows into models. The zero value is usable.
type Parser struct {
	// NewID generates record ids for rows that lack one. Defaults to uuid v4.
	NewID func() string
	// Now stamps rows without a timestamp. Defaults to time.Now.
	Now func() time.Time
	// DefaultCurrency applies to history rows without a currency.
	DefaultCurrency string
}

func (p Parser) newID() string {
	if p.NewID != nil {
		return p.NewID()
	}
	return uuid.NewString()
}

func (p Parser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// row is a data row with its column map.
type row struct {
	cells []string
	index map[string]int
}

func (r row) get(field string) string {
	i, ok := r.index[field]
	if !ok || i >= len(r.cells) {
		return ""
	}
	v := strings.TrimSpace(r.cells[i])
	if isBlank(v) {
		return ""
	}
	return v
}

func (s Schema) rows(table [][]string) []row {
	index, start := s.locate(table)
	out := make([]row, 0, len(table))
	for _, cells := range table[start:] {
		out = append(out, row{cells: splitRow(cells), index: index})
	}
	return out
}

// ParseNumber parses a numeric cell, tolerating thousands separators and
// currency marks. Unparseable cells yield 0 and ok=false.
func ParseNumber(s string) (float64, bool) {
	s = strings.NewReplacer(",", "", "$", "", "NT", "", " ", "", "\u00a0", "").Replace(strings.TrimSpace(s))
	if isBlank(s) {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// parseMillis reads epoch milliseconds, or a date-time cell in the local
// time zone.
func parseMillis(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64); err == nil {
		return n, true
	}
	if f, ok := ParseNumber(s); ok {
		return int64(f), true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006/01/02 15:04:05", models.DateLayout, "2006/1/2"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// ParseDate normalizes a date cell to YYYY-MM-DD. Cells are read in the
// local time zone, the zone snapshot dates are keyed in; a timestamp with an
// explicit offset is moved to its local calendar day.
func ParseDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{models.DateLayout, "2006/01/02", "2006/1/2", "2006-1-2", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.In(time.Local).Format(models.DateLayout), true
		}
	}
	return "", false
}

// ParseHoldings parses Portfolio rows. Rows without a symbol are dropped;
// missing record ids are generated, duplicates regenerated.
func (p Parser) ParseHoldings(table [][]string) []models.Holding {
	seen := make(map[string]bool)
	nowMs := p.now().UnixMilli()

	var out []models.Holding
	for _, r := range PortfolioSchema.rows(table) {
		symbol := strings.Fields(r.get(FieldSymbol))
		if len(symbol) == 0 {
			continue
		}

		h := models.Holding{
			RecordID:  r.get(FieldRecordID),
			Symbol:    symbol[0],
			Name:      r.get(FieldName),
			AssetType: models.AssetType(r.get(FieldType)),
			Market:    models.Market(r.get(FieldMarket)),
			Source:    strings.TrimSpace(r.get(FieldSource)),
		}
		h.Quantity, _ = ParseNumber(r.get(FieldQuantity))
		h.CostBasis, _ = ParseNumber(r.get(FieldCost))
		if ms, ok := parseMillis(r.get(FieldLastUpdated)); ok {
			h.LastUpdated = ms
		} else {
			h.LastUpdated = nowMs
		}
		if h.Name == "" {
			h.Name = h.Symbol
		}
		h.Normalize()
		if h.Symbol == "" {
			continue
		}

		if h.RecordID == "" || seen[h.RecordID] {
			h.RecordID = p.newID()
		}
		seen[h.RecordID] = true
		out = append(out, h)
	}
	return out
}

// ParseCredentials parses ExchangeConfigs rows. Rows missing the venue, key
// or secret are dropped.
func (p Parser) ParseCredentials(table [][]string) []models.ExchangeCredential {
	var out []models.ExchangeCredential
	for _, r := range ExchangeSchema.rows(table) {
		c := models.ExchangeCredential{
			ExchangeName: r.get(FieldExchangeName),
			ApiKey:       r.get(FieldAPIKey),
			ApiSecret:    r.get(FieldAPISecret),
		}
		if c.ExchangeName == "" || c.ApiKey == "" || c.ApiSecret == "" {
			continue
		}
		c.LastSynced, _ = parseMillis(r.get(FieldLastSynced))
		out = append(out, c)
	}
	return out
}

// ParseHistory parses history rows. Rows missing a date or value are
// dropped. When a date repeats the later row wins.
func (p Parser) ParseHistory(table [][]string) []models.HistorySnapshot {
	byDate := make(map[string]int)
	var out []models.HistorySnapshot
	for _, r := range HistorySchema.rows(table) {
		date, ok := ParseDate(r.get(FieldDate))
		if !ok {
			continue
		}
		value, ok := ParseNumber(r.get(FieldTotalValue))
		if !ok {
			continue
		}

		s := models.HistorySnapshot{
			Date:       date,
			TotalValue: value,
			Currency:   strings.ToUpper(r.get(FieldCurrency)),
			Note:       r.get(FieldNote),
		}
		if s.Currency == "" {
			s.Currency = p.DefaultCurrency
		}

		if i, dup := byDate[date]; dup {
			out[i] = s
			continue
		}
		byDate[date] = len(out)
		out = append(out, s)
	}
	return out
}
