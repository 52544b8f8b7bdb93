package syncer

import (
	"strings"
)

// Canonical field names. They are also the header labels written on upload.
const (
	FieldRecordID    = "RecordId"
	FieldSymbol      = "Symbol"
	FieldName        = "Name"
	FieldType        = "Type"
	FieldMarket      = "Market"
	FieldQuantity    = "Quantity"
	FieldCost        = "Cost"
	FieldLastUpdated = "LastUpdated"
	FieldSource      = "Source"

	FieldExchangeName = "ExchangeName"
	FieldAPIKey       = "ApiKey"
	FieldAPISecret    = "ApiSecret"
	FieldLastSynced   = "LastSynced"

	FieldDate       = "Date"
	FieldTotalValue = "TotalValue"
	FieldCurrency   = "Currency"
	FieldNote       = "Note"
)

// headerScanDepth is how many leading rows may precede the header row.
const headerScanDepth = 5

// Column pairs a canonical field with the predicate that recognises its
// header cell. Match receives the cell lowercased with separators removed.
type Column struct {
	Field string
	Match func(label string) bool
}

// Schema describes one remote table: its columns in canonical write order and
// the field whose header marks the header row.
type Schema struct {
	Columns []Column
	Anchors []string
}

func labels(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[normalizeLabel(n)] = true
	}
	return func(label string) bool { return set[label] }
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "", ".", "").Replace(s)
}

var (
	PortfolioSchema = Schema{
		Columns: []Column{
			{FieldRecordID, labels("recordid", "record id", "uuid", "uid")},
			{FieldSymbol, labels("symbol", "ticker", "code", "代號", "代碼", "股票代號")},
			{FieldName, labels("name", "asset", "名稱", "股票名稱")},
			{FieldType, labels("type", "asset type", "assettype", "類型", "種類")},
			{FieldMarket, labels("market", "exchange market", "市場")},
			{FieldQuantity, labels("quantity", "qty", "shares", "units", "amount", "數量", "股數")},
			{FieldCost, labels("cost", "cost basis", "avg cost", "average cost", "price paid", "成本", "均價", "平均成本")},
			{FieldLastUpdated, labels("lastupdated", "last updated", "updated", "updated at", "更新時間")},
			{FieldSource, labels("source", "provenance", "來源")},
		},
		Anchors: []string{FieldSymbol},
	}

	ExchangeSchema = Schema{
		Columns: []Column{
			{FieldExchangeName, labels("exchangename", "exchange", "venue", "交易所")},
			{FieldAPIKey, labels("apikey", "api key", "key")},
			{FieldAPISecret, labels("apisecret", "api secret", "secret", "secret key")},
			{FieldLastSynced, labels("lastsynced", "last synced", "synced at")},
		},
		Anchors: []string{FieldExchangeName, FieldAPIKey},
	}

	HistorySchema = Schema{
		Columns: []Column{
			{FieldDate, labels("date", "day", "日期")},
			{FieldTotalValue, labels("totalvalue", "total value", "value", "total", "總值", "總資產", "總市值")},
			{FieldCurrency, labels("currency", "ccy", "幣別")},
			{FieldNote, labels("note", "notes", "memo", "備註")},
		},
		Anchors: []string{FieldDate},
	}
)

// Header returns the canonical header row of s.
func (s Schema) Header() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Field
	}
	return out
}

// InferColumns maps each field recognised in header to its cell index. The
// first matching cell wins when a field appears twice.
func InferColumns(header []string, columns []Column) map[string]int {
	index := make(map[string]int)
	for i, cell := range header {
		label := normalizeLabel(cell)
		if label == "" {
			continue
		}
		for _, c := range columns {
			if _, taken := index[c.Field]; taken {
				continue
			}
			if c.Match(label) {
				index[c.Field] = i
				break
			}
		}
	}
	return index
}

// legacyColumns is the layout assumed for tables written without a header.
func (s Schema) legacyColumns() map[string]int {
	index := make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		index[c.Field] = i
	}
	return index
}

// locate finds the header row among the first rows of a table. It returns
// the column map and the index of the first data row. Without a header every
// row is data and the legacy layout applies.
func (s Schema) locate(rows [][]string) (map[string]int, int) {
	for r := 0; r < len(rows) && r < headerScanDepth; r++ {
		index := InferColumns(splitRow(rows[r]), s.Columns)
		for _, anchor := range s.Anchors {
			if _, ok := index[anchor]; ok {
				return index, r + 1
			}
		}
	}
	return s.legacyColumns(), 0
}

// splitRow re-splits a row that was pasted as one tab-delimited cell.
func splitRow(row []string) []string {
	if len(row) == 1 && strings.Contains(row[0], "\t") {
		return strings.Split(row[0], "\t")
	}
	return row
}
