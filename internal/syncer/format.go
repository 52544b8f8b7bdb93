package syncer

import (
	"strconv"

	"asset-tracker-go/internal/models"
)

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return strconv.FormatInt(ms, 10)
}

// HoldingRows renders holdings as a Portfolio table, header first.
func HoldingRows(holdings []models.Holding) [][]string {
	rows := [][]string{PortfolioSchema.Header()}
	for _, h := range holdings {
		rows = append(rows, []string{
			h.RecordID,
			h.Symbol,
			h.Name,
			string(h.AssetType),
			string(h.Market),
			formatFloat(h.Quantity),
			formatFloat(h.CostBasis),
			formatMillis(h.LastUpdated),
			h.Source,
		})
	}
	return rows
}

// CredentialRows renders credentials as an ExchangeConfigs table.
func CredentialRows(creds []models.ExchangeCredential) [][]string {
	rows := [][]string{ExchangeSchema.Header()}
	for _, c := range creds {
		rows = append(rows, []string{c.ExchangeName, c.ApiKey, c.ApiSecret, formatMillis(c.LastSynced)})
	}
	return rows
}

// HistoryRows renders snapshots as a history table.
func HistoryRows(history []models.HistorySnapshot) [][]string {
	rows := [][]string{HistorySchema.Header()}
	for _, s := range history {
		rows = append(rows, []string{s.Date, formatFloat(s.TotalValue), s.Currency, s.Note})
	}
	return rows
}
