package models

// AssetType classifies a holding.
type AssetType string

const (
	AssetStock  AssetType = "stock"
	AssetCrypto AssetType = "crypto"
	AssetOther  AssetType = "other"
)

// Market is the pricing venue bucket of a holding.
type Market string

const (
	MarketTW     Market = "TW"
	MarketUS     Market = "US"
	MarketCrypto Market = "Crypto"
)

// SourceManual tags holdings entered by the user.
const SourceManual = "manual"

// Holding represents one lot of an asset in the local ledger.
type Holding struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RecordID     string    `gorm:"uniqueIndex;not null" json:"recordId"`
	Symbol       string    `gorm:"index;not null" json:"symbol"`
	Name         string    `json:"name"`
	AssetType    AssetType `gorm:"index" json:"type"`
	Market       Market    `gorm:"index" json:"market"`
	Quantity     float64   `json:"quantity"`
	CostBasis    float64   `json:"cost"`
	CurrentPrice *float64  `json:"currentPrice,omitempty"`
	LastUpdated  int64     `gorm:"index" json:"lastUpdated"` // epoch ms
	Source       string    `gorm:"index;default:manual" json:"source"`
}

// IsExchangeSourced reports whether the holding is owned by an exchange adapter.
func (h *Holding) IsExchangeSourced() bool {
	return h.Source != "" && h.Source != SourceManual
}

// Value returns quantity times the current price, or the cost basis when no
// price has been fetched yet.
func (h *Holding) Value() float64 {
	if h.CurrentPrice != nil {
		return h.Quantity * *h.CurrentPrice
	}
	return h.Quantity * h.CostBasis
}
