package models

// ExchangeCredential stores the API key pair of one configured trading venue.
type ExchangeCredential struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	ExchangeName string `gorm:"index;not null" json:"exchangeName"`
	ApiKey       string `gorm:"not null" json:"apiKey"`
	ApiSecret    string `gorm:"not null" json:"-"`
	LastSynced   int64  `json:"lastSynced,omitempty"` // epoch ms
}
