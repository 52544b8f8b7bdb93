package models

// Setting is a key-value pair persisted next to the ledger, e.g. the cached
// spreadsheet identifier.
type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}
