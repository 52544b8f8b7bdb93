package models

// Sync log statuses.
const (
	SyncSuccess = "success"
	SyncFailed  = "failed"
)

// SyncLogEntry is an append-only audit record of one sync or refresh run.
type SyncLogEntry struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Timestamp int64  `gorm:"index" json:"timestamp"` // epoch ms
	Status    string `json:"status"`
	Message   string `json:"message"`
}
