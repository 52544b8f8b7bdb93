package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"asset-tracker-go/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the holdings repository. Multi-table changes go through RunAtomic,
// which serializes writers and commits all tables in one transaction.
type Store struct {
	db   *gorm.DB
	mu   *sync.Mutex
	inTx bool

	Holdings    Table[models.Holding]
	Credentials Table[models.ExchangeCredential]
	History     Table[models.HistorySnapshot]
	SyncLogs    Table[models.SyncLogEntry]
}

// NewStore wraps an opened and migrated database.
func NewStore(db *gorm.DB) *Store {
	return newStore(db, &sync.Mutex{}, false)
}

func newStore(db *gorm.DB, mu *sync.Mutex, inTx bool) *Store {
	return &Store{
		db:          db,
		mu:          mu,
		inTx:        inTx,
		Holdings:    Table[models.Holding]{db: db},
		Credentials: Table[models.ExchangeCredential]{db: db},
		History:     Table[models.HistorySnapshot]{db: db},
		SyncLogs:    Table[models.SyncLogEntry]{db: db},
	}
}

// RunAtomic runs fn against a transactional view of the store. Either every
// change fn makes is committed or none is. fn must only use tx.
func (s *Store) RunAtomic(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newStore(tx, s.mu, true))
	})
}

// AppendSyncLog records the outcome of a sync or refresh run.
func (s *Store) AppendSyncLog(ctx context.Context, status, message string) error {
	entry := models.SyncLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Status:    status,
		Message:   message,
	}
	return s.SyncLogs.Insert(ctx, &entry)
}

// LastSyncLog returns the most recent audit entry, or ErrNotFound.
func (s *Store) LastSyncLog(ctx context.Context) (*models.SyncLogEntry, error) {
	var entry models.SyncLogEntry
	err := s.db.WithContext(ctx).Order("timestamp desc, id desc").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("last sync log: %w", err)
	}
	return &entry, nil
}

// HistoryByDate returns the snapshot of the given calendar day, or ErrNotFound.
func (s *Store) HistoryByDate(ctx context.Context, date string) (*models.HistorySnapshot, error) {
	rows, err := s.History.QueryByField(ctx, "date", date)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// SortedHistory returns every snapshot ordered by date.
func (s *Store) SortedHistory(ctx context.Context) ([]models.HistorySnapshot, error) {
	var out []models.HistorySnapshot
	if err := s.db.WithContext(ctx).Order("date").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

// GetSetting returns the stored value for key and whether it was present.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var setting models.Setting
	err := s.db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return setting.Value, true, nil
}

// PutSetting stores value under key, replacing any previous value.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&models.Setting{Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes key if present.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).Delete(&models.Setting{}).Error; err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}
