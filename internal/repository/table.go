package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a keyed lookup matches no row.
var ErrNotFound = errors.New("record not found")

const insertBatchSize = 200

// Table provides keyed CRUD over one model type.
type Table[T any] struct {
	db *gorm.DB
}

// Insert stores rec and fills its primary key.
func (t Table[T]) Insert(ctx context.Context, rec *T) error {
	if err := t.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

// BulkInsert stores recs in batches and fills their primary keys.
func (t Table[T]) BulkInsert(ctx context.Context, recs []T) error {
	if len(recs) == 0 {
		return nil
	}
	if err := t.db.WithContext(ctx).CreateInBatches(&recs, insertBatchSize).Error; err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}
	return nil
}

// Get loads the row with primary key id.
func (t Table[T]) Get(ctx context.Context, id uint) (*T, error) {
	var rec T
	err := t.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %d: %w", id, err)
	}
	return &rec, nil
}

// Update applies patch (column name -> value) to the row with primary key id.
func (t Table[T]) Update(ctx context.Context, id uint, patch map[string]interface{}) error {
	res := t.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Updates(patch)
	if res.Error != nil {
		return fmt.Errorf("update %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the row with primary key id.
func (t Table[T]) Delete(ctx context.Context, id uint) error {
	if err := t.db.WithContext(ctx).Delete(new(T), id).Error; err != nil {
		return fmt.Errorf("delete %d: %w", id, err)
	}
	return nil
}

// DeleteByField removes every row whose column name equals value.
func (t Table[T]) DeleteByField(ctx context.Context, name string, value interface{}) (int64, error) {
	res := t.db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: name}, Value: value}).Delete(new(T))
	if res.Error != nil {
		return 0, fmt.Errorf("delete by %s: %w", name, res.Error)
	}
	return res.RowsAffected, nil
}

// Clear removes every row.
func (t Table[T]) Clear(ctx context.Context) error {
	if err := t.db.WithContext(ctx).Where("1 = 1").Delete(new(T)).Error; err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// QueryByField returns every row whose column name equals value, by primary key.
func (t Table[T]) QueryByField(ctx context.Context, name string, value interface{}) ([]T, error) {
	var out []T
	err := t.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: name}, Value: value}).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query by %s: %w", name, err)
	}
	return out, nil
}

// All returns every row ordered by primary key.
func (t Table[T]) All(ctx context.Context) ([]T, error) {
	var out []T
	if err := t.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return out, nil
}

// Count returns the number of rows.
func (t Table[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := t.db.WithContext(ctx).Model(new(T)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
