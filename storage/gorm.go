package storage

import (
	"context"
	"errors"
	"fmt"

	"tuitionflow/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormBackend stores snapshots as rows of the state_records table
type GormBackend struct {
	db *gorm.DB
}

func NewGormBackend(db *gorm.DB) *GormBackend {
	return &GormBackend{db: db}
}

func (b *GormBackend) Name() string { return "mysql" }

func (b *GormBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var rec models.StateRecord
	err := b.db.WithContext(ctx).Where("`key` = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return []byte(rec.Value), nil
}

func (b *GormBackend) Save(ctx context.Context, key string, data []byte) error {
	rec := models.StateRecord{Key: key, Value: string(data)}
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}
