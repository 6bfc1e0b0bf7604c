package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/AngelCh415/shopads/internal/models"
)

// KV is a generic key/value row; the token record lives under one key.
type KV struct {
	K         string `gorm:"primaryKey"`
	V         string
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (KV) TableName() string { return "kv" }

// OpenDB opens (and creates) the SQLite file backing DBStore.
func OpenDB(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0o700)
	}
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open token db: %w", err)
	}
	return gdb, nil
}

type DBStore struct {
	db  *gorm.DB
	key string
}

func NewDBStore(db *gorm.DB, key string) (*DBStore, error) {
	if err := db.AutoMigrate(&KV{}); err != nil {
		return nil, fmt.Errorf("migrate kv: %w", err)
	}
	return &DBStore{db: db, key: key}, nil
}

func (s *DBStore) Load(ctx context.Context) (*models.Credential, error) {
	var row KV
	err := s.db.WithContext(ctx).First(&row, "k = ?", s.key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token row: %w", err)
	}
	return decodeRecord([]byte(row.V))
}

func (s *DBStore) Save(ctx context.Context, c models.Credential) error {
	b, err := encodeRecord(c)
	if err != nil {
		return err
	}
	row := KV{K: s.key, V: string(b)}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "k"}},
		DoUpdates: clause.AssignmentColumns([]string{"v", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save token row: %w", err)
	}
	return nil
}

func (s *DBStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Delete(&KV{}, "k = ?", s.key).Error; err != nil {
		return fmt.Errorf("clear token row: %w", err)
	}
	return nil
}
