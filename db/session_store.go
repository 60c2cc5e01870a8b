package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/habedi/uniboard/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionEntry is one persisted session key.
type SessionEntry struct {
	Key   string `gorm:"primaryKey" json:"key"`
	Value string `json:"value"`
}

// gormSessionStore is a GORM-backed implementation of session.Store.
// Use constructor NewSessionStore to obtain an instance.
type gormSessionStore struct{ db *gorm.DB }

// NewSessionStore creates a session.Store. Accepts *gorm.DB to avoid global access.
func NewSessionStore(db *gorm.DB) session.Store { return &gormSessionStore{db: db} }

func (s *gormSessionStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.db == nil {
		return "", false, fmt.Errorf("repository not initialized")
	}
	var entry SessionEntry
	err := s.db.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set upserts all values in one transaction.
func (s *gormSessionStore) Set(ctx context.Context, values map[string]string) error {
	if s.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	if len(values) == 0 {
		return nil
	}
	entries := make([]SessionEntry, 0, len(values))
	for k, v := range values {
		entries = append(entries, SessionEntry{Key: k, Value: v})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&entries).Error
	})
}

func (s *gormSessionStore) Clear(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return s.db.WithContext(ctx).Where("key IN ?", session.Keys).Delete(&SessionEntry{}).Error
}
