// Package sqlkv keeps addon keys in a single SQL table through gorm.
package sqlkv

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/glefebvre/livetv/internal/database"
	"github.com/glefebvre/livetv/internal/models"
)

const (
	pageLimit    = 1000
	maxBatchSize = 500
)

// Store is a kv.Store over the kv_entries table
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New wraps an opened, migrated database
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry models.KVEntry
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Value, true, nil
}

// Set upserts the row for key
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	entry := models.KVEntry{Key: key, Value: value, UpdatedAt: s.now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&models.KVEntry{}).Error
}

// ListKeys returns up to one page of keys in lexical order
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	q := s.db.WithContext(ctx).Model(&models.KVEntry{})
	if prefix != "" {
		q = q.Where(`key LIKE ? ESCAPE '\'`, likePrefix(prefix))
	}
	err := q.Order("key").Limit(pageLimit).Pluck("key", &keys).Error
	return keys, err
}

// DeleteBatch removes keys with a single DELETE ... IN
func (s *Store) DeleteBatch(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("key IN ?", keys).Delete(&models.KVEntry{}).Error
}

// MaxBatchSize keeps IN lists under driver parameter limits
func (s *Store) MaxBatchSize() int {
	return maxBatchSize
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return database.HealthCheck(s.db.WithContext(ctx))
}

var likeReplacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePrefix(prefix string) string {
	return likeReplacer.Replace(prefix) + "%"
}
