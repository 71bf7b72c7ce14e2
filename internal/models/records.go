package models

import "time"

// CleanupRecord summarises one cleanup sweep
type CleanupRecord struct {
	Scanned         int       `json:"scanned"`
	Expired         int       `json:"expired"`
	Deleted         int       `json:"deleted"`
	FallbackDeleted int       `json:"fallbackDeleted"`
	FallbackFailed  int       `json:"fallbackFailed"`
	DryRun          bool      `json:"dryRun"`
	Timestamp       time.Time `json:"timestamp"`
}

// KVEntry is the row layout of the SQL key/value backend
type KVEntry struct {
	Key       string    `gorm:"primaryKey;type:varchar(512)" json:"key"`
	Value     []byte    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"not null;index:idx_kv_entries_updated" json:"updated_at"`
}

// TableName specifies the table name for KVEntry
func (KVEntry) TableName() string {
	return "kv_entries"
}
