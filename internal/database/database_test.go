package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glefebvre/livetv/internal/config"
	"github.com/glefebvre/livetv/internal/models"
)

func TestOpenSQLiteMigrates(t *testing.T) {
	db, err := Open(config.SQLConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "kv.db")}, "error")
	require.NoError(t, err)
	defer Close(db)

	assert.True(t, db.Migrator().HasTable(&models.KVEntry{}))
	assert.NoError(t, HealthCheck(db))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(config.SQLConfig{Driver: "mysql"}, "error")
	assert.ErrorContains(t, err, "unsupported sql driver")
}
