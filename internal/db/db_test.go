package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celestiaorg/testbed/internal/db/models"
)

func TestNew_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	gdb, err := New(Options{Driver: DriverSQLite, Path: path})
	require.NoError(t, err)
	defer func() { assert.NoError(t, Close(gdb)) }()

	assert.True(t, gdb.Migrator().HasTable(&models.Operation{}))

	op := &models.Operation{Name: "op", TestbedID: "tb", Provider: "fake", Action: models.ActionDeploy, StartedAt: time.Now()}
	require.NoError(t, gdb.WithContext(context.Background()).Create(op).Error)

	dup := &models.Operation{Name: "op", TestbedID: "tb", Provider: "fake", Action: models.ActionStop, StartedAt: time.Now()}
	err = gdb.Create(dup).Error
	require.Error(t, err)
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(Options{Driver: "mysql"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestSetDefaults(t *testing.T) {
	opts := setDefaults(Options{})
	assert.Equal(t, DriverSQLite, opts.Driver)
	assert.Equal(t, DefaultSQLitePath, opts.Path)
	assert.Equal(t, DefaultHost, opts.Host)
	assert.Equal(t, DefaultPort, opts.Port)

	opts = setDefaults(Options{Driver: DriverPostgres, Host: "db", Port: 6543})
	assert.Equal(t, "db", opts.Host)
	assert.Equal(t, 6543, opts.Port)
}
