package test

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/celestiaorg/testbed/internal/db"
)

// NewFileBasedTestDB creates a new file-based SQLite history for testing.
// It returns the database connection and the path to the temporary directory.
func NewFileBasedTestDB() (*gorm.DB, string, error) {
	tmpDir, err := os.MkdirTemp("", "testbed_test")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create temporary directory: %w", err)
	}

	gdb, err := db.New(db.Options{
		Driver:   db.DriverSQLite,
		Path:     filepath.Join(tmpDir, "testbed_test.db"),
		LogLevel: gormlogger.Silent,
	})
	if err != nil {
		// Try to clean up the temporary directory, but don't fail if cleanup fails
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			fmt.Printf("Warning: failed to remove temporary directory after database error: %v\n", rmErr)
		}
		return nil, "", err
	}
	return gdb, tmpDir, nil
}

// CleanupTestDB closes the database connection and removes the temporary directory.
func CleanupTestDB(gdb *gorm.DB, tmpDir string) {
	if err := db.Close(gdb); err != nil {
		fmt.Printf("Error closing database connection: %v\n", err)
	}
	if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
		fmt.Printf("Error removing temporary directory: %v\n", rmErr)
	}
}
