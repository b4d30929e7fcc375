// Package db provides database connectivity for the operation history
package db

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/celestiaorg/testbed/internal/db/models"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Database configuration constants
const (
	// DefaultHost is the default database host
	DefaultHost = "localhost"
	// DefaultPort is the default database port
	DefaultPort = 5432
	// DefaultUser is the default database user
	DefaultUser = "postgres"
	// DefaultPassword is the default database password
	DefaultPassword = "postgres"
	// DefaultDBName is the default database name
	DefaultDBName = "postgres"
	// DefaultSQLitePath is the default history file
	DefaultSQLitePath = "testbed.db"
)

// Options represents database connection configuration options
type Options struct {
	Driver string
	// Path is the sqlite file; ":memory:" keeps the history in memory
	Path string

	Host       string
	User       string
	Password   string
	DBName     string
	Port       int
	SSLEnabled bool

	LogLevel logger.LogLevel
}

// New opens the database described by opts and migrates the schema
func New(opts Options) (*gorm.DB, error) {
	opts = setDefaults(opts)

	var dialector gorm.Dialector
	switch opts.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(opts.Path)
	case DriverPostgres:
		sslMode := "disable"
		if opts.SSLEnabled {
			sslMode = "require"
		}
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
			opts.Host, opts.User, opts.Password, opts.DBName, opts.Port, sslMode)
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", opts.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(opts.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", opts.Driver, err)
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsDuplicateKeyError checks if the given error is a duplicate key error
func IsDuplicateKeyError(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		errors.Is(postgres.Dialector{}.Translate(err), gorm.ErrDuplicatedKey)
}

func setDefaults(opts Options) Options {
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}
	if opts.Path == "" {
		opts.Path = DefaultSQLitePath
	}
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.User == "" {
		opts.User = DefaultUser
	}
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	if opts.DBName == "" {
		opts.DBName = DefaultDBName
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Warn
	}
	return opts
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Operation{},
	)
}
