// sqlite.go: this code defines the SQLite store backend
package datastore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/conf"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/logging"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("datastore")
}

// SQLiteStore implements DataStore for SQLite databases.
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// Open initializes the SQLite database connection and performs migrations.
func (store *SQLiteStore) Open() error {
	dbPath := store.Settings.Output.SQLite.Path
	if err := validateSQLiteConfig(dbPath); err != nil {
		return err
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Newf("failed to create database directory %s: %w", dir, err).
				Category(errors.CategoryFileIO).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: newGormLogger(store.Settings.Debug),
	})
	if err != nil {
		return errors.Newf("failed to open SQLite database at %s: %w", dbPath, err).
			Category(errors.CategoryDatabase).
			Build()
	}

	// Single-writer pragmas. WAL keeps readers unblocked while the pipeline
	// appends.
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA foreign_keys=ON;")

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "SQLite", dbPath)
}

// Close closes the SQLite database connection.
func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return nil
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return errors.Newf("getting underlying database handle: %w", err).
			Category(errors.CategoryDatabase).
			Build()
	}
	return sqlDB.Close()
}

func validateSQLiteConfig(path string) error {
	if path == "" {
		return errors.Newf("SQLite database path is empty").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// newGormLogger silences GORM's default logger unless debug is on, routing
// slow-query warnings through the package logger either way.
func newGormLogger(debug bool) gormlogger.Interface {
	level := gormlogger.Silent
	if debug {
		level = gormlogger.Warn
	}
	return gormlogger.New(
		slogWriter{},
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		},
	)
}

type slogWriter struct{}

func (slogWriter) Printf(format string, args ...any) {
	logger.Warn(fmt.Sprintf(format, args...))
}
