// mysql.go: this code defines the MySQL store backend
package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/conf"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
)

// MySQLStore implements DataStore for MySQL databases.
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// Open initializes the MySQL database connection and performs migrations.
func (store *MySQLStore) Open() error {
	cfg := store.Settings.Output.MySQL
	if err := validateMySQLConfig(&cfg); err != nil {
		return err
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: newGormLogger(store.Settings.Debug),
	})
	if err != nil {
		return errors.Newf("failed to open MySQL database: %w", err).
			Category(errors.CategoryDatabase).
			Context("host", cfg.Host).
			Context("database", cfg.Database).
			Build()
	}

	store.DB = db
	connInfo := fmt.Sprintf("%s@%s:%s/%s", cfg.Username, cfg.Host, cfg.Port, cfg.Database)
	return performAutoMigration(db, store.Settings.Debug, "MySQL", connInfo)
}

// Close closes the MySQL database connection.
func (store *MySQLStore) Close() error {
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

func validateMySQLConfig(cfg *conf.MySQLConfig) error {
	if cfg.Host == "" || cfg.Port == "" {
		return errors.Newf("MySQL host and port are required").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Username == "" || cfg.Database == "" {
		return errors.Newf("MySQL username and database are required").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}
