package database

import (
	"fmt"

	"errortracker/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReadOnlyDB serves the aggregate query API. The database user for this
// connection should have SELECT-only permissions.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB initializes the read-only connection. When DATABASE_URL_READONLY
// is not set, reads share MainDB, so InitMainDB must run first.
// It does not run any migrations.
func InitReadOnlyDB() error {
	config := GetConfig()

	if config.DatabaseURLReadOnly == "" {
		if MainDB == nil {
			return fmt.Errorf("read-only database falls back to MainDB, which is not initialized")
		}
		ReadOnlyDB = MainDB
		logrus.Info("[ReadOnlyDB] no DATABASE_URL_READONLY set, using MainDB")
		return nil
	}

	db, err := Open(config, config.DatabaseURLReadOnly)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	var count int64
	if err := db.Model(&model.ErrorAggregate{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to access error_aggregates: %w", err)
	}

	logrus.WithField("count", count).Info("[ReadOnlyDB] error_aggregates reachable")

	ReadOnlyDB = db

	return nil
}
