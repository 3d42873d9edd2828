package database

import (
	"fmt"

	"errortracker/src/database/migrations"
	"errortracker/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MainDB is the primary read/write connection holding error aggregates.
var MainDB *gorm.DB

// InitMainDB initializes the main (read/write) database connection and runs migrations.
// This should be called once at application startup (e.g. in main()).
func InitMainDB() error {
	config := GetConfig()

	db, err := Open(config, config.DatabaseURLMain)
	if err != nil {
		return err
	}

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.WithField("driver", config.Driver).Info("[database] MainDB connection established")

	if err := Migrate(MainDB); err != nil {
		return err
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}

// Migrate creates the schema and applies pending data migrations.
func Migrate(db *gorm.DB) error {
	// Older tables may hold NULL route columns that would break the unique index.
	if err := migrations.PrepareRouteColumns(db); err != nil {
		return fmt.Errorf("failed to prepare route columns: %w", err)
	}

	if err := db.AutoMigrate(
		&model.ErrorAggregate{},
		&migrations.DataMigration{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations: %w", err)
	}

	return nil
}
