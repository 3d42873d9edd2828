package migrate

import (
	"github.com/sirupsen/logrus"

	"errortracker/src/database"
)

type Migrate struct {
	Log *logrus.Entry
}

// Start connects to the main database, which runs every pending migration.
func (m *Migrate) Start() error {
	if err := database.InitMainDB(); err != nil {
		m.Log.WithError(err).Error("Failed to migrate main database")
		return err
	}

	m.Log.Info("Migrations applied")
	return nil
}
