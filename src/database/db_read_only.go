package database

import (
	"fmt"

	"papertrader/src/portfolio"

	"github.com/sirupsen/logrus"
)

// InitReadOnlyDB opens the connection used by reporting commands. It never migrates.
// Without DATABASE_URL_READONLY the main URL is used.
func InitReadOnlyDB() error {
	config := GetConfig()

	dsn := config.DatabaseURLReadOnly
	if dsn == "" {
		dsn = config.DatabaseURLMain
	}

	db, err := Open(config, dsn)
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
	if err := db.Model(&portfolio.Position{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to access positions: %w", err)
	}

	logrus.WithFields(logrus.Fields{"driver": config.Driver, "positions": count}).Info("[ReadOnlyDB] connected")

	ReadOnlyDB = db
	return nil
}
