package database

import (
	"fmt"

	"papertrader/src/database/migrations"
	"papertrader/src/model"
	"papertrader/src/portfolio"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ReadOnlyDB is used by commands that only read history.
var ReadOnlyDB *gorm.DB

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

// Models is every table owned by the engine, in migration order.
func Models() []interface{} {
	return []interface{}{
		&model.Settings{},
		&portfolio.Position{},
		&model.PortfolioSnapshot{},
		&model.SignalRecord{},
		&model.DailyMetrics{},
		&model.Exception{},
		&migrations.DataMigration{},
	}
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// Open connects with the pool settings of config. It does not migrate.
func Open(config Config, dsn string) (*gorm.DB, error) {
	dial, err := dialector(config.Driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dial, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", config.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB from GORM: %w", err)
	}
	if config.Driver == DriverSQLite {
		// a single writer avoids "database is locked"
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	return db, nil
}

// Migrate creates or updates every table and runs the data migrations.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run schema migrations: %w", err)
	}
	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations: %w", err)
	}
	return nil
}

// InitMainDB initializes the main (read/write) database connection and runs migrations.
// This should be called once at application startup.
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
