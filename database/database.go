package database

import (
	"context"
	"fmt"

	"rwa-market-indexer/config"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormMysql "gorm.io/driver/mysql"
	gormPostgres "gorm.io/driver/postgres"
	gormSqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	tcp = "tcp"

	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	// List entities to auto-migrate
	entities = []interface{}{
		Checkpoint{},
		User{},
		Transaction{},
		Listing{},
		OraclePrice{},
	}
	DBTransactionBatchesSize = 1000
)

func ConnectAndInitialize(ctx context.Context, cfg *config.DBConfig) (*gorm.DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("ConnectAndInitialize: Connect: %w", err)
	}

	if err := Initialize(ctx, db, cfg.DropTableAtStart); err != nil {
		return nil, err
	}

	return db, nil
}

func Initialize(ctx context.Context, db *gorm.DB, dropTables bool) error {
	db = db.WithContext(ctx)

	if dropTables {
		err := db.Migrator().DropTable(entities...)
		if err != nil {
			return errors.Wrap(err, "Initialize: DropTable")
		}
	}

	// Initialize - auto migrate
	err := db.AutoMigrate(entities...)
	if err != nil {
		return errors.Wrap(err, "Initialize: AutoMigrate")
	}

	return nil
}

func Connect(cfg *config.DBConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gormConfig := gorm.Config{
		Logger:          gormlogger.Default.LogMode(getGormLogLevel(cfg)),
		CreateBatchSize: DBTransactionBatchesSize,
	}

	db, err := gorm.Open(dialector, &gormConfig)
	if err != nil {
		return nil, errors.Wrap(err, "gorm.Open")
	}

	if cfg.Driver == DriverSQLite {
		// sqlite serialises writers; a single connection also keeps
		// in-memory databases from being per-connection
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "db.DB")
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

func dialectorFor(cfg *config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverMySQL, "":
		dbConfig := mysql.Config{
			User:                 cfg.Username,
			Passwd:               cfg.Password,
			Net:                  tcp,
			Addr:                 fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			DBName:               cfg.Database,
			AllowNativePasswords: true,
			ParseTime:            true,
		}
		return gormMysql.Open(dbConfig.FormatDSN()), nil

	case DriverPostgres:
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database,
		)
		return gormPostgres.Open(dsn), nil

	case DriverSQLite:
		return gormSqlite.Open(cfg.Database), nil

	default:
		return nil, errors.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func getGormLogLevel(cfg *config.DBConfig) gormlogger.LogLevel {
	if cfg.LogQueries {
		return gormlogger.Info
	}

	return gormlogger.Silent
}
