package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"restopos/internal/config"
	"restopos/internal/models"

	"github.com/glebarez/sqlite"
	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const connectAttempts = 5

// Connect opens the configured database (retrying while it comes up),
// and migrates the schema.
func Connect(cfg config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	if cfg.DSN == "" && cfg.Driver != "sqlite" {
		return nil, errors.New("DB_DSN is not set, configure your database in .env")
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < connectAttempts; i++ {
		db, err = Open(cfg, logger.Warn)
		if err == nil {
			break
		}
		log.Warn("failed to connect to database, retrying", "attempt", i+1, "max", connectAttempts, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s after %d attempts: %w", cfg.Driver, connectAttempts, err)
	}
	log.Info("connected to database", "driver", cfg.Driver)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("database schema synced")

	return db, nil
}

// mysqlDSN makes RowsAffected count matched rows, so guarded updates that
// leave a row unchanged are not mistaken for lost races.
func mysqlDSN(raw string) (string, error) {
	c, err := gomysql.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("parse DB_DSN: %w", err)
	}
	c.ClientFoundRows = true
	c.ParseTime = true
	return c.FormatDSN(), nil
}

// Open picks the gorm dialector for the configured driver.
func Open(cfg config.DatabaseConfig, level logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql", "":
		dsn, err := mysqlDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		dialector = mysql.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "restopos.db"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(level),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Driver == "sqlite" {
		// SQLite allows a single writer; serialize through one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Ping is used by the health endpoint.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// NewTestDB returns a migrated in-memory SQLite database private to name.
func NewTestDB(name string) (*gorm.DB, error) {
	db, err := Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.NewReplacer("/", "_", " ", "_").Replace(name)),
	}, logger.Silent)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
