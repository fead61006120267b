package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pathakanu/remindme/internal/config"
	"github.com/pathakanu/remindme/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SchemaVersion is the current version of the reminders table.
const SchemaVersion = 1

// New creates a GORM database connection and brings the schema to SchemaVersion.
// When cfg.DatabaseURL is provided PostgreSQL is used, otherwise SQLite at cfg.SQLitePath.
func New(cfg *config.Config, log *logrus.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if cfg.DatabaseURL != "" {
		dialector = postgres.Open(cfg.DatabaseURL)
	} else {
		dialector = sqlite.Open(cfg.SQLitePath)
	}

	db, err := Open(dialector, log)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, SchemaVersion, log); err != nil {
		_ = Close(db)
		return nil, err
	}

	logBackend(db, cfg, log)
	return db, nil
}

// Open connects with GORM logging routed through log.
func Open(dialector gorm.Dialector, log *logrus.Logger) (*gorm.DB, error) {
	gormLogger := logger.New(log, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	return db, nil
}

// Migrate creates the reminders table at version. A different stored version drops
// and recreates the table, losing every row.
func Migrate(db *gorm.DB, version int, log logrus.FieldLogger) error {
	if err := db.AutoMigrate(&model.SchemaMeta{}); err != nil {
		return fmt.Errorf("migrate schema_meta: %w", err)
	}

	var meta model.SchemaMeta
	err := db.First(&meta).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		meta = model.SchemaMeta{Version: version}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case meta.Version != version:
		log.Warnf("database: schema version %d -> %d, dropping reminders", meta.Version, version)
		if err := db.Migrator().DropTable(&model.Reminder{}); err != nil {
			return fmt.Errorf("drop reminders: %w", err)
		}
		meta.Version = version
	}

	if err := db.AutoMigrate(&model.Reminder{}); err != nil {
		return fmt.Errorf("migrate reminders: %w", err)
	}
	if err := db.Save(&meta).Error; err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func logBackend(db *gorm.DB, cfg *config.Config, log *logrus.Logger) {
	dialector := db.Dialector.Name()
	switch strings.ToLower(dialector) {
	case "postgres":
		log.Info("database: connected to PostgreSQL")
	case "sqlite":
		log.Infof("database: using SQLite %s", cfg.SQLitePath)
	default:
		log.Infof("database: connected via %s", dialector)
	}
}
