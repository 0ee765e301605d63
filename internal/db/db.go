package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"luna-backend/config"
	"luna-backend/internal/model"
)

// ChangeFeedChannel is the Postgres NOTIFY channel carrying book_requests row changes.
const ChangeFeedChannel = "book_requests_changes"

// Models lists every table managed by the service, in dependency order.
func Models() []any {
	return []any{
		&model.Book{},
		&model.RobotTask{},
		&model.BookRequest{},
		&model.PushSubscription{},
	}
}

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	logLevel := logger.Info
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
		logLevel = logger.Warn
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// SQLite allows a single writer; serialising on one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.EnableChangeFeed {
		if cfg.Driver != "postgres" {
			log.Printf("Warning: change feed requires postgres; driver %q will rely on the in-process feed only", cfg.Driver)
		} else {
			log.Println("Change feed is enabled, installing book_requests notify trigger...")
			if err := applyChangeFeedDDL(db); err != nil {
				log.Printf("Warning: failed to install change feed trigger: %v. Continuing without it.", err)
			}
		}
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	log.Println("Running database migrations...")
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

func applyChangeFeedDDL(db *gorm.DB) error {
	ddls := []string{
		// 1) Notify function: one JSON payload per row change
		"CREATE OR REPLACE FUNCTION notify_book_requests_change() RETURNS trigger AS $$ " +
			"BEGIN " +
			"PERFORM pg_notify('" + ChangeFeedChannel + "', json_build_object(" +
			"'op', TG_OP, 'id', NEW.id, 'status', NEW.status, 'user_id', NEW.user_id)::text); " +
			"RETURN NEW; " +
			"END; $$ LANGUAGE plpgsql;",

		// 2) Recreate the trigger so repeated migrations stay idempotent
		"DROP TRIGGER IF EXISTS trg_book_requests_notify ON book_requests;",
		"CREATE TRIGGER trg_book_requests_notify AFTER INSERT OR UPDATE ON book_requests " +
			"FOR EACH ROW EXECUTE FUNCTION notify_book_requests_change();",

		// 3) Partial index backing the active-request view
		"CREATE INDEX IF NOT EXISTS idx_book_requests_active ON book_requests (requested_at DESC) " +
			"WHERE status <> 'completed';",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
