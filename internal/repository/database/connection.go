package database

import (
	"fmt"
	"strings"

	"github.com/dom/dataroom/internal/domain"
	"github.com/dom/dataroom/internal/repository"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqliteScheme = "sqlite://"

// Models lists every table owned by the service, in migration order.
func Models() []interface{} {
	return []interface{}{
		&domain.Session{},
		&domain.ImportedFile{},
	}
}

// Dialector picks the gorm driver from the URL: "sqlite://<path>" opens a
// local SQLite file, anything else is handed to the postgres driver.
func Dialector(databaseURL string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(databaseURL, sqliteScheme):
		path := strings.TrimPrefix(databaseURL, sqliteScheme)
		if path == "" {
			return nil, fmt.Errorf("sqlite database path is empty")
		}
		if !strings.Contains(path, "?") {
			path += "?_busy_timeout=5000"
		}
		return sqlite.Open(path), nil
	case databaseURL == "":
		return nil, fmt.Errorf("database URL is empty")
	default:
		return postgres.Open(databaseURL), nil
	}
}

func NewConnection(databaseURL string, logLevel logger.LogLevel) (*gorm.DB, error) {
	dialector, err := Dialector(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	if db.Dialector.Name() == "sqlite" {
		// SQLite allows a single writer; serialise through one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	// Auto-migrate tables
	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, err
	}

	return db, nil
}

func NewRepositories(db *gorm.DB) *repository.Repositories {
	return &repository.Repositories{
		Session: NewSessionRepository(db),
		File:    NewFileRepository(db),
	}
}
