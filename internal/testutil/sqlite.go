// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"luna-backend/internal/db"
	"luna-backend/internal/model"
)

// NewSQLiteDB opens a private in-memory SQLite database with the full schema migrated.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return gormDB
}

// SeedBook inserts a book and returns it.
func SeedBook(t *testing.T, gormDB *gorm.DB, title, shelf string, available bool) model.Book {
	t.Helper()

	book := model.Book{
		Title:         title,
		Author:        "Author of " + title,
		ShelfLocation: shelf,
		Available:     available,
	}
	require.NoError(t, gormDB.Create(&book).Error)
	return book
}
