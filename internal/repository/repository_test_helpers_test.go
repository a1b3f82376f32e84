package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRepositoryDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&checkResultRow{}, &faceSetRow{}); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

// stepClock returns a clock that advances by one second on every call.
func stepClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(time.Second)
		return now
	}
}

func newCheckResultRepositoryForTest(t *testing.T, opts ...Option) *CheckResultRepository {
	t.Helper()
	return NewCheckResultRepository(newRepositoryDBForTest(t), zap.NewNop(), opts...)
}

func floatPtr(v float64) *float64 { return &v }
