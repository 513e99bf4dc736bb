package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/repcal/backend/internal/catalog"
	"github.com/repcal/backend/internal/completions"
	"github.com/repcal/backend/internal/schedules"
	"github.com/repcal/backend/internal/workouts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection with foreign-key enforcement on
// and performs schema migrations. Restrict and cascade referential actions
// live in the schema; the services rely on them.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&catalog.Exercise{},
		&workouts.Template{},
		&workouts.TemplateExercise{},
		&schedules.Schedule{},
		&schedules.DayOverride{},
		&schedules.OverrideExercise{},
		&completions.Occurrence{},
		&completions.CompletedExercise{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
