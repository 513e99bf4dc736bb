package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/repcal/backend/internal/catalog"
	"github.com/repcal/backend/internal/civil"
	"github.com/repcal/backend/internal/schedules"
	"github.com/repcal/backend/internal/workouts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationLegacyFlatImport = "legacy_flat_import"

// The pre-relational generation kept everything in one schema-less file:
// a JSON object mapping a key to an array of records. A legacy "workout"
// doubled as template and single schedule, so each record decomposes into a
// Template plus one Schedule here.
type legacyFile struct {
	Workouts []legacyWorkout `json:"workouts"`
}

type legacyWorkout struct {
	Name           string           `json:"name"`
	IconCodePoint  int64            `json:"iconCodePoint"`
	StartDate      string           `json:"startDate"`
	RecurrenceType string           `json:"recurrenceType"`
	OffsetDays     *int             `json:"offsetDays"`
	Exercises      []legacyExercise `json:"exercises"`
}

type legacyExercise struct {
	Name              string        `json:"name"`
	Type              string        `json:"type"`
	Mode              string        `json:"mode"`
	Sets              []catalog.Set `json:"sets"`
	RestAfterExercise *int          `json:"restAfterExercise"`
}

// ImportLegacy performs the one-time migration from the flat-file store.
// It runs only when the file exists and no relational templates are stored
// yet, and records itself in the migration ledger so reruns are no-ops.
// Malformed records are skipped with a warning rather than aborting the
// import; the legacy store had no schema to reject them earlier.
func ImportLegacy(db *gorm.DB, path string, logger *zap.Logger) error {
	if path == "" {
		return nil
	}
	var ledger migrationRecord
	err := db.Where("name = ?", migrationLegacyFlatImport).Take(&ledger).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read legacy store: %w", err)
	}

	var templateCount int64
	if err := db.Model(&workouts.Template{}).Count(&templateCount).Error; err != nil {
		return err
	}
	if templateCount > 0 {
		if logger != nil {
			logger.Info("legacy import skipped, relational data already present")
		}
		return nil
	}

	var file legacyFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("decode legacy store: %w", err)
	}

	imported := 0
	txErr := db.Transaction(func(tx *gorm.DB) error {
		for _, record := range file.Workouts {
			if err := importLegacyWorkout(tx, record); err != nil {
				if logger != nil {
					logger.Warn("legacy workout skipped",
						zap.String("name", record.Name),
						zap.Error(err))
				}
				continue
			}
			imported++
		}
		return recordMigration(tx, migrationLegacyFlatImport)
	})
	if txErr != nil {
		return txErr
	}
	if logger != nil {
		logger.Info("legacy import finished", zap.Int("workouts", imported))
	}
	return nil
}

func importLegacyWorkout(tx *gorm.DB, record legacyWorkout) error {
	if err := catalog.ValidateName("workout", record.Name); err != nil {
		return err
	}
	startDate, err := civil.Parse(record.StartDate)
	if err != nil {
		return err
	}
	recurrence, err := schedules.ParseRecurrence(record.RecurrenceType)
	if err != nil {
		return err
	}

	template := workouts.Template{Name: record.Name, IconCodePoint: record.IconCodePoint}
	for index, exercise := range record.Exercises {
		stored, err := findOrCreateExercise(tx, exercise)
		if err != nil {
			return err
		}
		template.Exercises = append(template.Exercises, workouts.TemplateExercise{
			ExerciseID:        stored.ID,
			Type:              stored.Type,
			Mode:              stored.Mode,
			OrderIndex:        index,
			Sets:              exercise.Sets,
			RestAfterExercise: exercise.RestAfterExercise,
		})
	}
	if err := tx.Create(&template).Error; err != nil {
		return err
	}

	offsetDays := record.OffsetDays
	if recurrence != schedules.RecurrenceOffset {
		offsetDays = nil
	}
	// Linked by the freshly assigned id, never by name.
	schedule := schedules.Schedule{
		WorkoutID:  template.ID,
		StartDate:  startDate,
		Recurrence: recurrence,
		OffsetDays: offsetDays,
	}
	return tx.Create(&schedule).Error
}

func findOrCreateExercise(tx *gorm.DB, record legacyExercise) (catalog.Exercise, error) {
	var existing catalog.Exercise
	err := tx.Where("name = ?", record.Name).Take(&existing).Error
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return catalog.Exercise{}, err
	}

	exerciseType, err := catalog.ParseExerciseType(record.Type)
	if err != nil {
		return catalog.Exercise{}, err
	}
	mode, err := catalog.ParseExerciseMode(record.Mode)
	if err != nil {
		return catalog.Exercise{}, err
	}
	if err := catalog.ValidateSets("exercise", record.Sets); err != nil {
		return catalog.Exercise{}, err
	}
	created := catalog.Exercise{
		Name:              record.Name,
		Type:              exerciseType,
		Mode:              mode,
		Sets:              record.Sets,
		RestAfterExercise: record.RestAfterExercise,
	}
	if err := tx.Create(&created).Error; err != nil {
		return catalog.Exercise{}, err
	}
	return created, nil
}

func recordMigration(tx *gorm.DB, name string) error {
	record := migrationRecord{Name: name, AppliedAtSeconds: time.Now().UTC().Unix()}
	return tx.Create(&record).Error
}
