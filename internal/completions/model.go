package completions

import (
	"time"

	"github.com/repcal/backend/internal/catalog"
	"github.com/repcal/backend/internal/civil"
	"github.com/repcal/backend/internal/workouts"
)

// Occurrence is the historical record of a workout done on a day. It is a
// frozen copy: the workout name, icon, and exercise rows are captured at
// completion time and never follow later template edits. WorkoutID is
// deliberately unconstrained so the record outlives its workout.
type Occurrence struct {
	ID                  string              `gorm:"column:id;primaryKey;size:190"`
	WorkoutID           uint                `gorm:"column:workout_id;not null;index:idx_completed_occurrences_workout"`
	ScheduledInstanceID *int64              `gorm:"column:scheduled_instance_id"`
	WorkoutName         string              `gorm:"column:workout_name;size:100;not null"`
	IconCodePoint       int64               `gorm:"column:icon_code_point;not null;default:0"`
	ScheduledDate       civil.Date          `gorm:"column:scheduled_date;type:text;not null;index:idx_completed_occurrences_date"`
	CompletedAt         time.Time           `gorm:"column:completed_at;not null"`
	Exercises           []CompletedExercise `gorm:"foreignKey:OccurrenceID;constraint:OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (Occurrence) TableName() string {
	return "completed_occurrences"
}

// CompletedExercise is one frozen exercise row inside a completion record.
// The exercise reference restricts catalog deletes; disabling is the way out.
type CompletedExercise struct {
	ID                uint                 `gorm:"column:id;primaryKey"`
	OccurrenceID      string               `gorm:"column:occurrence_id;size:190;not null;index:idx_completed_exercises_occurrence"`
	ExerciseID        uint                 `gorm:"column:exercise_id;not null;index:idx_completed_exercises_exercise"`
	Exercise          catalog.Exercise     `gorm:"constraint:OnDelete:RESTRICT"`
	Type              catalog.ExerciseType `gorm:"column:type;size:20;not null"`
	Mode              catalog.ExerciseMode `gorm:"column:mode;size:20;not null"`
	OrderIndex        int                  `gorm:"column:order_index;not null"`
	Sets              []catalog.Set        `gorm:"column:sets;type:text;serializer:json;not null"`
	RestAfterExercise *int                 `gorm:"column:rest_after_s"`
}

// TableName provides the explicit table binding for GORM.
func (CompletedExercise) TableName() string {
	return "completed_exercises"
}

// Specs converts the record's frozen rows, assumed ordered, into specs.
func (o Occurrence) Specs() []workouts.ExerciseSpec {
	specs := make([]workouts.ExerciseSpec, 0, len(o.Exercises))
	for _, row := range o.Exercises {
		specs = append(specs, workouts.ExerciseSpec{
			ExerciseID:        row.ExerciseID,
			Type:              row.Type,
			Mode:              row.Mode,
			OrderIndex:        row.OrderIndex,
			Sets:              row.Sets,
			RestAfterExercise: row.RestAfterExercise,
		})
	}
	return specs
}

func rowsFromSpecs(occurrenceID string, specs []workouts.ExerciseSpec) []CompletedExercise {
	rows := make([]CompletedExercise, 0, len(specs))
	for _, spec := range specs {
		rows = append(rows, CompletedExercise{
			OccurrenceID:      occurrenceID,
			ExerciseID:        spec.ExerciseID,
			Type:              spec.Type,
			Mode:              spec.Mode,
			OrderIndex:        spec.OrderIndex,
			Sets:              spec.Sets,
			RestAfterExercise: spec.RestAfterExercise,
		})
	}
	return rows
}
