package schedules

import (
	"fmt"
	"strings"

	"github.com/repcal/backend/internal/catalog"
	"github.com/repcal/backend/internal/civil"
	"github.com/repcal/backend/internal/errs"
	"github.com/repcal/backend/internal/workouts"
)

// Recurrence selects how a schedule maps onto the calendar.
type Recurrence string

const (
	// RecurrenceOneOff occurs exactly on the start date.
	RecurrenceOneOff Recurrence = "oneOff"
	// RecurrenceWeekly occurs on the start date's weekday, from the start date on.
	RecurrenceWeekly Recurrence = "weekly"
	// RecurrenceOffset occurs every OffsetDays days from the start date.
	RecurrenceOffset Recurrence = "offset"
)

// ParseRecurrence validates a raw recurrence value.
func ParseRecurrence(value string) (Recurrence, error) {
	switch Recurrence(strings.TrimSpace(value)) {
	case RecurrenceOneOff:
		return RecurrenceOneOff, nil
	case RecurrenceWeekly:
		return RecurrenceWeekly, nil
	case RecurrenceOffset:
		return RecurrenceOffset, nil
	default:
		return "", errs.Validation("schedule", "recurrenceType", fmt.Sprintf("unknown recurrence %q", value))
	}
}

// Schedule places a workout template onto the calendar. The workout reference
// restricts template deletes while the schedule exists.
type Schedule struct {
	ID         uint              `gorm:"column:id;primaryKey"`
	WorkoutID  uint              `gorm:"column:workout_id;not null;index:idx_schedules_workout"`
	Workout    workouts.Template `gorm:"foreignKey:WorkoutID;constraint:OnDelete:RESTRICT"`
	StartDate  civil.Date        `gorm:"column:start_date;type:text;not null"`
	Recurrence Recurrence        `gorm:"column:recurrence;size:20;not null"`
	OffsetDays *int              `gorm:"column:offset_days"`
}

// TableName provides the explicit table binding for GORM.
func (Schedule) TableName() string {
	return "schedules"
}

// DayOverride replaces a schedule's exercise list for exactly one date. Its
// existence, not its content, switches resolution away from the template.
// Deleting the schedule cascades here.
type DayOverride struct {
	ID         uint               `gorm:"column:id;primaryKey"`
	ScheduleID uint               `gorm:"column:schedule_id;not null;uniqueIndex:idx_day_overrides_schedule_date,priority:1"`
	Schedule   Schedule           `gorm:"constraint:OnDelete:CASCADE"`
	Date       civil.Date         `gorm:"column:date;type:text;not null;uniqueIndex:idx_day_overrides_schedule_date,priority:2"`
	Exercises  []OverrideExercise `gorm:"foreignKey:OverrideID;constraint:OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (DayOverride) TableName() string {
	return "schedule_day_overrides"
}

// OverrideExercise is an independently stored, independently ordered copy of
// an exercise row. TemplateExerciseID records which template row it was
// copied from, for traceability only; template edits never sync back.
type OverrideExercise struct {
	ID                 uint                 `gorm:"column:id;primaryKey"`
	OverrideID         uint                 `gorm:"column:override_id;not null;index:idx_override_exercises_override"`
	ExerciseID         uint                 `gorm:"column:exercise_id;not null;index:idx_override_exercises_exercise"`
	Exercise           catalog.Exercise     `gorm:"constraint:OnDelete:RESTRICT"`
	TemplateExerciseID *uint                `gorm:"column:template_exercise_id"`
	Type               catalog.ExerciseType `gorm:"column:type;size:20;not null"`
	Mode               catalog.ExerciseMode `gorm:"column:mode;size:20;not null"`
	OrderIndex         int                  `gorm:"column:order_index;not null"`
	Sets               []catalog.Set        `gorm:"column:sets;type:text;serializer:json;not null"`
	RestAfterExercise  *int                 `gorm:"column:rest_after_s"`
}

// TableName provides the explicit table binding for GORM.
func (OverrideExercise) TableName() string {
	return "override_exercises"
}

func specsOfOverride(override DayOverride) []workouts.ExerciseSpec {
	specs := make([]workouts.ExerciseSpec, 0, len(override.Exercises))
	for _, row := range override.Exercises {
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
