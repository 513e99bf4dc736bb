package workouts

import (
	"fmt"

	"github.com/repcal/backend/internal/catalog"
	"github.com/repcal/backend/internal/errs"
)

// Template is the reusable definition of a workout, independent of any date.
type Template struct {
	ID            uint               `gorm:"column:id;primaryKey"`
	Name          string             `gorm:"column:name;type:text collate nocase;not null;uniqueIndex:idx_workout_templates_name"`
	IconCodePoint int64              `gorm:"column:icon_code_point;not null;default:0"`
	IsDisabled    bool               `gorm:"column:is_disabled;not null;default:false"`
	Exercises     []TemplateExercise `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (Template) TableName() string {
	return "workout_templates"
}

// TemplateExercise is one ordered exercise row inside a template. The
// exercise reference restricts catalog deletes while the row exists.
type TemplateExercise struct {
	ID                uint                  `gorm:"column:id;primaryKey"`
	TemplateID        uint                  `gorm:"column:template_id;not null;index:idx_template_exercises_template"`
	ExerciseID        uint                  `gorm:"column:exercise_id;not null;index:idx_template_exercises_exercise"`
	Exercise          catalog.Exercise      `gorm:"constraint:OnDelete:RESTRICT"`
	Type              catalog.ExerciseType  `gorm:"column:type;size:20;not null"`
	Mode              catalog.ExerciseMode  `gorm:"column:mode;size:20;not null"`
	OrderIndex        int                   `gorm:"column:order_index;not null"`
	Sets              []catalog.Set         `gorm:"column:sets;type:text;serializer:json;not null"`
	RestAfterExercise *int                  `gorm:"column:rest_after_s"`
}

// TableName provides the explicit table binding for GORM.
func (TemplateExercise) TableName() string {
	return "template_exercises"
}

// ExerciseSpec is the fully-formed value the planner passes between layers:
// template rows, override rows, effective lists, and completion snapshots all
// reduce to it.
type ExerciseSpec struct {
	ExerciseID        uint                 `json:"exerciseId"`
	Type              catalog.ExerciseType `json:"type"`
	Mode              catalog.ExerciseMode `json:"mode"`
	OrderIndex        int                  `json:"orderIndex"`
	Sets              []catalog.Set        `json:"sets"`
	RestAfterExercise *int                 `json:"restAfterExercise,omitempty"`
}

// ValidateSpecs enforces the invariants every exercise list carries: known
// type/mode, non-empty sets with non-negative numbers, positive rest values,
// and order indices forming a contiguous 0..n-1 run.
func ValidateSpecs(entity string, specs []ExerciseSpec) error {
	seen := make(map[int]bool, len(specs))
	for _, spec := range specs {
		if _, err := catalog.ParseExerciseType(string(spec.Type)); err != nil {
			return err
		}
		if _, err := catalog.ParseExerciseMode(string(spec.Mode)); err != nil {
			return err
		}
		if err := catalog.ValidateSets(entity, spec.Sets); err != nil {
			return err
		}
		if err := catalog.ValidateRestAfter(entity, spec.RestAfterExercise); err != nil {
			return err
		}
		if spec.OrderIndex < 0 {
			return errs.Validation(entity, "orderIndex", "must not be negative")
		}
		if spec.OrderIndex >= len(specs) || seen[spec.OrderIndex] {
			return errs.Validation(entity, "orderIndex", fmt.Sprintf("indices must be contiguous, got duplicate or gap at %d", spec.OrderIndex))
		}
		seen[spec.OrderIndex] = true
	}
	return nil
}

// SpecsOf converts a template's rows, assumed ordered, into specs.
func SpecsOf(template Template) []ExerciseSpec {
	specs := make([]ExerciseSpec, 0, len(template.Exercises))
	for _, row := range template.Exercises {
		specs = append(specs, ExerciseSpec{
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
