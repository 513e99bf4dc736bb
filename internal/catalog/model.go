package catalog

import (
	"fmt"
	"strings"

	"github.com/repcal/backend/internal/errs"
)

// ExerciseType distinguishes moving exercises from holds.
type ExerciseType string

const (
	ExerciseTypeDynamic ExerciseType = "dynamic"
	ExerciseTypeStatic  ExerciseType = "static"
)

// ExerciseMode selects how set values are interpreted.
type ExerciseMode string

const (
	// ModeReps counts repetitions with a uniform target per set.
	ModeReps ExerciseMode = "reps"
	// ModeVariableSets counts repetitions with per-set targets.
	ModeVariableSets ExerciseMode = "variableSets"
	// ModePyramid ramps repetitions up and back down across sets.
	ModePyramid ExerciseMode = "pyramid"
	// ModeStatic measures hold duration in seconds.
	ModeStatic ExerciseMode = "static"
)

// ParseExerciseType validates a raw type value.
func ParseExerciseType(value string) (ExerciseType, error) {
	switch ExerciseType(strings.TrimSpace(value)) {
	case ExerciseTypeDynamic:
		return ExerciseTypeDynamic, nil
	case ExerciseTypeStatic:
		return ExerciseTypeStatic, nil
	default:
		return "", errs.Validation("exercise", "type", fmt.Sprintf("unknown exercise type %q", value))
	}
}

// ParseExerciseMode validates a raw mode value.
func ParseExerciseMode(value string) (ExerciseMode, error) {
	switch ExerciseMode(strings.TrimSpace(value)) {
	case ModeReps:
		return ModeReps, nil
	case ModeVariableSets:
		return ModeVariableSets, nil
	case ModePyramid:
		return ModePyramid, nil
	case ModeStatic:
		return ModeStatic, nil
	default:
		return "", errs.Validation("exercise", "mode", fmt.Sprintf("unknown exercise mode %q", value))
	}
}

// Set is one work set: repetitions (or hold seconds for static exercises),
// added weight, and an optional rest after the set in seconds.
type Set struct {
	Value  int     `json:"value"`
	Weight float64 `json:"weight"`
	Rest   *int    `json:"rest,omitempty"`
}

// Exercise is a library entry reusable across workout templates.
type Exercise struct {
	ID                uint         `gorm:"column:id;primaryKey"`
	Name              string       `gorm:"column:name;type:text collate nocase;not null;uniqueIndex:idx_exercises_name"`
	Type              ExerciseType `gorm:"column:type;size:20;not null"`
	Mode              ExerciseMode `gorm:"column:mode;size:20;not null"`
	Sets              []Set        `gorm:"column:sets;type:text;serializer:json;not null"`
	IsDefault         bool         `gorm:"column:is_default;not null;default:false"`
	IsDisabled        bool         `gorm:"column:is_disabled;not null;default:false"`
	RestAfterExercise *int         `gorm:"column:rest_after_s"`
}

// TableName provides the explicit table binding for GORM.
func (Exercise) TableName() string {
	return "exercises"
}

const (
	minNameLength = 1
	maxNameLength = 100
)

// ValidateName enforces the 1-100 character bound shared by exercises and
// workout templates.
func ValidateName(entity, name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < minNameLength {
		return errs.Validation(entity, "name", "must not be empty")
	}
	if len(trimmed) > maxNameLength {
		return errs.Validation(entity, "name", fmt.Sprintf("exceeds %d characters", maxNameLength))
	}
	return nil
}

// ValidateSets enforces the non-empty set list and non-negative numeric
// invariants shared by every exercise-bearing entity.
func ValidateSets(entity string, sets []Set) error {
	if len(sets) == 0 {
		return errs.Validation(entity, "sets", "must not be empty")
	}
	for index, set := range sets {
		if set.Value < 0 {
			return errs.Validation(entity, "sets", fmt.Sprintf("set %d has negative value", index))
		}
		if set.Weight < 0 {
			return errs.Validation(entity, "sets", fmt.Sprintf("set %d has negative weight", index))
		}
		if set.Rest != nil && *set.Rest < 0 {
			return errs.Validation(entity, "sets", fmt.Sprintf("set %d has negative rest", index))
		}
	}
	return nil
}

// ValidateRestAfter enforces that a rest-after-exercise value is positive
// when present.
func ValidateRestAfter(entity string, rest *int) error {
	if rest != nil && *rest <= 0 {
		return errs.Validation(entity, "restAfterExercise", "must be positive when set")
	}
	return nil
}

func (e Exercise) validate() error {
	if err := ValidateName("exercise", e.Name); err != nil {
		return err
	}
	if _, err := ParseExerciseType(string(e.Type)); err != nil {
		return err
	}
	if _, err := ParseExerciseMode(string(e.Mode)); err != nil {
		return err
	}
	if err := ValidateSets("exercise", e.Sets); err != nil {
		return err
	}
	return ValidateRestAfter("exercise", e.RestAfterExercise)
}
