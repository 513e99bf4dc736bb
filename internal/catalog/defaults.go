package catalog

// DefaultSetsFor returns the starter set list presentation forms pre-fill
// when a user picks an exercise type and mode. Pure; the caller may edit the
// result freely before creating the exercise.
func DefaultSetsFor(exerciseType ExerciseType, mode ExerciseMode) []Set {
	switch mode {
	case ModeReps:
		return []Set{{Value: 10}, {Value: 10}, {Value: 10}}
	case ModeVariableSets:
		return []Set{{Value: 12}, {Value: 10}, {Value: 8}}
	case ModePyramid:
		return []Set{{Value: 8}, {Value: 10}, {Value: 12}, {Value: 10}, {Value: 8}}
	case ModeStatic:
		return []Set{{Value: 30}, {Value: 30}, {Value: 30}}
	default:
		if exerciseType == ExerciseTypeStatic {
			return []Set{{Value: 30}}
		}
		return []Set{{Value: 10}}
	}
}

func defaultExercises() []Exercise {
	return []Exercise{
		{Name: "Push-up", Type: ExerciseTypeDynamic, Mode: ModeReps, Sets: DefaultSetsFor(ExerciseTypeDynamic, ModeReps), IsDefault: true},
		{Name: "Pull-up", Type: ExerciseTypeDynamic, Mode: ModeVariableSets, Sets: DefaultSetsFor(ExerciseTypeDynamic, ModeVariableSets), IsDefault: true},
		{Name: "Squat", Type: ExerciseTypeDynamic, Mode: ModeReps, Sets: DefaultSetsFor(ExerciseTypeDynamic, ModeReps), IsDefault: true},
		{Name: "Dip", Type: ExerciseTypeDynamic, Mode: ModePyramid, Sets: DefaultSetsFor(ExerciseTypeDynamic, ModePyramid), IsDefault: true},
		{Name: "Plank", Type: ExerciseTypeStatic, Mode: ModeStatic, Sets: DefaultSetsFor(ExerciseTypeStatic, ModeStatic), IsDefault: true},
		{Name: "Hollow Hold", Type: ExerciseTypeStatic, Mode: ModeStatic, Sets: DefaultSetsFor(ExerciseTypeStatic, ModeStatic), IsDefault: true},
	}
}
