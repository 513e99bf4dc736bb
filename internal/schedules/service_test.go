package schedules

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/repcal/backend/internal/catalog"
	"github.com/repcal/backend/internal/civil"
	"github.com/repcal/backend/internal/errs"
	"github.com/repcal/backend/internal/workouts"
	"gorm.io/gorm"
)

type fixture struct {
	schedules *Service
	workouts  *workouts.Service
	catalog   *catalog.Service
	db        *gorm.DB
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:schedules_test_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	models := []any{
		&catalog.Exercise{}, &workouts.Template{}, &workouts.TemplateExercise{},
		&Schedule{}, &DayOverride{}, &OverrideExercise{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build catalog service: %v", err)
	}
	workoutService, err := workouts.NewService(workouts.ServiceConfig{Database: db, Catalog: catalogService})
	if err != nil {
		t.Fatalf("failed to build workouts service: %v", err)
	}
	scheduleService, err := NewService(ServiceConfig{Database: db, Workouts: workoutService})
	if err != nil {
		t.Fatalf("failed to build schedules service: %v", err)
	}
	return fixture{schedules: scheduleService, workouts: workoutService, catalog: catalogService, db: db}
}

func (f fixture) seedWorkout(t *testing.T, name string, exerciseNames ...string) workouts.Template {
	t.Helper()
	ctx := context.Background()
	specs := make([]workouts.ExerciseSpec, 0, len(exerciseNames))
	for index, exerciseName := range exerciseNames {
		exercise, err := f.catalog.Create(ctx, catalog.Exercise{
			Name: exerciseName,
			Type: catalog.ExerciseTypeDynamic,
			Mode: catalog.ModeReps,
			Sets: []catalog.Set{{Value: 10}, {Value: 8}},
		})
		if err != nil {
			t.Fatalf("failed to seed exercise: %v", err)
		}
		specs = append(specs, workouts.ExerciseSpec{
			ExerciseID: exercise.ID,
			Type:       exercise.Type,
			Mode:       exercise.Mode,
			OrderIndex: index,
			Sets:       exercise.Sets,
		})
	}
	template, err := f.workouts.Create(ctx, name, 0, specs)
	if err != nil {
		t.Fatalf("failed to seed workout: %v", err)
	}
	return template
}

func TestCreateRejectsOffsetWithoutDays(t *testing.T) {
	f := newFixture(t)
	template := f.seedWorkout(t, "Push Day", "Push-up")
	_, err := f.schedules.Create(context.Background(), template.ID, civil.New(2025, time.January, 10), RecurrenceOffset, nil)
	if !errs.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	zero := 0
	_, err = f.schedules.Create(context.Background(), template.ID, civil.New(2025, time.January, 10), RecurrenceOffset, &zero)
	if !errs.IsValidation(err) {
		t.Fatalf("expected validation error for zero offset, got %v", err)
	}
}

func TestCreateIgnoresOffsetForWeekly(t *testing.T) {
	f := newFixture(t)
	template := f.seedWorkout(t, "Push Day", "Push-up")
	three := 3
	schedule, err := f.schedules.Create(context.Background(), template.ID, civil.New(2025, time.January, 15), RecurrenceWeekly, &three)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if schedule.OffsetDays != nil {
		t.Fatalf("offset days must be cleared for non-offset recurrence")
	}
}

func TestWorkoutDeleteRestrictedWhileScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template := f.seedWorkout(t, "Push Day", "Push-up")
	if _, err := f.schedules.Create(ctx, template.ID, civil.New(2025, time.January, 15), RecurrenceWeekly, nil); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	err := f.workouts.Delete(ctx, template.ID, false)
	if !errs.IsReferential(err) {
		t.Fatalf("expected referential error deleting scheduled workout, got %v", err)
	}
}

func TestEffectiveExercisesFollowsTemplateWithoutOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template := f.seedWorkout(t, "Push Day", "Push-up", "Dip")
	schedule, err := f.schedules.Create(ctx, template.ID, civil.New(2025, time.January, 15), RecurrenceWeekly, nil)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	specs, err := f.schedules.EffectiveExercises(ctx, schedule.ID, civil.New(2025, time.January, 22))
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
}

func TestOverridePrecedenceSurvivesTemplateEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template := f.seedWorkout(t, "Push Day", "Push-up", "Dip")
	schedule, err := f.schedules.Create(ctx, template.ID, civil.New(2025, time.January, 15), RecurrenceWeekly, nil)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	date := civil.New(2025, time.January, 22)

	override, err := f.schedules.GetOrCreateOverride(ctx, schedule.ID, date, true)
	if err != nil {
		t.Fatalf("unexpected override error: %v", err)
	}
	if len(override.Exercises) != 2 {
		t.Fatalf("expected copied rows, got %d", len(override.Exercises))
	}
	for _, row := range override.Exercises {
		if row.TemplateExerciseID == nil {
			t.Fatalf("copied row missing traceability back-reference")
		}
	}

	// Shrink the template; the override must not notice.
	reduced := []workouts.ExerciseSpec{workouts.SpecsOf(template)[0]}
	if _, err := f.workouts.Update(ctx, template.ID, template.Name, 0, reduced); err != nil {
		t.Fatalf("unexpected template update error: %v", err)
	}

	specs, err := f.schedules.EffectiveExercises(ctx, schedule.ID, date)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("override must stay authoritative, got %d specs", len(specs))
	}

	// Other dates keep following the live template.
	otherDate := civil.New(2025, time.January, 29)
	otherSpecs, err := f.schedules.EffectiveExercises(ctx, schedule.ID, otherDate)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if len(otherSpecs) != 1 {
		t.Fatalf("non-overridden date must follow template, got %d specs", len(otherSpecs))
	}
}

func TestDeleteOverrideRevertsToTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template := f.seedWorkout(t, "Push Day", "Push-up", "Dip")
	schedule, err := f.schedules.Create(ctx, template.ID, civil.New(2025, time.January, 15), RecurrenceWeekly, nil)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	date := civil.New(2025, time.January, 22)
	override, err := f.schedules.GetOrCreateOverride(ctx, schedule.ID, date, false)
	if err != nil {
		t.Fatalf("unexpected override error: %v", err)
	}
	if len(override.Exercises) != 0 {
		t.Fatalf("empty override expected, got %d rows", len(override.Exercises))
	}

	// Empty override is still authoritative: zero exercises that day.
	specs, err := f.schedules.EffectiveExercises(ctx, schedule.ID, date)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if len(specs) != 0 {
		t.Fatalf("empty override must yield empty list, got %d", len(specs))
	}

	if err := f.schedules.DeleteOverride(ctx, schedule.ID, date); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	specs, err = f.schedules.EffectiveExercises(ctx, schedule.ID, date)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected template list after revert, got %d", len(specs))
	}
}

func TestReorderOverrideExercises(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template := f.seedWorkout(t, "Push Day", "Push-up", "Dip")
	schedule, err := f.schedules.Create(ctx, template.ID, civil.New(2025, time.January, 15), RecurrenceWeekly, nil)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	date := civil.New(2025, time.January, 22)
	override, err := f.schedules.GetOrCreateOverride(ctx, schedule.ID, date, true)
	if err != nil {
		t.Fatalf("unexpected override error: %v", err)
	}
	if len(override.Exercises) != 2 {
		t.Fatalf("expected copied rows, got %d", len(override.Exercises))
	}

	reversed := []uint{override.Exercises[1].ID, override.Exercises[0].ID}
	if err := f.schedules.ReorderOverrideExercises(ctx, override.ID, reversed); err != nil {
		t.Fatalf("unexpected reorder error: %v", err)
	}
	specs, err := f.schedules.EffectiveExercises(ctx, schedule.ID, date)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs[0].ExerciseID != override.Exercises[1].ExerciseID || specs[1].ExerciseID != override.Exercises[0].ExerciseID {
		t.Fatalf("reorder not applied: %+v", specs)
	}
}

func TestReorderOverrideRejectsForeignRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template := f.seedWorkout(t, "Push Day", "Push-up", "Dip")
	schedule, err := f.schedules.Create(ctx, template.ID, civil.New(2025, time.January, 15), RecurrenceWeekly, nil)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	override, err := f.schedules.GetOrCreateOverride(ctx, schedule.ID, civil.New(2025, time.January, 22), true)
	if err != nil {
		t.Fatalf("unexpected override error: %v", err)
	}

	err = f.schedules.ReorderOverrideExercises(ctx, override.ID, []uint{override.Exercises[0].ID})
	if !errs.IsValidation(err) {
		t.Fatalf("expected validation error for partial reorder, got %v", err)
	}
	err = f.schedules.ReorderOverrideExercises(ctx, override.ID, []uint{override.Exercises[0].ID, 9999})
	if !errs.IsValidation(err) {
		t.Fatalf("expected validation error for foreign row, got %v", err)
	}
}

func TestUpdateOverrideExerciseScopedToOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template := f.seedWorkout(t, "Push Day", "Push-up")
	schedule, err := f.schedules.Create(ctx, template.ID, civil.New(2025, time.January, 15), RecurrenceWeekly, nil)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	first, err := f.schedules.GetOrCreateOverride(ctx, schedule.ID, civil.New(2025, time.January, 22), true)
	if err != nil {
		t.Fatalf("unexpected override error: %v", err)
	}
	second, err := f.schedules.GetOrCreateOverride(ctx, schedule.ID, civil.New(2025, time.January, 29), true)
	if err != nil {
		t.Fatalf("unexpected override error: %v", err)
	}

	foreign := second.Exercises[0]
	foreign.OverrideID = first.ID
	foreign.Sets = []catalog.Set{{Value: 99}}
	if _, err := f.schedules.UpdateOverrideExercise(ctx, foreign); !errors.Is(err, ErrOverrideExerciseNotFound) {
		t.Fatalf("expected missing-row error for a row outside the override, got %v", err)
	}
	untouched, err := f.schedules.GetOrCreateOverride(ctx, schedule.ID, civil.New(2025, time.January, 29), true)
	if err != nil {
		t.Fatalf("unexpected reload error: %v", err)
	}
	if untouched.Exercises[0].Sets[0].Value == 99 {
		t.Fatalf("row edited through the wrong override")
	}

	owned := first.Exercises[0]
	owned.Sets = []catalog.Set{{Value: 99}}
	updated, err := f.schedules.UpdateOverrideExercise(ctx, owned)
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.OverrideID != first.ID || updated.Sets[0].Value != 99 {
		t.Fatalf("in-scope update not applied: %+v", updated)
	}
}

func TestGetOrCreateOverrideIsIdempotentPerDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template := f.seedWorkout(t, "Push Day", "Push-up")
	schedule, err := f.schedules.Create(ctx, template.ID, civil.New(2025, time.January, 15), RecurrenceWeekly, nil)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	date := civil.New(2025, time.January, 22)
	first, err := f.schedules.GetOrCreateOverride(ctx, schedule.ID, date, true)
	if err != nil {
		t.Fatalf("unexpected override error: %v", err)
	}
	second, err := f.schedules.GetOrCreateOverride(ctx, schedule.ID, date, true)
	if err != nil {
		t.Fatalf("unexpected second override error: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one override per (schedule, date), got %d and %d", first.ID, second.ID)
	}
}

func TestScheduleDeleteCascadesOverrides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template := f.seedWorkout(t, "Push Day", "Push-up")
	schedule, err := f.schedules.Create(ctx, template.ID, civil.New(2025, time.January, 15), RecurrenceWeekly, nil)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := f.schedules.GetOrCreateOverride(ctx, schedule.ID, civil.New(2025, time.January, 22), true); err != nil {
		t.Fatalf("unexpected override error: %v", err)
	}

	if err := f.schedules.Delete(ctx, schedule.ID); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	var overrideCount, rowCount int64
	if err := f.db.Model(&DayOverride{}).Count(&overrideCount).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if err := f.db.Model(&OverrideExercise{}).Count(&rowCount).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if overrideCount != 0 || rowCount != 0 {
		t.Fatalf("expected cascade to remove overrides, got %d overrides and %d rows", overrideCount, rowCount)
	}
}

func TestOnReturnsMatchingSchedulesInCreationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	template := f.seedWorkout(t, "Push Day", "Push-up")
	other := f.seedWorkout(t, "Leg Day", "Squat")

	wednesday := civil.New(2025, time.January, 15)
	if _, err := f.schedules.Create(ctx, template.ID, wednesday, RecurrenceWeekly, nil); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	three := 3
	if _, err := f.schedules.Create(ctx, other.ID, civil.New(2025, time.January, 10), RecurrenceOffset, &three); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	// 2025-01-22 is a Wednesday and start+12 days, so both fire.
	matching, err := f.schedules.On(ctx, civil.New(2025, time.January, 22))
	if err != nil {
		t.Fatalf("unexpected query error: %v", err)
	}
	if len(matching) != 2 {
		t.Fatalf("expected both schedules, got %d", len(matching))
	}
	if matching[0].WorkoutID != template.ID || matching[1].WorkoutID != other.ID {
		t.Fatalf("schedules out of creation order: %+v", matching)
	}

	// 2025-01-16 is a Thursday and not congruent to the offset start.
	none, err := f.schedules.On(ctx, civil.New(2025, time.January, 17))
	if err != nil {
		t.Fatalf("unexpected query error: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no schedules, got %+v", none)
	}
}

func TestDeleteMissingSchedule(t *testing.T) {
	f := newFixture(t)
	if err := f.schedules.Delete(context.Background(), 404); !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("expected ErrScheduleNotFound, got %v", err)
	}
}
