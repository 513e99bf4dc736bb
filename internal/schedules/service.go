package schedules

import (
	"context"
	"errors"

	"github.com/repcal/backend/internal/civil"
	"github.com/repcal/backend/internal/errs"
	"github.com/repcal/backend/internal/workouts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingWorkouts = errors.New("workouts service is required")
	// ErrScheduleNotFound indicates that no schedule exists for the id.
	ErrScheduleNotFound = errors.New("schedules: schedule not found")
	// ErrOverrideNotFound indicates that no override exists for the occurrence.
	ErrOverrideNotFound = errors.New("schedules: override not found")
	// ErrOverrideExerciseNotFound indicates a missing override exercise row.
	ErrOverrideExerciseNotFound = errors.New("schedules: override exercise not found")
	noOpLogger                  = zap.NewNop()
)

const (
	opServiceNew        = "schedules.service.new"
	opCreate            = "schedules.create"
	opDelete            = "schedules.delete"
	opGet               = "schedules.get"
	opList              = "schedules.list"
	opOn                = "schedules.on"
	opEffective         = "schedules.effective_exercises"
	opGetOrCreate       = "schedules.get_or_create_override"
	opDeleteOverride    = "schedules.delete_override"
	opAddOverrideRow    = "schedules.add_override_exercise"
	opUpdateOverrideRow = "schedules.update_override_exercise"
	opRemoveOverrideRow = "schedules.remove_override_exercise"
	opReorderOverride   = "schedules.reorder_override_exercises"
)

// ServiceConfig wires the schedule and override-resolution service.
type ServiceConfig struct {
	Database *gorm.DB
	Workouts *workouts.Service
	Logger   *zap.Logger
}

// Service owns schedules, their per-date overrides, and effective-list
// resolution. Recurrence itself is pure (see recurrence.go).
type Service struct {
	db       *gorm.DB
	workouts *workouts.Service
	logger   *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errs.Service(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Workouts == nil {
		return nil, errs.Service(opServiceNew, "missing_workouts", errMissingWorkouts)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, workouts: cfg.Workouts, logger: logger}, nil
}

// Create attaches a workout to the calendar. The strict creation path
// rejects a missing or non-positive offset for offset recurrence; tolerant
// reads of historical rows remain the recurrence engine's concern.
func (s *Service) Create(ctx context.Context, workoutID uint, startDate civil.Date, recurrence Recurrence, offsetDays *int) (Schedule, error) {
	if _, err := ParseRecurrence(string(recurrence)); err != nil {
		return Schedule{}, err
	}
	if startDate.IsZero() {
		return Schedule{}, errs.Validation("schedule", "startDate", "must be set")
	}
	if recurrence == RecurrenceOffset {
		if offsetDays == nil || *offsetDays < 1 {
			return Schedule{}, errs.Validation("schedule", "offsetDays", "must be at least 1 for offset recurrence")
		}
	} else {
		offsetDays = nil
	}
	if _, err := s.workouts.Get(ctx, workoutID); err != nil {
		return Schedule{}, err
	}
	schedule := Schedule{
		WorkoutID:  workoutID,
		StartDate:  startDate,
		Recurrence: recurrence,
		OffsetDays: offsetDays,
	}
	if err := s.db.WithContext(ctx).Create(&schedule).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.Uint("workout_id", workoutID))
		return Schedule{}, errs.Referential(opCreate, err)
	}
	return schedule, nil
}

// Delete removes a schedule; its day overrides cascade away with it.
// Completion records are untouched and become orphans on the calendar.
func (s *Service) Delete(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&Schedule{}, id)
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.Uint("schedule_id", id))
		return errs.Referential(opDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// Get loads one schedule by id.
func (s *Service) Get(ctx context.Context, id uint) (Schedule, error) {
	var schedule Schedule
	err := s.db.WithContext(ctx).Take(&schedule, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Schedule{}, ErrScheduleNotFound
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.Uint("schedule_id", id))
		return Schedule{}, errs.Service(opGet, "query_failed", err)
	}
	return schedule, nil
}

// List returns all schedules in creation order.
func (s *Service) List(ctx context.Context) ([]Schedule, error) {
	var schedules []Schedule
	if err := s.db.WithContext(ctx).Order("id").Find(&schedules).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, errs.Service(opList, "query_failed", err)
	}
	return schedules, nil
}

// On returns the schedules whose rule fires on the date, in creation order.
func (s *Service) On(ctx context.Context, date civil.Date) ([]Schedule, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, errs.Service(opOn, "list_failed", err)
	}
	var matching []Schedule
	for _, schedule := range all {
		if OccursOn(schedule, date) {
			matching = append(matching, schedule)
		}
	}
	return matching, nil
}

// Workout exposes the backing template lookup to composition layers.
func (s *Service) Workout(ctx context.Context, workoutID uint) (workouts.Template, error) {
	return s.workouts.Get(ctx, workoutID)
}

// EffectiveExercises resolves the authoritative exercise list for one
// occurrence: the override's rows when an override exists for the date,
// otherwise the template's current rows. Never a merge of both.
func (s *Service) EffectiveExercises(ctx context.Context, scheduleID uint, date civil.Date) ([]workouts.ExerciseSpec, error) {
	override, err := s.findOverride(ctx, scheduleID, date)
	if err == nil {
		return specsOfOverride(override), nil
	}
	if !errors.Is(err, ErrOverrideNotFound) {
		return nil, errs.Service(opEffective, "override_lookup_failed", err)
	}
	schedule, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	template, err := s.workouts.Get(ctx, schedule.WorkoutID)
	if err != nil {
		return nil, err
	}
	return workouts.SpecsOf(template), nil
}

// GetOrCreateOverride returns the override for (schedule, date), creating it
// when absent. With copyFromTemplate the template's current rows are copied
// in, keeping order and set data and a back-reference per copied row; once
// copied, template edits no longer reach this occurrence.
func (s *Service) GetOrCreateOverride(ctx context.Context, scheduleID uint, date civil.Date, copyFromTemplate bool) (DayOverride, error) {
	existing, err := s.findOverride(ctx, scheduleID, date)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrOverrideNotFound) {
		return DayOverride{}, errs.Service(opGetOrCreate, "lookup_failed", err)
	}
	schedule, err := s.Get(ctx, scheduleID)
	if err != nil {
		return DayOverride{}, err
	}
	override := DayOverride{ScheduleID: schedule.ID, Date: date}
	if copyFromTemplate {
		template, err := s.workouts.Get(ctx, schedule.WorkoutID)
		if err != nil {
			return DayOverride{}, err
		}
		for _, row := range template.Exercises {
			templateRowID := row.ID
			override.Exercises = append(override.Exercises, OverrideExercise{
				ExerciseID:         row.ExerciseID,
				TemplateExerciseID: &templateRowID,
				Type:               row.Type,
				Mode:               row.Mode,
				OrderIndex:         row.OrderIndex,
				Sets:               row.Sets,
				RestAfterExercise:  row.RestAfterExercise,
			})
		}
	}
	if err := s.db.WithContext(ctx).Create(&override).Error; err != nil {
		s.logError(opGetOrCreate, "insert_failed", err, zap.Uint("schedule_id", scheduleID), zap.String("date", date.String()))
		return DayOverride{}, errs.Referential(opGetOrCreate, err)
	}
	return s.findOverride(ctx, scheduleID, date)
}

// DeleteOverride reverts the occurrence to the template. Removing the row is
// the whole revert; its exercise rows cascade away.
func (s *Service) DeleteOverride(ctx context.Context, scheduleID uint, date civil.Date) error {
	override, err := s.findOverride(ctx, scheduleID, date)
	if err != nil {
		return err
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("override_id = ?", override.ID).Delete(&OverrideExercise{}).Error; err != nil {
			return errs.Referential(opDeleteOverride, err)
		}
		return errs.Referential(opDeleteOverride, tx.Delete(&DayOverride{}, override.ID).Error)
	})
	if txErr != nil {
		s.logError(opDeleteOverride, "transaction_failed", txErr, zap.Uint("override_id", override.ID))
	}
	return txErr
}

// AddOverrideExercise appends a fresh (non-copied) exercise row to an
// override with the next order index, defaulting from the catalog exercise.
func (s *Service) AddOverrideExercise(ctx context.Context, overrideID, exerciseID uint) (OverrideExercise, error) {
	var override DayOverride
	err := s.db.WithContext(ctx).
		Preload("Exercises", func(db *gorm.DB) *gorm.DB { return db.Order("order_index") }).
		Take(&override, overrideID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OverrideExercise{}, ErrOverrideNotFound
	}
	if err != nil {
		return OverrideExercise{}, errs.Service(opAddOverrideRow, "lookup_failed", err)
	}
	exercise, err := s.workouts.CatalogExercise(ctx, exerciseID)
	if err != nil {
		return OverrideExercise{}, err
	}
	row := OverrideExercise{
		OverrideID:        override.ID,
		ExerciseID:        exercise.ID,
		Type:              exercise.Type,
		Mode:              exercise.Mode,
		OrderIndex:        len(override.Exercises),
		Sets:              exercise.Sets,
		RestAfterExercise: exercise.RestAfterExercise,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logError(opAddOverrideRow, "insert_failed", err, zap.Uint("override_id", overrideID))
		return OverrideExercise{}, errs.Referential(opAddOverrideRow, err)
	}
	return row, nil
}

// UpdateOverrideExercise rewrites one override row's editable fields. Rows
// belonging to a different override are treated as missing.
func (s *Service) UpdateOverrideExercise(ctx context.Context, row OverrideExercise) (OverrideExercise, error) {
	if err := workouts.ValidateSpecs("override", []workouts.ExerciseSpec{{
		ExerciseID:        row.ExerciseID,
		Type:              row.Type,
		Mode:              row.Mode,
		Sets:              row.Sets,
		RestAfterExercise: row.RestAfterExercise,
	}}); err != nil {
		return OverrideExercise{}, err
	}
	var existing OverrideExercise
	err := s.db.WithContext(ctx).
		Where("override_id = ? AND id = ?", row.OverrideID, row.ID).
		Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OverrideExercise{}, ErrOverrideExerciseNotFound
	}
	if err != nil {
		return OverrideExercise{}, errs.Service(opUpdateOverrideRow, "lookup_failed", err)
	}
	row.ExerciseID = existing.ExerciseID
	row.OrderIndex = existing.OrderIndex
	row.TemplateExerciseID = existing.TemplateExerciseID
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		s.logError(opUpdateOverrideRow, "save_failed", err, zap.Uint("override_exercise_id", row.ID))
		return OverrideExercise{}, errs.Referential(opUpdateOverrideRow, err)
	}
	return row, nil
}

// RemoveOverrideExercise deletes one row and keeps the order contiguous.
func (s *Service) RemoveOverrideExercise(ctx context.Context, overrideID, rowID uint) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("override_id = ? AND id = ?", overrideID, rowID).Delete(&OverrideExercise{})
		if result.Error != nil {
			return errs.Referential(opRemoveOverrideRow, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrOverrideExerciseNotFound
		}
		var rows []OverrideExercise
		if err := tx.Where("override_id = ?", overrideID).Order("order_index").Find(&rows).Error; err != nil {
			return errs.Service(opRemoveOverrideRow, "renumber_query_failed", err)
		}
		for position, row := range rows {
			if row.OrderIndex == position {
				continue
			}
			err := tx.Model(&OverrideExercise{}).Where("id = ?", row.ID).Update("order_index", position).Error
			if err != nil {
				return errs.Service(opRemoveOverrideRow, "renumber_update_failed", err)
			}
		}
		return nil
	})
	if txErr != nil && !errors.Is(txErr, ErrOverrideExerciseNotFound) {
		s.logError(opRemoveOverrideRow, "transaction_failed", txErr, zap.Uint("override_id", overrideID))
	}
	return txErr
}

// ReorderOverrideExercises rewrites order indices to match the given row id
// sequence, which must cover the override's rows exactly.
func (s *Service) ReorderOverrideExercises(ctx context.Context, overrideID uint, orderedRowIDs []uint) error {
	var rows []OverrideExercise
	err := s.db.WithContext(ctx).Where("override_id = ?", overrideID).Find(&rows).Error
	if err != nil {
		return errs.Service(opReorderOverride, "query_failed", err)
	}
	if len(orderedRowIDs) != len(rows) {
		return errs.Validation("override", "orderIndex", "reorder must name every exercise row exactly once")
	}
	known := make(map[uint]bool, len(rows))
	for _, row := range rows {
		known[row.ID] = true
	}
	for _, rowID := range orderedRowIDs {
		if !known[rowID] {
			return errs.Validation("override", "orderIndex", "reorder names a row outside this override")
		}
		delete(known, rowID)
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for position, rowID := range orderedRowIDs {
			err := tx.Model(&OverrideExercise{}).
				Where("override_id = ? AND id = ?", overrideID, rowID).
				Update("order_index", position).Error
			if err != nil {
				return errs.Service(opReorderOverride, "update_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		s.logError(opReorderOverride, "transaction_failed", txErr, zap.Uint("override_id", overrideID))
	}
	return txErr
}

func (s *Service) findOverride(ctx context.Context, scheduleID uint, date civil.Date) (DayOverride, error) {
	var override DayOverride
	err := s.db.WithContext(ctx).
		Preload("Exercises", func(db *gorm.DB) *gorm.DB { return db.Order("order_index") }).
		Where("schedule_id = ? AND date = ?", scheduleID, date.String()).
		Take(&override).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DayOverride{}, ErrOverrideNotFound
	}
	if err != nil {
		return DayOverride{}, err
	}
	return override, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("schedules service error", attrs...)
}
