package completions

import (
	"context"
	"errors"
	"time"

	"github.com/repcal/backend/internal/civil"
	"github.com/repcal/backend/internal/errs"
	"github.com/repcal/backend/internal/schedules"
	"github.com/repcal/backend/internal/workouts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingWorkouts   = errors.New("workouts service is required")
	errMissingIDProvider = errors.New("id provider is required")
	// ErrCompletionNotFound indicates that no completion record exists.
	ErrCompletionNotFound = errors.New("completions: record not found")
	// ErrOrphanConfirmationRequired gates uncompleting an orphaned record:
	// with no schedule left to fall back to, deletion is irreversible and the
	// caller must confirm it explicitly.
	ErrOrphanConfirmationRequired = errors.New("completions: uncompleting an orphaned record is irreversible and needs confirmation")
	noOpLogger                    = zap.NewNop()
)

const (
	opServiceNew = "completions.service.new"
	opComplete   = "completions.complete"
	opUncomplete = "completions.uncomplete"
	opAmend      = "completions.amend"
	opFind       = "completions.find"
	opForDate    = "completions.for_date"
	opHistory    = "completions.history"
	opOrphaned   = "completions.is_orphaned"
	opCount      = "completions.count_for_workout"
)

// ServiceConfig wires the completion tracker.
type ServiceConfig struct {
	Database   *gorm.DB
	Workouts   *workouts.Service
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service records and preserves completion facts independently of the
// mutable template and schedule they came from.
type Service struct {
	db         *gorm.DB
	workouts   *workouts.Service
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errs.Service(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Workouts == nil {
		return nil, errs.Service(opServiceNew, "missing_workouts", errMissingWorkouts)
	}
	if cfg.IDProvider == nil {
		return nil, errs.Service(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, workouts: cfg.Workouts, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// Complete snapshots the given exercise list (commonly the resolver's
// effective list) into a new record, capturing the workout's current name
// and icon. The record is frozen from here on.
func (s *Service) Complete(ctx context.Context, workoutID uint, date civil.Date, specs []workouts.ExerciseSpec) (Occurrence, error) {
	if date.IsZero() {
		return Occurrence{}, errs.Validation("completion", "scheduledDate", "must be set")
	}
	if err := workouts.ValidateSpecs("completion", specs); err != nil {
		return Occurrence{}, err
	}
	template, err := s.workouts.Get(ctx, workoutID)
	if err != nil {
		return Occurrence{}, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opComplete, "id_generation_failed", err)
		return Occurrence{}, errs.Service(opComplete, "id_generation_failed", err)
	}
	occurrence := Occurrence{
		ID:            id,
		WorkoutID:     template.ID,
		WorkoutName:   template.Name,
		IconCodePoint: template.IconCodePoint,
		ScheduledDate: date,
		CompletedAt:   s.clock().UTC(),
		Exercises:     rowsFromSpecs(id, specs),
	}
	if err := s.db.WithContext(ctx).Create(&occurrence).Error; err != nil {
		s.logError(opComplete, "insert_failed", err, zap.Uint("workout_id", workoutID), zap.String("date", date.String()))
		return Occurrence{}, errs.Referential(opComplete, err)
	}
	return occurrence, nil
}

// Uncomplete deletes the record, returning the occurrence to its scheduled
// state. Orphaned records have no scheduled state to return to, so the
// delete is refused until the caller confirms it.
func (s *Service) Uncomplete(ctx context.Context, id string, confirmed bool) error {
	occurrence, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	orphaned, err := s.IsOrphaned(ctx, occurrence)
	if err != nil {
		return err
	}
	if orphaned && !confirmed {
		return ErrOrphanConfirmationRequired
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("occurrence_id = ?", id).Delete(&CompletedExercise{}).Error; err != nil {
			return errs.Referential(opUncomplete, err)
		}
		return errs.Referential(opUncomplete, tx.Delete(&Occurrence{}, "id = ?", id).Error)
	})
	if txErr != nil {
		s.logError(opUncomplete, "transaction_failed", txErr, zap.String("completion_id", id))
	}
	return txErr
}

// Amend corrects a record's exercise values in place. The snapshot stays a
// snapshot: name, icon, dates, and workout reference are immutable.
func (s *Service) Amend(ctx context.Context, id string, specs []workouts.ExerciseSpec) (Occurrence, error) {
	if err := workouts.ValidateSpecs("completion", specs); err != nil {
		return Occurrence{}, err
	}
	if _, err := s.get(ctx, id); err != nil {
		return Occurrence{}, err
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("occurrence_id = ?", id).Delete(&CompletedExercise{}).Error; err != nil {
			return errs.Referential(opAmend, err)
		}
		rows := rowsFromSpecs(id, specs)
		return errs.Referential(opAmend, tx.Create(&rows).Error)
	})
	if txErr != nil {
		s.logError(opAmend, "transaction_failed", txErr, zap.String("completion_id", id))
		return Occurrence{}, txErr
	}
	return s.get(ctx, id)
}

// IsCompleted reports whether a completion record exists for the workout on
// the civil date.
func (s *Service) IsCompleted(ctx context.Context, workoutID uint, date civil.Date) (bool, error) {
	_, err := s.Find(ctx, workoutID, date)
	if errors.Is(err, ErrCompletionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Find returns the completion record for (workout, date). Stored and query
// dates are both civil dates, so records written with a time-of-day in older
// generations still match a plain-date query for the same day.
func (s *Service) Find(ctx context.Context, workoutID uint, date civil.Date) (Occurrence, error) {
	var occurrence Occurrence
	err := s.db.WithContext(ctx).
		Preload("Exercises", func(db *gorm.DB) *gorm.DB { return db.Order("order_index") }).
		Where("workout_id = ? AND substr(scheduled_date, 1, 10) = ?", workoutID, date.String()).
		Take(&occurrence).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Occurrence{}, ErrCompletionNotFound
	}
	if err != nil {
		s.logError(opFind, "query_failed", err, zap.Uint("workout_id", workoutID), zap.String("date", date.String()))
		return Occurrence{}, errs.Service(opFind, "query_failed", err)
	}
	return occurrence, nil
}

// Get loads one record by id.
func (s *Service) Get(ctx context.Context, id string) (Occurrence, error) {
	return s.get(ctx, id)
}

// ForDate returns every completion record whose scheduled date is the given
// day, oldest completion first.
func (s *Service) ForDate(ctx context.Context, date civil.Date) ([]Occurrence, error) {
	var occurrences []Occurrence
	err := s.db.WithContext(ctx).
		Preload("Exercises", func(db *gorm.DB) *gorm.DB { return db.Order("order_index") }).
		Where("substr(scheduled_date, 1, 10) = ?", date.String()).
		Order("completed_at").
		Find(&occurrences).Error
	if err != nil {
		s.logError(opForDate, "query_failed", err, zap.String("date", date.String()))
		return nil, errs.Service(opForDate, "query_failed", err)
	}
	return occurrences, nil
}

// History returns the frozen rows for one exercise across all completions,
// most recent completion first, regardless of which workout it appeared in.
func (s *Service) History(ctx context.Context, exerciseID uint) ([]CompletedExercise, error) {
	var rows []CompletedExercise
	err := s.db.WithContext(ctx).
		Joins("JOIN completed_occurrences ON completed_occurrences.id = completed_exercises.occurrence_id").
		Where("completed_exercises.exercise_id = ?", exerciseID).
		Order("completed_occurrences.completed_at DESC").
		Find(&rows).Error
	if err != nil {
		s.logError(opHistory, "query_failed", err, zap.Uint("exercise_id", exerciseID))
		return nil, errs.Service(opHistory, "query_failed", err)
	}
	return rows, nil
}

// CountForWorkout reports how many completion records reference the workout.
// The workouts service consults it before deleting a template.
func (s *Service) CountForWorkout(ctx context.Context, workoutID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Occurrence{}).Where("workout_id = ?", workoutID).Count(&count).Error
	if err != nil {
		s.logError(opCount, "query_failed", err, zap.Uint("workout_id", workoutID))
		return 0, errs.Service(opCount, "query_failed", err)
	}
	return count, nil
}

// IsOrphaned reports whether no live schedule places the record's workout on
// its scheduled date anymore: the schedule or workout was deleted, or the
// rule no longer covers the day.
func (s *Service) IsOrphaned(ctx context.Context, occurrence Occurrence) (bool, error) {
	var liveSchedules []schedules.Schedule
	err := s.db.WithContext(ctx).
		Where("workout_id = ?", occurrence.WorkoutID).
		Find(&liveSchedules).Error
	if err != nil {
		s.logError(opOrphaned, "query_failed", err, zap.String("completion_id", occurrence.ID))
		return false, errs.Service(opOrphaned, "query_failed", err)
	}
	for _, schedule := range liveSchedules {
		if schedules.OccursOn(schedule, occurrence.ScheduledDate) {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) get(ctx context.Context, id string) (Occurrence, error) {
	var occurrence Occurrence
	err := s.db.WithContext(ctx).
		Preload("Exercises", func(db *gorm.DB) *gorm.DB { return db.Order("order_index") }).
		Take(&occurrence, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Occurrence{}, ErrCompletionNotFound
	}
	if err != nil {
		return Occurrence{}, errs.Service(opFind, "query_failed", err)
	}
	return occurrence, nil
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
	s.logger.Error("completions service error", attrs...)
}
