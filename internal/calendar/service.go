// Package calendar composes recurrence, override resolution, and completion
// tracking into the "what happens on date X" view. Completed history is never
// silently dropped: records whose schedule no longer covers the date surface
// as synthetic orphaned entries built from their frozen snapshots.
package calendar

import (
	"context"
	"errors"

	"github.com/repcal/backend/internal/civil"
	"github.com/repcal/backend/internal/completions"
	"github.com/repcal/backend/internal/errs"
	"github.com/repcal/backend/internal/schedules"
	"github.com/repcal/backend/internal/workouts"
	"go.uber.org/zap"
)

var (
	errMissingSchedules   = errors.New("schedules service is required")
	errMissingCompletions = errors.New("completions service is required")
	noOpLogger            = zap.NewNop()
)

const (
	opServiceNew = "calendar.service.new"
	opWorkoutsOn = "calendar.workouts_on"
	opRange      = "calendar.workouts_in_range"
)

// Entry is one displayable occurrence on a calendar day. Orphaned entries
// are synthetic and non-persistent: they exist only in the returned view,
// backed entirely by a completion record's frozen data.
type Entry struct {
	ScheduleID    uint                    `json:"scheduleId,omitempty"`
	WorkoutID     uint                    `json:"workoutId"`
	Name          string                  `json:"name"`
	IconCodePoint int64                   `json:"iconCodePoint"`
	Exercises     []workouts.ExerciseSpec `json:"exercises"`
	Completed     bool                    `json:"completed"`
	Orphaned      bool                    `json:"orphaned"`
	CompletionID  string                  `json:"completionId,omitempty"`
}

// ServiceConfig wires the calendar aggregator.
type ServiceConfig struct {
	Schedules   *schedules.Service
	Completions *completions.Service
	Logger      *zap.Logger
}

// Service answers calendar queries by composing the three subsystems.
type Service struct {
	schedules   *schedules.Service
	completions *completions.Service
	logger      *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Schedules == nil {
		return nil, errs.Service(opServiceNew, "missing_schedules", errMissingSchedules)
	}
	if cfg.Completions == nil {
		return nil, errs.Service(opServiceNew, "missing_completions", errMissingCompletions)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{schedules: cfg.Schedules, completions: cfg.Completions, logger: logger}, nil
}

// WorkoutsOn returns the entries for one day: live schedule occurrences in
// schedule order, then orphaned completions. A completed entry's name, icon,
// and exercise list come from the completion snapshot, never from the live
// template, so editing a template never rewrites displayed history.
func (s *Service) WorkoutsOn(ctx context.Context, date civil.Date) ([]Entry, error) {
	live, err := s.schedules.On(ctx, date)
	if err != nil {
		s.logError(opWorkoutsOn, "schedules_failed", err, zap.String("date", date.String()))
		return nil, errs.Service(opWorkoutsOn, "schedules_failed", err)
	}

	entries := make([]Entry, 0, len(live))
	coveredWorkouts := make(map[uint]bool, len(live))
	for _, schedule := range live {
		coveredWorkouts[schedule.WorkoutID] = true
		entry, err := s.liveEntry(ctx, schedule, date)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	completed, err := s.completions.ForDate(ctx, date)
	if err != nil {
		s.logError(opWorkoutsOn, "completions_failed", err, zap.String("date", date.String()))
		return nil, errs.Service(opWorkoutsOn, "completions_failed", err)
	}
	for _, record := range completed {
		if coveredWorkouts[record.WorkoutID] {
			continue
		}
		entries = append(entries, Entry{
			WorkoutID:     record.WorkoutID,
			Name:          record.WorkoutName,
			IconCodePoint: record.IconCodePoint,
			Exercises:     record.Specs(),
			Completed:     true,
			Orphaned:      true,
			CompletionID:  record.ID,
		})
	}
	return entries, nil
}

// WorkoutsInRange returns entries for every day in [from, to] that has any,
// keyed by the civil date string.
func (s *Service) WorkoutsInRange(ctx context.Context, from, to civil.Date) (map[string][]Entry, error) {
	if to.Before(from) {
		return nil, errs.Validation("calendar", "range", "end date precedes start date")
	}
	days := make(map[string][]Entry)
	for cursor := from; !cursor.After(to); cursor = cursor.AddDays(1) {
		entries, err := s.WorkoutsOn(ctx, cursor)
		if err != nil {
			s.logError(opRange, "day_failed", err, zap.String("date", cursor.String()))
			return nil, err
		}
		if len(entries) > 0 {
			days[cursor.String()] = entries
		}
	}
	return days, nil
}

func (s *Service) liveEntry(ctx context.Context, schedule schedules.Schedule, date civil.Date) (Entry, error) {
	record, err := s.completions.Find(ctx, schedule.WorkoutID, date)
	if err == nil {
		return Entry{
			ScheduleID:    schedule.ID,
			WorkoutID:     schedule.WorkoutID,
			Name:          record.WorkoutName,
			IconCodePoint: record.IconCodePoint,
			Exercises:     record.Specs(),
			Completed:     true,
			CompletionID:  record.ID,
		}, nil
	}
	if !errors.Is(err, completions.ErrCompletionNotFound) {
		return Entry{}, errs.Service(opWorkoutsOn, "completion_lookup_failed", err)
	}

	specs, err := s.schedules.EffectiveExercises(ctx, schedule.ID, date)
	if err != nil {
		return Entry{}, errs.Service(opWorkoutsOn, "resolve_failed", err)
	}
	template, err := s.schedules.Workout(ctx, schedule.WorkoutID)
	if err != nil {
		return Entry{}, errs.Service(opWorkoutsOn, "workout_lookup_failed", err)
	}
	return Entry{
		ScheduleID:    schedule.ID,
		WorkoutID:     schedule.WorkoutID,
		Name:          template.Name,
		IconCodePoint: template.IconCodePoint,
		Exercises:     specs,
	}, nil
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
	s.logger.Error("calendar service error", attrs...)
}
