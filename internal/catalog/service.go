package catalog

import (
	"context"
	"errors"

	"github.com/repcal/backend/internal/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	// ErrExerciseNotFound indicates that no exercise exists for the id.
	ErrExerciseNotFound = errors.New("catalog: exercise not found")
	noOpLogger          = zap.NewNop()
)

const (
	opServiceNew   = "catalog.service.new"
	opCreate       = "catalog.create"
	opUpdate       = "catalog.update"
	opDelete       = "catalog.delete"
	opSetDisabled  = "catalog.set_disabled"
	opGet          = "catalog.get"
	opList         = "catalog.list"
	opSeedDefaults = "catalog.seed_defaults"
)

// ServiceConfig wires the exercise library service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service owns the exercise library.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errs.Service(opServiceNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// Create validates and stores a new exercise. Name uniqueness is enforced by
// storage and surfaces as a ReferentialError.
func (s *Service) Create(ctx context.Context, exercise Exercise) (Exercise, error) {
	if err := exercise.validate(); err != nil {
		return Exercise{}, err
	}
	exercise.ID = 0
	exercise.IsDefault = false
	if err := s.db.WithContext(ctx).Create(&exercise).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("name", exercise.Name))
		return Exercise{}, errs.Referential(opCreate, err)
	}
	return exercise, nil
}

// Update rewrites a stored exercise's mutable fields. The seeded and
// disabled flags are preserved; enabling is its own operation.
func (s *Service) Update(ctx context.Context, exercise Exercise) (Exercise, error) {
	if err := exercise.validate(); err != nil {
		return Exercise{}, err
	}
	existing, err := s.Get(ctx, exercise.ID)
	if err != nil {
		return Exercise{}, err
	}
	exercise.IsDefault = existing.IsDefault
	exercise.IsDisabled = existing.IsDisabled
	if err := s.db.WithContext(ctx).Save(&exercise).Error; err != nil {
		s.logError(opUpdate, "save_failed", err, zap.Uint("exercise_id", exercise.ID))
		return Exercise{}, errs.Referential(opUpdate, err)
	}
	return exercise, nil
}

// SetDisabled toggles the soft-delete flag. Disabling is always allowed,
// including for seeded defaults.
func (s *Service) SetDisabled(ctx context.Context, id uint, disabled bool) error {
	result := s.db.WithContext(ctx).Model(&Exercise{}).Where("id = ?", id).Update("is_disabled", disabled)
	if result.Error != nil {
		s.logError(opSetDisabled, "update_failed", result.Error, zap.Uint("exercise_id", id))
		return errs.Service(opSetDisabled, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrExerciseNotFound
	}
	return nil
}

// Delete removes an exercise permanently. Seeded defaults are rejected before
// storage; foreign keys restrict the delete while any template, override, or
// completion snapshot still references the exercise.
func (s *Service) Delete(ctx context.Context, id uint) error {
	exercise, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if exercise.IsDefault {
		return errs.Validation("exercise", "isDefault", "default exercises cannot be deleted, disable instead")
	}
	if err := s.db.WithContext(ctx).Delete(&Exercise{}, id).Error; err != nil {
		s.logError(opDelete, "delete_failed", err, zap.Uint("exercise_id", id))
		return errs.Referential(opDelete, err)
	}
	return nil
}

// Get loads one exercise by id.
func (s *Service) Get(ctx context.Context, id uint) (Exercise, error) {
	var exercise Exercise
	err := s.db.WithContext(ctx).Take(&exercise, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Exercise{}, ErrExerciseNotFound
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.Uint("exercise_id", id))
		return Exercise{}, errs.Service(opGet, "query_failed", err)
	}
	return exercise, nil
}

// List returns the library ordered by name, hiding disabled entries unless
// asked for them.
func (s *Service) List(ctx context.Context, includeDisabled bool) ([]Exercise, error) {
	query := s.db.WithContext(ctx).Order("name")
	if !includeDisabled {
		query = query.Where("is_disabled = ?", false)
	}
	var exercises []Exercise
	if err := query.Find(&exercises).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, errs.Service(opList, "query_failed", err)
	}
	return exercises, nil
}

// SeedDefaults inserts the built-in exercises that are not stored yet.
// Safe to call on every startup.
func (s *Service) SeedDefaults(ctx context.Context) error {
	for _, exercise := range defaultExercises() {
		var count int64
		if err := s.db.WithContext(ctx).Model(&Exercise{}).Where("name = ?", exercise.Name).Count(&count).Error; err != nil {
			s.logError(opSeedDefaults, "lookup_failed", err, zap.String("name", exercise.Name))
			return errs.Service(opSeedDefaults, "lookup_failed", err)
		}
		if count > 0 {
			continue
		}
		if err := s.db.WithContext(ctx).Create(&exercise).Error; err != nil {
			s.logError(opSeedDefaults, "insert_failed", err, zap.String("name", exercise.Name))
			return errs.Service(opSeedDefaults, "insert_failed", err)
		}
	}
	return nil
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
	s.logger.Error("catalog service error", attrs...)
}
