package workouts

import (
	"context"
	"errors"
	"sort"

	"github.com/repcal/backend/internal/catalog"
	"github.com/repcal/backend/internal/errs"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingCatalog  = errors.New("catalog service is required")
	// ErrTemplateNotFound indicates that no workout template exists for the id.
	ErrTemplateNotFound = errors.New("workouts: template not found")
	// ErrTemplateExerciseNotFound indicates a missing exercise row.
	ErrTemplateExerciseNotFound = errors.New("workouts: template exercise not found")
	// ErrCompletionConfirmationRequired gates deleting a template with
	// completion history: the records survive as orphans, so the caller must
	// confirm the delete explicitly.
	ErrCompletionConfirmationRequired = errors.New("workouts: deleting a template with completion history orphans its records and needs confirmation")
	noOpLogger                        = zap.NewNop()
)

const (
	opServiceNew     = "workouts.service.new"
	opCreate         = "workouts.create"
	opUpdate         = "workouts.update"
	opDelete         = "workouts.delete"
	opSetDisabled    = "workouts.set_disabled"
	opGet            = "workouts.get"
	opList           = "workouts.list"
	opAddExercise    = "workouts.add_exercise"
	opRemoveExercise = "workouts.remove_exercise"
	opReorder        = "workouts.reorder"
)

// CompletionCounter reports how many completion records reference a workout.
// The completion tracker supplies it; keeping it a function avoids a cycle
// between the two services.
type CompletionCounter func(ctx context.Context, workoutID uint) (int64, error)

// ServiceConfig wires the workout template service. Completions is optional;
// without it Delete skips the completion-history confirmation gate.
type ServiceConfig struct {
	Database    *gorm.DB
	Catalog     *catalog.Service
	Completions CompletionCounter
	Logger      *zap.Logger
}

// Service owns workout templates and their ordered exercise rows.
type Service struct {
	db          *gorm.DB
	catalog     *catalog.Service
	completions CompletionCounter
	logger      *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errs.Service(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Catalog == nil {
		return nil, errs.Service(opServiceNew, "missing_catalog", errMissingCatalog)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, catalog: cfg.Catalog, completions: cfg.Completions, logger: logger}, nil
}

// Create stores a template with its exercise rows in spec order.
func (s *Service) Create(ctx context.Context, name string, iconCodePoint int64, specs []ExerciseSpec) (Template, error) {
	if err := catalog.ValidateName("workout", name); err != nil {
		return Template{}, err
	}
	if err := ValidateSpecs("workout", specs); err != nil {
		return Template{}, err
	}
	template := Template{
		Name:          name,
		IconCodePoint: iconCodePoint,
		Exercises:     rowsFromSpecs(0, specs),
	}
	if err := s.db.WithContext(ctx).Create(&template).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("name", name))
		return Template{}, errs.Referential(opCreate, err)
	}
	return s.Get(ctx, template.ID)
}

// Update renames the template and replaces its exercise rows wholesale.
// Per-date overrides and completion snapshots are untouched by design.
func (s *Service) Update(ctx context.Context, id uint, name string, iconCodePoint int64, specs []ExerciseSpec) (Template, error) {
	if err := catalog.ValidateName("workout", name); err != nil {
		return Template{}, err
	}
	if err := ValidateSpecs("workout", specs); err != nil {
		return Template{}, err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return Template{}, err
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"name": name, "icon_code_point": iconCodePoint}
		if err := tx.Model(&Template{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return errs.Referential(opUpdate, err)
		}
		if err := tx.Where("template_id = ?", id).Delete(&TemplateExercise{}).Error; err != nil {
			return errs.Referential(opUpdate, err)
		}
		rows := rowsFromSpecs(id, specs)
		if len(rows) == 0 {
			return nil
		}
		return errs.Referential(opUpdate, tx.Create(&rows).Error)
	})
	if txErr != nil {
		s.logError(opUpdate, "transaction_failed", txErr, zap.Uint("template_id", id))
		return Template{}, txErr
	}
	return s.Get(ctx, id)
}

// SetDisabled toggles the soft-delete flag.
func (s *Service) SetDisabled(ctx context.Context, id uint, disabled bool) error {
	result := s.db.WithContext(ctx).Model(&Template{}).Where("id = ?", id).Update("is_disabled", disabled)
	if result.Error != nil {
		s.logError(opSetDisabled, "update_failed", result.Error, zap.Uint("template_id", id))
		return errs.Service(opSetDisabled, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// Delete removes a template and its rows. Foreign keys restrict the delete
// while any schedule references the template. Completion snapshots are
// self-contained and survive the delete as orphans, so a template with
// completion history is only deleted once the caller confirms it.
func (s *Service) Delete(ctx context.Context, id uint, confirmed bool) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if s.completions != nil && !confirmed {
		count, err := s.completions(ctx, id)
		if err != nil {
			s.logError(opDelete, "completion_count_failed", err, zap.Uint("template_id", id))
			return errs.Service(opDelete, "completion_count_failed", err)
		}
		if count > 0 {
			return ErrCompletionConfirmationRequired
		}
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("template_id = ?", id).Delete(&TemplateExercise{}).Error; err != nil {
			return errs.Referential(opDelete, err)
		}
		return errs.Referential(opDelete, tx.Delete(&Template{}, id).Error)
	})
	if txErr != nil {
		s.logError(opDelete, "transaction_failed", txErr, zap.Uint("template_id", id))
	}
	return txErr
}

// Get loads one template with exercises in display order.
func (s *Service) Get(ctx context.Context, id uint) (Template, error) {
	var template Template
	err := s.db.WithContext(ctx).
		Preload("Exercises", func(db *gorm.DB) *gorm.DB { return db.Order("order_index") }).
		Take(&template, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Template{}, ErrTemplateNotFound
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.Uint("template_id", id))
		return Template{}, errs.Service(opGet, "query_failed", err)
	}
	return template, nil
}

// List returns templates ordered by name, hiding disabled entries unless
// asked for them.
func (s *Service) List(ctx context.Context, includeDisabled bool) ([]Template, error) {
	query := s.db.WithContext(ctx).
		Preload("Exercises", func(db *gorm.DB) *gorm.DB { return db.Order("order_index") }).
		Order("name")
	if !includeDisabled {
		query = query.Where("is_disabled = ?", false)
	}
	var templates []Template
	if err := query.Find(&templates).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, errs.Service(opList, "query_failed", err)
	}
	return templates, nil
}

// AddExercise appends a catalog exercise to the template with the next order
// index, copying the exercise's current type, mode, and sets as defaults.
func (s *Service) AddExercise(ctx context.Context, templateID, exerciseID uint) (TemplateExercise, error) {
	template, err := s.Get(ctx, templateID)
	if err != nil {
		return TemplateExercise{}, err
	}
	exercise, err := s.catalog.Get(ctx, exerciseID)
	if err != nil {
		return TemplateExercise{}, err
	}
	row := TemplateExercise{
		TemplateID:        templateID,
		ExerciseID:        exercise.ID,
		Type:              exercise.Type,
		Mode:              exercise.Mode,
		OrderIndex:        len(template.Exercises),
		Sets:              exercise.Sets,
		RestAfterExercise: exercise.RestAfterExercise,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logError(opAddExercise, "insert_failed", err, zap.Uint("template_id", templateID), zap.Uint("exercise_id", exerciseID))
		return TemplateExercise{}, errs.Referential(opAddExercise, err)
	}
	return row, nil
}

// CatalogExercise exposes the backing exercise-library lookup to callers
// that compose on top of workouts.
func (s *Service) CatalogExercise(ctx context.Context, id uint) (catalog.Exercise, error) {
	return s.catalog.Get(ctx, id)
}

// RemoveExercise deletes one row and renumbers the remainder so order stays
// contiguous.
func (s *Service) RemoveExercise(ctx context.Context, templateID, rowID uint) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("template_id = ? AND id = ?", templateID, rowID).Delete(&TemplateExercise{})
		if result.Error != nil {
			return errs.Referential(opRemoveExercise, result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrTemplateExerciseNotFound
		}
		return renumberRows(tx, templateID)
	})
	if txErr != nil && !errors.Is(txErr, ErrTemplateExerciseNotFound) {
		s.logError(opRemoveExercise, "transaction_failed", txErr, zap.Uint("template_id", templateID))
	}
	return txErr
}

// Reorder rewrites order indices to match the given row id sequence, which
// must cover the template's rows exactly.
func (s *Service) Reorder(ctx context.Context, templateID uint, orderedRowIDs []uint) error {
	template, err := s.Get(ctx, templateID)
	if err != nil {
		return err
	}
	if len(orderedRowIDs) != len(template.Exercises) {
		return errs.Validation("workout", "orderIndex", "reorder must name every exercise row exactly once")
	}
	known := make(map[uint]bool, len(template.Exercises))
	for _, row := range template.Exercises {
		known[row.ID] = true
	}
	for _, rowID := range orderedRowIDs {
		if !known[rowID] {
			return errs.Validation("workout", "orderIndex", "reorder names a row outside this workout")
		}
		delete(known, rowID)
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for position, rowID := range orderedRowIDs {
			err := tx.Model(&TemplateExercise{}).
				Where("template_id = ? AND id = ?", templateID, rowID).
				Update("order_index", position).Error
			if err != nil {
				return errs.Service(opReorder, "update_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		s.logError(opReorder, "transaction_failed", txErr, zap.Uint("template_id", templateID))
	}
	return txErr
}

func rowsFromSpecs(templateID uint, specs []ExerciseSpec) []TemplateExercise {
	ordered := make([]ExerciseSpec, len(specs))
	copy(ordered, specs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].OrderIndex < ordered[j].OrderIndex })
	rows := make([]TemplateExercise, 0, len(ordered))
	for _, spec := range ordered {
		rows = append(rows, TemplateExercise{
			TemplateID:        templateID,
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

func renumberRows(tx *gorm.DB, templateID uint) error {
	var rows []TemplateExercise
	if err := tx.Where("template_id = ?", templateID).Order("order_index").Find(&rows).Error; err != nil {
		return errs.Service(opRemoveExercise, "renumber_query_failed", err)
	}
	for position, row := range rows {
		if row.OrderIndex == position {
			continue
		}
		err := tx.Model(&TemplateExercise{}).Where("id = ?", row.ID).Update("order_index", position).Error
		if err != nil {
			return errs.Service(opRemoveExercise, "renumber_update_failed", err)
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
	s.logger.Error("workouts service error", attrs...)
}
