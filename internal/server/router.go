package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/repcal/backend/internal/calendar"
	"github.com/repcal/backend/internal/catalog"
	"github.com/repcal/backend/internal/civil"
	"github.com/repcal/backend/internal/completions"
	"github.com/repcal/backend/internal/errs"
	"github.com/repcal/backend/internal/schedules"
	"github.com/repcal/backend/internal/workouts"
	"go.uber.org/zap"
)

var (
	errMissingCatalogService     = errors.New("catalog service dependency required")
	errMissingWorkoutsService    = errors.New("workouts service dependency required")
	errMissingSchedulesService   = errors.New("schedules service dependency required")
	errMissingCompletionsService = errors.New("completions service dependency required")
	errMissingCalendarService    = errors.New("calendar service dependency required")
)

// Dependencies wires the HTTP surface. Dispatcher and Logger are optional.
type Dependencies struct {
	Catalog     *catalog.Service
	Workouts    *workouts.Service
	Schedules   *schedules.Service
	Completions *completions.Service
	Calendar    *calendar.Service
	Dispatcher  *RealtimeDispatcher
	Logger      *zap.Logger
}

// NewHTTPHandler builds the gin router for the planner API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Catalog == nil {
		return nil, errMissingCatalogService
	}
	if deps.Workouts == nil {
		return nil, errMissingWorkoutsService
	}
	if deps.Schedules == nil {
		return nil, errMissingSchedulesService
	}
	if deps.Completions == nil {
		return nil, errMissingCompletionsService
	}
	if deps.Calendar == nil {
		return nil, errMissingCalendarService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		catalog:     deps.Catalog,
		workouts:    deps.Workouts,
		schedules:   deps.Schedules,
		completions: deps.Completions,
		calendar:    deps.Calendar,
		dispatcher:  dispatcher,
		logger:      logger,
	}

	router.GET("/exercises", handler.handleListExercises)
	router.POST("/exercises", handler.handleCreateExercise)
	router.GET("/exercises/:id", handler.handleGetExercise)
	router.PUT("/exercises/:id", handler.handleUpdateExercise)
	router.DELETE("/exercises/:id", handler.handleDeleteExercise)
	router.POST("/exercises/:id/disable", handler.handleSetExerciseDisabled(true))
	router.POST("/exercises/:id/enable", handler.handleSetExerciseDisabled(false))
	router.GET("/exercises/:id/history", handler.handleExerciseHistory)

	router.GET("/workouts", handler.handleListWorkouts)
	router.POST("/workouts", handler.handleCreateWorkout)
	router.GET("/workouts/:id", handler.handleGetWorkout)
	router.PUT("/workouts/:id", handler.handleUpdateWorkout)
	router.DELETE("/workouts/:id", handler.handleDeleteWorkout)
	router.POST("/workouts/:id/disable", handler.handleSetWorkoutDisabled(true))
	router.POST("/workouts/:id/enable", handler.handleSetWorkoutDisabled(false))
	router.POST("/workouts/:id/exercises", handler.handleAddWorkoutExercise)
	router.DELETE("/workouts/:id/exercises/:rowID", handler.handleRemoveWorkoutExercise)
	router.PUT("/workouts/:id/exercises/order", handler.handleReorderWorkoutExercises)

	router.GET("/schedules", handler.handleListSchedules)
	router.POST("/schedules", handler.handleCreateSchedule)
	router.GET("/schedules/:id", handler.handleGetSchedule)
	router.DELETE("/schedules/:id", handler.handleDeleteSchedule)
	router.GET("/schedules/:id/exercises", handler.handleEffectiveExercises)
	router.PUT("/schedules/:id/overrides/:date", handler.handleUpsertOverride)
	router.DELETE("/schedules/:id/overrides/:date", handler.handleDeleteOverride)

	router.POST("/overrides/:id/exercises", handler.handleAddOverrideExercise)
	router.PUT("/overrides/:id/exercises/:rowID", handler.handleUpdateOverrideExercise)
	router.DELETE("/overrides/:id/exercises/:rowID", handler.handleRemoveOverrideExercise)
	router.PUT("/overrides/:id/exercises/order", handler.handleReorderOverrideExercises)

	router.GET("/completions", handler.handleCompletionsForDate)
	router.POST("/completions", handler.handleComplete)
	router.PUT("/completions/:id", handler.handleAmendCompletion)
	router.DELETE("/completions/:id", handler.handleUncomplete)

	router.GET("/calendar", handler.handleCalendar)
	router.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	catalog     *catalog.Service
	workouts    *workouts.Service
	schedules   *schedules.Service
	completions *completions.Service
	calendar    *calendar.Service
	dispatcher  *RealtimeDispatcher
	logger      *zap.Logger
}

// respondError maps domain errors onto HTTP statuses. Validation failures are
// unprocessable input, referential conflicts and unconfirmed orphan deletes
// are conflicts, missing rows are 404, the rest is a server fault.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errs.IsValidation(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, completions.ErrOrphanConfirmationRequired):
		c.JSON(http.StatusConflict, gin.H{"error": "orphan_confirmation_required"})
	case errors.Is(err, workouts.ErrCompletionConfirmationRequired):
		c.JSON(http.StatusConflict, gin.H{"error": "completion_confirmation_required"})
	case errs.IsReferential(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case isNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, catalog.ErrExerciseNotFound) ||
		errors.Is(err, workouts.ErrTemplateNotFound) ||
		errors.Is(err, workouts.ErrTemplateExerciseNotFound) ||
		errors.Is(err, schedules.ErrScheduleNotFound) ||
		errors.Is(err, schedules.ErrOverrideNotFound) ||
		errors.Is(err, schedules.ErrOverrideExerciseNotFound) ||
		errors.Is(err, completions.ErrCompletionNotFound)
}

func (h *httpHandler) publish(topic, eventType string, ids ...string) {
	h.dispatcher.Publish(RealtimeMessage{
		Topic:     topic,
		EventType: eventType,
		IDs:       ids,
		Timestamp: time.Now().UTC(),
	})
}

func pathID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return uint(value), true
}

func queryDate(c *gin.Context, name string) (civil.Date, bool) {
	date, err := civil.Parse(c.Query(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return civil.Date{}, false
	}
	return date, true
}

func pathDate(c *gin.Context, name string) (civil.Date, bool) {
	date, err := civil.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return civil.Date{}, false
	}
	return date, true
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// --- exercises ---

type exercisePayload struct {
	ID                uint          `json:"id"`
	Name              string        `json:"name"`
	Type              string        `json:"type"`
	Mode              string        `json:"mode"`
	Sets              []catalog.Set `json:"sets"`
	IsDefault         bool          `json:"isDefault"`
	IsDisabled        bool          `json:"isDisabled"`
	RestAfterExercise *int          `json:"restAfterExercise,omitempty"`
}

func exerciseToPayload(exercise catalog.Exercise) exercisePayload {
	return exercisePayload{
		ID:                exercise.ID,
		Name:              exercise.Name,
		Type:              string(exercise.Type),
		Mode:              string(exercise.Mode),
		Sets:              exercise.Sets,
		IsDefault:         exercise.IsDefault,
		IsDisabled:        exercise.IsDisabled,
		RestAfterExercise: exercise.RestAfterExercise,
	}
}

type exerciseRequestPayload struct {
	Name              string        `json:"name"`
	Type              string        `json:"type"`
	Mode              string        `json:"mode"`
	Sets              []catalog.Set `json:"sets"`
	RestAfterExercise *int          `json:"restAfterExercise"`
}

func (h *httpHandler) handleListExercises(c *gin.Context) {
	includeDisabled := c.Query("includeDisabled") == "true"
	exercises, err := h.catalog.List(c.Request.Context(), includeDisabled)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]exercisePayload, 0, len(exercises))
	for _, exercise := range exercises {
		payload = append(payload, exerciseToPayload(exercise))
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleCreateExercise(c *gin.Context) {
	var request exerciseRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	created, err := h.catalog.Create(c.Request.Context(), catalog.Exercise{
		Name:              request.Name,
		Type:              catalog.ExerciseType(request.Type),
		Mode:              catalog.ExerciseMode(request.Mode),
		Sets:              request.Sets,
		RestAfterExercise: request.RestAfterExercise,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicExercises, "created", formatID(created.ID))
	c.JSON(http.StatusCreated, exerciseToPayload(created))
}

func (h *httpHandler) handleGetExercise(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	exercise, err := h.catalog.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, exerciseToPayload(exercise))
}

func (h *httpHandler) handleUpdateExercise(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request exerciseRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	updated, err := h.catalog.Update(c.Request.Context(), catalog.Exercise{
		ID:                id,
		Name:              request.Name,
		Type:              catalog.ExerciseType(request.Type),
		Mode:              catalog.ExerciseMode(request.Mode),
		Sets:              request.Sets,
		RestAfterExercise: request.RestAfterExercise,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicExercises, "updated", formatID(id))
	c.JSON(http.StatusOK, exerciseToPayload(updated))
}

func (h *httpHandler) handleDeleteExercise(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicExercises, "deleted", formatID(id))
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSetExerciseDisabled(disabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		if err := h.catalog.SetDisabled(c.Request.Context(), id, disabled); err != nil {
			h.respondError(c, err)
			return
		}
		h.publish(TopicExercises, "updated", formatID(id))
		c.Status(http.StatusNoContent)
	}
}

type historyEntryPayload struct {
	CompletionID      string        `json:"completionId"`
	Mode              string        `json:"mode"`
	Sets              []catalog.Set `json:"sets"`
	RestAfterExercise *int          `json:"restAfterExercise,omitempty"`
}

func (h *httpHandler) handleExerciseHistory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rows, err := h.completions.History(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]historyEntryPayload, 0, len(rows))
	for _, row := range rows {
		payload = append(payload, historyEntryPayload{
			CompletionID:      row.OccurrenceID,
			Mode:              string(row.Mode),
			Sets:              row.Sets,
			RestAfterExercise: row.RestAfterExercise,
		})
	}
	c.JSON(http.StatusOK, payload)
}

// --- workouts ---

type workoutPayload struct {
	ID            uint                `json:"id"`
	Name          string              `json:"name"`
	IconCodePoint int64               `json:"iconCodePoint"`
	IsDisabled    bool                `json:"isDisabled"`
	Exercises     []workoutRowPayload `json:"exercises"`
}

type workoutRowPayload struct {
	ID                uint          `json:"id"`
	ExerciseID        uint          `json:"exerciseId"`
	Type              string        `json:"type"`
	Mode              string        `json:"mode"`
	OrderIndex        int           `json:"orderIndex"`
	Sets              []catalog.Set `json:"sets"`
	RestAfterExercise *int          `json:"restAfterExercise,omitempty"`
}

func workoutToPayload(template workouts.Template) workoutPayload {
	rows := make([]workoutRowPayload, 0, len(template.Exercises))
	for _, row := range template.Exercises {
		rows = append(rows, workoutRowPayload{
			ID:                row.ID,
			ExerciseID:        row.ExerciseID,
			Type:              string(row.Type),
			Mode:              string(row.Mode),
			OrderIndex:        row.OrderIndex,
			Sets:              row.Sets,
			RestAfterExercise: row.RestAfterExercise,
		})
	}
	return workoutPayload{
		ID:            template.ID,
		Name:          template.Name,
		IconCodePoint: template.IconCodePoint,
		IsDisabled:    template.IsDisabled,
		Exercises:     rows,
	}
}

type workoutRequestPayload struct {
	Name          string                  `json:"name"`
	IconCodePoint int64                   `json:"iconCodePoint"`
	Exercises     []workouts.ExerciseSpec `json:"exercises"`
}

func (h *httpHandler) handleListWorkouts(c *gin.Context) {
	includeDisabled := c.Query("includeDisabled") == "true"
	templates, err := h.workouts.List(c.Request.Context(), includeDisabled)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]workoutPayload, 0, len(templates))
	for _, template := range templates {
		payload = append(payload, workoutToPayload(template))
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleCreateWorkout(c *gin.Context) {
	var request workoutRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	created, err := h.workouts.Create(c.Request.Context(), request.Name, request.IconCodePoint, request.Exercises)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicWorkouts, "created", formatID(created.ID))
	c.JSON(http.StatusCreated, workoutToPayload(created))
}

func (h *httpHandler) handleGetWorkout(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	template, err := h.workouts.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, workoutToPayload(template))
}

func (h *httpHandler) handleUpdateWorkout(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request workoutRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	updated, err := h.workouts.Update(c.Request.Context(), id, request.Name, request.IconCodePoint, request.Exercises)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicWorkouts, "updated", formatID(id))
	c.JSON(http.StatusOK, workoutToPayload(updated))
}

func (h *httpHandler) handleDeleteWorkout(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	confirmed := c.Query("confirm") == "true"
	if err := h.workouts.Delete(c.Request.Context(), id, confirmed); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicWorkouts, "deleted", formatID(id))
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSetWorkoutDisabled(disabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		if err := h.workouts.SetDisabled(c.Request.Context(), id, disabled); err != nil {
			h.respondError(c, err)
			return
		}
		h.publish(TopicWorkouts, "updated", formatID(id))
		c.Status(http.StatusNoContent)
	}
}

type addExercisePayload struct {
	ExerciseID uint `json:"exerciseId"`
}

func (h *httpHandler) handleAddWorkoutExercise(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request addExercisePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	row, err := h.workouts.AddExercise(c.Request.Context(), id, request.ExerciseID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicWorkouts, "updated", formatID(id))
	c.JSON(http.StatusCreated, workoutRowPayload{
		ID:                row.ID,
		ExerciseID:        row.ExerciseID,
		Type:              string(row.Type),
		Mode:              string(row.Mode),
		OrderIndex:        row.OrderIndex,
		Sets:              row.Sets,
		RestAfterExercise: row.RestAfterExercise,
	})
}

func (h *httpHandler) handleRemoveWorkoutExercise(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rowID, ok := pathID(c, "rowID")
	if !ok {
		return
	}
	if err := h.workouts.RemoveExercise(c.Request.Context(), id, rowID); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicWorkouts, "updated", formatID(id))
	c.Status(http.StatusNoContent)
}

type reorderPayload struct {
	RowIDs []uint `json:"rowIds"`
}

func (h *httpHandler) handleReorderWorkoutExercises(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request reorderPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.workouts.Reorder(c.Request.Context(), id, request.RowIDs); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicWorkouts, "updated", formatID(id))
	c.Status(http.StatusNoContent)
}

// --- schedules ---

type schedulePayload struct {
	ID             uint   `json:"id"`
	WorkoutID      uint   `json:"workoutId"`
	StartDate      string `json:"startDate"`
	RecurrenceType string `json:"recurrenceType"`
	OffsetDays     *int   `json:"offsetDays,omitempty"`
}

func scheduleToPayload(schedule schedules.Schedule) schedulePayload {
	return schedulePayload{
		ID:             schedule.ID,
		WorkoutID:      schedule.WorkoutID,
		StartDate:      schedule.StartDate.String(),
		RecurrenceType: string(schedule.Recurrence),
		OffsetDays:     schedule.OffsetDays,
	}
}

type scheduleRequestPayload struct {
	WorkoutID      uint   `json:"workoutId"`
	StartDate      string `json:"startDate"`
	RecurrenceType string `json:"recurrenceType"`
	OffsetDays     *int   `json:"offsetDays"`
}

func (h *httpHandler) handleListSchedules(c *gin.Context) {
	list, err := h.schedules.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]schedulePayload, 0, len(list))
	for _, schedule := range list {
		payload = append(payload, scheduleToPayload(schedule))
	}
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleCreateSchedule(c *gin.Context) {
	var request scheduleRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	startDate, err := civil.Parse(request.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}
	recurrence, err := schedules.ParseRecurrence(request.RecurrenceType)
	if err != nil {
		h.respondError(c, err)
		return
	}
	created, err := h.schedules.Create(c.Request.Context(), request.WorkoutID, startDate, recurrence, request.OffsetDays)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicSchedules, "created", formatID(created.ID))
	c.JSON(http.StatusCreated, scheduleToPayload(created))
}

func (h *httpHandler) handleGetSchedule(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	schedule, err := h.schedules.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, scheduleToPayload(schedule))
}

func (h *httpHandler) handleDeleteSchedule(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.schedules.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicSchedules, "deleted", formatID(id))
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleEffectiveExercises(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	date, ok := queryDate(c, "date")
	if !ok {
		return
	}
	specs, err := h.schedules.EffectiveExercises(c.Request.Context(), id, date)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, specs)
}

// --- overrides ---

type overridePayload struct {
	ID         uint                 `json:"id"`
	ScheduleID uint                 `json:"scheduleId"`
	Date       string               `json:"date"`
	Exercises  []overrideRowPayload `json:"exercises"`
}

type overrideRowPayload struct {
	ID                 uint          `json:"id"`
	ExerciseID         uint          `json:"exerciseId"`
	TemplateExerciseID *uint         `json:"templateExerciseId,omitempty"`
	Type               string        `json:"type"`
	Mode               string        `json:"mode"`
	OrderIndex         int           `json:"orderIndex"`
	Sets               []catalog.Set `json:"sets"`
	RestAfterExercise  *int          `json:"restAfterExercise,omitempty"`
}

func overrideToPayload(override schedules.DayOverride) overridePayload {
	rows := make([]overrideRowPayload, 0, len(override.Exercises))
	for _, row := range override.Exercises {
		rows = append(rows, overrideRowToPayload(row))
	}
	return overridePayload{
		ID:         override.ID,
		ScheduleID: override.ScheduleID,
		Date:       override.Date.String(),
		Exercises:  rows,
	}
}

func overrideRowToPayload(row schedules.OverrideExercise) overrideRowPayload {
	return overrideRowPayload{
		ID:                 row.ID,
		ExerciseID:         row.ExerciseID,
		TemplateExerciseID: row.TemplateExerciseID,
		Type:               string(row.Type),
		Mode:               string(row.Mode),
		OrderIndex:         row.OrderIndex,
		Sets:               row.Sets,
		RestAfterExercise:  row.RestAfterExercise,
	}
}

type upsertOverridePayload struct {
	CopyFromTemplate bool `json:"copyFromTemplate"`
}

func (h *httpHandler) handleUpsertOverride(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	date, ok := pathDate(c, "date")
	if !ok {
		return
	}
	var request upsertOverridePayload
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	override, err := h.schedules.GetOrCreateOverride(c.Request.Context(), id, date, request.CopyFromTemplate)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicOverrides, "updated", formatID(override.ID))
	c.JSON(http.StatusOK, overrideToPayload(override))
}

func (h *httpHandler) handleDeleteOverride(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	date, ok := pathDate(c, "date")
	if !ok {
		return
	}
	if err := h.schedules.DeleteOverride(c.Request.Context(), id, date); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicOverrides, "deleted", formatID(id))
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleAddOverrideExercise(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request addExercisePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	row, err := h.schedules.AddOverrideExercise(c.Request.Context(), id, request.ExerciseID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicOverrides, "updated", formatID(id))
	c.JSON(http.StatusCreated, overrideRowToPayload(row))
}

type overrideRowRequestPayload struct {
	Type              string        `json:"type"`
	Mode              string        `json:"mode"`
	Sets              []catalog.Set `json:"sets"`
	RestAfterExercise *int          `json:"restAfterExercise"`
}

func (h *httpHandler) handleUpdateOverrideExercise(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rowID, ok := pathID(c, "rowID")
	if !ok {
		return
	}
	var request overrideRowRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	updated, err := h.schedules.UpdateOverrideExercise(c.Request.Context(), schedules.OverrideExercise{
		ID:                rowID,
		OverrideID:        id,
		Type:              catalog.ExerciseType(request.Type),
		Mode:              catalog.ExerciseMode(request.Mode),
		Sets:              request.Sets,
		RestAfterExercise: request.RestAfterExercise,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicOverrides, "updated", formatID(id))
	c.JSON(http.StatusOK, overrideRowToPayload(updated))
}

func (h *httpHandler) handleRemoveOverrideExercise(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rowID, ok := pathID(c, "rowID")
	if !ok {
		return
	}
	if err := h.schedules.RemoveOverrideExercise(c.Request.Context(), id, rowID); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicOverrides, "updated", formatID(id))
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleReorderOverrideExercises(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request reorderPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.schedules.ReorderOverrideExercises(c.Request.Context(), id, request.RowIDs); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicOverrides, "updated", formatID(id))
	c.Status(http.StatusNoContent)
}

// --- completions ---

type completionPayload struct {
	ID            string                  `json:"id"`
	WorkoutID     uint                    `json:"workoutId"`
	WorkoutName   string                  `json:"workoutName"`
	IconCodePoint int64                   `json:"iconCodePoint"`
	ScheduledDate string                  `json:"scheduledDate"`
	CompletedAt   time.Time               `json:"completedAt"`
	Exercises     []workouts.ExerciseSpec `json:"exercises"`
}

func completionToPayload(occurrence completions.Occurrence) completionPayload {
	return completionPayload{
		ID:            occurrence.ID,
		WorkoutID:     occurrence.WorkoutID,
		WorkoutName:   occurrence.WorkoutName,
		IconCodePoint: occurrence.IconCodePoint,
		ScheduledDate: occurrence.ScheduledDate.String(),
		CompletedAt:   occurrence.CompletedAt,
		Exercises:     occurrence.Specs(),
	}
}

type completeRequestPayload struct {
	WorkoutID     uint                    `json:"workoutId"`
	ScheduledDate string                  `json:"scheduledDate"`
	Exercises     []workouts.ExerciseSpec `json:"exercises"`
}

func (h *httpHandler) handleComplete(c *gin.Context) {
	var request completeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	date, err := civil.Parse(request.ScheduledDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}
	occurrence, err := h.completions.Complete(c.Request.Context(), request.WorkoutID, date, request.Exercises)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicCompletions, "created", occurrence.ID)
	c.JSON(http.StatusCreated, completionToPayload(occurrence))
}

func (h *httpHandler) handleUncomplete(c *gin.Context) {
	id := c.Param("id")
	confirmed := c.Query("confirm") == "true"
	if err := h.completions.Uncomplete(c.Request.Context(), id, confirmed); err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicCompletions, "deleted", id)
	c.Status(http.StatusNoContent)
}

type amendRequestPayload struct {
	Exercises []workouts.ExerciseSpec `json:"exercises"`
}

func (h *httpHandler) handleAmendCompletion(c *gin.Context) {
	id := c.Param("id")
	var request amendRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	occurrence, err := h.completions.Amend(c.Request.Context(), id, request.Exercises)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publish(TopicCompletions, "updated", id)
	c.JSON(http.StatusOK, completionToPayload(occurrence))
}

func (h *httpHandler) handleCompletionsForDate(c *gin.Context) {
	date, ok := queryDate(c, "date")
	if !ok {
		return
	}
	occurrences, err := h.completions.ForDate(c.Request.Context(), date)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]completionPayload, 0, len(occurrences))
	for _, occurrence := range occurrences {
		payload = append(payload, completionToPayload(occurrence))
	}
	c.JSON(http.StatusOK, payload)
}

// --- calendar ---

func (h *httpHandler) handleCalendar(c *gin.Context) {
	if c.Query("date") != "" {
		date, ok := queryDate(c, "date")
		if !ok {
			return
		}
		entries, err := h.calendar.WorkoutsOn(c.Request.Context(), date)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
		return
	}

	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	to, ok := queryDate(c, "to")
	if !ok {
		return
	}
	days, err := h.calendar.WorkoutsInRange(c.Request.Context(), from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, days)
}

// --- events ---

type eventPayload struct {
	Topic     string   `json:"topic"`
	IDs       []string `json:"ids,omitempty"`
	Timestamp string   `json:"ts"`
}

// handleEvents streams dispatcher messages as server-sent events. The
// ?topics=a,b query narrows the subscription; without it the client sees
// every topic.
func (h *httpHandler) handleEvents(c *gin.Context) {
	var topics []string
	if raw := c.Query("topics"); raw != "" {
		for _, topic := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(topic); trimmed != "" {
				topics = append(topics, trimmed)
			}
		}
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	stream, cleanup := h.dispatcher.Subscribe(c.Request.Context(), topics...)
	defer cleanup()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"ts": time.Now().UTC().Format(time.RFC3339)})
			c.Writer.Flush()
		case message, open := <-stream:
			if !open {
				return
			}
			c.SSEvent(message.EventType, eventPayload{
				Topic:     message.Topic,
				IDs:       message.IDs,
				Timestamp: message.Timestamp.UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		}
	}
}
