package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/repcal/backend/internal/calendar"
	"github.com/repcal/backend/internal/catalog"
	"github.com/repcal/backend/internal/completions"
	"github.com/repcal/backend/internal/database"
	"github.com/repcal/backend/internal/schedules"
	"github.com/repcal/backend/internal/server"
	"github.com/repcal/backend/internal/workouts"
	"go.uber.org/zap"
)

const jsonContentType = "application/json"

func newPlannerServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "planner.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build catalog service: %v", err)
	}
	var completionService *completions.Service
	workoutService, err := workouts.NewService(workouts.ServiceConfig{
		Database: db,
		Catalog:  catalogService,
		Completions: func(ctx context.Context, workoutID uint) (int64, error) {
			return completionService.CountForWorkout(ctx, workoutID)
		},
	})
	if err != nil {
		t.Fatalf("failed to build workouts service: %v", err)
	}
	scheduleService, err := schedules.NewService(schedules.ServiceConfig{Database: db, Workouts: workoutService})
	if err != nil {
		t.Fatalf("failed to build schedules service: %v", err)
	}
	completionService, err = completions.NewService(completions.ServiceConfig{
		Database:   db,
		Workouts:   workoutService,
		Clock:      time.Now,
		IDProvider: completions.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to build completions service: %v", err)
	}
	calendarService, err := calendar.NewService(calendar.ServiceConfig{
		Schedules:   scheduleService,
		Completions: completionService,
	})
	if err != nil {
		t.Fatalf("failed to build calendar service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Catalog:     catalogService,
		Workouts:    workoutService,
		Schedules:   scheduleService,
		Completions: completionService,
		Calendar:    calendarService,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	t.Cleanup(testServer.Close)
	return testServer
}

func doJSON(t *testing.T, baseURL, method, path, body string) *http.Response {
	t.Helper()
	request, err := http.NewRequest(method, baseURL+path, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	request.Header.Set("Content-Type", jsonContentType)
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() {
		_ = response.Body.Close()
	})
	return response
}

func decode[T any](t *testing.T, response *http.Response) T {
	t.Helper()
	var value T
	if err := json.NewDecoder(response.Body).Decode(&value); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return value
}

type idPayload struct {
	ID uint `json:"id"`
}

type completionIDPayload struct {
	ID string `json:"id"`
}

type entryPayload struct {
	ScheduleID    uint   `json:"scheduleId"`
	WorkoutID     uint   `json:"workoutId"`
	Name          string `json:"name"`
	IconCodePoint int64  `json:"iconCodePoint"`
	Completed     bool   `json:"completed"`
	Orphaned      bool   `json:"orphaned"`
	Exercises     []struct {
		ExerciseID uint `json:"exerciseId"`
	} `json:"exercises"`
}

func seedWorkoutWithSchedule(t *testing.T, baseURL, startDate, recurrence, offsetField string) (exerciseID, workoutID, scheduleID uint) {
	t.Helper()
	exerciseResponse := doJSON(t, baseURL, http.MethodPost, "/exercises",
		`{"name":"Push-up","type":"dynamic","mode":"reps","sets":[{"value":10}]}`)
	if exerciseResponse.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected exercise status: %d", exerciseResponse.StatusCode)
	}
	exercise := decode[idPayload](t, exerciseResponse)

	workoutResponse := doJSON(t, baseURL, http.MethodPost, "/workouts", fmt.Sprintf(
		`{"name":"Push Day","iconCodePoint":9889,"exercises":[{"exerciseId":%d,"type":"dynamic","mode":"reps","orderIndex":0,"sets":[{"value":10}]}]}`,
		exercise.ID))
	if workoutResponse.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected workout status: %d", workoutResponse.StatusCode)
	}
	workout := decode[idPayload](t, workoutResponse)

	scheduleResponse := doJSON(t, baseURL, http.MethodPost, "/schedules", fmt.Sprintf(
		`{"workoutId":%d,"startDate":%q,"recurrenceType":%q%s}`,
		workout.ID, startDate, recurrence, offsetField))
	if scheduleResponse.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected schedule status: %d", scheduleResponse.StatusCode)
	}
	schedule := decode[idPayload](t, scheduleResponse)
	return exercise.ID, workout.ID, schedule.ID
}

// Weekly flow: schedule on a Wednesday, override one occurrence, complete it,
// then delete the schedule and watch the completed day survive as an orphan
// while future weeks go empty.
func TestWeeklyScheduleLifecycle(t *testing.T) {
	testServer := newPlannerServer(t)
	base := testServer.URL
	exerciseID, workoutID, scheduleID := seedWorkoutWithSchedule(t, base, "2025-01-15", "weekly", "")

	occupied := doJSON(t, base, http.MethodGet, "/calendar?date=2025-01-22", "")
	entries := decode[[]entryPayload](t, occupied)
	if len(entries) != 1 || entries[0].ScheduleID != scheduleID || entries[0].Completed {
		t.Fatalf("expected one pending weekly entry: %+v", entries)
	}

	offDay := doJSON(t, base, http.MethodGet, "/calendar?date=2025-01-16", "")
	if empty := decode[[]entryPayload](t, offDay); len(empty) != 0 {
		t.Fatalf("expected no occurrence off the weekday: %+v", empty)
	}

	// Override 2025-01-22 and empty it out; other weeks keep the template.
	overrideResponse := doJSON(t, base, http.MethodPut,
		fmt.Sprintf("/schedules/%d/overrides/2025-01-22", scheduleID),
		`{"copyFromTemplate":false}`)
	if overrideResponse.StatusCode != http.StatusOK {
		t.Fatalf("unexpected override status: %d", overrideResponse.StatusCode)
	}

	overridden := doJSON(t, base, http.MethodGet, "/calendar?date=2025-01-22", "")
	entries = decode[[]entryPayload](t, overridden)
	if len(entries) != 1 || len(entries[0].Exercises) != 0 {
		t.Fatalf("empty override must be authoritative: %+v", entries)
	}

	nextWeek := doJSON(t, base, http.MethodGet, "/calendar?date=2025-01-29", "")
	entries = decode[[]entryPayload](t, nextWeek)
	if len(entries) != 1 || len(entries[0].Exercises) != 1 {
		t.Fatalf("other occurrences must keep the template list: %+v", entries)
	}

	// Revert, complete the occurrence, then delete the schedule.
	revert := doJSON(t, base, http.MethodDelete,
		fmt.Sprintf("/schedules/%d/overrides/2025-01-22", scheduleID), "")
	if revert.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected revert status: %d", revert.StatusCode)
	}

	completeResponse := doJSON(t, base, http.MethodPost, "/completions", fmt.Sprintf(
		`{"workoutId":%d,"scheduledDate":"2025-01-22","exercises":[{"exerciseId":%d,"type":"dynamic","mode":"reps","orderIndex":0,"sets":[{"value":10}]}]}`,
		workoutID, exerciseID))
	if completeResponse.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected completion status: %d", completeResponse.StatusCode)
	}
	completion := decode[completionIDPayload](t, completeResponse)
	if completion.ID == "" {
		t.Fatalf("expected completion identifier")
	}

	deleteResponse := doJSON(t, base, http.MethodDelete, fmt.Sprintf("/schedules/%d", scheduleID), "")
	if deleteResponse.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected schedule delete status: %d", deleteResponse.StatusCode)
	}

	orphanDay := doJSON(t, base, http.MethodGet, "/calendar?date=2025-01-22", "")
	entries = decode[[]entryPayload](t, orphanDay)
	if len(entries) != 1 || !entries[0].Orphaned || !entries[0].Completed {
		t.Fatalf("completed day must survive as an orphan: %+v", entries)
	}
	if entries[0].Name != "Push Day" || entries[0].IconCodePoint != 9889 {
		t.Fatalf("orphan must carry the frozen snapshot: %+v", entries)
	}

	futureWeek := doJSON(t, base, http.MethodGet, "/calendar?date=2025-01-29", "")
	if empty := decode[[]entryPayload](t, futureWeek); len(empty) != 0 {
		t.Fatalf("deleted schedule must not occur in the future: %+v", empty)
	}
}

// Offset flow: every 3 days from 2025-01-10 gives 01-10, 01-13, 01-16, 01-19
// inside the queried window.
func TestOffsetScheduleRangeQuery(t *testing.T) {
	testServer := newPlannerServer(t)
	base := testServer.URL
	seedWorkoutWithSchedule(t, base, "2025-01-10", "offset", `,"offsetDays":3`)

	rangeResponse := doJSON(t, base, http.MethodGet, "/calendar?from=2025-01-10&to=2025-01-20", "")
	if rangeResponse.StatusCode != http.StatusOK {
		t.Fatalf("unexpected range status: %d", rangeResponse.StatusCode)
	}
	days := decode[map[string][]entryPayload](t, rangeResponse)

	want := []string{"2025-01-10", "2025-01-13", "2025-01-16", "2025-01-19"}
	if len(days) != len(want) {
		t.Fatalf("expected %d occupied days, got %d: %v", len(want), len(days), days)
	}
	for _, key := range want {
		if len(days[key]) != 1 {
			t.Fatalf("expected one entry on %s: %v", key, days)
		}
	}
}

// A completed record keeps its snapshot even after the workout is renamed,
// shrunk, unscheduled, and finally deleted.
func TestCompletionSnapshotOutlivesWorkout(t *testing.T) {
	testServer := newPlannerServer(t)
	base := testServer.URL
	exerciseID, workoutID, scheduleID := seedWorkoutWithSchedule(t, base, "2025-01-15", "weekly", "")

	completeResponse := doJSON(t, base, http.MethodPost, "/completions", fmt.Sprintf(
		`{"workoutId":%d,"scheduledDate":"2025-01-15","exercises":[{"exerciseId":%d,"type":"dynamic","mode":"reps","orderIndex":0,"sets":[{"value":10}]}]}`,
		workoutID, exerciseID))
	if completeResponse.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected completion status: %d", completeResponse.StatusCode)
	}

	// Deleting the workout while scheduled is rejected.
	blocked := doJSON(t, base, http.MethodDelete, fmt.Sprintf("/workouts/%d", workoutID), "")
	if blocked.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 while scheduled, got %d", blocked.StatusCode)
	}

	if response := doJSON(t, base, http.MethodDelete, fmt.Sprintf("/schedules/%d", scheduleID), ""); response.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected schedule delete status: %d", response.StatusCode)
	}

	// Unscheduled but completed: the delete orphans the record, so it needs
	// explicit confirmation.
	gated := doJSON(t, base, http.MethodDelete, fmt.Sprintf("/workouts/%d", workoutID), "")
	if gated.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for unconfirmed delete of a completed workout, got %d", gated.StatusCode)
	}
	if response := doJSON(t, base, http.MethodDelete, fmt.Sprintf("/workouts/%d?confirm=true", workoutID), ""); response.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected workout delete status: %d", response.StatusCode)
	}

	day := doJSON(t, base, http.MethodGet, "/calendar?date=2025-01-15", "")
	entries := decode[[]entryPayload](t, day)
	if len(entries) != 1 || !entries[0].Orphaned || entries[0].Name != "Push Day" {
		t.Fatalf("snapshot must outlive the workout: %+v", entries)
	}
}
