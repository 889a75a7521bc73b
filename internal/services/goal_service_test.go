package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"timeagent/internal/models"
)

func newTestGoalService(store Store) *GoalService {
	reconciler := newTestReconciler(store)
	matcher := NewMatcherService(store)
	gs := NewGoalService(store, reconciler, matcher, testLoc)
	gs.now = func() time.Time { return fixedNow }
	return gs
}

func TestCreateGoal(t *testing.T) {
	store := NewMemoryStore()
	gs := newTestGoalService(store)

	goal, err := gs.Create(context.Background(), &models.CreateGoalRequest{
		Title:         "学习Python编程",
		Deadline:      "2026-12-31",
		EstimatedTime: 600,
		Priority:      models.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if goal.ID == "" {
		t.Error("expected generated id")
	}
	if goal.Status != models.GoalStatusPlanned {
		t.Errorf("status = %q, want Planned", goal.Status)
	}
	if goal.ActualTime != 0 || goal.Progress != 0 {
		t.Errorf("new goal must start at zero, got actual=%d progress=%d", goal.ActualTime, goal.Progress)
	}
}

func TestCreateGoal_DefaultsPriorityToMedium(t *testing.T) {
	gs := newTestGoalService(NewMemoryStore())

	goal, err := gs.Create(context.Background(), &models.CreateGoalRequest{
		Title:         "读完三本书",
		Deadline:      "2026-10-01",
		EstimatedTime: 900,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if goal.Priority != models.PriorityMedium {
		t.Errorf("priority = %q, want Medium", goal.Priority)
	}
}

func TestCreateGoal_Validation(t *testing.T) {
	gs := newTestGoalService(NewMemoryStore())
	ctx := context.Background()

	tests := []struct {
		name string
		req  models.CreateGoalRequest
	}{
		{"missing title", models.CreateGoalRequest{Deadline: "2026-12-31", EstimatedTime: 60}},
		{"zero estimate", models.CreateGoalRequest{Title: "x", Deadline: "2026-12-31", EstimatedTime: 0}},
		{"negative estimate", models.CreateGoalRequest{Title: "x", Deadline: "2026-12-31", EstimatedTime: -5}},
		{"missing deadline", models.CreateGoalRequest{Title: "x", EstimatedTime: 60}},
		{"malformed deadline", models.CreateGoalRequest{Title: "x", Deadline: "31/12/2026", EstimatedTime: 60}},
		{"past deadline", models.CreateGoalRequest{Title: "x", Deadline: "2026-08-28", EstimatedTime: 60}},
		{"unknown priority", models.CreateGoalRequest{Title: "x", Deadline: "2026-12-31", EstimatedTime: 60, Priority: "Urgent"}},
	}
	for _, tt := range tests {
		if _, err := gs.Create(ctx, &tt.req); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: err = %v, want ErrValidation", tt.name, err)
		}
	}
}

func TestCreateGoal_TodayDeadlineAllowed(t *testing.T) {
	gs := newTestGoalService(NewMemoryStore())

	_, err := gs.Create(context.Background(), &models.CreateGoalRequest{
		Title:         "今天收尾",
		Deadline:      "2026-08-29",
		EstimatedTime: 60,
	})
	if err != nil {
		t.Errorf("deadline today must be accepted: %v", err)
	}
}

func TestUpdateGoal_StatusMachine(t *testing.T) {
	tests := []struct {
		from    models.GoalStatus
		to      models.GoalStatus
		allowed bool
	}{
		{models.GoalStatusPlanned, models.GoalStatusInProgress, true},
		{models.GoalStatusPlanned, models.GoalStatusPlanned, true},
		{models.GoalStatusPlanned, models.GoalStatusCompleted, false},
		{models.GoalStatusPlanned, models.GoalStatusAbandoned, false},
		{models.GoalStatusInProgress, models.GoalStatusCompleted, true},
		{models.GoalStatusInProgress, models.GoalStatusAbandoned, true},
		{models.GoalStatusInProgress, models.GoalStatusPlanned, false},
		{models.GoalStatusCompleted, models.GoalStatusInProgress, false},
		{models.GoalStatusCompleted, models.GoalStatusAbandoned, false},
		{models.GoalStatusAbandoned, models.GoalStatusInProgress, false},
	}

	for _, tt := range tests {
		store := NewMemoryStore()
		gs := newTestGoalService(store)
		ctx := context.Background()
		seedGoal(t, store, "g1", "学习编程", fixedNow.AddDate(0, 4, 0), tt.from)

		_, err := gs.Update(ctx, "g1", &models.UpdateGoalRequest{Status: &tt.to})
		if tt.allowed && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
		}
		if !tt.allowed {
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s -> %s: err = %v, want ErrInvalidTransition", tt.from, tt.to, err)
			}
			// The goal must be left untouched.
			goal, _ := store.GetGoal(ctx, "g1")
			if goal.Status != tt.from {
				t.Errorf("%s -> %s: status mutated to %s on rejected transition", tt.from, tt.to, goal.Status)
			}
		}
	}
}

func TestUpdateGoal_CompletionTimestamp(t *testing.T) {
	store := NewMemoryStore()
	gs := newTestGoalService(store)
	ctx := context.Background()
	seedGoal(t, store, "g1", "学习编程", fixedNow.AddDate(0, 4, 0), models.GoalStatusInProgress)

	status := models.GoalStatusCompleted
	goal, err := gs.Update(ctx, "g1", &models.UpdateGoalRequest{Status: &status})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if goal.CompletedAt == nil || !goal.CompletedAt.Equal(fixedNow) {
		t.Errorf("completed_at = %v, want %v", goal.CompletedAt, fixedNow)
	}
}

func TestUpdateGoal_UnknownStatusIsValidationError(t *testing.T) {
	store := NewMemoryStore()
	gs := newTestGoalService(store)
	seedGoal(t, store, "g1", "学习编程", fixedNow.AddDate(0, 4, 0), models.GoalStatusPlanned)

	bad := models.GoalStatus("Paused")
	_, err := gs.Update(context.Background(), "g1", &models.UpdateGoalRequest{Status: &bad})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestDeleteGoal_ClearsRecordReferences(t *testing.T) {
	store := NewMemoryStore()
	gs := newTestGoalService(store)
	ctx := context.Background()
	seedGoal(t, store, "g1", "学习编程", fixedNow.AddDate(0, 4, 0), models.GoalStatusInProgress)

	err := store.CreateRecord(ctx, &models.TimeRecord{
		ID: "r1", StartTime: fixedNow, EndTime: fixedNow.Add(time.Hour),
		Duration: 60, MatchedGoalID: "g1",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := gs.Delete(ctx, "g1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.GetGoal(ctx, "g1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("goal still present after delete: %v", err)
	}
	rec, err := store.GetRecord(ctx, "r1")
	if err != nil {
		t.Fatalf("record must survive goal deletion: %v", err)
	}
	if rec.MatchedGoalID != "" {
		t.Errorf("record still references deleted goal %q", rec.MatchedGoalID)
	}
}

func TestDeleteGoal_NotFound(t *testing.T) {
	gs := newTestGoalService(NewMemoryStore())

	if err := gs.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListGoals_ActiveCount(t *testing.T) {
	store := NewMemoryStore()
	gs := newTestGoalService(store)
	deadline := fixedNow.AddDate(0, 4, 0)
	seedGoal(t, store, "g1", "a", deadline, models.GoalStatusPlanned)
	seedGoal(t, store, "g2", "b", deadline, models.GoalStatusInProgress)
	seedGoal(t, store, "g3", "c", deadline, models.GoalStatusCompleted)
	seedGoal(t, store, "g4", "d", deadline, models.GoalStatusAbandoned)

	resp, err := gs.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if resp.Total != 4 {
		t.Errorf("total = %d, want 4", resp.Total)
	}
	if resp.ActiveCount != 2 {
		t.Errorf("active_count = %d, want 2", resp.ActiveCount)
	}
}
