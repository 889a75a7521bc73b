package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"timeagent/internal/models"
)

// reportInvalidator is the slice of the report service that goal and record
// mutations need: dropping stale cached reports.
type reportInvalidator interface {
	InvalidateReports()
}

// GoalService owns the goal lifecycle: creation, edits, the status state
// machine, and deletion with weak-reference cleanup on dependent records.
type GoalService struct {
	store      Store
	reconciler *ReconcilerService
	matcher    *MatcherService
	reports    reportInvalidator
	loc        *time.Location
	now        func() time.Time
}

// NewGoalService wires the goal lifecycle over the store. reports may be nil
// until the report service is attached.
func NewGoalService(store Store, reconciler *ReconcilerService, matcher *MatcherService, loc *time.Location) *GoalService {
	return &GoalService{
		store:      store,
		reconciler: reconciler,
		matcher:    matcher,
		loc:        loc,
		now:        time.Now,
	}
}

// SetReportInvalidator attaches the report cache, broken out of the
// constructor because reports are built after goals at wiring time.
func (s *GoalService) SetReportInvalidator(r reportInvalidator) {
	s.reports = r
}

// Create validates and persists a new goal. New goals always start Planned
// with zero accumulated time.
func (s *GoalService) Create(ctx context.Context, req *models.CreateGoalRequest) (*models.Goal, error) {
	if req.Title == "" {
		return nil, validationErrorf("title is required")
	}
	if req.EstimatedTime <= 0 {
		return nil, validationErrorf("estimated_time must be a positive number of minutes")
	}
	deadline, err := s.parseDeadline(req.Deadline)
	if err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !priority.Valid() {
		return nil, validationErrorf("unknown priority %q", priority)
	}

	now := s.now().In(s.loc)
	goal := &models.Goal{
		ID:            uuid.New().String(),
		Title:         req.Title,
		Deadline:      deadline,
		EstimatedTime: req.EstimatedTime,
		Priority:      priority,
		Status:        models.GoalStatusPlanned,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateGoal(ctx, goal); err != nil {
		return nil, err
	}

	s.invalidate()
	log.Printf("🎯 [GOAL] Created %s: %q (%d min by %s)",
		goal.ID, goal.Title, goal.EstimatedTime, goal.Deadline.Format("2006-01-02"))
	return goal, nil
}

// Update applies a partial edit. Status changes go through the lifecycle
// state machine; an illegal move is ErrInvalidTransition, never a silent
// no-op.
func (s *GoalService) Update(ctx context.Context, id string, req *models.UpdateGoalRequest) (*models.Goal, error) {
	var updated *models.Goal
	err := s.reconciler.WithGoalLock(ctx, func(ctx context.Context) error {
		goal, err := s.store.GetGoal(ctx, id)
		if err != nil {
			return err
		}

		if req.Title != nil {
			if *req.Title == "" {
				return validationErrorf("title cannot be empty")
			}
			goal.Title = *req.Title
		}
		if req.EstimatedTime != nil {
			if *req.EstimatedTime <= 0 {
				return validationErrorf("estimated_time must be a positive number of minutes")
			}
			goal.EstimatedTime = *req.EstimatedTime
		}
		if req.Deadline != nil {
			deadline, err := s.parseDeadline(*req.Deadline)
			if err != nil {
				return err
			}
			goal.Deadline = deadline
		}
		if req.Priority != nil {
			if !req.Priority.Valid() {
				return validationErrorf("unknown priority %q", *req.Priority)
			}
			goal.Priority = *req.Priority
		}
		if req.Status != nil {
			next := *req.Status
			if !next.Valid() {
				return validationErrorf("unknown status %q", next)
			}
			if !goal.Status.CanTransitionTo(next) {
				return ErrInvalidTransition
			}
			if next == models.GoalStatusCompleted && goal.Status != models.GoalStatusCompleted {
				t := s.now().In(s.loc)
				goal.CompletedAt = &t
			}
			goal.Status = next
		}

		goal.UpdatedAt = s.now().In(s.loc)
		if err := s.store.UpdateGoal(ctx, goal); err != nil {
			return err
		}
		updated = goal
		return nil
	}, id)
	if err != nil {
		return nil, err
	}

	s.invalidate()
	return updated, nil
}

// Delete removes a goal and clears the weak reference from every linked
// record. The records themselves survive as unlinked entries.
func (s *GoalService) Delete(ctx context.Context, id string) error {
	err := s.reconciler.WithGoalLock(ctx, func(ctx context.Context) error {
		if _, err := s.store.GetGoal(ctx, id); err != nil {
			return err
		}
		if err := s.store.ClearGoalRef(ctx, id); err != nil {
			return err
		}
		return s.store.DeleteGoal(ctx, id)
	}, id)
	if err != nil {
		return err
	}

	s.invalidate()
	log.Printf("🗑️ [GOAL] Deleted %s, dependent records unlinked", id)
	return nil
}

// Get returns one goal with its derived progress.
func (s *GoalService) Get(ctx context.Context, id string) (*models.Goal, error) {
	return s.store.GetGoal(ctx, id)
}

// List returns all goals, newest first.
func (s *GoalService) List(ctx context.Context) (*models.GoalListResponse, error) {
	goals, err := s.store.ListGoals(ctx)
	if err != nil {
		return nil, err
	}
	active := 0
	for i := range goals {
		if goals[i].Active() {
			active++
		}
	}
	if goals == nil {
		goals = []models.Goal{}
	}
	return &models.GoalListResponse{
		Goals:       goals,
		Total:       len(goals),
		ActiveCount: active,
	}, nil
}

func (s *GoalService) parseDeadline(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, validationErrorf("deadline is required (YYYY-MM-DD)")
	}
	deadline, err := time.ParseInLocation("2006-01-02", raw, s.loc)
	if err != nil {
		return time.Time{}, validationErrorf("invalid deadline %q, expected YYYY-MM-DD", raw)
	}
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	if deadline.Before(today) {
		return time.Time{}, validationErrorf("deadline %s is in the past", raw)
	}
	return deadline, nil
}

func (s *GoalService) invalidate() {
	s.matcher.InvalidateCache()
	if s.reports != nil {
		s.reports.InvalidateReports()
	}
}
