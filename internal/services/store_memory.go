package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"timeagent/internal/models"
)

// MemoryStore is the in-process store used when no DATABASE_URL is
// configured, and by the test suite. A single RWMutex gives readers a
// point-in-time snapshot; all returned values are copies.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.TimeRecord
	goals   map[string]models.Goal
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]models.TimeRecord),
		goals:   make(map[string]models.Goal),
	}
}

func (s *MemoryStore) CreateRecord(_ context.Context, rec *models.TimeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = *rec
	return nil
}

func (s *MemoryStore) GetRecord(_ context.Context, id string) (*models.TimeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) UpdateRecord(_ context.Context, rec *models.TimeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return ErrNotFound
	}
	s.records[rec.ID] = *rec
	return nil
}

func (s *MemoryStore) DeleteRecord(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) ListRecordsByRange(_ context.Context, from, to time.Time) ([]models.TimeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TimeRecord
	for _, rec := range s.records {
		if !rec.StartTime.Before(from) && rec.StartTime.Before(to) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (s *MemoryStore) ListRecordsByGoal(_ context.Context, goalID string) ([]models.TimeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TimeRecord
	for _, rec := range s.records {
		if rec.MatchedGoalID == goalID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (s *MemoryStore) ClearGoalRef(_ context.Context, goalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.records {
		if rec.MatchedGoalID == goalID {
			rec.MatchedGoalID = ""
			s.records[id] = rec
		}
	}
	return nil
}

func (s *MemoryStore) SumDurationByGoal(_ context.Context, goalID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, rec := range s.records {
		if rec.MatchedGoalID == goalID {
			total += rec.Duration
		}
	}
	return total, nil
}

func (s *MemoryStore) SnapshotRange(_ context.Context, from, to time.Time) ([]models.TimeRecord, []models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []models.TimeRecord
	for _, rec := range s.records {
		if !rec.StartTime.Before(from) && rec.StartTime.Before(to) {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].StartTime.After(records[j].StartTime) })

	goals := make([]models.Goal, 0, len(s.goals))
	for _, goal := range s.goals {
		goal.Progress = models.ComputeProgress(goal.ActualTime, goal.EstimatedTime)
		goals = append(goals, goal)
	}
	sort.Slice(goals, func(i, j int) bool { return goals[i].CreatedAt.After(goals[j].CreatedAt) })

	return records, goals, nil
}

func (s *MemoryStore) CreateGoal(_ context.Context, goal *models.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal.Progress = models.ComputeProgress(goal.ActualTime, goal.EstimatedTime)
	s.goals[goal.ID] = *goal
	return nil
}

func (s *MemoryStore) GetGoal(_ context.Context, id string) (*models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	goal, ok := s.goals[id]
	if !ok {
		return nil, ErrNotFound
	}
	goal.Progress = models.ComputeProgress(goal.ActualTime, goal.EstimatedTime)
	return &goal, nil
}

func (s *MemoryStore) UpdateGoal(_ context.Context, goal *models.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[goal.ID]; !ok {
		return ErrNotFound
	}
	goal.Progress = models.ComputeProgress(goal.ActualTime, goal.EstimatedTime)
	s.goals[goal.ID] = *goal
	return nil
}

func (s *MemoryStore) DeleteGoal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[id]; !ok {
		return ErrNotFound
	}
	delete(s.goals, id)
	return nil
}

func (s *MemoryStore) ListGoals(_ context.Context) ([]models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Goal, 0, len(s.goals))
	for _, goal := range s.goals {
		goal.Progress = models.ComputeProgress(goal.ActualTime, goal.EstimatedTime)
		out = append(out, goal)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AddActualTime(_ context.Context, id string, delta int) (*models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal, ok := s.goals[id]
	if !ok {
		return nil, ErrNotFound
	}
	goal.ActualTime += delta
	if goal.ActualTime < 0 {
		goal.ActualTime = 0
	}
	goal.UpdatedAt = time.Now()
	goal.Progress = models.ComputeProgress(goal.ActualTime, goal.EstimatedTime)
	s.goals[id] = goal
	return &goal, nil
}
