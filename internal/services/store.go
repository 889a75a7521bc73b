package services

import (
	"context"
	"time"

	"timeagent/internal/models"
)

// RecordStore persists time records. Records and goals live in independent
// stores keyed by id; the matched_goal_id cross-reference is an indexed
// lookup key, never an owning pointer.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec *models.TimeRecord) error
	GetRecord(ctx context.Context, id string) (*models.TimeRecord, error)
	UpdateRecord(ctx context.Context, rec *models.TimeRecord) error
	DeleteRecord(ctx context.Context, id string) error

	// ListRecordsByRange returns records with start_time in [from, to),
	// newest first, as a consistent snapshot.
	ListRecordsByRange(ctx context.Context, from, to time.Time) ([]models.TimeRecord, error)
	ListRecordsByGoal(ctx context.Context, goalID string) ([]models.TimeRecord, error)

	// ClearGoalRef removes the weak reference to a deleted goal from all
	// dependent records.
	ClearGoalRef(ctx context.Context, goalID string) error

	// SumDurationByGoal re-derives the total linked duration for a goal.
	SumDurationByGoal(ctx context.Context, goalID string) (int, error)
}

// GoalStore persists goals. Implementations fill the derived Progress field
// on every read.
type GoalStore interface {
	CreateGoal(ctx context.Context, goal *models.Goal) error
	GetGoal(ctx context.Context, id string) (*models.Goal, error)
	UpdateGoal(ctx context.Context, goal *models.Goal) error
	DeleteGoal(ctx context.Context, id string) error
	ListGoals(ctx context.Context) ([]models.Goal, error)

	// AddActualTime applies a signed accumulation delta and returns the
	// updated goal. Callers hold the per-goal lock.
	AddActualTime(ctx context.Context, id string, delta int) (*models.Goal, error)
}

// Store is the combined persistence surface the engine is wired against.
type Store interface {
	RecordStore
	GoalStore

	// SnapshotRange returns records with start_time in [from, to), newest
	// first, together with all goals, read at a single instant. Report
	// reads use this so they never observe a record without the goal state
	// that accompanied it.
	SnapshotRange(ctx context.Context, from, to time.Time) ([]models.TimeRecord, []models.Goal, error)
}
