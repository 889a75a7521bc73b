package services

import (
	"context"
	"log"
	"time"

	"timeagent/internal/models"
)

// ReconcilerService keeps each goal's actual_time equal to the exact sum of
// the durations of its linked records. Updates are O(1) signed deltas applied
// under the per-goal lock table, never full rescans.
type ReconcilerService struct {
	goals   GoalStore
	locks   *goalLockTable
	metrics *Metrics
}

// NewReconcilerService creates a reconciler over the goal store. maxWait
// bounds how long a caller queues on a contended goal before the operation is
// rejected with ErrReconciliationConflict.
func NewReconcilerService(goals GoalStore, maxWait time.Duration, metrics *Metrics) *ReconcilerService {
	return &ReconcilerService{
		goals:   goals,
		locks:   newGoalLockTable(maxWait),
		metrics: metrics,
	}
}

// WithGoalLock runs fn while holding the locks for every given goal id.
// Empty ids are skipped; ids are acquired in sorted order.
func (s *ReconcilerService) WithGoalLock(ctx context.Context, fn func(ctx context.Context) error, goalIDs ...string) error {
	release, err := s.locks.AcquireAll(ctx, goalIDs...)
	if err != nil {
		if err == ErrReconciliationConflict && s.metrics != nil {
			s.metrics.ReconciliationConflicts.Inc()
		}
		return err
	}
	defer release()
	return fn(ctx)
}

// Apply adds a signed duration delta to a goal. The caller must already hold
// the goal's lock via WithGoalLock.
func (s *ReconcilerService) Apply(ctx context.Context, goalID string, delta int) (*models.Goal, error) {
	if goalID == "" {
		return nil, nil
	}
	if delta == 0 {
		return s.goals.GetGoal(ctx, goalID)
	}
	goal, err := s.goals.AddActualTime(ctx, goalID, delta)
	if err != nil {
		return nil, err
	}
	log.Printf("⚖️ [RECONCILER] Goal %s actual_time %+d -> %d min (progress %d%%)",
		goalID, delta, goal.ActualTime, goal.Progress)
	return goal, nil
}

// ApplyMove transfers a record's contribution between goals during an edit:
// the old goal loses oldDur, the new goal gains newDur. Either id may be
// empty (unlinked side) and both may be the same goal, in which case a single
// net delta is applied. The caller holds both locks.
func (s *ReconcilerService) ApplyMove(ctx context.Context, oldGoalID, newGoalID string, oldDur, newDur int) (*models.Goal, error) {
	if oldGoalID == newGoalID {
		return s.Apply(ctx, newGoalID, newDur-oldDur)
	}
	if _, err := s.Apply(ctx, oldGoalID, -oldDur); err != nil {
		return nil, err
	}
	return s.Apply(ctx, newGoalID, newDur)
}

// Rederive recomputes a goal's actual_time from scratch out of the record
// store and overwrites the accumulated value. It is the consistency check for
// drift; normal operation never needs it.
func (s *ReconcilerService) Rederive(ctx context.Context, records RecordStore, goalID string) (*models.Goal, error) {
	var goal *models.Goal
	err := s.WithGoalLock(ctx, func(ctx context.Context) error {
		total, err := records.SumDurationByGoal(ctx, goalID)
		if err != nil {
			return err
		}
		current, err := s.goals.GetGoal(ctx, goalID)
		if err != nil {
			return err
		}
		if current.ActualTime != total {
			log.Printf("⚠️ [RECONCILER] Goal %s drift detected: stored %d min, derived %d min",
				goalID, current.ActualTime, total)
		}
		goal, err = s.goals.AddActualTime(ctx, goalID, total-current.ActualTime)
		return err
	}, goalID)
	return goal, err
}
