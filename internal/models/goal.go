package models

import "time"

// Priority of a goal.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// GoalStatus is the goal lifecycle state.
// Planned -> InProgress -> {Completed, Abandoned}; the terminal states only
// leave via deletion of the goal itself.
type GoalStatus string

const (
	GoalStatusPlanned    GoalStatus = "Planned"
	GoalStatusInProgress GoalStatus = "InProgress"
	GoalStatusCompleted  GoalStatus = "Completed"
	GoalStatusAbandoned  GoalStatus = "Abandoned"
)

// Valid reports whether s is a known status.
func (s GoalStatus) Valid() bool {
	switch s {
	case GoalStatusPlanned, GoalStatusInProgress, GoalStatusCompleted, GoalStatusAbandoned:
		return true
	}
	return false
}

// Terminal reports whether s permits no further transitions.
func (s GoalStatus) Terminal() bool {
	return s == GoalStatusCompleted || s == GoalStatusAbandoned
}

// CanTransitionTo reports whether the move from s to next is legal.
func (s GoalStatus) CanTransitionTo(next GoalStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case GoalStatusPlanned:
		return next == GoalStatusInProgress
	case GoalStatusInProgress:
		return next == GoalStatusCompleted || next == GoalStatusAbandoned
	}
	return false
}

// Goal is a mutable aggregate target. ActualTime is the exact sum of the
// durations of all non-deleted records linked to the goal; Progress is always
// recomputed from ActualTime/EstimatedTime and never stored independently.
type Goal struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Deadline      time.Time  `json:"deadline"`
	EstimatedTime int        `json:"estimated_time"` // minutes, > 0
	ActualTime    int        `json:"actual_time"`    // minutes, derived
	Progress      int        `json:"progress"`       // 0-100, computed
	Priority      Priority   `json:"priority"`
	Status        GoalStatus `json:"status"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ComputeProgress returns min(100, round(actual/estimated*100)), clamped so it
// is never negative even on inconsistent inputs.
func ComputeProgress(actualTime, estimatedTime int) int {
	if estimatedTime <= 0 || actualTime <= 0 {
		return 0
	}
	p := (actualTime*100 + estimatedTime/2) / estimatedTime
	if p > 100 {
		return 100
	}
	return p
}

// Active reports whether the goal is a candidate for record matching.
func (g *Goal) Active() bool {
	return g.Status == GoalStatusPlanned || g.Status == GoalStatusInProgress
}

// GoalListResponse is the shape of GET /api/goals.
type GoalListResponse struct {
	Goals       []Goal `json:"goals"`
	Total       int    `json:"total"`
	ActiveCount int    `json:"active_count"`
}
