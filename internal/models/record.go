package models

import "time"

// Category is the fixed three-way classification of how time was spent.
// The wire values are the Chinese labels the dashboard renders directly.
type Category string

const (
	CategoryProduction  Category = "生产"
	CategoryInvestment  Category = "投资"
	CategoryExpenditure Category = "支出"
)

// Valid reports whether c is one of the three known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryProduction, CategoryInvestment, CategoryExpenditure:
		return true
	}
	return false
}

// ParsingMethod identifies which parser tier produced the final parse.
type ParsingMethod string

const (
	ParsingMethodRules ParsingMethod = "Rules"
	ParsingMethodLLM   ParsingMethod = "LLM-Fallback"
)

// TimeRecord is a single parsed, categorized time entry.
// Duration is always derived from StartTime/EndTime and recomputed on every
// edit; it is never accepted from a caller. MatchedGoalID is a weak reference:
// deleting the goal clears it on all dependent records.
type TimeRecord struct {
	ID            string        `json:"id"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	Duration      int           `json:"duration"` // minutes
	Activity      string        `json:"activity"`
	Description   string        `json:"description"`
	Category      Category      `json:"category"`
	Confidence    int           `json:"confidence"` // 0-100
	ParsingMethod ParsingMethod `json:"parsing_method"`
	MatchedGoalID string        `json:"matched_goal_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// DurationMinutes computes the whole-minute duration between start and end.
func DurationMinutes(start, end time.Time) int {
	return int(end.Sub(start) / time.Minute)
}

// MatchedGoalInfo is the goal summary attached to an ingest response so the
// client can show progress feedback without a second round trip.
type MatchedGoalInfo struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	ProgressAfter      int    `json:"progress_after"`      // actual_time after this record
	ProgressPercentage int    `json:"progress_percentage"` // 0-100
}

// TimeRecordResponse is a TimeRecord plus the optional matched-goal summary.
type TimeRecordResponse struct {
	TimeRecord
	MatchedGoal *MatchedGoalInfo `json:"matched_goal,omitempty"`
}

// TimeRecordListResponse is the shape of GET /api/time-records.
type TimeRecordListResponse struct {
	Records       []TimeRecord `json:"records"`
	Total         int          `json:"total"`
	TotalDuration int          `json:"total_duration"`
}
