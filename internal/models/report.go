package models

// CategoryStats is a per-category duration and its share of the day/week total.
type CategoryStats struct {
	Duration   int     `json:"duration"`   // minutes
	Percentage float64 `json:"percentage"` // 0-100, one decimal
}

// ActivityStats is one entry of the activity-duration ranking.
type ActivityStats struct {
	Activity string `json:"activity"`
	Duration int    `json:"duration"` // minutes
}

// GoalProgressSnapshot is the progress view of one goal in a daily report.
type GoalProgressSnapshot struct {
	GoalID     string `json:"goal_id"`
	Title      string `json:"title"`
	Progress   int    `json:"progress"`   // actual minutes invested
	Estimated  int    `json:"estimated"`  // estimated minutes
	Percentage int    `json:"percentage"` // 0-100
}

// DailyReport is the rollup for a single local date.
type DailyReport struct {
	ReportDate     string                   `json:"report_date"` // YYYY-MM-DD
	TotalRecords   int                      `json:"total_records"`
	TotalDuration  int                      `json:"total_duration"` // minutes
	EfficiencyRate float64                  `json:"efficiency_rate"`
	CategoryStats  map[string]CategoryStats `json:"category_stats"`
	ActivityStats  []ActivityStats          `json:"activity_stats"`
	GoalProgress   []GoalProgressSnapshot   `json:"goal_progress"`
}

// DailyBreakdown is one day of a weekly report, zero-filled for empty days.
type DailyBreakdown struct {
	Date     string `json:"date"` // YYYY-MM-DD
	Duration int    `json:"duration"`
}

// CompletedGoal is a goal that reached Completed inside the report window.
type CompletedGoal struct {
	Title         string `json:"title"`
	EstimatedTime int    `json:"estimated_time"`
	ActualTime    int    `json:"actual_time"`
}

// WeeklyReport is the rollup for the ISO week containing the anchor date.
type WeeklyReport struct {
	Week            string                   `json:"week"`       // e.g. 2026-W35
	DateRange       []string                 `json:"date_range"` // [monday, sunday]
	TotalDuration   int                      `json:"total_duration"`
	EfficiencyRate  float64                  `json:"efficiency_rate"`
	DailyBreakdown  []DailyBreakdown         `json:"daily_breakdown"`
	CategorySummary map[string]CategoryStats `json:"category_summary"`
	CompletedGoals  []CompletedGoal          `json:"completed_goals"`
}
