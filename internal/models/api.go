package models

import "time"

// ErrorDetail carries a machine-readable code and a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIResponse is the uniform envelope every endpoint returns.
type APIResponse struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// CreateTimeRecordRequest is the ingest payload. ManualGoalID, when set,
// overrides the matcher's goal association.
type CreateTimeRecordRequest struct {
	InputText    string `json:"input_text"`
	ManualGoalID string `json:"manual_goal_id,omitempty"`
}

// UpdateTimeRecordRequest is a partial record edit. Nil fields are untouched.
type UpdateTimeRecordRequest struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Activity  *string    `json:"activity,omitempty"`
}

// CreateGoalRequest is the goal creation payload. Deadline is YYYY-MM-DD.
type CreateGoalRequest struct {
	Title         string   `json:"title"`
	Deadline      string   `json:"deadline"`
	EstimatedTime int      `json:"estimated_time"`
	Priority      Priority `json:"priority,omitempty"`
}

// UpdateGoalRequest is a partial goal edit. Nil fields are untouched.
type UpdateGoalRequest struct {
	Title         *string     `json:"title,omitempty"`
	Deadline      *string     `json:"deadline,omitempty"`
	EstimatedTime *int        `json:"estimated_time,omitempty"`
	Priority      *Priority   `json:"priority,omitempty"`
	Status        *GoalStatus `json:"status,omitempty"`
}
