package model

import "time"

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyOneTime Frequency = "one_time"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyOneTime:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskOverdue   TaskStatus = "overdue"
)

type Task struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Frequency         Frequency  `json:"frequency"`
	DueDate           *time.Time `json:"due_date"`
	Completed         bool       `json:"completed"`
	CompletedAt       *time.Time `json:"completed_at"`
	CreatedAt         time.Time  `json:"created_at"`
	CreatedBy         string     `json:"created_by"`
	AssignedTo        *string    `json:"assigned_to"`
	HouseholdID       string     `json:"household_id"`
	ParentTaskID      *string    `json:"parent_task_id,omitempty"`
	OverdueNotifiedAt *time.Time `json:"-"`
	Status            TaskStatus `json:"status"`
}

type RecurringRule struct {
	ID           string     `json:"id"`
	TaskID       string     `json:"task_id"`
	IntervalDays int        `json:"interval_days"`
	AnchorDate   time.Time  `json:"anchor_date"`
	EndDate      *time.Time `json:"end_date"`
	// GeneratedThrough is the highest step already materialized.
	GeneratedThrough int `json:"-"`
}
