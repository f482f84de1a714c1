package models

import "time"

// TaskPriority orders tasks for listing: urgent > high > medium > low.
type TaskPriority string

const (
	PriorityUrgent TaskPriority = "urgent"
	PriorityHigh   TaskPriority = "high"
	PriorityMedium TaskPriority = "medium"
	PriorityLow    TaskPriority = "low"
)

// Rank returns the sort rank of the priority, lower sorts first.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// TaskType categorizes what kind of follow-up the task is.
type TaskType string

const (
	TaskFollowUp    TaskType = "follow_up"
	TaskCall        TaskType = "call"
	TaskSendSample  TaskType = "send_sample"
	TaskSendQuote   TaskType = "send_quote"
	TaskMeeting     TaskType = "meeting"
	TaskTypeGeneral TaskType = "general"
)

// RecurrencePattern controls lazy task recurrence expansion.
type RecurrencePattern string

const (
	RecurrenceNone    RecurrencePattern = "none"
	RecurrenceDaily   RecurrencePattern = "daily"
	RecurrenceWeekly  RecurrencePattern = "weekly"
	RecurrenceMonthly RecurrencePattern = "monthly"
)

// Valid reports whether the pattern is known.
func (p RecurrencePattern) Valid() bool {
	switch p {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Task is a to-do with optional recurrence.
type Task struct {
	ID                 int               `json:"id" db:"id"`
	ClientID           int               `json:"client_id" db:"client_id"`
	DealID             *int              `json:"deal_id,omitempty" db:"deal_id"`
	Title              string            `json:"title" db:"title"`
	TaskType           TaskType          `json:"task_type" db:"task_type"`
	Priority           TaskPriority      `json:"priority" db:"priority"`
	Status             TaskStatus        `json:"status" db:"status"`
	DueDate            *time.Time        `json:"due_date,omitempty" db:"due_date"`
	ReminderDate       *time.Time        `json:"reminder_date,omitempty" db:"reminder_date"`
	RecurrencePattern  RecurrencePattern `json:"recurrence_pattern" db:"recurrence_pattern"`
	RecurrenceInterval int               `json:"recurrence_interval" db:"recurrence_interval"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
}

// Recurring reports whether the task expands into future instances.
func (t *Task) Recurring() bool {
	return t.RecurrencePattern != "" && t.RecurrencePattern != RecurrenceNone &&
		t.RecurrenceInterval > 0
}
