package models

import "time"

// ScoreHistory is an append-only record of a client's score trajectory.
// Rows are never mutated after write.
type ScoreHistory struct {
	ID             int            `json:"id" db:"id"`
	ClientID       int            `json:"client_id" db:"client_id"`
	Timestamp      time.Time      `json:"timestamp" db:"timestamp"`
	Score          int            `json:"score" db:"score"`
	Classification Classification `json:"classification" db:"classification"`
	ChangeReason   string         `json:"change_reason" db:"change_reason"`
	MessageID      *int           `json:"message_id,omitempty" db:"message_id"`
}

// ClassificationChange is emitted when a score update moves a client
// across a band boundary. History is recorded before the change is emitted.
type ClassificationChange struct {
	ClientID          int            `json:"client_id"`
	CompanyName       string         `json:"company_name"`
	OldClassification Classification `json:"old_classification"`
	NewClassification Classification `json:"new_classification"`
	OldScore          int            `json:"old_score"`
	NewScore          int            `json:"new_score"`
	ChangeReason      string         `json:"change_reason"`
	At                time.Time      `json:"at"`
}
