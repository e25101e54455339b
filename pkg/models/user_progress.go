package models

import "time"

// HistoryEntry is one row of the append-only practice log. The core only
// writes it; exports are the only readers.
type HistoryEntry struct {
	ID          int64     `json:"id" db:"id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	StageID     int       `json:"stage_id" db:"stage_id"`
	StepID      int       `json:"step_id" db:"step_id"`
	Day         int       `json:"day" db:"day"`
	Action      string    `json:"action" db:"action"`
	Response    string    `json:"user_response" db:"user_response"` // optional free-text answer
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

// NewHistoryEntry snapshots the user's position after an action
func NewHistoryEntry(u User, action string, at time.Time) HistoryEntry {
	return HistoryEntry{
		UserID:      u.ID,
		StageID:     u.CurrentStage,
		StepID:      u.CurrentStep,
		Day:         u.CurrentDay,
		Action:      action,
		CompletedAt: at.UTC(),
	}
}
