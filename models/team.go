package models

import "time"

type Team struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description" db:"description"`
	TournamentID string    `json:"tournament_id" db:"tournament_id"`
	CreatedBy    string    `json:"created_by" db:"created_by"`
	GroupID      *string   `json:"group_id,omitempty" db:"group_id"`
	GroupName    *string   `json:"group_name,omitempty" db:"group_name"`
	GroupSlot    *int      `json:"group_slot,omitempty" db:"group_slot"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Assigned reports whether the team has been dealt into a group.
func (t *Team) Assigned() bool {
	return t.GroupID != nil && *t.GroupID != ""
}

func (t *Team) ClearGroup() {
	t.GroupID = nil
	t.GroupName = nil
	t.GroupSlot = nil
}
