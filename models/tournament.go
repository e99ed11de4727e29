package models

import "time"

// TournamentStatus представляет статусы турнира, соответствующие ENUM в БД.
type TournamentStatus string

const (
	StatusUpcoming  TournamentStatus = "UPCOMING"
	StatusOngoing   TournamentStatus = "ONGOING"
	StatusCompleted TournamentStatus = "COMPLETED"
	StatusCancelled TournamentStatus = "CANCELLED"
)

const DefaultMaxTeams = 16

func (s TournamentStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave the status.
func (s TournamentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Tournament представляет турнир.
type Tournament struct {
	ID          string           `json:"id" db:"id"`
	Name        string           `json:"name" db:"name"`
	Description string           `json:"description" db:"description"`
	StartDate   time.Time        `json:"start_date" db:"start_date"`
	EndDate     time.Time        `json:"end_date" db:"end_date"`
	MaxTeams    int              `json:"max_teams" db:"max_teams"`
	Status      TournamentStatus `json:"status" db:"status"`
	CreatedBy   string           `json:"created_by" db:"created_by"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`

	// TeamCount is maintained in the same unit of work as every team insert/delete.
	TeamCount int `json:"team_count" db:"team_count"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Teams []Team `json:"teams,omitempty" db:"-"`
}

// IsFull reports whether the roster is closed.
func (t *Tournament) IsFull() bool {
	return t.TeamCount >= t.MaxTeams
}

// RemainingSlots never goes below zero.
func (t *Tournament) RemainingSlots() int {
	if t.TeamCount >= t.MaxTeams {
		return 0
	}
	return t.MaxTeams - t.TeamCount
}
