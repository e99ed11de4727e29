package models

import "time"

// Group is one bucket of a tournament partition.
type Group struct {
	ID           string `json:"id" db:"id"`
	TournamentID string `json:"tournament_id" db:"tournament_id"`
	Name         string `json:"name" db:"name"`
	Position     int    `json:"position" db:"position"`
	// Size is the member count recorded when the group was dealt; it only shrinks
	// together with a team removal.
	Size      int       `json:"size" db:"size"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Teams []Team `json:"teams" db:"-"`
}

func (g *Group) TeamIDs() []string {
	ids := make([]string, 0, len(g.Teams))
	for _, t := range g.Teams {
		ids = append(ids, t.ID)
	}
	return ids
}
