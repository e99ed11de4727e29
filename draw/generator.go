package draw

import (
	"context"
	"math/rand/v2"

	"github.com/Dosada05/tournament-groups/models"
)

type GenerateGroupsParams struct {
	TournamentID   string
	Teams          []models.Team
	NumberOfGroups int
	// Rand drives the shuffle. Callers own it; generators never fall back to a
	// global source so a seeded Rand reproduces a draw exactly.
	Rand *rand.Rand
}

// DealtGroup is a group as produced by a generator, before it is persisted.
type DealtGroup struct {
	Name     string
	Position int
	Teams    []models.Team
}

type GroupGenerator interface {
	GenerateGroups(ctx context.Context, params GenerateGroupsParams) ([]DealtGroup, error)

	GetName() string
}
