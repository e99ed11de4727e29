package draw

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Dosada05/tournament-groups/models"
)

const MinGroups = 2

var (
	ErrInvalidGroupCount = errors.New("invalid number of groups")
	ErrRandRequired      = errors.New("random source is required")
)

type RandomDealGenerator struct{}

func NewRandomDealGenerator() GroupGenerator {
	return &RandomDealGenerator{}
}

func (g *RandomDealGenerator) GetName() string {
	return "RandomDeal"
}

// GenerateGroups shuffles the roster with a uniform permutation and deals the
// teams round-robin, so group sizes differ by at most one and the first
// n mod g groups receive the extra team.
func (g *RandomDealGenerator) GenerateGroups(ctx context.Context, params GenerateGroupsParams) ([]DealtGroup, error) {
	n := len(params.Teams)
	if params.NumberOfGroups < MinGroups || params.NumberOfGroups > n {
		return nil, fmt.Errorf("%w: must be between %d and %d, got %d",
			ErrInvalidGroupCount, MinGroups, n, params.NumberOfGroups)
	}
	if params.Rand == nil {
		return nil, ErrRandRequired
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shuffled := make([]models.Team, n)
	copy(shuffled, params.Teams)
	params.Rand.Shuffle(n, func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	groups := make([]DealtGroup, params.NumberOfGroups)
	for i := range groups {
		groups[i] = DealtGroup{
			Name:     GroupName(i),
			Position: i + 1,
			Teams:    make([]models.Team, 0, n/params.NumberOfGroups+1),
		}
	}
	for i, team := range shuffled {
		slot := i % params.NumberOfGroups
		groups[slot].Teams = append(groups[slot].Teams, team)
	}
	return groups, nil
}

// GroupName labels groups "Group A" through "Group Z", then numerically.
func GroupName(index int) string {
	if index >= 0 && index < 26 {
		return "Group " + string(rune('A'+index))
	}
	return "Group " + strconv.Itoa(index+1)
}
