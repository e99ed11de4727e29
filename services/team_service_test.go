package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Dosada05/tournament-groups/models"
	"github.com/Dosada05/tournament-groups/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCreateTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tournament := f.createTournament(t, 4)

	team, err := f.teams.CreateTeam(ctx, CreateTeamInput{
		TournamentID: tournament.ID,
		Name:         "  Rockets ",
		Description:  "fast",
	}, alice)
	require.NoError(t, err)
	assert.Equal(t, "Rockets", team.Name)
	assert.Equal(t, alice.ID, team.CreatedBy)
	assert.False(t, team.Assigned())

	stored, err := f.tournaments.GetTournament(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TeamCount)
	require.Len(t, stored.Teams, 1)
	assert.Equal(t, team.ID, stored.Teams[0].ID)
	assert.Equal(t, []string{EventTeamAdmitted}, f.notifier.types())
}

func TestCreateTeamRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tournament := f.createTournament(t, 2)
	f.admit(t, tournament.ID, 1)

	testCases := []struct {
		name   string
		input  CreateTeamInput
		caller models.Principal
		kind   error
	}{
		{"admin cannot register", CreateTeamInput{TournamentID: tournament.ID, Name: "Admins"}, admin, ErrForbiddenOperation},
		{"blank name", CreateTeamInput{TournamentID: tournament.ID, Name: " "}, bob, ErrInvalidArgument},
		{"unknown tournament", CreateTeamInput{TournamentID: "missing", Name: "Lost"}, bob, ErrNotFound},
		{"duplicate name", CreateTeamInput{TournamentID: tournament.ID, Name: "Team 01"}, bob, ErrTeamNameConflict},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.teams.CreateTeam(ctx, tc.input, tc.caller)
			assert.ErrorIs(t, err, tc.kind)
		})
	}

	stored, err := f.tournaments.GetTournament(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TeamCount)
}

func TestCreateTeamCapacityExceeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tournament := f.fullTournament(t, 3)

	_, err := f.teams.CreateTeam(ctx, CreateTeamInput{TournamentID: tournament.ID, Name: "Late"}, bob)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	var ruleErr *RuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, "maxTeams", ruleErr.Field)
	require.NotNil(t, ruleErr.Limit)
	assert.Equal(t, 3, *ruleErr.Limit)
	assert.Equal(t, "CapacityExceeded", KindName(err))
}

func TestCreateTeamRequiresUpcoming(t *testing.T) {
	for _, status := range []models.TournamentStatus{models.StatusOngoing, models.StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			tournament := f.createTournament(t, 4)
			_, err := f.tournaments.UpdateTournamentStatus(ctx, tournament.ID, status, admin)
			require.NoError(t, err)

			_, err = f.teams.CreateTeam(ctx, CreateTeamInput{TournamentID: tournament.ID, Name: "Late"}, bob)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

func TestConcurrentAdmissionFillsExactlyRemainingSlots(t *testing.T) {
	const (
		maxTeams  = 8
		preFilled = 3
		requests  = 25
	)
	f := newFixture(t)
	tournament := f.createTournament(t, maxTeams)
	f.admit(t, tournament.ID, preFilled)

	var g errgroup.Group
	results := make([]error, requests)
	for i := 0; i < requests; i++ {
		g.Go(func() error {
			_, err := f.teams.CreateTeam(context.Background(), CreateTeamInput{
				TournamentID: tournament.ID,
				Name:         fmt.Sprintf("Racer %02d", i),
			}, bob)
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrCapacityExceeded)
	}
	assert.Equal(t, maxTeams-preFilled, succeeded)

	stored, err := f.tournaments.GetTournament(context.Background(), tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, maxTeams, stored.TeamCount)
	assert.Len(t, stored.Teams, maxTeams)
}

func TestConcurrentAdmissionLastSlot(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t)
		tournament := f.createTournament(t, 2)
		f.admit(t, tournament.ID, 1)

		var g errgroup.Group
		errs := make([]error, 2)
		for i, caller := range []models.Principal{alice, bob} {
			g.Go(func() error {
				_, errs[i] = f.teams.CreateTeam(context.Background(), CreateTeamInput{
					TournamentID: tournament.ID,
					Name:         "Last " + caller.ID,
				}, caller)
				return nil
			})
		}
		require.NoError(t, g.Wait())

		if errs[0] == nil {
			require.ErrorIs(t, errs[1], ErrCapacityExceeded)
		} else {
			require.NoError(t, errs[1])
			require.ErrorIs(t, errs[0], ErrCapacityExceeded)
		}
		teams, err := f.teams.ListTeamsByTournament(context.Background(), tournament.ID)
		require.NoError(t, err)
		require.Len(t, teams, 2)
	}
}

func TestAdmissionIndependentAcrossTournaments(t *testing.T) {
	f := newFixture(t)
	first := f.createTournament(t, 4)
	second := f.createTournament(t, 4)

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		for _, id := range []string{first.ID, second.ID} {
			g.Go(func() error {
				_, err := f.teams.CreateTeam(context.Background(), CreateTeamInput{
					TournamentID: id,
					Name:         fmt.Sprintf("Team %d", i),
				}, bob)
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	for _, id := range []string{first.ID, second.ID} {
		stored, err := f.tournaments.GetTournament(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, stored.IsFull())
	}
}

func TestCreateTeamRetriesConflicts(t *testing.T) {
	store := &flakyStore{Store: repositories.NewMemoryStore(), failures: 2}
	f := newFixtureWith(t, store, nil, Policy{ConflictRetries: 3})
	tournament := f.createTournament(t, 4)

	_, err := f.teams.CreateTeam(context.Background(), CreateTeamInput{TournamentID: tournament.ID, Name: "Patient"}, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 3, store.calls.Load())
	assert.Contains(t, f.logs.String(), "unit of work conflicted, retrying")
}

func TestCreateTeamConflictRetriesExhausted(t *testing.T) {
	store := &flakyStore{Store: repositories.NewMemoryStore(), failures: 100}
	f := newFixtureWith(t, store, nil, Policy{ConflictRetries: 2})
	tournament := f.createTournament(t, 4)

	_, err := f.teams.CreateTeam(context.Background(), CreateTeamInput{TournamentID: tournament.ID, Name: "Unlucky"}, bob)
	require.ErrorIs(t, err, ErrConflict)
	assert.EqualValues(t, 3, store.calls.Load())

	teams, err := store.ListTeamsByTournament(context.Background(), tournament.ID)
	require.NoError(t, err)
	assert.Empty(t, teams)
}

func TestUpdateTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tournament := f.createTournament(t, 4)
	teams := f.admit(t, tournament.ID, 2)

	updated, err := f.teams.UpdateTeam(ctx, teams[0].ID, UpdateTeamInput{Name: "Renamed", Description: "new"}, alice)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "new", updated.Description)

	_, err = f.teams.UpdateTeam(ctx, teams[0].ID, UpdateTeamInput{Name: "Hijacked"}, bob)
	assert.ErrorIs(t, err, ErrForbiddenOperation)

	_, err = f.teams.UpdateTeam(ctx, teams[0].ID, UpdateTeamInput{Name: teams[1].Name}, alice)
	assert.ErrorIs(t, err, ErrTeamNameConflict)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Equal(t, "TeamNameConflict", KindName(err))

	_, err = f.teams.UpdateTeam(ctx, "missing", UpdateTeamInput{Name: "Ghost"}, alice)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListTeamsByCreator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tournament := f.createTournament(t, 4)
	f.admit(t, tournament.ID, 2)
	_, err := f.teams.CreateTeam(ctx, CreateTeamInput{TournamentID: tournament.ID, Name: "Bob's"}, bob)
	require.NoError(t, err)

	mine, err := f.teams.ListTeamsByCreator(ctx, bob)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Bob's", mine[0].Name)

	_, err = f.teams.ListTeamsByTournament(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tournament := f.createTournament(t, 4)
	teams := f.admit(t, tournament.ID, 3)

	_, err := f.teams.DeleteTeam(ctx, teams[0].ID, bob)
	require.ErrorIs(t, err, ErrForbiddenOperation)

	removed, err := f.teams.DeleteTeam(ctx, teams[0].ID, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, removed.TeamCount)
	assert.False(t, removed.GroupShrunk)

	removed, err = f.teams.DeleteTeam(ctx, teams[1].ID, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, removed.TeamCount)

	_, err = f.teams.DeleteTeam(ctx, teams[1].ID, admin)
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := f.tournaments.GetTournament(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TeamCount)
}

func TestDeleteTeamAfterPartitionShrinksGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tournament := f.fullTournament(t, 4)
	assignment, err := f.groups.AssignTeamsToGroups(ctx, AssignGroupsInput{TournamentID: tournament.ID, NumberOfGroups: 2}, admin)
	require.NoError(t, err)

	victim := assignment.Groups[0].Teams[0]
	removed, err := f.teams.DeleteTeam(ctx, victim.ID, admin)
	require.NoError(t, err)
	assert.True(t, removed.GroupShrunk)
	require.NotNil(t, removed.GroupID)
	assert.Equal(t, assignment.Groups[0].ID, *removed.GroupID)
	assert.Equal(t, 3, removed.TeamCount)
	assert.True(t, strings.Contains(f.logs.String(), `"level":"WARN"`))

	groups, err := f.groups.ListGroupsByTournament(ctx, tournament.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, 1, groups[0].Size)
	assert.Len(t, groups[0].Teams, 1)
	assert.NotContains(t, groups[0].TeamIDs(), victim.ID)
	assert.Len(t, groups[1].Teams, 2)
}

func TestRuleErrorMessage(t *testing.T) {
	err := limitedRuleError(ErrCapacityExceeded, "maxTeams", 16, "tournament is full (%d of %d teams)", 16, 16)
	assert.Equal(t, "tournament is full (16 of 16 teams)", err.Error())
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
	assert.Equal(t, ErrNotFound.Error(), (&RuleError{Kind: ErrNotFound}).Error())
	assert.Empty(t, KindName(errors.New("boom")))
}
