package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/Dosada05/tournament-groups/db"
	"github.com/Dosada05/tournament-groups/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// setupPostgres connects to TEST_DATABASE_URL and applies the migrations.
func setupPostgres(t *testing.T) (Store, *sql.DB) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	database, err := db.Connect(dsn, 5*time.Second)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, db.Migrate(database), "Failed to apply migrations")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPostgresStore(database, logger), database
}

func seedPostgresTournament(t *testing.T, store Store, maxTeams int) string {
	t.Helper()
	id := uuid.NewString()
	start := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateTournament(context.Background(), &models.Tournament{
		ID:        id,
		Name:      "Cup " + id,
		StartDate: start,
		EndDate:   start.Add(24 * time.Hour),
		MaxTeams:  maxTeams,
		Status:    models.StatusUpcoming,
		CreatedBy: "admin-1",
		CreatedAt: start,
	}))
	t.Cleanup(func() {
		_ = store.InTournament(context.Background(), id, func(ctx context.Context, tx TournamentTx) error {
			return tx.DeleteTournament(ctx)
		})
	})
	return id
}

func admitTeam(ctx context.Context, store Store, tournamentID, name string) error {
	return store.InTournament(ctx, tournamentID, func(ctx context.Context, tx TournamentTx) error {
		tournament := tx.Tournament()
		teams, err := tx.Teams(ctx)
		if err != nil {
			return err
		}
		if len(teams) >= tournament.MaxTeams {
			return errTournamentFull
		}
		team := &models.Team{ID: uuid.NewString(), Name: name, CreatedBy: "user-bob", CreatedAt: time.Now().UTC()}
		if err := tx.InsertTeam(ctx, team); err != nil {
			return err
		}
		tournament.TeamCount = len(teams) + 1
		return tx.UpdateTournament(ctx, tournament)
	})
}

var errTournamentFull = errors.New("tournament full")

func TestPostgresStoreSerializesAdmission(t *testing.T) {
	const (
		maxTeams = 6
		requests = 20
	)
	store, _ := setupPostgres(t)
	ctx := context.Background()
	id := seedPostgresTournament(t, store, maxTeams)

	var g errgroup.Group
	results := make([]error, requests)
	for i := 0; i < requests; i++ {
		g.Go(func() error {
			results[i] = admitTeam(ctx, store, id, fmt.Sprintf("Racer %02d", i))
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
		assert.ErrorIs(t, err, errTournamentFull)
	}
	assert.Equal(t, maxTeams, succeeded)

	tournament, err := store.GetTournamentWithTeams(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, maxTeams, tournament.TeamCount)
	assert.Len(t, tournament.Teams, maxTeams)
}

func TestPostgresStoreConstraintErrors(t *testing.T) {
	store, _ := setupPostgres(t)
	ctx := context.Background()
	id := seedPostgresTournament(t, store, 2)
	require.NoError(t, admitTeam(ctx, store, id, "Owls"))

	err := admitTeam(ctx, store, id, "Owls")
	assert.ErrorIs(t, err, ErrTeamNameConflict)

	err = store.InTournament(ctx, id, func(ctx context.Context, tx TournamentTx) error {
		tournament := tx.Tournament()
		tournament.TeamCount = tournament.MaxTeams + 1
		return tx.UpdateTournament(ctx, tournament)
	})
	assert.ErrorIs(t, err, ErrConflict)

	tournament, err := store.GetTournament(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, tournament.TeamCount)
}

func TestPostgresStoreGroupsAndCascade(t *testing.T) {
	store, database := setupPostgres(t)
	ctx := context.Background()
	id := seedPostgresTournament(t, store, 4)
	for _, name := range []string{"A", "B", "C", "D"} {
		require.NoError(t, admitTeam(ctx, store, id, name))
	}

	err := store.InTournament(ctx, id, func(ctx context.Context, tx TournamentTx) error {
		teams, err := tx.Teams(ctx)
		if err != nil {
			return err
		}
		for i, name := range []string{"Group A", "Group B"} {
			g := &models.Group{ID: uuid.NewString(), Name: name, Position: i + 1, Size: 2, CreatedAt: time.Now().UTC()}
			if err := tx.InsertGroup(ctx, g); err != nil {
				return err
			}
			for slot, team := range teams[i*2 : i*2+2] {
				groupID, groupName, groupSlot := g.ID, g.Name, slot+1
				team.GroupID, team.GroupName, team.GroupSlot = &groupID, &groupName, &groupSlot
				if err := tx.UpdateTeam(ctx, &team); err != nil {
					return err
				}
			}
		}
		return nil
	})
	require.NoError(t, err)

	groups, err := store.ListGroupsByTournament(ctx, id)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Group A", groups[0].Name)
	for _, g := range groups {
		assert.Equal(t, g.Size, len(g.Teams))
	}

	var deleted int
	err = store.InTournament(ctx, id, func(ctx context.Context, tx TournamentTx) error {
		deleted, err = tx.DeleteGroups(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	teams, err := store.ListTeamsByTournament(ctx, id)
	require.NoError(t, err)
	for _, team := range teams {
		assert.False(t, team.Assigned())
	}

	require.NoError(t, store.InTournament(ctx, id, func(ctx context.Context, tx TournamentTx) error {
		return tx.DeleteTournament(ctx)
	}))
	var remaining int
	require.NoError(t, database.QueryRowContext(ctx,
		`SELECT count(*) FROM teams WHERE tournament_id = $1`, id).Scan(&remaining))
	assert.Zero(t, remaining)
	_, err = store.GetTournamentWithTeams(ctx, id)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestPostgresStoreSnapshotReads(t *testing.T) {
	store, _ := setupPostgres(t)
	ctx := context.Background()
	id := seedPostgresTournament(t, store, 8)

	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < 30; i++ {
			if err := admitTeam(ctx, store, id, fmt.Sprintf("Team %02d", i)); err != nil {
				return err
			}
			err := store.InTournament(ctx, id, func(ctx context.Context, tx TournamentTx) error {
				teams, err := tx.Teams(ctx)
				if err != nil {
					return err
				}
				if err := tx.DeleteTeam(ctx, teams[len(teams)-1].ID); err != nil {
					return err
				}
				tournament := tx.Tournament()
				tournament.TeamCount = len(teams) - 1
				return tx.UpdateTournament(ctx, tournament)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for i := 0; i < 60; i++ {
			got, err := store.GetTournamentWithTeams(ctx, id)
			if err != nil {
				return err
			}
			if got.TeamCount != len(got.Teams) {
				return fmt.Errorf("team count %d but %d teams", got.TeamCount, len(got.Teams))
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())
}
