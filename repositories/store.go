package repositories

import (
	"context"
	"errors"

	"github.com/Dosada05/tournament-groups/models"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrGroupNotFound      = errors.New("group not found")
	ErrTeamNameConflict   = errors.New("team name already exists in this tournament")
	// ErrConflict is returned when the unit of work lost a race with another writer
	// (serialization failure, deadlock, lock timeout) and nothing was committed.
	ErrConflict = errors.New("concurrent modification conflict")
)

type ListTournamentsFilter struct {
	Status *models.TournamentStatus
	Limit  int
	Offset int
}

// Store is the durable keyed storage for tournaments, teams and groups.
//
// Reads outside InTournament see committed state only. Every mutation goes
// through InTournament, which grants exclusive access to one tournament's
// record set for the duration of fn and commits all writes made through the
// TournamentTx atomically, or none of them if fn returns an error.
type Store interface {
	CreateTournament(ctx context.Context, t *models.Tournament) error
	GetTournament(ctx context.Context, id string) (*models.Tournament, error)
	// GetTournamentWithTeams loads the tournament and its teams from one
	// snapshot, so TeamCount always matches len(Teams).
	GetTournamentWithTeams(ctx context.Context, id string) (*models.Tournament, error)
	ListTournaments(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)

	GetTeam(ctx context.Context, id string) (*models.Team, error)
	ListTeamsByTournament(ctx context.Context, tournamentID string) ([]models.Team, error)
	ListTeamsByCreator(ctx context.Context, creatorID string) ([]models.Team, error)

	// ListGroupsByTournament returns groups ordered by position with members
	// ordered by their slot in the group, all read from one snapshot.
	ListGroupsByTournament(ctx context.Context, tournamentID string) ([]models.Group, error)

	InTournament(ctx context.Context, tournamentID string, fn func(ctx context.Context, tx TournamentTx) error) error
}

// TournamentTx is the write side of a single tournament's unit of work.
type TournamentTx interface {
	// Tournament is the tournament row as read under the lock.
	Tournament() *models.Tournament
	Teams(ctx context.Context) ([]models.Team, error)
	Groups(ctx context.Context) ([]models.Group, error)

	UpdateTournament(ctx context.Context, t *models.Tournament) error
	DeleteTournament(ctx context.Context) error

	InsertTeam(ctx context.Context, team *models.Team) error
	UpdateTeam(ctx context.Context, team *models.Team) error
	DeleteTeam(ctx context.Context, teamID string) error

	InsertGroup(ctx context.Context, group *models.Group) error
	UpdateGroupSize(ctx context.Context, groupID string, size int) error
	// DeleteGroups removes every group of the tournament, clears the group
	// columns of all its teams and reports how many groups were removed.
	DeleteGroups(ctx context.Context) (int, error)
}
