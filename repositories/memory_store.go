package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Dosada05/tournament-groups/models"
)

// memoryStore keeps committed records in maps guarded by mu and serializes
// units of work per tournament with a dedicated mutex. Writes made inside
// InTournament are staged on copies and published in one step on success.
type memoryStore struct {
	mu          sync.RWMutex
	tournaments map[string]models.Tournament
	teams       map[string]models.Team
	groups      map[string]models.Group

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewMemoryStore() Store {
	return &memoryStore{
		tournaments: make(map[string]models.Tournament),
		teams:       make(map[string]models.Team),
		groups:      make(map[string]models.Group),
		locks:       make(map[string]*sync.Mutex),
	}
}

func (s *memoryStore) lockFor(tournamentID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[tournamentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tournamentID] = l
	}
	return l
}

// acquire locks the tournament's current mutex. A waiter that wakes up on a
// mutex already dropped by releaseLock starts over with a fresh one.
func (s *memoryStore) acquire(tournamentID string) *sync.Mutex {
	for {
		l := s.lockFor(tournamentID)
		l.Lock()
		s.locksMu.Lock()
		current := s.locks[tournamentID]
		s.locksMu.Unlock()
		if current == l {
			return l
		}
		l.Unlock()
	}
}

// releaseLock drops the map entry; the caller must still hold l.
func (s *memoryStore) releaseLock(tournamentID string, l *sync.Mutex) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if s.locks[tournamentID] == l {
		delete(s.locks, tournamentID)
	}
}

func (s *memoryStore) CreateTournament(ctx context.Context, t *models.Tournament) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tournaments[t.ID]; exists {
		return fmt.Errorf("tournament %s already exists", t.ID)
	}
	stored := *t
	stored.Teams = nil
	s.tournaments[t.ID] = stored
	return nil
}

func (s *memoryStore) GetTournament(ctx context.Context, id string) (*models.Tournament, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tournaments[id]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	return &t, nil
}

func (s *memoryStore) GetTournamentWithTeams(ctx context.Context, id string) (*models.Tournament, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	t, ok := s.tournaments[id]
	if !ok {
		s.mu.RUnlock()
		return nil, ErrTournamentNotFound
	}
	teams := s.teamsOfLocked(id)
	s.mu.RUnlock()
	sortTeamsByCreation(teams)
	t.Teams = teams
	return &t, nil
}

func (s *memoryStore) ListTournaments(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	tournaments := make([]models.Tournament, 0, len(s.tournaments))
	for _, t := range s.tournaments {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		tournaments = append(tournaments, t)
	}
	s.mu.RUnlock()

	sort.Slice(tournaments, func(i, j int) bool {
		if tournaments[i].CreatedAt.Equal(tournaments[j].CreatedAt) {
			return tournaments[i].ID < tournaments[j].ID
		}
		return tournaments[i].CreatedAt.After(tournaments[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(tournaments) {
			return []models.Tournament{}, nil
		}
		tournaments = tournaments[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(tournaments) {
		tournaments = tournaments[:filter.Limit]
	}
	return tournaments, nil
}

func (s *memoryStore) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	team, ok := s.teams[id]
	if !ok {
		return nil, ErrTeamNotFound
	}
	return &team, nil
}

func (s *memoryStore) ListTeamsByTournament(ctx context.Context, tournamentID string) ([]models.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	teams := s.teamsOfLocked(tournamentID)
	s.mu.RUnlock()
	sortTeamsByCreation(teams)
	return teams, nil
}

func (s *memoryStore) ListTeamsByCreator(ctx context.Context, creatorID string) ([]models.Team, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	teams := make([]models.Team, 0)
	for _, team := range s.teams {
		if team.CreatedBy == creatorID {
			teams = append(teams, team)
		}
	}
	s.mu.RUnlock()
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].CreatedAt.Equal(teams[j].CreatedAt) {
			return teams[i].ID < teams[j].ID
		}
		return teams[i].CreatedAt.After(teams[j].CreatedAt)
	})
	return teams, nil
}

func (s *memoryStore) ListGroupsByTournament(ctx context.Context, tournamentID string) ([]models.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	teams := s.teamsOfLocked(tournamentID)
	groups := s.groupsOfLocked(tournamentID)
	s.mu.RUnlock()
	return assembleGroups(groups, teams), nil
}

// teamsOfLocked requires s.mu to be held.
func (s *memoryStore) teamsOfLocked(tournamentID string) []models.Team {
	teams := make([]models.Team, 0)
	for _, team := range s.teams {
		if team.TournamentID == tournamentID {
			teams = append(teams, team)
		}
	}
	return teams
}

// groupsOfLocked requires s.mu to be held.
func (s *memoryStore) groupsOfLocked(tournamentID string) []models.Group {
	groups := make([]models.Group, 0)
	for _, g := range s.groups {
		if g.TournamentID == tournamentID {
			groups = append(groups, g)
		}
	}
	return groups
}

func (s *memoryStore) InTournament(ctx context.Context, tournamentID string, fn func(ctx context.Context, tx TournamentTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := s.acquire(tournamentID)
	defer lock.Unlock()

	s.mu.RLock()
	t, ok := s.tournaments[tournamentID]
	if !ok {
		s.mu.RUnlock()
		s.releaseLock(tournamentID, lock)
		return ErrTournamentNotFound
	}
	tx := &memoryTournamentTx{
		tournament: t,
		teams:      make(map[string]models.Team),
		groups:     make(map[string]models.Group),
	}
	for _, team := range s.teamsOfLocked(tournamentID) {
		tx.teams[team.ID] = team
	}
	for _, g := range s.groupsOfLocked(tournamentID) {
		tx.groups[g.ID] = g
	}
	s.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	// A unit of work that outlived its deadline reports failure and publishes nothing.
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, team := range s.teams {
		if team.TournamentID == tournamentID {
			delete(s.teams, id)
		}
	}
	for id, g := range s.groups {
		if g.TournamentID == tournamentID {
			delete(s.groups, id)
		}
	}
	if tx.deleted {
		delete(s.tournaments, tournamentID)
		s.releaseLock(tournamentID, lock)
		return nil
	}
	s.tournaments[tournamentID] = tx.tournament
	for id, team := range tx.teams {
		s.teams[id] = team
	}
	for id, g := range tx.groups {
		s.groups[id] = g
	}
	return nil
}

type memoryTournamentTx struct {
	tournament models.Tournament
	teams      map[string]models.Team
	groups     map[string]models.Group
	deleted    bool
}

func (x *memoryTournamentTx) Tournament() *models.Tournament {
	t := x.tournament
	return &t
}

func (x *memoryTournamentTx) Teams(ctx context.Context) ([]models.Team, error) {
	teams := make([]models.Team, 0, len(x.teams))
	for _, team := range x.teams {
		teams = append(teams, team)
	}
	sortTeamsByCreation(teams)
	return teams, nil
}

func (x *memoryTournamentTx) Groups(ctx context.Context) ([]models.Group, error) {
	groups := make([]models.Group, 0, len(x.groups))
	for _, g := range x.groups {
		groups = append(groups, g)
	}
	teams := make([]models.Team, 0, len(x.teams))
	for _, team := range x.teams {
		teams = append(teams, team)
	}
	return assembleGroups(groups, teams), nil
}

func (x *memoryTournamentTx) UpdateTournament(ctx context.Context, t *models.Tournament) error {
	updated := *t
	updated.ID = x.tournament.ID
	updated.CreatedAt = x.tournament.CreatedAt
	updated.CreatedBy = x.tournament.CreatedBy
	updated.Teams = nil
	x.tournament = updated
	return nil
}

func (x *memoryTournamentTx) DeleteTournament(ctx context.Context) error {
	x.deleted = true
	x.teams = make(map[string]models.Team)
	x.groups = make(map[string]models.Group)
	return nil
}

func (x *memoryTournamentTx) nameTaken(name, exceptID string) bool {
	for id, team := range x.teams {
		if id != exceptID && team.Name == name {
			return true
		}
	}
	return false
}

func (x *memoryTournamentTx) InsertTeam(ctx context.Context, team *models.Team) error {
	if _, exists := x.teams[team.ID]; exists {
		return fmt.Errorf("team %s already exists", team.ID)
	}
	if x.nameTaken(team.Name, "") {
		return ErrTeamNameConflict
	}
	stored := *team
	stored.TournamentID = x.tournament.ID
	x.teams[team.ID] = stored
	return nil
}

func (x *memoryTournamentTx) UpdateTeam(ctx context.Context, team *models.Team) error {
	current, ok := x.teams[team.ID]
	if !ok {
		return ErrTeamNotFound
	}
	if x.nameTaken(team.Name, team.ID) {
		return ErrTeamNameConflict
	}
	current.Name = team.Name
	current.Description = team.Description
	current.GroupID = team.GroupID
	current.GroupName = team.GroupName
	current.GroupSlot = team.GroupSlot
	x.teams[team.ID] = current
	return nil
}

func (x *memoryTournamentTx) DeleteTeam(ctx context.Context, teamID string) error {
	if _, ok := x.teams[teamID]; !ok {
		return ErrTeamNotFound
	}
	delete(x.teams, teamID)
	return nil
}

func (x *memoryTournamentTx) InsertGroup(ctx context.Context, group *models.Group) error {
	if _, exists := x.groups[group.ID]; exists {
		return fmt.Errorf("group %s already exists", group.ID)
	}
	stored := *group
	stored.TournamentID = x.tournament.ID
	stored.Teams = nil
	x.groups[group.ID] = stored
	return nil
}

func (x *memoryTournamentTx) UpdateGroupSize(ctx context.Context, groupID string, size int) error {
	g, ok := x.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	g.Size = size
	x.groups[groupID] = g
	return nil
}

func (x *memoryTournamentTx) DeleteGroups(ctx context.Context) (int, error) {
	deleted := len(x.groups)
	for id, team := range x.teams {
		team.ClearGroup()
		x.teams[id] = team
	}
	x.groups = make(map[string]models.Group)
	return deleted, nil
}

func sortTeamsByCreation(teams []models.Team) {
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].CreatedAt.Equal(teams[j].CreatedAt) {
			return teams[i].ID < teams[j].ID
		}
		return teams[i].CreatedAt.Before(teams[j].CreatedAt)
	})
}

// assembleGroups orders groups by position and attaches members by slot.
func assembleGroups(groups []models.Group, teams []models.Team) []models.Group {
	sort.Slice(groups, func(i, j int) bool { return groups[i].Position < groups[j].Position })
	index := make(map[string]int, len(groups))
	for i := range groups {
		groups[i].Teams = make([]models.Team, 0)
		index[groups[i].ID] = i
	}
	sortTeamsByCreation(teams)
	sort.SliceStable(teams, func(i, j int) bool {
		return slotOf(teams[i]) < slotOf(teams[j])
	})
	for _, team := range teams {
		if !team.Assigned() {
			continue
		}
		if i, ok := index[*team.GroupID]; ok {
			groups[i].Teams = append(groups[i].Teams, team)
		}
	}
	return groups
}

func slotOf(team models.Team) int {
	if team.GroupSlot == nil {
		return 0
	}
	return *team.GroupSlot
}
