package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dosada05/tournament-groups/draw"
	"github.com/Dosada05/tournament-groups/models"
	"github.com/Dosada05/tournament-groups/repositories"
	"github.com/Dosada05/tournament-groups/storage"
	"github.com/stretchr/testify/require"
)

var (
	admin = models.Principal{ID: "admin-1", Role: models.RoleAdmin}
	alice = models.Principal{ID: "user-alice", Role: models.RoleUser}
	bob   = models.Principal{ID: "user-bob", Role: models.RoleUser}
)

type recordedEvent struct {
	TournamentID string
	Type         string
	Payload      interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Publish(tournamentID, eventType string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{TournamentID: tournamentID, Type: eventType, Payload: payload})
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

// logBuffer captures JSON log lines so tests can assert on warnings.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	store       repositories.Store
	notifier    *recordingNotifier
	logs        *logBuffer
	tournaments TournamentService
	teams       TeamService
	groups      GroupService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, repositories.NewMemoryStore(), nil, DefaultPolicy())
}

func newFixtureWith(t *testing.T, store repositories.Store, uploader storage.FileUploader, policy Policy) *fixture {
	t.Helper()
	logs := &logBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	notifier := &recordingNotifier{}
	var seed atomic.Uint64
	randSource := func() *rand.Rand {
		return rand.New(rand.NewPCG(42, seed.Add(1)))
	}
	clock := &tickClock{t: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}

	tournaments := NewTournamentService(store, notifier, logger, policy)
	tournaments.(*tournamentService).now = clock.Now
	teams := NewTeamService(store, notifier, logger, policy)
	teams.(*teamService).now = clock.Now
	groups := NewGroupService(store, draw.NewRandomDealGenerator(), notifier, uploader, logger, policy, randSource)
	groups.(*groupService).now = clock.Now

	return &fixture{
		store:       store,
		notifier:    notifier,
		logs:        logs,
		tournaments: tournaments,
		teams:       teams,
		groups:      groups,
	}
}

// tickClock advances a millisecond per reading so creation order is total.
type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func tournamentInput(maxTeams int) TournamentInput {
	start := time.Date(2026, 11, 1, 10, 0, 0, 0, time.UTC)
	return TournamentInput{
		Name:      "Autumn Cup",
		StartDate: start,
		EndDate:   start.Add(72 * time.Hour),
		MaxTeams:  maxTeams,
	}
}

func (f *fixture) createTournament(t *testing.T, maxTeams int) *models.Tournament {
	t.Helper()
	tournament, err := f.tournaments.CreateTournament(context.Background(), tournamentInput(maxTeams), admin)
	require.NoError(t, err)
	return tournament
}

func (f *fixture) admit(t *testing.T, tournamentID string, count int) []*models.Team {
	t.Helper()
	teams := make([]*models.Team, 0, count)
	for i := 0; i < count; i++ {
		team, err := f.teams.CreateTeam(context.Background(), CreateTeamInput{
			TournamentID: tournamentID,
			Name:         fmt.Sprintf("Team %02d", i+1),
		}, alice)
		require.NoError(t, err)
		teams = append(teams, team)
	}
	return teams
}

// fullTournament returns a tournament whose roster is closed.
func (f *fixture) fullTournament(t *testing.T, maxTeams int) *models.Tournament {
	t.Helper()
	tournament := f.createTournament(t, maxTeams)
	f.admit(t, tournament.ID, maxTeams)
	return tournament
}

// flakyStore fails the first failures units of work with ErrConflict.
type flakyStore struct {
	repositories.Store
	failures int32
	calls    atomic.Int32
}

func (s *flakyStore) InTournament(ctx context.Context, id string, fn func(ctx context.Context, tx repositories.TournamentTx) error) error {
	if s.calls.Add(1) <= s.failures {
		return fmt.Errorf("could not serialize access: %w", repositories.ErrConflict)
	}
	return s.Store.InTournament(ctx, id, fn)
}

type fakeUploader struct {
	mu       sync.Mutex
	objects  map[string][]byte
	uploadFn func(key string) error
	deleted  []string
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: make(map[string][]byte)}
}

func (u *fakeUploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	if u.uploadFn != nil {
		if err := u.uploadFn(key); err != nil {
			return nil, err
		}
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.objects[key] = body
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *fakeUploader) Delete(ctx context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.objects, key)
	u.deleted = append(u.deleted, key)
	return nil
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://cdn.example.test/" + key
}
