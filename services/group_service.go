package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Dosada05/tournament-groups/draw"
	"github.com/Dosada05/tournament-groups/models"
	"github.com/Dosada05/tournament-groups/repositories"
	"github.com/Dosada05/tournament-groups/storage"
	"github.com/google/uuid"
)

type GroupService interface {
	// AssignTeamsToGroups deals the full roster into NumberOfGroups groups.
	// It succeeds once per tournament until ResetGroups is called.
	AssignTeamsToGroups(ctx context.Context, input AssignGroupsInput, caller models.Principal) (*Assignment, error)
	ListGroupsByTournament(ctx context.Context, tournamentID string) ([]models.Group, error)
	ResetGroups(ctx context.Context, tournamentID string, caller models.Principal) (*ResetResult, error)
}

type AssignGroupsInput struct {
	TournamentID   string `json:"tournament_id"`
	NumberOfGroups int    `json:"number_of_groups"`
}

type Assignment struct {
	TournamentID string         `json:"tournament_id"`
	Generator    string         `json:"generator"`
	Groups       []models.Group `json:"groups"`
	DrawSheetURL string         `json:"draw_sheet_url,omitempty"`
}

type ResetResult struct {
	TournamentID string `json:"tournament_id"`
	Deleted      int    `json:"deleted"`
}

// NothingToReset is true when the tournament had no groups. It is an outcome,
// not a failure.
func (r *ResetResult) NothingToReset() bool {
	return r.Deleted == 0
}

// RandSource returns the random source for one draw.
type RandSource func() *rand.Rand

// NewRandSource seeds a fresh PCG per draw from the runtime's global generator.
func NewRandSource() RandSource {
	return func() *rand.Rand {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
}

type groupService struct {
	runtime
	generator draw.GroupGenerator
	uploader  storage.FileUploader
	rand      RandSource
}

// NewGroupService wires the partitioner. uploader may be nil, in which case
// no draw sheet is published.
func NewGroupService(
	store repositories.Store,
	generator draw.GroupGenerator,
	notifier Notifier,
	uploader storage.FileUploader,
	logger *slog.Logger,
	policy Policy,
	randSource RandSource,
) GroupService {
	if generator == nil {
		generator = draw.NewRandomDealGenerator()
	}
	if randSource == nil {
		randSource = NewRandSource()
	}
	return &groupService{
		runtime:   newRuntime(store, notifier, logger, policy),
		generator: generator,
		uploader:  uploader,
		rand:      randSource,
	}
}

func (s *groupService) AssignTeamsToGroups(ctx context.Context, input AssignGroupsInput, caller models.Principal) (*Assignment, error) {
	if err := requireAdmin(caller, "assign teams to groups"); err != nil {
		return nil, err
	}
	if input.TournamentID == "" {
		return nil, ruleError(ErrInvalidArgument, "tournamentId", "tournament id is required")
	}
	if input.NumberOfGroups < draw.MinGroups {
		return nil, limitedRuleError(ErrInvalidArgument, "numberOfGroups", draw.MinGroups,
			"number of groups must be at least %d, got %d", draw.MinGroups, input.NumberOfGroups)
	}

	var groups []models.Group
	err := s.inTournament(ctx, input.TournamentID, func(ctx context.Context, tx repositories.TournamentTx) error {
		t := tx.Tournament()
		if t.Status.Terminal() {
			return ruleError(ErrInvalidState, "status", "cannot assign groups in a %s tournament", t.Status)
		}
		teams, err := tx.Teams(ctx)
		if err != nil {
			return err
		}
		if len(teams) != t.MaxTeams {
			return limitedRuleError(ErrInvalidState, "teams", t.MaxTeams,
				"roster is not full (%d of %d teams)", len(teams), t.MaxTeams)
		}
		existing, err := tx.Groups(ctx)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return ruleError(ErrInvalidState, "groups", "groups are already assigned; reset them first")
		}
		if input.NumberOfGroups > len(teams) {
			return limitedRuleError(ErrInvalidArgument, "numberOfGroups", len(teams),
				"number of groups cannot exceed the %d registered teams", len(teams))
		}

		dealt, err := s.generator.GenerateGroups(ctx, draw.GenerateGroupsParams{
			TournamentID:   t.ID,
			Teams:          teams,
			NumberOfGroups: input.NumberOfGroups,
			Rand:           s.rand(),
		})
		if err != nil {
			if errors.Is(err, draw.ErrInvalidGroupCount) {
				return &RuleError{Kind: ErrInvalidArgument, Field: "numberOfGroups", Message: err.Error()}
			}
			return err
		}

		createdAt := s.now()
		created := make([]models.Group, 0, len(dealt))
		for _, d := range dealt {
			group := models.Group{
				ID:           uuid.NewString(),
				TournamentID: t.ID,
				Name:         d.Name,
				Position:     d.Position,
				Size:         len(d.Teams),
				CreatedAt:    createdAt,
			}
			if err := tx.InsertGroup(ctx, &group); err != nil {
				return err
			}
			members := make([]models.Team, 0, len(d.Teams))
			for slot, team := range d.Teams {
				groupID, groupName, groupSlot := group.ID, group.Name, slot+1
				team.GroupID = &groupID
				team.GroupName = &groupName
				team.GroupSlot = &groupSlot
				if err := tx.UpdateTeam(ctx, &team); err != nil {
					return err
				}
				members = append(members, team)
			}
			group.Teams = members
			created = append(created, group)
		}
		groups = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	assignment := &Assignment{
		TournamentID: input.TournamentID,
		Generator:    s.generator.GetName(),
		Groups:       groups,
	}
	s.logger.InfoContext(ctx, "teams assigned to groups",
		slog.String("tournament_id", input.TournamentID),
		slog.Int("groups", len(groups)),
		slog.String("generator", assignment.Generator))

	assignment.DrawSheetURL = s.publishDrawSheet(ctx, assignment)
	s.notifier.Publish(input.TournamentID, EventGroupsAssigned, assignment)
	return assignment, nil
}

// publishDrawSheet uploads the committed groups as JSON. Failures only cost
// the URL; the partition is already durable.
func (s *groupService) publishDrawSheet(ctx context.Context, assignment *Assignment) string {
	if s.uploader == nil {
		return ""
	}
	body, err := json.Marshal(struct {
		*Assignment
		PublishedAt time.Time `json:"published_at"`
	}{Assignment: assignment, PublishedAt: s.now()})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode draw sheet",
			slog.String("tournament_id", assignment.TournamentID), slog.Any("error", err))
		return ""
	}

	uploadCtx, cancel := context.WithTimeout(ctx, s.policy.OpTimeout)
	defer cancel()
	key := storage.DrawSheetKey(assignment.TournamentID)
	if _, err := s.uploader.Upload(uploadCtx, key, "application/json", bytes.NewReader(body)); err != nil {
		s.logger.WarnContext(ctx, "failed to publish draw sheet",
			slog.String("tournament_id", assignment.TournamentID), slog.String("key", key), slog.Any("error", err))
		return ""
	}
	return s.uploader.GetPublicURL(key)
}

// ListGroupsByTournament fails with a Conflict when a group's recorded size no
// longer matches its members, so a damaged partition is never served as valid.
func (s *groupService) ListGroupsByTournament(ctx context.Context, tournamentID string) ([]models.Group, error) {
	if _, err := s.store.GetTournament(ctx, tournamentID); err != nil {
		return nil, translateStoreError(err)
	}
	groups, err := s.store.ListGroupsByTournament(ctx, tournamentID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	for _, g := range groups {
		if g.Size != len(g.Teams) {
			s.logger.WarnContext(ctx, "group membership out of sync",
				slog.String("tournament_id", tournamentID),
				slog.String("group_id", g.ID),
				slog.Int("recorded_size", g.Size),
				slog.Int("members", len(g.Teams)))
			return nil, ruleError(ErrConflict, "groups", "%s records %d teams but has %d; reset the groups",
				g.Name, g.Size, len(g.Teams))
		}
	}
	return groups, nil
}

func (s *groupService) ResetGroups(ctx context.Context, tournamentID string, caller models.Principal) (*ResetResult, error) {
	if err := requireAdmin(caller, "reset groups"); err != nil {
		return nil, err
	}

	result := &ResetResult{TournamentID: tournamentID}
	err := s.inTournament(ctx, tournamentID, func(ctx context.Context, tx repositories.TournamentTx) error {
		deleted, err := tx.DeleteGroups(ctx)
		if err != nil {
			return err
		}
		result.Deleted = deleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.NothingToReset() {
		s.logger.InfoContext(ctx, "group reset was a no-op",
			slog.String("tournament_id", tournamentID), slog.String("outcome", ErrNothingToReset.Error()))
		return result, nil
	}
	if s.uploader != nil {
		deleteCtx, cancel := context.WithTimeout(ctx, s.policy.OpTimeout)
		if err := s.uploader.Delete(deleteCtx, storage.DrawSheetKey(tournamentID)); err != nil {
			s.logger.WarnContext(ctx, "failed to remove draw sheet",
				slog.String("tournament_id", tournamentID), slog.Any("error", err))
		}
		cancel()
	}
	s.logger.InfoContext(ctx, "groups reset", slog.String("tournament_id", tournamentID), slog.Int("deleted", result.Deleted))
	s.notifier.Publish(tournamentID, EventGroupsReset, result)
	return result, nil
}
