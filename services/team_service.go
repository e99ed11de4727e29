package services

import (
	"context"
	"log/slog"

	"github.com/Dosada05/tournament-groups/models"
	"github.com/Dosada05/tournament-groups/repositories"
	"github.com/google/uuid"
)

// TeamService is the capacity admission controller: every team insert and
// delete runs in the tournament's unit of work together with the team count.
type TeamService interface {
	CreateTeam(ctx context.Context, input CreateTeamInput, caller models.Principal) (*models.Team, error)
	GetTeam(ctx context.Context, id string) (*models.Team, error)
	ListTeamsByTournament(ctx context.Context, tournamentID string) ([]models.Team, error)
	ListTeamsByCreator(ctx context.Context, caller models.Principal) ([]models.Team, error)
	UpdateTeam(ctx context.Context, id string, input UpdateTeamInput, caller models.Principal) (*models.Team, error)
	DeleteTeam(ctx context.Context, id string, caller models.Principal) (*RemovedTeam, error)
}

type CreateTeamInput struct {
	TournamentID string `json:"tournament_id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
}

type UpdateTeamInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RemovedTeam reports what a deletion touched. GroupID is set when the team
// had already been dealt into a group, which then shrank by one.
type RemovedTeam struct {
	TeamID       string  `json:"team_id"`
	TournamentID string  `json:"tournament_id"`
	GroupID      *string `json:"group_id,omitempty"`
	GroupShrunk  bool    `json:"group_shrunk"`
	TeamCount    int     `json:"team_count"`
}

type teamService struct {
	runtime
}

func NewTeamService(store repositories.Store, notifier Notifier, logger *slog.Logger, policy Policy) TeamService {
	return &teamService{runtime: newRuntime(store, notifier, logger, policy)}
}

func (s *teamService) CreateTeam(ctx context.Context, input CreateTeamInput, caller models.Principal) (*models.Team, error) {
	if caller.IsAdmin() {
		return nil, ruleError(ErrForbiddenOperation, "", "administrators cannot create teams; only regular users can register teams")
	}
	input.Name = normalizeName(input.Name)
	if input.Name == "" {
		return nil, ruleError(ErrInvalidArgument, "name", "team name is required")
	}
	if input.TournamentID == "" {
		return nil, ruleError(ErrInvalidArgument, "tournamentId", "tournament id is required")
	}

	var (
		team      *models.Team
		teamCount int
	)
	err := s.inTournament(ctx, input.TournamentID, func(ctx context.Context, tx repositories.TournamentTx) error {
		t := tx.Tournament()
		if t.Status != models.StatusUpcoming {
			return ruleError(ErrInvalidState, "status", "tournament registration is closed (status %s)", t.Status)
		}

		teams, err := tx.Teams(ctx)
		if err != nil {
			return err
		}
		// The count is derived from the rows read under the lock, so a drifted
		// counter can never admit past the limit.
		count := len(teams)
		if count >= t.MaxTeams {
			return limitedRuleError(ErrCapacityExceeded, "maxTeams", t.MaxTeams,
				"tournament is full (%d of %d teams)", count, t.MaxTeams)
		}
		for _, existing := range teams {
			if existing.Name == input.Name {
				return &RuleError{Kind: ErrTeamNameConflict, Field: "name", Message: ErrTeamNameConflict.Error()}
			}
		}
		groups, err := tx.Groups(ctx)
		if err != nil {
			return err
		}
		if len(groups) > 0 {
			return ruleError(ErrInvalidState, "groups", "groups are already assigned; reset them before admitting teams")
		}

		candidate := &models.Team{
			ID:           uuid.NewString(),
			Name:         input.Name,
			Description:  input.Description,
			TournamentID: t.ID,
			CreatedBy:    caller.ID,
			CreatedAt:    s.now(),
		}
		if err := tx.InsertTeam(ctx, candidate); err != nil {
			return err
		}
		t.TeamCount = count + 1
		if err := tx.UpdateTournament(ctx, t); err != nil {
			return err
		}
		team = candidate
		teamCount = t.TeamCount
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "team admitted",
		slog.String("tournament_id", team.TournamentID), slog.String("team_id", team.ID), slog.Int("team_count", teamCount))
	s.notifier.Publish(team.TournamentID, EventTeamAdmitted, map[string]interface{}{
		"team":       team,
		"team_count": teamCount,
	})
	return team, nil
}

func (s *teamService) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	team, err := s.store.GetTeam(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return team, nil
}

func (s *teamService) ListTeamsByTournament(ctx context.Context, tournamentID string) ([]models.Team, error) {
	if _, err := s.store.GetTournament(ctx, tournamentID); err != nil {
		return nil, translateStoreError(err)
	}
	teams, err := s.store.ListTeamsByTournament(ctx, tournamentID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return teams, nil
}

func (s *teamService) ListTeamsByCreator(ctx context.Context, caller models.Principal) ([]models.Team, error) {
	teams, err := s.store.ListTeamsByCreator(ctx, caller.ID)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return teams, nil
}

func (s *teamService) UpdateTeam(ctx context.Context, id string, input UpdateTeamInput, caller models.Principal) (*models.Team, error) {
	input.Name = normalizeName(input.Name)
	if input.Name == "" {
		return nil, ruleError(ErrInvalidArgument, "name", "team name is required")
	}

	current, err := s.store.GetTeam(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}
	if current.CreatedBy != caller.ID {
		return nil, ruleError(ErrForbiddenOperation, "", "you can only update teams that you created")
	}

	var updated *models.Team
	err = s.inTournament(ctx, current.TournamentID, func(ctx context.Context, tx repositories.TournamentTx) error {
		teams, err := tx.Teams(ctx)
		if err != nil {
			return err
		}
		var target *models.Team
		for i := range teams {
			if teams[i].ID == id {
				target = &teams[i]
			} else if teams[i].Name == input.Name {
				return &RuleError{Kind: ErrTeamNameConflict, Field: "name", Message: ErrTeamNameConflict.Error()}
			}
		}
		if target == nil {
			return repositories.ErrTeamNotFound
		}
		target.Name = input.Name
		target.Description = input.Description
		if err := tx.UpdateTeam(ctx, target); err != nil {
			return err
		}
		updated = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(updated.TournamentID, EventTeamUpdated, updated)
	return updated, nil
}

// DeleteTeam removes the team, its slot in the roster and, when groups exist,
// its membership in its group, all in one unit of work. The group keeps its
// remaining members; the shrink is logged as an integrity warning.
func (s *teamService) DeleteTeam(ctx context.Context, id string, caller models.Principal) (*RemovedTeam, error) {
	current, err := s.store.GetTeam(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}
	if current.CreatedBy != caller.ID && !caller.IsAdmin() {
		return nil, ruleError(ErrForbiddenOperation, "", "you can only delete teams that you created")
	}

	var removed *RemovedTeam
	err = s.inTournament(ctx, current.TournamentID, func(ctx context.Context, tx repositories.TournamentTx) error {
		teams, err := tx.Teams(ctx)
		if err != nil {
			return err
		}
		var target *models.Team
		for i := range teams {
			if teams[i].ID == id {
				target = &teams[i]
				break
			}
		}
		if target == nil {
			return repositories.ErrTeamNotFound
		}

		result := &RemovedTeam{TeamID: id, TournamentID: current.TournamentID}
		if target.Assigned() {
			groups, err := tx.Groups(ctx)
			if err != nil {
				return err
			}
			for _, g := range groups {
				if g.ID == *target.GroupID {
					if err := tx.UpdateGroupSize(ctx, g.ID, g.Size-1); err != nil {
						return err
					}
					groupID := g.ID
					result.GroupID = &groupID
					result.GroupShrunk = true
					break
				}
			}
		}

		if err := tx.DeleteTeam(ctx, id); err != nil {
			return err
		}
		t := tx.Tournament()
		t.TeamCount = len(teams) - 1
		if err := tx.UpdateTournament(ctx, t); err != nil {
			return err
		}
		result.TeamCount = t.TeamCount
		removed = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	if removed.GroupShrunk {
		s.logger.WarnContext(ctx, "team removed from a partitioned tournament; its group shrank",
			slog.String("tournament_id", removed.TournamentID),
			slog.String("team_id", removed.TeamID),
			slog.String("group_id", *removed.GroupID))
	} else {
		s.logger.InfoContext(ctx, "team removed",
			slog.String("tournament_id", removed.TournamentID), slog.String("team_id", removed.TeamID))
	}
	s.notifier.Publish(removed.TournamentID, EventTeamRemoved, removed)
	return removed, nil
}
