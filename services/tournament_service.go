package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-groups/models"
	"github.com/Dosada05/tournament-groups/repositories"
	"github.com/google/uuid"
)

type TournamentService interface {
	CreateTournament(ctx context.Context, input TournamentInput, caller models.Principal) (*models.Tournament, error)
	GetTournament(ctx context.Context, id string) (*models.Tournament, error)
	ListTournaments(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	UpdateTournament(ctx context.Context, id string, input TournamentInput, caller models.Principal) (*models.Tournament, error)
	// UpdateTournamentStatus applies one lifecycle edge.
	UpdateTournamentStatus(ctx context.Context, id string, target models.TournamentStatus, caller models.Principal) (*models.Tournament, error)
	DeleteTournament(ctx context.Context, id string, caller models.Principal) error
}

type TournamentInput struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	MaxTeams    int       `json:"max_teams"`
}

type ListTournamentsFilter struct {
	Status *models.TournamentStatus
	Limit  int
	Offset int
}

type StatusChange struct {
	TournamentID string                  `json:"tournament_id"`
	From         models.TournamentStatus `json:"from"`
	To           models.TournamentStatus `json:"to"`
}

type tournamentService struct {
	runtime
}

func NewTournamentService(store repositories.Store, notifier Notifier, logger *slog.Logger, policy Policy) TournamentService {
	return &tournamentService{runtime: newRuntime(store, notifier, logger, policy)}
}

func validateTournamentInput(input *TournamentInput) error {
	input.Name = normalizeName(input.Name)
	if input.Name == "" {
		return ruleError(ErrInvalidArgument, "name", "tournament name is required")
	}
	if err := validateTournamentDates(input.StartDate, input.EndDate); err != nil {
		return err
	}
	if input.MaxTeams == 0 {
		input.MaxTeams = models.DefaultMaxTeams
	}
	if input.MaxTeams < 2 {
		return limitedRuleError(ErrInvalidArgument, "maxTeams", 2, "max teams must be at least 2, got %d", input.MaxTeams)
	}
	return nil
}

func (s *tournamentService) CreateTournament(ctx context.Context, input TournamentInput, caller models.Principal) (*models.Tournament, error) {
	if err := requireAdmin(caller, "create tournaments"); err != nil {
		return nil, err
	}
	if err := validateTournamentInput(&input); err != nil {
		return nil, err
	}

	t := &models.Tournament{
		ID:          uuid.NewString(),
		Name:        input.Name,
		Description: input.Description,
		StartDate:   input.StartDate.UTC(),
		EndDate:     input.EndDate.UTC(),
		MaxTeams:    input.MaxTeams,
		Status:      models.StatusUpcoming,
		CreatedBy:   caller.ID,
		CreatedAt:   s.now(),
	}

	opCtx, cancel := context.WithTimeout(ctx, s.policy.OpTimeout)
	defer cancel()
	if err := s.store.CreateTournament(opCtx, t); err != nil {
		return nil, translateStoreError(err)
	}

	s.logger.InfoContext(ctx, "tournament created",
		slog.String("tournament_id", t.ID), slog.Int("max_teams", t.MaxTeams), slog.String("created_by", caller.ID))
	return t, nil
}

func (s *tournamentService) GetTournament(ctx context.Context, id string) (*models.Tournament, error) {
	t, err := s.store.GetTournamentWithTeams(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}
	return t, nil
}

func (s *tournamentService) ListTournaments(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, ruleError(ErrInvalidArgument, "status", "unknown tournament status %q", *filter.Status)
	}
	tournaments, err := s.store.ListTournaments(ctx, repositories.ListTournamentsFilter{
		Status: filter.Status,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
	if err != nil {
		return nil, translateStoreError(err)
	}
	return tournaments, nil
}

func (s *tournamentService) UpdateTournament(ctx context.Context, id string, input TournamentInput, caller models.Principal) (*models.Tournament, error) {
	if err := requireAdmin(caller, "update tournaments"); err != nil {
		return nil, err
	}
	if err := validateTournamentInput(&input); err != nil {
		return nil, err
	}

	var updated *models.Tournament
	err := s.inTournament(ctx, id, func(ctx context.Context, tx repositories.TournamentTx) error {
		t := tx.Tournament()
		if input.MaxTeams != t.MaxTeams {
			if input.MaxTeams < t.TeamCount {
				return limitedRuleError(ErrInvalidArgument, "maxTeams", t.TeamCount,
					"max teams cannot be lower than the %d teams already registered", t.TeamCount)
			}
			groups, err := tx.Groups(ctx)
			if err != nil {
				return err
			}
			if len(groups) > 0 {
				return ruleError(ErrInvalidState, "maxTeams", "max teams cannot change while groups are assigned")
			}
		}

		t.Name = input.Name
		t.Description = input.Description
		t.StartDate = input.StartDate.UTC()
		t.EndDate = input.EndDate.UTC()
		t.MaxTeams = input.MaxTeams
		if err := tx.UpdateTournament(ctx, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(id, EventTournamentUpdated, updated)
	return updated, nil
}

func (s *tournamentService) UpdateTournamentStatus(ctx context.Context, id string, target models.TournamentStatus, caller models.Principal) (*models.Tournament, error) {
	if err := requireAdmin(caller, "update tournament status"); err != nil {
		return nil, err
	}
	if !target.Valid() {
		return nil, ruleError(ErrInvalidArgument, "status", "unknown tournament status %q", target)
	}

	var (
		updated *models.Tournament
		change  StatusChange
	)
	err := s.inTournament(ctx, id, func(ctx context.Context, tx repositories.TournamentTx) error {
		t := tx.Tournament()
		if !isValidStatusTransition(t.Status, target) {
			return ruleError(ErrInvalidTransition, "status", "cannot transition tournament from %s to %s", t.Status, target)
		}
		change = StatusChange{TournamentID: id, From: t.Status, To: target}
		t.Status = target
		if err := tx.UpdateTournament(ctx, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tournament status changed",
		slog.String("tournament_id", id), slog.String("from", string(change.From)), slog.String("to", string(change.To)))
	s.notifier.Publish(id, EventTournamentStatusChanged, change)
	return updated, nil
}

func (s *tournamentService) DeleteTournament(ctx context.Context, id string, caller models.Principal) error {
	if err := requireAdmin(caller, "delete tournaments"); err != nil {
		return err
	}

	err := s.inTournament(ctx, id, func(ctx context.Context, tx repositories.TournamentTx) error {
		return tx.DeleteTournament(ctx)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "tournament deleted", slog.String("tournament_id", id))
	s.notifier.Publish(id, EventTournamentDeleted, map[string]string{"tournament_id": id})
	return nil
}
