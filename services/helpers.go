package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/tournament-groups/models"
	"github.com/Dosada05/tournament-groups/repositories"
	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultOpTimeout       = 5 * time.Second
	DefaultConflictRetries = 3
)

// Policy bounds every mutating unit of work.
type Policy struct {
	// OpTimeout caps one attempt against the store; on expiry nothing is committed.
	OpTimeout time.Duration
	// ConflictRetries is how many times a unit of work that lost a race with
	// another writer is re-run before ErrConflict is surfaced.
	ConflictRetries int
}

func DefaultPolicy() Policy {
	return Policy{OpTimeout: DefaultOpTimeout, ConflictRetries: DefaultConflictRetries}
}

// Notifier receives an event after a unit of work has committed.
type Notifier interface {
	Publish(tournamentID, eventType string, payload interface{})
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, string, interface{}) {}

const (
	EventTeamAdmitted            = "TEAM_ADMITTED"
	EventTeamRemoved             = "TEAM_REMOVED"
	EventTeamUpdated             = "TEAM_UPDATED"
	EventTournamentStatusChanged = "TOURNAMENT_STATUS_CHANGED"
	EventTournamentUpdated       = "TOURNAMENT_UPDATED"
	EventTournamentDeleted       = "TOURNAMENT_DELETED"
	EventGroupsAssigned          = "GROUPS_ASSIGNED"
	EventGroupsReset             = "GROUPS_RESET"
)

// runtime is what every service needs to run a unit of work.
type runtime struct {
	store    repositories.Store
	notifier Notifier
	logger   *slog.Logger
	policy   Policy
	now      func() time.Time
}

func newRuntime(store repositories.Store, notifier Notifier, logger *slog.Logger, policy Policy) runtime {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if policy.OpTimeout <= 0 {
		policy.OpTimeout = DefaultOpTimeout
	}
	if policy.ConflictRetries < 0 {
		policy.ConflictRetries = 0
	}
	return runtime{
		store:    store,
		notifier: notifier,
		logger:   logger,
		policy:   policy,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// inTournament runs fn as one bounded unit of work on the tournament and
// re-runs it when the store reports a lost race. Retries are immediate: the
// store already queues writers on the tournament lock.
func (r runtime) inTournament(ctx context.Context, tournamentID string, fn func(ctx context.Context, tx repositories.TournamentTx) error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(r.policy.ConflictRetries)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		opCtx, cancel := context.WithTimeout(ctx, r.policy.OpTimeout)
		defer cancel()

		err := r.store.InTournament(opCtx, tournamentID, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, repositories.ErrConflict) {
			r.logger.WarnContext(ctx, "unit of work conflicted, retrying",
				slog.String("tournament_id", tournamentID), slog.Int("attempt", attempt), slog.Any("error", err))
			return err
		}
		return backoff.Permanent(err)
	}, b)

	return translateStoreError(err)
}

// translateStoreError maps repository sentinels onto service error kinds.
func translateStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrConflict):
		return &RuleError{Kind: ErrConflict, Message: fmt.Sprintf("concurrent modification, retries exhausted: %v", err)}
	case errors.Is(err, repositories.ErrTournamentNotFound):
		return ruleError(ErrNotFound, "tournamentId", "tournament not found")
	case errors.Is(err, repositories.ErrTeamNotFound):
		return ruleError(ErrNotFound, "teamId", "team not found")
	case errors.Is(err, repositories.ErrGroupNotFound):
		return ruleError(ErrNotFound, "groupId", "group not found")
	case errors.Is(err, repositories.ErrTeamNameConflict):
		return &RuleError{Kind: ErrTeamNameConflict, Field: "name", Message: ErrTeamNameConflict.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("store operation timed out: %w", err)
	}
	return err
}

var allowedTransitions = map[models.TournamentStatus][]models.TournamentStatus{
	models.StatusUpcoming:  {models.StatusOngoing, models.StatusCancelled},
	models.StatusOngoing:   {models.StatusCompleted, models.StatusCancelled},
	models.StatusCompleted: {},
	models.StatusCancelled: {},
}

// isValidStatusTransition rejects self-transitions and anything leaving a terminal state.
func isValidStatusTransition(current, next models.TournamentStatus) bool {
	for _, allowedNextStatus := range allowedTransitions[current] {
		if next == allowedNextStatus {
			return true
		}
	}
	return false
}

func validateTournamentDates(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return ruleError(ErrInvalidArgument, "startDate", "tournament start and end dates are required")
	}
	if !end.After(start) {
		return ruleError(ErrInvalidArgument, "endDate", "tournament end date (%s) must be after start date (%s)",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

func requireAdmin(caller models.Principal, action string) error {
	if !caller.IsAdmin() {
		return ruleError(ErrForbiddenOperation, "", "only administrators can %s", action)
	}
	return nil
}

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}
