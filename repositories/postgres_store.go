package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-groups/models"
)

const tournamentColumns = `id, name, description, start_date, end_date, max_teams, status, created_by, created_at, team_count`

const teamColumns = `id, name, description, tournament_id, created_by, group_id, group_name, group_slot, created_at`

const groupColumns = `id, tournament_id, name, position, size, created_at`

type postgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresStore(db *sql.DB, logger *slog.Logger) Store {
	return &postgresStore{db: db, logger: logger}
}

func scanTournament(row rowScanner) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.StartDate, &t.EndDate,
		&t.MaxTeams, &t.Status, &t.CreatedBy, &t.CreatedAt, &t.TeamCount,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func scanTeam(row rowScanner) (*models.Team, error) {
	team := &models.Team{}
	var groupID, groupName sql.NullString
	var groupSlot sql.NullInt64
	err := row.Scan(
		&team.ID, &team.Name, &team.Description, &team.TournamentID, &team.CreatedBy,
		&groupID, &groupName, &groupSlot, &team.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if groupID.Valid {
		team.GroupID = &groupID.String
	}
	if groupName.Valid {
		team.GroupName = &groupName.String
	}
	if groupSlot.Valid {
		slot := int(groupSlot.Int64)
		team.GroupSlot = &slot
	}
	return team, nil
}

func queryTeams(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]models.Team, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams: %w", handlePostgresError(err))
	}
	defer rows.Close()

	teams := make([]models.Team, 0)
	for rows.Next() {
		team, scanErr := scanTeam(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan team row: %w", scanErr)
		}
		teams = append(teams, *team)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating team rows: %w", err)
	}
	return teams, nil
}

// queryGroups loads the groups of a tournament and attaches their members.
func queryGroups(ctx context.Context, exec SQLExecutor, tournamentID string) ([]models.Group, error) {
	rows, err := exec.QueryContext(ctx,
		`SELECT `+groupColumns+` FROM tournament_groups WHERE tournament_id = $1 ORDER BY position ASC`,
		tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", handlePostgresError(err))
	}
	defer rows.Close()

	groups := make([]models.Group, 0)
	index := make(map[string]int)
	for rows.Next() {
		var g models.Group
		if scanErr := rows.Scan(&g.ID, &g.TournamentID, &g.Name, &g.Position, &g.Size, &g.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", scanErr)
		}
		g.Teams = make([]models.Team, 0)
		index[g.ID] = len(groups)
		groups = append(groups, g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating group rows: %w", err)
	}
	if len(groups) == 0 {
		return groups, nil
	}

	members, err := queryTeams(ctx, exec,
		`SELECT `+teamColumns+` FROM teams WHERE tournament_id = $1 AND group_id IS NOT NULL ORDER BY group_slot ASC, created_at ASC`,
		tournamentID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if i, ok := index[*m.GroupID]; ok {
			groups[i].Teams = append(groups[i].Teams, m)
		}
	}
	return groups, nil
}

func (s *postgresStore) CreateTournament(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (` + tournamentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.Name, t.Description, t.StartDate, t.EndDate,
		t.MaxTeams, t.Status, t.CreatedBy, t.CreatedAt, t.TeamCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create tournament: %w", handlePostgresError(err))
	}
	return nil
}

func (s *postgresStore) GetTournament(ctx context.Context, id string) (*models.Tournament, error) {
	t, err := scanTournament(s.db.QueryRowContext(ctx,
		`SELECT `+tournamentColumns+` FROM tournaments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament: %w", err)
	}
	return t, nil
}

// readSnapshot runs fn in a read-only REPEATABLE READ transaction so every
// statement inside it sees the same committed state.
func (s *postgresStore) readSnapshot(ctx context.Context, fn func(exec SQLExecutor) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", handlePostgresError(err))
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.ErrorContext(ctx, "read transaction rollback failed", slog.Any("error", rbErr))
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to finish read transaction: %w", handlePostgresError(err))
	}
	return nil
}

func (s *postgresStore) GetTournamentWithTeams(ctx context.Context, id string) (*models.Tournament, error) {
	var t *models.Tournament
	err := s.readSnapshot(ctx, func(exec SQLExecutor) error {
		var err error
		t, err = scanTournament(exec.QueryRowContext(ctx,
			`SELECT `+tournamentColumns+` FROM tournaments WHERE id = $1`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrTournamentNotFound
			}
			return fmt.Errorf("failed to get tournament: %w", err)
		}
		t.Teams, err = queryTeams(ctx, exec,
			`SELECT `+teamColumns+` FROM teams WHERE tournament_id = $1 ORDER BY created_at ASC, id ASC`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *postgresStore) ListTournaments(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE 1=1`
	args := []interface{}{}
	argID := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}

	query += " ORDER BY created_at DESC, id ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", scanErr)
		}
		tournaments = append(tournaments, *t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tournament rows: %w", err)
	}
	return tournaments, nil
}

func (s *postgresStore) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	team, err := scanTeam(s.db.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return team, nil
}

func (s *postgresStore) ListTeamsByTournament(ctx context.Context, tournamentID string) ([]models.Team, error) {
	return queryTeams(ctx, s.db,
		`SELECT `+teamColumns+` FROM teams WHERE tournament_id = $1 ORDER BY created_at ASC, id ASC`, tournamentID)
}

func (s *postgresStore) ListTeamsByCreator(ctx context.Context, creatorID string) ([]models.Team, error) {
	return queryTeams(ctx, s.db,
		`SELECT `+teamColumns+` FROM teams WHERE created_by = $1 ORDER BY created_at DESC, id ASC`, creatorID)
}

func (s *postgresStore) ListGroupsByTournament(ctx context.Context, tournamentID string) ([]models.Group, error) {
	var groups []models.Group
	err := s.readSnapshot(ctx, func(exec SQLExecutor) error {
		var err error
		groups, err = queryGroups(ctx, exec, tournamentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// InTournament locks the tournament row with SELECT ... FOR UPDATE, so every
// unit of work on the same tournament is serialized while different
// tournaments never wait on each other.
func (s *postgresStore) InTournament(ctx context.Context, tournamentID string, fn func(ctx context.Context, tx TournamentTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", handlePostgresError(err))
	}
	committed := false
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.ErrorContext(ctx, "rollback failed",
				slog.String("tournament_id", tournamentID), slog.Any("error", rbErr))
		}
	}()

	t, err := scanTournament(tx.QueryRowContext(ctx,
		`SELECT `+tournamentColumns+` FROM tournaments WHERE id = $1 FOR UPDATE`, tournamentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTournamentNotFound
		}
		return fmt.Errorf("failed to lock tournament %s: %w", tournamentID, handlePostgresError(err))
	}

	if err = fn(ctx, &postgresTournamentTx{exec: tx, tournament: t}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", handlePostgresError(err))
	}
	committed = true
	return nil
}

type postgresTournamentTx struct {
	exec       SQLExecutor
	tournament *models.Tournament
}

func (x *postgresTournamentTx) Tournament() *models.Tournament {
	t := *x.tournament
	return &t
}

func (x *postgresTournamentTx) Teams(ctx context.Context) ([]models.Team, error) {
	return queryTeams(ctx, x.exec,
		`SELECT `+teamColumns+` FROM teams WHERE tournament_id = $1 ORDER BY created_at ASC, id ASC`, x.tournament.ID)
}

func (x *postgresTournamentTx) Groups(ctx context.Context) ([]models.Group, error) {
	return queryGroups(ctx, x.exec, x.tournament.ID)
}

func (x *postgresTournamentTx) UpdateTournament(ctx context.Context, t *models.Tournament) error {
	query := `
		UPDATE tournaments SET
			name = $1,
			description = $2,
			start_date = $3,
			end_date = $4,
			max_teams = $5,
			status = $6,
			team_count = $7
		WHERE id = $8`
	result, err := x.exec.ExecContext(ctx, query,
		t.Name, t.Description, t.StartDate, t.EndDate, t.MaxTeams, t.Status, t.TeamCount, x.tournament.ID)
	if err != nil {
		return fmt.Errorf("failed to update tournament: %w", handlePostgresError(err))
	}
	if err := checkAffectedRows(result, ErrTournamentNotFound); err != nil {
		return err
	}
	updated := *t
	updated.ID = x.tournament.ID
	x.tournament = &updated
	return nil
}

// DeleteTournament relies on ON DELETE CASCADE for teams and groups.
func (x *postgresTournamentTx) DeleteTournament(ctx context.Context) error {
	result, err := x.exec.ExecContext(ctx, `DELETE FROM tournaments WHERE id = $1`, x.tournament.ID)
	if err != nil {
		return fmt.Errorf("failed to delete tournament: %w", handlePostgresError(err))
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (x *postgresTournamentTx) InsertTeam(ctx context.Context, team *models.Team) error {
	query := `INSERT INTO teams (` + teamColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := x.exec.ExecContext(ctx, query,
		team.ID, team.Name, team.Description, x.tournament.ID, team.CreatedBy,
		team.GroupID, team.GroupName, team.GroupSlot, team.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert team: %w", handlePostgresError(err))
	}
	return nil
}

func (x *postgresTournamentTx) UpdateTeam(ctx context.Context, team *models.Team) error {
	query := `
		UPDATE teams SET
			name = $1,
			description = $2,
			group_id = $3,
			group_name = $4,
			group_slot = $5
		WHERE id = $6 AND tournament_id = $7`
	result, err := x.exec.ExecContext(ctx, query,
		team.Name, team.Description, team.GroupID, team.GroupName, team.GroupSlot, team.ID, x.tournament.ID)
	if err != nil {
		return fmt.Errorf("failed to update team: %w", handlePostgresError(err))
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (x *postgresTournamentTx) DeleteTeam(ctx context.Context, teamID string) error {
	result, err := x.exec.ExecContext(ctx,
		`DELETE FROM teams WHERE id = $1 AND tournament_id = $2`, teamID, x.tournament.ID)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", handlePostgresError(err))
	}
	return checkAffectedRows(result, ErrTeamNotFound)
}

func (x *postgresTournamentTx) InsertGroup(ctx context.Context, group *models.Group) error {
	query := `INSERT INTO tournament_groups (` + groupColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := x.exec.ExecContext(ctx, query,
		group.ID, x.tournament.ID, group.Name, group.Position, group.Size, group.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", handlePostgresError(err))
	}
	return nil
}

func (x *postgresTournamentTx) UpdateGroupSize(ctx context.Context, groupID string, size int) error {
	result, err := x.exec.ExecContext(ctx,
		`UPDATE tournament_groups SET size = $1 WHERE id = $2 AND tournament_id = $3`, size, groupID, x.tournament.ID)
	if err != nil {
		return fmt.Errorf("failed to update group size: %w", handlePostgresError(err))
	}
	return checkAffectedRows(result, ErrGroupNotFound)
}

func (x *postgresTournamentTx) DeleteGroups(ctx context.Context) (int, error) {
	_, err := x.exec.ExecContext(ctx,
		`UPDATE teams SET group_id = NULL, group_name = NULL, group_slot = NULL WHERE tournament_id = $1`, x.tournament.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear group assignments: %w", handlePostgresError(err))
	}
	result, err := x.exec.ExecContext(ctx, `DELETE FROM tournament_groups WHERE tournament_id = $1`, x.tournament.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete groups: %w", handlePostgresError(err))
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return int(deleted), nil
}
