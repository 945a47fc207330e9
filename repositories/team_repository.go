package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lmslocal/lms-server/models"
)

var ErrTeamListNotFound = errors.New("team list not found")

type TeamRepository interface {
	GetList(ctx context.Context, id int) (*models.TeamList, error)
	ListTeams(ctx context.Context, exec SQLExecutor, teamListID int) ([]*models.Team, error)
	ShortNames(ctx context.Context, exec SQLExecutor, teamListID int) ([]string, error)
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

func (r *postgresTeamRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTeamRepository) GetList(ctx context.Context, id int) (*models.TeamList, error) {
	var tl models.TeamList
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM team_lists WHERE id = $1`, id).Scan(&tl.ID, &tl.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamListNotFound
		}
		return nil, fmt.Errorf("failed to get team list %d: %w", id, err)
	}
	return &tl, nil
}

func (r *postgresTeamRepository) ListTeams(ctx context.Context, exec SQLExecutor, teamListID int) ([]*models.Team, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx,
		`SELECT id, team_list_id, name, short_name FROM teams WHERE team_list_id = $1 ORDER BY name`, teamListID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := make([]*models.Team, 0)
	for rows.Next() {
		var t models.Team
		if err := rows.Scan(&t.ID, &t.TeamListID, &t.Name, &t.ShortName); err != nil {
			return nil, fmt.Errorf("failed to scan team row: %w", err)
		}
		teams = append(teams, &t)
	}
	return teams, rows.Err()
}

// ShortNames returns the pick pool of a team list.
func (r *postgresTeamRepository) ShortNames(ctx context.Context, exec SQLExecutor, teamListID int) ([]string, error) {
	teams, err := r.ListTeams(ctx, exec, teamListID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(teams))
	for i, t := range teams {
		names[i] = t.ShortName
	}
	return names, nil
}
