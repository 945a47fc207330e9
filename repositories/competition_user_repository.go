package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lmslocal/lms-server/models"
)

var (
	ErrCompetitionUserNotFound = errors.New("competition user not found")
	ErrCompetitionUserInvalid  = errors.New("competition or user does not exist")
)

type CompetitionUserRepository interface {
	Get(ctx context.Context, competitionID, userID int) (*models.CompetitionUser, error)
	Upsert(ctx context.Context, cu *models.CompetitionUser) error
	ListByCompetition(ctx context.Context, competitionID int) ([]*models.CompetitionUser, error)
}

type postgresCompetitionUserRepository struct {
	db *sql.DB
}

func NewPostgresCompetitionUserRepository(db *sql.DB) CompetitionUserRepository {
	return &postgresCompetitionUserRepository{db: db}
}

func (r *postgresCompetitionUserRepository) Get(ctx context.Context, competitionID, userID int) (*models.CompetitionUser, error) {
	query := `
		SELECT competition_id, user_id, manage_results, manage_fixtures, manage_players, manage_promote
		FROM competition_users
		WHERE competition_id = $1 AND user_id = $2`

	var cu models.CompetitionUser
	err := r.db.QueryRowContext(ctx, query, competitionID, userID).Scan(
		&cu.CompetitionID, &cu.UserID, &cu.ManageResults, &cu.ManageFixtures, &cu.ManagePlayers, &cu.ManagePromote)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompetitionUserNotFound
		}
		return nil, fmt.Errorf("failed to get competition user: %w", err)
	}
	return &cu, nil
}

func (r *postgresCompetitionUserRepository) Upsert(ctx context.Context, cu *models.CompetitionUser) error {
	query := `
		INSERT INTO competition_users (competition_id, user_id, manage_results, manage_fixtures, manage_players, manage_promote)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (competition_id, user_id) DO UPDATE
		SET manage_results = EXCLUDED.manage_results,
		    manage_fixtures = EXCLUDED.manage_fixtures,
		    manage_players = EXCLUDED.manage_players,
		    manage_promote = EXCLUDED.manage_promote`

	_, err := r.db.ExecContext(ctx, query,
		cu.CompetitionID, cu.UserID, cu.ManageResults, cu.ManageFixtures, cu.ManagePlayers, cu.ManagePromote)
	if err != nil {
		if _, ok := pqConstraint(err, pqForeignKeyViolation); ok {
			return ErrCompetitionUserInvalid
		}
		return fmt.Errorf("failed to upsert competition user: %w", err)
	}
	return nil
}

func (r *postgresCompetitionUserRepository) ListByCompetition(ctx context.Context, competitionID int) ([]*models.CompetitionUser, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT competition_id, user_id, manage_results, manage_fixtures, manage_players, manage_promote
		FROM competition_users WHERE competition_id = $1 ORDER BY user_id`, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list competition users: %w", err)
	}
	defer rows.Close()

	list := make([]*models.CompetitionUser, 0)
	for rows.Next() {
		var cu models.CompetitionUser
		if err := rows.Scan(&cu.CompetitionID, &cu.UserID, &cu.ManageResults, &cu.ManageFixtures, &cu.ManagePlayers, &cu.ManagePromote); err != nil {
			return nil, fmt.Errorf("failed to scan competition user row: %w", err)
		}
		list = append(list, &cu)
	}
	return list, rows.Err()
}
