package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lmslocal/lms-server/models"
)

var (
	ErrPickNotFound  = errors.New("pick not found")
	ErrPickDuplicate = errors.New("pick already exists for round")
)

type PickRepository interface {
	Create(ctx context.Context, exec SQLExecutor, pick *models.Pick) error
	GetByPlayerRound(ctx context.Context, exec SQLExecutor, playerID, roundID int) (*models.Pick, error)
	ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]*models.Pick, error)
	Update(ctx context.Context, exec SQLExecutor, pick *models.Pick) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
	ClearOutcomes(ctx context.Context, exec SQLExecutor, roundID int) error
	DeleteNoPicks(ctx context.Context, exec SQLExecutor, roundID int) error
	ListUsersWithoutPick(ctx context.Context, roundID int) ([]int, error)
}

type postgresPickRepository struct {
	db *sql.DB
}

func NewPostgresPickRepository(db *sql.DB) PickRepository {
	return &postgresPickRepository{db: db}
}

func (r *postgresPickRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const pickSelect = `
	SELECT pk.id, pk.player_id, pk.round_id, pk.fixture_id, pk.team, pk.outcome, pk.set_by_user_id, pk.created_at
	FROM picks pk`

func scanPick(row interface{ Scan(...interface{}) error }) (*models.Pick, error) {
	var p models.Pick
	var outcome sql.NullString
	err := row.Scan(&p.ID, &p.PlayerID, &p.RoundID, &p.FixtureID, &p.Team, &outcome, &p.SetByUserID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if outcome.Valid {
		o := models.PickOutcome(outcome.String)
		p.Outcome = &o
	}
	return &p, nil
}

func (r *postgresPickRepository) queryPicks(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.Pick, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query picks: %w", err)
	}
	defer rows.Close()

	picks := make([]*models.Pick, 0)
	for rows.Next() {
		p, scanErr := scanPick(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan pick row: %w", scanErr)
		}
		picks = append(picks, p)
	}
	return picks, rows.Err()
}

func (r *postgresPickRepository) Create(ctx context.Context, exec SQLExecutor, pick *models.Pick) error {
	query := `
		INSERT INTO picks (player_id, round_id, fixture_id, team, outcome, set_by_user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		pick.PlayerID, pick.RoundID, pick.FixtureID, pick.Team, pick.Outcome, pick.SetByUserID,
	).Scan(&pick.ID, &pick.CreatedAt)
	if err != nil {
		if constraint, ok := pqConstraint(err, pqUniqueViolation); ok && constraint == "picks_player_id_round_id_key" {
			return ErrPickDuplicate
		}
		return fmt.Errorf("failed to create pick: %w", err)
	}
	return nil
}

func (r *postgresPickRepository) GetByPlayerRound(ctx context.Context, exec SQLExecutor, playerID, roundID int) (*models.Pick, error) {
	p, err := scanPick(r.getExecutor(exec).QueryRowContext(ctx,
		pickSelect+` WHERE pk.player_id = $1 AND pk.round_id = $2`, playerID, roundID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPickNotFound
		}
		return nil, fmt.Errorf("failed to get pick: %w", err)
	}
	return p, nil
}

func (r *postgresPickRepository) ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]*models.Pick, error) {
	return r.queryPicks(ctx, exec, pickSelect+` WHERE pk.round_id = $1 ORDER BY pk.player_id`, roundID)
}

func (r *postgresPickRepository) Update(ctx context.Context, exec SQLExecutor, pick *models.Pick) error {
	result, err := r.getExecutor(exec).ExecContext(ctx, `
		UPDATE picks
		SET fixture_id = $1, team = $2, outcome = $3, set_by_user_id = $4
		WHERE id = $5`,
		pick.FixtureID, pick.Team, pick.Outcome, pick.SetByUserID, pick.ID)
	if err != nil {
		return fmt.Errorf("failed to update pick %d: %w", pick.ID, err)
	}
	return checkAffectedRows(result, ErrPickNotFound)
}

func (r *postgresPickRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	result, err := r.getExecutor(exec).ExecContext(ctx, `DELETE FROM picks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pick %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrPickNotFound)
}

func (r *postgresPickRepository) ClearOutcomes(ctx context.Context, exec SQLExecutor, roundID int) error {
	if _, err := r.getExecutor(exec).ExecContext(ctx, `UPDATE picks SET outcome = NULL WHERE round_id = $1`, roundID); err != nil {
		return fmt.Errorf("failed to clear pick outcomes: %w", err)
	}
	return nil
}

// DeleteNoPicks removes the placeholder rows written for players who did not pick.
func (r *postgresPickRepository) DeleteNoPicks(ctx context.Context, exec SQLExecutor, roundID int) error {
	if _, err := r.getExecutor(exec).ExecContext(ctx, `DELETE FROM picks WHERE round_id = $1 AND team IS NULL`, roundID); err != nil {
		return fmt.Errorf("failed to delete no-pick rows: %w", err)
	}
	return nil
}

// ListUsersWithoutPick returns users with an active player in the round's
// competition and no pick for the round yet.
func (r *postgresPickRepository) ListUsersWithoutPick(ctx context.Context, roundID int) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.user_id
		FROM players p
		JOIN rounds rd ON rd.competition_id = p.competition_id
		WHERE rd.id = $1
		  AND p.status = 'active'
		  AND NOT EXISTS (SELECT 1 FROM picks pk WHERE pk.player_id = p.id AND pk.round_id = rd.id)
		ORDER BY p.user_id`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users without pick: %w", err)
	}
	defer rows.Close()

	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
