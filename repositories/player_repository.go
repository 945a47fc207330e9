package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/lmslocal/lms-server/models"
)

var (
	ErrPlayerNotFound      = errors.New("player not found")
	ErrPlayerAlreadyJoined = errors.New("user already joined competition")
)

type PlayerRepository interface {
	Create(ctx context.Context, exec SQLExecutor, p *models.Player) error
	GetByCompetitionUser(ctx context.Context, exec SQLExecutor, competitionID, userID int, forUpdate bool) (*models.Player, error)
	GetByID(ctx context.Context, exec SQLExecutor, id int, forUpdate bool) (*models.Player, error)
	ListByCompetition(ctx context.Context, exec SQLExecutor, competitionID int, forUpdate bool) ([]*models.Player, error)
	UpdateState(ctx context.Context, exec SQLExecutor, p *models.Player) error
	ResetAll(ctx context.Context, exec SQLExecutor, competitionID, lives int) error
}

type postgresPlayerRepository struct {
	db *sql.DB
}

func NewPostgresPlayerRepository(db *sql.DB) PlayerRepository {
	return &postgresPlayerRepository{db: db}
}

func (r *postgresPlayerRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const playerSelect = `
	SELECT p.id, p.competition_id, p.user_id, p.lives_remaining, p.status, p.used_teams,
	       p.eliminated_round_id, p.joined_at, u.display_name
	FROM players p
	JOIN users u ON u.id = p.user_id`

func scanPlayer(row interface{ Scan(...interface{}) error }) (*models.Player, error) {
	var p models.Player
	var used pq.StringArray
	err := row.Scan(&p.ID, &p.CompetitionID, &p.UserID, &p.LivesRemaining, &p.Status, &used,
		&p.EliminatedRoundID, &p.JoinedAt, &p.DisplayName)
	if err != nil {
		return nil, err
	}
	p.UsedTeams = []string(used)
	if p.UsedTeams == nil {
		p.UsedTeams = []string{}
	}
	return &p, nil
}

func (r *postgresPlayerRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Player) error {
	if p.UsedTeams == nil {
		p.UsedTeams = []string{}
	}
	query := `
		INSERT INTO players (competition_id, user_id, lives_remaining, status, used_teams)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, joined_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		p.CompetitionID, p.UserID, p.LivesRemaining, p.Status, pq.Array(p.UsedTeams),
	).Scan(&p.ID, &p.JoinedAt)
	if err != nil {
		if constraint, ok := pqConstraint(err, pqUniqueViolation); ok && constraint == "players_competition_id_user_id_key" {
			return ErrPlayerAlreadyJoined
		}
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

func (r *postgresPlayerRepository) GetByCompetitionUser(ctx context.Context, exec SQLExecutor, competitionID, userID int, forUpdate bool) (*models.Player, error) {
	query := playerSelect + ` WHERE p.competition_id = $1 AND p.user_id = $2`
	if forUpdate {
		query += ` FOR UPDATE OF p`
	}
	p, err := scanPlayer(r.getExecutor(exec).QueryRowContext(ctx, query, competitionID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return p, nil
}

func (r *postgresPlayerRepository) GetByID(ctx context.Context, exec SQLExecutor, id int, forUpdate bool) (*models.Player, error) {
	query := playerSelect + ` WHERE p.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF p`
	}
	p, err := scanPlayer(r.getExecutor(exec).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to get player %d: %w", id, err)
	}
	return p, nil
}

func (r *postgresPlayerRepository) ListByCompetition(ctx context.Context, exec SQLExecutor, competitionID int, forUpdate bool) ([]*models.Player, error) {
	query := playerSelect + ` WHERE p.competition_id = $1 ORDER BY p.id`
	if forUpdate {
		query += ` FOR UPDATE OF p`
	}
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	players := make([]*models.Player, 0)
	for rows.Next() {
		p, scanErr := scanPlayer(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan player row: %w", scanErr)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (r *postgresPlayerRepository) UpdateState(ctx context.Context, exec SQLExecutor, p *models.Player) error {
	query := `
		UPDATE players
		SET lives_remaining = $1, status = $2, used_teams = $3, eliminated_round_id = $4
		WHERE id = $5`

	result, err := r.getExecutor(exec).ExecContext(ctx, query,
		p.LivesRemaining, p.Status, pq.Array(p.UsedTeams), p.EliminatedRoundID, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update player %d: %w", p.ID, err)
	}
	return checkAffectedRows(result, ErrPlayerNotFound)
}

// ResetAll restores every player of a competition to its starting state.
func (r *postgresPlayerRepository) ResetAll(ctx context.Context, exec SQLExecutor, competitionID, lives int) error {
	_, err := r.getExecutor(exec).ExecContext(ctx, `
		UPDATE players
		SET lives_remaining = $1, status = 'active', used_teams = '{}', eliminated_round_id = NULL
		WHERE competition_id = $2`, lives, competitionID)
	if err != nil {
		return fmt.Errorf("failed to reset players: %w", err)
	}
	return nil
}
