package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lmslocal/lms-server/models"
)

var (
	ErrCompetitionNotFound        = errors.New("competition not found")
	ErrCompetitionCodeConflict    = errors.New("competition invite code or slug conflict")
	ErrCompetitionTeamListInvalid = errors.New("competition team list does not exist")
)

// CompetitionFilter narrows ListForUser.
type CompetitionFilter struct {
	Status *models.CompetitionStatus
	Limit  uint64
	Offset uint64
}

type CompetitionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, c *models.Competition) error
	GetByID(ctx context.Context, exec SQLExecutor, id int, forUpdate bool) (*models.Competition, error)
	GetByInviteCode(ctx context.Context, code string) (*models.Competition, error)
	ListForUser(ctx context.Context, userID int, filter CompetitionFilter) ([]*models.Competition, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.CompetitionStatus, winnerUserID *int) error
	UpdateLogoKey(ctx context.Context, id int, logoKey *string) error
}

type postgresCompetitionRepository struct {
	db *sql.DB
}

func NewPostgresCompetitionRepository(db *sql.DB) CompetitionRepository {
	return &postgresCompetitionRepository{db: db}
}

func (r *postgresCompetitionRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

var competitionColumns = []string{
	"c.id", "c.name", "c.description", "c.organiser_id", "c.status", "c.lives_per_player",
	"c.invite_code", "c.slug", "c.team_list_id", "c.winner_user_id", "c.logo_key", "c.created_at",
}

const competitionSelect = `
	SELECT c.id, c.name, c.description, c.organiser_id, c.status, c.lives_per_player,
	       c.invite_code, c.slug, c.team_list_id, c.winner_user_id, c.logo_key, c.created_at
	FROM competitions c`

func scanCompetition(row interface{ Scan(...interface{}) error }) (*models.Competition, error) {
	var c models.Competition
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.OrganiserID, &c.Status, &c.LivesPerPlayer,
		&c.InviteCode, &c.Slug, &c.TeamListID, &c.WinnerUserID, &c.LogoKey, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *postgresCompetitionRepository) Create(ctx context.Context, exec SQLExecutor, c *models.Competition) error {
	query := `
		INSERT INTO competitions (name, description, organiser_id, status, lives_per_player, invite_code, slug, team_list_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		c.Name, c.Description, c.OrganiserID, c.Status, c.LivesPerPlayer, c.InviteCode, c.Slug, c.TeamListID,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if _, ok := pqConstraint(err, pqUniqueViolation); ok {
			return ErrCompetitionCodeConflict
		}
		if _, ok := pqConstraint(err, pqForeignKeyViolation); ok {
			return ErrCompetitionTeamListInvalid
		}
		return fmt.Errorf("failed to create competition: %w", err)
	}
	return nil
}

func (r *postgresCompetitionRepository) GetByID(ctx context.Context, exec SQLExecutor, id int, forUpdate bool) (*models.Competition, error) {
	query := competitionSelect + ` WHERE c.id = $1` + lockClause(forUpdate)
	c, err := scanCompetition(r.getExecutor(exec).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompetitionNotFound
		}
		return nil, fmt.Errorf("failed to get competition %d: %w", id, err)
	}
	return c, nil
}

func (r *postgresCompetitionRepository) GetByInviteCode(ctx context.Context, code string) (*models.Competition, error) {
	c, err := scanCompetition(r.db.QueryRowContext(ctx, competitionSelect+` WHERE c.invite_code = upper($1)`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompetitionNotFound
		}
		return nil, fmt.Errorf("failed to get competition by invite code: %w", err)
	}
	return c, nil
}

// ListForUser returns competitions the user organises, manages or plays in.
func (r *postgresCompetitionRepository) ListForUser(ctx context.Context, userID int, filter CompetitionFilter) ([]*models.Competition, error) {
	qb := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select(competitionColumns...).
		From("competitions c").
		Where(sq.Or{
			sq.Eq{"c.organiser_id": userID},
			sq.Expr("EXISTS (SELECT 1 FROM competition_users cu WHERE cu.competition_id = c.id AND cu.user_id = ?)", userID),
			sq.Expr("EXISTS (SELECT 1 FROM players p WHERE p.competition_id = c.id AND p.user_id = ?)", userID),
		}).
		OrderBy("c.created_at DESC", "c.id DESC")

	if filter.Status != nil {
		qb = qb.Where(sq.Eq{"c.status": *filter.Status})
	}
	if filter.Limit > 0 {
		qb = qb.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		qb = qb.Offset(filter.Offset)
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build competitions query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitions: %w", err)
	}
	defer rows.Close()

	competitions := make([]*models.Competition, 0)
	for rows.Next() {
		c, scanErr := scanCompetition(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan competition row: %w", scanErr)
		}
		competitions = append(competitions, c)
	}
	return competitions, rows.Err()
}

func (r *postgresCompetitionRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.CompetitionStatus, winnerUserID *int) error {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`UPDATE competitions SET status = $1, winner_user_id = $2 WHERE id = $3`,
		status, winnerUserID, id)
	if err != nil {
		return fmt.Errorf("failed to update competition status: %w", err)
	}
	return checkAffectedRows(result, ErrCompetitionNotFound)
}

func (r *postgresCompetitionRepository) UpdateLogoKey(ctx context.Context, id int, logoKey *string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE competitions SET logo_key = $1 WHERE id = $2`, logoKey, id)
	if err != nil {
		return fmt.Errorf("failed to update competition logo: %w", err)
	}
	return checkAffectedRows(result, ErrCompetitionNotFound)
}
