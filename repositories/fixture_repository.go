package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/lmslocal/lms-server/models"
)

var ErrFixtureNotFound = errors.New("fixture not found")

type FixtureRepository interface {
	CreateBatch(ctx context.Context, exec SQLExecutor, fixtures []*models.Fixture) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Fixture, error)
	ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]*models.Fixture, error)
	ListByRounds(ctx context.Context, roundIDs []int) ([]*models.Fixture, error)
	UpdateResult(ctx context.Context, exec SQLExecutor, id int, homeScore, awayScore int) error
	DeleteByRound(ctx context.Context, exec SQLExecutor, roundID int) error
}

type postgresFixtureRepository struct {
	db *sql.DB
}

func NewPostgresFixtureRepository(db *sql.DB) FixtureRepository {
	return &postgresFixtureRepository{db: db}
}

func (r *postgresFixtureRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const fixtureSelect = `
	SELECT id, round_id, home_team, away_team, kickoff_time, home_score, away_score
	FROM fixtures`

func (r *postgresFixtureRepository) queryFixtures(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.Fixture, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fixtures: %w", err)
	}
	defer rows.Close()

	fixtures := make([]*models.Fixture, 0)
	for rows.Next() {
		var f models.Fixture
		if err := rows.Scan(&f.ID, &f.RoundID, &f.HomeTeam, &f.AwayTeam, &f.KickoffTime, &f.HomeScore, &f.AwayScore); err != nil {
			return nil, fmt.Errorf("failed to scan fixture row: %w", err)
		}
		fixtures = append(fixtures, &f)
	}
	return fixtures, rows.Err()
}

func (r *postgresFixtureRepository) CreateBatch(ctx context.Context, exec SQLExecutor, fixtures []*models.Fixture) error {
	query := `
		INSERT INTO fixtures (round_id, home_team, away_team, kickoff_time)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	executor := r.getExecutor(exec)
	for _, f := range fixtures {
		if err := executor.QueryRowContext(ctx, query, f.RoundID, f.HomeTeam, f.AwayTeam, f.KickoffTime).Scan(&f.ID); err != nil {
			if _, ok := pqConstraint(err, pqForeignKeyViolation); ok {
				return ErrRoundNotFound
			}
			return fmt.Errorf("failed to create fixture %s v %s: %w", f.HomeTeam, f.AwayTeam, err)
		}
	}
	return nil
}

func (r *postgresFixtureRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Fixture, error) {
	var f models.Fixture
	err := r.getExecutor(exec).QueryRowContext(ctx, fixtureSelect+` WHERE id = $1`, id).
		Scan(&f.ID, &f.RoundID, &f.HomeTeam, &f.AwayTeam, &f.KickoffTime, &f.HomeScore, &f.AwayScore)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFixtureNotFound
		}
		return nil, fmt.Errorf("failed to get fixture %d: %w", id, err)
	}
	return &f, nil
}

func (r *postgresFixtureRepository) ListByRound(ctx context.Context, exec SQLExecutor, roundID int) ([]*models.Fixture, error) {
	return r.queryFixtures(ctx, exec, fixtureSelect+` WHERE round_id = $1 ORDER BY kickoff_time, id`, roundID)
}

func (r *postgresFixtureRepository) ListByRounds(ctx context.Context, roundIDs []int) ([]*models.Fixture, error) {
	if len(roundIDs) == 0 {
		return []*models.Fixture{}, nil
	}
	ids := make([]int64, len(roundIDs))
	for i, id := range roundIDs {
		ids[i] = int64(id)
	}
	return r.queryFixtures(ctx, nil, fixtureSelect+` WHERE round_id = ANY($1) ORDER BY round_id, kickoff_time, id`, pq.Array(ids))
}

func (r *postgresFixtureRepository) UpdateResult(ctx context.Context, exec SQLExecutor, id int, homeScore, awayScore int) error {
	result, err := r.getExecutor(exec).ExecContext(ctx,
		`UPDATE fixtures SET home_score = $1, away_score = $2 WHERE id = $3`, homeScore, awayScore, id)
	if err != nil {
		return fmt.Errorf("failed to update fixture result: %w", err)
	}
	return checkAffectedRows(result, ErrFixtureNotFound)
}

func (r *postgresFixtureRepository) DeleteByRound(ctx context.Context, exec SQLExecutor, roundID int) error {
	if _, err := r.getExecutor(exec).ExecContext(ctx, `DELETE FROM fixtures WHERE round_id = $1`, roundID); err != nil {
		return fmt.Errorf("failed to delete fixtures: %w", err)
	}
	return nil
}
