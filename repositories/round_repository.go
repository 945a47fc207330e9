package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lmslocal/lms-server/models"
)

var (
	ErrRoundNotFound       = errors.New("round not found")
	ErrRoundNumberConflict = errors.New("round number already exists in competition")
)

type RoundRepository interface {
	Create(ctx context.Context, exec SQLExecutor, round *models.Round) error
	GetByID(ctx context.Context, exec SQLExecutor, id int, forUpdate bool) (*models.Round, error)
	Latest(ctx context.Context, exec SQLExecutor, competitionID int) (*models.Round, error)
	ListByCompetition(ctx context.Context, competitionID int) ([]*models.Round, error)
	SetProcessed(ctx context.Context, exec SQLExecutor, id int, processedAt *time.Time) error
	ListNeedingReminder(ctx context.Context, from, to time.Time) ([]*models.Round, error)
	MarkReminderSent(ctx context.Context, id int, at time.Time) error
	DeleteByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) error
}

type postgresRoundRepository struct {
	db *sql.DB
}

func NewPostgresRoundRepository(db *sql.DB) RoundRepository {
	return &postgresRoundRepository{db: db}
}

func (r *postgresRoundRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const roundSelect = `
	SELECT id, competition_id, round_number, lock_time, processed_at, reminder_sent_at, created_at
	FROM rounds`

func scanRound(row interface{ Scan(...interface{}) error }) (*models.Round, error) {
	var rd models.Round
	err := row.Scan(&rd.ID, &rd.CompetitionID, &rd.RoundNumber, &rd.LockTime, &rd.ProcessedAt, &rd.ReminderSentAt, &rd.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rd, nil
}

func (r *postgresRoundRepository) queryRounds(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.Round, error) {
	rows, err := r.getExecutor(exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	rounds := make([]*models.Round, 0)
	for rows.Next() {
		rd, scanErr := scanRound(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan round row: %w", scanErr)
		}
		rounds = append(rounds, rd)
	}
	return rounds, rows.Err()
}

func (r *postgresRoundRepository) Create(ctx context.Context, exec SQLExecutor, round *models.Round) error {
	query := `
		INSERT INTO rounds (competition_id, round_number, lock_time)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query, round.CompetitionID, round.RoundNumber, round.LockTime).
		Scan(&round.ID, &round.CreatedAt)
	if err != nil {
		if constraint, ok := pqConstraint(err, pqUniqueViolation); ok && constraint == "rounds_competition_id_round_number_key" {
			return ErrRoundNumberConflict
		}
		if _, ok := pqConstraint(err, pqForeignKeyViolation); ok {
			return ErrCompetitionNotFound
		}
		return fmt.Errorf("failed to create round: %w", err)
	}
	return nil
}

func (r *postgresRoundRepository) GetByID(ctx context.Context, exec SQLExecutor, id int, forUpdate bool) (*models.Round, error) {
	rd, err := scanRound(r.getExecutor(exec).QueryRowContext(ctx, roundSelect+` WHERE id = $1`+lockClause(forUpdate), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to get round %d: %w", id, err)
	}
	return rd, nil
}

// Latest returns the highest-numbered round of a competition.
func (r *postgresRoundRepository) Latest(ctx context.Context, exec SQLExecutor, competitionID int) (*models.Round, error) {
	rd, err := scanRound(r.getExecutor(exec).QueryRowContext(ctx,
		roundSelect+` WHERE competition_id = $1 ORDER BY round_number DESC LIMIT 1`, competitionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to get latest round: %w", err)
	}
	return rd, nil
}

func (r *postgresRoundRepository) ListByCompetition(ctx context.Context, competitionID int) ([]*models.Round, error) {
	return r.queryRounds(ctx, nil, roundSelect+` WHERE competition_id = $1 ORDER BY round_number`, competitionID)
}

// SetProcessed records (or with nil, clears) the instant eliminations were applied.
func (r *postgresRoundRepository) SetProcessed(ctx context.Context, exec SQLExecutor, id int, processedAt *time.Time) error {
	result, err := r.getExecutor(exec).ExecContext(ctx, `UPDATE rounds SET processed_at = $1 WHERE id = $2`, processedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update round processed_at: %w", err)
	}
	return checkAffectedRows(result, ErrRoundNotFound)
}

// ListNeedingReminder returns unprocessed rounds locking within [from, to) that
// have not had a reminder yet.
func (r *postgresRoundRepository) ListNeedingReminder(ctx context.Context, from, to time.Time) ([]*models.Round, error) {
	return r.queryRounds(ctx, nil, roundSelect+`
		WHERE processed_at IS NULL
		  AND reminder_sent_at IS NULL
		  AND lock_time >= $1 AND lock_time < $2
		ORDER BY lock_time`, from, to)
}

func (r *postgresRoundRepository) MarkReminderSent(ctx context.Context, id int, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE rounds SET reminder_sent_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return checkAffectedRows(result, ErrRoundNotFound)
}

// DeleteByCompetition removes every round; fixtures and picks cascade.
func (r *postgresRoundRepository) DeleteByCompetition(ctx context.Context, exec SQLExecutor, competitionID int) error {
	if _, err := r.getExecutor(exec).ExecContext(ctx, `DELETE FROM rounds WHERE competition_id = $1`, competitionID); err != nil {
		return fmt.Errorf("failed to delete rounds: %w", err)
	}
	return nil
}
