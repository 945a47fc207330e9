package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lmslocal/lms-server/engine"
	"github.com/lmslocal/lms-server/models"
	"github.com/lmslocal/lms-server/repositories"
)

type CreateRoundInput struct {
	LockTime time.Time      `json:"lock_time"`
	Fixtures []FixtureInput `json:"fixtures"`
}

type RoundService interface {
	CreateRound(ctx context.Context, userID, competitionID int, input CreateRoundInput) (*models.Round, error)
	ReplaceFixtures(ctx context.Context, actor Actor, roundID int, fixtures []FixtureInput, override bool) (*models.Round, error)
	ListRounds(ctx context.Context, userID, competitionID int) ([]*models.Round, error)
}

type roundService struct {
	tx              repositories.TxRunner
	competitionRepo repositories.CompetitionRepository
	roundRepo       repositories.RoundRepository
	fixtureRepo     repositories.FixtureRepository
	pickRepo        repositories.PickRepository
	playerRepo      repositories.PlayerRepository
	teamRepo        repositories.TeamRepository
	permissions     PermissionService
	standings       StandingsService
	logger          *slog.Logger
	now             func() time.Time
}

func NewRoundService(
	tx repositories.TxRunner,
	competitionRepo repositories.CompetitionRepository,
	roundRepo repositories.RoundRepository,
	fixtureRepo repositories.FixtureRepository,
	pickRepo repositories.PickRepository,
	playerRepo repositories.PlayerRepository,
	teamRepo repositories.TeamRepository,
	permissions PermissionService,
	standings StandingsService,
	logger *slog.Logger,
) RoundService {
	return &roundService{
		tx:              tx,
		competitionRepo: competitionRepo,
		roundRepo:       roundRepo,
		fixtureRepo:     fixtureRepo,
		pickRepo:        pickRepo,
		playerRepo:      playerRepo,
		teamRepo:        teamRepo,
		permissions:     permissions,
		standings:       standings,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *roundService) CreateRound(ctx context.Context, userID, competitionID int, input CreateRoundInput) (*models.Round, error) {
	if input.LockTime.IsZero() {
		return nil, fmt.Errorf("%w: lock_time is required", ErrValidationFailed)
	}
	if _, err := s.permissions.Require(ctx, userID, competitionID, models.CapabilityFixtures); err != nil {
		return nil, err
	}

	var round *models.Round
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		competition, err := s.competitionRepo.GetByID(ctx, exec, competitionID, true)
		if err != nil {
			return mapRepoNotFound(err)
		}
		if competition.Status == models.CompetitionCompleted {
			return ErrCompetitionCompleted
		}

		pool, err := s.teamRepo.ShortNames(ctx, exec, competition.TeamListID)
		if err != nil {
			return err
		}
		fixtures, err := validateFixtures(input.Fixtures, pool)
		if err != nil {
			return err
		}

		number := 1
		latest, err := s.roundRepo.Latest(ctx, exec, competitionID)
		switch {
		case err == nil:
			if latest.ProcessedAt == nil {
				return fmt.Errorf("%w: round %d", ErrPreviousRoundIncomplete, latest.RoundNumber)
			}
			number = latest.RoundNumber + 1
		case !errors.Is(err, repositories.ErrRoundNotFound):
			return err
		}

		round = &models.Round{
			CompetitionID: competitionID,
			RoundNumber:   number,
			LockTime:      input.LockTime.UTC(),
		}
		if err := s.roundRepo.Create(ctx, exec, round); err != nil {
			if errors.Is(err, repositories.ErrRoundNumberConflict) {
				return fmt.Errorf("%w: round %d already exists", ErrConflict, number)
			}
			return err
		}
		for _, f := range fixtures {
			f.RoundID = round.ID
		}
		if err := s.fixtureRepo.CreateBatch(ctx, exec, fixtures); err != nil {
			return err
		}
		round.Fixtures = fixtures

		if competition.Status == models.CompetitionSetup {
			if err := s.competitionRepo.UpdateStatus(ctx, exec, competitionID, models.CompetitionActive, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	round.State = string(engine.StateAt(roundSnapshot(round, round.Fixtures), s.now()))
	s.logger.InfoContext(ctx, "round created",
		slog.Int("competition_id", competitionID),
		slog.Int("round_id", round.ID),
		slog.Int("round_number", round.RoundNumber),
		slog.Int("fixtures", len(round.Fixtures)))
	s.standings.Refresh(ctx, competitionID)
	return round, nil
}

// ReplaceFixtures swaps the fixture list of a round. Once the round is locked
// and any pick exists the list is frozen; only an admin override gets past that.
func (s *roundService) ReplaceFixtures(ctx context.Context, actor Actor, roundID int, inputs []FixtureInput, override bool) (*models.Round, error) {
	existing, err := s.roundRepo.GetByID(ctx, nil, roundID, false)
	if err != nil {
		return nil, mapRepoNotFound(err)
	}
	if _, err := s.permissions.Require(ctx, actor.UserID, existing.CompetitionID, models.CapabilityFixtures); err != nil {
		return nil, err
	}
	if override && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: fixture override requires the admin role", ErrUnauthorized)
	}

	var round *models.Round
	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var err error
		round, err = s.roundRepo.GetByID(ctx, exec, roundID, true)
		if err != nil {
			return mapRepoNotFound(err)
		}
		current, err := s.fixtureRepo.ListByRound(ctx, exec, roundID)
		if err != nil {
			return err
		}
		now := s.now()
		// New fixtures carry no results, so the round falls back to OPEN or LOCKED.
		replaced := engine.StateAt(roundSnapshot(round, nil), now)
		if _, err := engine.Transition(engine.StateAt(roundSnapshot(round, current), now), replaced); err != nil {
			return fmt.Errorf("%w: %w", ErrRoundProcessed, err)
		}

		picks, err := s.pickRepo.ListByRound(ctx, exec, roundID)
		if err != nil {
			return err
		}
		locked := !now.Before(round.LockTime)
		if locked && len(picks) > 0 {
			if !override {
				return fmt.Errorf("%w: fixtures cannot change after lock once picks exist", ErrRoundLocked)
			}
			s.logger.WarnContext(ctx, "admin override: replacing fixtures of a locked round",
				slog.Int("round_id", roundID),
				slog.Int("admin_user_id", actor.UserID),
				slog.Int("picks", len(picks)))
		}

		competition, err := s.competitionRepo.GetByID(ctx, exec, round.CompetitionID, false)
		if err != nil {
			return mapRepoNotFound(err)
		}
		pool, err := s.teamRepo.ShortNames(ctx, exec, competition.TeamListID)
		if err != nil {
			return err
		}
		fixtures, err := validateFixtures(inputs, pool)
		if err != nil {
			return err
		}

		if err := s.fixtureRepo.DeleteByRound(ctx, exec, roundID); err != nil {
			return err
		}
		for _, f := range fixtures {
			f.RoundID = roundID
		}
		if err := s.fixtureRepo.CreateBatch(ctx, exec, fixtures); err != nil {
			return err
		}

		// Existing picks follow their team to the new fixture. A pick whose team
		// no longer plays is withdrawn and the team handed back to the player.
		for _, p := range picks {
			if p.Team == nil {
				continue
			}
			if f := fixtureForTeam(fixtures, *p.Team); f != nil {
				id := f.ID
				p.FixtureID = &id
				if err := s.pickRepo.Update(ctx, exec, p); err != nil {
					return err
				}
				continue
			}
			if err := s.withdrawPick(ctx, exec, p); err != nil {
				return err
			}
			s.logger.InfoContext(ctx, "pick withdrawn, team removed from round",
				slog.Int("round_id", roundID),
				slog.Int("player_id", p.PlayerID),
				slog.String("team", *p.Team))
		}
		round.Fixtures = fixtures
		return nil
	})
	if err != nil {
		return nil, err
	}

	round.State = string(engine.StateAt(roundSnapshot(round, round.Fixtures), s.now()))
	s.standings.Invalidate(ctx, round.CompetitionID)
	return round, nil
}

func (s *roundService) withdrawPick(ctx context.Context, exec repositories.SQLExecutor, pick *models.Pick) error {
	player, err := s.playerRepo.GetByID(ctx, exec, pick.PlayerID, true)
	if err != nil {
		return mapRepoNotFound(err)
	}
	if err := s.pickRepo.Delete(ctx, exec, pick.ID); err != nil {
		return err
	}
	player.UsedTeams = engine.ReleasePick(player.UsedTeams, *pick.Team)
	return s.playerRepo.UpdateState(ctx, exec, player)
}

func (s *roundService) ListRounds(ctx context.Context, userID, competitionID int) ([]*models.Round, error) {
	ok, err := s.permissions.CanView(ctx, userID, competitionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: not a member of this competition", ErrUnauthorized)
	}

	rounds, err := s.roundRepo.ListByCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(rounds))
	for i, r := range rounds {
		ids[i] = r.ID
	}
	fixtures, err := s.fixtureRepo.ListByRounds(ctx, ids)
	if err != nil {
		return nil, err
	}

	byRound := make(map[int][]*models.Fixture, len(rounds))
	for _, f := range fixtures {
		byRound[f.RoundID] = append(byRound[f.RoundID], f)
	}
	now := s.now()
	for _, r := range rounds {
		r.Fixtures = byRound[r.ID]
		if r.Fixtures == nil {
			r.Fixtures = []*models.Fixture{}
		}
		r.State = string(engine.StateAt(roundSnapshot(r, r.Fixtures), now))
	}
	return rounds, nil
}
