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

type PickService interface {
	SubmitPick(ctx context.Context, userID, roundID int, team string) (*models.Pick, error)
	OverridePick(ctx context.Context, actorID, roundID, targetUserID int, team string) (*models.Pick, error)
}

type pickService struct {
	tx              repositories.TxRunner
	competitionRepo repositories.CompetitionRepository
	roundRepo       repositories.RoundRepository
	fixtureRepo     repositories.FixtureRepository
	playerRepo      repositories.PlayerRepository
	pickRepo        repositories.PickRepository
	teamRepo        repositories.TeamRepository
	permissions     PermissionService
	standings       StandingsService
	logger          *slog.Logger
	now             func() time.Time
}

func NewPickService(
	tx repositories.TxRunner,
	competitionRepo repositories.CompetitionRepository,
	roundRepo repositories.RoundRepository,
	fixtureRepo repositories.FixtureRepository,
	playerRepo repositories.PlayerRepository,
	pickRepo repositories.PickRepository,
	teamRepo repositories.TeamRepository,
	permissions PermissionService,
	standings StandingsService,
	logger *slog.Logger,
) PickService {
	return &pickService{
		tx:              tx,
		competitionRepo: competitionRepo,
		roundRepo:       roundRepo,
		fixtureRepo:     fixtureRepo,
		playerRepo:      playerRepo,
		pickRepo:        pickRepo,
		teamRepo:        teamRepo,
		permissions:     permissions,
		standings:       standings,
		logger:          logger,
		now:             time.Now,
	}
}

// SubmitPick records the caller's team for a round. Checks run in this order:
// lock time, team plays in the round, caller is an active player, no earlier
// pick, team not already used.
func (s *pickService) SubmitPick(ctx context.Context, userID, roundID int, team string) (*models.Pick, error) {
	team = normalizeTeam(team)
	if team == "" {
		return nil, fmt.Errorf("%w: team is required", ErrValidationFailed)
	}

	round, err := s.roundRepo.GetByID(ctx, nil, roundID, false)
	if err != nil {
		return nil, mapRepoNotFound(err)
	}
	if !s.now().Before(round.LockTime) {
		return nil, ErrRoundLocked
	}

	fixtures, err := s.fixtureRepo.ListByRound(ctx, nil, roundID)
	if err != nil {
		return nil, err
	}
	fixture := fixtureForTeam(fixtures, team)
	if fixture == nil {
		return nil, fmt.Errorf("%w: %s does not play in this round", ErrValidationFailed, team)
	}

	competition, err := s.competitionRepo.GetByID(ctx, nil, round.CompetitionID, false)
	if err != nil {
		return nil, mapRepoNotFound(err)
	}

	var pick *models.Pick
	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		player, err := s.playerRepo.GetByCompetitionUser(ctx, exec, competition.ID, userID, true)
		if err != nil {
			if errors.Is(err, repositories.ErrPlayerNotFound) {
				return ErrNotActivePlayer
			}
			return err
		}
		if player.Status != models.PlayerActive {
			return ErrNotActivePlayer
		}
		// The lock may have passed while waiting for the player row.
		if !s.now().Before(round.LockTime) {
			return ErrRoundLocked
		}

		if _, err := s.pickRepo.GetByPlayerRound(ctx, exec, player.ID, roundID); err == nil {
			return ErrDuplicatePick
		} else if !errors.Is(err, repositories.ErrPickNotFound) {
			return err
		}

		pool, err := s.teamRepo.ShortNames(ctx, exec, competition.TeamListID)
		if err != nil {
			return err
		}
		used, err := engine.UsePick(player.UsedTeams, pool, team)
		if err != nil {
			if errors.Is(err, engine.ErrTeamAlreadyUsed) {
				return fmt.Errorf("%w: %s", ErrTeamAlreadyUsed, team)
			}
			return err
		}

		fixtureID := fixture.ID
		pick = &models.Pick{
			PlayerID:    player.ID,
			RoundID:     roundID,
			FixtureID:   &fixtureID,
			Team:        &team,
			SetByUserID: &userID,
		}
		if err := s.pickRepo.Create(ctx, exec, pick); err != nil {
			if errors.Is(err, repositories.ErrPickDuplicate) {
				return ErrDuplicatePick
			}
			return err
		}

		player.UsedTeams = used
		return s.playerRepo.UpdateState(ctx, exec, player)
	})
	if err != nil {
		return nil, err
	}

	s.standings.Invalidate(ctx, competition.ID)
	return pick, nil
}

// OverridePick lets the organiser or a players delegate set a pick for someone
// else, ignoring lock time and the no-repeat rule. The replaced team is released
// from the player's used teams.
func (s *pickService) OverridePick(ctx context.Context, actorID, roundID, targetUserID int, team string) (*models.Pick, error) {
	team = normalizeTeam(team)
	if team == "" {
		return nil, fmt.Errorf("%w: team is required", ErrValidationFailed)
	}

	round, err := s.roundRepo.GetByID(ctx, nil, roundID, false)
	if err != nil {
		return nil, mapRepoNotFound(err)
	}
	if _, err := s.permissions.Require(ctx, actorID, round.CompetitionID, models.CapabilityPlayers); err != nil {
		return nil, err
	}
	if round.ProcessedAt != nil {
		return nil, ErrRoundProcessed
	}

	fixtures, err := s.fixtureRepo.ListByRound(ctx, nil, roundID)
	if err != nil {
		return nil, err
	}
	fixture := fixtureForTeam(fixtures, team)
	if fixture == nil {
		return nil, fmt.Errorf("%w: %s does not play in this round", ErrValidationFailed, team)
	}

	var pick *models.Pick
	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		player, err := s.playerRepo.GetByCompetitionUser(ctx, exec, round.CompetitionID, targetUserID, true)
		if err != nil {
			return mapRepoNotFound(err)
		}
		if player.Status != models.PlayerActive {
			return fmt.Errorf("%w: player is eliminated", ErrValidationFailed)
		}

		fixtureID := fixture.ID
		used := player.UsedTeams
		existing, err := s.pickRepo.GetByPlayerRound(ctx, exec, player.ID, roundID)
		switch {
		case err == nil:
			if existing.Team != nil {
				used = engine.ReleasePick(used, *existing.Team)
			}
			existing.Team = &team
			existing.FixtureID = &fixtureID
			existing.SetByUserID = &actorID
			if err := s.pickRepo.Update(ctx, exec, existing); err != nil {
				return err
			}
			pick = existing
		case errors.Is(err, repositories.ErrPickNotFound):
			pick = &models.Pick{
				PlayerID:    player.ID,
				RoundID:     roundID,
				FixtureID:   &fixtureID,
				Team:        &team,
				SetByUserID: &actorID,
			}
			if err := s.pickRepo.Create(ctx, exec, pick); err != nil {
				return err
			}
		default:
			return err
		}

		player.UsedTeams = append(engine.ReleasePick(used, team), team)
		return s.playerRepo.UpdateState(ctx, exec, player)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WarnContext(ctx, "pick overridden",
		slog.Int("round_id", roundID),
		slog.Int("target_user_id", targetUserID),
		slog.Int("actor_user_id", actorID),
		slog.String("team", team))
	s.standings.Invalidate(ctx, round.CompetitionID)
	return pick, nil
}
