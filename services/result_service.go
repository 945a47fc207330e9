package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lmslocal/lms-server/engine"
	"github.com/lmslocal/lms-server/metrics"
	"github.com/lmslocal/lms-server/models"
	"github.com/lmslocal/lms-server/notify"
	"github.com/lmslocal/lms-server/repositories"
)

// ResultOutcome describes what one result entry did.
type ResultOutcome struct {
	Fixture       *models.Fixture     `json:"fixture"`
	RoundState    engine.RoundState   `json:"round_state"`
	Processed     bool                `json:"processed"`
	Unchanged     bool                `json:"unchanged,omitempty"`
	AffectedPicks int                 `json:"affected_picks"`
	Eliminated    []int               `json:"eliminated_user_ids"`
	Competition   *models.Competition `json:"competition"`
}

type ResultService interface {
	ApplyResult(ctx context.Context, actor Actor, fixtureID, homeScore, awayScore int, override bool) (*ResultOutcome, error)
}

type resultService struct {
	tx              repositories.TxRunner
	competitionRepo repositories.CompetitionRepository
	roundRepo       repositories.RoundRepository
	fixtureRepo     repositories.FixtureRepository
	playerRepo      repositories.PlayerRepository
	pickRepo        repositories.PickRepository
	permissions     PermissionService
	standings       StandingsService
	notifier        Notifier
	publicURL       string
	logger          *slog.Logger
	now             func() time.Time
}

func NewResultService(
	tx repositories.TxRunner,
	competitionRepo repositories.CompetitionRepository,
	roundRepo repositories.RoundRepository,
	fixtureRepo repositories.FixtureRepository,
	playerRepo repositories.PlayerRepository,
	pickRepo repositories.PickRepository,
	permissions PermissionService,
	standings StandingsService,
	notifier Notifier,
	publicURL string,
	logger *slog.Logger,
) ResultService {
	return &resultService{
		tx:              tx,
		competitionRepo: competitionRepo,
		roundRepo:       roundRepo,
		fixtureRepo:     fixtureRepo,
		playerRepo:      playerRepo,
		pickRepo:        pickRepo,
		permissions:     permissions,
		standings:       standings,
		notifier:        notifier,
		publicURL:       publicURL,
		logger:          logger,
		now:             time.Now,
	}
}

// ApplyResult records a fixture score. When it completes the round, every
// active player's outcome is computed and eliminations applied in the same
// transaction. Identical scores are a no-op. Different scores for a resulted
// fixture need override (admin or organiser), which reverts and recomputes
// the round.
func (s *resultService) ApplyResult(ctx context.Context, actor Actor, fixtureID, homeScore, awayScore int, override bool) (*ResultOutcome, error) {
	if homeScore < 0 || awayScore < 0 {
		return nil, fmt.Errorf("%w: scores cannot be negative", ErrValidationFailed)
	}

	fixture, err := s.fixtureRepo.GetByID(ctx, nil, fixtureID)
	if err != nil {
		return nil, mapRepoNotFound(err)
	}
	round, err := s.roundRepo.GetByID(ctx, nil, fixture.RoundID, false)
	if err != nil {
		return nil, mapRepoNotFound(err)
	}
	access, err := s.permissions.Require(ctx, actor.UserID, round.CompetitionID, models.CapabilityResults)
	if err != nil {
		return nil, err
	}
	if override && !actor.IsAdmin() && !access.IsOrganiser {
		return nil, fmt.Errorf("%w: result override requires the organiser or an admin", ErrUnauthorized)
	}
	if s.now().Before(round.LockTime) {
		return nil, ErrRoundOpen
	}

	out := &ResultOutcome{Eliminated: []int{}}
	var players []*models.Player
	var reverted bool

	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var err error
		round, err = s.roundRepo.GetByID(ctx, exec, fixture.RoundID, true)
		if err != nil {
			return mapRepoNotFound(err)
		}
		competition, err := s.competitionRepo.GetByID(ctx, exec, round.CompetitionID, true)
		if err != nil {
			return mapRepoNotFound(err)
		}
		out.Competition = competition

		fixture, err = s.fixtureRepo.GetByID(ctx, exec, fixtureID)
		if err != nil {
			return mapRepoNotFound(err)
		}

		if fixture.HasResult() {
			if *fixture.HomeScore == homeScore && *fixture.AwayScore == awayScore {
				out.Unchanged = true
				return nil
			}
			if !override {
				return fmt.Errorf("%w: fixture %d is %d-%d", ErrResultConflict, fixture.ID, *fixture.HomeScore, *fixture.AwayScore)
			}
			if round.ProcessedAt != nil {
				if err := s.revertRound(ctx, exec, round, competition); err != nil {
					return err
				}
				reverted = true
			}
		}

		if err := s.fixtureRepo.UpdateResult(ctx, exec, fixtureID, homeScore, awayScore); err != nil {
			return err
		}
		fixture.HomeScore, fixture.AwayScore = &homeScore, &awayScore

		fixtures, err := s.fixtureRepo.ListByRound(ctx, exec, round.ID)
		if err != nil {
			return err
		}
		if !engine.ReadyToProcess(roundSnapshot(round, fixtures), s.now()) {
			return nil
		}

		players, err = s.processRound(ctx, exec, round, competition, fixtures, out)
		return err
	})
	if err != nil {
		return nil, err
	}

	fixtures, err := s.fixtureRepo.ListByRound(ctx, nil, round.ID)
	if err != nil {
		return nil, err
	}
	out.Fixture = fixture
	out.RoundState = engine.StateAt(roundSnapshot(round, fixtures), s.now())

	if reverted {
		s.logger.WarnContext(ctx, "result override: round outcomes recomputed",
			slog.Int("round_id", round.ID),
			slog.Int("fixture_id", fixtureID),
			slog.Int("actor_user_id", actor.UserID))
	}
	if out.Processed {
		metrics.RoundsProcessed.Inc()
		metrics.PlayersEliminated.Add(float64(len(out.Eliminated)))
		s.logger.InfoContext(ctx, "round processed",
			slog.Int("competition_id", round.CompetitionID),
			slog.Int("round_id", round.ID),
			slog.Int("affected_picks", out.AffectedPicks),
			slog.Int("eliminated", len(out.Eliminated)))
		s.standings.Refresh(ctx, round.CompetitionID)
		s.announce(round, out, players)
	} else if !out.Unchanged {
		s.standings.Invalidate(ctx, round.CompetitionID)
	}
	return out, nil
}

// processRound scores every active player, writes outcomes and lives, and
// closes the competition when at most one player survives.
func (s *resultService) processRound(
	ctx context.Context,
	exec repositories.SQLExecutor,
	round *models.Round,
	competition *models.Competition,
	fixtures []*models.Fixture,
	out *ResultOutcome,
) ([]*models.Player, error) {
	if _, err := engine.Transition(engine.StateAt(roundSnapshot(round, fixtures), s.now()), engine.RoundComplete); err != nil {
		return nil, err
	}
	players, err := s.playerRepo.ListByCompetition(ctx, exec, competition.ID, true)
	if err != nil {
		return nil, err
	}
	picks, err := s.pickRepo.ListByRound(ctx, exec, round.ID)
	if err != nil {
		return nil, err
	}

	pickByPlayer := make(map[int]*models.Pick, len(picks))
	teamByPlayer := make(map[int]string, len(picks))
	for _, p := range picks {
		pickByPlayer[p.PlayerID] = p
		if p.Team != nil {
			teamByPlayer[p.PlayerID] = *p.Team
		}
	}

	states := make([]*engine.PlayerState, len(players))
	playerByID := make(map[int]*models.Player, len(players))
	for i, p := range players {
		states[i] = &engine.PlayerState{PlayerID: p.ID, Lives: p.LivesRemaining, Status: engine.PlayerStatus(p.Status)}
		playerByID[p.ID] = p
	}

	scored, err := engine.ScoreRound(states, teamByPlayer, toResults(fixtures))
	if err != nil {
		return nil, err
	}

	for _, sc := range scored {
		outcome := models.PickOutcome(sc.Outcome)
		var fixtureID *int
		if sc.FixtureID != 0 {
			id := sc.FixtureID
			fixtureID = &id
		}

		if pick, ok := pickByPlayer[sc.PlayerID]; ok {
			pick.Outcome = &outcome
			pick.FixtureID = fixtureID
			if err := s.pickRepo.Update(ctx, exec, pick); err != nil {
				return nil, err
			}
		} else {
			noPick := &models.Pick{PlayerID: sc.PlayerID, RoundID: round.ID, Outcome: &outcome}
			if err := s.pickRepo.Create(ctx, exec, noPick); err != nil {
				return nil, err
			}
		}

		player := playerByID[sc.PlayerID]
		player.LivesRemaining = sc.LivesAfter
		if sc.Eliminated {
			player.Status = models.PlayerEliminated
			roundID := round.ID
			player.EliminatedRoundID = &roundID
			out.Eliminated = append(out.Eliminated, player.UserID)
		}
		if err := s.playerRepo.UpdateState(ctx, exec, player); err != nil {
			return nil, err
		}
	}
	out.AffectedPicks = len(scored)

	processedAt := s.now().UTC()
	if err := s.roundRepo.SetProcessed(ctx, exec, round.ID, &processedAt); err != nil {
		return nil, err
	}
	round.ProcessedAt = &processedAt
	out.Processed = true

	conclusion := engine.Conclude(states)
	if conclusion.Complete {
		var winnerUserID *int
		if conclusion.WinnerID != nil {
			uid := playerByID[*conclusion.WinnerID].UserID
			winnerUserID = &uid
		}
		if err := s.competitionRepo.UpdateStatus(ctx, exec, competition.ID, models.CompetitionCompleted, winnerUserID); err != nil {
			return nil, err
		}
		competition.Status = models.CompetitionCompleted
		competition.WinnerUserID = winnerUserID
	}
	return players, nil
}

// revertRound undoes a processed round so it can be scored again. Only the
// latest round can be reverted.
func (s *resultService) revertRound(ctx context.Context, exec repositories.SQLExecutor, round *models.Round, competition *models.Competition) error {
	latest, err := s.roundRepo.Latest(ctx, exec, competition.ID)
	if err != nil {
		return err
	}
	if latest.ID != round.ID {
		return fmt.Errorf("%w: a later round already exists", ErrConflict)
	}
	if _, err := engine.Transition(engine.StateAt(roundSnapshot(round, nil), s.now()), engine.RoundResultsPending); err != nil {
		return err
	}

	players, err := s.playerRepo.ListByCompetition(ctx, exec, competition.ID, true)
	if err != nil {
		return err
	}
	picks, err := s.pickRepo.ListByRound(ctx, exec, round.ID)
	if err != nil {
		return err
	}
	playerByID := make(map[int]*models.Player, len(players))
	for _, p := range players {
		playerByID[p.ID] = p
	}

	for _, pick := range picks {
		if pick.Outcome == nil {
			continue
		}
		player, ok := playerByID[pick.PlayerID]
		if !ok {
			return fmt.Errorf("pick %d references unknown player %d: %w", pick.ID, pick.PlayerID, ErrPlayerNotFound)
		}
		eliminatedByIt := player.EliminatedRoundID != nil && *player.EliminatedRoundID == round.ID
		state := &engine.PlayerState{PlayerID: player.ID, Lives: player.LivesRemaining, Status: engine.PlayerStatus(player.Status)}
		engine.RevertOutcome(state, engine.Outcome(*pick.Outcome), eliminatedByIt)

		player.LivesRemaining = state.Lives
		player.Status = models.PlayerStatus(state.Status)
		if eliminatedByIt {
			player.EliminatedRoundID = nil
		}
		if err := s.playerRepo.UpdateState(ctx, exec, player); err != nil {
			return err
		}
	}

	if err := s.pickRepo.DeleteNoPicks(ctx, exec, round.ID); err != nil {
		return err
	}
	if err := s.pickRepo.ClearOutcomes(ctx, exec, round.ID); err != nil {
		return err
	}
	if err := s.roundRepo.SetProcessed(ctx, exec, round.ID, nil); err != nil {
		return err
	}
	round.ProcessedAt = nil

	if competition.Status == models.CompetitionCompleted {
		if err := s.competitionRepo.UpdateStatus(ctx, exec, competition.ID, models.CompetitionActive, nil); err != nil {
			return err
		}
		competition.Status = models.CompetitionActive
		competition.WinnerUserID = nil
	}
	return nil
}

// announce queues result notifications. Delivery failures never reach the caller.
func (s *resultService) announce(round *models.Round, out *ResultOutcome, players []*models.Player) {
	if s.notifier == nil || len(players) == 0 {
		return
	}
	competition := out.Competition
	link := fmt.Sprintf("%s/competitions/%d", s.publicURL, competition.ID)

	active := 0
	for _, p := range players {
		if p.Status == models.PlayerActive {
			active++
		}
	}

	body := fmt.Sprintf("Round %d of %s has been processed. %d player(s) eliminated, %d still standing.",
		round.RoundNumber, competition.Name, len(out.Eliminated), active)
	if competition.Status == models.CompetitionCompleted && competition.WinnerUserID == nil {
		body += " Nobody survived this round, so the organiser will settle the competition."
	}

	if !s.notifier.Enqueue(notify.Notification{
		Kind:     notify.KindRoundResult,
		UserIDs:  userIDsOf(players),
		Subject:  fmt.Sprintf("Round %d results: %s", round.RoundNumber, competition.Name),
		Body:     body,
		Link:     link,
		LinkText: "View standings",
		Push:     true,
	}) {
		s.logger.Warn("round result notification dropped", slog.Int("round_id", round.ID))
	}

	if competition.WinnerUserID != nil {
		s.notifier.Enqueue(notify.Notification{
			Kind:     notify.KindCompetitionWon,
			UserIDs:  []int{*competition.WinnerUserID},
			Subject:  fmt.Sprintf("You won %s!", competition.Name),
			Body:     fmt.Sprintf("You are the last player standing in %s.", competition.Name),
			Link:     link,
			LinkText: "See the final table",
			Push:     true,
		})
	}
}
