package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/lmslocal/lms-server/engine"
	"github.com/lmslocal/lms-server/models"
	"github.com/lmslocal/lms-server/repositories"
)

const (
	standingsCacheTTL = 10 * time.Minute
	refreshTimeout    = 10 * time.Second
)

// StandingsCache stores rendered standings. Get returns nil, nil on a miss.
type StandingsCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RoomBroadcaster pushes a message to every live client watching a room.
type RoomBroadcaster interface {
	BroadcastToRoom(roomID string, message interface{})
}

// LiveMessage is the envelope sent to websocket clients.
type LiveMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	RoomID  string      `json:"room_id,omitempty"`
}

const LiveStandingsUpdated = "STANDINGS_UPDATED"

type StandingsService interface {
	GetStandings(ctx context.Context, userID, competitionID int) (*models.CompetitionStandings, error)
	Invalidate(ctx context.Context, competitionID int)
	Refresh(ctx context.Context, competitionID int)
}

type standingsService struct {
	competitionRepo repositories.CompetitionRepository
	roundRepo       repositories.RoundRepository
	fixtureRepo     repositories.FixtureRepository
	playerRepo      repositories.PlayerRepository
	pickRepo        repositories.PickRepository
	permissions     PermissionService
	cache           StandingsCache
	broadcaster     RoomBroadcaster
	logger          *slog.Logger
	now             func() time.Time
}

func NewStandingsService(
	competitionRepo repositories.CompetitionRepository,
	roundRepo repositories.RoundRepository,
	fixtureRepo repositories.FixtureRepository,
	playerRepo repositories.PlayerRepository,
	pickRepo repositories.PickRepository,
	permissions PermissionService,
	cache StandingsCache,
	broadcaster RoomBroadcaster,
	logger *slog.Logger,
) StandingsService {
	return &standingsService{
		competitionRepo: competitionRepo,
		roundRepo:       roundRepo,
		fixtureRepo:     fixtureRepo,
		playerRepo:      playerRepo,
		pickRepo:        pickRepo,
		permissions:     permissions,
		cache:           cache,
		broadcaster:     broadcaster,
		logger:          logger,
		now:             time.Now,
	}
}

func standingsKey(competitionID int) string {
	return "standings:" + strconv.Itoa(competitionID)
}

// RoomForCompetition names the websocket room of a competition.
func RoomForCompetition(competitionID int) string {
	return "competition:" + strconv.Itoa(competitionID)
}

func (s *standingsService) GetStandings(ctx context.Context, userID, competitionID int) (*models.CompetitionStandings, error) {
	ok, err := s.permissions.CanView(ctx, userID, competitionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: not a member of this competition", ErrUnauthorized)
	}

	if s.cache != nil {
		if raw, cacheErr := s.cache.Get(ctx, standingsKey(competitionID)); cacheErr != nil {
			s.logger.WarnContext(ctx, "standings cache read failed", slog.Int("competition_id", competitionID), slog.Any("error", cacheErr))
		} else if raw != nil {
			var cached models.CompetitionStandings
			if json.Unmarshal(raw, &cached) == nil {
				return &cached, nil
			}
		}
	}

	standings, err := s.build(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, standings)
	return standings, nil
}

// build assembles standings from the store. Picks of the current round stay
// hidden until the round locks.
func (s *standingsService) build(ctx context.Context, competitionID int) (*models.CompetitionStandings, error) {
	competition, err := s.competitionRepo.GetByID(ctx, nil, competitionID, false)
	if err != nil {
		return nil, mapRepoNotFound(err)
	}
	players, err := s.playerRepo.ListByCompetition(ctx, nil, competitionID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load players for standings: %w", err)
	}

	standings := &models.CompetitionStandings{
		CompetitionID: competition.ID,
		Status:        competition.Status,
		WinnerUserID:  competition.WinnerUserID,
		Players:       make([]models.Standing, 0, len(players)),
	}

	picksByPlayer := map[int]*models.Pick{}
	showPicks := false
	round, err := s.roundRepo.Latest(ctx, nil, competitionID)
	switch {
	case err == nil:
		fixtures, fErr := s.fixtureRepo.ListByRound(ctx, nil, round.ID)
		if fErr != nil {
			return nil, fmt.Errorf("failed to load fixtures for standings: %w", fErr)
		}
		state := engine.StateAt(roundSnapshot(round, fixtures), s.now())
		standings.RoundNumber = round.RoundNumber
		standings.RoundState = string(state)
		lock := round.LockTime
		standings.LockTime = &lock
		showPicks = state != engine.RoundOpen

		picks, pErr := s.pickRepo.ListByRound(ctx, nil, round.ID)
		if pErr != nil {
			return nil, fmt.Errorf("failed to load picks for standings: %w", pErr)
		}
		for _, p := range picks {
			picksByPlayer[p.PlayerID] = p
		}
	case errors.Is(err, repositories.ErrRoundNotFound):
	default:
		return nil, fmt.Errorf("failed to load latest round for standings: %w", err)
	}

	for _, p := range players {
		row := models.Standing{
			PlayerID:       p.ID,
			UserID:         p.UserID,
			DisplayName:    p.DisplayName,
			Status:         p.Status,
			LivesRemaining: p.LivesRemaining,
		}
		if pick, ok := picksByPlayer[p.ID]; ok {
			if showPicks {
				row.CurrentPick = pick.Team
			}
			row.LastOutcome = pick.Outcome
		}
		standings.Players = append(standings.Players, row)
	}
	return standings, nil
}

func (s *standingsService) store(ctx context.Context, standings *models.CompetitionStandings) {
	if s.cache == nil {
		return
	}
	// An open round reveals its picks at lock, so the entry must not outlive it.
	ttl := standingsCacheTTL
	if standings.RoundState == string(engine.RoundOpen) && standings.LockTime != nil {
		untilLock := standings.LockTime.Sub(s.now())
		if untilLock <= 0 {
			return
		}
		if untilLock < ttl {
			ttl = untilLock
		}
	}
	raw, err := json.Marshal(standings)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, standingsKey(standings.CompetitionID), raw, ttl); err != nil {
		s.logger.WarnContext(ctx, "standings cache write failed", slog.Int("competition_id", standings.CompetitionID), slog.Any("error", err))
	}
}

func (s *standingsService) Invalidate(ctx context.Context, competitionID int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, standingsKey(competitionID)); err != nil {
		s.logger.WarnContext(ctx, "standings cache invalidation failed", slog.Int("competition_id", competitionID), slog.Any("error", err))
	}
}

// Refresh rebuilds the standings and pushes them to live clients.
// It runs after a commit, so it outlives a cancelled request.
func (s *standingsService) Refresh(ctx context.Context, competitionID int) {
	ctx, cancel := withTimeout(ctx, refreshTimeout)
	defer cancel()
	s.Invalidate(ctx, competitionID)

	standings, err := s.build(ctx, competitionID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to rebuild standings", slog.Int("competition_id", competitionID), slog.Any("error", err))
		return
	}
	s.store(ctx, standings)

	if s.broadcaster != nil {
		room := RoomForCompetition(competitionID)
		s.broadcaster.BroadcastToRoom(room, LiveMessage{Type: LiveStandingsUpdated, Payload: standings, RoomID: room})
	}
}
