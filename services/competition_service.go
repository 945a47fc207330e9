package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/lmslocal/lms-server/models"
	"github.com/lmslocal/lms-server/repositories"
	"github.com/lmslocal/lms-server/storage"
	"github.com/lmslocal/lms-server/utils"
)

const createCompetitionAttempts = 3

type CreateCompetitionInput struct {
	Name           string  `json:"name"`
	Description    *string `json:"description"`
	LivesPerPlayer int     `json:"lives_per_player"`
	TeamListID     int     `json:"team_list_id"`
}

type CompetitionService interface {
	CreateCompetition(ctx context.Context, userID int, input CreateCompetitionInput) (*models.Competition, error)
	GetCompetition(ctx context.Context, userID, competitionID int) (*models.Competition, error)
	ListMyCompetitions(ctx context.Context, userID int, filter repositories.CompetitionFilter) ([]*models.Competition, error)
	JoinByInviteCode(ctx context.Context, userID int, code string) (*models.Player, error)
	ResetCompetition(ctx context.Context, userID, competitionID int) (*models.Competition, error)
	UploadLogo(ctx context.Context, userID, competitionID int, file io.Reader, contentType string) (*models.Competition, error)
}

type competitionService struct {
	tx              repositories.TxRunner
	competitionRepo repositories.CompetitionRepository
	roundRepo       repositories.RoundRepository
	playerRepo      repositories.PlayerRepository
	teamRepo        repositories.TeamRepository
	permissions     PermissionService
	standings       StandingsService
	uploader        storage.FileUploader
	logger          *slog.Logger
	now             func() time.Time
}

func NewCompetitionService(
	tx repositories.TxRunner,
	competitionRepo repositories.CompetitionRepository,
	roundRepo repositories.RoundRepository,
	playerRepo repositories.PlayerRepository,
	teamRepo repositories.TeamRepository,
	permissions PermissionService,
	standings StandingsService,
	uploader storage.FileUploader,
	logger *slog.Logger,
) CompetitionService {
	return &competitionService{
		tx:              tx,
		competitionRepo: competitionRepo,
		roundRepo:       roundRepo,
		playerRepo:      playerRepo,
		teamRepo:        teamRepo,
		permissions:     permissions,
		standings:       standings,
		uploader:        uploader,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *competitionService) CreateCompetition(ctx context.Context, userID int, input CreateCompetitionInput) (*models.Competition, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidationFailed)
	}
	if input.LivesPerPlayer < 0 || input.LivesPerPlayer > models.MaxLivesPerPlayer {
		return nil, fmt.Errorf("%w: lives_per_player must be between 0 and %d", ErrValidationFailed, models.MaxLivesPerPlayer)
	}
	if _, err := s.teamRepo.GetList(ctx, input.TeamListID); err != nil {
		return nil, mapRepoNotFound(err)
	}

	competition := &models.Competition{
		Name:           name,
		Description:    input.Description,
		OrganiserID:    userID,
		Status:         models.CompetitionSetup,
		LivesPerPlayer: input.LivesPerPlayer,
		TeamListID:     input.TeamListID,
	}

	// Invite codes are short, so a collision is retried with a fresh code.
	for attempt := 1; ; attempt++ {
		code, err := utils.GenerateInviteCode()
		if err != nil {
			return nil, err
		}
		competition.InviteCode = code
		competition.Slug = slug.Make(name) + "-" + strings.ToLower(code)

		err = s.competitionRepo.Create(ctx, nil, competition)
		if err == nil {
			break
		}
		if errors.Is(err, repositories.ErrCompetitionTeamListInvalid) {
			return nil, ErrTeamListNotFound
		}
		if !errors.Is(err, repositories.ErrCompetitionCodeConflict) || attempt == createCompetitionAttempts {
			return nil, err
		}
	}

	competition.Access = &models.Access{Authorized: true, IsOrganiser: true}
	s.logger.InfoContext(ctx, "competition created",
		slog.Int("competition_id", competition.ID),
		slog.Int("organiser_id", userID),
		slog.String("slug", competition.Slug))
	return competition, nil
}

func (s *competitionService) GetCompetition(ctx context.Context, userID, competitionID int) (*models.Competition, error) {
	ok, err := s.permissions.CanView(ctx, userID, competitionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: not a member of this competition", ErrUnauthorized)
	}

	competition, err := s.competitionRepo.GetByID(ctx, nil, competitionID, false)
	if err != nil {
		return nil, mapRepoNotFound(err)
	}
	access, err := s.permissions.CheckPermission(ctx, userID, competitionID, models.CapabilityFixtures)
	if err != nil {
		return nil, err
	}
	competition.Access = &access
	populateCompetitionLogoURL(competition, s.uploader)
	return competition, nil
}

func (s *competitionService) ListMyCompetitions(ctx context.Context, userID int, filter repositories.CompetitionFilter) ([]*models.Competition, error) {
	competitions, err := s.competitionRepo.ListForUser(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	for _, c := range competitions {
		populateCompetitionLogoURL(c, s.uploader)
	}
	return competitions, nil
}

// JoinByInviteCode adds the user as a player with the competition's starting
// lives. Joining closes once round 1 locks.
func (s *competitionService) JoinByInviteCode(ctx context.Context, userID int, code string) (*models.Player, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%w: invite code is required", ErrValidationFailed)
	}

	competition, err := s.competitionRepo.GetByInviteCode(ctx, code)
	if err != nil {
		return nil, mapRepoNotFound(err)
	}
	if competition.Status == models.CompetitionCompleted {
		return nil, ErrCompetitionCompleted
	}

	latest, err := s.roundRepo.Latest(ctx, nil, competition.ID)
	switch {
	case err == nil:
		if latest.RoundNumber > 1 || !s.now().Before(latest.LockTime) {
			return nil, fmt.Errorf("%w: joining closed when round 1 locked", ErrRoundLocked)
		}
	case !errors.Is(err, repositories.ErrRoundNotFound):
		return nil, err
	}

	player := &models.Player{
		CompetitionID:  competition.ID,
		UserID:         userID,
		LivesRemaining: competition.LivesPerPlayer,
		Status:         models.PlayerActive,
		UsedTeams:      []string{},
	}
	if err := s.playerRepo.Create(ctx, nil, player); err != nil {
		if errors.Is(err, repositories.ErrPlayerAlreadyJoined) {
			return nil, ErrAlreadyJoined
		}
		return nil, err
	}

	s.standings.Invalidate(ctx, competition.ID)
	return player, nil
}

// ResetCompetition wipes rounds, fixtures and picks and restores every player
// to the starting lives. Organiser only.
func (s *competitionService) ResetCompetition(ctx context.Context, userID, competitionID int) (*models.Competition, error) {
	var competition *models.Competition
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var err error
		competition, err = s.competitionRepo.GetByID(ctx, exec, competitionID, true)
		if err != nil {
			return mapRepoNotFound(err)
		}
		if competition.OrganiserID != userID {
			return fmt.Errorf("%w: only the organiser can reset a competition", ErrUnauthorized)
		}

		if err := s.roundRepo.DeleteByCompetition(ctx, exec, competitionID); err != nil {
			return err
		}
		if err := s.playerRepo.ResetAll(ctx, exec, competitionID, competition.LivesPerPlayer); err != nil {
			return err
		}
		if err := s.competitionRepo.UpdateStatus(ctx, exec, competitionID, models.CompetitionSetup, nil); err != nil {
			return err
		}
		competition.Status = models.CompetitionSetup
		competition.WinnerUserID = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WarnContext(ctx, "competition reset", slog.Int("competition_id", competitionID), slog.Int("organiser_id", userID))
	s.standings.Refresh(ctx, competitionID)
	populateCompetitionLogoURL(competition, s.uploader)
	return competition, nil
}

func (s *competitionService) UploadLogo(ctx context.Context, userID, competitionID int, file io.Reader, contentType string) (*models.Competition, error) {
	if s.uploader == nil {
		return nil, ErrStorageUnavailable
	}
	ext, err := GetExtensionFromContentType(contentType)
	if err != nil {
		return nil, err
	}

	competition, err := s.competitionRepo.GetByID(ctx, nil, competitionID, false)
	if err != nil {
		return nil, mapRepoNotFound(err)
	}
	if competition.OrganiserID != userID {
		return nil, fmt.Errorf("%w: only the organiser can change the logo", ErrUnauthorized)
	}

	key := fmt.Sprintf("competitions/%d/logo-%s%s", competitionID, uuid.NewString(), ext)
	if _, err := s.uploader.Upload(ctx, key, contentType, file); err != nil {
		return nil, fmt.Errorf("failed to upload competition logo: %w", err)
	}
	if err := s.competitionRepo.UpdateLogoKey(ctx, competitionID, &key); err != nil {
		if delErr := s.uploader.Delete(ctx, key); delErr != nil {
			s.logger.WarnContext(ctx, "failed to remove orphaned logo", slog.String("key", key), slog.Any("error", delErr))
		}
		return nil, err
	}

	if old := derefString(competition.LogoKey); old != "" {
		if err := s.uploader.Delete(ctx, old); err != nil {
			s.logger.WarnContext(ctx, "failed to delete previous logo", slog.String("key", old), slog.Any("error", err))
		}
	}
	competition.LogoKey = &key
	populateCompetitionLogoURL(competition, s.uploader)
	return competition, nil
}
