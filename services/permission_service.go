package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lmslocal/lms-server/models"
	"github.com/lmslocal/lms-server/repositories"
)

type PermissionService interface {
	CheckPermission(ctx context.Context, userID, competitionID int, capability models.Capability) (models.Access, error)
	Require(ctx context.Context, userID, competitionID int, capability models.Capability) (models.Access, error)
	CanView(ctx context.Context, userID, competitionID int) (bool, error)
	GrantPermissions(ctx context.Context, actorID, competitionID, targetUserID int, grants map[models.Capability]bool) (*models.CompetitionUser, error)
}

type permissionService struct {
	competitionRepo     repositories.CompetitionRepository
	competitionUserRepo repositories.CompetitionUserRepository
	playerRepo          repositories.PlayerRepository
	logger              *slog.Logger
}

func NewPermissionService(
	competitionRepo repositories.CompetitionRepository,
	competitionUserRepo repositories.CompetitionUserRepository,
	playerRepo repositories.PlayerRepository,
	logger *slog.Logger,
) PermissionService {
	return &permissionService{
		competitionRepo:     competitionRepo,
		competitionUserRepo: competitionUserRepo,
		playerRepo:          playerRepo,
		logger:              logger,
	}
}

// CheckPermission answers whether userID may exercise capability on the
// competition. The organiser holds every capability. A missing competition
// yields a zero Access and no error.
func (s *permissionService) CheckPermission(ctx context.Context, userID, competitionID int, capability models.Capability) (models.Access, error) {
	if !capability.Valid() {
		return models.Access{}, ErrInvalidCapability
	}

	competition, err := s.competitionRepo.GetByID(ctx, nil, competitionID, false)
	if err != nil {
		if errors.Is(err, repositories.ErrCompetitionNotFound) {
			return models.Access{}, nil
		}
		return models.Access{}, fmt.Errorf("permission check: %w", err)
	}
	if competition.OrganiserID == userID {
		return models.Access{Authorized: true, IsOrganiser: true}, nil
	}

	cu, err := s.competitionUserRepo.Get(ctx, competitionID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrCompetitionUserNotFound) {
			return models.Access{}, nil
		}
		return models.Access{}, fmt.Errorf("permission check: %w", err)
	}
	return models.Access{Authorized: cu.Has(capability)}, nil
}

// Require is CheckPermission that turns a denial into ErrUnauthorized.
func (s *permissionService) Require(ctx context.Context, userID, competitionID int, capability models.Capability) (models.Access, error) {
	access, err := s.CheckPermission(ctx, userID, competitionID, capability)
	if err != nil {
		return access, err
	}
	if !access.Authorized {
		return access, fmt.Errorf("%w: missing %q capability", ErrUnauthorized, capability)
	}
	return access, nil
}

// CanView reports whether the user organises, manages or plays in the competition.
func (s *permissionService) CanView(ctx context.Context, userID, competitionID int) (bool, error) {
	competition, err := s.competitionRepo.GetByID(ctx, nil, competitionID, false)
	if err != nil {
		if errors.Is(err, repositories.ErrCompetitionNotFound) {
			return false, ErrCompetitionNotFound
		}
		return false, err
	}
	if competition.OrganiserID == userID {
		return true, nil
	}

	if _, err := s.competitionUserRepo.Get(ctx, competitionID, userID); err == nil {
		return true, nil
	} else if !errors.Is(err, repositories.ErrCompetitionUserNotFound) {
		return false, err
	}

	if _, err := s.playerRepo.GetByCompetitionUser(ctx, nil, competitionID, userID, false); err == nil {
		return true, nil
	} else if !errors.Is(err, repositories.ErrPlayerNotFound) {
		return false, err
	}
	return false, nil
}

// GrantPermissions sets delegate capabilities. Only the main organiser may call
// it, whatever capabilities the caller holds.
func (s *permissionService) GrantPermissions(ctx context.Context, actorID, competitionID, targetUserID int, grants map[models.Capability]bool) (*models.CompetitionUser, error) {
	if len(grants) == 0 {
		return nil, fmt.Errorf("%w: no capabilities given", ErrValidationFailed)
	}
	for c := range grants {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCapability, c)
		}
	}

	competition, err := s.competitionRepo.GetByID(ctx, nil, competitionID, false)
	if err != nil {
		return nil, mapRepoNotFound(err)
	}
	if competition.OrganiserID != actorID {
		return nil, fmt.Errorf("%w: only the organiser can grant permissions", ErrUnauthorized)
	}
	if targetUserID == competition.OrganiserID {
		return nil, fmt.Errorf("%w: the organiser already holds every capability", ErrValidationFailed)
	}

	cu, err := s.competitionUserRepo.Get(ctx, competitionID, targetUserID)
	if err != nil {
		if !errors.Is(err, repositories.ErrCompetitionUserNotFound) {
			return nil, err
		}
		cu = &models.CompetitionUser{CompetitionID: competitionID, UserID: targetUserID}
	}
	for c, granted := range grants {
		cu.Set(c, granted)
	}

	if err := s.competitionUserRepo.Upsert(ctx, cu); err != nil {
		if errors.Is(err, repositories.ErrCompetitionUserInvalid) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "competition permissions updated",
		slog.Int("competition_id", competitionID),
		slog.Int("user_id", targetUserID),
		slog.Any("capabilities", cu.Capabilities()))
	return cu, nil
}
