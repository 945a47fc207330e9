package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/lmslocal/lms-server/models"
	"github.com/lmslocal/lms-server/notify"
	"github.com/lmslocal/lms-server/repositories"
	"github.com/lmslocal/lms-server/utils"
)

const (
	minPasswordLength   = 8
	passwordResetTTL    = time.Hour
	passwordResetLength = 32
)

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, error)
	Login(ctx context.Context, input LoginInput) (*models.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type RegisterInput struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authService struct {
	userRepo  repositories.UserRepository
	notifier  Notifier
	publicURL string
	logger    *slog.Logger
	now       func() time.Time
}

func NewAuthService(userRepo repositories.UserRepository, notifier Notifier, publicURL string, logger *slog.Logger) AuthService {
	return &authService{
		userRepo:  userRepo,
		notifier:  notifier,
		publicURL: publicURL,
		logger:    logger,
		now:       time.Now,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		return nil, fmt.Errorf("%w: display_name is required", ErrValidationFailed)
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if len(input.Password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hashedPassword, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		DisplayName:  name,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         models.RoleUser,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrUserEmailConflict) {
			return nil, ErrUserEmailConflict
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Enqueue(notify.Notification{
			Kind:     notify.KindWelcome,
			Email:    user.Email,
			Name:     user.DisplayName,
			Subject:  "Welcome to LMSLocal",
			Body:     "Your account is ready. Ask your organiser for an invite code to join a competition, or create your own.",
			Link:     s.publicURL,
			LinkText: "Open LMSLocal",
		})
	}

	user.PasswordHash = ""
	return user, nil
}

func (s *authService) Login(ctx context.Context, input LoginInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	if !utils.CheckPasswordHash(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	user.PasswordHash = ""
	return user, nil
}

// ForgotPassword emails a reset link. Unknown addresses succeed silently so the
// endpoint does not reveal who is registered.
func (s *authService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil
		}
		return err
	}

	token, err := utils.GenerateToken(passwordResetLength)
	if err != nil {
		return err
	}
	if err := s.userRepo.SetPasswordResetToken(ctx, user.ID, token, s.now().Add(passwordResetTTL)); err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.Enqueue(notify.Notification{
			Kind:     notify.KindPasswordReset,
			Email:    user.Email,
			Name:     user.DisplayName,
			Subject:  "Reset your LMSLocal password",
			Body:     "Someone asked to reset your password. The link is valid for one hour. If it was not you, ignore this email.",
			Link:     fmt.Sprintf("%s/reset-password?token=%s", s.publicURL, token),
			LinkText: "Reset password",
		})
	}
	return nil
}

func (s *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrInvalidResetToken
	}
	if len(newPassword) < minPasswordLength {
		return ErrPasswordTooShort
	}

	user, err := s.userRepo.GetByPasswordResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	if user.PasswordResetExpiresAt == nil || user.PasswordResetExpiresAt.Before(s.now()) {
		return ErrInvalidResetToken
	}

	hashedPassword, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, hashedPassword); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "password reset", slog.Int("user_id", user.ID))
	return nil
}
