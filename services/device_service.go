package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/lmslocal/lms-server/models"
	"github.com/lmslocal/lms-server/notify"
	"github.com/lmslocal/lms-server/repositories"
)

type DeviceService interface {
	RegisterDevice(ctx context.Context, userID int, platform models.DevicePlatform, token string) (*models.Device, error)
}

type deviceService struct {
	deviceRepo repositories.DeviceRepository
}

func NewDeviceService(deviceRepo repositories.DeviceRepository) DeviceService {
	return &deviceService{deviceRepo: deviceRepo}
}

func (s *deviceService) RegisterDevice(ctx context.Context, userID int, platform models.DevicePlatform, token string) (*models.Device, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrValidationFailed)
	}

	switch platform {
	case models.PlatformIOS:
	case models.PlatformWeb:
		if err := notify.ValidateWebSubscription(token); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
	default:
		return nil, fmt.Errorf("%w: platform must be %q or %q", ErrValidationFailed, models.PlatformIOS, models.PlatformWeb)
	}

	device := &models.Device{UserID: userID, Platform: platform, Token: token}
	if err := s.deviceRepo.Register(ctx, device); err != nil {
		return nil, mapRepoNotFound(err)
	}
	return device, nil
}
