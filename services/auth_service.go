package services

import (
	"alarmsync/models"
	"alarmsync/repositories"
	"alarmsync/utils"
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles device identity: registration with a bcrypt-hashed
// secret and JWT bearer tokens for the API.
type AuthService struct {
	deviceRepo *repositories.DeviceRepository
	jwtService *utils.JWTService
}

func NewAuthService(deviceRepo *repositories.DeviceRepository, jwtService *utils.JWTService) *AuthService {
	return &AuthService{
		deviceRepo: deviceRepo,
		jwtService: jwtService,
	}
}

func (s *AuthService) RegisterDevice(ctx context.Context, req models.RegisterDeviceRequest) (*models.AuthTokenResponse, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, utils.NewInternalError("Failed to hash device secret")
	}

	device := &models.Device{
		Name:                defaultDeviceName(req.Name),
		Secret:              string(hashed),
		FCMToken:            req.FCMToken,
		Platform:            req.Platform,
		OSVersion:           req.OSVersion,
		AppVersion:          req.AppVersion,
		AuthorizationStatus: models.AuthorizationNotDetermined,
	}

	if err := s.deviceRepo.Create(ctx, device); err != nil {
		return nil, utils.NewDatabaseError("register device", err)
	}

	logrus.Infof("Registered device %s (%s)", device.ID.Hex(), device.Platform)

	return s.issueToken(device)
}

func (s *AuthService) Login(ctx context.Context, req models.LoginDeviceRequest) (*models.AuthTokenResponse, error) {
	device, err := s.deviceRepo.GetByID(ctx, req.DeviceID)
	if err != nil {
		return nil, utils.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(device.Secret), []byte(req.Secret)); err != nil {
		return nil, utils.NewInvalidCredentialsError()
	}

	if err := s.deviceRepo.TouchLastSeen(ctx, req.DeviceID); err != nil {
		logrus.Warnf("Failed to update last seen for device %s: %v", req.DeviceID, err)
	}

	return s.issueToken(device)
}

func (s *AuthService) ValidateToken(token string) (*utils.Claims, error) {
	return s.jwtService.ValidateToken(token)
}

func (s *AuthService) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	device, err := s.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, utils.NewDeviceNotFoundError()
	}
	return device, nil
}

func (s *AuthService) issueToken(device *models.Device) (*models.AuthTokenResponse, error) {
	token, expiresAt, err := s.jwtService.GenerateToken(device.ID.Hex(), device.Platform)
	if err != nil {
		return nil, utils.NewInternalError("Failed to issue token")
	}

	return &models.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Device:    device,
	}, nil
}

func defaultDeviceName(name string) string {
	if name == "" {
		return "unnamed device"
	}
	return name
}
