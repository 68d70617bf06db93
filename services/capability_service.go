package services

import (
	"alarmsync/models"
	"alarmsync/repositories"
	"alarmsync/utils"
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

// CapabilityChangedChannel carries capability transitions to the reconcile
// worker, which reacts by migrating eligible alarms.
const CapabilityChangedChannel = "capability.changed"

type CapabilityChangedMessage struct {
	DeviceID     string `json:"deviceId"`
	CanUseNative bool   `json:"canUseNative"`
}

// CapabilityService answers whether the native alarm facility is present and
// authorized on a device. The device reports its own state; the probe never
// guesses and, apart from RequestAuthorization, never causes side effects.
type CapabilityService struct {
	deviceRepo *repositories.DeviceRepository
	push       CommandSender
	redis      *redis.Client
}

func NewCapabilityService(deviceRepo *repositories.DeviceRepository, push CommandSender, redisClient *redis.Client) *CapabilityService {
	return &CapabilityService{
		deviceRepo: deviceRepo,
		push:       push,
		redis:      redisClient,
	}
}

// IsAvailable reports whether the native alarm facility exists on the device's
// OS/version.
func (cs *CapabilityService) IsAvailable(device *models.Device) bool {
	return device != nil && device.NativeAlarmSupported
}

// AuthorizationStatus returns the device-reported authorization state.
func (cs *CapabilityService) AuthorizationStatus(device *models.Device) string {
	if device == nil || device.AuthorizationStatus == "" {
		return models.AuthorizationNotDetermined
	}
	return device.AuthorizationStatus
}

// CanUseNative is the single gate the rest of the system consults before
// selecting the native backend.
func (cs *CapabilityService) CanUseNative(device *models.Device) bool {
	return cs.IsAvailable(device) && cs.AuthorizationStatus(device) == models.AuthorizationAuthorized
}

// RequestAuthorization asks the device to show the platform permission prompt,
// at most once per call. It fails closed: any transport error yields false
// rather than an error. A denial is terminal for this call; re-prompting is a
// UI decision.
func (cs *CapabilityService) RequestAuthorization(ctx context.Context, device *models.Device) bool {
	if device == nil || device.FCMToken == "" {
		return false
	}
	if !cs.IsAvailable(device) {
		return false
	}

	_, err := cs.push.SendCommand(ctx, device.FCMToken, map[string]string{
		"type": "authorization.request",
	})
	if err != nil {
		logrus.Warnf("Authorization prompt for device %s failed: %v", device.ID.Hex(), err)
		return false
	}

	return true
}

// ReportCapability applies a device's self-reported capability update and
// publishes a capability.changed message when the CanUseNative answer flips.
func (cs *CapabilityService) ReportCapability(ctx context.Context, deviceID string, req models.ReportCapabilityRequest) (*models.Device, error) {
	device, err := cs.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, utils.NewDeviceNotFoundError()
	}

	before := cs.CanUseNative(device)

	update := bson.M{}
	if req.NativeAlarmSupported != nil {
		device.NativeAlarmSupported = *req.NativeAlarmSupported
		update["nativeAlarmSupported"] = *req.NativeAlarmSupported
	}
	if req.AuthorizationStatus != "" {
		device.AuthorizationStatus = req.AuthorizationStatus
		update["authorizationStatus"] = req.AuthorizationStatus
	}
	if req.FCMToken != "" {
		device.FCMToken = req.FCMToken
		update["fcmToken"] = req.FCMToken
	}
	if req.OSVersion != "" {
		device.OSVersion = req.OSVersion
		update["osVersion"] = req.OSVersion
	}

	if len(update) == 0 {
		return device, nil
	}

	if err := cs.deviceRepo.Update(ctx, deviceID, update); err != nil {
		return nil, utils.NewDatabaseError("update device capability", err)
	}

	after := cs.CanUseNative(device)
	if before != after {
		cs.publishChange(ctx, deviceID, after)
	}

	return device, nil
}

func (cs *CapabilityService) publishChange(ctx context.Context, deviceID string, canUseNative bool) {
	if cs.redis == nil {
		return
	}

	payload, err := json.Marshal(CapabilityChangedMessage{
		DeviceID:     deviceID,
		CanUseNative: canUseNative,
	})
	if err != nil {
		return
	}

	if err := cs.redis.Publish(ctx, CapabilityChangedChannel, payload).Err(); err != nil {
		logrus.Warnf("Failed to publish capability change for device %s: %v", deviceID, err)
	}
}
