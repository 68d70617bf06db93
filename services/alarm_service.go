package services

import (
	"alarmsync/models"
	"alarmsync/utils"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AlarmService owns the authoritative alarm collection and is the single entry
// point for UI/app-lifecycle callers. Batch operations over a device's
// collection are serialized by mu: interleaved cancel/schedule pairs from two
// concurrent callers could leave an alarm with two live deliveries or zero.
// The guard is per instance, so the process must construct exactly one
// AlarmService over a given collection and share it between the API and the
// workers; a second instance would be a second mutex over the same records.
type AlarmService struct {
	alarmRepo  AlarmStore
	deviceRepo DeviceStore

	probe        *CapabilityService
	native       DeliveryBackend
	notification DeliveryBackend
	migration    *MigrationService
	alerts       *AlertService
	emitter      EventEmitter

	mu sync.Mutex
}

func NewAlarmService(
	alarmRepo AlarmStore,
	deviceRepo DeviceStore,
	probe *CapabilityService,
	native DeliveryBackend,
	notification DeliveryBackend,
	migration *MigrationService,
	alerts *AlertService,
	emitter EventEmitter,
) *AlarmService {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	return &AlarmService{
		alarmRepo:    alarmRepo,
		deviceRepo:   deviceRepo,
		probe:        probe,
		native:       native,
		notification: notification,
		migration:    migration,
		alerts:       alerts,
		emitter:      emitter,
	}
}

func (as *AlarmService) backendFor(mode models.DeliveryMode) DeliveryBackend {
	if mode == models.DeliveryModeNative {
		return as.native
	}
	return as.notification
}

// GetAlarms returns the device's alarm collection.
func (as *AlarmService) GetAlarms(ctx context.Context, deviceID string) ([]*models.Alarm, error) {
	return as.alarmRepo.GetByDevice(ctx, deviceID)
}

// GetAlarm returns one alarm, rejecting records owned by another device.
func (as *AlarmService) GetAlarm(ctx context.Context, deviceID, alarmID string) (*models.Alarm, error) {
	alarm, err := as.alarmRepo.GetByID(ctx, alarmID)
	if err != nil {
		return nil, utils.NewAlarmNotFoundError()
	}
	if alarm.DeviceID.Hex() != deviceID {
		return nil, utils.NewForbiddenError("Alarm belongs to another device")
	}
	return alarm, nil
}

// CreateAlarm persists a new alarm and, when active, arms it on the best
// currently-usable backend (native if the capability probe allows, otherwise
// the notification fallback).
func (as *AlarmService) CreateAlarm(ctx context.Context, deviceID string, req models.CreateAlarmRequest) (*models.Alarm, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	device, err := as.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, utils.NewDeviceNotFoundError()
	}

	alarm := &models.Alarm{
		DeviceID:     device.ID,
		FireTime:     req.FireTime,
		RepeatDays:   req.RepeatDays,
		IsActive:     req.IsActive,
		DeliveryMode: models.DeliveryModeNotification,
		Payload: models.AlarmPayload{
			Label:   req.Label,
			Sound:   req.Sound,
			Vibrate: req.Vibrate,
		},
	}
	if as.probe.CanUseNative(device) {
		alarm.DeliveryMode = models.DeliveryModeNative
	}

	if err := as.alarmRepo.Create(ctx, alarm); err != nil {
		return nil, utils.NewDatabaseError("create alarm", err)
	}

	if !alarm.IsActive {
		return alarm, nil
	}

	if err := as.armUnderCurrentMode(ctx, device, alarm); err != nil {
		return alarm, err
	}
	return alarm, nil
}

// UpdateAlarm applies user edits to time/days/payload. An armed alarm is
// cancelled and re-scheduled under its current mode so the live delivery
// matches the edited schedule.
func (as *AlarmService) UpdateAlarm(ctx context.Context, deviceID, alarmID string, req models.UpdateAlarmRequest) (*models.Alarm, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	alarm, err := as.GetAlarm(ctx, deviceID, alarmID)
	if err != nil {
		return nil, err
	}

	if req.FireTime != nil {
		alarm.FireTime = *req.FireTime
	}
	if req.RepeatDays != nil {
		alarm.RepeatDays = *req.RepeatDays
	}
	if req.Label != nil {
		alarm.Payload.Label = *req.Label
	}
	if req.Sound != nil {
		alarm.Payload.Sound = *req.Sound
	}
	if req.Vibrate != nil {
		alarm.Payload.Vibrate = *req.Vibrate
	}

	if !alarm.IsActive || !alarm.HasLiveDelivery() {
		if err := as.alarmRepo.Save(ctx, alarm); err != nil {
			return nil, utils.NewDatabaseError("update alarm", err)
		}
		return alarm, nil
	}

	device, err := as.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, utils.NewDeviceNotFoundError()
	}

	as.cancelLiveHandles(ctx, device, alarm)
	if err := as.armUnderCurrentMode(ctx, device, alarm); err != nil {
		return alarm, err
	}
	return alarm, nil
}

// ToggleAlarm arms or disarms an alarm. Disarming cancels every live handle so
// an inactive alarm never keeps a delivery in either backend.
func (as *AlarmService) ToggleAlarm(ctx context.Context, deviceID, alarmID string, active bool) (*models.Alarm, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	alarm, err := as.GetAlarm(ctx, deviceID, alarmID)
	if err != nil {
		return nil, err
	}

	device, err := as.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, utils.NewDeviceNotFoundError()
	}

	if !active {
		as.cancelLiveHandles(ctx, device, alarm)
		alarm.IsActive = false
		alarm.ClearDelivery()
		if err := as.alarmRepo.Save(ctx, alarm); err != nil {
			return nil, utils.NewDatabaseError("disarm alarm", err)
		}
		return alarm, nil
	}

	if alarm.IsActive && alarm.HasLiveDelivery() {
		return alarm, nil
	}

	alarm.IsActive = true
	// An alarm parked in native mode on a device that lost the capability
	// falls back to notifications.
	if alarm.DeliveryMode == models.DeliveryModeNative && !as.probe.CanUseNative(device) {
		alarm.DeliveryMode = models.DeliveryModeNotification
	}

	if err := as.armUnderCurrentMode(ctx, device, alarm); err != nil {
		return alarm, err
	}
	return alarm, nil
}

// DeleteAlarm cancels any live handle before removing the record.
func (as *AlarmService) DeleteAlarm(ctx context.Context, deviceID, alarmID string) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	alarm, err := as.GetAlarm(ctx, deviceID, alarmID)
	if err != nil {
		return err
	}

	device, err := as.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return utils.NewDeviceNotFoundError()
	}

	as.cancelLiveHandles(ctx, device, alarm)

	if err := as.alarmRepo.Delete(ctx, alarmID); err != nil {
		return utils.NewDatabaseError("delete alarm", err)
	}
	return nil
}

// EvaluateMigrationEligibility classifies a collection without mutating it.
// Eligible alarms are active, not yet native, and only counted while the
// capability probe currently answers yes.
func (as *AlarmService) EvaluateMigrationEligibility(device *models.Device, alarms []*models.Alarm) models.MigrationEligibility {
	eligibility := models.MigrationEligibility{}
	canUseNative := as.probe.CanUseNative(device)

	for _, alarm := range alarms {
		switch alarm.DeliveryMode {
		case models.DeliveryModeNative:
			eligibility.NativeCount++
		case models.DeliveryModeNotification:
			eligibility.NotificationCount++
		}

		if canUseNative && alarm.IsActive && alarm.DeliveryMode != models.DeliveryModeNative {
			eligibility.EligibleCount++
		}
	}

	return eligibility
}

// MigrateAllEligible migrates every eligible alarm of the device to the target
// backend. With zero eligible alarms it short-circuits with a zeroed result,
// touching no backend. The reverse direction (native back to notification) is
// the same path with the target swapped.
func (as *AlarmService) MigrateAllEligible(ctx context.Context, deviceID string, target models.DeliveryMode) (*models.MigrationResult, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	device, err := as.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, utils.NewDeviceNotFoundError()
	}

	alarms, err := as.alarmRepo.GetByDevice(ctx, deviceID)
	if err != nil {
		return nil, utils.NewDatabaseError("load alarms", err)
	}

	var eligible []*models.Alarm
	for _, alarm := range alarms {
		if !alarm.IsActive || alarm.DeliveryMode == target {
			continue
		}
		if target == models.DeliveryModeNative && !as.probe.CanUseNative(device) {
			continue
		}
		eligible = append(eligible, alarm)
	}

	if len(eligible) == 0 {
		return &models.MigrationResult{Errors: []string{}}, nil
	}

	return as.migration.MigrateMany(ctx, device, eligible, target)
}

// HealthCheck cross-checks record state against each backend's List output.
// It never mutates state; remediation is a separate, explicit operation.
func (as *AlarmService) HealthCheck(ctx context.Context, deviceID string) (*models.HealthReport, error) {
	device, err := as.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, utils.NewDeviceNotFoundError()
	}

	alarms, err := as.alarmRepo.GetByDevice(ctx, deviceID)
	if err != nil {
		return nil, utils.NewDatabaseError("load alarms", err)
	}

	report := &models.HealthReport{
		Healthy:   true,
		Issues:    []models.HealthIssue{},
		CheckedAt: time.Now(),
	}

	for _, backend := range []DeliveryBackend{as.native, as.notification} {
		mode := backend.Mode()

		listed, err := backend.List(ctx, device)
		if err != nil {
			logrus.Warnf("Health check could not list %s handles for device %s: %v", mode, deviceID, err)
			continue
		}

		listedSet := make(map[string]bool, len(listed))
		for _, handle := range listed {
			listedSet[handle] = true
		}

		claimed := make(map[string]string) // handle -> alarm id
		for _, alarm := range alarms {
			if alarm.DeliveryMode != mode {
				continue
			}
			for _, handle := range alarm.LiveHandles() {
				claimed[handle] = alarm.ID.Hex()
				if !listedSet[handle] {
					report.Issues = append(report.Issues, models.HealthIssue{
						Kind:    models.IssueOrphanedRecord,
						Backend: mode,
						AlarmID: alarm.ID.Hex(),
						Handle:  handle,
					})
				}
			}
		}

		for _, handle := range listed {
			if _, ok := claimed[handle]; !ok {
				report.Issues = append(report.Issues, models.HealthIssue{
					Kind:    models.IssueLeakedHandle,
					Backend: mode,
					Handle:  handle,
				})
			}
		}
	}

	report.Healthy = len(report.Issues) == 0
	return report, nil
}

// EmergencyStop cancels everything in both backends and deactivates every
// record. Destructive and irreversible for any alarm the user does not re-arm
// afterward; reserved for catastrophic-recovery paths.
func (as *AlarmService) EmergencyStop(ctx context.Context, deviceID string) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	device, err := as.deviceRepo.GetByID(ctx, deviceID)
	if err != nil {
		return utils.NewDeviceNotFoundError()
	}

	logrus.Warnf("EMERGENCY STOP for device %s: cancelling all deliveries", deviceID)

	as.native.CancelAll(ctx, device)
	as.notification.CancelAll(ctx, device)

	alarms, err := as.alarmRepo.GetByDevice(ctx, deviceID)
	if err != nil {
		return utils.NewDatabaseError("load alarms", err)
	}

	for _, alarm := range alarms {
		alarm.IsActive = false
		alarm.ClearDelivery()
		if err := as.alarmRepo.Save(ctx, alarm); err != nil {
			logrus.Errorf("Emergency stop: failed to deactivate alarm %s: %v", alarm.ID.Hex(), err)
		}
	}

	as.emitter.Emit(models.MigrationEvent{
		Type:      models.EventEmergencyStop,
		DeviceID:  deviceID,
		Timestamp: time.Now(),
	})

	if as.alerts != nil {
		as.alerts.EmergencyStopTriggered(ctx, deviceID, len(alarms))
	}

	return nil
}

// armUnderCurrentMode schedules the alarm on its current backend, applying the
// same fail-safe as migration when scheduling fails: the alarm is deactivated
// with no handles rather than left claiming a delivery that does not exist.
func (as *AlarmService) armUnderCurrentMode(ctx context.Context, device *models.Device, alarm *models.Alarm) error {
	backend := as.backendFor(alarm.DeliveryMode)

	handles, err := backend.Schedule(ctx, device, alarm)
	if err != nil {
		alarm.IsActive = false
		alarm.ClearDelivery()
		if saveErr := as.alarmRepo.Save(ctx, alarm); saveErr != nil {
			logrus.Errorf("Failed to persist deactivation of alarm %s: %v", alarm.ID.Hex(), saveErr)
		}
		return utils.NewSchedulingFailedError(string(alarm.DeliveryMode),
			fmt.Errorf("alarm %s deactivated: %w", alarm.ID.Hex(), err))
	}

	if alarm.DeliveryMode == models.DeliveryModeNative {
		if len(handles) != 1 {
			return utils.NewInternalError(fmt.Sprintf(
				"native backend returned %d handles for alarm %s, want exactly 1", len(handles), alarm.ID.Hex()))
		}
		alarm.SetNativeDelivery(handles[0])
	} else {
		alarm.SetNotificationDelivery(handles)
	}

	if err := as.alarmRepo.Save(ctx, alarm); err != nil {
		return utils.NewDatabaseError("persist armed alarm", err)
	}
	return nil
}

func (as *AlarmService) cancelLiveHandles(ctx context.Context, device *models.Device, alarm *models.Alarm) {
	backend := as.backendFor(alarm.DeliveryMode)
	for _, handle := range alarm.LiveHandles() {
		if err := backend.Cancel(ctx, device, handle); err != nil {
			logrus.Warnf("Cancel of %s handle %s for alarm %s failed: %v",
				alarm.DeliveryMode, handle, alarm.ID.Hex(), err)
		}
	}
}
