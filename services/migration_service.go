package services

import (
	"alarmsync/models"
	"alarmsync/utils"
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// MigrationStatus is the terminal state of one alarm's migration attempt.
type MigrationStatus string

const (
	// StatusCommitted: the target backend owns delivery.
	StatusCommitted MigrationStatus = "committed"
	// StatusSkipped: already in target mode with live handles, or inactive.
	StatusSkipped MigrationStatus = "skipped"
	// StatusRolledBack: target scheduling failed, the compensating re-schedule
	// restored delivery on the original backend.
	StatusRolledBack MigrationStatus = "rolledback"
	// StatusFailed: both the target schedule and the compensating re-schedule
	// failed; the alarm was fail-safely deactivated with no handles.
	StatusFailed MigrationStatus = "failed"
)

// MigrationService moves alarms between delivery backends without ever leaving
// an active alarm with zero live deliveries. Callers must serialize batches
// over overlapping record sets; AlarmService holds the collection guard.
type MigrationService struct {
	backends map[models.DeliveryMode]DeliveryBackend
	saver    AlarmSaver
	emitter  EventEmitter
}

func NewMigrationService(native, notification DeliveryBackend, saver AlarmSaver, emitter EventEmitter) *MigrationService {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	return &MigrationService{
		backends: map[models.DeliveryMode]DeliveryBackend{
			models.DeliveryModeNative:       native,
			models.DeliveryModeNotification: notification,
		},
		saver:   saver,
		emitter: emitter,
	}
}

// MigrateOne transitions a single alarm to the target backend.
//
// Ordering guarantee: cancellation of the source completes (success or logged
// failure) before the target schedule attempt begins. Stale source handles are
// preferable to losing the alarm, so cancel failures never abort the
// migration.
func (ms *MigrationService) MigrateOne(ctx context.Context, device *models.Device, alarm *models.Alarm, target models.DeliveryMode) (MigrationStatus, error) {
	targetBackend, ok := ms.backends[target]
	if !ok {
		return StatusFailed, utils.NewBadRequestError(fmt.Sprintf("unknown delivery mode %q", target))
	}

	// Idempotence: already delivered by the target, nothing to do.
	if alarm.DeliveryMode == target && alarm.HasLiveDelivery() {
		ms.emit(models.EventAlarmSkipped, device, alarm, target, "")
		return StatusSkipped, nil
	}

	// Inactive alarms have nothing to schedule.
	if !alarm.IsActive {
		ms.emit(models.EventAlarmSkipped, device, alarm, target, "")
		return StatusSkipped, nil
	}

	sourceMode := alarm.DeliveryMode
	sourceBackend := ms.backends[sourceMode]

	// Cancel everything the source owns, best-effort. Backends tolerate
	// double-cancel, so a failure here is logged and carried past.
	for _, handle := range alarm.LiveHandles() {
		if err := sourceBackend.Cancel(ctx, device, handle); err != nil {
			logrus.Warnf("Cancel of %s handle %s for alarm %s failed: %v",
				sourceMode, handle, alarm.ID.Hex(), err)
		}
	}

	handles, scheduleErr := targetBackend.Schedule(ctx, device, alarm)
	if scheduleErr == nil {
		if err := ms.commit(ctx, alarm, target, handles); err != nil {
			ms.emit(models.EventAlarmFailed, device, alarm, target, err.Error())
			return StatusCommitted, err
		}
		ms.emit(models.EventAlarmMigrated, device, alarm, target, "")
		return StatusCommitted, nil
	}

	// Target scheduling failed after the source was cancelled: re-schedule on
	// the original backend so the alarm never ends with zero live deliveries.
	restored, compensateErr := sourceBackend.Schedule(ctx, device, alarm)
	if compensateErr == nil {
		if err := ms.commit(ctx, alarm, sourceMode, restored); err != nil {
			ms.emit(models.EventAlarmFailed, device, alarm, target, err.Error())
			return StatusRolledBack, err
		}
		ms.emit(models.EventAlarmFailed, device, alarm, target, scheduleErr.Error())
		return StatusRolledBack, scheduleErr
	}

	// Both attempts failed. Deactivate rather than claim delivery that does
	// not exist: a visibly-off alarm beats one that silently never fires.
	alarm.IsActive = false
	alarm.ClearDelivery()
	combined := fmt.Errorf("schedule on %s failed: %v; compensating re-schedule on %s failed: %v",
		target, scheduleErr, sourceMode, compensateErr)

	if err := ms.saver.Save(ctx, alarm); err != nil {
		logrus.Errorf("Failed to persist fail-safe deactivation of alarm %s: %v", alarm.ID.Hex(), err)
		combined = fmt.Errorf("%v; persisting deactivation failed: %v", combined, err)
	}

	ms.emit(models.EventAlarmFailed, device, alarm, target, combined.Error())
	return StatusFailed, combined
}

// MigrateMany processes alarms sequentially in caller order; each alarm's
// outcome is independent and one failure never blocks or reverts another's
// success. A record violating the delivery invariant indicates corruption
// upstream and aborts the whole call before any side effect.
func (ms *MigrationService) MigrateMany(ctx context.Context, device *models.Device, alarms []*models.Alarm, target models.DeliveryMode) (*models.MigrationResult, error) {
	for _, alarm := range alarms {
		if err := alarm.ValidateDelivery(); err != nil {
			return nil, utils.NewInvalidRecordError(err.Error())
		}
	}

	result := &models.MigrationResult{
		TotalAlarms: len(alarms),
		Errors:      []string{},
	}

	for i, alarm := range alarms {
		if err := ctx.Err(); err != nil {
			// Already-processed alarms are in a consistent state; account for
			// the untouched remainder so the counts still add up.
			for _, remaining := range alarms[i:] {
				result.FailedAlarms++
				result.Errors = append(result.Errors,
					fmt.Sprintf("%s: not attempted: %v", remaining.ID.Hex(), err))
			}
			break
		}

		status, err := ms.MigrateOne(ctx, device, alarm, target)
		switch {
		case err != nil:
			result.FailedAlarms++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", alarm.ID.Hex(), err))
		case status == StatusSkipped:
			result.SkippedAlarms++
		default:
			result.MigratedAlarms++
		}
	}

	logrus.WithFields(logrus.Fields{
		"target":   target,
		"total":    result.TotalAlarms,
		"migrated": result.MigratedAlarms,
		"failed":   result.FailedAlarms,
		"skipped":  result.SkippedAlarms,
	}).Info("Batch migration finished")

	return result, nil
}

// commit applies the new delivery state and persists the whole record in one
// write.
func (ms *MigrationService) commit(ctx context.Context, alarm *models.Alarm, mode models.DeliveryMode, handles []string) error {
	if mode == models.DeliveryModeNative {
		if len(handles) != 1 {
			return utils.NewInternalError(fmt.Sprintf(
				"native backend returned %d handles for alarm %s, want exactly 1", len(handles), alarm.ID.Hex()))
		}
		alarm.SetNativeDelivery(handles[0])
	} else {
		alarm.SetNotificationDelivery(handles)
	}

	if err := ms.saver.Save(ctx, alarm); err != nil {
		return utils.NewDatabaseError("persist migrated alarm", err)
	}
	return nil
}

func (ms *MigrationService) emit(eventType string, device *models.Device, alarm *models.Alarm, target models.DeliveryMode, errText string) {
	event := models.MigrationEvent{
		Type:      eventType,
		AlarmID:   alarm.ID.Hex(),
		Target:    target,
		Error:     errText,
		Timestamp: time.Now(),
	}
	if device != nil {
		event.DeviceID = device.ID.Hex()
	}
	ms.emitter.Emit(event)
}

type noopEmitter struct{}

func (noopEmitter) Emit(models.MigrationEvent) {}
