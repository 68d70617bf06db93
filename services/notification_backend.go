package services

import (
	"alarmsync/models"
	"alarmsync/repositories"
	"alarmsync/utils"
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// NotificationBackend is the fallback delivery mechanism: the server schedules
// one push occurrence per repeat day (a single occurrence for one-shots) and
// the delivery worker fires them. A handle is live while its occurrence
// document exists.
type NotificationBackend struct {
	notificationRepo *repositories.NotificationRepository

	// now is swappable for tests.
	now func() time.Time
}

func NewNotificationBackend(notificationRepo *repositories.NotificationRepository) *NotificationBackend {
	return &NotificationBackend{
		notificationRepo: notificationRepo,
		now:              time.Now,
	}
}

func (nb *NotificationBackend) Mode() models.DeliveryMode {
	return models.DeliveryModeNotification
}

func (nb *NotificationBackend) Schedule(ctx context.Context, device *models.Device, alarm *models.Alarm) ([]string, error) {
	hour, minute, err := alarm.FireClock()
	if err != nil {
		return nil, utils.NewSchedulingFailedError("notification", err)
	}

	now := nb.now()
	var handles []string

	fail := func(cause error) ([]string, error) {
		// Roll back occurrences created before the failure so a half-scheduled
		// alarm never leaves stray deliveries behind.
		for _, handle := range handles {
			if derr := nb.notificationRepo.DeleteByHandle(ctx, handle); derr != nil {
				logrus.Warnf("Failed to roll back occurrence %s: %v", handle, derr)
			}
		}
		return nil, utils.NewSchedulingFailedError("notification", cause)
	}

	if len(alarm.RepeatDays) == 0 {
		fireAt, err := alarm.NextFireAt(now)
		if err != nil {
			return nil, utils.NewSchedulingFailedError("notification", err)
		}

		handle := utils.GenerateHandle("ntf")
		occurrence := &models.ScheduledNotification{
			Handle:     handle,
			AlarmID:    alarm.ID,
			DeviceID:   device.ID,
			NextFireAt: fireAt,
			Payload:    alarm.Payload,
		}
		if err := nb.notificationRepo.Create(ctx, occurrence); err != nil {
			return fail(err)
		}
		return []string{handle}, nil
	}

	for _, day := range alarm.RepeatDays {
		weekday := day
		handle := utils.GenerateHandle("ntf")
		occurrence := &models.ScheduledNotification{
			Handle:     handle,
			AlarmID:    alarm.ID,
			DeviceID:   device.ID,
			Weekday:    &weekday,
			NextFireAt: nextWeekdayOccurrence(now, weekday, hour, minute),
			Payload:    alarm.Payload,
		}
		if err := nb.notificationRepo.Create(ctx, occurrence); err != nil {
			return fail(err)
		}
		handles = append(handles, handle)
	}

	return handles, nil
}

func (nb *NotificationBackend) Cancel(ctx context.Context, device *models.Device, handle string) error {
	// DeleteByHandle treats a missing document as already cancelled.
	if err := nb.notificationRepo.DeleteByHandle(ctx, handle); err != nil {
		return utils.NewCancelError("notification", handle, err)
	}
	return nil
}

func (nb *NotificationBackend) CancelAll(ctx context.Context, device *models.Device) {
	deleted, err := nb.notificationRepo.DeleteByDevice(ctx, device.ID.Hex())
	if err != nil {
		logrus.Warnf("Notification cancel-all for device %s failed: %v", device.ID.Hex(), err)
		return
	}
	logrus.Debugf("Cancelled %d scheduled notifications for device %s", deleted, device.ID.Hex())
}

func (nb *NotificationBackend) List(ctx context.Context, device *models.Device) ([]string, error) {
	return nb.notificationRepo.ListHandlesByDevice(ctx, device.ID.Hex())
}

// nextWeekdayOccurrence finds the next instant with the given weekday and
// wall-clock time strictly after now.
func nextWeekdayOccurrence(now time.Time, weekday, hour, minute int) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	for i := 0; i < 8; i++ {
		if int(candidate.Weekday()) == weekday && candidate.After(now) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
