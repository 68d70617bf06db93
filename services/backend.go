package services

import (
	"alarmsync/models"
	"context"

	"alarmsync/utils"
)

// DeliveryBackend is the capability set shared by the two delivery mechanisms.
// The native backend drives the device's OS alarm facility over silent FCM
// commands; the notification backend schedules server-side push occurrences.
//
// Schedule returns the live handles for the alarm: exactly one for the native
// backend (a single handle covers the whole recurring rule), one per
// repeat-day occurrence for the notification backend.
//
// Cancel of an unknown handle is success, which makes cancellation idempotent
// and safe to call speculatively during migration. CancelAll is best-effort
// and never fails the caller. List is for diagnostics only; correctness
// decisions are never based on it.
type DeliveryBackend interface {
	Mode() models.DeliveryMode
	Schedule(ctx context.Context, device *models.Device, alarm *models.Alarm) ([]string, error)
	Cancel(ctx context.Context, device *models.Device, handle string) error
	CancelAll(ctx context.Context, device *models.Device)
	List(ctx context.Context, device *models.Device) ([]string, error)
}

// CommandSender delivers silent data commands to a device. Satisfied by
// utils.PushService.
type CommandSender interface {
	SendCommand(ctx context.Context, deviceToken string, data map[string]string) (*utils.PushResult, error)
}

// NotificationSender delivers user-visible push notifications. Satisfied by
// utils.PushService.
type NotificationSender interface {
	SendNotification(ctx context.Context, deviceToken string, notification utils.PushNotification) (*utils.PushResult, error)
}

// SMSSender delivers operator alert texts. Satisfied by utils.PushService.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (*utils.PushResult, error)
}

// EventEmitter receives one structured event per processed alarm. The engine
// reports through this instead of interleaving presentation with control flow;
// the websocket hub is the production implementation.
type EventEmitter interface {
	Emit(event models.MigrationEvent)
}

// AlarmSaver persists a whole alarm record in one write. Satisfied by
// repositories.AlarmRepository.
type AlarmSaver interface {
	Save(ctx context.Context, alarm *models.Alarm) error
}

// AlarmStore is the alarm persistence surface AlarmService works against.
// Satisfied by repositories.AlarmRepository.
type AlarmStore interface {
	Create(ctx context.Context, alarm *models.Alarm) error
	GetByID(ctx context.Context, id string) (*models.Alarm, error)
	GetByDevice(ctx context.Context, deviceID string) ([]*models.Alarm, error)
	Save(ctx context.Context, alarm *models.Alarm) error
	Delete(ctx context.Context, id string) error
}

// DeviceStore resolves device records. Satisfied by
// repositories.DeviceRepository.
type DeviceStore interface {
	GetByID(ctx context.Context, id string) (*models.Device, error)
}
