package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeliveryMode identifies which backend currently owns delivery for an alarm.
// Exactly one backend is authoritative at any time.
type DeliveryMode string

const (
	DeliveryModeNative       DeliveryMode = "native"
	DeliveryModeNotification DeliveryMode = "notification"
)

func (m DeliveryMode) IsValid() bool {
	return m == DeliveryModeNative || m == DeliveryModeNotification
}

// AlarmPayload is passed opaquely to whichever backend schedules the alarm.
type AlarmPayload struct {
	Label   string `json:"label" bson:"label"`
	Sound   string `json:"sound" bson:"sound"`
	Vibrate bool   `json:"vibrate" bson:"vibrate"`
}

type Alarm struct {
	ID       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	DeviceID primitive.ObjectID `json:"deviceId" bson:"deviceId"`

	// Schedule specification
	FireTime   string `json:"fireTime" bson:"fireTime"`     // "HH:MM" wall clock
	RepeatDays []int  `json:"repeatDays" bson:"repeatDays"` // 0=Sunday..6=Saturday; empty = one-shot

	// Delivery state. Mutated only through the Set*/ClearDelivery methods so the
	// mode and handle fields never disagree.
	IsActive            bool         `json:"isActive" bson:"isActive"`
	DeliveryMode        DeliveryMode `json:"deliveryMode" bson:"deliveryMode"`
	NativeHandle        string       `json:"nativeHandle,omitempty" bson:"nativeHandle,omitempty"`
	NotificationHandles []string     `json:"notificationHandles,omitempty" bson:"notificationHandles,omitempty"`

	Payload AlarmPayload `json:"payload" bson:"payload"`

	IsDeleted bool      `json:"-" bson:"isDeleted,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// SetNativeDelivery commits the alarm to native delivery with the given handle,
// clearing any notification handles.
func (a *Alarm) SetNativeDelivery(handle string) {
	a.DeliveryMode = DeliveryModeNative
	a.NativeHandle = handle
	a.NotificationHandles = nil
}

// SetNotificationDelivery commits the alarm to notification delivery with the
// given handles, clearing any native handle.
func (a *Alarm) SetNotificationDelivery(handles []string) {
	a.DeliveryMode = DeliveryModeNotification
	a.NativeHandle = ""
	a.NotificationHandles = append([]string(nil), handles...)
}

// ClearDelivery drops all handles without changing the delivery mode.
func (a *Alarm) ClearDelivery() {
	a.NativeHandle = ""
	a.NotificationHandles = nil
}

// LiveHandles returns the handles currently owned under the alarm's mode.
func (a *Alarm) LiveHandles() []string {
	if a.DeliveryMode == DeliveryModeNative {
		if a.NativeHandle == "" {
			return nil
		}
		return []string{a.NativeHandle}
	}
	return a.NotificationHandles
}

// HasLiveDelivery reports whether the alarm holds at least one handle under its
// current mode.
func (a *Alarm) HasLiveDelivery() bool {
	return len(a.LiveHandles()) > 0
}

// ValidateDelivery checks the mode/handle consistency invariant. A record with
// handles from both backends indicates corruption upstream and must abort the
// operation that encounters it.
func (a *Alarm) ValidateDelivery() error {
	if !a.DeliveryMode.IsValid() {
		return fmt.Errorf("alarm %s: unknown delivery mode %q", a.ID.Hex(), a.DeliveryMode)
	}
	if a.NativeHandle != "" && len(a.NotificationHandles) > 0 {
		return fmt.Errorf("alarm %s: both native and notification handles populated", a.ID.Hex())
	}
	if a.DeliveryMode == DeliveryModeNative && len(a.NotificationHandles) > 0 {
		return fmt.Errorf("alarm %s: notification handles present under native mode", a.ID.Hex())
	}
	if a.DeliveryMode == DeliveryModeNotification && a.NativeHandle != "" {
		return fmt.Errorf("alarm %s: native handle present under notification mode", a.ID.Hex())
	}
	return nil
}

// FireClock parses the wall-clock fire time.
func (a *Alarm) FireClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", a.FireTime)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid fire time %q: %w", a.FireTime, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NextFireAt computes the next occurrence of the alarm at or after the given
// instant. For repeating alarms the earliest matching weekday wins; a one-shot
// fires at the next occurrence of its wall-clock time.
func (a *Alarm) NextFireAt(now time.Time) (time.Time, error) {
	hour, minute, err := a.FireClock()
	if err != nil {
		return time.Time{}, err
	}

	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	for i := 0; i < 8; i++ {
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
			continue
		}
		if len(a.RepeatDays) == 0 || containsDay(a.RepeatDays, int(candidate.Weekday())) {
			return candidate, nil
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return time.Time{}, fmt.Errorf("alarm %s: no occurrence within a week", a.ID.Hex())
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

// Request shapes

type CreateAlarmRequest struct {
	FireTime   string `json:"fireTime" binding:"required" validate:"fire_time"`
	RepeatDays []int  `json:"repeatDays" validate:"dive,min=0,max=6"`
	IsActive   bool   `json:"isActive"`
	Label      string `json:"label" validate:"max=100"`
	Sound      string `json:"sound" validate:"max=100"`
	Vibrate    bool   `json:"vibrate"`
}

type UpdateAlarmRequest struct {
	FireTime   *string `json:"fireTime,omitempty" validate:"omitempty,fire_time"`
	RepeatDays *[]int  `json:"repeatDays,omitempty" validate:"omitempty,dive,min=0,max=6"`
	Label      *string `json:"label,omitempty" validate:"omitempty,max=100"`
	Sound      *string `json:"sound,omitempty" validate:"omitempty,max=100"`
	Vibrate    *bool   `json:"vibrate,omitempty"`
}

type ToggleAlarmRequest struct {
	IsActive bool `json:"isActive"`
}

type MigrateAlarmsRequest struct {
	Target DeliveryMode `json:"target" binding:"required" validate:"delivery_mode"`
}
